package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

// render writes v as JSON when --json or --jq is set, otherwise calls text.
func render(c *cli.Context, v any, text func(w io.Writer)) error {
	w := c.App.Writer
	if filter := c.String("jq"); filter != "" {
		results, err := applyJQ(filter, v)
		if err != nil {
			return err
		}
		for _, r := range results {
			if s, ok := r.(string); ok {
				fmt.Fprintln(w, s)
				continue
			}
			data, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("failed to marshal jq result: %w", err)
			}
			fmt.Fprintln(w, string(data))
		}
		return nil
	}

	if c.Bool("json") {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	text(w)
	return nil
}

// applyJQ runs a jq filter over the JSON form of v.
func applyJQ(filter string, v any) ([]any, error) {
	query, err := gojq.Parse(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
	}

	// gojq only understands plain JSON values.
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal output: %w", err)
	}
	var input any
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("failed to unmarshal output: %w", err)
	}

	var results []any
	iter := code.Run(input)
	for {
		result, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := result.(error); ok {
			return nil, fmt.Errorf("jq filter %q failed: %w", filter, err)
		}
		results = append(results, result)
	}
	return results, nil
}
