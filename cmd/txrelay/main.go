package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/brojonat/txrelay/service/config"
	"github.com/brojonat/txrelay/service/relay"
	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Exit codes.
const (
	exitOK           = 0
	exitFailure      = 1
	exitPrecondition = 2
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "txrelay",
		Usage: "Relay a Solana transfer through a transaction-building gateway",
		Description: `Resolves a signing key, builds an unsigned SOL transfer, has the gateway
assemble it with a live blockhash, signs it, submits it, and reports one
status snapshot. Each run is a single attempt.

Configuration is read from the environment, optionally seeded from a .env file.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Before: func(c *cli.Context) error {
			if err := config.LoadEnvFile(c.String("env-file")); err != nil {
				return fmt.Errorf("%w: %v", relay.ErrPrecondition, err)
			}
			return nil
		},
		Commands: []*cli.Command{
			runCommand(),
			keypairCommand(),
			balanceCommand(),
			statusCommand(),
			versionCommand(),
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env-file",
				Aliases: []string{"e"},
				Usage:   "Load environment variables from this file (default: ./.env if present)",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
			&cli.StringFlag{
				Name:  "jq",
				Usage: "Filter JSON output with a jq expression (implies --json)",
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, relay.ErrPrecondition):
		return exitPrecondition
	default:
		return exitFailure
	}
}
