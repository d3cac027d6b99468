// Package gateway is a JSON-RPC client for a transaction-building gateway.
// The gateway swaps in a live blockhash, may inject priority fee instructions,
// and broadcasts signed transactions.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/brojonat/txrelay/service/metrics"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

const (
	DefaultBaseURL = "https://tpg.sanctum.so/v1"
	DefaultTimeout = 10 * time.Second

	MethodBuildGatewayTransaction = "buildGatewayTransaction"
	MethodSendTransaction         = "sendTransaction"

	// maxBodyBytes bounds how much of a response we read and keep for diagnostics.
	maxBodyBytes   = 1 << 20
	maxErrBodySize = 2048
)

// Config configures a gateway client.
type Config struct {
	BaseURL  string        // defaults to DefaultBaseURL
	Cluster  string        // path segment, e.g. "mainnet" or "devnet"
	APIKey   string        // sent as the apiKey query parameter
	ClientID string        // envelope id; a random UUID when empty
	Timeout  time.Duration // per call; defaults to DefaultTimeout
}

// BuildOptions are the recognized options for buildGatewayTransaction.
// Unset fields are omitted so the gateway applies its own defaults.
type BuildOptions struct {
	Encoding           string `json:"encoding,omitempty"`
	SkipSimulation     *bool  `json:"skipSimulation,omitempty"`
	SkipPriorityFee    *bool  `json:"skipPriorityFee,omitempty"`
	DeliveryMethodType string `json:"deliveryMethodType,omitempty"`
}

// envelope is the JSON-RPC request body.
type envelope struct {
	ID      string `json:"id"`
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// Client talks to one cluster-qualified gateway endpoint.
type Client struct {
	endpoint   string
	clientID   string
	timeout    time.Duration
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewClient creates a gateway client.
// If httpClient is nil, a default client is used. If m is nil, no metrics are recorded.
func NewClient(cfg Config, httpClient *http.Client, m *metrics.Metrics, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gateway API key is required")
	}
	if cfg.Cluster == "" {
		return nil, fmt.Errorf("gateway cluster is required")
	}

	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(base, "/") + "/" + url.PathEscape(cfg.Cluster))
	if err != nil {
		return nil, fmt.Errorf("invalid gateway URL %q: %w", base, err)
	}
	q := u.Query()
	q.Set("apiKey", cfg.APIKey)
	u.RawQuery = q.Encode()

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = uuid.NewString()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		endpoint:   u.String(),
		clientID:   clientID,
		timeout:    timeout,
		httpClient: httpClient,
		metrics:    m,
		logger:     logger,
	}, nil
}

// BuildGatewayTransaction sends an unsigned transaction to the gateway and
// returns the assembled transaction as base64.
func (c *Client) BuildGatewayTransaction(ctx context.Context, unsignedB64 string, opts BuildOptions) (string, error) {
	return c.call(ctx, MethodBuildGatewayTransaction, []any{unsignedB64, opts}, ErrGateway, "transaction", "signature")
}

// SendTransaction submits a signed transaction for broadcast and returns its
// signature. An envelope error is reported as ErrSubmission whatever the
// HTTP status was.
func (c *Client) SendTransaction(ctx context.Context, signedB64 string) (string, error) {
	return c.call(ctx, MethodSendTransaction, []any{signedB64}, ErrSubmission, "signature")
}

// call performs one envelope round trip. envelopeErrKind classifies an
// `error` field in the response; wrapKeys are the object fields accepted as
// a wrapped result, in order.
func (c *Client) call(ctx context.Context, method string, params []any, envelopeErrKind error, wrapKeys ...string) (string, error) {
	start := time.Now()
	result, err := c.do(ctx, method, params, envelopeErrKind, wrapKeys)
	c.record(method, err, start)
	if err != nil {
		c.logger.ErrorContext(ctx, "gateway call failed",
			"method", method,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return "", err
	}

	c.logger.DebugContext(ctx, "gateway call succeeded",
		"method", method,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func (c *Client) do(ctx context.Context, method string, params []any, envelopeErrKind error, wrapKeys []string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(envelope{
		ID:      c.clientID,
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &Error{Method: method, Message: "request failed", kind: ErrGateway, cause: redactURLError(err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", &Error{Method: method, StatusCode: resp.StatusCode, Message: "failed to read response", kind: ErrGateway, cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		gwErr := &Error{Method: method, StatusCode: resp.StatusCode, Body: truncate(respBody), kind: ErrGateway}
		fillEnvelopeError(gwErr, respBody)
		return "", gwErr
	}

	if !gjson.ValidBytes(respBody) {
		return "", &Error{Method: method, StatusCode: resp.StatusCode, Message: "response is not JSON", Body: truncate(respBody), kind: ErrMalformedResult}
	}

	// The error field is authoritative even on HTTP 200.
	if e := gjson.GetBytes(respBody, "error"); e.Exists() && e.Type != gjson.Null {
		gwErr := &Error{Method: method, StatusCode: resp.StatusCode, Body: truncate(respBody), kind: envelopeErrKind}
		fillEnvelopeError(gwErr, respBody)
		return "", gwErr
	}

	value, ok := normalizeResult(gjson.GetBytes(respBody, "result"), wrapKeys)
	if !ok {
		return "", &Error{Method: method, StatusCode: resp.StatusCode, Message: "unexpected result shape", Body: truncate(respBody), kind: ErrMalformedResult}
	}
	return value, nil
}

// normalizeResult accepts a bare non-empty string, or an object carrying one
// of wrapKeys as a non-empty string.
func normalizeResult(result gjson.Result, wrapKeys []string) (string, bool) {
	switch {
	case result.Type == gjson.String:
		return result.Str, result.Str != ""
	case result.IsObject():
		for _, key := range wrapKeys {
			if v := result.Get(key); v.Type == gjson.String && v.Str != "" {
				return v.Str, true
			}
		}
	}
	return "", false
}

// fillEnvelopeError copies code and message from a JSON-RPC error object.
// Gateways sometimes send the error as a bare string.
func fillEnvelopeError(gwErr *Error, body []byte) {
	e := gjson.GetBytes(body, "error")
	switch {
	case e.IsObject():
		gwErr.Code = int(e.Get("code").Int())
		gwErr.Message = e.Get("message").String()
		gwErr.fromEnvelope = gwErr.Code != 0 || gwErr.Message != ""
	case e.Type == gjson.String:
		gwErr.Message = e.Str
		gwErr.fromEnvelope = e.Str != ""
	}
}

func (c *Client) record(method string, err error, start time.Time) {
	if c.metrics == nil {
		return
	}
	status := "success"
	switch {
	case errors.Is(err, ErrSubmission):
		status = "rejected"
	case errors.Is(err, ErrMalformedResult):
		status = "malformed"
	case err != nil:
		status = "error"
	}
	c.metrics.RecordGatewayCall(method, status, time.Since(start).Seconds())
}

// redactURLError strips the request URL, which carries the API key, from
// transport errors.
func redactURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s: %w", urlErr.Op, urlErr.Err)
	}
	return err
}

func truncate(body []byte) string {
	if len(body) > maxErrBodySize {
		return string(body[:maxErrBodySize]) + "..."
	}
	return string(body)
}
