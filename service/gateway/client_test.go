package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brojonat/txrelay/service/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	Path   string
	APIKey string
	Body   map[string]any
}

// newTestServer replies with the given status and body and records each request.
func newTestServer(t *testing.T, status int, body string) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var captured []capturedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		var envelope map[string]any
		assert.NoError(t, json.Unmarshal(raw, &envelope))

		captured = append(captured, capturedRequest{
			Path:   r.URL.Path,
			APIKey: r.URL.Query().Get("apiKey"),
			Body:   envelope,
		})

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, &captured
}

func newTestClient(t *testing.T, baseURL string, m *metrics.Metrics) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := NewClient(Config{
		BaseURL:  baseURL + "/v1",
		Cluster:  "devnet",
		APIKey:   "secret-key",
		ClientID: "test-client",
	}, nil, m, logger)
	require.NoError(t, err)
	return client
}

func TestNewClient_Validation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := NewClient(Config{Cluster: "devnet"}, nil, nil, logger)
	assert.ErrorContains(t, err, "API key is required")

	_, err = NewClient(Config{APIKey: "k"}, nil, nil, logger)
	assert.ErrorContains(t, err, "cluster is required")

	client, err := NewClient(Config{APIKey: "k", Cluster: "mainnet"}, nil, nil, logger)
	require.NoError(t, err)
	assert.Equal(t, "https://tpg.sanctum.so/v1/mainnet?apiKey=k", client.endpoint)
	assert.NotEmpty(t, client.clientID, "client id defaults to a UUID")
	assert.Equal(t, DefaultTimeout, client.timeout)
}

func TestBuildGatewayTransaction_Envelope(t *testing.T) {
	server, captured := newTestServer(t, http.StatusOK, `{"jsonrpc":"2.0","id":"test-client","result":{"transaction":"QUJD","latestBlockhash":{"blockhash":"x"}}}`)
	client := newTestClient(t, server.URL, nil)

	skip := true
	built, err := client.BuildGatewayTransaction(context.Background(), "dW5zaWduZWQ=", BuildOptions{
		Encoding:       "base64",
		SkipSimulation: &skip,
	})
	require.NoError(t, err)
	assert.Equal(t, "QUJD", built)

	require.Len(t, *captured, 1)
	req := (*captured)[0]
	assert.Equal(t, "/v1/devnet", req.Path)
	assert.Equal(t, "secret-key", req.APIKey)
	assert.Equal(t, "test-client", req.Body["id"])
	assert.Equal(t, "2.0", req.Body["jsonrpc"])
	assert.Equal(t, MethodBuildGatewayTransaction, req.Body["method"])

	params, ok := req.Body["params"].([]any)
	require.True(t, ok)
	require.Len(t, params, 2)
	assert.Equal(t, "dW5zaWduZWQ=", params[0])
	assert.Equal(t, map[string]any{"encoding": "base64", "skipSimulation": true}, params[1],
		"unset options must be omitted")
}

func TestSendTransaction_ResultShapes(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected string
	}{
		{name: "bare string", body: `{"jsonrpc":"2.0","id":"1","result":"5sigBare"}`, expected: "5sigBare"},
		{name: "wrapped object", body: `{"jsonrpc":"2.0","id":"1","result":{"signature":"5sigWrapped"}}`, expected: "5sigWrapped"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, captured := newTestServer(t, http.StatusOK, tt.body)
			client := newTestClient(t, server.URL, nil)

			sig, err := client.SendTransaction(context.Background(), "c2lnbmVk")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, sig)

			require.Len(t, *captured, 1)
			assert.Equal(t, MethodSendTransaction, (*captured)[0].Body["method"])
			assert.Equal(t, []any{"c2lnbmVk"}, (*captured)[0].Body["params"])
		})
	}
}

func TestSendTransaction_ErrorOnHTTP200IsSubmissionError(t *testing.T) {
	server, _ := newTestServer(t, http.StatusOK, `{"result":null,"error":{"message":"x"}}`)
	registry := prometheus.NewRegistry()
	client := newTestClient(t, server.URL, metrics.NewMetrics(registry))

	sig, err := client.SendTransaction(context.Background(), "c2lnbmVk")
	require.Error(t, err)
	assert.Empty(t, sig)

	assert.ErrorIs(t, err, ErrSubmission)
	assert.NotErrorIs(t, err, ErrGateway)

	var gwErr *Error
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, http.StatusOK, gwErr.StatusCode)
	assert.Equal(t, "x", gwErr.Message)

	count, err := testutil.GatherAndCount(registry, "gateway_calls_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestBuildGatewayTransaction_EnvelopeErrorIsGatewayError(t *testing.T) {
	server, _ := newTestServer(t, http.StatusOK, `{"error":{"code":-32602,"message":"invalid transaction"}}`)
	client := newTestClient(t, server.URL, nil)

	_, err := client.BuildGatewayTransaction(context.Background(), "dW5zaWduZWQ=", BuildOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGateway)

	var gwErr *Error
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, -32602, gwErr.Code)
	assert.Equal(t, "invalid transaction", gwErr.Message)
}

func TestCall_Non2xxCarriesUpstreamBody(t *testing.T) {
	server, _ := newTestServer(t, http.StatusInternalServerError, `upstream exploded`)
	client := newTestClient(t, server.URL, nil)

	for _, call := range []func() error{
		func() error {
			_, err := client.BuildGatewayTransaction(context.Background(), "dW5zaWduZWQ=", BuildOptions{})
			return err
		},
		func() error {
			_, err := client.SendTransaction(context.Background(), "c2lnbmVk")
			return err
		},
	} {
		err := call()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrGateway)

		var gwErr *Error
		require.True(t, errors.As(err, &gwErr))
		assert.Equal(t, http.StatusInternalServerError, gwErr.StatusCode)
		assert.Equal(t, "upstream exploded", gwErr.Body)
		assert.Contains(t, err.Error(), "HTTP 500")
		assert.Contains(t, err.Error(), "upstream exploded")
	}
}

func TestError_BodyInMessage(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		contains    []string
		notContains []string
	}{
		{
			name:     "html error page is flattened",
			status:   http.StatusBadGateway,
			body:     "<html>\n  <body>rate limited</body>\n</html>",
			contains: []string{"HTTP 502", "<html> <body>rate limited</body> </html>"},
		},
		{
			name:        "json-rpc error object is not repeated",
			status:      http.StatusOK,
			body:        `{"error":{"code":-32000,"message":"blockhash not found"}}`,
			contains:    []string{"code -32000", "blockhash not found"},
			notContains: []string{`"error"`},
		},
		{
			name:     "non-json success body is shown",
			status:   http.StatusOK,
			body:     "service unavailable",
			contains: []string{"response is not JSON", "service unavailable"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := newTestServer(t, tt.status, tt.body)
			client := newTestClient(t, server.URL, nil)

			_, err := client.BuildGatewayTransaction(context.Background(), "dW5zaWduZWQ=", BuildOptions{})
			require.Error(t, err)
			for _, want := range tt.contains {
				assert.Contains(t, err.Error(), want)
			}
			for _, unwanted := range tt.notContains {
				assert.NotContains(t, err.Error(), unwanted)
			}
			assert.NotContains(t, err.Error(), "secret-key")
		})
	}
}

func TestCall_UnexpectedResultShapeIsMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "number", body: `{"result":42}`},
		{name: "object without known field", body: `{"result":{"sig":"abc"}}`},
		{name: "null result without error", body: `{"result":null}`},
		{name: "empty string", body: `{"result":""}`},
		{name: "array", body: `{"result":["abc"]}`},
		{name: "not json", body: `<html>oops</html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := newTestServer(t, http.StatusOK, tt.body)
			client := newTestClient(t, server.URL, nil)

			_, err := client.SendTransaction(context.Background(), "c2lnbmVk")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedResult)
		})
	}
}

func TestCall_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := NewClient(Config{
		BaseURL: server.URL,
		Cluster: "devnet",
		APIKey:  "secret-key",
		Timeout: 50 * time.Millisecond,
	}, nil, nil, logger)
	require.NoError(t, err)

	start := time.Now()
	_, err = client.SendTransaction(context.Background(), "c2lnbmVk")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	assert.ErrorIs(t, err, ErrGateway)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotContains(t, err.Error(), "secret-key", "API key must not leak into errors")
}
