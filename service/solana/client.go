package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/txrelay/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetBalance(
		ctx context.Context,
		account solana.PublicKey,
		commitment rpc.CommitmentType,
	) (*rpc.GetBalanceResult, error)

	GetSignatureStatuses(
		ctx context.Context,
		searchTransactionHistory bool,
		signatures ...solana.Signature,
	) (*rpc.GetSignatureStatusesResult, error)
}

// Client provides the ledger reads the relay needs: balance lookups and
// signature status lookups. It wraps the RPC client with logging and metrics.
type Client struct {
	rpc      RPCClient
	logger   *slog.Logger
	metrics  *metrics.Metrics
	endpoint string // RPC endpoint identifier for metrics (e.g., "mainnet", "devnet")
}

// NewClient creates a new Solana client.
// The endpoint parameter is used for metrics labeling (e.g., "mainnet", "devnet", or RPC hostname).
// If metrics is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, endpoint string, m *metrics.Metrics, logger *slog.Logger) *Client {
	return &Client{
		rpc:      rpcClient,
		logger:   logger,
		metrics:  m,
		endpoint: endpoint,
	}
}

// GetBalance returns the account balance in lamports at confirmed commitment.
func (c *Client) GetBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	start := time.Now()
	out, err := c.rpc.GetBalance(ctx, account, rpc.CommitmentConfirmed)
	c.record("getBalance", err, start)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to get balance",
			"account", account.String(),
			"error", err,
		)
		return 0, fmt.Errorf("get balance of %s: %w", account, err)
	}
	if out == nil {
		return 0, fmt.Errorf("get balance of %s: empty response", account)
	}

	c.logger.DebugContext(ctx, "fetched balance",
		"account", account.String(),
		"lamports", out.Value,
	)
	return out.Value, nil
}

// GetSignatureStatus performs a single status lookup for one signature.
// A signature the node does not know about yields a snapshot with Found == false
// rather than an error.
func (c *Client) GetSignatureStatus(ctx context.Context, signature solana.Signature) (*StatusSnapshot, error) {
	start := time.Now()
	out, err := c.rpc.GetSignatureStatuses(ctx, false, signature)
	c.record("getSignatureStatuses", err, start)

	snapshot := &StatusSnapshot{Signature: signature.String()}
	if errors.Is(err, rpc.ErrNotFound) {
		c.logger.DebugContext(ctx, "signature not found", "signature", snapshot.Signature)
		return snapshot, nil
	}
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to get signature status",
			"signature", snapshot.Signature,
			"error", err,
		)
		return nil, fmt.Errorf("get signature status: %w", err)
	}

	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		return snapshot, nil
	}

	return statusToDomain(snapshot.Signature, out.Value[0]), nil
}

func (c *Client) record(method string, err error, start time.Time) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil && !errors.Is(err, rpc.ErrNotFound) {
		status = "error"
	}
	c.metrics.RecordRPCCall(method, status, c.endpoint, time.Since(start).Seconds())
}

// statusToDomain converts an RPC status entry to our domain StatusSnapshot.
func statusToDomain(signature string, status *rpc.SignatureStatusesResult) *StatusSnapshot {
	snapshot := &StatusSnapshot{
		Signature:          signature,
		Found:              true,
		Slot:               status.Slot,
		Confirmations:      status.Confirmations,
		ConfirmationStatus: string(status.ConfirmationStatus),
	}

	if status.Err != nil {
		errMsg := fmt.Sprintf("transaction failed: %v", status.Err)
		snapshot.Err = &errMsg
	}

	return snapshot
}
