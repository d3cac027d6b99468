package solana

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/brojonat/txrelay/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRPCClient implements RPCClient for testing.
// It's behavior-focused: we set what it should return, not verify call sequences.
type mockRPCClient struct {
	balance  *rpc.GetBalanceResult
	statuses *rpc.GetSignatureStatusesResult
	err      error

	balanceCalls int
	statusCalls  int
}

func (m *mockRPCClient) GetBalance(
	ctx context.Context,
	account solana.PublicKey,
	commitment rpc.CommitmentType,
) (*rpc.GetBalanceResult, error) {
	m.balanceCalls++
	if m.err != nil {
		return nil, m.err
	}
	return m.balance, nil
}

func (m *mockRPCClient) GetSignatureStatuses(
	ctx context.Context,
	searchTransactionHistory bool,
	signatures ...solana.Signature,
) (*rpc.GetSignatureStatusesResult, error) {
	m.statusCalls++
	if m.err != nil {
		return nil, m.err
	}
	return m.statuses, nil
}

func newTestClient(mock *mockRPCClient) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(mock, "devnet", metrics.NewMetrics(prometheus.NewRegistry()), logger)
}

func testSignature(t *testing.T) solana.Signature {
	t.Helper()
	sig, err := newTestKey(t).Sign([]byte("status lookup"))
	require.NoError(t, err)
	return sig
}

func TestGetBalance(t *testing.T) {
	ctx := context.Background()
	account := newTestKey(t).PublicKey()

	t.Run("returns lamports", func(t *testing.T) {
		mock := &mockRPCClient{balance: &rpc.GetBalanceResult{Value: 25_000_000}}
		balance, err := newTestClient(mock).GetBalance(ctx, account)
		require.NoError(t, err)
		assert.Equal(t, uint64(25_000_000), balance)
		assert.Equal(t, 1, mock.balanceCalls)
	})

	t.Run("propagates RPC error", func(t *testing.T) {
		mock := &mockRPCClient{err: assert.AnError}
		_, err := newTestClient(mock).GetBalance(ctx, account)
		require.Error(t, err)
		assert.ErrorIs(t, err, assert.AnError)
	})

	t.Run("empty response", func(t *testing.T) {
		mock := &mockRPCClient{}
		_, err := newTestClient(mock).GetBalance(ctx, account)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty response")
	})
}

func TestGetSignatureStatus(t *testing.T) {
	ctx := context.Background()
	sig := testSignature(t)
	confirmations := uint64(3)

	t.Run("confirmed transaction", func(t *testing.T) {
		mock := &mockRPCClient{statuses: &rpc.GetSignatureStatusesResult{
			Value: []*rpc.SignatureStatusesResult{{
				Slot:               1234,
				Confirmations:      &confirmations,
				ConfirmationStatus: rpc.ConfirmationStatusConfirmed,
			}},
		}}

		snapshot, err := newTestClient(mock).GetSignatureStatus(ctx, sig)
		require.NoError(t, err)
		assert.True(t, snapshot.Found)
		assert.Equal(t, sig.String(), snapshot.Signature)
		assert.Equal(t, uint64(1234), snapshot.Slot)
		assert.Equal(t, "confirmed", snapshot.ConfirmationStatus)
		assert.Nil(t, snapshot.Err)
		assert.Equal(t, 1, mock.statusCalls)
	})

	t.Run("failed transaction", func(t *testing.T) {
		mock := &mockRPCClient{statuses: &rpc.GetSignatureStatusesResult{
			Value: []*rpc.SignatureStatusesResult{{
				Slot: 99,
				Err:  map[string]interface{}{"InstructionError": []interface{}{0, "Custom error"}},
			}},
		}}

		snapshot, err := newTestClient(mock).GetSignatureStatus(ctx, sig)
		require.NoError(t, err)
		assert.True(t, snapshot.Found)
		require.NotNil(t, snapshot.Err)
		assert.Contains(t, *snapshot.Err, "InstructionError")
	})

	t.Run("unknown signature yields not found", func(t *testing.T) {
		mock := &mockRPCClient{statuses: &rpc.GetSignatureStatusesResult{
			Value: []*rpc.SignatureStatusesResult{nil},
		}}

		snapshot, err := newTestClient(mock).GetSignatureStatus(ctx, sig)
		require.NoError(t, err)
		assert.False(t, snapshot.Found)
	})

	t.Run("rpc not found error yields not found", func(t *testing.T) {
		mock := &mockRPCClient{err: rpc.ErrNotFound}

		snapshot, err := newTestClient(mock).GetSignatureStatus(ctx, sig)
		require.NoError(t, err)
		assert.False(t, snapshot.Found)
	})

	t.Run("transport error", func(t *testing.T) {
		mock := &mockRPCClient{err: assert.AnError}

		snapshot, err := newTestClient(mock).GetSignatureStatus(ctx, sig)
		require.Error(t, err)
		assert.Nil(t, snapshot)
	})
}
