package relay

import (
	"context"
	"testing"
	"time"

	"github.com/brojonat/txrelay/service/solana"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestStatusPoller_SingleLookupAfterGrace(t *testing.T) {
	ledger := &mockLedger{}
	sig, err := newKeypair(t).PrivateKey.Sign([]byte("poll"))
	require.NoError(t, err)
	ledger.On("GetSignatureStatus", mock.Anything, sig).
		Return(&solana.StatusSnapshot{Signature: sig.String(), Found: false}, nil).Once()

	grace := 30 * time.Millisecond
	poller := NewStatusPoller(ledger, grace, discardLogger())

	start := time.Now()
	snapshot, err := poller.Poll(context.Background(), sig)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), grace)
	assert.False(t, snapshot.Found, "not found is a result, not an error")
	ledger.AssertNumberOfCalls(t, "GetSignatureStatus", 1)
}

func TestStatusPoller_ContextCancelledDuringGrace(t *testing.T) {
	ledger := &mockLedger{}
	poller := NewStatusPoller(ledger, time.Hour, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	sig, err := newKeypair(t).PrivateKey.Sign([]byte("poll"))
	require.NoError(t, err)

	_, err = poller.Poll(ctx, sig)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	ledger.AssertNumberOfCalls(t, "GetSignatureStatus", 0)
}

func TestStatusPoller_LedgerError(t *testing.T) {
	ledger := &mockLedger{}
	ledger.On("GetSignatureStatus", mock.Anything, mock.Anything).Return(nil, assert.AnError).Once()
	poller := NewStatusPoller(ledger, -time.Second, discardLogger())

	sig, err := newKeypair(t).PrivateKey.Sign([]byte("poll"))
	require.NoError(t, err)

	snapshot, err := poller.Poll(context.Background(), sig)
	assert.Nil(t, snapshot)
	assert.ErrorIs(t, err, assert.AnError)
	ledger.AssertNumberOfCalls(t, "GetSignatureStatus", 1)
}
