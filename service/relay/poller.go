package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/brojonat/txrelay/service/solana"
	solanago "github.com/gagliardetto/solana-go"
)

// DefaultStatusGrace is how long the poller waits after submission before
// its single status lookup.
const DefaultStatusGrace = 2 * time.Second

// StatusPoller takes one status snapshot after a grace period. It never loops:
// a signature that is not found yet is reported as such.
type StatusPoller struct {
	ledger Ledger
	grace  time.Duration
	logger *slog.Logger
}

// NewStatusPoller creates a poller. A negative grace is treated as zero.
func NewStatusPoller(ledger Ledger, grace time.Duration, logger *slog.Logger) *StatusPoller {
	if grace < 0 {
		grace = 0
	}
	return &StatusPoller{ledger: ledger, grace: grace, logger: logger}
}

// Poll waits the grace period, then performs exactly one status lookup.
// It returns early with ctx.Err() if the context ends during the wait.
func (p *StatusPoller) Poll(ctx context.Context, signature solanago.Signature) (*solana.StatusSnapshot, error) {
	if p.grace > 0 {
		timer := time.NewTimer(p.grace)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	snapshot, err := p.ledger.GetSignatureStatus(ctx, signature)
	if err != nil {
		return nil, err
	}

	p.logger.InfoContext(ctx, "status snapshot",
		"signature", snapshot.Signature,
		"found", snapshot.Found,
		"confirmation_status", snapshot.ConfirmationStatus,
		"slot", snapshot.Slot,
	)
	return snapshot, nil
}
