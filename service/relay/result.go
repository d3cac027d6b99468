package relay

import (
	"time"

	"github.com/brojonat/txrelay/service/keysource"
	"github.com/brojonat/txrelay/service/nats"
	"github.com/brojonat/txrelay/service/solana"
)

// State is a step of the relay state machine.
type State string

const (
	StateResolvingKey         State = "resolving_key"
	StateSafetyGate           State = "safety_gate"
	StateBuilding             State = "building"
	StateAwaitingGatewayBuild State = "awaiting_gateway_build"
	StateSigning              State = "signing"
	StateSending              State = "sending"
	StatePollingStatus        State = "polling_status"
	StateDone                 State = "done"
)

// StageTiming is how long one state took.
type StageTiming struct {
	Stage      State `json:"stage"`
	DurationMS int64 `json:"duration_ms"`
}

// Result is the terminal report of one run. Signature is kept whenever the
// gateway accepted the transaction, including runs that failed afterwards.
type Result struct {
	RunID   string         `json:"run_id"`
	Network solana.Network `json:"network"`
	Success bool           `json:"success"`

	FeePayer  string           `json:"fee_payer,omitempty"`
	KeySource keysource.Source `json:"key_source,omitempty"`
	Balance   *uint64          `json:"balance_lamports,omitempty"` // only read on mainnet

	Recipient   string `json:"recipient,omitempty"`
	Lamports    uint64 `json:"lamports,omitempty"`
	TipLamports uint64 `json:"tip_lamports,omitempty"`

	Built          *solana.TransactionSummary `json:"built,omitempty"`
	MissingSigners []string                   `json:"missing_signers,omitempty"`
	Signature      string                     `json:"signature,omitempty"`
	Status         *solana.StatusSnapshot     `json:"status,omitempty"`

	FailedStage State     `json:"failed_stage,omitempty"`
	ErrorKind   ErrorKind `json:"error_kind,omitempty"`
	Error       string    `json:"error,omitempty"`
	Err         error     `json:"-"`

	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Stages     []StageTiming `json:"stages"`
}

// StoppedBeforeNetwork reports whether the run failed its local preconditions
// and so never touched the ledger, the gateway or the event stream.
func (r *Result) StoppedBeforeNetwork() bool {
	return !r.Success && r.FailedStage == StateResolvingKey
}

// Event converts the result to the event published on NATS.
func (r *Result) Event() *nats.RunEvent {
	event := &nats.RunEvent{
		RunID:       r.RunID,
		Network:     string(r.Network),
		Success:     r.Success,
		FeePayer:    r.FeePayer,
		KeySource:   string(r.KeySource),
		Recipient:   r.Recipient,
		Lamports:    r.Lamports,
		TipLamports: r.TipLamports,
		Signature:   r.Signature,
		FailedStage: string(r.FailedStage),
		ErrorKind:   string(r.ErrorKind),
		Error:       r.Error,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
	}
	if r.Status != nil {
		event.ConfirmationStatus = r.Status.ConfirmationStatus
	}
	return event
}
