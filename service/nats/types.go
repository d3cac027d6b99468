package nats

import (
	"time"
)

// RunEvent is the outcome of one relay run.
// This is published to the subject "relay.{network}" in JetStream.
type RunEvent struct {
	RunID   string `json:"run_id"`
	Network string `json:"network"`
	Success bool   `json:"success"`

	// Participants
	FeePayer  string `json:"fee_payer"`
	KeySource string `json:"key_source"`
	Recipient string `json:"recipient,omitempty"`

	// Amounts in lamports
	Lamports    uint64 `json:"lamports,omitempty"`
	TipLamports uint64 `json:"tip_lamports,omitempty"`

	// Outcome
	Signature          string `json:"signature,omitempty"`
	ConfirmationStatus string `json:"confirmation_status,omitempty"`
	FailedStage        string `json:"failed_stage,omitempty"`
	ErrorKind          string `json:"error_kind,omitempty"`
	Error              string `json:"error,omitempty"`

	// Timing information
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	PublishedAt time.Time `json:"published_at"`
}

// Subject returns the JetStream subject for the event.
func (e *RunEvent) Subject() string {
	return SubjectPrefix + e.Network
}
