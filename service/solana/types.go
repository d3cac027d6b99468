package solana

import (
	"errors"

	"github.com/gagliardetto/solana-go"
)

// ErrMalformedTransaction is returned when transaction bytes cannot be decoded.
// Bytes coming back from the gateway that fail here indicate a contract violation.
var ErrMalformedTransaction = errors.New("malformed transaction")

// StatusSnapshot is one observation of a transaction's status on the ledger.
// This is our domain model, independent of the RPC response format.
type StatusSnapshot struct {
	Signature          string  `json:"signature"`
	Found              bool    `json:"found"`
	Slot               uint64  `json:"slot,omitempty"`
	Confirmations      *uint64 `json:"confirmations,omitempty"` // nil once rooted
	ConfirmationStatus string  `json:"confirmation_status,omitempty"`
	Err                *string `json:"err,omitempty"` // nil if the transaction succeeded
}

// Tip is an optional secondary transfer appended after the main transfer.
type Tip struct {
	Recipient solana.PublicKey
	Lamports  uint64
}

// TransferSummary describes one System Program transfer found in a transaction.
type TransferSummary struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Lamports uint64 `json:"lamports"`
}

// TransactionSummary is a read-only view of a decoded transaction, used for logging
// what the gateway assembled.
type TransactionSummary struct {
	FeePayer           string            `json:"fee_payer"`
	Blockhash          string            `json:"blockhash"`
	Versioned          bool              `json:"versioned"`
	InstructionCount   int               `json:"instruction_count"`
	RequiredSignatures int               `json:"required_signatures"`
	Programs           []string          `json:"programs"`
	Transfers          []TransferSummary `json:"transfers"`
	HasComputeBudget   bool              `json:"has_compute_budget"`
}
