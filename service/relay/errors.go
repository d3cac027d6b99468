package relay

import (
	"errors"
	"fmt"

	"github.com/brojonat/txrelay/service/gateway"
	"github.com/brojonat/txrelay/service/solana"
)

var (
	// ErrPrecondition aborts a run before any mutating network call:
	// missing configuration or an underfunded fee payer on mainnet.
	ErrPrecondition = errors.New("precondition failed")

	// ErrTransactionFailed means the ledger reports the transaction landed
	// with an error.
	ErrTransactionFailed = errors.New("transaction failed on chain")
)

// ErrorKind classifies a run failure.
type ErrorKind string

const (
	KindPrecondition         ErrorKind = "precondition"
	KindGateway              ErrorKind = "gateway"
	KindMalformedTransaction ErrorKind = "malformed_transaction"
	KindSubmission           ErrorKind = "submission"
	KindLedger               ErrorKind = "ledger"
	KindTransactionFailed    ErrorKind = "transaction_failed"
)

// StageError records the state a run failed in.
type StageError struct {
	Stage State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Kind maps an error to its failure kind. Errors that match none of the
// known sentinels are treated as ledger failures, since the ledger RPC is
// the only collaborator without its own sentinel.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPrecondition):
		return KindPrecondition
	case errors.Is(err, gateway.ErrSubmission):
		return KindSubmission
	case errors.Is(err, solana.ErrMalformedTransaction), errors.Is(err, gateway.ErrMalformedResult):
		return KindMalformedTransaction
	case errors.Is(err, gateway.ErrGateway):
		return KindGateway
	case errors.Is(err, ErrTransactionFailed):
		return KindTransactionFailed
	default:
		return KindLedger
	}
}
