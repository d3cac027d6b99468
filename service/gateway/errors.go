package gateway

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrGateway covers transport failures, timeouts, non-2xx responses and
	// envelope errors on buildGatewayTransaction.
	ErrGateway = errors.New("gateway error")

	// ErrSubmission is an envelope error on sendTransaction. HTTP 200 does
	// not rule it out.
	ErrSubmission = errors.New("submission rejected")

	// ErrMalformedResult means the envelope result had a shape we do not accept.
	ErrMalformedResult = errors.New("malformed gateway result")
)

// Error carries the upstream diagnostics of a failed gateway call.
type Error struct {
	Method     string
	StatusCode int    // zero when no HTTP response was received
	Code       int    // JSON-RPC error code, if any
	Message    string // JSON-RPC error message or a local description
	Body       string // raw upstream body, truncated

	kind         error
	cause        error
	fromEnvelope bool
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Method, e.kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Code != 0 {
		msg += fmt.Sprintf(" code %d", e.Code)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	// A JSON-RPC error object already carries what the body says.
	if e.Body != "" && !e.fromEnvelope {
		msg += ": " + oneLine(e.Body)
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

// Unwrap exposes both the sentinel kind and the underlying cause to errors.Is.
func (e *Error) Unwrap() []error {
	errs := []error{e.kind}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

// oneLine collapses whitespace so HTML or multi-line bodies stay on one log line.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
