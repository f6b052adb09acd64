package sproxydclient

import (
	"errors"
	"fmt"
)

// Kind classifies an error without callers needing to inspect concrete types.
type Kind int

const (
	KindInvalidArgument Kind = iota
	KindInvalidDigest
	KindExpected
	KindTransport
	KindMidStream
	KindVoluntaryAbort
	KindExhausted
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindInvalidDigest:
		return "invalid_digest"
	case KindExpected:
		return "expected"
	case KindTransport:
		return "transport"
	case KindMidStream:
		return "mid_stream"
	case KindVoluntaryAbort:
		return "voluntary_abort"
	case KindExhausted:
		return "exhausted"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// InvalidArgumentError reports a caller-supplied value that fails validation
// before any network I/O is attempted (bad key length, empty bootstrap, missing size).
type InvalidArgumentError struct {
	Field  string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %s: %s", e.Field, e.Reason)
}
func (e *InvalidArgumentError) Kind() Kind    { return KindInvalidArgument }
func (e *InvalidArgumentError) Retryable() bool { return false }

// InvalidDigestError reports a caller-supplied content digest that disagreed
// with the digest computed while streaming the body. The object was already
// written, so the client best-effort deletes it.
type InvalidDigestError struct {
	Key      string
	Expected string
	Computed string
	// DeleteErr is set if the best-effort cleanup delete also failed.
	DeleteErr error
}

func (e *InvalidDigestError) Error() string {
	return fmt.Sprintf("digest mismatch for key %s: expected %s, computed %s", e.Key, e.Expected, e.Computed)
}
func (e *InvalidDigestError) Kind() Kind    { return KindInvalidDigest }
func (e *InvalidDigestError) Retryable() bool { return false }

// ExpectedError wraps a definite non-success HTTP status. Its severity is
// downgradable by a log sink because the backend gave a clear answer.
type ExpectedError struct {
	StatusCode int
	Endpoint   string
}

func (e *ExpectedError) Error() string {
	return fmt.Sprintf("expected error from %s: status %d", e.Endpoint, e.StatusCode)
}
func (e *ExpectedError) Kind() Kind    { return KindExpected }
func (e *ExpectedError) Retryable() bool { return false }

// TransportError is a pre-stream connect or socket failure, or an unexpected
// (non-4xx) status from the endpoint. Always retryable.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error talking to %s: %v", e.Endpoint, e.Err)
}
func (e *TransportError) Unwrap() error   { return e.Err }
func (e *TransportError) Kind() Kind      { return KindTransport }
func (e *TransportError) Retryable() bool { return true }

// MidStreamError is a failure after body streaming began. The body source is
// typically not replayable, so this is never retried.
type MidStreamError struct {
	Endpoint string
	Err      error
}

func (e *MidStreamError) Error() string {
	return fmt.Sprintf("mid-stream error talking to %s: %v", e.Endpoint, e.Err)
}
func (e *MidStreamError) Unwrap() error   { return e.Err }
func (e *MidStreamError) Kind() Kind      { return KindMidStream }
func (e *MidStreamError) Retryable() bool { return false }

// VoluntaryAbortError reports that the caller destroyed the input stream.
type VoluntaryAbortError struct {
	Endpoint string
}

func (e *VoluntaryAbortError) Error() string {
	return fmt.Sprintf("request to %s aborted by caller", e.Endpoint)
}
func (e *VoluntaryAbortError) Kind() Kind    { return KindVoluntaryAbort }
func (e *VoluntaryAbortError) Retryable() bool { return false }

// ExhaustedError reports that the retry budget (pool length) was reached.
type ExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("exhausted %d attempts across endpoint pool: %v", e.Attempts, e.LastErr)
}
func (e *ExhaustedError) Unwrap() error   { return e.LastErr }
func (e *ExhaustedError) Kind() Kind      { return KindExhausted }
func (e *ExhaustedError) Retryable() bool { return false }

// InternalError reports a random-source failure or a logic-invariant violation.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error during %s: %v", e.Op, e.Err)
}
func (e *InternalError) Unwrap() error   { return e.Err }
func (e *InternalError) Kind() Kind      { return KindInternal }
func (e *InternalError) Retryable() bool { return false }

// retryable is implemented by every error kind this package defines, so
// IsRetryable can classify them without a type switch.
type retryable interface {
	error
	Retryable() bool
}

// IsRetryable reports whether err carries retry semantics. An error that
// doesn't implement retryable (e.g. one from outside this package)
// is treated as non-retryable.
func IsRetryable(err error) bool {
	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}

// ErrorKind extracts the Kind carried by err, if any.
func ErrorKind(err error) (Kind, bool) {
	var ke interface{ Kind() Kind }
	if errors.As(err, &ke) {
		return ke.Kind(), true
	}
	return 0, false
}
