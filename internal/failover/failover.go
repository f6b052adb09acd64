// Package failover wraps one logical operation in the retry loop over the
// endpoint pool, applying the retryability rules the pipeline's errors
// carry. One structural note: this pool's head rotates in place (the
// endpoint multiset never shrinks across the call) rather than removing
// endpoints from a per-call slice, because later operations must still see
// every configured endpoint.
package failover

import (
	"context"

	"github.com/scality/sproxydclient/internal/endpointpool"
	"github.com/scality/sproxydclient/internal/logger"
)

// Attempt is invoked once per endpoint in the loop. It should return the
// endpoint's error unwrapped, already classified by the pipeline package
// (transport/mid-stream/expected/unexpected).
type Attempt func(ctx context.Context, endpoint endpointpool.Endpoint) (any, error)

// Classifier reports whether an error returned by Attempt should trigger a
// rotate-and-retry, as opposed to being delivered to the caller immediately.
type Classifier interface {
	// IsExpected reports a definite non-success answer - never retried.
	IsExpected(err error) bool
	// IsRetryable reports an unexpected failure worth retrying on the next
	// endpoint (5xx, pre-stream transport error). Only consulted when
	// IsExpected is false.
	IsRetryable(err error) bool
}

// Run drives attempt across pool, rotating past the endpoint that just
// failed on each retryable failure, until success, a non-retryable failure,
// or the retry budget (pool length) is exhausted.
func Run(ctx context.Context, pool *endpointpool.Pool, classifier Classifier, log logger.Sink, attempt Attempt) (any, error) {
	started := pool.Current()
	current := started
	retries := 0
	maxRetries := pool.Len()

	for {
		result, err := attempt(ctx, current)
		if err == nil {
			return result, nil
		}

		if classifier.IsExpected(err) {
			// definite answer from the backend - no retry
			return nil, err
		}

		if !classifier.IsRetryable(err) {
			return nil, err
		}

		if retries >= maxRetries {
			return nil, &ExhaustedError{Attempts: retries + 1, LastErr: err}
		}

		if pool.RotatePast(current) {
			log.Info("rotated past failed endpoint", "endpoint", current.String(), "attempt", retries+1)
		}
		retries++
		current = pool.Current()
	}
}

// ExhaustedError reports the retry budget (pool length) was reached.
type ExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	return "failover: exhausted retry budget: " + e.LastErr.Error()
}

func (e *ExhaustedError) Unwrap() error { return e.LastErr }
