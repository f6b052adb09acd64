// Package batch splits a BatchDelete key list into bounded sub-requests and
// dispatches them with bounded concurrency via golang.org/x/sync/errgroup -
// the idiomatic way to say "at most N in flight, first error wins" in Go.
package batch

import (
	"context"

	"golang.org/x/sync/errgroup"
)

const (
	// MaxKeysPerBatch bounds each sub-request's key count.
	MaxKeysPerBatch = 1000
	// MaxConcurrentBatches bounds how many sub-requests are in flight at once.
	MaxConcurrentBatches = 5
)

// Split partitions keys into chunks of at most MaxKeysPerBatch.
func Split(keys []string) [][]string {
	if len(keys) == 0 {
		return nil
	}
	var batches [][]string
	for start := 0; start < len(keys); start += MaxKeysPerBatch {
		end := start + MaxKeysPerBatch
		if end > len(keys) {
			end = len(keys)
		}
		batches = append(batches, keys[start:end])
	}
	return batches
}

// DeleteFunc deletes one batch of keys.
type DeleteFunc func(ctx context.Context, batch []string) error

// Dispatch runs deleteFn over every batch of keys with at most
// MaxConcurrentBatches in flight, dispatched in order but allowed to
// complete out of order. It returns the first error encountered, if any,
// and only after every batch has completed.
func Dispatch(ctx context.Context, keys []string, deleteFn DeleteFunc) error {
	batches := Split(keys)
	if len(batches) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxConcurrentBatches)

	for _, b := range batches {
		b := b
		g.Go(func() error {
			return deleteFn(gctx, b)
		})
	}

	return g.Wait()
}
