// Package sproxydclient is a client library for an HTTP-accessible object
// storage backend reached through one or more routing endpoints. It derives
// routing keys, fails over across the configured endpoint list on transport
// and server errors, and streams object bodies without buffering them.
package sproxydclient

import (
	"context"
	"crypto/md5" //nolint:gosec // caller-supplied legacy digest check, not a security boundary
	"encoding/hex"
	"fmt"
	"io"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/scality/sproxydclient/config"
	"github.com/scality/sproxydclient/internal/batch"
	"github.com/scality/sproxydclient/internal/endpointpool"
	"github.com/scality/sproxydclient/internal/failover"
	"github.com/scality/sproxydclient/internal/keygen"
	"github.com/scality/sproxydclient/internal/logger"
	"github.com/scality/sproxydclient/internal/pipeline"
	"github.com/scality/sproxydclient/internal/transport"
)

// ByteRange re-exports the pipeline's inclusive byte range so callers never
// need to import an internal package for a ranged Get.
type ByteRange = pipeline.ByteRange

// Client is the public API: Put, PutEmptyObject, Get, GetHead, Delete,
// BatchDelete, Healthcheck and Destroy, wired over an endpoint pool that
// fails over per the retry rules in FailoverController.
type Client struct {
	pool      *endpointpool.Pool
	pipeline  *pipeline.Pipeline
	transport *transport.Transport
	log       logger.Sink
	cos       byte
}

// New constructs a Client from validated Options. The bootstrap list is
// shuffled once so that, absent failures, initial load spreads roughly
// evenly across endpoints instead of every client preferring bootstrap[0].
func New(opts config.Options, log logger.Sink) (*Client, error) {
	if err := opts.Validate(); err != nil {
		return nil, &InvalidArgumentError{Field: "Options", Reason: err.Error()}
	}
	if log == nil {
		log = logger.Noop{}
	}

	endpoints, err := parseBootstrap(opts.Bootstrap)
	if err != nil {
		return nil, &InvalidArgumentError{Field: "Bootstrap", Reason: err.Error()}
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	endpointpool.Shuffle(rng, endpoints)

	pool, err := endpointpool.New(endpoints)
	if err != nil {
		return nil, &InvalidArgumentError{Field: "Bootstrap", Reason: err.Error()}
	}

	t := transport.New(transport.Options{})
	p := pipeline.New(t, opts.EffectivePath(), opts.Immutable, log)

	return &Client{
		pool:      pool,
		pipeline:  p,
		transport: t,
		log:       log,
		cos:       opts.EffectiveCos(),
	}, nil
}

func parseBootstrap(bootstrap []string) ([]endpointpool.Endpoint, error) {
	out := make([]endpointpool.Endpoint, 0, len(bootstrap))
	for _, entry := range bootstrap {
		host, portStr, err := net.SplitHostPort(entry)
		if err != nil {
			return nil, fmt.Errorf("bootstrap entry %q: %w", entry, err)
		}
		port, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("bootstrap entry %q: invalid port: %w", entry, err)
		}
		out = append(out, endpointpool.Endpoint{Host: host, Port: uint16(port)})
	}
	return out, nil
}

// pipelineClassifier adapts the pipeline package's error predicates to the
// Classifier interface failover.Run expects.
type pipelineClassifier struct{}

func (pipelineClassifier) IsExpected(err error) bool {
	return pipeline.IsExpected(err)
}

func (pipelineClassifier) IsRetryable(err error) bool {
	return pipeline.IsTransport(err) || pipeline.IsUnexpected(err)
}

// translateErr maps a pipeline/failover-internal error to the public error
// taxonomy in errors.go. Pipeline's concrete error types stay unexported to
// avoid an import cycle, so this boundary function is the only place that
// needs to know about both sides.
func translateErr(err error) error {
	if err == nil {
		return nil
	}

	if fe, ok := err.(*failover.ExhaustedError); ok {
		return &ExhaustedError{Attempts: fe.Attempts, LastErr: translateErr(fe.LastErr)}
	}

	endpoint, _ := pipeline.ErrEndpoint(err)

	switch {
	case pipeline.IsExpected(err):
		status, _ := pipeline.ExpectedStatus(err)
		return &ExpectedError{StatusCode: status, Endpoint: endpoint}
	case pipeline.IsUnexpected(err):
		status, _ := pipeline.UnexpectedStatus(err)
		return &TransportError{Endpoint: endpoint, Err: fmt.Errorf("unexpected status %d", status)}
	case pipeline.IsTransport(err):
		return &TransportError{Endpoint: endpoint, Err: pipeline.Unwrap1(err)}
	case pipeline.IsMidStream(err):
		return &MidStreamError{Endpoint: endpoint, Err: pipeline.Unwrap1(err)}
	case pipeline.IsVoluntaryAbort(err):
		return &VoluntaryAbortError{Endpoint: endpoint}
	default:
		return &InternalError{Op: "pipeline", Err: err}
	}
}

func validateKey(key string) error {
	if !keygen.ValidKeyString(key) {
		return &InvalidArgumentError{Field: "key", Reason: "must be exactly 40 hex characters"}
	}
	return nil
}

// requestPipeline returns the pipeline to use for one operation, scoping its
// log lines to reqUID when c.log implements RequestLoggerFactory so every
// line an attempt emits carries the caller's request-uid.
func (c *Client) requestPipeline(reqUID string) *pipeline.Pipeline {
	f, ok := c.log.(logger.RequestLoggerFactory)
	if !ok || reqUID == "" {
		return c.pipeline
	}
	return c.pipeline.WithLog(f.NewRequestLogger(reqUID))
}

// Put streams body (exactly size bytes) to a generated key derived from
// params, optionally overriding the configured class-of-service byte via
// cos. It returns the key the object was written under.
func (c *Client) Put(ctx context.Context, body io.Reader, size int64, params keygen.RoutingParams, reqUID string, cos *byte) (string, error) {
	if params.BucketName == "" || params.Namespace == "" || params.Owner == "" {
		return "", &InvalidArgumentError{Field: "params", Reason: "BucketName, Namespace and Owner must all be non-empty"}
	}
	if size < 0 {
		return "", &InvalidArgumentError{Field: "size", Reason: "must not be negative"}
	}
	if body == nil {
		return "", &InvalidArgumentError{Field: "body", Reason: "must not be nil"}
	}

	effectiveCos := c.cos
	if cos != nil {
		effectiveCos = *cos
	}

	key, err := keygen.Generate(params, effectiveCos, nil)
	if err != nil {
		return "", &InternalError{Op: "keygen", Err: err}
	}
	keyStr := key.String()

	pl := c.requestPipeline(reqUID)
	_, err = failover.Run(ctx, c.pool, pipelineClassifier{}, c.log, func(ctx context.Context, endpoint endpointpool.Endpoint) (any, error) {
		return pl.Put(ctx, endpoint, keyStr, body, size, reqUID)
	})
	if err != nil {
		return "", translateErr(err)
	}
	return keyStr, nil
}

// PutWithDigest is the legacy PUT path: it streams body the same way Put
// does, but also computes an MD5 digest of the bytes as they're streamed out
// and compares it against the caller-supplied expectedDigestHex once the
// write completes. On a mismatch the object was already written, so it
// best-effort deletes the key before returning an *InvalidDigestError - a
// failed cleanup delete is recorded on the error rather than hiding the
// digest mismatch behind a different failure.
func (c *Client) PutWithDigest(ctx context.Context, body io.Reader, size int64, params keygen.RoutingParams, expectedDigestHex, reqUID string, cos *byte) (string, error) {
	hasher := md5.New() //nolint:gosec
	key, err := c.Put(ctx, io.TeeReader(body, hasher), size, params, reqUID, cos)
	if err != nil {
		return "", err
	}

	computedDigestHex := hex.EncodeToString(hasher.Sum(nil))
	if strings.EqualFold(computedDigestHex, expectedDigestHex) {
		return key, nil
	}

	deleteErr := c.Delete(ctx, key, reqUID)
	return "", &InvalidDigestError{
		Key:       key,
		Expected:  expectedDigestHex,
		Computed:  computedDigestHex,
		DeleteErr: deleteErr,
	}
}

// PutEmptyObject writes a zero-length object under an already-generated key,
// carrying metadataHex as opaque user metadata.
func (c *Client) PutEmptyObject(ctx context.Context, key, metadataHex, reqUID string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	pl := c.requestPipeline(reqUID)
	_, err := failover.Run(ctx, c.pool, pipelineClassifier{}, c.log, func(ctx context.Context, endpoint endpointpool.Endpoint) (any, error) {
		return pl.PutEmpty(ctx, endpoint, key, metadataHex, reqUID)
	})
	return translateErr(err)
}

// Get fetches an object, optionally ranged. The returned ReadCloser is
// unbuffered and must be closed by the caller; closing it early is the
// caller's cancellation mechanism.
func (c *Client) Get(ctx context.Context, key string, rng *ByteRange, reqUID string) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	pl := c.requestPipeline(reqUID)
	result, err := failover.Run(ctx, c.pool, pipelineClassifier{}, c.log, func(ctx context.Context, endpoint endpointpool.Endpoint) (any, error) {
		return pl.Get(ctx, endpoint, key, rng, reqUID)
	})
	if err != nil {
		return nil, translateErr(err)
	}
	return result.(*pipeline.Outcome).Response, nil
}

// GetHead probes an object's user metadata without transferring its body.
func (c *Client) GetHead(ctx context.Context, key, reqUID string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}

	pl := c.requestPipeline(reqUID)
	result, err := failover.Run(ctx, c.pool, pipelineClassifier{}, c.log, func(ctx context.Context, endpoint endpointpool.Endpoint) (any, error) {
		return pl.Head(ctx, endpoint, key, reqUID)
	})
	if err != nil {
		return "", translateErr(err)
	}
	return result.(*pipeline.Outcome).UserMetadataHex, nil
}

// Delete removes an object. A 423 (immutable, locked elsewhere) is treated
// as success by the pipeline - the caller only ever sees a final error if
// the backend gave a different definite answer or every endpoint failed.
func (c *Client) Delete(ctx context.Context, key, reqUID string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	pl := c.requestPipeline(reqUID)
	_, err := failover.Run(ctx, c.pool, pipelineClassifier{}, c.log, func(ctx context.Context, endpoint endpointpool.Endpoint) (any, error) {
		return pl.Delete(ctx, endpoint, key, reqUID)
	})
	return translateErr(err)
}

// BatchDelete removes many objects, splitting keys into bounded sub-requests
// dispatched with bounded concurrency (see internal/batch). It returns the
// first sub-request's error, if any, only after every sub-request has
// completed.
func (c *Client) BatchDelete(ctx context.Context, keys []string, reqUID string) error {
	for _, k := range keys {
		if err := validateKey(k); err != nil {
			return err
		}
	}

	pl := c.requestPipeline(reqUID)
	return batch.Dispatch(ctx, keys, func(ctx context.Context, sub []string) error {
		_, err := failover.Run(ctx, c.pool, pipelineClassifier{}, c.log, func(ctx context.Context, endpoint endpointpool.Endpoint) (any, error) {
			return pl.BatchDelete(ctx, endpoint, sub, reqUID)
		})
		return translateErr(err)
	})
}

// Healthcheck GETs the fixed config path on one reachable endpoint and
// returns the raw response body to the caller.
func (c *Client) Healthcheck(ctx context.Context, reqUID string) (io.ReadCloser, error) {
	pl := c.requestPipeline(reqUID)
	result, err := failover.Run(ctx, c.pool, pipelineClassifier{}, c.log, func(ctx context.Context, endpoint endpointpool.Endpoint) (any, error) {
		return pl.Healthcheck(ctx, endpoint, reqUID)
	})
	if err != nil {
		return nil, translateErr(err)
	}
	return result.(*pipeline.Outcome).Response, nil
}

// Destroy releases the connection pool. In-flight operations surface
// transport errors through their normal paths; it does not cancel them.
func (c *Client) Destroy() {
	c.transport.Destroy()
	c.log.Info("client destroyed, idle connections drained")
}
