// Package pipeline builds one HTTP request per attempt, drives body
// streaming gated on the transport having a connection ready to write to,
// and classifies the outcome into the retryable/non-retryable buckets the
// failover controller needs.
//
// The body-streaming gate (see the design notes on "stream piping and the
// connect gate") is implemented without any explicit connect/reuse event:
// net/http's own Transport never calls Read on a request body until it has
// acquired a connection - reused or freshly dialed. Wrapping the caller's
// reader to record the first Read is therefore sufficient to tell a
// pre-stream failure (nothing read yet, retryable) from a mid-stream one
// (at least one byte already consumed, not retryable).
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/scality/sproxydclient/internal/endpointpool"
	"github.com/scality/sproxydclient/internal/logger"
	"github.com/scality/sproxydclient/internal/transport"
	"github.com/scality/sproxydclient/pkg/format"
	"github.com/scality/sproxydclient/pkg/pool"
)

// batchPayloadPool reuses the buffers BatchDelete marshals its JSON body
// into - batches run frequently and can carry up to MaxKeysPerBatch keys,
// making this a worthwhile allocation to pool rather than discard per call.
var batchPayloadPool = pool.NewLitePool(func() *bytes.Buffer {
	return new(bytes.Buffer)
})

const (
	HeaderContentLength  = "Content-Length"
	HeaderContentType    = "Content-Type"
	HeaderRequestUIDs    = "X-Scal-Request-Uids"
	HeaderTraceIDs       = "X-Scal-Trace-Ids"
	HeaderReplicaPolicy  = "X-Scal-Replica-Policy"
	HeaderUserMetadata   = "x-scal-usermd"
	HeaderRange          = "Range"

	ReplicaPolicyImmutable = "immutable"

	ContentTypeOctetStream = "application/octet-stream"
	ContentTypeJSON        = "application/json"

	BatchDeleteKey = ".batch_delete"
	HealthcheckKey = ".conf"

	StatusLocked = 423
)

// Pipeline executes a single attempt against one endpoint. It holds no
// retry state - that's the FailoverController's job.
type Pipeline struct {
	transport *transport.Transport
	basePath  string
	immutable bool
	log       logger.Sink
}

// New builds a Pipeline. basePath must end in "/" (e.g. "/proxy/arc/").
func New(t *transport.Transport, basePath string, immutable bool, log logger.Sink) *Pipeline {
	return &Pipeline{transport: t, basePath: basePath, immutable: immutable, log: log}
}

// WithLog returns a shallow copy of p that logs to log instead - used to
// scope a single attempt's log lines to one request-uid without mutating
// the Pipeline shared across every call.
func (p *Pipeline) WithLog(log logger.Sink) *Pipeline {
	clone := *p
	clone.log = log
	return &clone
}

func (p *Pipeline) url(endpoint endpointpool.Endpoint, key string) string {
	return fmt.Sprintf("http://%s:%d%s%s", endpoint.Host, endpoint.Port, p.basePath, key)
}

func (p *Pipeline) confURL(endpoint endpointpool.Endpoint) string {
	return fmt.Sprintf("http://%s:%d%s%s", endpoint.Host, endpoint.Port, p.basePath, HealthcheckKey)
}

func (p *Pipeline) setCommonHeaders(req *http.Request, reqUID string) {
	if p.immutable {
		req.Header.Set(HeaderReplicaPolicy, ReplicaPolicyImmutable)
	}
	if reqUID != "" {
		// for a colon-joined chain only the first UID is sent; the rest of
		// the chain is dropped.
		req.Header.Set(HeaderRequestUIDs, firstUID(reqUID))
		req.Header.Set(HeaderTraceIDs, firstUID(reqUID))
	}
}

func firstUID(reqUID string) string {
	if idx := strings.IndexByte(reqUID, ':'); idx >= 0 {
		return reqUID[:idx]
	}
	return reqUID
}

// trackingReader marks streamingStarted true the moment the transport reads
// its first byte from the caller's body.
type trackingReader struct {
	r       io.Reader
	started *bool
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n > 0 {
		*t.started = true
	}
	return n, err
}

// Put streams body (size bytes) to endpoint under key. Returns an error
// classified per the outcome table: TransportError if the failure happened
// before any body byte was read, MidStreamError if after, VoluntaryAbortError
// if ctx was the cause and started is true, ExpectedError for a definite
// non-success status.
func (p *Pipeline) Put(ctx context.Context, endpoint endpointpool.Endpoint, key string, body io.Reader, size int64, reqUID string) (*Outcome, error) {
	p.log.Debug("put attempt", "endpoint", endpoint.String(), "key", key, "size", format.Bytes(uint64(size)), "request_uid", reqUID)
	start := time.Now()

	started := false
	tr := &trackingReader{r: body, started: &started}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, p.url(endpoint, key), tr)
	if err != nil {
		return nil, err
	}
	req.ContentLength = size
	req.Header.Set(HeaderContentLength, strconv.FormatInt(size, 10))
	req.Header.Set(HeaderContentType, ContentTypeOctetStream)
	p.setCommonHeaders(req, reqUID)

	resp, err := p.transport.RoundTrip(req)
	if err != nil {
		return p.classifyTransportErr(ctx, endpoint, err, started)
	}
	defer resp.Body.Close()

	elapsed := time.Since(start)
	if resp.StatusCode == http.StatusOK {
		p.log.Debug("put succeeded", "endpoint", endpoint.String(), "key", key, "duration", format.Duration(elapsed))
		return &Outcome{StatusCode: resp.StatusCode, StreamingStarted: true, Duration: elapsed}, nil
	}
	return nil, p.expectedOrUnexpected(endpoint, resp)
}

// PutEmpty writes a zero-length object carrying an opaque usermd header.
func (p *Pipeline) PutEmpty(ctx context.Context, endpoint endpointpool.Endpoint, key, metadataHex, reqUID string) (*Outcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, p.url(endpoint, key), http.NoBody)
	if err != nil {
		return nil, err
	}
	req.ContentLength = 0
	req.Header.Set(HeaderContentLength, "0")
	req.Header.Set(HeaderUserMetadata, metadataHex)
	p.setCommonHeaders(req, reqUID)

	resp, err := p.transport.RoundTrip(req)
	if err != nil {
		return p.classifyTransportErr(ctx, endpoint, err, false)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return &Outcome{StatusCode: resp.StatusCode}, nil
	}
	return nil, p.expectedOrUnexpected(endpoint, resp)
}

// Get issues a (possibly ranged) GET. On success the response body is
// returned to the caller unbuffered - the pipeline never reads it.
func (p *Pipeline) Get(ctx context.Context, endpoint endpointpool.Endpoint, key string, rng *ByteRange, reqUID string) (*Outcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url(endpoint, key), nil)
	if err != nil {
		return nil, err
	}
	if rng != nil {
		req.Header.Set(HeaderRange, fmt.Sprintf("bytes=%d-%d", rng.Start, rng.End))
	}
	p.setCommonHeaders(req, reqUID)

	resp, err := p.transport.RoundTrip(req)
	if err != nil {
		return p.classifyTransportErr(ctx, endpoint, err, false)
	}

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusPartialContent {
		return &Outcome{StatusCode: resp.StatusCode, Response: resp.Body}, nil
	}
	defer resp.Body.Close()
	return nil, p.expectedOrUnexpected(endpoint, resp)
}

// Head probes user metadata without transferring the object body.
func (p *Pipeline) Head(ctx context.Context, endpoint endpointpool.Endpoint, key, reqUID string) (*Outcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url(endpoint, key), nil)
	if err != nil {
		return nil, err
	}
	p.setCommonHeaders(req, reqUID)

	resp, err := p.transport.RoundTrip(req)
	if err != nil {
		return p.classifyTransportErr(ctx, endpoint, err, false)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return &Outcome{StatusCode: resp.StatusCode, UserMetadataHex: resp.Header.Get(HeaderUserMetadata)}, nil
	}
	return nil, p.expectedOrUnexpected(endpoint, resp)
}

// Delete removes an object. A 423 (immutable replica locked elsewhere) is
// treated as success - the eventual-absence guarantee the caller wanted
// still holds.
func (p *Pipeline) Delete(ctx context.Context, endpoint endpointpool.Endpoint, key, reqUID string) (*Outcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, p.url(endpoint, key), nil)
	if err != nil {
		return nil, err
	}
	p.setCommonHeaders(req, reqUID)

	resp, err := p.transport.RoundTrip(req)
	if err != nil {
		return p.classifyTransportErr(ctx, endpoint, err, false)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == StatusLocked {
		return &Outcome{StatusCode: resp.StatusCode}, nil
	}
	return nil, p.expectedOrUnexpected(endpoint, resp)
}

type batchDeleteBody struct {
	Keys []string `json:"keys"`
}

// BatchDelete posts a JSON batch of keys to the fixed .batch_delete key.
func (p *Pipeline) BatchDelete(ctx context.Context, endpoint endpointpool.Endpoint, keys []string, reqUID string) (*Outcome, error) {
	buf := batchPayloadPool.Get()
	defer batchPayloadPool.Put(buf)

	if err := json.NewEncoder(buf).Encode(batchDeleteBody{Keys: keys}); err != nil {
		return nil, err
	}
	payloadLen := buf.Len()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url(endpoint, BatchDeleteKey), bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, err
	}
	req.ContentLength = int64(payloadLen)
	req.Header.Set(HeaderContentLength, strconv.Itoa(payloadLen))
	req.Header.Set(HeaderContentType, ContentTypeJSON)
	p.setCommonHeaders(req, reqUID)
	p.log.Debug("batch delete attempt", "endpoint", endpoint.String(), "keys", len(keys), "payload", format.Bytes(uint64(payloadLen)))

	resp, err := p.transport.RoundTrip(req)
	if err != nil {
		return p.classifyTransportErr(ctx, endpoint, err, false)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return &Outcome{StatusCode: resp.StatusCode}, nil
	}
	return nil, p.expectedOrUnexpected(endpoint, resp)
}

// Healthcheck GETs the fixed .conf path and returns the raw response to the
// caller.
func (p *Pipeline) Healthcheck(ctx context.Context, endpoint endpointpool.Endpoint, reqUID string) (*Outcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.confURL(endpoint), nil)
	if err != nil {
		return nil, err
	}
	p.setCommonHeaders(req, reqUID)

	resp, err := p.transport.RoundTrip(req)
	if err != nil {
		return p.classifyTransportErr(ctx, endpoint, err, false)
	}

	if resp.StatusCode == http.StatusOK {
		return &Outcome{StatusCode: resp.StatusCode, Response: resp.Body}, nil
	}
	defer resp.Body.Close()
	return nil, p.expectedOrUnexpected(endpoint, resp)
}

// expectedOrUnexpected turns a non-success status into the right error kind.
// 4xx is a definite answer from the backend (expected, non-retryable); 5xx
// is unexpected and retryable.
func (p *Pipeline) expectedOrUnexpected(endpoint endpointpool.Endpoint, resp *http.Response) error {
	status := resp.StatusCode
	if status >= 400 && status < 500 {
		p.log.Debug("expected non-success status", "endpoint", endpoint.String(), "status", status)
		return &expectedErr{StatusCode: status, Endpoint: endpoint.String()}
	}
	p.log.Info("unexpected status from endpoint", "endpoint", endpoint.String(), "status", status)
	return &unexpectedErr{StatusCode: status, Endpoint: endpoint.String()}
}

// classifyTransportErr distinguishes a pre-stream failure (retryable) from a
// mid-stream one (not retryable), and recognises caller-initiated
// cancellation as a voluntary abort once streaming has begun.
func (p *Pipeline) classifyTransportErr(ctx context.Context, endpoint endpointpool.Endpoint, err error, started bool) (*Outcome, error) {
	if started && ctx.Err() != nil {
		p.log.Info("voluntary abort", "endpoint", endpoint.String())
		return nil, &voluntaryAbortErr{Endpoint: endpoint.String()}
	}
	if started {
		p.log.Error("mid-stream transport failure", "endpoint", endpoint.String(), "error", err)
		return nil, &midStreamErr{Endpoint: endpoint.String(), Err: err}
	}
	p.log.Debug("pre-stream transport failure", "endpoint", endpoint.String(), "error", err)
	return nil, &transportErr{Endpoint: endpoint.String(), Err: err}
}

// The five concrete error kinds below mirror the public package's error
// taxonomy (see errors.go) but stay private to this package so pipeline has
// no import-cycle back to the root client package. client.go translates
// them at the boundary.
type expectedErr struct {
	StatusCode int
	Endpoint   string
}

func (e *expectedErr) Error() string {
	return fmt.Sprintf("expected error from %s: status %d", e.Endpoint, e.StatusCode)
}

type unexpectedErr struct {
	StatusCode int
	Endpoint   string
}

func (e *unexpectedErr) Error() string {
	return fmt.Sprintf("unexpected status from %s: %d", e.Endpoint, e.StatusCode)
}

type transportErr struct {
	Endpoint string
	Err      error
}

func (e *transportErr) Error() string { return fmt.Sprintf("transport error talking to %s: %v", e.Endpoint, e.Err) }
func (e *transportErr) Unwrap() error { return e.Err }

type midStreamErr struct {
	Endpoint string
	Err      error
}

func (e *midStreamErr) Error() string { return fmt.Sprintf("mid-stream error talking to %s: %v", e.Endpoint, e.Err) }
func (e *midStreamErr) Unwrap() error { return e.Err }

type voluntaryAbortErr struct {
	Endpoint string
}

func (e *voluntaryAbortErr) Error() string { return fmt.Sprintf("request to %s aborted by caller", e.Endpoint) }

// ExpectedStatus extracts the status code from an expectedErr, if err is one.
func ExpectedStatus(err error) (int, bool) {
	if e, ok := err.(*expectedErr); ok {
		return e.StatusCode, true
	}
	return 0, false
}

// IsExpected reports whether err is a definite non-success status (4xx).
func IsExpected(err error) bool {
	_, ok := err.(*expectedErr)
	return ok
}

// IsUnexpected reports whether err is an unexpected 5xx/transport-adjacent
// status - retryable per the outcome table.
func IsUnexpected(err error) bool {
	_, ok := err.(*unexpectedErr)
	return ok
}

// UnexpectedStatus extracts the status code from an unexpectedErr, if any.
func UnexpectedStatus(err error) (int, bool) {
	if e, ok := err.(*unexpectedErr); ok {
		return e.StatusCode, true
	}
	return 0, false
}

// IsTransport reports whether err is a pre-stream connect/transport failure.
func IsTransport(err error) bool {
	_, ok := err.(*transportErr)
	return ok
}

// IsMidStream reports whether err happened after body streaming began.
func IsMidStream(err error) bool {
	_, ok := err.(*midStreamErr)
	return ok
}

// IsVoluntaryAbort reports whether err was caused by caller cancellation.
func IsVoluntaryAbort(err error) bool {
	_, ok := err.(*voluntaryAbortErr)
	return ok
}

// ErrEndpoint extracts the endpoint string carried by any outcome error
// returned from this package, letting client.go build public error values
// without needing access to the unexported concrete types.
func ErrEndpoint(err error) (string, bool) {
	switch e := err.(type) {
	case *expectedErr:
		return e.Endpoint, true
	case *unexpectedErr:
		return e.Endpoint, true
	case *transportErr:
		return e.Endpoint, true
	case *midStreamErr:
		return e.Endpoint, true
	case *voluntaryAbortErr:
		return e.Endpoint, true
	default:
		return "", false
	}
}

// Unwrap1 returns the wrapped transport/mid-stream error, if any.
func Unwrap1(err error) error {
	switch e := err.(type) {
	case *transportErr:
		return e.Err
	case *midStreamErr:
		return e.Err
	default:
		return err
	}
}
