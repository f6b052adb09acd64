package sproxydclient

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // test fixture, matches the legacy digest check under test
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"testing"

	"github.com/scality/sproxydclient/internal/endpointpool"
	"github.com/scality/sproxydclient/internal/fakeendpoint"
	"github.com/scality/sproxydclient/internal/keygen"
	"github.com/scality/sproxydclient/internal/logger"
	"github.com/scality/sproxydclient/internal/pipeline"
	"github.com/scality/sproxydclient/internal/transport"
)

const testBasePath = "/proxy/arc/"

func newTestClient(t *testing.T, servers []*fakeendpoint.Server, immutable bool) *Client {
	t.Helper()

	endpoints := make([]endpointpool.Endpoint, len(servers))
	for i, s := range servers {
		endpoints[i] = s.Endpoint()
	}
	pool, err := endpointpool.New(endpoints)
	if err != nil {
		t.Fatalf("endpointpool.New: %v", err)
	}

	tr := transport.New(transport.Options{})
	t.Cleanup(tr.Destroy)

	pl := pipeline.New(tr, testBasePath, immutable, logger.Noop{})

	return &Client{
		pool:      pool,
		pipeline:  pl,
		transport: tr,
		log:       logger.Noop{},
		cos:       keygen.DefaultClassOfService,
	}
}

func newFakeServer(t *testing.T) *fakeendpoint.Server {
	t.Helper()
	s, err := fakeendpoint.New(testBasePath)
	if err != nil {
		t.Fatalf("fakeendpoint.New: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return b
}

var testParams = keygen.RoutingParams{BucketName: "vogosphere", Namespace: "poem", Owner: "jeltz"}

// round trip: PUT a random payload, GET it back byte-for-byte, DELETE
// it, then a subsequent GET returns Expected/404.
func TestPutGetDeleteRoundTrip(t *testing.T) {
	server := newFakeServer(t)
	client := newTestClient(t, []*fakeendpoint.Server{server}, false)

	payload := randomBytes(t, 9000)

	key, err := client.Put(context.Background(), bytes.NewReader(payload), int64(len(payload)), testParams, "req-1", nil)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	body, err := client.Get(context.Background(), key, nil, "req-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got, err := io.ReadAll(body)
	body.Close()
	if err != nil {
		t.Fatalf("reading GET body: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("round-tripped body differs from original (%d bytes vs %d)", len(got), len(payload))
	}

	if err := client.Delete(context.Background(), key, "req-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	_, err = client.Get(context.Background(), key, nil, "req-1")
	if err == nil {
		t.Fatal("expected GET after DELETE to fail")
	}
	var expectedErr *ExpectedError
	if !errors.As(err, &expectedErr) {
		t.Fatalf("expected *ExpectedError, got %T: %v", err, err)
	}
	if expectedErr.StatusCode != 404 {
		t.Fatalf("expected status 404, got %d", expectedErr.StatusCode)
	}
}

// PutWithDigest succeeds and is readable back when the caller's digest
// matches what was actually streamed.
func TestPutWithDigestMatches(t *testing.T) {
	server := newFakeServer(t)
	client := newTestClient(t, []*fakeendpoint.Server{server}, false)

	payload := randomBytes(t, 4096)
	sum := md5.Sum(payload) //nolint:gosec
	digest := hex.EncodeToString(sum[:])

	key, err := client.PutWithDigest(context.Background(), bytes.NewReader(payload), int64(len(payload)), testParams, digest, "req-1", nil)
	if err != nil {
		t.Fatalf("PutWithDigest: %v", err)
	}

	body, err := client.Get(context.Background(), key, nil, "req-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer body.Close()
	got, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("reading GET body: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("round-tripped body differs from original (%d bytes vs %d)", len(got), len(payload))
	}
}

// PutWithDigest surfaces an *InvalidDigestError and best-effort deletes the
// object when the caller's digest doesn't match what was actually streamed.
func TestPutWithDigestMismatchDeletesObject(t *testing.T) {
	server := newFakeServer(t)
	client := newTestClient(t, []*fakeendpoint.Server{server}, false)

	payload := randomBytes(t, 512)
	wrongDigest := hex.EncodeToString(make([]byte, 16))

	_, err := client.PutWithDigest(context.Background(), bytes.NewReader(payload), int64(len(payload)), testParams, wrongDigest, "req-1", nil)
	if err == nil {
		t.Fatal("expected a digest mismatch to surface as an error")
	}
	var digestErr *InvalidDigestError
	if !errors.As(err, &digestErr) {
		t.Fatalf("expected *InvalidDigestError, got %T: %v", err, err)
	}
	if digestErr.DeleteErr != nil {
		t.Fatalf("expected the best-effort cleanup delete to succeed, got: %v", digestErr.DeleteErr)
	}

	_, err = client.Get(context.Background(), digestErr.Key, nil, "req-1")
	if err == nil {
		t.Fatal("expected GET after a digest-mismatch cleanup delete to fail")
	}
}

// PutEmptyObject followed by GetHead returns the metadata hex exactly;
// probing an unknown key returns Expected/404.
func TestPutEmptyObjectThenHead(t *testing.T) {
	server := newFakeServer(t)
	client := newTestClient(t, []*fakeendpoint.Server{server}, false)

	key, err := client.Put(context.Background(), bytes.NewReader(nil), 0, testParams, "req-1", nil)
	if err != nil {
		t.Fatalf("Put (to obtain a valid key): %v", err)
	}

	metadataHex := "deadbeefdeadbeefdeadbeefdeadbeef"
	if err := client.PutEmptyObject(context.Background(), key, metadataHex, "req-1"); err != nil {
		t.Fatalf("PutEmptyObject: %v", err)
	}

	got, err := client.GetHead(context.Background(), key, "req-1")
	if err != nil {
		t.Fatalf("GetHead: %v", err)
	}
	if got != metadataHex {
		t.Fatalf("GetHead returned %q, want %q", got, metadataHex)
	}

	otherKey, _ := keygen.Generate(testParams, keygen.DefaultClassOfService, nil)
	_, err = client.GetHead(context.Background(), otherKey.String(), "req-1")
	if err == nil {
		t.Fatal("expected GetHead on an unwritten key to fail")
	}
	var expectedErr *ExpectedError
	if !errors.As(err, &expectedErr) {
		t.Fatalf("expected *ExpectedError, got %T: %v", err, err)
	}
	if expectedErr.StatusCode != 404 {
		t.Fatalf("expected status 404, got %d", expectedErr.StatusCode)
	}
}

// failover success: the first endpoint always resets the connection
// before responding; the PUT still succeeds via the second, healthy one.
func TestPutFailsOverOnPreStreamReset(t *testing.T) {
	bad := newFakeServer(t)
	good := newFakeServer(t)
	bad.SetFault(fakeendpoint.FaultResetBeforeBody, 0)

	client := newTestClient(t, []*fakeendpoint.Server{bad, good}, false)

	payload := randomBytes(t, 512)
	_, err := client.Put(context.Background(), bytes.NewReader(payload), int64(len(payload)), testParams, "req-1", nil)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	if len(bad.Requests()) != 0 {
		t.Fatalf("expected the faulty endpoint to never complete a parsed request, got %d", len(bad.Requests()))
	}
	if len(good.Requests()) != 1 {
		t.Fatalf("expected exactly one request to reach the healthy endpoint, got %d", len(good.Requests()))
	}
}

// mid-stream failure: the endpoint reads part of the body then resets.
// This must NOT fail over - the caller gets a non-retryable error and the
// second endpoint is never contacted.
func TestPutMidStreamFailureDoesNotFailover(t *testing.T) {
	bad := newFakeServer(t)
	unreached := newFakeServer(t)
	bad.SetFault(fakeendpoint.FaultResetDuringBody, 4)

	client := newTestClient(t, []*fakeendpoint.Server{bad, unreached}, false)

	payload := randomBytes(t, 4096)
	_, err := client.Put(context.Background(), bytes.NewReader(payload), int64(len(payload)), testParams, "req-1", nil)
	if err == nil {
		t.Fatal("expected a mid-stream PUT failure to surface as an error")
	}
	if IsRetryable(err) {
		t.Fatalf("expected a non-retryable error, got retryable: %v", err)
	}

	if len(unreached.Requests()) != 0 {
		t.Fatalf("expected the second endpoint to never be contacted, got %d requests", len(unreached.Requests()))
	}
}

// DELETE against an endpoint that replies 423 (immutable,
// locked) completes without error.
func TestDeleteOfImmutableObjectSucceeds(t *testing.T) {
	server := newFakeServer(t)
	client := newTestClient(t, []*fakeendpoint.Server{server}, true)

	payload := randomBytes(t, 128)
	key, err := client.Put(context.Background(), bytes.NewReader(payload), int64(len(payload)), testParams, "req-1", nil)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := client.Delete(context.Background(), key, "req-1"); err != nil {
		t.Fatalf("expected DELETE of a 423-locked object to succeed, got: %v", err)
	}
}

func TestPutRejectsInvalidParams(t *testing.T) {
	server := newFakeServer(t)
	client := newTestClient(t, []*fakeendpoint.Server{server}, false)

	_, err := client.Put(context.Background(), bytes.NewReader(nil), 0, keygen.RoutingParams{}, "req-1", nil)
	if err == nil {
		t.Fatal("expected Put with empty RoutingParams to be rejected")
	}
	var invalid *InvalidArgumentError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected *InvalidArgumentError, got %T", err)
	}
}

func TestGetRejectsMalformedKey(t *testing.T) {
	server := newFakeServer(t)
	client := newTestClient(t, []*fakeendpoint.Server{server}, false)

	_, err := client.Get(context.Background(), "not-a-valid-key", nil, "req-1")
	if err == nil {
		t.Fatal("expected Get with a malformed key to be rejected before any network I/O")
	}
}
