package endpointpool

import (
	"math/rand"
	"sync"
	"testing"
)

func testEndpoints() []Endpoint {
	return []Endpoint{
		{Host: "a", Port: 9001},
		{Host: "b", Port: 9000},
		{Host: "c", Port: 9002},
	}
}

func TestNewRejectsEmpty(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error constructing pool from empty endpoint list")
	}
}

func TestCurrentWrapsAround(t *testing.T) {
	p, err := New(testEndpoints())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	first := p.Current()
	for i := 0; i < p.Len(); i++ {
		p.RotatePast(p.Current())
	}
	if p.Current() != first {
		t.Fatalf("after a full rotation, expected to be back at %v, got %v", first, p.Current())
	}
}

// rotatePast(e) is idempotent: calling it twice with the same
// failed endpoint rotates the head at most once.
func TestRotatePastIdempotent(t *testing.T) {
	p, err := New(testEndpoints())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	head := p.Current()

	first := p.RotatePast(head)
	if !first {
		t.Fatal("expected first RotatePast(head) to move the head")
	}
	second := p.RotatePast(head)
	if second {
		t.Fatal("expected second RotatePast(head) to be a no-op")
	}
}

func TestRotatePastConcurrentOnlyRotatesOnce(t *testing.T) {
	p, err := New(testEndpoints())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	head := p.Current()

	var wg sync.WaitGroup
	var successCount int32
	var mu sync.Mutex

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if p.RotatePast(head) {
				mu.Lock()
				successCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successCount != 1 {
		t.Fatalf("expected exactly one goroutine to win the rotation, got %d", successCount)
	}
}

func TestAllPreservesMultisetHeadOrdered(t *testing.T) {
	p, err := New(testEndpoints())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.RotatePast(p.Current())

	all := p.All()
	if len(all) != p.Len() {
		t.Fatalf("All() length = %d, want %d", len(all), p.Len())
	}
	if all[0] != p.Current() {
		t.Fatalf("All()[0] = %v, want current head %v", all[0], p.Current())
	}
}

func TestShuffleIsAPermutation(t *testing.T) {
	endpoints := testEndpoints()
	cp := make([]Endpoint, len(endpoints))
	copy(cp, endpoints)

	rng := rand.New(rand.NewSource(1))
	Shuffle(rng, cp)

	if len(cp) != len(endpoints) {
		t.Fatalf("Shuffle changed slice length: got %d, want %d", len(cp), len(endpoints))
	}
	for _, e := range endpoints {
		found := false
		for _, got := range cp {
			if got == e {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("Shuffle lost endpoint %v", e)
		}
	}
}
