// Package endpointpool holds the ordered backend endpoint list and the
// rotating "current" head used by the failover controller. The pool never
// grows or shrinks over the client's lifetime - rotation only changes which
// endpoint is preferred next.
package endpointpool

import (
	"fmt"
	"sync/atomic"
)

// Endpoint is one HTTP target. Immutable once constructed.
type Endpoint struct {
	Host string
	Port uint16
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// Pool holds the ordered endpoint list plus an atomic head index. Safe for
// concurrent use: the only mutation, RotatePast, uses a compare-and-swap so
// two parallel failures against the same head rotate it at most once.
type Pool struct {
	endpoints []Endpoint
	head      atomic.Uint64 // index into endpoints
}

// New builds a pool from a non-empty, already-ordered endpoint list. Callers
// that want initial load spread across endpoints should Shuffle the slice
// before calling New - the pool itself never reorders beyond rotation.
func New(endpoints []Endpoint) (*Pool, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("endpointpool: bootstrap list must not be empty")
	}
	cp := make([]Endpoint, len(endpoints))
	copy(cp, endpoints)
	return &Pool{endpoints: cp}, nil
}

// Len returns the number of endpoints in the pool. The retry budget in the
// failover controller is bounded by this value.
func (p *Pool) Len() int {
	return len(p.endpoints)
}

// Current returns the endpoint currently preferred for new attempts.
func (p *Pool) Current() Endpoint {
	idx := p.head.Load() % uint64(len(p.endpoints))
	return p.endpoints[idx]
}

// RotatePast advances the head past failed, but only if failed is still the
// head - a concurrent attempt may have already rotated past it. Returns
// whether this call actually moved the head, purely for observability.
func (p *Pool) RotatePast(failed Endpoint) bool {
	n := uint64(len(p.endpoints))
	for {
		cur := p.head.Load()
		if p.endpoints[cur%n] != failed {
			return false
		}
		if p.head.CompareAndSwap(cur, cur+1) {
			return true
		}
		// another goroutine rotated between Load and CompareAndSwap; re-check
		// whether failed is still at head before retrying.
	}
}

// All returns a defensive copy of the endpoint list, head-ordered starting
// from the current head - useful for logging/diagnostics only.
func (p *Pool) All() []Endpoint {
	n := len(p.endpoints)
	out := make([]Endpoint, n)
	head := int(p.head.Load() % uint64(n))
	for i := 0; i < n; i++ {
		out[i] = p.endpoints[(head+i)%n]
	}
	return out
}
