package coordinator

import (
	"sync"

	"github.com/meridian-cloud/contextd/internal/domain"
)

// flight is one in-progress pipeline execution. done closes when the result
// is available; joiners read result only after done.
type flight struct {
	done   chan struct{}
	result domain.Result
}

// Registry tracks in-flight requests by fingerprint so identical concurrent
// requests execute the pipeline exactly once.
type Registry struct {
	mu      sync.Mutex
	flights map[domain.Fingerprint]*flight
}

// NewRegistry creates an empty in-flight registry.
func NewRegistry() *Registry {
	return &Registry{flights: make(map[domain.Fingerprint]*flight)}
}

// Begin registers a fingerprint. The first caller becomes the leader
// (leader=true) and must call Finish on every exit path; later callers get
// the existing flight to wait on.
func (r *Registry) Begin(fp domain.Fingerprint) (*flight, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if f, ok := r.flights[fp]; ok {
		return f, false
	}

	f := &flight{done: make(chan struct{})}
	r.flights[fp] = f
	return f, true
}

// Finish publishes the leader's result to joiners and removes the entry.
// Joiners holding the flight pointer still read the result; new requests
// with the same fingerprint start a fresh execution.
func (r *Registry) Finish(fp domain.Fingerprint, f *flight, result domain.Result) {
	r.mu.Lock()
	delete(r.flights, fp)
	r.mu.Unlock()

	f.result = result
	close(f.done)
}

// Len reports the number of in-flight executions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flights)
}
