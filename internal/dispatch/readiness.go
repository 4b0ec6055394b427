package dispatch

import (
	"sync"
)

// State is the dispatch lifecycle state.
type State int

const (
	StateInitializing State = iota
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Readiness is the two-transition lifecycle gate for dispatch traffic:
// Initializing -> Ready or Initializing -> Failed. Constructed once at
// process start and shared by the readiness check and the dispatch entry
// point. A load failure is fatal to readiness, not to the process.
type Readiness struct {
	mu     sync.RWMutex
	state  State
	reason string
}

func NewReadiness() *Readiness {
	return &Readiness{state: StateInitializing}
}

// MarkReady transitions to Ready. A Failed gate stays failed.
func (r *Readiness) MarkReady() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateInitializing {
		r.state = StateReady
	}
}

// MarkFailed transitions to Failed with a reason for the readiness report.
func (r *Readiness) MarkFailed(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateReady {
		r.state = StateFailed
		r.reason = reason
	}
}

func (r *Readiness) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *Readiness) Ready() bool {
	return r.State() == StateReady
}

// Reason returns the failure reason, empty unless Failed.
func (r *Readiness) Reason() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.reason
}
