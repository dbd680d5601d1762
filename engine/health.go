package engine

import (
	"sync"
)

// Status is the engine lifecycle state. Transitions are one-directional
// except StatusError → StatusInitializing on explicit retry.
type Status int32

const (
	// StatusNotInitialized is the state before the first engine request.
	StatusNotInitialized Status = iota
	// StatusInitializing means a bootstrap attempt is in flight.
	StatusInitializing
	// StatusReady means the engine is serving queries.
	StatusReady
	// StatusDegraded means the engine is serving queries, but only because
	// the full-download fallback rescued a failed chunked attempt.
	StatusDegraded
	// StatusError means both loading paths failed.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusNotInitialized:
		return "not_initialized"
	case StatusInitializing:
		return "initializing"
	case StatusReady:
		return "ready"
	case StatusDegraded:
		return "degraded"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Serving reports whether queries can currently be executed.
func (s Status) Serving() bool {
	return s == StatusReady || s == StatusDegraded
}

// Diagnostic carries structured detail about a lifecycle transition,
// populated on fallback and failure.
type Diagnostic struct {
	// URL is the asset involved in the failure, if any.
	URL string
	// Classification is a short machine-readable cause ("config",
	// "chunked_failed", "bootstrap_failed").
	Classification string
	// Err is the underlying error.
	Err error
}

// Health is the process-wide engine status: one value, overwritten on every
// lifecycle transition, readable and subscribable by any component. It
// performs no I/O.
type Health struct {
	mu     sync.Mutex
	status Status
	diag   *Diagnostic
	subs   map[int]func(Status, *Diagnostic)
	nextID int
}

// NewHealth creates a reporter in StatusNotInitialized.
func NewHealth() *Health {
	return &Health{subs: make(map[int]func(Status, *Diagnostic))}
}

// Status returns the current lifecycle state.
func (h *Health) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Diagnostic returns the detail attached to the current state, or nil.
func (h *Health) Diagnostic() *Diagnostic {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.diag
}

// OnChange registers a callback invoked on every transition. The returned
// function unsubscribes it. Callbacks run synchronously on the goroutine
// performing the transition and must not block.
func (h *Health) OnChange(fn func(Status, *Diagnostic)) (unsubscribe func()) {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

func (h *Health) set(status Status, diag *Diagnostic) {
	h.mu.Lock()
	h.status = status
	h.diag = diag
	subs := make([]func(Status, *Diagnostic), 0, len(h.subs))
	for _, fn := range h.subs {
		subs = append(subs, fn)
	}
	h.mu.Unlock()

	for _, fn := range subs {
		fn(status, diag)
	}
}
