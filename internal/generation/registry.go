// Package generation tracks in-flight completion requests and provides
// cooperative, registry-wide cancellation.
package generation

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Handle represents one outstanding completion request. It owns a
// cancellation signal derived from the caller's context; the signal is
// triggered by Cancel, by CancelAll, or by the parent context.
type Handle struct {
	id       string
	ctx      context.Context
	cancel   context.CancelFunc
	registry *Registry
}

// ID returns the unique identifier of this handle.
func (h *Handle) ID() string {
	return h.id
}

// Context returns the context carrying this handle's cancellation signal.
func (h *Handle) Context() context.Context {
	return h.ctx
}

// Cancelled reports whether the cancellation signal has been triggered.
func (h *Handle) Cancelled() bool {
	return h.ctx.Err() != nil
}

// Cancel triggers this handle's signal only. Per-handle cancellation is a
// strict superset of the registry-wide CancelAll.
func (h *Handle) Cancel() {
	h.cancel()
}

// Release cancels the handle's context and removes it from the registry.
// Called when the stream completes or is closed.
func (h *Handle) Release() {
	h.cancel()
	if h.registry != nil {
		h.registry.remove(h)
	}
}

// Registry is the process-wide collection of active generation handles.
// Cancellation is cooperative: stream consumers check the handle's
// signal between fragment pulls and terminate cleanly once triggered.
type Registry struct {
	mu      sync.Mutex
	handles map[*Handle]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handles: make(map[*Handle]struct{}),
	}
}

// Register adds and returns a new handle whose signal is not yet
// triggered. The handle's context is derived from ctx.
func (r *Registry) Register(ctx context.Context) *Handle {
	hctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		id:       uuid.NewString(),
		ctx:      hctx,
		cancel:   cancel,
		registry: r,
	}

	r.mu.Lock()
	r.handles[h] = struct{}{}
	r.mu.Unlock()

	return h
}

// CancelAll triggers every registered handle's signal and clears the
// collection atomically.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	handles := r.handles
	r.handles = make(map[*Handle]struct{})
	r.mu.Unlock()

	for h := range handles {
		h.cancel()
	}
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

func (r *Registry) remove(h *Handle) {
	r.mu.Lock()
	delete(r.handles, h)
	r.mu.Unlock()
}
