package router

import (
	"io"
	"sync"

	"modelbridge/internal/core"
	"modelbridge/internal/generation"
)

// Generation is one in-flight completion: a normalized fragment stream
// bound to a cancelable handle. The cancellation signal is checked
// between fragment pulls; once triggered, the sequence ends with io.EOF
// exactly as a backend-terminated stream does.
type Generation struct {
	handle *generation.Handle
	stream core.FragmentStream

	mu   sync.Mutex
	done bool
}

func newGeneration(handle *generation.Handle, stream core.FragmentStream) *Generation {
	return &Generation{handle: handle, stream: stream}
}

// ID returns the generation's handle ID.
func (g *Generation) ID() string {
	return g.handle.ID()
}

// Next returns the next text fragment, or io.EOF when the stream ends
// or the generation has been cancelled.
func (g *Generation) Next() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.done {
		return "", io.EOF
	}
	if g.handle.Cancelled() {
		g.finishLocked()
		return "", io.EOF
	}

	frag, err := g.stream.Next()
	if err != nil {
		g.finishLocked()
		return "", io.EOF
	}
	return frag, nil
}

// Cancel triggers this generation's cancellation signal only.
func (g *Generation) Cancel() {
	g.handle.Cancel()
}

// Close releases the stream and deregisters the handle. Safe to call
// more than once.
func (g *Generation) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done {
		return nil
	}
	g.finishLocked()
	return nil
}

func (g *Generation) finishLocked() {
	g.done = true
	_ = g.stream.Close()
	g.handle.Release()
}
