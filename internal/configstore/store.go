// Package configstore is the boundary to the external configuration
// storage that owns per-backend settings: credential, selected model, and
// last-known authentication status. The routing core reads configuration
// through this interface and writes back status and selection updates
// after each verification; it never persists anything else.
package configstore

import (
	"context"
	"sync"

	"modelbridge/internal/core"
)

// Store is the external configuration storage interface.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the configuration for a backend. A backend that has
	// never been configured yields a zero-value record, not an error.
	Get(ctx context.Context, kind core.BackendKind) (core.BackendConfig, error)

	// Put replaces the configuration for cfg.Kind.
	Put(ctx context.Context, cfg core.BackendConfig) error

	// SetAuthStatus records the outcome of a verification.
	SetAuthStatus(ctx context.Context, kind core.BackendKind, status core.AuthStatus) error

	// SetSelectedModel records the user's model selection.
	SetSelectedModel(ctx context.Context, kind core.BackendKind, model string) error

	// Close releases any resources held by the store.
	Close() error
}

// Memory is an in-memory Store for tests and ephemeral runs.
type Memory struct {
	mu       sync.RWMutex
	backends map[core.BackendKind]core.BackendConfig
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		backends: make(map[core.BackendKind]core.BackendConfig),
	}
}

// Get returns the configuration for a backend.
func (m *Memory) Get(_ context.Context, kind core.BackendKind) (core.BackendConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.backends[kind]
	if !ok {
		return core.BackendConfig{Kind: kind}, nil
	}
	return cfg, nil
}

// Put replaces the configuration for cfg.Kind.
func (m *Memory) Put(_ context.Context, cfg core.BackendConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backends[cfg.Kind] = cfg
	return nil
}

// SetAuthStatus records the outcome of a verification.
func (m *Memory) SetAuthStatus(_ context.Context, kind core.BackendKind, status core.AuthStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg := m.backends[kind]
	cfg.Kind = kind
	cfg.AuthStatus = status
	m.backends[kind] = cfg
	return nil
}

// SetSelectedModel records the user's model selection.
func (m *Memory) SetSelectedModel(_ context.Context, kind core.BackendKind, model string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg := m.backends[kind]
	cfg.Kind = kind
	cfg.SelectedModel = model
	m.backends[kind] = cfg
	return nil
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error {
	return nil
}
