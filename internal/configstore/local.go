package configstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"modelbridge/internal/core"
)

// fileDocument is the on-disk layout of the local store.
type fileDocument struct {
	Version   int                                     `json:"version"`
	UpdatedAt time.Time                               `json:"updated_at"`
	Backends  map[core.BackendKind]core.BackendConfig `json:"backends"`
}

// Local implements Store using a JSON file. Suitable for single-instance
// deployments; writes are atomic via temp file + rename.
type Local struct {
	mu       sync.Mutex
	filePath string
}

// NewLocal creates a file-based store at filePath.
func NewLocal(filePath string) *Local {
	return &Local{filePath: filePath}
}

// Get returns the configuration for a backend.
func (l *Local) Get(_ context.Context, kind core.BackendKind) (core.BackendConfig, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc, err := l.read()
	if err != nil {
		return core.BackendConfig{}, err
	}
	cfg, ok := doc.Backends[kind]
	if !ok {
		return core.BackendConfig{Kind: kind}, nil
	}
	return cfg, nil
}

// Put replaces the configuration for cfg.Kind.
func (l *Local) Put(_ context.Context, cfg core.BackendConfig) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.update(func(doc *fileDocument) {
		doc.Backends[cfg.Kind] = cfg
	})
}

// SetAuthStatus records the outcome of a verification.
func (l *Local) SetAuthStatus(_ context.Context, kind core.BackendKind, status core.AuthStatus) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.update(func(doc *fileDocument) {
		cfg := doc.Backends[kind]
		cfg.Kind = kind
		cfg.AuthStatus = status
		doc.Backends[kind] = cfg
	})
}

// SetSelectedModel records the user's model selection.
func (l *Local) SetSelectedModel(_ context.Context, kind core.BackendKind, model string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.update(func(doc *fileDocument) {
		cfg := doc.Backends[kind]
		cfg.Kind = kind
		cfg.SelectedModel = model
		doc.Backends[kind] = cfg
	})
}

// Close is a no-op for the local store.
func (l *Local) Close() error {
	return nil
}

// read loads the document, returning an empty one when no file exists yet.
func (l *Local) read() (*fileDocument, error) {
	doc := &fileDocument{
		Version:  1,
		Backends: make(map[core.BackendKind]core.BackendConfig),
	}

	if l.filePath == "" {
		return doc, nil
	}

	data, err := os.ReadFile(l.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil // No store file yet, not an error
		}
		return nil, fmt.Errorf("failed to read config store: %w", err)
	}

	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("failed to parse config store: %w", err)
	}
	if doc.Backends == nil {
		doc.Backends = make(map[core.BackendKind]core.BackendConfig)
	}
	return doc, nil
}

// update applies fn to the document and writes it back atomically.
func (l *Local) update(fn func(*fileDocument)) error {
	doc, err := l.read()
	if err != nil {
		return err
	}

	fn(doc)
	doc.UpdatedAt = time.Now().UTC()

	if l.filePath == "" {
		return nil
	}

	dir := filepath.Dir(l.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config store directory: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config store: %w", err)
	}

	// Write atomically using temp file + rename
	tmpFile := l.filePath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config store: %w", err)
	}
	if err := os.Rename(tmpFile, l.filePath); err != nil {
		os.Remove(tmpFile) // Clean up temp file
		return fmt.Errorf("failed to rename config store: %w", err)
	}

	return nil
}
