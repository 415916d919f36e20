// Package backends provides a factory for creating backend adapter
// instances. Adapter packages register themselves from init functions.
package backends

import (
	"fmt"
	"net/http"

	"modelbridge/internal/core"
)

// Options holds construction options common to all adapters.
type Options struct {
	// BaseURL overrides the adapter's default API base URL.
	BaseURL string

	// HTTPClient overrides the default pooled HTTP client. Tests inject
	// httptest clients here.
	HTTPClient *http.Client
}

// Builder creates an adapter instance from options.
type Builder func(opts Options) core.Adapter

// registry holds all registered adapter builders.
var registry = make(map[core.BackendKind]Builder)

// Register allows adapter packages to register themselves.
// Called from init() functions in the adapter packages.
func Register(kind core.BackendKind, builder Builder) {
	registry[kind] = builder
}

// New instantiates an adapter for the given backend kind.
func New(kind core.BackendKind, opts Options) (core.Adapter, error) {
	builder, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("unknown backend kind: %s", kind)
	}
	return builder(opts), nil
}

// ListRegistered returns all registered backend kinds.
func ListRegistered() []core.BackendKind {
	kinds := make([]core.BackendKind, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	return kinds
}
