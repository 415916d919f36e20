// Package router is the top-level entry point of the backend routing
// layer. It owns the configuration store boundary, the credential/model
// cache, the generation registry, and the adapter set, and exposes the
// operations the surrounding application calls: verify, readiness,
// model listing and selection, completion, and cancellation.
package router

import (
	"context"
	"log/slog"

	"modelbridge/internal/authcache"
	"modelbridge/internal/configstore"
	"modelbridge/internal/core"
	"modelbridge/internal/generation"
	"modelbridge/internal/readiness"
)

// Router routes requests to the configured backend adapters. Construct
// it explicitly with New; there is no package-level instance.
type Router struct {
	store    configstore.Store
	cache    *authcache.Cache
	registry *generation.Registry
	adapters map[core.BackendKind]core.Adapter
}

// New creates a router over the given collaborators.
func New(store configstore.Store, cache *authcache.Cache, registry *generation.Registry, adapters []core.Adapter) *Router {
	r := &Router{
		store:    store,
		cache:    cache,
		registry: registry,
		adapters: make(map[core.BackendKind]core.Adapter, len(adapters)),
	}
	for _, a := range adapters {
		r.adapters[a.Kind()] = a
	}
	return r
}

// adapterFor resolves the adapter for a backend kind.
func (r *Router) adapterFor(kind core.BackendKind) (core.Adapter, error) {
	a, ok := r.adapters[kind]
	if !ok {
		return nil, core.NewConfigurationError(kind, "unknown backend")
	}
	return a, nil
}

// credentialFree reports whether the backend runs without a credential.
func credentialFree(a core.Adapter) bool {
	cf, ok := a.(core.CredentialFree)
	return ok && cf.CredentialFree()
}

// Verify checks the backend's credential through the cache and writes
// the resulting authentication status back to the configuration store.
// A failed verification returns the taxonomy error alongside the
// unauthenticated result.
func (r *Router) Verify(ctx context.Context, kind core.BackendKind, force bool) (core.VerifyResult, error) {
	cfg, err := r.store.Get(ctx, kind)
	if err != nil {
		return core.VerifyResult{}, err
	}

	result, verifyErr := r.cache.Verify(ctx, kind, cfg.Credential, force)

	status := core.AuthUnauthenticated
	if verifyErr == nil {
		status = core.AuthAuthenticated
	}
	if err := r.store.SetAuthStatus(ctx, kind, status); err != nil {
		slog.Warn("failed to write auth status back to store",
			"backend", kind, "status", status, "error", err)
	}

	if verifyErr != nil {
		slog.Info("backend verification failed",
			"backend", kind,
			"credential_fp", authcache.CredentialFingerprint(cfg.Credential),
			"error", verifyErr)
		return result, verifyErr
	}

	slog.Debug("backend verified",
		"backend", kind, "models", len(result.Models), "from_cache", result.FromCache)
	return result, nil
}

// Readiness evaluates whether a backend can serve a completion now,
// spending at most one verification round-trip.
func (r *Router) Readiness(ctx context.Context, kind core.BackendKind) (readiness.Report, error) {
	adapter, err := r.adapterFor(kind)
	if err != nil {
		return readiness.Report{}, err
	}
	cfg, err := r.store.Get(ctx, kind)
	if err != nil {
		return readiness.Report{}, err
	}

	snap := r.cache.Snapshot(kind)
	in := readiness.Input{
		HasCredential: cfg.Credential != "" || credentialFree(adapter),
		SelectedModel: cfg.SelectedModel,
		Status:        snap.Status,
		ModelCount:    len(snap.Models),
	}

	report := readiness.Evaluate(ctx, in, func(ctx context.Context) (core.VerifyResult, error) {
		return r.Verify(ctx, kind, false)
	})
	return report, nil
}

// Models returns the models available on a backend, served from the
// cache when the entry is fresh.
func (r *Router) Models(ctx context.Context, kind core.BackendKind) ([]core.ModelDescriptor, error) {
	result, err := r.Verify(ctx, kind, false)
	if err != nil {
		return nil, err
	}
	return result.Models, nil
}

// SelectModel validates a model ID against the backend's discovered
// models and records the selection in the configuration store.
func (r *Router) SelectModel(ctx context.Context, kind core.BackendKind, modelID string) error {
	if modelID == "" {
		return core.NewConfigurationError(kind, "model id is required")
	}

	models, err := r.Models(ctx, kind)
	if err != nil {
		return err
	}

	found := false
	for _, m := range models {
		if m.ID == modelID {
			found = true
			break
		}
	}
	if !found {
		return core.NewConfigurationError(kind, "model not available on backend: "+modelID)
	}

	if err := r.store.SetSelectedModel(ctx, kind, modelID); err != nil {
		return err
	}
	slog.Info("model selected", "backend", kind, "model", modelID)
	return nil
}

// Complete executes a chat completion against a backend's selected
// model and returns a cancelable normalized stream. Missing credential
// or model selection fail before any network call. A surfaced taxonomy
// error invalidates the backend's cache entry so the next call
// re-verifies instead of reusing stale trust.
func (r *Router) Complete(ctx context.Context, kind core.BackendKind, messages []core.ChatMessage, opts core.CompletionOptions) (*Generation, error) {
	adapter, err := r.adapterFor(kind)
	if err != nil {
		return nil, err
	}
	cfg, err := r.store.Get(ctx, kind)
	if err != nil {
		return nil, err
	}

	if cfg.Credential == "" && !credentialFree(adapter) {
		return nil, core.NewConfigurationError(kind, "no credential configured")
	}
	if cfg.SelectedModel == "" {
		return nil, core.NewConfigurationError(kind, "no model selected")
	}

	if prober, ok := adapter.(core.AvailabilityProber); ok {
		if !prober.Available(ctx) {
			return nil, core.NewUnavailableError(kind, "backend is not available in this environment")
		}
	}

	handle := r.registry.Register(ctx)

	stream, err := adapter.Complete(handle.Context(), &core.CompletionRequest{
		Credential: cfg.Credential,
		Model:      cfg.SelectedModel,
		Messages:   messages,
		Options:    opts,
	})
	if err != nil {
		handle.Release()
		r.noteFailure(ctx, kind, err)
		return nil, err
	}

	slog.Debug("completion started",
		"backend", kind, "model", cfg.SelectedModel, "handle", handle.ID())
	return newGeneration(handle, stream), nil
}

// noteFailure propagates a surfaced adapter error into cached and
// stored state. Configuration errors are pre-call failures and leave
// the cache untouched.
func (r *Router) noteFailure(ctx context.Context, kind core.BackendKind, err error) {
	if core.IsKind(err, core.ErrorKindConfiguration) {
		return
	}
	r.cache.Invalidate(kind)
	if serr := r.store.SetAuthStatus(ctx, kind, core.AuthUnauthenticated); serr != nil {
		slog.Warn("failed to write auth status back to store",
			"backend", kind, "error", serr)
	}
}

// CancelAll triggers the cancellation signal of every in-flight
// generation and clears the registry.
func (r *Router) CancelAll() {
	n := r.registry.Len()
	r.registry.CancelAll()
	if n > 0 {
		slog.Info("cancelled in-flight generations", "count", n)
	}
}

// Active returns the number of in-flight generations.
func (r *Router) Active() int {
	return r.registry.Len()
}
