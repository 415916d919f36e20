// Package authcache caches verified credential and model-discovery state
// per backend, bounded by a time-to-live, so repeated readiness checks do
// not trigger redundant re-authentication round-trips.
package authcache

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"modelbridge/internal/core"
)

// DefaultTTL is the window during which a verified authentication result
// is trusted without re-checking.
const DefaultTTL = 5 * time.Minute

// Observer receives cache events for metrics collection. All methods may
// be called concurrently.
type Observer interface {
	// VerifyServedFromCache is called when Verify returns without a
	// transport call.
	VerifyServedFromCache(kind core.BackendKind)

	// VerifyTransportCall is called immediately before a discovery
	// round-trip.
	VerifyTransportCall(kind core.BackendKind)
}

// Snapshot is a read-only view of one backend's cache entry.
type Snapshot struct {
	Status         core.AuthStatus
	Models         []core.ModelDescriptor
	LastVerifiedAt time.Time
}

// entry is the mutable per-backend record. Its mutex is held for the full
// duration of a verification, serializing concurrent Verify calls for the
// same backend so they cannot race to set inconsistent status/models.
type entry struct {
	mu             sync.Mutex
	status         core.AuthStatus
	models         []core.ModelDescriptor
	lastVerifiedAt time.Time
	credentialSum  uint64
}

// Cache holds one entry per backend kind. It is explicitly constructed
// and passed by reference; there is no package-level instance.
type Cache struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	adapters map[core.BackendKind]core.Adapter
	observer Observer
	entries  map[core.BackendKind]*entry
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock injects the time source. Used by tests to prove TTL behavior.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithTTL overrides the default time-to-live.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithObserver attaches a metrics observer.
func WithObserver(o Observer) Option {
	return func(c *Cache) { c.observer = o }
}

// New creates a cache over the given adapters.
func New(adapters []core.Adapter, opts ...Option) *Cache {
	c := &Cache{
		ttl:      DefaultTTL,
		now:      time.Now,
		adapters: make(map[core.BackendKind]core.Adapter, len(adapters)),
		entries:  make(map[core.BackendKind]*entry),
	}
	for _, a := range adapters {
		c.adapters[a.Kind()] = a
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// entryFor returns the entry for kind, creating it on first use.
func (c *Cache) entryFor(kind core.BackendKind) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[kind]
	if !ok {
		e = &entry{status: core.AuthUnknown}
		c.entries[kind] = e
	}
	return e
}

// Verify returns the authentication state and model list for a backend.
//
// When force is false and the cached entry is authenticated, has models,
// matches the credential, and is within the TTL, the cached result is
// returned with no transport call. In every other case exactly one
// discovery round-trip is made. On failure the entry becomes
// unauthenticated with an empty model list, and the returned error
// distinguishes an invalid credential from a transport or format problem.
func (c *Cache) Verify(ctx context.Context, kind core.BackendKind, credential string, force bool) (core.VerifyResult, error) {
	e := c.entryFor(kind)
	e.mu.Lock()
	defer e.mu.Unlock()

	adapter, ok := c.adapters[kind]
	if !ok {
		e.status = core.AuthUnauthenticated
		e.models = nil
		return core.VerifyResult{}, core.NewConfigurationError(kind, "no adapter registered for backend")
	}

	if credential == "" && !credentialFree(adapter) {
		e.status = core.AuthUnauthenticated
		e.models = nil
		return core.VerifyResult{}, core.NewConfigurationError(kind, "no credential configured")
	}

	sum := xxhash.Sum64String(credential)

	if !force && e.fresh(c.now(), c.ttl, sum) {
		if c.observer != nil {
			c.observer.VerifyServedFromCache(kind)
		}
		return core.VerifyResult{
			Authenticated: true,
			Models:        cloneModels(e.models),
			VerifiedAt:    e.lastVerifiedAt,
			FromCache:     true,
		}, nil
	}

	if c.observer != nil {
		c.observer.VerifyTransportCall(kind)
	}

	models, err := adapter.DiscoverModels(ctx, credential)
	if err != nil {
		e.status = core.AuthUnauthenticated
		e.models = nil
		return core.VerifyResult{}, err
	}

	now := c.now()
	e.status = core.AuthAuthenticated
	e.models = cloneModels(models)
	e.lastVerifiedAt = now
	e.credentialSum = sum

	return core.VerifyResult{
		Authenticated: true,
		Models:        models,
		VerifiedAt:    now,
	}, nil
}

// fresh reports whether the entry can serve a cached result.
func (e *entry) fresh(now time.Time, ttl time.Duration, sum uint64) bool {
	return e.status == core.AuthAuthenticated &&
		len(e.models) > 0 &&
		e.credentialSum == sum &&
		now.Sub(e.lastVerifiedAt) < ttl
}

// Clear resets a backend's entry to unknown with no models and the zero
// timestamp. This is the only operation that moves status back to
// unknown, and the only one allowed to rewind lastVerifiedAt.
func (c *Cache) Clear(kind core.BackendKind) {
	e := c.entryFor(kind)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = core.AuthUnknown
	e.models = nil
	e.lastVerifiedAt = time.Time{}
	e.credentialSum = 0
}

// Invalidate marks a backend unauthenticated and drops its models so the
// next call re-verifies instead of reusing stale trust. Used when a live
// request fails with a surfaced error.
func (c *Cache) Invalidate(kind core.BackendKind) {
	e := c.entryFor(kind)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = core.AuthUnauthenticated
	e.models = nil
}

// Adopt applies an externally reported authentication status to an entry
// that has no in-memory state yet (e.g. after a process restart). This is
// a trust shortcut, not a verified state: the adopted entry keeps an
// empty model list, so readiness evaluation still performs one verify
// before the first real use.
func (c *Cache) Adopt(kind core.BackendKind, status core.AuthStatus) {
	if status != core.AuthAuthenticated && status != core.AuthUnauthenticated {
		return
	}
	e := c.entryFor(kind)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != core.AuthUnknown || len(e.models) > 0 {
		return
	}
	e.status = status
	e.lastVerifiedAt = c.now()
}

// Snapshot returns a copy of a backend's entry for readiness evaluation.
func (c *Cache) Snapshot(kind core.BackendKind) Snapshot {
	e := c.entryFor(kind)
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		Status:         e.status,
		Models:         cloneModels(e.models),
		LastVerifiedAt: e.lastVerifiedAt,
	}
}

// CredentialFingerprint returns a log-safe 64-bit fingerprint of a
// credential. The secret itself never appears in logs or cache entries.
func CredentialFingerprint(credential string) uint64 {
	return xxhash.Sum64String(credential)
}

func credentialFree(a core.Adapter) bool {
	cf, ok := a.(core.CredentialFree)
	return ok && cf.CredentialFree()
}

func cloneModels(models []core.ModelDescriptor) []core.ModelDescriptor {
	if models == nil {
		return nil
	}
	out := make([]core.ModelDescriptor, len(models))
	copy(out, models)
	return out
}
