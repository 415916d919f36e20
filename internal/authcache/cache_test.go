package authcache

import (
	"context"
	"net/http"
	"testing"
	"time"

	"modelbridge/internal/core"
)

// fakeClock is an injectable time source.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// fakeAdapter counts discovery calls and returns canned results.
type fakeAdapter struct {
	kind     core.BackendKind
	calls    int
	models   []core.ModelDescriptor
	err      error
	credFree bool
}

func (a *fakeAdapter) Kind() core.BackendKind { return a.kind }

func (a *fakeAdapter) DiscoverModels(_ context.Context, _ string) ([]core.ModelDescriptor, error) {
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	return a.models, nil
}

func (a *fakeAdapter) Complete(_ context.Context, _ *core.CompletionRequest) (core.FragmentStream, error) {
	return nil, core.NewConfigurationError(a.kind, "not implemented")
}

func (a *fakeAdapter) CredentialFree() bool { return a.credFree }

func testModels() []core.ModelDescriptor {
	return []core.ModelDescriptor{
		{ID: "model-a", DisplayName: "Model A"},
		{ID: "model-b", DisplayName: "Model B", ContextLength: 128000},
	}
}

func newTestCache(adapter *fakeAdapter, clock *fakeClock) *Cache {
	return New([]core.Adapter{adapter}, WithClock(clock.Now))
}

func TestVerify(t *testing.T) {
	t.Run("FirstCallHitsTransport", func(t *testing.T) {
		adapter := &fakeAdapter{kind: core.BackendOpenAI, models: testModels()}
		clock := &fakeClock{now: time.Unix(1700000000, 0)}
		cache := newTestCache(adapter, clock)

		res, err := cache.Verify(context.Background(), core.BackendOpenAI, "sk-valid", false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !res.Authenticated {
			t.Error("expected authenticated result")
		}
		if len(res.Models) != 2 {
			t.Errorf("got %d models, want 2", len(res.Models))
		}
		if adapter.calls != 1 {
			t.Errorf("got %d transport calls, want 1", adapter.calls)
		}
		if !res.VerifiedAt.Equal(clock.now) {
			t.Errorf("lastVerifiedAt not stamped to now: %v", res.VerifiedAt)
		}
	})

	t.Run("WithinTTLServedFromCache", func(t *testing.T) {
		adapter := &fakeAdapter{kind: core.BackendOpenAI, models: testModels()}
		clock := &fakeClock{now: time.Unix(1700000000, 0)}
		cache := newTestCache(adapter, clock)
		ctx := context.Background()

		if _, err := cache.Verify(ctx, core.BackendOpenAI, "sk-valid", false); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		clock.Advance(1 * time.Minute)
		res, err := cache.Verify(ctx, core.BackendOpenAI, "sk-valid", false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if adapter.calls != 1 {
			t.Errorf("got %d transport calls, want 1 (cache hit must issue zero)", adapter.calls)
		}
		if !res.FromCache {
			t.Error("expected result flagged as served from cache")
		}
		if len(res.Models) != 2 || res.Models[0].ID != "model-a" {
			t.Errorf("cached models mismatch: %v", res.Models)
		}
	})

	t.Run("ExpiredTTLReverifies", func(t *testing.T) {
		adapter := &fakeAdapter{kind: core.BackendOpenAI, models: testModels()}
		clock := &fakeClock{now: time.Unix(1700000000, 0)}
		cache := newTestCache(adapter, clock)
		ctx := context.Background()

		cache.Verify(ctx, core.BackendOpenAI, "sk-valid", false)
		clock.Advance(DefaultTTL + time.Second)
		cache.Verify(ctx, core.BackendOpenAI, "sk-valid", false)

		if adapter.calls != 2 {
			t.Errorf("got %d transport calls, want 2 after TTL expiry", adapter.calls)
		}
	})

	t.Run("ForceAlwaysHitsTransport", func(t *testing.T) {
		adapter := &fakeAdapter{kind: core.BackendOpenAI, models: testModels()}
		clock := &fakeClock{now: time.Unix(1700000000, 0)}
		cache := newTestCache(adapter, clock)
		ctx := context.Background()

		cache.Verify(ctx, core.BackendOpenAI, "sk-valid", false)
		cache.Verify(ctx, core.BackendOpenAI, "sk-valid", true)

		if adapter.calls != 2 {
			t.Errorf("got %d transport calls, want 2 with forceRefresh", adapter.calls)
		}
	})

	t.Run("CredentialChangeBypassesCache", func(t *testing.T) {
		adapter := &fakeAdapter{kind: core.BackendOpenAI, models: testModels()}
		clock := &fakeClock{now: time.Unix(1700000000, 0)}
		cache := newTestCache(adapter, clock)
		ctx := context.Background()

		cache.Verify(ctx, core.BackendOpenAI, "sk-old", false)
		cache.Verify(ctx, core.BackendOpenAI, "sk-new", false)

		if adapter.calls != 2 {
			t.Errorf("got %d transport calls, want 2 after credential change", adapter.calls)
		}
	})

	t.Run("NoCredentialIsConfigurationError", func(t *testing.T) {
		adapter := &fakeAdapter{kind: core.BackendOpenAI, models: testModels()}
		clock := &fakeClock{now: time.Unix(1700000000, 0)}
		cache := newTestCache(adapter, clock)

		_, err := cache.Verify(context.Background(), core.BackendOpenAI, "", false)
		if !core.IsKind(err, core.ErrorKindConfiguration) {
			t.Fatalf("expected configuration error, got %v", err)
		}
		if adapter.calls != 0 {
			t.Errorf("configuration errors must never reach transport, got %d calls", adapter.calls)
		}
		if snap := cache.Snapshot(core.BackendOpenAI); snap.Status != core.AuthUnauthenticated {
			t.Errorf("got status %q, want unauthenticated", snap.Status)
		}
	})

	t.Run("CredentialFreeBackendSkipsCredentialCheck", func(t *testing.T) {
		adapter := &fakeAdapter{kind: core.BackendHostModel, models: testModels(), credFree: true}
		clock := &fakeClock{now: time.Unix(1700000000, 0)}
		cache := newTestCache(adapter, clock)

		res, err := cache.Verify(context.Background(), core.BackendHostModel, "", false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !res.Authenticated {
			t.Error("expected authenticated result without credential")
		}
	})

	t.Run("RejectedCredential", func(t *testing.T) {
		adapter := &fakeAdapter{
			kind: core.BackendOpenAI,
			err:  core.NewAuthenticationError(core.BackendOpenAI, core.ReasonInvalidCredential, "bad key", http.StatusUnauthorized),
		}
		clock := &fakeClock{now: time.Unix(1700000000, 0)}
		cache := newTestCache(adapter, clock)

		_, err := cache.Verify(context.Background(), core.BackendOpenAI, "sk-bad", false)
		if !core.IsKind(err, core.ErrorKindAuthentication) {
			t.Fatalf("expected authentication error, got %v", err)
		}

		snap := cache.Snapshot(core.BackendOpenAI)
		if snap.Status != core.AuthUnauthenticated {
			t.Errorf("got status %q, want unauthenticated", snap.Status)
		}
		if len(snap.Models) != 0 {
			t.Errorf("models must be cleared on failure, got %d", len(snap.Models))
		}
	})

	t.Run("FailureThenSuccessReverifies", func(t *testing.T) {
		adapter := &fakeAdapter{
			kind: core.BackendOpenAI,
			err:  core.NewNetworkError(core.BackendOpenAI, "timeout", nil),
		}
		clock := &fakeClock{now: time.Unix(1700000000, 0)}
		cache := newTestCache(adapter, clock)
		ctx := context.Background()

		if _, err := cache.Verify(ctx, core.BackendOpenAI, "sk-valid", false); err == nil {
			t.Fatal("expected error")
		}

		adapter.err = nil
		adapter.models = testModels()
		res, err := cache.Verify(ctx, core.BackendOpenAI, "sk-valid", false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.FromCache {
			t.Error("result after a failure must come from transport")
		}
		if adapter.calls != 2 {
			t.Errorf("got %d calls, want 2", adapter.calls)
		}
	})
}

func TestClear(t *testing.T) {
	adapter := &fakeAdapter{kind: core.BackendOpenAI, models: testModels()}
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	cache := newTestCache(adapter, clock)
	ctx := context.Background()

	cache.Verify(ctx, core.BackendOpenAI, "sk-valid", false)
	cache.Clear(core.BackendOpenAI)

	snap := cache.Snapshot(core.BackendOpenAI)
	if snap.Status != core.AuthUnknown {
		t.Errorf("got status %q, want unknown", snap.Status)
	}
	if len(snap.Models) != 0 {
		t.Errorf("got %d models, want 0", len(snap.Models))
	}
	if !snap.LastVerifiedAt.IsZero() {
		t.Errorf("lastVerifiedAt must reset to the zero time, got %v", snap.LastVerifiedAt)
	}

	// The next call must hit transport regardless of forceRefresh.
	cache.Verify(ctx, core.BackendOpenAI, "sk-valid", false)
	if adapter.calls != 2 {
		t.Errorf("got %d calls, want 2 after Clear", adapter.calls)
	}
}

func TestInvalidate(t *testing.T) {
	adapter := &fakeAdapter{kind: core.BackendOpenAI, models: testModels()}
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	cache := newTestCache(adapter, clock)
	ctx := context.Background()

	cache.Verify(ctx, core.BackendOpenAI, "sk-valid", false)
	cache.Invalidate(core.BackendOpenAI)

	snap := cache.Snapshot(core.BackendOpenAI)
	if snap.Status != core.AuthUnauthenticated {
		t.Errorf("got status %q, want unauthenticated", snap.Status)
	}
	if len(snap.Models) != 0 {
		t.Error("models must be cleared on invalidation")
	}

	cache.Verify(ctx, core.BackendOpenAI, "sk-valid", false)
	if adapter.calls != 2 {
		t.Errorf("invalidated entry must re-verify, got %d calls", adapter.calls)
	}
}

func TestAdopt(t *testing.T) {
	t.Run("AdoptsOntoUnknownEntry", func(t *testing.T) {
		adapter := &fakeAdapter{kind: core.BackendOpenAI, models: testModels()}
		clock := &fakeClock{now: time.Unix(1700000000, 0)}
		cache := newTestCache(adapter, clock)

		cache.Adopt(core.BackendOpenAI, core.AuthAuthenticated)

		snap := cache.Snapshot(core.BackendOpenAI)
		if snap.Status != core.AuthAuthenticated {
			t.Errorf("got status %q, want authenticated", snap.Status)
		}
		if len(snap.Models) != 0 {
			t.Error("adopted entry must not gain models")
		}

		// The shortcut never suppresses the first real verification:
		// empty models keep the fast path closed.
		cache.Verify(context.Background(), core.BackendOpenAI, "sk-valid", false)
		if adapter.calls != 1 {
			t.Errorf("got %d calls, want 1", adapter.calls)
		}
	})

	t.Run("DoesNotOverwriteVerifiedState", func(t *testing.T) {
		adapter := &fakeAdapter{kind: core.BackendOpenAI, models: testModels()}
		clock := &fakeClock{now: time.Unix(1700000000, 0)}
		cache := newTestCache(adapter, clock)

		cache.Verify(context.Background(), core.BackendOpenAI, "sk-valid", false)
		cache.Adopt(core.BackendOpenAI, core.AuthUnauthenticated)

		if snap := cache.Snapshot(core.BackendOpenAI); snap.Status != core.AuthAuthenticated {
			t.Errorf("adopt must not clobber a verified entry, got %q", snap.Status)
		}
	})

	t.Run("IgnoresUnknownStatus", func(t *testing.T) {
		adapter := &fakeAdapter{kind: core.BackendOpenAI}
		clock := &fakeClock{now: time.Unix(1700000000, 0)}
		cache := newTestCache(adapter, clock)

		cache.Adopt(core.BackendOpenAI, core.AuthUnknown)

		if snap := cache.Snapshot(core.BackendOpenAI); snap.Status != core.AuthUnknown {
			t.Errorf("got %q, want unknown", snap.Status)
		}
	})
}

func TestLastVerifiedAtMonotonic(t *testing.T) {
	adapter := &fakeAdapter{kind: core.BackendOpenAI, models: testModels()}
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	cache := newTestCache(adapter, clock)
	ctx := context.Background()

	res1, _ := cache.Verify(ctx, core.BackendOpenAI, "sk-valid", true)
	clock.Advance(10 * time.Minute)
	res2, _ := cache.Verify(ctx, core.BackendOpenAI, "sk-valid", true)

	if res2.VerifiedAt.Before(res1.VerifiedAt) {
		t.Errorf("lastVerifiedAt went backwards: %v then %v", res1.VerifiedAt, res2.VerifiedAt)
	}

	// Failures keep the old stamp rather than rewinding it.
	adapter.err = core.NewNetworkError(core.BackendOpenAI, "down", nil)
	cache.Verify(ctx, core.BackendOpenAI, "sk-valid", true)
	if snap := cache.Snapshot(core.BackendOpenAI); !snap.LastVerifiedAt.Equal(res2.VerifiedAt) {
		t.Errorf("failure must not move lastVerifiedAt, got %v", snap.LastVerifiedAt)
	}
}

func TestModelsImplyAuthenticated(t *testing.T) {
	// Invariant: a non-empty model list is only ever paired with
	// authenticated status.
	adapter := &fakeAdapter{kind: core.BackendOpenAI, models: testModels()}
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	cache := newTestCache(adapter, clock)
	ctx := context.Background()

	check := func(stage string) {
		snap := cache.Snapshot(core.BackendOpenAI)
		if len(snap.Models) > 0 && snap.Status != core.AuthAuthenticated {
			t.Errorf("%s: %d models with status %q", stage, len(snap.Models), snap.Status)
		}
	}

	check("initial")
	cache.Verify(ctx, core.BackendOpenAI, "sk-valid", false)
	check("after success")
	adapter.err = core.NewNetworkError(core.BackendOpenAI, "down", nil)
	cache.Verify(ctx, core.BackendOpenAI, "sk-valid", true)
	check("after failure")
	cache.Clear(core.BackendOpenAI)
	check("after clear")
}

type countingObserver struct {
	hits  int
	calls int
}

func (o *countingObserver) VerifyServedFromCache(core.BackendKind) { o.hits++ }
func (o *countingObserver) VerifyTransportCall(core.BackendKind)   { o.calls++ }

func TestObserver(t *testing.T) {
	adapter := &fakeAdapter{kind: core.BackendOpenAI, models: testModels()}
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	obs := &countingObserver{}
	cache := New([]core.Adapter{adapter}, WithClock(clock.Now), WithObserver(obs))
	ctx := context.Background()

	cache.Verify(ctx, core.BackendOpenAI, "sk-valid", false)
	cache.Verify(ctx, core.BackendOpenAI, "sk-valid", false)

	if obs.calls != 1 {
		t.Errorf("got %d observed transport calls, want 1", obs.calls)
	}
	if obs.hits != 1 {
		t.Errorf("got %d observed cache hits, want 1", obs.hits)
	}
}
