// Package main is the entry point for the modelbridge server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"modelbridge/config"
	"modelbridge/internal/authcache"
	"modelbridge/internal/backends"
	"modelbridge/internal/configstore"
	"modelbridge/internal/core"
	"modelbridge/internal/generation"
	"modelbridge/internal/logging"
	"modelbridge/internal/metrics"
	"modelbridge/internal/router"
	"modelbridge/internal/server"

	// Import backend packages to trigger their init() registration
	_ "modelbridge/internal/backends/hostmodel"
	_ "modelbridge/internal/backends/openai"
	_ "modelbridge/internal/backends/openrouter"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.yaml if present)")
	loginBackend := flag.String("login", "", "Prompt for a credential for the given backend, verify it, and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Log.Level)

	store, err := newStore(cfg)
	if err != nil {
		slog.Error("failed to open config store", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = store.Close()
	}()

	ctx := context.Background()
	if err := seedStore(ctx, store, cfg); err != nil {
		slog.Error("failed to seed config store", "error", err)
		os.Exit(1)
	}

	adapters, err := buildAdapters(cfg)
	if err != nil {
		slog.Error("failed to build backend adapters", "error", err)
		os.Exit(1)
	}

	var m *metrics.Metrics
	cacheOpts := []authcache.Option{}
	if cfg.Metrics.Enabled {
		m = metrics.New()
		cacheOpts = append(cacheOpts, authcache.WithObserver(m))
		slog.Info("prometheus metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	}

	cache := authcache.New(adapters, cacheOpts...)
	adoptStoredStatus(ctx, store, cache)

	rt := router.New(store, cache, generation.NewRegistry(), adapters)

	if *loginBackend != "" {
		os.Exit(runLogin(ctx, rt, store, *loginBackend))
	}

	if cfg.Server.MasterKey == "" {
		slog.Warn("no master key configured, server accepts unauthenticated requests",
			"recommendation", "set MODELBRIDGE_MASTER_KEY")
	} else {
		slog.Info("authentication enabled", "mode", "master_key")
	}

	srv := server.New(rt, &server.Config{
		MasterKey:       cfg.Server.MasterKey,
		MetricsEnabled:  cfg.Metrics.Enabled,
		MetricsEndpoint: cfg.Metrics.Endpoint,
		Metrics:         m,
		BodySizeLimit:   cfg.Server.BodySizeLimit,
	})

	// Handle graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		slog.Info("shutting down server...")
		rt.CancelAll()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	addr := ":" + cfg.Server.Port
	slog.Info("starting server", "address", addr)

	if err := srv.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
		} else {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}
}

// newStore opens the configured backend configuration store.
func newStore(cfg *config.Config) (configstore.Store, error) {
	switch cfg.Store.Type {
	case "redis":
		return configstore.NewRedis(configstore.RedisConfig{URL: cfg.Store.RedisURL})
	case "memory":
		return configstore.NewMemory(), nil
	default:
		return configstore.NewLocal(cfg.Store.Path), nil
	}
}

// seedStore overlays file/env backend settings onto the stored records.
// Explicit configuration wins over previously stored values.
func seedStore(ctx context.Context, store configstore.Store, cfg *config.Config) error {
	seeds := map[core.BackendKind]config.BackendConfig{
		core.BackendOpenAI:     cfg.Backends.OpenAI,
		core.BackendOpenRouter: cfg.Backends.OpenRouter,
		core.BackendHostModel:  cfg.Backends.HostModel,
	}

	for kind, seed := range seeds {
		if seed.APIKey == "" && seed.Model == "" {
			continue
		}
		record, err := store.Get(ctx, kind)
		if err != nil {
			return err
		}
		if seed.APIKey != "" && seed.APIKey != record.Credential {
			record.Credential = seed.APIKey
			record.AuthStatus = core.AuthUnknown
		}
		if seed.Model != "" {
			record.SelectedModel = seed.Model
		}
		if err := store.Put(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

// buildAdapters instantiates the registered backend adapters, applying
// base URL overrides from configuration.
func buildAdapters(cfg *config.Config) ([]core.Adapter, error) {
	baseURLs := map[core.BackendKind]string{
		core.BackendOpenAI:     cfg.Backends.OpenAI.BaseURL,
		core.BackendOpenRouter: cfg.Backends.OpenRouter.BaseURL,
		core.BackendHostModel:  cfg.Backends.HostModel.BaseURL,
	}

	kinds := backends.ListRegistered()
	adapters := make([]core.Adapter, 0, len(kinds))
	for _, kind := range kinds {
		adapter, err := backends.New(kind, backends.Options{BaseURL: baseURLs[kind]})
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, adapter)
	}
	return adapters, nil
}

// adoptStoredStatus applies each backend's last-known authentication
// status as a trust hint. Adopted entries keep an empty model list, so
// the first real use still verifies once.
func adoptStoredStatus(ctx context.Context, store configstore.Store, cache *authcache.Cache) {
	for _, kind := range []core.BackendKind{core.BackendOpenAI, core.BackendOpenRouter, core.BackendHostModel} {
		record, err := store.Get(ctx, kind)
		if err != nil {
			slog.Warn("failed to read stored backend config", "backend", kind, "error", err)
			continue
		}
		cache.Adopt(kind, record.AuthStatus)
	}
}

// runLogin prompts for a credential without echo, stores it, and
// verifies it once. Returns the process exit code.
func runLogin(ctx context.Context, rt *router.Router, store configstore.Store, backend string) int {
	kind := core.BackendKind(backend)
	if !kind.Valid() {
		fmt.Fprintln(os.Stderr, "unknown backend:", backend)
		return 1
	}

	fmt.Printf("Enter credential for %s: ", kind)
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to read credential:", err)
		return 1
	}

	record, err := store.Get(ctx, kind)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to read stored config:", err)
		return 1
	}
	record.Credential = string(secret)
	record.AuthStatus = core.AuthUnknown
	if err := store.Put(ctx, record); err != nil {
		fmt.Fprintln(os.Stderr, "failed to store credential:", err)
		return 1
	}

	result, err := rt.Verify(ctx, kind, true)
	if err != nil {
		fmt.Fprintln(os.Stderr, "verification failed:", err)
		return 1
	}

	fmt.Printf("Authenticated against %s (%d models available)\n", kind, len(result.Models))
	return 0
}
