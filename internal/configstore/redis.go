package configstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"modelbridge/internal/core"
)

const (
	// DefaultRedisKeyPrefix prefixes the per-backend hash fields.
	DefaultRedisKeyPrefix = "modelbridge:backends"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g. "redis://localhost:6379").
	URL string

	// KeyPrefix is the hash key holding per-backend records
	// (defaults to "modelbridge:backends").
	KeyPrefix string
}

// Redis implements Store on a Redis hash, one field per backend kind.
// Suitable when several instances must share backend configuration.
type Redis struct {
	client *redis.Client
	key    string
}

// NewRedis creates a Redis-backed store and verifies connectivity.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	key := cfg.KeyPrefix
	if key == "" {
		key = DefaultRedisKeyPrefix
	}

	slog.Info("redis config store connected", "key", key)

	return &Redis{client: client, key: key}, nil
}

// Get returns the configuration for a backend.
func (r *Redis) Get(ctx context.Context, kind core.BackendKind) (core.BackendConfig, error) {
	data, err := r.client.HGet(ctx, r.key, string(kind)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return core.BackendConfig{Kind: kind}, nil // Not configured yet, not an error
		}
		return core.BackendConfig{}, fmt.Errorf("failed to get backend config from redis: %w", err)
	}

	var cfg core.BackendConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return core.BackendConfig{}, fmt.Errorf("failed to parse backend config from redis: %w", err)
	}
	return cfg, nil
}

// Put replaces the configuration for cfg.Kind.
func (r *Redis) Put(ctx context.Context, cfg core.BackendConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal backend config: %w", err)
	}
	if err := r.client.HSet(ctx, r.key, string(cfg.Kind), data).Err(); err != nil {
		return fmt.Errorf("failed to set backend config in redis: %w", err)
	}
	return nil
}

// SetAuthStatus records the outcome of a verification.
func (r *Redis) SetAuthStatus(ctx context.Context, kind core.BackendKind, status core.AuthStatus) error {
	cfg, err := r.Get(ctx, kind)
	if err != nil {
		return err
	}
	cfg.Kind = kind
	cfg.AuthStatus = status
	return r.Put(ctx, cfg)
}

// SetSelectedModel records the user's model selection.
func (r *Redis) SetSelectedModel(ctx context.Context, kind core.BackendKind, model string) error {
	cfg, err := r.Get(ctx, kind)
	if err != nil {
		return err
	}
	cfg.Kind = kind
	cfg.SelectedModel = model
	return r.Put(ctx, cfg)
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
