// Package config provides configuration management for the application.
// Values come from an optional YAML file, an optional .env file, and
// environment variables, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is probed when no config path is given.
const DefaultConfigFile = "config.yaml"

// Config holds the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Store    StoreConfig    `yaml:"store"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Backends BackendsConfig `yaml:"backends"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port          string `yaml:"port"`
	MasterKey     string `yaml:"master_key"`
	BodySizeLimit int64  `yaml:"body_size_limit"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `yaml:"level"`
}

// StoreConfig selects the backend configuration store.
type StoreConfig struct {
	// Type is one of "local", "redis", or "memory".
	Type string `yaml:"type"`

	// Path is the JSON file for the local store.
	Path string `yaml:"path"`

	// RedisURL is the connection URL for the redis store.
	RedisURL string `yaml:"redis_url"`
}

// MetricsConfig holds Prometheus exposure configuration.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// BackendsConfig holds the per-backend settings seeded into the store.
type BackendsConfig struct {
	OpenAI     BackendConfig `yaml:"openai"`
	OpenRouter BackendConfig `yaml:"openrouter"`
	HostModel  BackendConfig `yaml:"hostmodel"`
}

// BackendConfig holds one backend's settings.
type BackendConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// Load reads configuration from file and environment. path may be empty,
// in which case config.yaml is read when present.
func Load(path string) (*Config, error) {
	// .env is optional and never fails the load.
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{Port: "8080"},
		Log:    LogConfig{Level: "info"},
		Store:  StoreConfig{Type: "local", Path: defaultStorePath()},
		Metrics: MetricsConfig{
			Endpoint: "/metrics",
		},
	}

	if err := loadFile(cfg, path); err != nil {
		return nil, err
	}
	applyEnv(cfg)

	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// applyEnv overlays environment variables onto the configuration.
func applyEnv(cfg *Config) {
	setString(&cfg.Server.Port, "MODELBRIDGE_PORT", "PORT")
	setString(&cfg.Server.MasterKey, "MODELBRIDGE_MASTER_KEY")
	setString(&cfg.Log.Level, "MODELBRIDGE_LOG_LEVEL", "LOG_LEVEL")

	setString(&cfg.Store.Type, "MODELBRIDGE_STORE")
	setString(&cfg.Store.Path, "MODELBRIDGE_STORE_PATH")
	setString(&cfg.Store.RedisURL, "MODELBRIDGE_REDIS_URL", "REDIS_URL")

	setBool(&cfg.Metrics.Enabled, "MODELBRIDGE_METRICS_ENABLED")
	setString(&cfg.Metrics.Endpoint, "MODELBRIDGE_METRICS_ENDPOINT")

	setString(&cfg.Backends.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&cfg.Backends.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setString(&cfg.Backends.OpenRouter.APIKey, "OPENROUTER_API_KEY")
	setString(&cfg.Backends.OpenRouter.BaseURL, "OPENROUTER_BASE_URL")
	setString(&cfg.Backends.HostModel.BaseURL, "HOSTMODEL_BASE_URL")
}

// setString assigns the first non-empty environment value to dst.
func setString(dst *string, keys ...string) {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			*dst = v
			return
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// defaultStorePath places the local store under the user config dir,
// falling back to the working directory.
func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "modelbridge.json"
	}
	return filepath.Join(dir, "modelbridge", "backends.json")
}
