// Package config defines the service configuration and its loading
// order: compiled defaults, then an optional YAML file, then
// HIREGAUGE_-prefixed environment variables.
package config

import (
	"time"

	"github.com/hiregauge/hiregauge/internal/application"
)

// Config is the full service configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// LogFormat selects the encoder: json or console.
	LogFormat string `koanf:"log_format" validate:"required,oneof=json console"`

	// CatalogPath points at a rule catalog YAML document. Empty uses
	// the built-in catalog.
	CatalogPath string `koanf:"catalog_path"`

	// ProfilesPath points at a weight profiles YAML document. Empty
	// uses the built-in default profile.
	ProfilesPath string `koanf:"profiles_path"`

	Server  Server  `koanf:"server" validate:"required"`
	Engine  Engine  `koanf:"engine" validate:"required"`
	Storage Storage `koanf:"storage" validate:"required"`
	Market  Market  `koanf:"market" validate:"required"`
}

// Server configures the HTTP listener.
type Server struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `koanf:"addr" validate:"required"`

	// ReadTimeout and WriteTimeout bound request handling.
	ReadTimeout  time.Duration `koanf:"read_timeout" validate:"min=0"`
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"min=0"`

	// ShutdownTimeout bounds graceful drain on SIGINT/SIGTERM.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"min=0"`
}

// Engine configures the evaluation orchestrator.
type Engine struct {
	// RetryLimit bounds recomputation attempts when signals keep
	// changing mid-flight.
	RetryLimit int `koanf:"retry_limit" validate:"min=1"`

	// MinCompleteness is the phase-weight coverage a candidate needs
	// for a COMPLETE evaluation.
	MinCompleteness float64 `koanf:"min_completeness" validate:"min=0,max=1"`

	// DefaultRole resolves evaluations that do not name a role.
	DefaultRole string `koanf:"default_role" validate:"required"`

	// Parallelism bounds concurrent per-candidate work in EvaluateAll.
	Parallelism int `koanf:"parallelism" validate:"min=1"`
}

// Storage selects and configures the signal store.
type Storage struct {
	// Driver is memory or postgres.
	Driver string `koanf:"driver" validate:"required,oneof=memory postgres"`

	// PostgresDSN is the connection string for the postgres driver.
	PostgresDSN string `koanf:"postgres_dsn" validate:"required_if=Driver postgres"`
}

// Market selects and configures the market-rate source used for
// compensation bands.
type Market struct {
	// Provider is static (YAML tables) or http (remote provider).
	Provider string `koanf:"provider" validate:"required,oneof=static http"`

	// TablesPath points at a market tables YAML document for the
	// static provider. Empty uses the built-in table.
	TablesPath string `koanf:"tables_path"`

	// BaseURL is the remote provider endpoint for the http provider.
	BaseURL string `koanf:"base_url" validate:"required_if=Provider http,omitempty,url"`

	// APIKey is sent as a bearer token to the remote provider.
	APIKey string `koanf:"api_key"`

	// Timeout bounds each provider request.
	Timeout time.Duration `koanf:"timeout" validate:"min=0"`

	// CacheTTL is how long fetched tables stay fresh. Zero disables
	// caching.
	CacheTTL time.Duration `koanf:"cache_ttl" validate:"min=0"`
}

// Default returns the compiled-in configuration the file and
// environment layers override.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		Server: Server{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Engine: Engine{
			RetryLimit:      application.DefaultRetryLimit,
			MinCompleteness: application.DefaultMinCompleteness,
			DefaultRole:     application.DefaultRoleName,
			Parallelism:     application.DefaultParallelism,
		},
		Storage: Storage{
			Driver: "memory",
		},
		Market: Market{
			Provider: "static",
			Timeout:  10 * time.Second,
			CacheTTL: 15 * time.Minute,
		},
	}
}
