// Package draftpad wires the HTTP surface of the notes backend to its
// persistence layer and carries the write-conflict and reliability core:
// optimistic concurrency on page updates, idempotent handling of create
// requests, and bounded retries around a possibly flaky store.
package draftpad

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/draftpad/draftpad/pkg/idempotency"
	"github.com/draftpad/draftpad/pkg/retry"
	"github.com/draftpad/draftpad/pkg/store"
	"github.com/draftpad/draftpad/pkg/store/memory"
	"github.com/draftpad/draftpad/pkg/store/postgres"
)

// Config holds application configuration, populated from flags and
// environment variables by cmd/draftpad.
type Config struct {
	// Database configuration. An empty PostgresDSN selects the in-memory
	// store, which is the development default.
	PostgresDSN string

	// Idempotency cache entry lifetime.
	IdempotencyTTL time.Duration

	// Retry budget for storage operations.
	Retry retry.Config

	// Server configuration
	ServerPort string
}

// DefaultConfig returns a development configuration: in-memory store,
// 24-hour idempotency window, default retry budget.
func DefaultConfig() *Config {
	return &Config{
		PostgresDSN:    getEnv("DRAFTPAD_POSTGRES_DSN", ""),
		IdempotencyTTL: 24 * time.Hour,
		Retry:          retry.DefaultConfig(),
		ServerPort:     getEnv("DRAFTPAD_PORT", "8080"),
	}
}

// App holds the application state.
type App struct {
	store    store.Store
	cache    idempotency.Cache
	dedupe   *idempotency.Deduper
	retryCfg retry.Config
	config   *Config
	logger   zerolog.Logger
}

// New creates an application instance. With a PostgreSQL DSN configured the
// store and the idempotency cache both live in the database; otherwise both
// are in-process.
func New(config *Config, logger zerolog.Logger) (*App, error) {
	var (
		appStore store.Store
		cache    idempotency.Cache
	)

	if config.PostgresDSN != "" {
		pg, err := postgres.New(config.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		appStore = pg
		cache = idempotency.NewStoreCache(pg.DB())
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		appStore = memory.New()
		cache = idempotency.NewMemory(time.Minute)
		logger.Info().Msg("using in-memory store")
	}

	return NewWithStore(appStore, cache, config, logger), nil
}

// NewWithStore assembles an App around an already-constructed store and
// cache. Tests use this to inject in-memory and fault-injecting stores.
func NewWithStore(s store.Store, cache idempotency.Cache, config *Config, logger zerolog.Logger) *App {
	return &App{
		store:    s,
		cache:    cache,
		dedupe:   idempotency.NewDeduper(cache, config.IdempotencyTTL),
		retryCfg: config.Retry,
		config:   config,
		logger:   logger,
	}
}

// Migrate initializes the store schema and, when the idempotency cache is
// database-backed, its table as well. Idempotent; called at startup.
func (a *App) Migrate(ctx context.Context) error {
	if err := a.store.Migrate(ctx); err != nil {
		return err
	}
	if sc, ok := a.cache.(*idempotency.StoreCache); ok {
		return sc.Migrate(ctx)
	}
	return nil
}

// Close closes the application and its resources.
func (a *App) Close() error {
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

// Store returns the underlying store (useful for tests and migrations).
func (a *App) Store() store.Store {
	return a.store
}

// getEnv retrieves an environment variable value with a fallback default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
