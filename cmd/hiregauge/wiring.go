package main

import (
	"context"
	"fmt"

	"github.com/hiregauge/hiregauge/infrastructure/market"
	"github.com/hiregauge/hiregauge/infrastructure/storage"
	"github.com/hiregauge/hiregauge/internal/application"
	"github.com/hiregauge/hiregauge/internal/config"
	"github.com/hiregauge/hiregauge/internal/ports"
)

// newStore builds the signal store the config names. The returned
// cleanup releases connection pools; it is a no-op for the in-memory
// store.
func newStore(ctx context.Context, cfg *config.Config) (ports.SignalStore, func(), error) {
	switch cfg.Storage.Driver {
	case "postgres":
		store, err := storage.NewPostgresStore(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, store.Close, nil
	default:
		return storage.NewMemoryStore(), func() {}, nil
	}
}

// newNormalizer compiles the rule catalog from the configured YAML
// document, falling back to the built-in catalog when no path is set.
func newNormalizer(ctx context.Context, cfg *config.Config) (ports.Normalizer, error) {
	if cfg.CatalogPath == "" {
		return application.DefaultCatalog(), nil
	}

	loader, err := application.NewCatalogLoader(application.NewDefaultRuleRegistry())
	if err != nil {
		return nil, err
	}
	catalog, err := loader.LoadFromFile(ctx, cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", cfg.CatalogPath, err)
	}
	return catalog, nil
}

// newProfiles seeds the built-in default profile and layers the
// configured profiles document on top, so every role resolves even
// when the file only covers a few.
func newProfiles(cfg *config.Config) (*application.ProfileStore, error) {
	profiles := application.NewDefaultProfileStore()
	if cfg.ProfilesPath == "" {
		return profiles, nil
	}
	if err := profiles.LoadFromFile(cfg.ProfilesPath); err != nil {
		return nil, fmt.Errorf("load profiles %s: %w", cfg.ProfilesPath, err)
	}
	return profiles, nil
}

// newMarket builds the market-rate source the config names.
func newMarket(cfg *config.Config) (ports.MarketSource, error) {
	if cfg.Market.Provider == "http" {
		return market.NewHTTPSource(market.HTTPConfig{
			BaseURL:  cfg.Market.BaseURL,
			APIKey:   cfg.Market.APIKey,
			Timeout:  cfg.Market.Timeout,
			CacheTTL: cfg.Market.CacheTTL,
		})
	}

	source := market.DefaultSource()
	if cfg.Market.TablesPath != "" {
		if err := source.LoadFromFile(cfg.Market.TablesPath); err != nil {
			return nil, fmt.Errorf("load market tables %s: %w", cfg.Market.TablesPath, err)
		}
	}
	return source, nil
}

// newEngine assembles the orchestrator with the configured tuning plus
// any command-specific options.
func newEngine(ctx context.Context, cfg *config.Config, store ports.SignalStore, opts ...application.OrchestratorOption) (*application.Orchestrator, error) {
	normalizer, err := newNormalizer(ctx, cfg)
	if err != nil {
		return nil, err
	}
	profiles, err := newProfiles(cfg)
	if err != nil {
		return nil, err
	}
	marketSource, err := newMarket(cfg)
	if err != nil {
		return nil, err
	}

	base := []application.OrchestratorOption{
		application.WithRetryLimit(cfg.Engine.RetryLimit),
		application.WithMinCompleteness(cfg.Engine.MinCompleteness),
		application.WithDefaultRole(cfg.Engine.DefaultRole),
		application.WithParallelism(cfg.Engine.Parallelism),
	}
	return application.NewOrchestrator(store, normalizer, profiles, marketSource, append(base, opts...)...)
}
