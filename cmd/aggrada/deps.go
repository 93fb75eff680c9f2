package main

import (
	"context"
	"log/slog"

	"github.com/go-faster/errors"

	"github.com/JonMunkholm/aggrada/internal/config"
	"github.com/JonMunkholm/aggrada/internal/ingest"
	"github.com/JonMunkholm/aggrada/internal/outsource"
	"github.com/JonMunkholm/aggrada/internal/spatial"
	"github.com/JonMunkholm/aggrada/internal/store"
)

// openStore connects the configured backend.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		st, err := store.OpenSQLite(cfg.Database.SQLitePath)
		if err != nil {
			return nil, err
		}
		slog.Info("opened sqlite store", "path", cfg.Database.SQLitePath)
		return st, nil
	case config.DriverPostgres:
		return store.OpenPostgres(ctx, cfg.Database.URL, cfg.Database.PoolConfig())
	}
	return nil, errors.Errorf("unknown store driver %q", cfg.Database.Driver)
}

// newPipeline wires the resolver, outsourced providers and log sinks.
// collectors may be nil.
func newPipeline(cfg *config.Config, st store.Store, collectors *ingest.Collectors) (*ingest.Pipeline, *spatial.Cache) {
	cache := spatial.NewCache(cfg.Ingest.CacheSize, cfg.Ingest.CacheTTL)

	resolverOpts := []spatial.ResolverOption{spatial.WithLogger(slog.Default())}
	opts := []ingest.Option{
		ingest.WithProviders(outsource.DefaultRegistry(cfg.Outsource.Settings())),
		ingest.WithFanOut(cfg.Ingest.FanOut),
		ingest.WithMetricsSink(ingest.NewMetricsSink(cfg.Ingest.MetricsPath())),
		ingest.WithNotFoundLog(ingest.NewNotFoundLog(cfg.Ingest.NotFoundPath())),
	}
	if collectors != nil {
		resolverOpts = append(resolverOpts, spatial.WithObserver(collectors))
		opts = append(opts, ingest.WithCollectors(collectors))
	}

	resolver := spatial.NewResolver(st, cache, resolverOpts...)
	return ingest.New(st, resolver, opts...), cache
}
