package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"chainIndexer/internal/config"
	"chainIndexer/internal/indexer"
	"chainIndexer/internal/registry"
	"chainIndexer/internal/storage"
	"chainIndexer/internal/storage/memory"
	"chainIndexer/internal/storage/postgres"
)

// openStore returns the configured store and, for Postgres, the
// contract_interfaces table as a registry source.
func openStore(ctx context.Context, cfg config.StoreConfig) (storage.Store, registry.Source, error) {
	if cfg.Driver == config.StoreMemory {
		return memory.New(), nil, nil
	}
	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return nil, nil, err
	}
	return store, store, nil
}

// newResolver merges the database and file interface sources. It returns nil
// when there is nothing to decode with.
func newResolver(dbSource registry.Source, interfacesFile string, refresh time.Duration, logger *zap.Logger) indexer.InterfaceResolver {
	var sources registry.MultiSource
	if dbSource != nil {
		sources = append(sources, dbSource)
	}
	if interfacesFile != "" {
		sources = append(sources, &registry.FileSource{Path: interfacesFile})
	}
	if len(sources) == 0 {
		logger.Warn("no contract interface source configured, logs are stored undecoded")
		return nil
	}
	return registry.New(sources, refresh, withComponent(logger, "registry"))
}
