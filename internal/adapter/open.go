// Package adapter selects the ledger store named by STORAGE_DRIVER.
package adapter

import (
	"context"
	"fmt"

	"dfund/internal/adapter/memstore"
	"dfund/internal/adapter/repo"
	"dfund/internal/adapter/sqlite"
	"dfund/internal/domain"
	"dfund/internal/infra"
)

// OpenStore opens and migrates the configured store.
func OpenStore(ctx context.Context, cfg *infra.Config, logger infra.Logger) (domain.Store, error) {
	switch cfg.StorageDriver {
	case infra.StorageMemory:
		logger.Warn().Msg("using in-memory store; data is lost on exit")
		return memstore.New(), nil
	case infra.StorageSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("sqlite store ready")
		return store, nil
	case infra.StoragePostgres:
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		runner := infra.NewSQLRunner(pool, logger)
		if err := repo.Migrate(ctx, runner); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info().Msg("postgres store ready")
		return repo.NewStore(runner), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// Ping runs a trivial read-only transaction against store.
func Ping(ctx context.Context, store domain.Store) error {
	return store.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		_, err := tx.CountProjects(ctx)
		return err
	})
}
