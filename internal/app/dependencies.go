package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/mosync/internal/domain"
	"github.com/vladislavdragonenkov/mosync/internal/storage/memory"
	"github.com/vladislavdragonenkov/mosync/internal/storage/postgres"
)

// runtimeDependencies содержит зависимости, выбранные по конфигурации.
type runtimeDependencies struct {
	snapshots domain.SnapshotStore
	pg        *postgres.Store // nil для memory driver
}

// close освобождает ресурсы хранилища.
func (d *runtimeDependencies) close(logger *log.Entry) {
	if d.pg == nil {
		return
	}
	if err := d.pg.Close(); err != nil {
		logger.WithError(err).Warn("failed to close postgres store")
	}
}

// initRuntimeDependencies создает хранилище снапшотов по выбранному driver.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		return &runtimeDependencies{snapshots: memory.NewSnapshotStore()}, nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres storage driver requires PostgresDSN")
		}

		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}

		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
			logger.Info("postgres migrations applied")
		}

		return &runtimeDependencies{
			snapshots: postgres.NewSnapshotRepository(store),
			pg:        store,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.StorageDriver)
	}
}
