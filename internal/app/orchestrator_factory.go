package app

import (
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/mosync/internal/cache"
	"github.com/vladislavdragonenkov/mosync/internal/domain"
	"github.com/vladislavdragonenkov/mosync/internal/metrics"
	"github.com/vladislavdragonenkov/mosync/internal/resources"
)

// Основные справочники, от которых зависит готовность интерфейса заказов,
// и таксономии типов, которые меняются редко и живут с длинным TTL.
var (
	primaryResources  = []string{"branches", "customers", "machines", "products", "materials"}
	taxonomyResources = []string{"machine-types", "product-types", "material-types"}
)

// buildResourceOrchestrator регистрирует справочные кэши в orchestrator.
// Каждый ресурс получает собственную запись кэша с общим хранилищем
// снапшотов и общим сигналом сети.
func buildResourceOrchestrator(
	cfg Config,
	client *http.Client,
	snapshots domain.SnapshotStore,
	conn domain.Connectivity,
	meter *metrics.SyncMetrics,
	logger *log.Entry,
) (*resources.Orchestrator, error) {
	orchestrator := resources.NewOrchestrator(logger)

	register := func(name string, primary bool, ttl time.Duration) error {
		c, err := cache.New(
			name,
			ttl,
			referenceFetcher(client, cfg.APIBaseURL, name, logger),
			cache.WithStore(snapshots),
			cache.WithConnectivity(conn),
			cache.WithMetrics(meter),
			cache.WithLogger(logger),
		)
		if err != nil {
			return fmt.Errorf("create %s cache: %w", name, err)
		}
		return orchestrator.Register(name, primary, c)
	}

	for _, name := range primaryResources {
		if err := register(name, true, cfg.ReferenceTTL); err != nil {
			return nil, err
		}
	}
	for _, name := range taxonomyResources {
		if err := register(name, false, cfg.TaxonomyTTL); err != nil {
			return nil, err
		}
	}

	return orchestrator, nil
}
