package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/mosync/internal/cache"
	"github.com/vladislavdragonenkov/mosync/internal/collection"
	healthcheck "github.com/vladislavdragonenkov/mosync/internal/health"
	"github.com/vladislavdragonenkov/mosync/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/mosync/internal/metrics"
	"github.com/vladislavdragonenkov/mosync/internal/service/snapshots"
	"github.com/vladislavdragonenkov/mosync/internal/version"
)

// Run собирает и запускает агент синхронизации: кэши, коллекцию заказов,
// reconciler push-событий и служебный HTTP-сервер. Блокируется до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	meter := metrics.NewSyncMetrics()
	client := newAPIClient()

	prober := healthcheck.NewConnectivityProber(
		cfg.APIBaseURL,
		healthcheck.WithProbeInterval(cfg.ProbeInterval),
		healthcheck.WithProberLogger(logger),
	)

	orders := collection.NewStore(
		collection.WithStoreLogger(logger),
		collection.WithStoreMetrics(meter),
	)

	reconcilerOpts := []collection.ReconcilerOption{
		collection.WithReconcilerLogger(logger),
		collection.WithReconcilerMetrics(meter),
	}
	if cfg.StrictTransitions {
		reconcilerOpts = append(reconcilerOpts, collection.WithStrictTransitions())
	}
	reconciler := collection.NewReconciler(orders, reconcilerOpts...)

	ordersCache, err := cache.New(
		"orders",
		cfg.OrdersTTL,
		ordersFetcher(client, cfg.APIBaseURL, logger),
		cache.WithStore(deps.snapshots),
		cache.WithConnectivity(prober),
		cache.WithMetrics(meter),
		cache.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer ordersCache.Close()

	orchestrator, err := buildResourceOrchestrator(cfg, client, deps.snapshots, prober, meter, logger)
	if err != nil {
		return err
	}

	// Push-события вливаются в коллекцию через reconciler.
	// Ошибка обработки уводит сообщение в retry и дальше в DLQ.
	handler := func(ctx context.Context, message *sarama.ConsumerMessage) error {
		event, err := kafka.ParseEvent(message)
		if err != nil {
			return err
		}
		return reconciler.Apply(event)
	}

	consumer, dlqProducer, err := initKafkaConsumer(cfg, handler, logger)
	if err != nil {
		// Агент работоспособен и без push-событий: TTL-обновления продолжатся.
		logger.Warn("running without kafka push events")
	}
	if consumer != nil {
		if err := consumer.Start(ctx); err != nil {
			logger.WithError(err).Warn("failed to start kafka consumer")
		}
	}

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("connectivity", prober)
	if deps.pg != nil {
		pg := deps.pg
		healthHandler.RegisterChecker("postgres", healthcheck.NewSimpleChecker("postgres", func() error {
			return pg.Ping(context.Background())
		}))
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	go prober.Run(ctx)

	cleanup := snapshots.NewCleanupWorker(
		deps.snapshots,
		snapshots.WithLogger(logger),
		snapshots.WithInterval(cfg.SnapshotCleanupInterval),
		snapshots.WithMaxAge(cfg.SnapshotMaxAge),
	)
	go cleanup.Run(ctx)

	// Холодный старт: справочники и первая загрузка заказов.
	if err := orchestrator.WarmUp(ctx); err != nil {
		logger.WithError(err).Warn("resource warm-up failed, caches will retry on demand")
	}
	syncer := &ordersSyncer{cache: ordersCache, store: orders}
	syncer.sync(ctx)

	go func() {
		ticker := time.NewTicker(cfg.OrdersTTL)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				syncer.sync(ctx)
			}
		}
	}()

	logger.WithFields(log.Fields{
		"api_url":      cfg.APIBaseURL,
		"metrics_addr": cfg.MetricsAddr,
		"resources":    orchestrator.Names(),
	}).Info("sync agent started")

	<-ctx.Done()
	logger.Info("получен сигнал остановки, останавливаем агент")

	stopKafkaConsumer(consumer, logger)
	closeKafkaProducer(dlqProducer, logger)
	shutdownHTTP(metricsSrv, logger)

	return ctx.Err()
}

// ordersSyncer прогоняет коллекцию заказов через кэш. Полная загрузка
// применяется только когда снапшот новее уже применённого: повторная выдача
// того же снапшота не должна стирать изменения, влитые push-событиями.
type ordersSyncer struct {
	cache       *cache.Cache[collection.Payload]
	store       *collection.Store
	lastApplied time.Time
}

func (s *ordersSyncer) sync(ctx context.Context) {
	s.store.RequestStarted()

	entry, err := s.cache.Get(ctx)
	if err != nil {
		s.store.RequestFailed(err)
		return
	}
	if entry.HasData() && entry.Timestamp.After(s.lastApplied) {
		s.store.ApplyFullFetch(*entry.Data)
		s.lastApplied = entry.Timestamp
		return
	}
	s.store.RequestSucceeded(nil)
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/readyz, %s/livez", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
