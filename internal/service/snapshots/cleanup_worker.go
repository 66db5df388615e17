package snapshots

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/mosync/internal/domain"
)

const (
	defaultCleanupInterval = time.Hour
	defaultMaxSnapshotAge  = 7 * 24 * time.Hour
)

var (
	snapshotCleanupRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mosync_snapshot_cleanup_runs_total",
		Help: "Total number of snapshot cleanup runs grouped by result.",
	}, []string{"result"})
	snapshotCleanupDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mosync_snapshot_cleanup_deleted_total",
		Help: "Total number of deleted stale cache snapshots.",
	})
	snapshotCleanupLastDeleted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mosync_snapshot_cleanup_last_deleted",
		Help: "Number of deleted snapshots during the last cleanup run.",
	})
)

// CleanupOptions задает параметры воркера очистки снапшотов кэша.
type CleanupOptions struct {
	Logger   *log.Entry
	Interval time.Duration
	MaxAge   time.Duration
}

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*CleanupOptions)

// WithLogger задает logger для воркера.
func WithLogger(logger *log.Entry) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Logger = logger
	}
}

// WithInterval задает интервал между cleanup-циклами.
func WithInterval(interval time.Duration) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Interval = interval
	}
}

// WithMaxAge задает максимальный возраст снапшота до удаления.
func WithMaxAge(maxAge time.Duration) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.MaxAge = maxAge
	}
}

// CleanupWorker периодически удаляет устаревшие снапшоты кэша.
// Снапшот старше MaxAge бесполезен даже как stale fallback:
// кэш с таким снапшотом все равно пойдет за свежими данными.
type CleanupWorker struct {
	store    domain.SnapshotStore
	logger   *log.Entry
	interval time.Duration
	maxAge   time.Duration
}

// NewCleanupWorker создает воркер очистки снапшотов.
func NewCleanupWorker(store domain.SnapshotStore, options ...CleanupOption) *CleanupWorker {
	opts := CleanupOptions{
		Interval: defaultCleanupInterval,
		MaxAge:   defaultMaxSnapshotAge,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "snapshot-cleanup-worker")
	}

	if opts.Interval <= 0 {
		opts.Interval = defaultCleanupInterval
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = defaultMaxSnapshotAge
	}

	return &CleanupWorker{
		store:    store,
		logger:   logger,
		interval: opts.Interval,
		maxAge:   opts.MaxAge,
	}
}

// Run запускает периодическую очистку до отмены ctx.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.store == nil {
		w.logger.Warn("snapshot cleanup worker is disabled: store is nil")
		return
	}

	w.cleanup(ctx, time.Now().UTC())

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.cleanup(ctx, time.Now().UTC())
		}
	}
}

func (w *CleanupWorker) cleanup(ctx context.Context, now time.Time) {
	deleted, err := w.DeleteStale(ctx, now)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		snapshotCleanupRunsTotal.WithLabelValues("error").Inc()
		w.logger.WithError(err).Warn("snapshot cleanup run failed")
		return
	}

	snapshotCleanupRunsTotal.WithLabelValues("ok").Inc()
	snapshotCleanupLastDeleted.Set(float64(deleted))
	if deleted > 0 {
		w.logger.WithField("deleted", deleted).Info("snapshot cleanup completed")
	}
}

// DeleteStale удаляет все снапшоты старше now-MaxAge.
func (w *CleanupWorker) DeleteStale(ctx context.Context, now time.Time) (int, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	deleted, err := w.store.DeleteOlderThan(ctx, now.Add(-w.maxAge))
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		snapshotCleanupDeletedTotal.Add(float64(deleted))
	}

	return deleted, nil
}
