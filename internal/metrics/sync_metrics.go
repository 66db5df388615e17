package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics содержит метрики кэша и reconciliation.
type SyncMetrics struct {
	// Счётчики обращений к кэшу
	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	cacheStaleServed   *prometheus.CounterVec
	cacheOfflineServed *prometheus.CounterVec
	cacheInFlightJoins *prometheus.CounterVec
	cacheFetchErrors   *prometheus.CounterVec

	// Гистограмма времени загрузки
	fetchDuration *prometheus.HistogramVec

	// Счётчики reconciliation событий
	eventsApplied *prometheus.CounterVec
	eventsDropped *prometheus.CounterVec

	// Gauge для размера коллекции и активных загрузок
	collectionSize  prometheus.Gauge
	inflightFetches prometheus.Gauge
}

// NewSyncMetrics создаёт новый экземпляр метрик синхронизации.
func NewSyncMetrics() *SyncMetrics {
	return newSyncMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewSyncMetricsWithRegisterer создаёт метрики с явным registerer (для тестов).
func NewSyncMetricsWithRegisterer(registerer prometheus.Registerer) *SyncMetrics {
	return newSyncMetricsWithRegisterer(registerer)
}

func newSyncMetricsWithRegisterer(registerer prometheus.Registerer) *SyncMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &SyncMetrics{
		cacheHits: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "mosync_cache_hits_total",
			Help: "Total number of cache reads served fresh from memory",
		}, []string{"key"}),
		cacheMisses: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "mosync_cache_misses_total",
			Help: "Total number of cache reads that triggered an upstream fetch",
		}, []string{"key"}),
		cacheStaleServed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "mosync_cache_stale_served_total",
			Help: "Total number of reads served from stale cache after a failed refresh",
		}, []string{"key"}),
		cacheOfflineServed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "mosync_cache_offline_served_total",
			Help: "Total number of reads served from cache while offline",
		}, []string{"key"}),
		cacheInFlightJoins: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "mosync_cache_inflight_joins_total",
			Help: "Total number of callers coalesced into an already running fetch",
		}, []string{"key"}),
		cacheFetchErrors: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "mosync_cache_fetch_errors_total",
			Help: "Total number of upstream fetch failures without a cached fallback",
		}, []string{"key"}),
		fetchDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "mosync_fetch_duration_seconds",
			Help:    "Duration of upstream fetches in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		}, []string{"key"}),
		eventsApplied: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "mosync_reconcile_events_applied_total",
			Help: "Total number of push events applied to the collection",
		}, []string{"type"}),
		eventsDropped: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "mosync_reconcile_events_dropped_total",
			Help: "Total number of push events dropped (duplicate, absent target or stale)",
		}, []string{"type", "reason"}),
		collectionSize: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "mosync_collection_orders",
			Help: "Number of orders currently held in the collection",
		}),
		inflightFetches: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "mosync_inflight_fetches",
			Help: "Number of upstream fetches currently in flight",
		}),
	}
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordCacheHit увеличивает счётчик свежих попаданий в кэш.
func (m *SyncMetrics) RecordCacheHit(key string) {
	m.cacheHits.WithLabelValues(key).Inc()
}

// RecordCacheMiss увеличивает счётчик промахов (запущена загрузка).
func (m *SyncMetrics) RecordCacheMiss(key string) {
	m.cacheMisses.WithLabelValues(key).Inc()
}

// RecordStaleServed увеличивает счётчик отдач stale-данных после неудачной загрузки.
func (m *SyncMetrics) RecordStaleServed(key string) {
	m.cacheStaleServed.WithLabelValues(key).Inc()
}

// RecordOfflineServed увеличивает счётчик отдач из кэша в offline-режиме.
func (m *SyncMetrics) RecordOfflineServed(key string) {
	m.cacheOfflineServed.WithLabelValues(key).Inc()
}

// RecordInFlightJoin увеличивает счётчик вызовов, присоединившихся к текущей загрузке.
func (m *SyncMetrics) RecordInFlightJoin(key string) {
	m.cacheInFlightJoins.WithLabelValues(key).Inc()
}

// RecordFetchError увеличивает счётчик загрузок, завершившихся ошибкой без fallback.
func (m *SyncMetrics) RecordFetchError(key string) {
	m.cacheFetchErrors.WithLabelValues(key).Inc()
}

// RecordFetchDuration записывает время загрузки по ключу.
func (m *SyncMetrics) RecordFetchDuration(key string, duration time.Duration) {
	m.fetchDuration.WithLabelValues(key).Observe(duration.Seconds())
}

// RecordFetchStarted увеличивает количество активных загрузок.
func (m *SyncMetrics) RecordFetchStarted() {
	m.inflightFetches.Inc()
}

// RecordFetchFinished уменьшает количество активных загрузок.
func (m *SyncMetrics) RecordFetchFinished() {
	m.inflightFetches.Dec()
}

// RecordEventApplied увеличивает счётчик применённых событий.
func (m *SyncMetrics) RecordEventApplied(eventType string) {
	m.eventsApplied.WithLabelValues(eventType).Inc()
}

// RecordEventDropped увеличивает счётчик отброшенных событий.
func (m *SyncMetrics) RecordEventDropped(eventType, reason string) {
	m.eventsDropped.WithLabelValues(eventType, reason).Inc()
}

// SetCollectionSize выставляет текущий размер коллекции заказов.
func (m *SyncMetrics) SetCollectionSize(n int) {
	m.collectionSize.Set(float64(n))
}
