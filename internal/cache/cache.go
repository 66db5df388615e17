// Package cache реализует TTL-кэш с дедупликацией одновременных загрузок.
//
// Одна запись кэша соответствует одному ключу и одной функции загрузки.
// Несколько логических потребителей делят один экземпляр Cache: пока загрузка
// в полёте, все вызовы Get присоединяются к ней вместо запуска второй.
// При недоступности сети или неудачной загрузке запись деградирует до
// stale-данных вместо ошибки, если данные есть.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/mosync/internal/domain"
	"github.com/vladislavdragonenkov/mosync/internal/metrics"
)

const persistTimeout = 5 * time.Second

// FetchFunc загружает данные из внешнего источника.
// Форма ответа нормализуется вызывающей стороной до типизированного T.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Entry — наблюдаемое состояние записи кэша.
// Data никогда не мутируется на месте, только заменяется целиком;
// потребители обязаны обращаться с ним как с read-only значением.
type Entry[T any] struct {
	Data            *T
	Timestamp       time.Time
	IsLoading       bool
	Err             error
	IsOffline       bool
	UsingStaleCache bool
}

// HasData сообщает, что в записи есть данные (свежие или stale).
func (e Entry[T]) HasData() bool { return e.Data != nil }

// Options задаёт зависимости записи кэша.
type Options struct {
	Store        domain.SnapshotStore
	Connectivity domain.Connectivity
	Logger       *log.Entry
	Metrics      *metrics.SyncMetrics
	Now          func() time.Time
}

// Option настраивает Cache.
type Option func(*Options)

// WithStore задаёт персистентное хранилище снапшотов.
func WithStore(store domain.SnapshotStore) Option {
	return func(opts *Options) { opts.Store = store }
}

// WithConnectivity задаёт сигнал доступности сети.
func WithConnectivity(conn domain.Connectivity) Option {
	return func(opts *Options) { opts.Connectivity = conn }
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) { opts.Logger = logger }
}

// WithMetrics задаёт метрики кэша.
func WithMetrics(m *metrics.SyncMetrics) Option {
	return func(opts *Options) { opts.Metrics = m }
}

// WithClock задаёт источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(opts *Options) { opts.Now = now }
}

// Cache — запись TTL-кэша для одного ключа.
type Cache[T any] struct {
	key    string
	ttl    time.Duration
	fetch  FetchFunc[T]
	store  domain.SnapshotStore
	online domain.Connectivity
	logger *log.Entry
	meter  *metrics.SyncMetrics
	now    func() time.Time

	mu       sync.Mutex
	entry    Entry[T]
	inflight chan struct{}
	gen      uint64
	closed   bool
}

// New создаёт запись кэша и, если задано хранилище, гидрирует её
// из персистентного снапшота. Снапшот с нечитаемыми данными игнорируется.
func New[T any](key string, ttl time.Duration, fetch FetchFunc[T], options ...Option) (*Cache[T], error) {
	if key == "" {
		return nil, domain.ErrCacheKeyRequired
	}
	if fetch == nil {
		return nil, domain.ErrFetchRequired
	}

	opts := Options{
		Connectivity: domain.AlwaysOnline,
		Now:          func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "cache")
	}

	c := &Cache[T]{
		key:    key,
		ttl:    ttl,
		fetch:  fetch,
		store:  opts.Store,
		online: opts.Connectivity,
		logger: opts.Logger.WithField("cache_key", key),
		meter:  opts.Metrics,
		now:    opts.Now,
	}
	c.hydrate()
	return c, nil
}

// hydrate восстанавливает данные из персистентного снапшота.
func (c *Cache[T]) hydrate() {
	if c.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	snap, err := c.store.Get(ctx, c.key)
	if err != nil {
		if !domain.IsSnapshotNotFound(err) {
			c.logger.WithError(err).Warn("failed to read cache snapshot")
		}
		return
	}

	var data T
	if err := json.Unmarshal(snap.Data, &data); err != nil {
		c.logger.WithError(err).Warn("cache snapshot is unreadable, ignoring")
		return
	}

	c.entry.Data = &data
	c.entry.Timestamp = snap.Timestamp
	c.logger.WithField("snapshot_at", snap.Timestamp).Debug("cache hydrated from snapshot")
}

// Get возвращает данные по правилам TTL: свежий кэш отдаётся без сети,
// просроченный или пустой инициирует загрузку. Повторный вызов во время
// загрузки присоединяется к ней и получает тот же результат.
func (c *Cache[T]) Get(ctx context.Context) (Entry[T], error) {
	return c.get(ctx, false)
}

// Refresh принудительно обходит проверку TTL, но сохраняет дедупликацию:
// если загрузка уже в полёте, вторая не запускается.
func (c *Cache[T]) Refresh(ctx context.Context) (Entry[T], error) {
	return c.get(ctx, true)
}

func (c *Cache[T]) get(ctx context.Context, force bool) (Entry[T], error) {
	c.mu.Lock()

	if c.closed {
		entry := c.entry
		c.mu.Unlock()
		return entry, domain.ErrCacheClosed
	}

	// Загрузка уже в полёте: присоединяемся вместо второго запроса.
	if c.inflight != nil {
		done := c.inflight
		c.mu.Unlock()
		if c.meter != nil {
			c.meter.RecordInFlightJoin(c.key)
		}
		select {
		case <-done:
		case <-ctx.Done():
			return c.State(), ctx.Err()
		}
		return c.result()
	}

	// Свежие данные отдаются синхронно, без обращения к сети.
	if !force && c.entry.Data != nil && c.now().Sub(c.entry.Timestamp) < c.ttl {
		entry := c.entry
		c.mu.Unlock()
		if c.meter != nil {
			c.meter.RecordCacheHit(c.key)
		}
		return entry, nil
	}

	// Offline: с кэшем — отдаём stale, без кэша — ошибка без повторов.
	if !c.online.Online() {
		if c.entry.Data != nil {
			c.entry.IsOffline = true
			c.entry.UsingStaleCache = true
			entry := c.entry
			c.mu.Unlock()
			if c.meter != nil {
				c.meter.RecordOfflineServed(c.key)
			}
			return entry, nil
		}
		c.entry.Err = domain.ErrNoConnection
		entry := c.entry
		c.mu.Unlock()
		c.logger.Warn("offline and no cached data")
		return entry, domain.ErrNoConnection
	}

	done := make(chan struct{})
	c.inflight = done
	c.entry.IsLoading = true
	c.entry.Err = nil
	gen := c.gen
	c.mu.Unlock()

	if c.meter != nil {
		c.meter.RecordCacheMiss(c.key)
		c.meter.RecordFetchStarted()
	}

	// Загрузка не отменяется вместе с инициатором: к ней могли
	// присоединиться другие потребители.
	started := c.now()
	data, fetchErr := c.fetch(context.WithoutCancel(ctx))
	if c.meter != nil {
		c.meter.RecordFetchDuration(c.key, c.now().Sub(started))
		c.meter.RecordFetchFinished()
	}

	c.complete(data, fetchErr, gen)
	return c.result()
}

// complete применяет исход загрузки к записи и будит присоединившихся.
// Результат загрузки, пережившей Close или Clear, отбрасывается.
func (c *Cache[T]) complete(data T, fetchErr error, gen uint64) {
	c.mu.Lock()

	done := c.inflight
	c.inflight = nil

	if c.closed || gen != c.gen {
		c.mu.Unlock()
		if done != nil {
			close(done)
		}
		return
	}

	c.entry.IsLoading = false
	persist := false
	switch {
	case fetchErr == nil:
		value := data
		c.entry.Data = &value
		c.entry.Timestamp = c.now()
		c.entry.Err = nil
		c.entry.IsOffline = false
		c.entry.UsingStaleCache = false
		persist = true
	case c.entry.Data != nil:
		// Есть что отдать: ошибка проглатывается, данные помечаются stale.
		c.entry.UsingStaleCache = true
		c.entry.Err = nil
		c.logger.WithError(fetchErr).Warn("fetch failed, serving stale cache")
		if c.meter != nil {
			c.meter.RecordStaleServed(c.key)
		}
	default:
		c.entry.Err = fmt.Errorf("fetch %q: %w", c.key, fetchErr)
		c.logger.WithError(fetchErr).Error("fetch failed with no cached fallback")
		if c.meter != nil {
			c.meter.RecordFetchError(c.key)
		}
	}
	snapshotAt := c.entry.Timestamp
	c.mu.Unlock()

	if done != nil {
		close(done)
	}
	if persist {
		c.persist(data, snapshotAt)
	}
}

// persist сохраняет снапшот успешной загрузки вне мьютекса.
func (c *Cache[T]) persist(data T, at time.Time) {
	if c.store == nil {
		return
	}

	raw, err := json.Marshal(data)
	if err != nil {
		c.logger.WithError(err).Warn("failed to marshal cache snapshot")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := c.store.Set(ctx, c.key, domain.Snapshot{Data: raw, Timestamp: at}); err != nil {
		c.logger.WithError(err).Warn("failed to persist cache snapshot")
	}
}

// result возвращает текущее состояние и ошибку записи (если fallback не нашёлся).
func (c *Cache[T]) result() (Entry[T], error) {
	c.mu.Lock()
	entry := c.entry
	c.mu.Unlock()
	return entry, entry.Err
}

// State возвращает снимок состояния записи без инициации загрузки.
func (c *Cache[T]) State() Entry[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entry
}

// Key возвращает ключ записи.
func (c *Cache[T]) Key() string { return c.key }

// Clear сбрасывает запись в пустое состояние и удаляет персистентный снапшот.
// Загрузка, находящаяся в полёте, после Clear свой результат не применяет.
func (c *Cache[T]) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.entry = Entry[T]{}
	c.gen++
	c.mu.Unlock()

	if c.store == nil {
		return nil
	}
	if err := c.store.Delete(ctx, c.key); err != nil {
		return fmt.Errorf("delete snapshot %q: %w", c.key, err)
	}
	return nil
}

// Close останавливает дальнейшие обновления состояния. Завершение загрузки,
// пришедшее после Close, отбрасывается (guard от записей после "unmount").
func (c *Cache[T]) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}
