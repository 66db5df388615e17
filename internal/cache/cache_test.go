package cache_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/mosync/internal/cache"
	"github.com/vladislavdragonenkov/mosync/internal/domain"
	"github.com/vladislavdragonenkov/mosync/internal/storage/memory"
)

type ordersPayload struct {
	Orders []string `json:"orders"`
}

// fakeClock — управляемый источник времени для проверки TTL.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countingFetch считает вызовы и отдаёт заранее заданные результаты.
type countingFetch struct {
	mu      sync.Mutex
	calls   atomic.Int64
	result  ordersPayload
	err     error
	block   chan struct{} // если задан, fetch ждёт закрытия канала
	started chan struct{} // если задан, закрывается на первом входе в fetch
}

func (f *countingFetch) fetch(ctx context.Context) (ordersPayload, error) {
	n := f.calls.Add(1)
	if f.started != nil && n == 1 {
		close(f.started)
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result, f.err
}

func (f *countingFetch) setResult(result ordersPayload, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.result = result
	f.err = err
}

func TestCache_NoDuplicateRequests(t *testing.T) {
	fetcher := &countingFetch{
		result:  ordersPayload{Orders: []string{"o-1"}},
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}
	c, err := cache.New("orders", time.Minute, fetcher.fetch)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]cache.Entry[ordersPayload], callers)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = c.Get(context.Background())
	}()
	<-fetcher.started

	// Остальные вызовы приходят, пока первая загрузка в полёте.
	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = c.Get(context.Background())
		}(i)
	}

	// Даём присоединяющимся дойти до ожидания, затем завершаем загрузку.
	time.Sleep(50 * time.Millisecond)
	close(fetcher.block)
	wg.Wait()

	if got := fetcher.calls.Load(); got != 1 {
		t.Fatalf("fetch calls = %d, want 1", got)
	}
	for i, entry := range results {
		if !entry.HasData() || len(entry.Data.Orders) != 1 {
			t.Fatalf("caller %d got no data: %+v", i, entry)
		}
	}
}

func TestCache_TTLRespect(t *testing.T) {
	clock := newFakeClock()
	fetcher := &countingFetch{result: ordersPayload{Orders: []string{"o-1"}}}
	ttl := 5 * time.Minute

	c, err := cache.New("orders", ttl, fetcher.fetch, cache.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	if _, err := c.Get(context.Background()); err != nil {
		t.Fatalf("first get: %v", err)
	}
	if got := fetcher.calls.Load(); got != 1 {
		t.Fatalf("fetch calls = %d, want 1", got)
	}

	// За мгновение до истечения TTL — данные из кэша, без сети.
	clock.Advance(ttl - time.Second)
	entry, err := c.Get(context.Background())
	if err != nil {
		t.Fatalf("cached get: %v", err)
	}
	if got := fetcher.calls.Load(); got != 1 {
		t.Fatalf("fetch calls = %d, want 1 (TTL not expired)", got)
	}
	if !entry.HasData() {
		t.Fatal("expected cached data")
	}

	// После истечения TTL — новая загрузка.
	clock.Advance(2 * time.Second)
	if _, err := c.Get(context.Background()); err != nil {
		t.Fatalf("expired get: %v", err)
	}
	if got := fetcher.calls.Load(); got != 2 {
		t.Fatalf("fetch calls = %d, want 2 (TTL expired)", got)
	}
}

func TestCache_StaleFallbackOnError(t *testing.T) {
	fetcher := &countingFetch{result: ordersPayload{Orders: []string{"o-1", "o-2"}}}
	c, err := cache.New("orders", time.Minute, fetcher.fetch)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	before, err := c.Get(context.Background())
	if err != nil {
		t.Fatalf("warmup get: %v", err)
	}

	fetcher.setResult(ordersPayload{}, errors.New("upstream timeout"))
	after, err := c.Refresh(context.Background())
	if err != nil {
		t.Fatalf("refresh with fallback must not error: %v", err)
	}

	if !after.UsingStaleCache {
		t.Fatal("expected usingStaleCache after failed refresh")
	}
	if after.Err != nil {
		t.Fatalf("error must be swallowed when fallback exists: %v", after.Err)
	}
	if len(after.Data.Orders) != len(before.Data.Orders) {
		t.Fatalf("data changed by failed refresh: %+v", after.Data)
	}
}

func TestCache_OfflineShortCircuit(t *testing.T) {
	online := atomic.Bool{}
	online.Store(true)
	conn := domain.ConnectivityFunc(func() bool { return online.Load() })

	fetcher := &countingFetch{result: ordersPayload{Orders: []string{"o-1"}}}
	c, err := cache.New("orders", time.Nanosecond, fetcher.fetch, cache.WithConnectivity(conn))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	if _, err := c.Get(context.Background()); err != nil {
		t.Fatalf("warmup get: %v", err)
	}
	calls := fetcher.calls.Load()

	online.Store(false)
	entry, err := c.Get(context.Background())
	if err != nil {
		t.Fatalf("offline get with cache must not error: %v", err)
	}
	if fetcher.calls.Load() != calls {
		t.Fatal("offline get must not issue network calls")
	}
	if !entry.IsOffline || !entry.UsingStaleCache {
		t.Fatalf("expected offline+stale markers: %+v", entry)
	}
	if !entry.HasData() {
		t.Fatal("expected cached data while offline")
	}
}

func TestCache_OfflineNoData(t *testing.T) {
	conn := domain.ConnectivityFunc(func() bool { return false })
	fetcher := &countingFetch{}

	c, err := cache.New("orders", time.Minute, fetcher.fetch, cache.WithConnectivity(conn))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	entry, err := c.Get(context.Background())
	if !domain.IsNoConnection(err) {
		t.Fatalf("expected ErrNoConnection, got %v", err)
	}
	if entry.HasData() {
		t.Fatal("expected no data")
	}
	if fetcher.calls.Load() != 0 {
		t.Fatal("offline get must not attempt a fetch")
	}
}

func TestCache_ErrorWithoutFallback(t *testing.T) {
	fetcher := &countingFetch{err: errors.New("boom")}
	c, err := cache.New("orders", time.Minute, fetcher.fetch)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	entry, err := c.Get(context.Background())
	if err == nil {
		t.Fatal("expected error without fallback")
	}
	if entry.HasData() {
		t.Fatal("expected data to stay nil")
	}
	if entry.Err == nil {
		t.Fatal("expected entry error to be set")
	}
}

func TestCache_PersistAndClear(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSnapshotStore()
	fetcher := &countingFetch{result: ordersPayload{Orders: []string{"o-1"}}}

	c, err := cache.New("orders", time.Minute, fetcher.fetch, cache.WithStore(store))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	if _, err := c.Get(ctx); err != nil {
		t.Fatalf("get: %v", err)
	}

	snap, err := store.Get(ctx, "orders")
	if err != nil {
		t.Fatalf("snapshot must be persisted on success: %v", err)
	}
	var persisted ordersPayload
	if err := json.Unmarshal(snap.Data, &persisted); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if len(persisted.Orders) != 1 {
		t.Fatalf("unexpected snapshot payload: %+v", persisted)
	}

	if err := c.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if c.State().HasData() {
		t.Fatal("entry must be empty after clear")
	}
	if _, err := store.Get(ctx, "orders"); !domain.IsSnapshotNotFound(err) {
		t.Fatalf("snapshot must be deleted on clear, got %v", err)
	}
}

func TestCache_ClearDuringFetchStaysEmpty(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSnapshotStore()
	fetcher := &countingFetch{
		result:  ordersPayload{Orders: []string{"o-1"}},
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}

	c, err := cache.New("orders", time.Minute, fetcher.fetch, cache.WithStore(store))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Get(ctx)
	}()
	<-fetcher.started

	// Clear приходит, пока загрузка в полёте: её результат не должен
	// ни вернуть данные в запись, ни пересоздать удалённый снапшот.
	if err := c.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	close(fetcher.block)
	<-done

	if c.State().HasData() {
		t.Fatal("entry must stay empty after clear during fetch")
	}
	if _, err := store.Get(ctx, "orders"); !domain.IsSnapshotNotFound(err) {
		t.Fatalf("snapshot must stay deleted after clear during fetch, got %v", err)
	}

	// Следующий Get запускает новую загрузку и кэш снова наполняется.
	entry, err := c.Get(ctx)
	if err != nil {
		t.Fatalf("get after clear: %v", err)
	}
	if !entry.HasData() {
		t.Fatal("expected fresh data after clear")
	}
	if got := fetcher.calls.Load(); got != 2 {
		t.Fatalf("fetch calls = %d, want 2", got)
	}
}

func TestCache_HydratesFromSnapshot(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSnapshotStore()
	hydratedAt := time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)
	raw, _ := json.Marshal(ordersPayload{Orders: []string{"o-cached"}})
	if err := store.Set(ctx, "orders", domain.Snapshot{Data: raw, Timestamp: hydratedAt}); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	fetcher := &countingFetch{}
	c, err := cache.New("orders", time.Minute, fetcher.fetch, cache.WithStore(store))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	entry := c.State()
	if !entry.HasData() || entry.Data.Orders[0] != "o-cached" {
		t.Fatalf("expected hydrated data: %+v", entry)
	}
	if !entry.Timestamp.Equal(hydratedAt) {
		t.Fatalf("hydrated timestamp = %v, want %v", entry.Timestamp, hydratedAt)
	}
	if fetcher.calls.Load() != 0 {
		t.Fatal("hydration must not trigger a fetch")
	}
}

func TestCache_ColdStartScenario(t *testing.T) {
	// Холодный старт: пустой кэш, один запрос, нормализованный ответ,
	// timestamp примерно равен моменту завершения загрузки.
	clock := newFakeClock()
	fetchAt := clock.Now()
	fetcher := &countingFetch{result: ordersPayload{Orders: []string{"1"}}}

	c, err := cache.New("orders", 300*time.Second, fetcher.fetch, cache.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	entry, err := c.Get(context.Background())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fetcher.calls.Load() != 1 {
		t.Fatalf("fetch calls = %d, want 1", fetcher.calls.Load())
	}
	if !entry.HasData() || entry.Data.Orders[0] != "1" {
		t.Fatalf("unexpected data: %+v", entry.Data)
	}
	if !entry.Timestamp.Equal(fetchAt) {
		t.Fatalf("timestamp = %v, want %v", entry.Timestamp, fetchAt)
	}
	if entry.IsLoading || entry.Err != nil || entry.IsOffline || entry.UsingStaleCache {
		t.Fatalf("expected clean entry state: %+v", entry)
	}
}

func TestCache_CloseStopsUpdates(t *testing.T) {
	fetcher := &countingFetch{
		result:  ordersPayload{Orders: []string{"o-1"}},
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}
	c, err := cache.New("orders", time.Minute, fetcher.fetch)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Get(context.Background())
	}()
	<-fetcher.started

	// Закрываем кэш, пока загрузка в полёте: её результат отбрасывается.
	c.Close()
	close(fetcher.block)
	<-done

	if c.State().HasData() {
		t.Fatal("orphaned fetch completion must not update a closed cache")
	}
	if _, err := c.Get(context.Background()); !errors.Is(err, domain.ErrCacheClosed) {
		t.Fatalf("expected ErrCacheClosed, got %v", err)
	}
}

func TestCache_New_Validation(t *testing.T) {
	if _, err := cache.New[ordersPayload]("", time.Minute, func(context.Context) (ordersPayload, error) {
		return ordersPayload{}, nil
	}); !errors.Is(err, domain.ErrCacheKeyRequired) {
		t.Fatalf("expected ErrCacheKeyRequired, got %v", err)
	}
	if _, err := cache.New[ordersPayload]("orders", time.Minute, nil); !errors.Is(err, domain.ErrFetchRequired) {
		t.Fatalf("expected ErrFetchRequired, got %v", err)
	}
}
