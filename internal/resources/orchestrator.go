// Package resources композирует несколько справочных кэшей в единый сигнал
// готовности формы: форма заказа может открываться, когда все первичные
// справочники (филиалы, клиенты, станки, продукты, материалы) загружены.
package resources

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/mosync/internal/cache"
	"github.com/vladislavdragonenkov/mosync/internal/domain"
)

var (
	// ErrResourceUnknown возвращается при обращении к незарегистрированному ресурсу.
	ErrResourceUnknown = errors.New("unknown resource")
	// ErrResourceDuplicate возвращается при повторной регистрации имени.
	ErrResourceDuplicate = errors.New("resource already registered")
)

// ReferenceCache — кэш списка справочных сущностей.
type ReferenceCache = cache.Cache[[]domain.Reference]

type resource struct {
	name    string
	primary bool
	cache   *ReferenceCache
}

// Orchestrator объединяет именованные справочные кэши.
// Готовность (IsReady) требует данных во всех первичных ресурсах;
// таксономии типов участвуют только в агрегатном IsLoading.
type Orchestrator struct {
	mu        sync.RWMutex
	resources []*resource
	byName    map[string]*resource
	logger    *log.Entry
}

// NewOrchestrator создаёт пустой оркестратор справочников.
func NewOrchestrator(logger *log.Entry) *Orchestrator {
	if logger == nil {
		logger = log.WithField("component", "resources")
	}
	return &Orchestrator{
		byName: make(map[string]*resource),
		logger: logger,
	}
}

// Register добавляет именованный кэш. Первичные ресурсы участвуют в расчёте
// готовности; порядок регистрации сохраняется.
func (o *Orchestrator) Register(name string, primary bool, c *ReferenceCache) error {
	if name == "" {
		return fmt.Errorf("register resource: %w", domain.ErrCacheKeyRequired)
	}
	if c == nil {
		return fmt.Errorf("register resource %q: nil cache", name)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.byName[name]; exists {
		return fmt.Errorf("register resource %q: %w", name, ErrResourceDuplicate)
	}
	res := &resource{name: name, primary: primary, cache: c}
	o.resources = append(o.resources, res)
	o.byName[name] = res
	return nil
}

// Names возвращает имена ресурсов в порядке регистрации.
func (o *Orchestrator) Names() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	names := make([]string, 0, len(o.resources))
	for _, res := range o.resources {
		names = append(names, res.name)
	}
	return names
}

// IsLoading — логическое ИЛИ флагов загрузки всех ресурсов.
func (o *Orchestrator) IsLoading() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()

	for _, res := range o.resources {
		if res.cache.State().IsLoading {
			return true
		}
	}
	return false
}

// IsReady — ничего не грузится и все первичные ресурсы имеют данные.
func (o *Orchestrator) IsReady() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()

	for _, res := range o.resources {
		state := res.cache.State()
		if state.IsLoading {
			return false
		}
		if res.primary && !state.HasData() {
			return false
		}
	}
	return true
}

// Get загружает (или отдаёт из кэша) список по имени ресурса.
func (o *Orchestrator) Get(ctx context.Context, name string) ([]domain.Reference, error) {
	res, err := o.lookup(name)
	if err != nil {
		return nil, err
	}

	entry, err := res.cache.Get(ctx)
	if err != nil {
		return nil, err
	}
	if entry.Data == nil {
		return []domain.Reference{}, nil
	}
	return *entry.Data, nil
}

// State возвращает наблюдаемое состояние ресурса.
func (o *Orchestrator) State(name string) (cache.Entry[[]domain.Reference], error) {
	res, err := o.lookup(name)
	if err != nil {
		return cache.Entry[[]domain.Reference]{}, err
	}
	return res.cache.State(), nil
}

// Refresh принудительно обновляет один ресурс (passthrough к кэшу).
func (o *Orchestrator) Refresh(ctx context.Context, name string) error {
	res, err := o.lookup(name)
	if err != nil {
		return err
	}
	_, err = res.cache.Refresh(ctx)
	return err
}

// RefreshAll запускает обновление всех ресурсов и не ждёт завершения.
// Наблюдатели видят прогресс через IsLoading каждого ресурса.
func (o *Orchestrator) RefreshAll(ctx context.Context) {
	o.mu.RLock()
	snapshot := append([]*resource(nil), o.resources...)
	o.mu.RUnlock()

	for _, res := range snapshot {
		go func(res *resource) {
			if _, err := res.cache.Refresh(ctx); err != nil {
				o.logger.WithError(err).WithField("resource", res.name).Warn("background refresh failed")
			}
		}(res)
	}
}

// WarmUp параллельно прогревает все ресурсы и ждёт завершения.
// Ошибка любого первичного ресурса прерывает прогрев.
func (o *Orchestrator) WarmUp(ctx context.Context) error {
	o.mu.RLock()
	snapshot := append([]*resource(nil), o.resources...)
	o.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, res := range snapshot {
		g.Go(func() error {
			if _, err := res.cache.Get(gctx); err != nil {
				if res.primary {
					return fmt.Errorf("warm up %q: %w", res.name, err)
				}
				// Таксономии типов не критичны для готовности.
				o.logger.WithError(err).WithField("resource", res.name).Warn("non-primary warm up failed")
			}
			return nil
		})
	}
	return g.Wait()
}

func (o *Orchestrator) lookup(name string) (*resource, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	res, ok := o.byName[name]
	if !ok {
		return nil, fmt.Errorf("resource %q: %w", name, ErrResourceUnknown)
	}
	return res, nil
}
