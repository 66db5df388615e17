package collection

import (
	"encoding/json"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/mosync/internal/domain"
	"github.com/vladislavdragonenkov/mosync/internal/metrics"
)

// Store держит результат последней полной загрузки плюс инкрементальные
// правки от push-событий. Инварианты:
//   - идентификатор заказа встречается в списке не более одного раза;
//   - порядок списка меняет только вставка нового заказа (prepend),
//     всё остальное правится на месте.
type Store struct {
	mu           sync.RWMutex
	orders       []domain.Order
	pagination   json.RawMessage
	summary      json.RawMessage
	statusCounts map[string]int
	isLoading    bool
	err          error

	// Заказы, вставленные push-событием created после начала последней
	// полной загрузки: полная загрузка не должна их стирать.
	recentlyCreated map[string]struct{}

	logger *log.Entry
	meter  *metrics.SyncMetrics
}

// StoreOption настраивает Store.
type StoreOption func(*Store)

// WithStoreLogger задаёт logger коллекции.
func WithStoreLogger(logger *log.Entry) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// WithStoreMetrics задаёт метрики коллекции.
func WithStoreMetrics(m *metrics.SyncMetrics) StoreOption {
	return func(s *Store) { s.meter = m }
}

// NewStore возвращает пустую коллекцию.
func NewStore(options ...StoreOption) *Store {
	s := &Store{
		orders:          []domain.Order{},
		recentlyCreated: make(map[string]struct{}),
	}
	for _, option := range options {
		option(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "collection")
	}
	return s
}

// ApplyFullFetch целиком заменяет список и производные агрегаты результатом
// полной загрузки. Заказы, вставленные событием created во время загрузки
// и отсутствующие в её результате, переносятся в начало нового списка:
// поздно пришедшая полная загрузка не должна их стирать.
func (s *Store) ApplyFullFetch(payload Payload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]domain.Order, 0, len(payload.Orders))
	seen := make(map[string]struct{}, len(payload.Orders))
	for _, order := range payload.Orders {
		if order.ID == "" {
			continue
		}
		if _, dup := seen[order.ID]; dup {
			// Upstream прислал дубль: первый экземпляр уже в списке.
			s.logger.WithField("order_id", order.ID).Warn("duplicate order in full fetch payload")
			continue
		}
		seen[order.ID] = struct{}{}
		next = append(next, order)
	}

	var preserved []domain.Order
	for id := range s.recentlyCreated {
		if _, ok := seen[id]; ok {
			continue
		}
		for i := range s.orders {
			if s.orders[i].ID == id {
				preserved = append(preserved, s.orders[i])
				break
			}
		}
	}
	if len(preserved) > 0 {
		next = append(preserved, next...)
	}

	s.orders = next
	s.pagination = payload.Pagination
	s.summary = payload.Summary
	s.statusCounts = payload.StatusCounts
	s.isLoading = false
	s.err = nil
	s.recentlyCreated = make(map[string]struct{})

	if s.meter != nil {
		s.meter.SetCollectionSize(len(s.orders))
	}
}

// Insert добавляет заказ в начало списка (соглашение "новое сверху").
// Если заказ с таким идентификатором уже есть, вместо вставки выполняется
// merge на месте с сохранением позиции; возвращается false.
func (s *Store) Insert(order domain.Order) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.orders {
		if s.orders[i].ID == order.ID {
			s.orders[i] = order
			return false
		}
	}

	s.orders = append([]domain.Order{order}, s.orders...)
	s.recentlyCreated[order.ID] = struct{}{}
	if s.meter != nil {
		s.meter.SetCollectionSize(len(s.orders))
	}
	return true
}

// Mutate находит заказ по идентификатору и применяет fn к его копии.
// Если fn возвращает true, копия атомарно заменяет прежнюю версию на той же
// позиции. Возвращает (найден, применён).
func (s *Store) Mutate(id string, fn func(*domain.Order) bool) (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.orders {
		if s.orders[i].ID != id {
			continue
		}
		clone := s.orders[i].Clone()
		if !fn(&clone) {
			return true, false
		}
		s.orders[i] = clone
		return true, true
	}
	return false, false
}

// Remove удаляет заказ по идентификатору; отсутствие — no-op.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.orders {
		if s.orders[i].ID != id {
			continue
		}
		s.orders = append(s.orders[:i:i], s.orders[i+1:]...)
		delete(s.recentlyCreated, id)
		if s.meter != nil {
			s.meter.SetCollectionSize(len(s.orders))
		}
		return true
	}
	return false
}

// RequestStarted помечает начало загрузки или отправки обновления.
func (s *Store) RequestStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isLoading = true
	s.err = nil
}

// RequestFailed снимает флаг загрузки и сохраняет ошибку; список не трогается.
func (s *Store) RequestFailed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isLoading = false
	s.err = err
}

// RequestSucceeded снимает флаг загрузки после успешной отправки точечного
// обновления. Если сервер вернул заказ, присутствующий в списке, он вливается
// на своё место; отсутствующий заказ не вставляется (он вне текущей страницы).
func (s *Store) RequestSucceeded(updated *domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.isLoading = false
	s.err = nil
	if updated == nil || updated.ID == "" {
		return
	}
	for i := range s.orders {
		if s.orders[i].ID == updated.ID {
			s.orders[i] = *updated
			return
		}
	}
}

// Orders возвращает копию списка заказов в текущем порядке.
func (s *Store) Orders() []domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Order(nil), s.orders...)
}

// Get возвращает заказ по идентификатору.
func (s *Store) Get(id string) (domain.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.orders {
		if s.orders[i].ID == id {
			return s.orders[i], true
		}
	}
	return domain.Order{}, false
}

// Len возвращает количество заказов в коллекции.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

// Pagination возвращает непрозрачный слепок пагинации последней загрузки.
func (s *Store) Pagination() json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pagination
}

// Summary возвращает непрозрачный слепок сводки последней загрузки.
func (s *Store) Summary() json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summary
}

// StatusCounts возвращает счётчики статусов последней загрузки.
func (s *Store) StatusCounts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int, len(s.statusCounts))
	for k, v := range s.statusCounts {
		counts[k] = v
	}
	return counts
}

// IsLoading сообщает, идёт ли сейчас загрузка или отправка обновления.
func (s *Store) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isLoading
}

// Err возвращает ошибку последнего запроса (nil после успеха).
func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}
