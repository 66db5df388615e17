package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/mosync/internal/domain"
)

// snapshotStoreInMemory — простая in-memory реализация SnapshotStore.
type snapshotStoreInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Snapshot
}

// NewSnapshotStore возвращает in-memory хранилище снапшотов для локальной
// разработки и тестов.
func NewSnapshotStore() domain.SnapshotStore {
	return &snapshotStoreInMemory{
		items: make(map[string]domain.Snapshot),
	}
}

// Get возвращает снапшот или ErrSnapshotNotFound, если ключа нет.
func (s *snapshotStoreInMemory) Get(_ context.Context, key string) (domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.items[key]
	if !ok {
		return domain.Snapshot{}, domain.ErrSnapshotNotFound
	}
	return snap, nil
}

// Set сохраняет снапшот, перезаписывая предыдущий.
func (s *snapshotStoreInMemory) Set(_ context.Context, key string, snap domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Сохраняем копию данных, чтобы избежать мутаций извне.
	stored := snap
	stored.Data = append([]byte(nil), snap.Data...)
	s.items[key] = stored
	return nil
}

// Delete удаляет снапшот; отсутствие ключа не считается ошибкой.
func (s *snapshotStoreInMemory) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, key)
	return nil
}

// DeleteOlderThan удаляет снапшоты старше cutoff и возвращает их количество.
func (s *snapshotStoreInMemory) DeleteOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for key, snap := range s.items {
		if snap.Timestamp.Before(cutoff) {
			delete(s.items, key)
			deleted++
		}
	}
	return deleted, nil
}
