package domain

import (
	"context"
	"encoding/json"
	"time"
)

// Snapshot — персистентный слепок кэша: сырые данные плюс момент загрузки.
// Читается один раз при создании записи кэша, пишется при каждой успешной
// загрузке, удаляется при Clear.
type Snapshot struct {
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// SnapshotStore описывает key-value хранилище снапшотов кэша.
// Реализации: in-memory для тестов и по умолчанию, PostgreSQL для
// долгоживущего агента.
type SnapshotStore interface {
	// Get возвращает снапшот по ключу или ErrSnapshotNotFound.
	Get(ctx context.Context, key string) (Snapshot, error)
	// Set сохраняет снапшот, перезаписывая предыдущий.
	Set(ctx context.Context, key string, snap Snapshot) error
	// Delete удаляет снапшот; отсутствие ключа не является ошибкой.
	Delete(ctx context.Context, key string) error
	// DeleteOlderThan удаляет снапшоты старше cutoff и возвращает их количество.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// Connectivity — сигнал доступности сети. Кэш консультируется с ним перед
// каждой попыткой загрузки: offline с кэшем — отдать stale, offline без
// кэша — ошибка без автоматических повторов.
type Connectivity interface {
	Online() bool
}

// ConnectivityFunc адаптирует функцию к интерфейсу Connectivity.
type ConnectivityFunc func() bool

// Online возвращает результат обёрнутой функции.
func (f ConnectivityFunc) Online() bool { return f() }

// AlwaysOnline — заглушка для окружений без датчика сети.
var AlwaysOnline = ConnectivityFunc(func() bool { return true })
