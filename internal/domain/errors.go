package domain

import "errors"

var (
	// ErrNoConnection возвращается, когда сеть недоступна и в кэше нет данных.
	ErrNoConnection = errors.New("no network connection and no cached data")
	// ErrSnapshotNotFound возвращается хранилищем снапшотов при отсутствии ключа.
	ErrSnapshotNotFound = errors.New("cache snapshot not found")
	// ErrCacheKeyRequired — ключ кэша обязателен.
	ErrCacheKeyRequired = errors.New("cache key is required")
	// ErrFetchRequired — кэш создан без функции загрузки.
	ErrFetchRequired = errors.New("fetch function is required")
	// ErrCacheClosed возвращается после закрытия кэша: обновления состояния
	// от "осиротевших" загрузок должны прекратиться.
	ErrCacheClosed = errors.New("cache is closed")
	// ErrOrderIDRequired — событие без идентификатора заказа не обрабатывается.
	ErrOrderIDRequired = errors.New("order id is required")
	// ErrUnknownEventType — push-канал прислал событие неизвестного типа.
	ErrUnknownEventType = errors.New("unknown event type")
	// ErrIllegalStatusTransition сигнализирует о недопустимом переходе статуса
	// (используется только в строгом режиме reconciler; по умолчанию переход
	// принимается и логируется).
	ErrIllegalStatusTransition = errors.New("illegal order status transition")
)

// IsNoConnection проверяет, является ли ошибка отсутствием соединения.
func IsNoConnection(err error) bool {
	return errors.Is(err, ErrNoConnection)
}

// IsSnapshotNotFound проверяет, является ли ошибка отсутствием снапшота.
func IsSnapshotNotFound(err error) bool {
	return errors.Is(err, ErrSnapshotNotFound)
}
