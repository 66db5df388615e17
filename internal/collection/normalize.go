// Package collection хранит пагинированную коллекцию заказов и применяет
// к ней push-события без полного перезапроса (reconciliation).
package collection

import (
	"bytes"
	"encoding/json"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/mosync/internal/domain"
)

// Payload — каноническая форма ответа на полную загрузку списка заказов.
// Pagination и Summary переносятся как непрозрачные слепки и заменяются
// только целиком.
type Payload struct {
	Orders       []domain.Order  `json:"orders"`
	Pagination   json.RawMessage `json:"pagination,omitempty"`
	Summary      json.RawMessage `json:"summary,omitempty"`
	StatusCounts map[string]int  `json:"status_counts,omitempty"`
}

// listEnvelope покрывает известные формы ответа upstream-источника.
type listEnvelope struct {
	Data         json.RawMessage `json:"data,omitempty"`
	Orders       json.RawMessage `json:"orders,omitempty"`
	Items        json.RawMessage `json:"items,omitempty"`
	Pagination   json.RawMessage `json:"pagination,omitempty"`
	Summary      json.RawMessage `json:"summary,omitempty"`
	StatusCounts map[string]int  `json:"status_counts,omitempty"`
}

// Normalize приводит сырой ответ к канонической форме Payload.
// Поддерживаются четыре формы: голый массив, объект с orders/items,
// {"data": {объект}} и {"data": [массив]}. Нераспознанная форма деградирует
// до пустого списка и логируется, но никогда не приводит к ошибке.
func Normalize(raw []byte, logger *log.Entry) Payload {
	if logger == nil {
		logger = log.WithField("component", "normalize")
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Payload{Orders: []domain.Order{}}
	}

	// Голый массив заказов.
	if raw[0] == '[' {
		return Payload{Orders: decodeOrders(raw, logger)}
	}

	if raw[0] != '{' {
		logger.WithField("payload_prefix", prefix(raw)).Warn("unrecognized payload shape")
		return Payload{Orders: []domain.Order{}}
	}

	var env listEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		logger.WithError(err).Warn("failed to decode payload envelope")
		return Payload{Orders: []domain.Order{}}
	}

	// Вложенная форма {"data": ...} разворачивается рекурсивно:
	// внутри может быть как массив, так и полный объект со своей пагинацией.
	if len(env.Data) > 0 && !bytes.Equal(bytes.TrimSpace(env.Data), []byte("null")) {
		return Normalize(env.Data, logger)
	}

	list := env.Orders
	if len(list) == 0 {
		list = env.Items
	}
	if len(list) == 0 {
		logger.WithField("payload_prefix", prefix(raw)).Warn("payload has no recognizable order list")
		return Payload{Orders: []domain.Order{}}
	}

	return Payload{
		Orders:       decodeOrders(list, logger),
		Pagination:   env.Pagination,
		Summary:      env.Summary,
		StatusCounts: env.StatusCounts,
	}
}

func decodeOrders(raw []byte, logger *log.Entry) []domain.Order {
	var orders []domain.Order
	if err := json.Unmarshal(raw, &orders); err != nil {
		logger.WithError(err).Warn("failed to decode order list")
		return []domain.Order{}
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	return orders
}

// NormalizeList извлекает список справочных сущностей по тому же правилу
// форм, что и Normalize: голый массив, объект с items/orders, вложенный data.
// Нераспознанная форма деградирует до пустого списка.
func NormalizeList(raw []byte, logger *log.Entry) []domain.Reference {
	if logger == nil {
		logger = log.WithField("component", "normalize")
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []domain.Reference{}
	}

	if raw[0] == '[' {
		return decodeReferences(raw, logger)
	}

	if raw[0] != '{' {
		logger.WithField("payload_prefix", prefix(raw)).Warn("unrecognized list payload shape")
		return []domain.Reference{}
	}

	var env listEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		logger.WithError(err).Warn("failed to decode list envelope")
		return []domain.Reference{}
	}

	if len(env.Data) > 0 && !bytes.Equal(bytes.TrimSpace(env.Data), []byte("null")) {
		return NormalizeList(env.Data, logger)
	}

	list := env.Items
	if len(list) == 0 {
		list = env.Orders
	}
	if len(list) == 0 {
		logger.WithField("payload_prefix", prefix(raw)).Warn("list payload has no recognizable items")
		return []domain.Reference{}
	}
	return decodeReferences(list, logger)
}

func decodeReferences(raw []byte, logger *log.Entry) []domain.Reference {
	var refs []domain.Reference
	if err := json.Unmarshal(raw, &refs); err != nil {
		logger.WithError(err).Warn("failed to decode reference list")
		return []domain.Reference{}
	}
	if refs == nil {
		refs = []domain.Reference{}
	}
	return refs
}

// prefix возвращает усечённое начало полезной нагрузки для лога.
func prefix(raw []byte) string {
	const limit = 64
	if len(raw) <= limit {
		return string(raw)
	}
	return string(raw[:limit]) + "..."
}
