package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/mosync/internal/domain"
)

// EventType определяет тип push-события синхронизации
type EventType string

const (
	// События заказов
	EventTypeOrderCreated         EventType = "order.created"
	EventTypeOrderFieldsChanged   EventType = "order.fields_changed"
	EventTypeOrderStatusChanged   EventType = "order.status_changed"
	EventTypeOrderPriorityChanged EventType = "order.priority_changed"
	EventTypeAssignmentChanged    EventType = "order.assignment_changed"
	EventTypeOrderDeleted         EventType = "order.deleted"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "mosync.order.events"
	TopicDeadLetterQueue = "mosync.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// EventEnvelope — транспортный конверт push-события.
// Payload зависит от типа события и разбирается в ParseEvent.
type EventEnvelope struct {
	EventType EventType       `json:"event_type"`
	OrderID   string          `json:"order_id"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEventEnvelope создаёт конверт с сериализованной полезной нагрузкой.
func NewEventEnvelope(eventType EventType, orderID string, payload any) (*EventEnvelope, error) {
	env := &EventEnvelope{
		EventType: eventType,
		OrderID:   orderID,
		Timestamp: time.Now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal event payload: %w", err)
		}
		env.Payload = raw
	}
	return env, nil
}

// statusChangedPayload — полезная нагрузка события смены статуса.
type statusChangedPayload struct {
	Status    domain.OrderStatus `json:"status"`
	UpdatedAt time.Time          `json:"updated_at,omitempty"`
}

// priorityChangedPayload — полезная нагрузка события смены приоритета.
type priorityChangedPayload struct {
	Priority  string    `json:"priority"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// assignmentChangedPayload — полезная нагрузка события изменения назначения.
type assignmentChangedPayload struct {
	StepID       string                   `json:"step_id,omitempty"`
	AssignmentID string                   `json:"assignment_id,omitempty"`
	MachineID    *string                  `json:"machine_id,omitempty"`
	OperatorID   *string                  `json:"operator_id,omitempty"`
	Status       *domain.AssignmentStatus `json:"status,omitempty"`
	Note         *string                  `json:"note,omitempty"`
	Reason       *string                  `json:"reason,omitempty"`
	UpdatedAt    time.Time                `json:"updated_at,omitempty"`
}

// ParseEvent разбирает сообщение Kafka в типизированное событие reconciliation.
// Сообщение без идентификатора заказа или с неизвестным типом отклоняется.
func ParseEvent(message *sarama.ConsumerMessage) (domain.Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(message.Value, &env); err != nil {
		return nil, fmt.Errorf("unmarshal event envelope: %w", err)
	}
	return env.ToDomainEvent()
}

// ToDomainEvent превращает конверт в доменное событие.
func (env *EventEnvelope) ToDomainEvent() (domain.Event, error) {
	switch env.EventType {
	case EventTypeOrderCreated:
		var order domain.Order
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &order); err != nil {
				return nil, fmt.Errorf("unmarshal created order: %w", err)
			}
		}
		if order.ID == "" {
			order.ID = env.OrderID
		}
		if order.ID == "" {
			return nil, domain.ErrOrderIDRequired
		}
		return domain.OrderCreated{Order: order}, nil

	case EventTypeOrderFieldsChanged:
		if env.OrderID == "" {
			return nil, domain.ErrOrderIDRequired
		}
		var patch domain.OrderPatch
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &patch); err != nil {
				return nil, fmt.Errorf("unmarshal field patch: %w", err)
			}
		}
		return domain.OrderFieldsChanged{OrderID: env.OrderID, Patch: patch}, nil

	case EventTypeOrderStatusChanged:
		if env.OrderID == "" {
			return nil, domain.ErrOrderIDRequired
		}
		var payload statusChangedPayload
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &payload); err != nil {
				return nil, fmt.Errorf("unmarshal status payload: %w", err)
			}
		}
		updatedAt := payload.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = env.Timestamp
		}
		return domain.OrderStatusChanged{
			OrderID:   env.OrderID,
			Status:    payload.Status,
			UpdatedAt: updatedAt,
		}, nil

	case EventTypeOrderPriorityChanged:
		if env.OrderID == "" {
			return nil, domain.ErrOrderIDRequired
		}
		var payload priorityChangedPayload
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &payload); err != nil {
				return nil, fmt.Errorf("unmarshal priority payload: %w", err)
			}
		}
		updatedAt := payload.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = env.Timestamp
		}
		return domain.OrderPriorityChanged{
			OrderID:   env.OrderID,
			Priority:  payload.Priority,
			UpdatedAt: updatedAt,
		}, nil

	case EventTypeAssignmentChanged:
		if env.OrderID == "" {
			return nil, domain.ErrOrderIDRequired
		}
		var payload assignmentChangedPayload
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &payload); err != nil {
				return nil, fmt.Errorf("unmarshal assignment payload: %w", err)
			}
		}
		updatedAt := payload.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = env.Timestamp
		}
		return domain.AssignmentChanged{
			OrderID:      env.OrderID,
			StepID:       payload.StepID,
			AssignmentID: payload.AssignmentID,
			MachineID:    payload.MachineID,
			OperatorID:   payload.OperatorID,
			Status:       payload.Status,
			Note:         payload.Note,
			Reason:       payload.Reason,
			UpdatedAt:    updatedAt,
		}, nil

	case EventTypeOrderDeleted:
		if env.OrderID == "" {
			return nil, domain.ErrOrderIDRequired
		}
		return domain.OrderDeleted{OrderID: env.OrderID}, nil

	default:
		return nil, fmt.Errorf("event type %q: %w", env.EventType, domain.ErrUnknownEventType)
	}
}
