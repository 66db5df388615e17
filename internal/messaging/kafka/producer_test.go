package kafka

import (
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
)

func TestProducer_PublishEvent(t *testing.T) {
	// Создаем mock producer
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	// Настраиваем ожидания
	mockProducer.ExpectSendMessageAndSucceed()

	env, err := NewEventEnvelope(EventTypeOrderStatusChanged, "order-123", map[string]interface{}{
		"status": "approved",
	})
	if err != nil {
		t.Fatalf("NewEventEnvelope failed: %v", err)
	}

	// Публикуем событие
	if err := producer.PublishEvent(TopicOrderEvents, "order-123", env); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Проверяем, что все ожидания выполнены
	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_Error(t *testing.T) {
	// Создаем mock producer с ошибкой
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	// Настраиваем ожидание ошибки
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	env, err := NewEventEnvelope(EventTypeOrderDeleted, "order-123", nil)
	if err != nil {
		t.Fatalf("NewEventEnvelope failed: %v", err)
	}

	if err := producer.PublishEvent(TopicOrderEvents, "order-123", env); err == nil {
		t.Fatal("expected error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEnvelope(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	mockProducer.ExpectSendMessageAndSucceed()

	env, err := NewEventEnvelope(EventTypeOrderPriorityChanged, "order-123", map[string]interface{}{
		"priority": "urgent",
	})
	if err != nil {
		t.Fatalf("NewEventEnvelope failed: %v", err)
	}

	if err := producer.PublishEnvelope(env); err != nil {
		t.Fatalf("PublishEnvelope failed: %v", err)
	}

	// Конверт без идентификатора заказа отклоняется до отправки
	if err := producer.PublishEnvelope(&EventEnvelope{EventType: EventTypeOrderDeleted}); err == nil {
		t.Fatal("expected error for envelope without order id")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewEventEnvelope(t *testing.T) {
	env, err := NewEventEnvelope(EventTypeOrderStatusChanged, "order-123", map[string]interface{}{
		"status": "in_progress",
	})
	if err != nil {
		t.Fatalf("NewEventEnvelope failed: %v", err)
	}

	if env.EventType != EventTypeOrderStatusChanged {
		t.Errorf("expected event type %s, got %s", EventTypeOrderStatusChanged, env.EventType)
	}

	if env.OrderID != "order-123" {
		t.Errorf("expected order id order-123, got %s", env.OrderID)
	}

	if len(env.Payload) == 0 {
		t.Error("payload not set")
	}

	// Проверяем, что timestamp установлен
	if env.Timestamp.IsZero() {
		t.Error("timestamp should not be zero")
	}

	// Проверяем, что timestamp близок к текущему времени
	if time.Since(env.Timestamp) > time.Second {
		t.Error("timestamp should be close to current time")
	}
}

func TestNewEventEnvelope_UnserializablePayload(t *testing.T) {
	if _, err := NewEventEnvelope(EventTypeOrderCreated, "order-123", make(chan int)); err == nil {
		t.Fatal("expected marshal error")
	}
}
