package app

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/mosync/internal/messaging/kafka"
)

// initKafkaConsumer создает consumer push-событий с DLQ producer.
// Пустой brokers отключает consumer: возвращается nil, nil, nil.
func initKafkaConsumer(cfg Config, handler kafka.MessageHandler, logger *log.Entry) (*kafka.Consumer, *kafka.Producer, error) {
	if strings.TrimSpace(cfg.KafkaBrokers) == "" {
		return nil, nil, nil
	}

	brokerList := strings.Split(cfg.KafkaBrokers, ",")

	dlqProducer, err := kafka.NewProducer(brokerList)
	if err != nil {
		logger.WithError(err).Warn("failed to create dlq producer, continuing without DLQ")
		dlqProducer = nil
	}

	consumer, err := kafka.NewConsumerWithDLQ(
		brokerList,
		cfg.KafkaGroupID,
		[]string{kafka.TopicOrderEvents},
		handler,
		dlqProducer,
		cfg.KafkaMaxRetries,
	)
	if err != nil {
		closeKafkaProducer(dlqProducer, logger)
		logger.WithError(err).Warn("failed to create kafka consumer, continuing without push events")
		return nil, nil, err
	}

	logger.WithFields(log.Fields{
		"brokers": brokerList,
		"group":   cfg.KafkaGroupID,
	}).Info("kafka consumer initialized")
	return consumer, dlqProducer, nil
}

// closeKafkaProducer закрывает producer если он не nil.
func closeKafkaProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

// stopKafkaConsumer останавливает consumer если он не nil.
func stopKafkaConsumer(consumer *kafka.Consumer, logger *log.Entry) {
	if consumer == nil {
		return
	}

	if err := consumer.Stop(); err != nil {
		logger.WithError(err).Warn("failed to stop kafka consumer")
	}
}
