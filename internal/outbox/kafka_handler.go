package outbox

import (
	"context"
	"fmt"

	"github.com/vaidashi/coffee-queue/internal/models"
	"github.com/vaidashi/coffee-queue/pkg/logger"
)

// MessageSender is implemented by kafka.Producer
type MessageSender interface {
	SendMessage(ctx context.Context, topic string, key string, value []byte) error
}

// KafkaHandler publishes outbox messages to Kafka
type KafkaHandler struct {
	logger   logger.Logger
	producer MessageSender
	topic    string
}

// NewKafkaHandler creates a new KafkaHandler
func NewKafkaHandler(producer MessageSender, topic string, logger logger.Logger) *KafkaHandler {
	return &KafkaHandler{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
}

// HandleMessage publishes message keyed by order id, so one order's events stay ordered
func (h *KafkaHandler) HandleMessage(ctx context.Context, message *models.OutboxMessage) error {
	h.logger.Debug("Publishing message to Kafka",
		"topic", h.topic,
		"messageID", message.ID,
		"aggregateID", message.AggregateID,
		"eventType", message.EventType)

	if err := h.producer.SendMessage(ctx, h.topic, message.AggregateID, message.Payload); err != nil {
		return fmt.Errorf("failed to publish message to Kafka: %w", err)
	}
	return nil
}
