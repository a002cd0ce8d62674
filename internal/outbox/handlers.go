package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vaidashi/coffee-queue/internal/models"
	"github.com/vaidashi/coffee-queue/pkg/logger"
)

// LoggingHandler is a message handler that logs the outbox message
type LoggingHandler struct {
	logger logger.Logger
}

// NewLoggingHandler creates a new LoggingHandler
func NewLoggingHandler(logger logger.Logger) *LoggingHandler {
	return &LoggingHandler{
		logger: logger,
	}
}

// HandleMessage handles the outbox message by logging it
func (h *LoggingHandler) HandleMessage(ctx context.Context, message *models.OutboxMessage) error {
	var event models.OutboxMessageEvent
	if err := json.Unmarshal(message.Payload, &event); err != nil {
		return fmt.Errorf("failed to unmarshal outbox message: %w", err)
	}

	h.logger.Info("Order event",
		"messageID", message.ID,
		"eventType", message.EventType,
		"orderID", message.AggregateID,
		"occurredAt", event.OccurredAt)
	return nil
}

// NotificationPublisher is implemented by rabbitmq.FanoutPublisher
type NotificationPublisher interface {
	Publish(ctx context.Context, messageType string, body []byte) error
}

// RabbitMQHandler fans status changes out to notification subscribers
type RabbitMQHandler struct {
	publisher NotificationPublisher
	logger    logger.Logger
}

// NewRabbitMQHandler creates a new RabbitMQHandler
func NewRabbitMQHandler(publisher NotificationPublisher, logger logger.Logger) *RabbitMQHandler {
	return &RabbitMQHandler{publisher: publisher, logger: logger}
}

// HandleMessage forwards the event envelope unchanged
func (h *RabbitMQHandler) HandleMessage(ctx context.Context, message *models.OutboxMessage) error {
	if err := h.publisher.Publish(ctx, message.EventType, message.Payload); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}
