package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Shopify/sarama"

	"github.com/vaidashi/coffee-queue/internal/models"
	"github.com/vaidashi/coffee-queue/pkg/logger"
)

// OrderEventsHandler turns order events into customer-facing notifications
type OrderEventsHandler struct {
	logger logger.Logger
}

// NewOrderEventsHandler creates a new OrderEventsHandler
func NewOrderEventsHandler(logger logger.Logger) *OrderEventsHandler {
	return &OrderEventsHandler{
		logger: logger,
	}
}

// HandleMessage handles incoming order events from Kafka messages
func (h *OrderEventsHandler) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	return h.HandleEvent(ctx, msg.Value)
}

// HandleEvent decodes one event envelope and dispatches on its type
func (h *OrderEventsHandler) HandleEvent(ctx context.Context, payload []byte) error {
	var event models.OutboxMessageEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}

	switch event.EventType {
	case models.EventOrderCreated:
		return h.handleOrderCreated(event)
	case models.EventOrderStatusChanged:
		return h.handleOrderStatusChanged(event)
	case models.EventOrderCancelled:
		h.logger.Info("Order cancelled", "orderID", event.AggregateID)
		return nil
	default:
		h.logger.Warn("unknown event type", "eventType", event.EventType)
		return nil
	}
}

func (h *OrderEventsHandler) handleOrderCreated(event models.OutboxMessageEvent) error {
	var order models.Order
	if err := json.Unmarshal(event.Data, &order); err != nil {
		return fmt.Errorf("invalid order_created data: %w", err)
	}

	h.logger.Info("Order received",
		"orderID", event.AggregateID,
		"customer", order.CustomerName,
		"coffee", order.CoffeeType)
	return nil
}

func (h *OrderEventsHandler) handleOrderStatusChanged(event models.OutboxMessageEvent) error {
	var change models.StatusChange
	if err := json.Unmarshal(event.Data, &change); err != nil {
		return fmt.Errorf("invalid order_status_changed data: %w", err)
	}

	switch change.NewStatus {
	case models.StatusReady:
		spot := 0
		if change.CollectionSpot != nil {
			spot = *change.CollectionSpot
		}
		h.logger.Info("Order ready for collection",
			"orderID", change.OrderID,
			"customer", change.CustomerName,
			"coffee", change.CoffeeType,
			"spot", spot)
	case models.StatusCollected:
		h.logger.Info("Order collected", "orderID", change.OrderID, "customer", change.CustomerName)
	default:
		h.logger.Info("Order status changed",
			"orderID", change.OrderID,
			"oldStatus", change.OldStatus,
			"newStatus", change.NewStatus)
	}
	return nil
}
