package models

import (
	"encoding/json"
	"time"
)

// Event types published when orders change
const (
	EventOrderCreated       = "order_created"
	EventOrderStatusChanged = "order_status_changed"
	EventOrderCancelled     = "order_cancelled"
)

// OutboxMessage is an event waiting to be delivered to the brokers
type OutboxMessage struct {
	ID          string    `json:"id"`
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Payload     []byte    `json:"payload"`
	CreatedAt   time.Time `json:"created_at"`
	Attempts    int       `json:"attempts"`
}

// OutboxMessageEvent is the JSON envelope carried in Payload
type OutboxMessageEvent struct {
	EventType   string          `json:"event_type"`
	EventID     string          `json:"event_id"`
	AggregateID string          `json:"aggregate_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Data        json.RawMessage `json:"data"`
}

// StatusChange is the data of an order_status_changed event
type StatusChange struct {
	OrderID        string      `json:"order_id"`
	CustomerName   string      `json:"customer_name"`
	CoffeeType     string      `json:"coffee_type"`
	OldStatus      OrderStatus `json:"old_status"`
	NewStatus      OrderStatus `json:"new_status"`
	CollectionSpot *int        `json:"collection_spot,omitempty"`
}

// NewOrderCreatedEvent wraps a freshly created order
func NewOrderCreatedEvent(order *Order) (*OutboxMessage, error) {
	return newEvent(EventOrderCreated, order.ID, order)
}

// NewOrderStatusChangedEvent describes a transition from oldStatus to order.Status
func NewOrderStatusChangedEvent(order *Order, oldStatus OrderStatus) (*OutboxMessage, error) {
	return newEvent(EventOrderStatusChanged, order.ID, StatusChange{
		OrderID:        order.ID,
		CustomerName:   order.CustomerName,
		CoffeeType:     order.CoffeeType,
		OldStatus:      oldStatus,
		NewStatus:      order.Status,
		CollectionSpot: order.CollectionSpot,
	})
}

// NewOrderCancelledEvent records the deletion of an order
func NewOrderCancelledEvent(order *Order) (*OutboxMessage, error) {
	return newEvent(EventOrderCancelled, order.ID, order)
}

func newEvent(eventType, aggregateID string, data interface{}) (*OutboxMessage, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	now := GetCurrentTime()
	event := OutboxMessageEvent{
		EventType:   eventType,
		EventID:     GenerateID("evt"),
		AggregateID: aggregateID,
		OccurredAt:  now,
		Data:        raw,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	return &OutboxMessage{
		ID:          event.EventID,
		AggregateID: aggregateID,
		EventType:   eventType,
		Payload:     payload,
		CreatedAt:   now,
	}, nil
}
