package rabbitmq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/vaidashi/coffee-queue/pkg/logger"
)

// FanoutPublisher publishes JSON bodies to a fanout exchange
type FanoutPublisher struct {
	conn     Connection
	exchange string
	logger   logger.Logger
}

// NewFanoutPublisher creates a publisher for exchange
func NewFanoutPublisher(conn Connection, exchange string, logger logger.Logger) *FanoutPublisher {
	return &FanoutPublisher{conn: conn, exchange: exchange, logger: logger}
}

// Publish declares the exchange and sends body. messageType is set as the AMQP type header.
func (p *FanoutPublisher) Publish(ctx context.Context, messageType string, body []byte) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	err = ch.PublishWithContext(ctx, p.exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         messageType,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	p.logger.Debug("Published notification", "exchange", p.exchange, "type", messageType)
	return nil
}

// Subscribe binds a private queue to exchange and calls handle for each delivery until ctx ends.
// Deliveries are acked when handle succeeds and dropped otherwise.
func Subscribe(ctx context.Context, conn Connection, exchange string, logger logger.Logger, handle func(ctx context.Context, d amqp.Delivery) error) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	deliveries, err := ch.Consume(q.Name, "", false, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	logger.Info("Subscribed to notifications", "exchange", exchange, "queue", q.Name)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			if err := handle(ctx, d); err != nil {
				logger.Error("Failed to handle notification", "error", err, "type", d.Type)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}
