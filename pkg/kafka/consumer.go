package kafka

import (
	"context"
	"fmt"
	"sync"

	"github.com/Shopify/sarama"

	"github.com/vaidashi/coffee-queue/pkg/logger"
)

// MessageHandler handles one record from a subscribed topic
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error
}

// HandlerFunc adapts a function to MessageHandler
type HandlerFunc func(ctx context.Context, msg *sarama.ConsumerMessage) error

func (f HandlerFunc) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	return f(ctx, msg)
}

// Consumer joins a consumer group and routes records to per-topic handlers
type Consumer struct {
	group    sarama.ConsumerGroup
	topics   []string
	handlers map[string]MessageHandler
	logger   logger.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// ConsumerConfig is the configuration for the Kafka consumer
type ConsumerConfig struct {
	Brokers       []string
	Topics        []string
	ConsumerGroup string
	// FromOldest replays the retained history when the group has no committed offset
	FromOldest    bool
}

// NewConsumer connects a consumer group to the brokers
func NewConsumer(cfg *ConsumerConfig, logger logger.Logger) (*Consumer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Return.Errors = true
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	if cfg.FromOldest {
		saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	}

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}
	return NewConsumerFrom(group, cfg.Topics, logger), nil
}

// NewConsumerFrom wraps an existing consumer group
func NewConsumerFrom(group sarama.ConsumerGroup, topics []string, logger logger.Logger) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		group:    group,
		topics:   topics,
		handlers: make(map[string]MessageHandler),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// RegisterHandler sets the handler for topic. Call before Start.
func (c *Consumer) RegisterHandler(topic string, handler MessageHandler) {
	c.handlers[topic] = handler
}

// Start joins the consumer group in the background
func (c *Consumer) Start() error {
	if len(c.topics) == 0 {
		return fmt.Errorf("no topics to consume")
	}

	c.wg.Add(2)
	go c.consumeLoop()
	go c.errorLoop()

	c.logger.Info("Kafka consumer started", "topics", c.topics)
	return nil
}

// consumeLoop rejoins after every rebalance until Stop
func (c *Consumer) consumeLoop() {
	defer c.wg.Done()
	for {
		if err := c.group.Consume(c.ctx, c.topics, c); err != nil {
			c.logger.Error("Kafka consumer error", "error", err)
		}
		if c.ctx.Err() != nil {
			return
		}
	}
}

func (c *Consumer) errorLoop() {
	defer c.wg.Done()
	for {
		select {
		case err, ok := <-c.group.Errors():
			if !ok {
				return
			}
			c.logger.Warn("Kafka consumer group error", "error", err)
		case <-c.ctx.Done():
			return
		}
	}
}

// Stop leaves the group and waits for the loops to finish
func (c *Consumer) Stop() error {
	c.cancel()
	c.wg.Wait()
	return c.group.Close()
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim hands each record to its topic handler. Records are marked even when the
// handler fails: notifications are not replayed and one bad record must not stall a partition.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			c.dispatch(session.Context(), msg)
			session.MarkMessage(msg, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, msg *sarama.ConsumerMessage) {
	handler, ok := c.handlers[msg.Topic]
	if !ok {
		c.logger.Warn("No handler registered for topic", "topic", msg.Topic)
		return
	}

	if err := handler.HandleMessage(ctx, msg); err != nil {
		c.logger.Error("Error handling message",
			"error", err,
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key))
	}
}
