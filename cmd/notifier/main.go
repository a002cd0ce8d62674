package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/vaidashi/coffee-queue/internal/config"
	"github.com/vaidashi/coffee-queue/internal/handlers"
	"github.com/vaidashi/coffee-queue/pkg/kafka"
	"github.com/vaidashi/coffee-queue/pkg/logger"
	"github.com/vaidashi/coffee-queue/pkg/rabbitmq"
)

// notifier announces order events: Kafka is the durable feed, RabbitMQ the live fanout
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	l := logger.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if !cfg.Kafka.Enabled && !cfg.RabbitMQ.Enabled {
		l.Error("Nothing to consume: enable KAFKA_ENABLED or RABBITMQ_ENABLED")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eventsHandler := handlers.NewOrderEventsHandler(l)

	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		consumer, err = kafka.NewConsumer(&kafka.ConsumerConfig{
			Brokers:       cfg.Kafka.Brokers,
			Topics:        []string{cfg.Kafka.OrdersTopic},
			ConsumerGroup: cfg.Kafka.ConsumerGroup,
			FromOldest:    cfg.Kafka.FromOldest,
		}, l)
		if err != nil {
			l.Error("Failed to create Kafka consumer", "error", err)
			os.Exit(1)
		}
		consumer.RegisterHandler(cfg.Kafka.OrdersTopic, eventsHandler)

		if err := consumer.Start(); err != nil {
			l.Error("Failed to start Kafka consumer", "error", err)
			os.Exit(1)
		}
	}

	done := make(chan struct{})
	if cfg.RabbitMQ.Enabled {
		conn, err := rabbitmq.Dial(cfg.RabbitMQ.URL)
		if err != nil {
			l.Error("Failed to connect to RabbitMQ", "error", err)
			os.Exit(1)
		}
		defer conn.Close()

		go func() {
			defer close(done)
			err := rabbitmq.Subscribe(ctx, conn, cfg.RabbitMQ.Exchange, l, func(ctx context.Context, d amqp.Delivery) error {
				return eventsHandler.HandleEvent(ctx, d.Body)
			})
			if err != nil {
				l.Error("RabbitMQ subscription ended", "error", err)
				stop()
			}
		}()
	} else {
		close(done)
	}

	l.Info("Notifier running", "kafka", cfg.Kafka.Enabled, "rabbitmq", cfg.RabbitMQ.Enabled)
	<-ctx.Done()
	l.Info("Shutting down notifier...")

	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			l.Error("Error stopping Kafka consumer", "error", err)
		}
	}
	<-done
}
