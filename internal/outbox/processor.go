package outbox

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vaidashi/coffee-queue/internal/models"
	"github.com/vaidashi/coffee-queue/pkg/logger"
	"github.com/vaidashi/coffee-queue/pkg/retry"
)

// AllEvents registers a handler for every event type
const AllEvents = "*"

// ErrQueueFull is returned by Publish when the buffer cannot take another message
var ErrQueueFull = errors.New("outbox queue is full")

// MessageHandler defines the interface for handling outbox messages
type MessageHandler interface {
	HandleMessage(ctx context.Context, message *models.OutboxMessage) error
}

// HandlerFunc adapts a function to MessageHandler
type HandlerFunc func(ctx context.Context, message *models.OutboxMessage) error

// HandleMessage calls f
func (f HandlerFunc) HandleMessage(ctx context.Context, message *models.OutboxMessage) error {
	return f(ctx, message)
}

// Processor delivers published messages to the registered handlers in the background
type Processor struct {
	queue          chan *models.OutboxMessage
	handlers       map[string][]MessageHandler
	handlersMu     sync.RWMutex
	retryConfig    *retry.RetryConfig
	handlerTimeout time.Duration
	drainTimeout   time.Duration
	logger         logger.Logger
	ctx            context.Context
	cancel         context.CancelFunc
	stopping       chan struct{}
	wg             sync.WaitGroup
	running        bool
	mu             sync.Mutex

	published int64
	delivered int64
	dropped   int64
}

// ProcessorConfig holds the configuration for the Processor
type ProcessorConfig struct {
	QueueSize       int
	MaxRetries      int
	BackoffStrategy retry.BackoffStrategy
	HandlerTimeout  time.Duration
	// DrainTimeout bounds how long Stop keeps delivering queued messages
	DrainTimeout    time.Duration
}

// DefaultProcessorConfig is used by the API server
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		QueueSize:       256,
		MaxRetries:      3,
		BackoffStrategy: retry.NewDefaultExponentialBackoff(),
		HandlerTimeout:  5 * time.Second,
		DrainTimeout:    5 * time.Second,
	}
}

// NewProcessor creates a new Processor
func NewProcessor(config ProcessorConfig, logger logger.Logger) *Processor {
	if config.QueueSize <= 0 {
		config.QueueSize = 256
	}
	if config.HandlerTimeout <= 0 {
		config.HandlerTimeout = 5 * time.Second
	}
	if config.DrainTimeout <= 0 {
		config.DrainTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Processor{
		queue:    make(chan *models.OutboxMessage, config.QueueSize),
		handlers: make(map[string][]MessageHandler),
		retryConfig: &retry.RetryConfig{
			MaxAttempts:     config.MaxRetries,
			BackoffStrategy: config.BackoffStrategy,
			Logger:          logger,
		},
		handlerTimeout: config.HandlerTimeout,
		drainTimeout:   config.DrainTimeout,
		logger:         logger,
		ctx:            ctx,
		cancel:         cancel,
		stopping:       make(chan struct{}),
	}
}

// RegisterHandler adds a handler for eventType, or for every type with AllEvents
func (p *Processor) RegisterHandler(eventType string, handler MessageHandler) {
	p.handlersMu.Lock()
	defer p.handlersMu.Unlock()
	p.handlers[eventType] = append(p.handlers[eventType], handler)
}

// Publish queues message without blocking
func (p *Processor) Publish(ctx context.Context, message *models.OutboxMessage) error {
	select {
	case p.queue <- message:
		atomic.AddInt64(&p.published, 1)
		return nil
	default:
		atomic.AddInt64(&p.dropped, 1)
		p.logger.Warn("Outbox queue full, dropping message",
			"messageID", message.ID,
			"eventType", message.EventType,
			"aggregateID", message.AggregateID)
		return ErrQueueFull
	}
}

// Start starts the outbox processor
func (p *Processor) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}

	p.running = true
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()
		p.processOutbox()
	}()

	p.logger.Info("Outbox processor started", "queueSize", cap(p.queue))
}

// Stop delivers the messages already queued, waiting at most DrainTimeout, then stops the processor.
// Messages still queued after that are not delivered.
func (p *Processor) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	close(p.stopping)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(p.drainTimeout):
		p.logger.Warn("Outbox drain timed out", "undelivered", len(p.queue))
		p.cancel()
		<-done
	}
	p.cancel()
	p.running = false

	p.logger.Info("Outbox processor stopped", "undelivered", len(p.queue))
}

func (p *Processor) processOutbox() {
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.stopping:
			p.drain()
			return
		case msg := <-p.queue:
			p.processMessage(msg)
		}
	}
}

// drain delivers what is left in the queue until it is empty or the processor is cancelled
func (p *Processor) drain() {
	for p.ctx.Err() == nil {
		select {
		case msg := <-p.queue:
			p.processMessage(msg)
		default:
			return
		}
	}
}

// processMessage hands msg to each matching handler, retrying each independently
func (p *Processor) processMessage(msg *models.OutboxMessage) {
	handlers := p.handlersFor(msg.EventType)
	if len(handlers) == 0 {
		p.logger.Debug("No handler registered for event type", "eventType", msg.EventType, "messageID", msg.ID)
		return
	}

	for _, handler := range handlers {
		handler := handler
		err := retry.RetryWithDiscard(p.ctx, func() error {
			msg.Attempts++
			ctx, cancel := context.WithTimeout(p.ctx, p.handlerTimeout)
			defer cancel()
			return handler.HandleMessage(ctx, msg)
		}, p.retryConfig, func(err error) error {
			atomic.AddInt64(&p.dropped, 1)
			p.logger.Error("Dropping message after retries",
				"error", err,
				"messageID", msg.ID,
				"aggregateID", msg.AggregateID,
				"eventType", msg.EventType,
				"attempts", msg.Attempts)
			return err
		})
		if err == nil {
			atomic.AddInt64(&p.delivered, 1)
		}
	}
}

func (p *Processor) handlersFor(eventType string) []MessageHandler {
	p.handlersMu.RLock()
	defer p.handlersMu.RUnlock()

	result := make([]MessageHandler, 0, len(p.handlers[eventType])+len(p.handlers[AllEvents]))
	result = append(result, p.handlers[eventType]...)
	result = append(result, p.handlers[AllEvents]...)
	return result
}

// GetMetrics returns delivery counters
func (p *Processor) GetMetrics() map[string]interface{} {
	return map[string]interface{}{
		"published": atomic.LoadInt64(&p.published),
		"delivered": atomic.LoadInt64(&p.delivered),
		"dropped":   atomic.LoadInt64(&p.dropped),
		"queued":    len(p.queue),
	}
}
