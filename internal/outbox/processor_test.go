package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/coffee-queue/internal/models"
	"github.com/vaidashi/coffee-queue/pkg/logger"
	"github.com/vaidashi/coffee-queue/pkg/retry"
)

type recorder struct {
	mu       sync.Mutex
	messages []*models.OutboxMessage
	failN    int
}

func (r *recorder) HandleMessage(ctx context.Context, msg *models.OutboxMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failN > 0 {
		r.failN--
		return errors.New("broker down")
	}
	r.messages = append(r.messages, msg)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func testConfig() ProcessorConfig {
	return ProcessorConfig{
		QueueSize:       4,
		MaxRetries:      3,
		BackoffStrategy: &retry.ConstantBackoff{Interval: time.Millisecond},
		HandlerTimeout:  time.Second,
	}
}

func event(t *testing.T) *models.OutboxMessage {
	t.Helper()
	msg, err := models.NewOrderCreatedEvent(&models.Order{ID: "ord-1", Status: models.StatusPending})
	require.NoError(t, err)
	return msg
}

func TestProcessorDeliversToTypeAndWildcardHandlers(t *testing.T) {
	p := NewProcessor(testConfig(), logger.NewNop())
	typed, all := &recorder{}, &recorder{}
	p.RegisterHandler(models.EventOrderCreated, typed)
	p.RegisterHandler(AllEvents, all)
	p.Start()
	defer p.Stop()

	require.NoError(t, p.Publish(context.Background(), event(t)))

	require.Eventually(t, func() bool { return typed.count() == 1 && all.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 2, p.GetMetrics()["delivered"])
}

func TestProcessorRetriesFailingHandler(t *testing.T) {
	p := NewProcessor(testConfig(), logger.NewNop())
	h := &recorder{failN: 2}
	p.RegisterHandler(models.EventOrderCreated, h)
	p.Start()
	defer p.Stop()

	msg := event(t)
	require.NoError(t, p.Publish(context.Background(), msg))

	require.Eventually(t, func() bool { return h.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, h.messages[0].Attempts)
}

func TestProcessorDropsAfterMaxRetries(t *testing.T) {
	p := NewProcessor(testConfig(), logger.NewNop())
	h := &recorder{failN: 10}
	p.RegisterHandler(models.EventOrderCreated, h)
	p.Start()
	defer p.Stop()

	require.NoError(t, p.Publish(context.Background(), event(t)))

	require.Eventually(t, func() bool { return p.GetMetrics()["dropped"].(int64) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, h.count())
}

func TestStopDeliversQueuedMessages(t *testing.T) {
	p := NewProcessor(testConfig(), logger.NewNop())
	h := &recorder{}
	p.RegisterHandler(AllEvents, h)

	for i := 0; i < 4; i++ {
		require.NoError(t, p.Publish(context.Background(), event(t)))
	}
	p.Start()
	p.Stop()

	assert.Equal(t, 4, h.count())
	assert.EqualValues(t, 0, p.GetMetrics()["queued"])
}

func TestStopGivesUpAfterDrainTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 1
	cfg.DrainTimeout = 20 * time.Millisecond
	p := NewProcessor(cfg, logger.NewNop())
	p.RegisterHandler(AllEvents, HandlerFunc(func(ctx context.Context, msg *models.OutboxMessage) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	require.NoError(t, p.Publish(context.Background(), event(t)))
	require.NoError(t, p.Publish(context.Background(), event(t)))
	p.Start()

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after the drain timeout")
	}
	assert.EqualValues(t, 0, p.GetMetrics()["delivered"])
}

func TestPublishReportsFullQueue(t *testing.T) {
	p := NewProcessor(ProcessorConfig{QueueSize: 1}, logger.NewNop())

	require.NoError(t, p.Publish(context.Background(), event(t)))
	assert.ErrorIs(t, p.Publish(context.Background(), event(t)), ErrQueueFull)
}

type fakeSender struct {
	topic, key string
	value      []byte
}

func (s *fakeSender) SendMessage(ctx context.Context, topic, key string, value []byte) error {
	s.topic, s.key, s.value = topic, key, value
	return nil
}

type fakeNotifier struct {
	kind string
	body []byte
}

func (n *fakeNotifier) Publish(ctx context.Context, messageType string, body []byte) error {
	n.kind, n.body = messageType, body
	return nil
}

func TestBrokerHandlers(t *testing.T) {
	msg := event(t)

	sender := &fakeSender{}
	require.NoError(t, NewKafkaHandler(sender, "coffee.orders", logger.NewNop()).HandleMessage(context.Background(), msg))
	assert.Equal(t, "coffee.orders", sender.topic)
	assert.Equal(t, "ord-1", sender.key)
	assert.Equal(t, msg.Payload, sender.value)

	notifier := &fakeNotifier{}
	require.NoError(t, NewRabbitMQHandler(notifier, logger.NewNop()).HandleMessage(context.Background(), msg))
	assert.Equal(t, models.EventOrderCreated, notifier.kind)

	assert.NoError(t, NewLoggingHandler(logger.NewNop()).HandleMessage(context.Background(), msg))
}
