package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vaidashi/coffee-queue/internal/lifecycle"
	"github.com/vaidashi/coffee-queue/internal/models"
	"github.com/vaidashi/coffee-queue/internal/store"
	apperrors "github.com/vaidashi/coffee-queue/pkg/errors"
	"github.com/vaidashi/coffee-queue/pkg/logger"
	"github.com/vaidashi/coffee-queue/pkg/retry"
)

// MsgMissingFields is the message returned when a required order field is absent
const MsgMissingFields = "Missing required fields"

// EventPublisher receives order events; outbox.Processor implements it
type EventPublisher interface {
	Publish(ctx context.Context, message *models.OutboxMessage) error
}

// OrderService handles order-related operations
type OrderService struct {
	store      store.OrderStore
	publisher  EventPublisher
	logger     logger.Logger
	validate   *validator.Validate
	now        func() time.Time
	retention  time.Duration
	policy     lifecycle.TransitionPolicy
	staleRetry *retry.RetryConfig
}

// Option configures an OrderService
type Option func(*OrderService)

// WithClock overrides the service clock
func WithClock(now func() time.Time) Option {
	return func(s *OrderService) { s.now = now }
}

// WithRetention sets how long Collected orders stay in current-order reads
func WithRetention(d time.Duration) Option {
	return func(s *OrderService) {
		if d > 0 {
			s.retention = d
		}
	}
}

// WithTransitionPolicy overrides lifecycle.DefaultTransitionPolicy
func WithTransitionPolicy(p lifecycle.TransitionPolicy) Option {
	return func(s *OrderService) { s.policy = p }
}

// WithStaleRetry sets how often a transition is replanned after losing a write race.
// cfg is copied.
func WithStaleRetry(cfg *retry.RetryConfig) Option {
	return func(s *OrderService) {
		c := *cfg
		s.staleRetry = &c
	}
}

// NewOrderService creates a new OrderService. publisher may be nil.
func NewOrderService(orderStore store.OrderStore, publisher EventPublisher, logger logger.Logger, opts ...Option) *OrderService {
	s := &OrderService{
		store:     orderStore,
		publisher: publisher,
		logger:    logger,
		validate:  newValidator(),
		now:       models.GetCurrentTime,
		retention: lifecycle.DefaultRetentionWindow,
		policy:    lifecycle.DefaultTransitionPolicy,
		staleRetry: &retry.RetryConfig{
			MaxAttempts:     3,
			BackoffStrategy: &retry.ConstantBackoff{Interval: 50 * time.Millisecond},
			RetryableErrors: []error{store.ErrStale},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.staleRetry.Logger == nil {
		s.staleRetry.Logger = logger
	}
	return s
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("coffee", func(fl validator.FieldLevel) bool {
		return models.IsCoffeeType(fl.Field().String())
	})
	_ = v.RegisterValidation("milk", func(fl validator.FieldLevel) bool {
		return models.IsMilkOption(fl.Field().String())
	})
	_ = v.RegisterValidation("extra", func(fl validator.FieldLevel) bool {
		return models.IsExtra(fl.Field().String())
	})
	return v
}

// Retention returns the visibility window in use
func (s *OrderService) Retention() time.Duration {
	return s.retention
}

// ListCurrentOrders returns every non-Collected order plus recently Collected ones, oldest first
func (s *OrderService) ListCurrentOrders(ctx context.Context) ([]*models.Order, error) {
	now := s.now()

	orders, err := s.store.List(ctx, store.ListFilter{VisibleSince: lifecycle.VisibleSince(now, s.retention)})
	if err != nil {
		s.logger.Error("Failed to list orders", "error", err)
		return nil, err
	}

	return lifecycle.FilterVisible(orders, now, s.retention), nil
}

// CreateOrder validates and stores a new Pending order
func (s *OrderService) CreateOrder(ctx context.Context, in models.NewOrder) (*models.Order, error) {
	in = normalizeNewOrder(in)

	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	order, err := s.store.Create(ctx, in)
	if err != nil {
		s.logger.Error("Failed to create order", "error", err, "customer", in.CustomerName)
		return nil, err
	}

	s.logger.Info("Order created", "orderID", order.ID, "coffee", order.CoffeeType)
	s.publish(ctx, order.ID, func() (*models.OutboxMessage, error) {
		return models.NewOrderCreatedEvent(order)
	})
	return order, nil
}

// UpdateStatus moves an order to status. The plan is computed from a fresh read of the Ready
// orders; with a conditional store a lost race is replanned from a new snapshot.
func (s *OrderService) UpdateStatus(ctx context.Context, id string, status models.OrderStatus) (*models.Order, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: %q", lifecycle.ErrInvalidStatus, status)
	}

	conditional, isConditional := s.store.(store.ConditionalUpdater)

	var (
		updated *models.Order
		from    models.OrderStatus
	)
	err := retry.Retry(ctx, func() error {
		plan, err := s.plan(ctx, id, status)
		if err != nil {
			return err
		}
		from = plan.From

		if isConditional {
			updated, err = conditional.UpdateIf(ctx, id, plan.Expected, plan.Update)
		} else {
			updated, err = s.store.Update(ctx, id, plan.Update)
		}
		return err
	}, s.staleRetry)

	if err != nil {
		switch {
		case errors.Is(err, lifecycle.ErrSpotsExhausted):
			s.logger.Info("No free collection spot", "orderID", id)
		case errors.Is(err, store.ErrNotFound), errors.Is(err, lifecycle.ErrTransitionNotAllowed):
		default:
			s.logger.Error("Failed to update order status", "error", err, "orderID", id, "status", status)
		}
		return nil, err
	}

	s.logger.Info("Order status updated",
		"orderID", id,
		"oldStatus", from,
		"newStatus", updated.Status,
		"spot", updated.SpotValue())

	if from != updated.Status {
		s.publish(ctx, updated.ID, func() (*models.OutboxMessage, error) {
			return models.NewOrderStatusChangedEvent(updated, from)
		})
	}
	return updated, nil
}

// plan reads the snapshot the lifecycle engine needs: every Ready order plus the target
func (s *OrderService) plan(ctx context.Context, id string, status models.OrderStatus) (*lifecycle.Plan, error) {
	ready, err := s.store.List(ctx, store.ListFilter{Status: models.StatusReady})
	if err != nil {
		return nil, err
	}

	target, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	snapshot := make([]*models.Order, 0, len(ready)+1)
	snapshot = append(snapshot, target)
	for _, o := range ready {
		if o.ID != id {
			snapshot = append(snapshot, o)
		}
	}

	return lifecycle.PlanTransition(snapshot, id, status, s.now(), s.policy)
}

// CancelOrder deletes an order if policy allows it
func (s *OrderService) CancelOrder(ctx context.Context, id string, policy lifecycle.CancelPolicy) error {
	order, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := lifecycle.PlanCancellation(order, policy); err != nil {
		return err
	}

	if err := s.store.Delete(ctx, id); err != nil {
		s.logger.Error("Failed to delete order", "error", err, "orderID", id)
		return err
	}

	s.logger.Info("Order cancelled", "orderID", id, "status", order.Status, "policy", policy)
	s.publish(ctx, id, func() (*models.OutboxMessage, error) {
		return models.NewOrderCancelledEvent(order)
	})
	return nil
}

// publish hands an event to the publisher; failures never fail the request
func (s *OrderService) publish(ctx context.Context, orderID string, build func() (*models.OutboxMessage, error)) {
	if s.publisher == nil {
		return
	}

	msg, err := build()
	if err != nil {
		s.logger.Error("Failed to create outbox message", "error", err, "orderID", orderID)
		return
	}
	if err := s.publisher.Publish(ctx, msg); err != nil {
		s.logger.Warn("Failed to publish order event", "error", err, "orderID", orderID, "eventType", msg.EventType)
	}
}

func normalizeNewOrder(in models.NewOrder) models.NewOrder {
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.CoffeeType = strings.TrimSpace(in.CoffeeType)
	in.MilkOption = strings.TrimSpace(in.MilkOption)
	in.Notes = strings.TrimSpace(in.Notes)

	var extras []string
	for _, e := range in.Extras {
		if e = strings.TrimSpace(e); e != "" {
			extras = append(extras, e)
		}
	}
	in.Extras = extras
	return in
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.NewInvalidInputError(err.Error())
	}

	for _, fe := range verrs {
		if fe.Tag() == "required" {
			return apperrors.NewInvalidInputError(MsgMissingFields)
		}
	}

	fe := verrs[0]
	switch fe.Tag() {
	case "coffee":
		return apperrors.NewInvalidInputError(fmt.Sprintf("Unknown coffee type %q", fe.Value()))
	case "milk":
		return apperrors.NewInvalidInputError(fmt.Sprintf("Unknown milk option %q", fe.Value()))
	case "extra":
		return apperrors.NewInvalidInputError(fmt.Sprintf("Unknown extra %q", fe.Value()))
	case "unique":
		return apperrors.NewInvalidInputError("Extras must not repeat")
	default:
		return apperrors.NewInvalidInputError(fmt.Sprintf("Invalid %s", fe.Field()))
	}
}
