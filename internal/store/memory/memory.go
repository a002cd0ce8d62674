// Package memory is an in-process order store for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vaidashi/coffee-queue/internal/lifecycle"
	"github.com/vaidashi/coffee-queue/internal/models"
	"github.com/vaidashi/coffee-queue/internal/store"
)

// Store keeps orders in a map guarded by a RWMutex
type Store struct {
	mu     sync.RWMutex
	orders map[string]*models.Order
	now    func() time.Time
}

var (
	_ store.OrderStore         = (*Store)(nil)
	_ store.ConditionalUpdater = (*Store)(nil)
)

// New creates an empty store
func New() *Store {
	return &Store{
		orders: make(map[string]*models.Order),
		now:    models.GetCurrentTime,
	}
}

// WithClock overrides the clock used for order timestamps
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// List returns copies of the matching orders, oldest first
func (s *Store) List(ctx context.Context, filter store.ListFilter) ([]*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if filter.Matches(o) {
			result = append(result, o.Clone())
		}
	}
	lifecycle.SortByOrderTime(result)
	return result, nil
}

// Get returns a copy of one order
func (s *Store) Get(ctx context.Context, id string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return o.Clone(), nil
}

// Create stores a new Pending order
func (s *Store) Create(ctx context.Context, in models.NewOrder) (*models.Order, error) {
	order := &models.Order{
		ID:             models.GenerateID("ord"),
		CustomerName:   in.CustomerName,
		CoffeeType:     in.CoffeeType,
		MilkOption:     in.MilkOption,
		Extras:         models.Extras(append([]string(nil), in.Extras...)),
		Notes:          in.Notes,
		Status:         models.StatusPending,
		OrderTimestamp: s.now().UTC(),
	}
	if len(order.Extras) == 0 {
		order.Extras = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders[order.ID] = order
	return order.Clone(), nil
}

// Update writes the status fields unconditionally
func (s *Store) Update(ctx context.Context, id string, update models.StatusUpdate) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	o.Apply(update)
	return o.Clone(), nil
}

// UpdateIf writes only if the order still matches expected and the new spot is free
func (s *Store) UpdateIf(ctx context.Context, id string, expected models.Expected, update models.StatusUpdate) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !expected.Matches(o) {
		return nil, fmt.Errorf("%w: order %s is now %s", store.ErrStale, id, o.Status)
	}
	if update.Status == models.StatusReady && update.CollectionSpot != nil {
		for otherID, other := range s.orders {
			if otherID != id && other.Status == models.StatusReady && other.SpotValue() == *update.CollectionSpot {
				return nil, fmt.Errorf("%w: spot %d taken by %s", store.ErrStale, *update.CollectionSpot, otherID)
			}
		}
	}

	o.Apply(update)
	return o.Clone(), nil
}

// Delete removes an order
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.orders, id)
	return nil
}

// Len returns the number of stored orders
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}
