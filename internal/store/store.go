// Package store defines the record store contract the order service reads and writes through.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/vaidashi/coffee-queue/internal/models"
)

var (
	ErrNotFound    = errors.New("record not found")
	ErrStale       = errors.New("record changed since it was read")
	ErrUnavailable = errors.New("record store unavailable")
)

// ListFilter narrows a List call. The zero value lists everything.
type ListFilter struct {
	// Status, when set, keeps only orders in that status
	Status models.OrderStatus
	// VisibleSince, when set, drops Collected orders collected at or before it
	VisibleSince time.Time
}

// Matches applies the filter to a single order, for backends that filter in process
func (f ListFilter) Matches(o *models.Order) bool {
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if !f.VisibleSince.IsZero() && o.Status == models.StatusCollected {
		if o.CollectedTimestamp == nil || !o.CollectedTimestamp.After(f.VisibleSince) {
			return false
		}
	}
	return true
}

// OrderStore persists orders. List results are sorted by order time, oldest first.
type OrderStore interface {
	List(ctx context.Context, filter ListFilter) ([]*models.Order, error)
	Get(ctx context.Context, id string) (*models.Order, error)
	Create(ctx context.Context, order models.NewOrder) (*models.Order, error)
	Update(ctx context.Context, id string, update models.StatusUpdate) (*models.Order, error)
	Delete(ctx context.Context, id string) error
}

// ConditionalUpdater is implemented by stores that can refuse a write whose snapshot went stale.
// UpdateIf returns ErrStale when the record no longer matches expected, or when the spot in
// update is already held by another Ready order.
type ConditionalUpdater interface {
	UpdateIf(ctx context.Context, id string, expected models.Expected, update models.StatusUpdate) (*models.Order, error)
}
