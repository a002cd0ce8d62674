package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/vaidashi/coffee-queue/internal/database"
	"github.com/vaidashi/coffee-queue/internal/models"
	"github.com/vaidashi/coffee-queue/internal/store"
	"github.com/vaidashi/coffee-queue/pkg/logger"
)

const orderColumns = `id, customer_name, coffee_type, milk_option, extras, notes, status,
	collection_spot, order_timestamp, collected_timestamp`

// OrderRepository handles database operations for orders
type OrderRepository struct {
	db     *database.Database
	logger logger.Logger
}

var (
	_ store.OrderStore         = (*OrderRepository)(nil)
	_ store.ConditionalUpdater = (*OrderRepository)(nil)
)

// NewOrderRepository creates a new OrderRepository
func NewOrderRepository(db *database.Database, logger logger.Logger) *OrderRepository {
	return &OrderRepository{
		db:     db,
		logger: logger,
	}
}

// List retrieves the orders matching filter, oldest first
func (r *OrderRepository) List(ctx context.Context, filter store.ListFilter) ([]*models.Order, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if !filter.VisibleSince.IsZero() {
		where = append(where, "(status <> ? OR collected_timestamp > ?)")
		args = append(args, models.StatusCollected, filter.VisibleSince.UTC())
	}

	query := "SELECT " + orderColumns + " FROM orders"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY order_timestamp ASC"

	var orders []*models.Order
	if err := r.db.DB.SelectContext(ctx, &orders, r.db.DB.Rebind(query), args...); err != nil {
		r.logger.Error("Failed to list orders", "error", err, "status", filter.Status)
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	for _, o := range orders {
		normalize(o)
	}
	return orders, nil
}

// Get retrieves an order by its ID
func (r *OrderRepository) Get(ctx context.Context, id string) (*models.Order, error) {
	query := "SELECT " + orderColumns + " FROM orders WHERE id = ?"

	var order models.Order
	err := r.db.DB.GetContext(ctx, &order, r.db.DB.Rebind(query), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		r.logger.Error("Failed to get order by ID", "error", err, "orderID", id)
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	normalize(&order)
	return &order, nil
}

// Create inserts a new Pending order
func (r *OrderRepository) Create(ctx context.Context, in models.NewOrder) (*models.Order, error) {
	order := &models.Order{
		ID:             models.GenerateID("ord"),
		CustomerName:   in.CustomerName,
		CoffeeType:     in.CoffeeType,
		MilkOption:     in.MilkOption,
		Extras:         models.Extras(in.Extras),
		Notes:          in.Notes,
		Status:         models.StatusPending,
		OrderTimestamp: models.GetCurrentTime(),
	}
	if len(order.Extras) == 0 {
		order.Extras = nil
	}

	query := `
		INSERT INTO orders (id, customer_name, coffee_type, milk_option, extras, notes, status, order_timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.DB.ExecContext(
		ctx,
		r.db.DB.Rebind(query),
		order.ID,
		order.CustomerName,
		order.CoffeeType,
		order.MilkOption,
		order.Extras,
		order.Notes,
		order.Status,
		order.OrderTimestamp,
	)
	if err != nil {
		r.logger.Error("Failed to create order", "error", err, "orderID", order.ID)
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	return order, nil
}

// Update writes the status fields unconditionally
func (r *OrderRepository) Update(ctx context.Context, id string, update models.StatusUpdate) (*models.Order, error) {
	query := `
		UPDATE orders
		SET status = ?, collection_spot = ?, collected_timestamp = ?
		WHERE id = ?
	`

	affected, err := r.exec(ctx, query, update.Status, update.CollectionSpot, utcPtr(update.CollectedTimestamp), id)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return r.Get(ctx, id)
}

// UpdateIf writes only when the row still has the expected status and spot.
// A zero-row update is resolved into ErrNotFound or ErrStale with a follow-up read.
func (r *OrderRepository) UpdateIf(ctx context.Context, id string, expected models.Expected, update models.StatusUpdate) (*models.Order, error) {
	query := `
		UPDATE orders
		SET status = ?, collection_spot = ?, collected_timestamp = ?
		WHERE id = ? AND status = ? AND `
	args := []interface{}{update.Status, update.CollectionSpot, utcPtr(update.CollectedTimestamp), id, expected.Status}
	if expected.CollectionSpot == nil {
		query += "collection_spot IS NULL"
	} else {
		query += "collection_spot = ?"
		args = append(args, *expected.CollectionSpot)
	}

	affected, err := r.exec(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	if affected == 0 {
		current, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: order %s is now %s", store.ErrStale, id, current.Status)
	}

	return r.Get(ctx, id)
}

// Delete deletes an order by its ID
func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	affected, err := r.exec(ctx, "DELETE FROM orders WHERE id = ?", id)
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Count counts the total number of orders
func (r *OrderRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.DB.GetContext(ctx, &count, `SELECT COUNT(*) FROM orders`); err != nil {
		r.logger.Error("Failed to count orders", "error", err)
		return 0, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return count, nil
}

func (r *OrderRepository) exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	result, err := r.db.DB.ExecContext(ctx, r.db.DB.Rebind(query), args...)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %v", store.ErrStale, err)
		}
		r.logger.Error("Failed to write order", "error", err)
		return 0, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return affected, nil
}

// isUniqueViolation spots a second Ready order claiming the same spot
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

func normalize(o *models.Order) {
	o.OrderTimestamp = o.OrderTimestamp.UTC()
	o.CollectedTimestamp = utcPtr(o.CollectedTimestamp)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
