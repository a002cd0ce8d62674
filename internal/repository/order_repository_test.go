package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/coffee-queue/internal/database"
	"github.com/vaidashi/coffee-queue/internal/models"
	"github.com/vaidashi/coffee-queue/internal/store"
	"github.com/vaidashi/coffee-queue/pkg/logger"
)

func newRepo(t *testing.T) *OrderRepository {
	t.Helper()
	db, err := database.Open(database.DriverSQLite, ":memory:", logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.RunMigrations())
	return NewOrderRepository(db, logger.NewNop())
}

func mustCreate(t *testing.T, r *OrderRepository, name string) *models.Order {
	t.Helper()
	o, err := r.Create(context.Background(), models.NewOrder{
		CustomerName: name,
		CoffeeType:   "Flat White",
		MilkOption:   "Oat",
		Extras:       []string{"Extra Shot"},
	})
	require.NoError(t, err)
	return o
}

func TestCreateAndGet(t *testing.T) {
	r := newRepo(t)
	created := mustCreate(t, r, "Alice")

	got, err := r.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.CustomerName)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, models.Extras{"Extra Shot"}, got.Extras)
	assert.Nil(t, got.CollectionSpot)
	assert.Nil(t, got.CollectedTimestamp)
	assert.WithinDuration(t, created.OrderTimestamp, got.OrderTimestamp, time.Millisecond)

	n, err := r.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGetMissing(t *testing.T) {
	r := newRepo(t)
	_, err := r.Get(context.Background(), "ord-missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateWritesAllStatusFields(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	o := mustCreate(t, r, "Bob")

	ready, err := r.Update(ctx, o.ID, models.StatusUpdate{Status: models.StatusReady, CollectionSpot: models.IntPtr(3)})
	require.NoError(t, err)
	assert.Equal(t, 3, ready.SpotValue())

	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	collected, err := r.Update(ctx, o.ID, models.StatusUpdate{Status: models.StatusCollected, CollectedTimestamp: &at})
	require.NoError(t, err)
	assert.Nil(t, collected.CollectionSpot)
	require.NotNil(t, collected.CollectedTimestamp)
	assert.True(t, at.Equal(*collected.CollectedTimestamp))

	_, err = r.Update(ctx, "ord-missing", models.StatusUpdate{Status: models.StatusPending})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUniqueReadySpot(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	a := mustCreate(t, r, "A")
	b := mustCreate(t, r, "B")

	_, err := r.Update(ctx, a.ID, models.StatusUpdate{Status: models.StatusReady, CollectionSpot: models.IntPtr(1)})
	require.NoError(t, err)

	_, err = r.Update(ctx, b.ID, models.StatusUpdate{Status: models.StatusReady, CollectionSpot: models.IntPtr(1)})
	assert.ErrorIs(t, err, store.ErrStale)
}

func TestUpdateIf(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	o := mustCreate(t, r, "A")

	_, err := r.UpdateIf(ctx, o.ID, models.Expected{Status: models.StatusReady, CollectionSpot: models.IntPtr(1)},
		models.StatusUpdate{Status: models.StatusPending})
	assert.ErrorIs(t, err, store.ErrStale)

	updated, err := r.UpdateIf(ctx, o.ID, models.Expected{Status: models.StatusPending},
		models.StatusUpdate{Status: models.StatusReady, CollectionSpot: models.IntPtr(2)})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.SpotValue())

	_, err = r.UpdateIf(ctx, o.ID, models.Expected{Status: models.StatusReady, CollectionSpot: models.IntPtr(2)},
		models.StatusUpdate{Status: models.StatusPending})
	require.NoError(t, err)

	_, err = r.UpdateIf(ctx, "ord-missing", models.Expected{Status: models.StatusPending},
		models.StatusUpdate{Status: models.StatusReady, CollectionSpot: models.IntPtr(1)})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListFilters(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	a := mustCreate(t, r, "A")
	b := mustCreate(t, r, "B")
	c := mustCreate(t, r, "C")

	now := time.Now().UTC()
	_, err := r.Update(ctx, b.ID, models.StatusUpdate{Status: models.StatusReady, CollectionSpot: models.IntPtr(1)})
	require.NoError(t, err)
	old := now.Add(-10 * time.Minute)
	_, err = r.Update(ctx, c.ID, models.StatusUpdate{Status: models.StatusCollected, CollectedTimestamp: &old})
	require.NoError(t, err)

	all, err := r.List(ctx, store.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, a.ID, all[0].ID)

	readyOnly, err := r.List(ctx, store.ListFilter{Status: models.StatusReady})
	require.NoError(t, err)
	require.Len(t, readyOnly, 1)
	assert.Equal(t, b.ID, readyOnly[0].ID)

	visible, err := r.List(ctx, store.ListFilter{VisibleSince: now.Add(-5 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, visible, 2)
	for _, o := range visible {
		assert.NotEqual(t, c.ID, o.ID)
	}
}

func TestDelete(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	o := mustCreate(t, r, "A")

	require.NoError(t, r.Delete(ctx, o.ID))
	assert.ErrorIs(t, r.Delete(ctx, o.ID), store.ErrNotFound)
}
