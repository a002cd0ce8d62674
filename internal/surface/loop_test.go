package surface

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaidashi/coffee-queue/internal/lifecycle"
	"github.com/vaidashi/coffee-queue/internal/models"
	apperrors "github.com/vaidashi/coffee-queue/pkg/errors"
)

// fakeAPI is an in-memory server whose calls can be made to fail
type fakeAPI struct {
	mu        sync.Mutex
	orders    map[string]*models.Order
	seq       int
	listErr   error
	updateErr error
	cancels   []lifecycle.CancelPolicy
	lists     int
}

func newFakeAPI(orders ...*models.Order) *fakeAPI {
	f := &fakeAPI{orders: map[string]*models.Order{}}
	for _, o := range orders {
		f.orders[o.ID] = o
	}
	return f
}

func (f *fakeAPI) ListCurrentOrders(ctx context.Context) ([]*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*models.Order
	for _, o := range f.orders {
		out = append(out, o.Clone())
	}
	return out, nil
}

func (f *fakeAPI) CreateOrder(ctx context.Context, in models.NewOrder) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	o := &models.Order{
		ID:           fmt.Sprintf("ord-new-%d", f.seq),
		CustomerName: in.CustomerName,
		CoffeeType:   in.CoffeeType,
		MilkOption:   in.MilkOption,
		Status:       models.StatusPending,
	}
	f.orders[o.ID] = o
	return o.Clone(), nil
}

func (f *fakeAPI) UpdateStatus(ctx context.Context, id string, status models.OrderStatus) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	o, ok := f.orders[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("Order not found")
	}
	o.Status = status
	return o.Clone(), nil
}

func (f *fakeAPI) CancelOrder(ctx context.Context, id string, policy lifecycle.CancelPolicy) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, policy)
	if _, ok := f.orders[id]; !ok {
		return apperrors.NewNotFoundError("Order not found")
	}
	delete(f.orders, id)
	return nil
}

func (f *fakeAPI) set(fn func(f *fakeAPI)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func pending(id string) *models.Order {
	return &models.Order{ID: id, CustomerName: id, CoffeeType: "Latte", MilkOption: "Oat", Status: models.StatusPending}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Customer ")
	require.NoError(t, err)
	assert.Equal(t, KindCustomer, k)
	assert.Equal(t, 5*time.Second, k.DefaultInterval())
	assert.Equal(t, lifecycle.CancelPendingOnly, k.CancelPolicy())
	assert.Equal(t, lifecycle.CancelAnyStatus, KindBarista.CancelPolicy())

	_, err = ParseKind("kitchen")
	assert.Error(t, err)
}

func TestRefreshKeepsListOnFailure(t *testing.T) {
	api := newFakeAPI(pending("a"), pending("b"))
	loop := New(api, Config{})
	ctx := context.Background()

	require.NoError(t, loop.Refresh(ctx))
	snap := loop.Snapshot()
	assert.Len(t, snap.Orders, 2)
	assert.NoError(t, snap.Err)
	synced := snap.LastSync

	api.set(func(f *fakeAPI) { f.listErr = apperrors.NewTemporaryError("down") })
	require.Error(t, loop.Refresh(ctx))

	snap = loop.Snapshot()
	assert.Len(t, snap.Orders, 2)
	assert.Error(t, snap.Err)
	assert.Equal(t, synced, snap.LastSync)

	api.set(func(f *fakeAPI) {
		f.listErr = nil
		delete(f.orders, "a")
	})
	require.NoError(t, loop.Refresh(ctx))
	snap = loop.Snapshot()
	require.Len(t, snap.Orders, 1)
	assert.Equal(t, "b", snap.Orders[0].ID)
	assert.NoError(t, snap.Err)
}

func TestFailedActionRollsBackHighlight(t *testing.T) {
	api := newFakeAPI(pending("a"))
	api.updateErr = apperrors.NewConflictError("Error: All collection spots are currently full.")

	var mu sync.Mutex
	var seen []Snapshot
	loop := New(api, Config{OnChange: func(s Snapshot) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	}})
	ctx := context.Background()
	require.NoError(t, loop.Refresh(ctx))

	_, err := loop.MarkReady(ctx, "a")
	require.Error(t, err)

	snap := loop.Snapshot()
	assert.False(t, snap.IsRecent("a"))
	assert.Error(t, snap.ActionErr)
	require.Len(t, snap.Orders, 1)
	assert.Equal(t, models.StatusPending, snap.Orders[0].Status)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 3)
	assert.True(t, seen[1].IsRecent("a"), "highlight shown while request is in flight")
}

func TestSuccessfulActionHighlightExpires(t *testing.T) {
	api := newFakeAPI(pending("a"))
	loop := New(api, Config{StickyDwell: 50 * time.Millisecond})
	defer loop.Stop()

	updated, err := loop.MarkReady(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, updated.Status)

	snap := loop.Snapshot()
	assert.True(t, snap.IsRecent("a"))
	assert.NoError(t, snap.ActionErr)
	require.Len(t, snap.Orders, 1)
	assert.Equal(t, models.StatusReady, snap.Orders[0].Status)

	require.Eventually(t, func() bool {
		return !loop.Snapshot().IsRecent("a")
	}, time.Second, 10*time.Millisecond)
}

func TestLaterActionKeepsHighlight(t *testing.T) {
	api := newFakeAPI(pending("a"))
	loop := New(api, Config{StickyDwell: time.Hour})
	defer loop.Stop()
	ctx := context.Background()

	_, err := loop.MarkReady(ctx, "a")
	require.NoError(t, err)

	token := loop.mark("a")
	loop.unmark("a", token-1)
	assert.True(t, loop.Snapshot().IsRecent("a"), "stale token must not clear a newer mark")
}

func TestStartPollsAndStops(t *testing.T) {
	api := newFakeAPI(pending("a"))
	loop := New(api, Config{Interval: 10 * time.Millisecond})

	require.NoError(t, loop.Start(context.Background()))
	assert.Error(t, loop.Start(context.Background()))

	require.Eventually(t, func() bool {
		api.mu.Lock()
		defer api.mu.Unlock()
		return api.lists >= 3
	}, time.Second, 5*time.Millisecond)

	loop.Stop()
	loop.Stop()

	api.mu.Lock()
	after := api.lists
	api.mu.Unlock()
	time.Sleep(40 * time.Millisecond)
	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Equal(t, after, api.lists)
}

func TestPlaceOrderRemembersIdentity(t *testing.T) {
	api := newFakeAPI()
	ids := NewFileIdentityStore(filepath.Join(t.TempDir(), "identity.yaml"))
	loop := New(api, Config{Kind: KindCustomer, Identity: ids, CollectedClearDelay: 30 * time.Millisecond})
	defer loop.Stop()
	ctx := context.Background()

	order, err := loop.PlaceOrder(ctx, models.NewOrder{CustomerName: "Sam", CoffeeType: "Latte", MilkOption: "Oat"})
	require.NoError(t, err)

	saved, err := ids.Load()
	require.NoError(t, err)
	assert.Equal(t, order.ID, saved)
	require.NotNil(t, loop.Snapshot().MyOrder())

	// a restarted loop restores the identity
	restored := New(api, Config{Kind: KindCustomer, Identity: ids, Interval: time.Hour})
	require.NoError(t, restored.Start(ctx))
	assert.Equal(t, order.ID, restored.Snapshot().MyOrderID)
	restored.Stop()

	api.set(func(f *fakeAPI) { f.orders[order.ID].Status = models.StatusCollected })
	require.NoError(t, loop.Refresh(ctx))
	assert.Equal(t, order.ID, loop.Snapshot().MyOrderID)

	require.Eventually(t, func() bool {
		return loop.Snapshot().MyOrderID == ""
	}, time.Second, 5*time.Millisecond)

	saved, err = ids.Load()
	require.NoError(t, err)
	assert.Empty(t, saved)
}

func TestIdentityKeptWhenCollectedOrderReturnsToReady(t *testing.T) {
	api := newFakeAPI()
	loop := New(api, Config{Kind: KindCustomer, CollectedClearDelay: 30 * time.Millisecond})
	defer loop.Stop()
	ctx := context.Background()

	order, err := loop.PlaceOrder(ctx, models.NewOrder{CustomerName: "Sam", CoffeeType: "Latte", MilkOption: "Oat"})
	require.NoError(t, err)

	api.set(func(f *fakeAPI) { f.orders[order.ID].Status = models.StatusCollected })
	require.NoError(t, loop.Refresh(ctx))

	api.set(func(f *fakeAPI) {
		f.orders[order.ID].Status = models.StatusReady
		f.orders[order.ID].CollectionSpot = models.IntPtr(1)
	})
	require.NoError(t, loop.Refresh(ctx))

	time.Sleep(80 * time.Millisecond)

	snap := loop.Snapshot()
	assert.Equal(t, order.ID, snap.MyOrderID)
	require.NotNil(t, snap.MyOrder())
	assert.Equal(t, models.StatusReady, snap.MyOrder().Status)

	// collected again, the clear is scheduled anew
	api.set(func(f *fakeAPI) {
		f.orders[order.ID].Status = models.StatusCollected
		f.orders[order.ID].CollectionSpot = nil
	})
	require.NoError(t, loop.Refresh(ctx))
	require.Eventually(t, func() bool {
		return loop.Snapshot().MyOrderID == ""
	}, time.Second, 5*time.Millisecond)
}

func TestIdentityClearedWhenOrderDisappears(t *testing.T) {
	api := newFakeAPI()
	loop := New(api, Config{Kind: KindCustomer, CollectedClearDelay: 20 * time.Millisecond})
	defer loop.Stop()
	ctx := context.Background()

	order, err := loop.PlaceOrder(ctx, models.NewOrder{CustomerName: "Sam", CoffeeType: "Latte", MilkOption: "Oat"})
	require.NoError(t, err)

	// a failed refresh says nothing about the order
	api.set(func(f *fakeAPI) { f.listErr = apperrors.NewTemporaryError("down") })
	require.Error(t, loop.Refresh(ctx))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, order.ID, loop.Snapshot().MyOrderID)

	// cancelled by the barista
	api.set(func(f *fakeAPI) {
		f.listErr = nil
		delete(f.orders, order.ID)
	})
	require.NoError(t, loop.Refresh(ctx))
	require.Eventually(t, func() bool {
		return loop.Snapshot().MyOrderID == ""
	}, time.Second, 5*time.Millisecond)
}

func TestRestoredIdentityClearedWhenOrderExpired(t *testing.T) {
	ids := &MemoryIdentityStore{}
	require.NoError(t, ids.Save("ord-gone"))

	loop := New(newFakeAPI(pending("a")), Config{
		Kind:                KindCustomer,
		Identity:            ids,
		Interval:            time.Hour,
		CollectedClearDelay: 20 * time.Millisecond,
	})
	require.NoError(t, loop.Start(context.Background()))
	defer loop.Stop()

	require.Eventually(t, func() bool {
		id, _ := ids.Load()
		return id == "" && loop.Snapshot().MyOrderID == ""
	}, time.Second, 5*time.Millisecond)
}

func TestCustomerCancelUsesPendingOnly(t *testing.T) {
	api := newFakeAPI()
	loop := New(api, Config{Kind: KindCustomer})
	ctx := context.Background()

	order, err := loop.PlaceOrder(ctx, models.NewOrder{CustomerName: "Sam", CoffeeType: "Latte", MilkOption: "Oat"})
	require.NoError(t, err)

	require.NoError(t, loop.Cancel(ctx, order.ID))
	assert.Equal(t, []lifecycle.CancelPolicy{lifecycle.CancelPendingOnly}, api.cancels)
	assert.Empty(t, loop.Snapshot().MyOrderID)

	err = loop.Cancel(ctx, order.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Error(t, loop.Snapshot().ActionErr)
}

func TestFileIdentityStore(t *testing.T) {
	ids := NewFileIdentityStore(filepath.Join(t.TempDir(), "nested", "identity.yaml"))

	id, err := ids.Load()
	require.NoError(t, err)
	assert.Empty(t, id)

	require.NoError(t, ids.Save("ord-1"))
	id, err = ids.Load()
	require.NoError(t, err)
	assert.Equal(t, "ord-1", id)

	require.NoError(t, ids.Clear())
	require.NoError(t, ids.Clear())
	id, err = ids.Load()
	require.NoError(t, err)
	assert.Empty(t, id)
}
