// Package surface keeps a client-side mirror of the current orders in sync by polling,
// and runs user actions against it with sticky highlighting and rollback.
package surface

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vaidashi/coffee-queue/internal/lifecycle"
	"github.com/vaidashi/coffee-queue/internal/models"
	"github.com/vaidashi/coffee-queue/pkg/logger"
)

// Kind names a screen; it decides poll speed and cancel rights
type Kind string

const (
	KindBarista  Kind = "barista"
	KindCustomer Kind = "customer"
	KindQueue    Kind = "queue"
)

// DefaultInterval is the poll interval used when Config.Interval is zero
func (k Kind) DefaultInterval() time.Duration {
	switch k {
	case KindCustomer:
		return 5 * time.Second
	default:
		return 3 * time.Second
	}
}

// CancelPolicy is what this screen may cancel: customers only while Pending
func (k Kind) CancelPolicy() lifecycle.CancelPolicy {
	if k == KindCustomer {
		return lifecycle.CancelPendingOnly
	}
	return lifecycle.CancelAnyStatus
}

// ParseKind reads a screen name
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindBarista, KindCustomer, KindQueue:
		return k, nil
	}
	return "", fmt.Errorf("unknown surface %q (want barista, customer or queue)", s)
}

// OrdersAPI is the server the loop mirrors. clients.OrdersClient and service.OrderService implement it.
type OrdersAPI interface {
	ListCurrentOrders(ctx context.Context) ([]*models.Order, error)
	CreateOrder(ctx context.Context, in models.NewOrder) (*models.Order, error)
	UpdateStatus(ctx context.Context, id string, status models.OrderStatus) (*models.Order, error)
	CancelOrder(ctx context.Context, id string, policy lifecycle.CancelPolicy) error
}

// Config tunes a Loop. Zero durations take the defaults.
type Config struct {
	Kind                Kind
	Interval            time.Duration
	RequestTimeout      time.Duration
	StickyDwell         time.Duration
	CollectedClearDelay time.Duration
	Identity            IdentityStore
	OnChange            func(Snapshot)
	Logger              logger.Logger
}

func (c *Config) setDefaults() {
	if c.Kind == "" {
		c.Kind = KindBarista
	}
	if c.Interval <= 0 {
		c.Interval = c.Kind.DefaultInterval()
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 5 * time.Second
	}
	if c.StickyDwell <= 0 {
		c.StickyDwell = 10 * time.Second
	}
	if c.CollectedClearDelay <= 0 {
		c.CollectedClearDelay = 5 * time.Second
	}
	if c.Identity == nil {
		c.Identity = &MemoryIdentityStore{}
	}
	if c.Logger == nil {
		c.Logger = logger.NewNop()
	}
}

// Snapshot is an immutable copy of the loop state
type Snapshot struct {
	Orders    []*models.Order
	Err       error
	ActionErr error
	LastSync  time.Time
	Recent    map[string]bool
	MyOrderID string
}

// IsRecent reports whether id carries the sticky "just changed" mark
func (s Snapshot) IsRecent(id string) bool {
	return s.Recent[id]
}

// MyOrder finds the identity order in the list, or nil
func (s Snapshot) MyOrder() *models.Order {
	if s.MyOrderID == "" {
		return nil
	}
	for _, o := range s.Orders {
		if o.ID == s.MyOrderID {
			return o
		}
	}
	return nil
}

type stickyMark struct {
	token uint64
	timer *time.Timer
}

// Loop mirrors the server's current orders for one screen
type Loop struct {
	api OrdersAPI
	cfg Config

	mu         sync.Mutex
	orders     []*models.Order
	err        error
	actionErr  error
	lastSync   time.Time
	listedAt   time.Time
	sticky     map[string]*stickyMark
	nextToken  uint64
	myID       string
	myIDSetAt  time.Time
	clearTimer *time.Timer
	running    bool
	stopped    bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// New creates a loop; call Start to begin polling
func New(api OrdersAPI, cfg Config) *Loop {
	cfg.setDefaults()
	return &Loop{
		api:    api,
		cfg:    cfg,
		sticky: make(map[string]*stickyMark),
	}
}

// Start restores the saved identity, fetches once and then polls every interval until Stop or ctx ends
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.running || l.stopped {
		l.mu.Unlock()
		return fmt.Errorf("loop already started")
	}
	l.running = true

	if id, err := l.cfg.Identity.Load(); err != nil {
		l.cfg.Logger.Warn("Failed to restore order identity", "error", err)
	} else {
		l.myID = id
	}

	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.mu.Unlock()

	_ = l.Refresh(ctx)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(l.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = l.Refresh(ctx)
			}
		}
	}()

	l.cfg.Logger.Debug("Surface loop started", "kind", l.cfg.Kind, "interval", l.cfg.Interval)
	return nil
}

// Stop cancels polling and every pending timer. It is safe to call more than once.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	if l.cancel != nil {
		l.cancel()
	}
	for id, mark := range l.sticky {
		if mark.timer != nil {
			mark.timer.Stop()
		}
		delete(l.sticky, id)
	}
	if l.clearTimer != nil {
		l.clearTimer.Stop()
		l.clearTimer = nil
	}
	l.mu.Unlock()

	l.wg.Wait()
}

// Refresh fetches the current orders now. On failure the last good list is kept.
func (l *Loop) Refresh(ctx context.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx, l.cfg.RequestTimeout)
	defer cancel()

	started := time.Now()
	orders, err := l.api.ListCurrentOrders(reqCtx)

	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return err
	}
	if err != nil {
		l.err = err
		l.cfg.Logger.Warn("Order refresh failed, keeping last list", "error", err)
	} else {
		l.orders = orders
		l.err = nil
		l.lastSync = time.Now()
		l.listedAt = started
		l.watchIdentity()
	}
	l.mu.Unlock()

	l.notify()
	return err
}

// Snapshot returns a copy of the current state
func (l *Loop) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *Loop) snapshotLocked() Snapshot {
	recent := make(map[string]bool, len(l.sticky))
	for id := range l.sticky {
		recent[id] = true
	}
	orders := make([]*models.Order, len(l.orders))
	for i, o := range l.orders {
		orders[i] = o.Clone()
	}
	return Snapshot{
		Orders:    orders,
		Err:       l.err,
		ActionErr: l.actionErr,
		LastSync:  l.lastSync,
		Recent:    recent,
		MyOrderID: l.myID,
	}
}

func (l *Loop) notify() {
	if l.cfg.OnChange == nil {
		return
	}
	l.cfg.OnChange(l.Snapshot())
}

// MarkReady moves id to Ready
func (l *Loop) MarkReady(ctx context.Context, id string) (*models.Order, error) {
	return l.transition(ctx, id, models.StatusReady)
}

// MarkPending moves id back to Pending
func (l *Loop) MarkPending(ctx context.Context, id string) (*models.Order, error) {
	return l.transition(ctx, id, models.StatusPending)
}

// MarkCollected moves id to Collected
func (l *Loop) MarkCollected(ctx context.Context, id string) (*models.Order, error) {
	return l.transition(ctx, id, models.StatusCollected)
}

// transition marks id sticky before the request, rolls the mark back on failure and
// lets it expire after the dwell time on success.
func (l *Loop) transition(ctx context.Context, id string, status models.OrderStatus) (*models.Order, error) {
	token := l.mark(id)
	l.notify()

	reqCtx, cancel := context.WithTimeout(ctx, l.cfg.RequestTimeout)
	updated, err := l.api.UpdateStatus(reqCtx, id, status)
	cancel()

	if err != nil {
		l.unmark(id, token)
		l.setActionErr(err)
		l.notify()
		return nil, err
	}

	l.confirm(id, token)
	l.setActionErr(nil)
	_ = l.Refresh(ctx)
	return updated, nil
}

// Cancel deletes id under this screen's cancel policy
func (l *Loop) Cancel(ctx context.Context, id string) error {
	reqCtx, cancel := context.WithTimeout(ctx, l.cfg.RequestTimeout)
	err := l.api.CancelOrder(reqCtx, id, l.cfg.Kind.CancelPolicy())
	cancel()

	if err != nil {
		l.setActionErr(err)
		l.notify()
		return err
	}

	l.mu.Lock()
	mine := id == l.myID
	l.actionErr = nil
	l.mu.Unlock()
	if mine {
		l.ResetIdentity()
	}

	_ = l.Refresh(ctx)
	return nil
}

// PlaceOrder creates an order and remembers it as this customer's order
func (l *Loop) PlaceOrder(ctx context.Context, in models.NewOrder) (*models.Order, error) {
	reqCtx, cancel := context.WithTimeout(ctx, l.cfg.RequestTimeout)
	order, err := l.api.CreateOrder(reqCtx, in)
	cancel()

	if err != nil {
		l.setActionErr(err)
		l.notify()
		return nil, err
	}

	l.mu.Lock()
	l.actionErr = nil
	l.setIdentityLocked(order.ID)
	l.mu.Unlock()

	_ = l.Refresh(ctx)
	return order, nil
}

// ResetIdentity forgets this customer's order
func (l *Loop) ResetIdentity() {
	l.mu.Lock()
	l.setIdentityLocked("")
	l.mu.Unlock()
	l.notify()
}

// setIdentityLocked must be called with mu held
func (l *Loop) setIdentityLocked(id string) {
	if l.clearTimer != nil {
		l.clearTimer.Stop()
		l.clearTimer = nil
	}
	l.myID = id
	l.myIDSetAt = time.Now()

	var err error
	if id == "" {
		err = l.cfg.Identity.Clear()
	} else {
		err = l.cfg.Identity.Save(id)
	}
	if err != nil {
		l.cfg.Logger.Warn("Failed to persist order identity", "error", err)
	}
}

// watchIdentity schedules the identity to clear once my order is seen Collected, or is
// missing from a list requested after the identity was set. Any other status cancels a
// scheduled clear. mu must be held.
func (l *Loop) watchIdentity() {
	if l.myID == "" {
		return
	}
	if !l.identityDoneLocked() {
		if l.clearTimer != nil {
			l.clearTimer.Stop()
			l.clearTimer = nil
		}
		return
	}
	if l.clearTimer != nil {
		return
	}

	id := l.myID
	var timer *time.Timer
	timer = time.AfterFunc(l.cfg.CollectedClearDelay, func() {
		l.mu.Lock()
		if l.stopped || l.myID != id || l.clearTimer != timer {
			l.mu.Unlock()
			return
		}
		l.clearTimer = nil
		if !l.identityDoneLocked() {
			l.mu.Unlock()
			return
		}
		l.setIdentityLocked("")
		l.mu.Unlock()
		l.notify()
	})
	l.clearTimer = timer
}

// identityDoneLocked reports whether the last list shows my order Collected, or lacks it
// although that list was requested after the identity was set
func (l *Loop) identityDoneLocked() bool {
	for _, o := range l.orders {
		if o.ID == l.myID {
			return o.Status == models.StatusCollected
		}
	}
	return l.myIDSetAt.Before(l.listedAt)
}

func (l *Loop) mark(id string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextToken++
	if old, ok := l.sticky[id]; ok && old.timer != nil {
		old.timer.Stop()
	}
	l.sticky[id] = &stickyMark{token: l.nextToken}
	return l.nextToken
}

// unmark removes the mark only if no later action replaced it
func (l *Loop) unmark(id string, token uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if mark, ok := l.sticky[id]; ok && mark.token == token {
		if mark.timer != nil {
			mark.timer.Stop()
		}
		delete(l.sticky, id)
	}
}

func (l *Loop) confirm(id string, token uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	mark, ok := l.sticky[id]
	if !ok || mark.token != token || l.stopped {
		return
	}
	mark.timer = time.AfterFunc(l.cfg.StickyDwell, func() {
		l.unmark(id, token)
		l.notify()
	})
}

func (l *Loop) setActionErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.actionErr = err
}
