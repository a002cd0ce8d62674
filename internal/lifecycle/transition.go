package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/vaidashi/coffee-queue/internal/models"
)

var (
	ErrInvalidStatus        = errors.New("invalid status")
	ErrOrderNotFound        = errors.New("order not found")
	ErrSpotsExhausted       = errors.New("all collection spots are currently full")
	ErrTransitionNotAllowed = errors.New("transition not allowed")
)

// TransitionPolicy holds the transitions that are product decisions rather than invariants
type TransitionPolicy struct {
	AllowCollectedToReady bool
}

// DefaultTransitionPolicy allows every edge of Pending <-> Ready <-> Collected
var DefaultTransitionPolicy = TransitionPolicy{AllowCollectedToReady: true}

// Plan is the mutation to submit for one transition
type Plan struct {
	OrderID string
	From    models.OrderStatus
	// Expected is the snapshot state a conditional write must still see
	Expected models.Expected
	Update   models.StatusUpdate
}

// PlanTransition computes the write that moves orderID to target, given the current
// snapshot. The snapshot must contain the order itself and every Ready order.
func PlanTransition(
	current []*models.Order,
	orderID string,
	target models.OrderStatus,
	now time.Time,
	policy TransitionPolicy,
) (*Plan, error) {
	if !target.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, target)
	}

	order := find(current, orderID)
	if order == nil {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}

	if order.Status == models.StatusCollected && target == models.StatusReady && !policy.AllowCollectedToReady {
		return nil, fmt.Errorf("%w: %s -> %s", ErrTransitionNotAllowed, order.Status, target)
	}

	plan := &Plan{
		OrderID: order.ID,
		From:    order.Status,
		Expected: models.Expected{
			Status:         order.Status,
			CollectionSpot: order.CollectionSpot,
		},
		Update: models.StatusUpdate{Status: target},
	}

	switch target {
	case models.StatusReady:
		spot, ok := NextFreeSpot(UsedSpots(current, order.ID))
		if !ok {
			return nil, ErrSpotsExhausted
		}
		plan.Update.CollectionSpot = models.IntPtr(spot)
	case models.StatusPending:
		// spot and collected timestamp stay nil
	case models.StatusCollected:
		plan.Update.CollectedTimestamp = models.TimePtr(now.UTC())
	}

	return plan, nil
}

func find(orders []*models.Order, id string) *models.Order {
	for _, o := range orders {
		if o != nil && o.ID == id {
			return o
		}
	}
	return nil
}
