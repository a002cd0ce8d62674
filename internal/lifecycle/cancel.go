package lifecycle

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vaidashi/coffee-queue/internal/models"
)

// ErrCancelNotAllowed is returned when the cancel policy forbids deleting the order
var ErrCancelNotAllowed = errors.New("order can no longer be cancelled")

// CancelPolicy says which statuses a caller may cancel from
type CancelPolicy int

const (
	// CancelAnyStatus is used by the barista surface
	CancelAnyStatus CancelPolicy = iota
	// CancelPendingOnly is used by the customer surface
	CancelPendingOnly
)

func (p CancelPolicy) String() string {
	if p == CancelPendingOnly {
		return "pending-only"
	}
	return "any"
}

// ParseCancelPolicy reads "pending-only" or "any"; empty means any
func ParseCancelPolicy(s string) (CancelPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any":
		return CancelAnyStatus, nil
	case "pending-only", "pending":
		return CancelPendingOnly, nil
	default:
		return CancelAnyStatus, fmt.Errorf("unknown cancel policy %q", s)
	}
}

// PlanCancellation returns nil when order may be deleted under policy
func PlanCancellation(order *models.Order, policy CancelPolicy) error {
	if order == nil {
		return ErrOrderNotFound
	}
	if policy == CancelPendingOnly && order.Status != models.StatusPending {
		return fmt.Errorf("%w: order is %s", ErrCancelNotAllowed, order.Status)
	}
	return nil
}
