package lifecycle

import (
	"sort"
	"time"

	"github.com/vaidashi/coffee-queue/internal/models"
)

// DefaultRetentionWindow is how long a Collected order stays in current-order reads
const DefaultRetentionWindow = 5 * time.Minute

// IsVisible reports whether order belongs in a current-orders read at now.
// A Collected order without a timestamp is treated as expired.
func IsVisible(order *models.Order, now time.Time, window time.Duration) bool {
	if order.Status != models.StatusCollected {
		return true
	}
	if order.CollectedTimestamp == nil {
		return false
	}
	return now.Sub(*order.CollectedTimestamp) <= window
}

// VisibleSince is the cutoff a store filter uses: Collected orders collected after it stay visible
func VisibleSince(now time.Time, window time.Duration) time.Time {
	return now.Add(-window)
}

// FilterVisible keeps visible orders and sorts them by order time, oldest first
func FilterVisible(orders []*models.Order, now time.Time, window time.Duration) []*models.Order {
	visible := make([]*models.Order, 0, len(orders))
	for _, o := range orders {
		if IsVisible(o, now, window) {
			visible = append(visible, o)
		}
	}
	SortByOrderTime(visible)
	return visible
}

// SortByOrderTime orders oldest first; ties keep their relative order
func SortByOrderTime(orders []*models.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].OrderTimestamp.Before(orders[j].OrderTimestamp)
	})
}
