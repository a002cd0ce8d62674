// Package lifecycle decides order status transitions, collection spot allocation,
// cancellation permission and visibility. It performs no I/O; callers read a snapshot
// from the record store, ask for a plan, and write the plan back.
package lifecycle

import (
	"github.com/vaidashi/coffee-queue/internal/models"
)

// NextFreeSpot returns the smallest spot in [MinCollectionSpot, MaxCollectionSpot] not in used
func NextFreeSpot(used map[int]bool) (int, bool) {
	for spot := models.MinCollectionSpot; spot <= models.MaxCollectionSpot; spot++ {
		if !used[spot] {
			return spot, true
		}
	}
	return 0, false
}

// UsedSpots collects the spots held by Ready orders, skipping excludeID
func UsedSpots(orders []*models.Order, excludeID string) map[int]bool {
	used := make(map[int]bool)
	for _, o := range orders {
		if o == nil || o.ID == excludeID {
			continue
		}
		if o.Status == models.StatusReady && o.CollectionSpot != nil {
			used[*o.CollectionSpot] = true
		}
	}
	return used
}
