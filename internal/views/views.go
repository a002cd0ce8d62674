// Package views projects an order list into what each screen shows. Nothing here mutates orders.
package views

import (
	"sort"

	"github.com/vaidashi/coffee-queue/internal/models"
)

var statusRank = map[models.OrderStatus]int{
	models.StatusPending:   0,
	models.StatusReady:     1,
	models.StatusCollected: 2,
}

// SortForBarista returns a copy of orders with recently transitioned orders first,
// then by status (Pending, Ready, Collected), then oldest first. recent may be nil.
func SortForBarista(orders []*models.Order, recent func(id string) bool) []*models.Order {
	out := append([]*models.Order(nil), orders...)
	isRecent := func(o *models.Order) bool {
		return recent != nil && recent(o.ID)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if ra, rb := isRecent(a), isRecent(b); ra != rb {
			return ra
		}
		if statusRank[a.Status] != statusRank[b.Status] {
			return statusRank[a.Status] < statusRank[b.Status]
		}
		return a.OrderTimestamp.Before(b.OrderTimestamp)
	})
	return out
}

// QueueEntry is one line on the public queue screen
type QueueEntry struct {
	Order *models.Order `json:"order"`
	// Position is the 1-based place in the waiting line; 0 for Ready orders
	Position int  `json:"position"`
	Mine     bool `json:"mine"`
}

// Queue is the public queue screen
type Queue struct {
	Ready   []QueueEntry `json:"ready"`
	Waiting []QueueEntry `json:"waiting"`
	Mine    *QueueEntry  `json:"mine,omitempty"`
}

// BuildQueue splits orders into Ready (by spot) and Waiting (first in, first out).
// Collected orders are left out. myID marks the caller's own order.
func BuildQueue(orders []*models.Order, myID string) Queue {
	q := Queue{Ready: []QueueEntry{}, Waiting: []QueueEntry{}}

	var waiting []*models.Order
	for _, o := range orders {
		switch o.Status {
		case models.StatusReady:
			q.Ready = append(q.Ready, QueueEntry{Order: o, Mine: myID != "" && o.ID == myID})
		case models.StatusPending:
			waiting = append(waiting, o)
		}
	}

	sort.SliceStable(q.Ready, func(i, j int) bool {
		return q.Ready[i].Order.SpotValue() < q.Ready[j].Order.SpotValue()
	})
	sort.SliceStable(waiting, func(i, j int) bool {
		return waiting[i].OrderTimestamp.Before(waiting[j].OrderTimestamp)
	})
	for i, o := range waiting {
		q.Waiting = append(q.Waiting, QueueEntry{Order: o, Position: i + 1, Mine: myID != "" && o.ID == myID})
	}

	for _, list := range [][]QueueEntry{q.Ready, q.Waiting} {
		for i := range list {
			if list[i].Mine {
				entry := list[i]
				q.Mine = &entry
			}
		}
	}
	return q
}
