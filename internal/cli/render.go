package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/vaidashi/coffee-queue/internal/models"
	"github.com/vaidashi/coffee-queue/internal/surface"
	"github.com/vaidashi/coffee-queue/internal/views"
)

// describeDrink renders "Latte, Oat milk, Honey"
func describeDrink(o *models.Order) string {
	parts := []string{o.CoffeeType}
	if o.MilkOption != "" && o.MilkOption != models.MilkNone {
		parts = append(parts, o.MilkOption+" milk")
	}
	parts = append(parts, o.Extras...)
	return strings.Join(parts, ", ")
}

func describeStatus(o *models.Order) string {
	if o.Status == models.StatusReady && o.CollectionSpot != nil {
		return fmt.Sprintf("Ready at spot %d", *o.CollectionSpot)
	}
	return string(o.Status)
}

// renderHeader prints the sync line; a failed poll shows as retrying, never as an empty list
func renderHeader(w io.Writer, title string, snap surface.Snapshot) {
	synced := "never"
	if !snap.LastSync.IsZero() {
		synced = snap.LastSync.Local().Format("15:04:05")
	}
	fmt.Fprintf(w, "== %s (synced %s)\n", title, synced)
	if snap.Err != nil {
		fmt.Fprintf(w, "   retrying: %v\n", snap.Err)
	}
	if snap.ActionErr != nil {
		fmt.Fprintf(w, "   last action failed: %v\n", snap.ActionErr)
	}
}

func renderBarista(w io.Writer, snap surface.Snapshot) {
	renderHeader(w, "Barista", snap)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, o := range views.SortForBarista(snap.Orders, snap.IsRecent) {
		mark := " "
		if snap.IsRecent(o.ID) {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", mark, o.ID, o.CustomerName, describeDrink(o), describeStatus(o), o.Notes)
	}
	tw.Flush()
}

func renderQueue(w io.Writer, snap surface.Snapshot) {
	renderHeader(w, "Queue", snap)
	q := views.BuildQueue(snap.Orders, snap.MyOrderID)

	fmt.Fprintln(w, "Ready for collection:")
	if len(q.Ready) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, e := range q.Ready {
		fmt.Fprintf(w, "  spot %2d  %s%s\n", e.Order.SpotValue(), e.Order.CustomerName, youMarker(e))
	}

	fmt.Fprintln(w, "Being prepared:")
	if len(q.Waiting) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, e := range q.Waiting {
		fmt.Fprintf(w, "  %3d.  %s%s\n", e.Position, e.Order.CustomerName, youMarker(e))
	}
}

func renderCustomer(w io.Writer, snap surface.Snapshot) {
	renderHeader(w, "Your order", snap)
	fmt.Fprintln(w, describeMine(snap))
}

// describeMine explains where the customer's own order stands
func describeMine(snap surface.Snapshot) string {
	if snap.MyOrderID == "" {
		return "You have no current order."
	}

	mine := snap.MyOrder()
	if mine == nil {
		return fmt.Sprintf("Order %s is no longer in the queue.", snap.MyOrderID)
	}

	switch mine.Status {
	case models.StatusReady:
		return fmt.Sprintf("%s, your %s is ready at spot %d.", mine.CustomerName, describeDrink(mine), mine.SpotValue())
	case models.StatusCollected:
		return fmt.Sprintf("%s, your %s has been collected. Enjoy!", mine.CustomerName, describeDrink(mine))
	}

	q := views.BuildQueue(snap.Orders, snap.MyOrderID)
	position := 0
	if q.Mine != nil {
		position = q.Mine.Position
	}
	return fmt.Sprintf("%s, your %s is being prepared (%d of %d in line).", mine.CustomerName, describeDrink(mine), position, len(q.Waiting))
}

func youMarker(e views.QueueEntry) string {
	if e.Mine {
		return "  <- you"
	}
	return ""
}

func renderSnapshot(w io.Writer, kind surface.Kind, snap surface.Snapshot) {
	switch kind {
	case surface.KindCustomer:
		renderCustomer(w, snap)
	case surface.KindQueue:
		renderQueue(w, snap)
	default:
		renderBarista(w, snap)
	}
}
