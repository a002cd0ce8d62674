package cli

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/vaidashi/coffee-queue/internal/surface"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Surface  string
	Interval time.Duration
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the live order list",
		Long: `Poll the API and redraw a screen after every poll.

Surfaces:
  barista   every order, recently changed first (default, polls every 3s)
  customer  where your saved order stands (polls every 5s)
  queue     ready orders by spot and the waiting line (polls every 3s)

A failed poll keeps the last list on screen and shows a retrying line.

Examples:
  cafectl watch
  cafectl watch --surface queue --interval 1s
  cafectl watch --surface customer --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Surface, "surface", string(surface.KindBarista), "screen to show (barista|customer|queue)")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "poll interval (default depends on surface)")

	return cmd
}

func runWatch(opts *WatchOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	kind, err := surface.ParseKind(opts.Surface)
	if err != nil {
		return out.Failure(NewExitError(ExitCommandError, err.Error()))
	}

	var mu sync.Mutex
	w := cmd.OutOrStdout()
	draw := func(snap surface.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		writeSnapshot(w, opts.Format, kind, snap)
	}

	loop, err := opts.newLoop(surface.Config{Kind: kind, Interval: opts.Interval, OnChange: draw}, cmd.ErrOrStderr())
	if err != nil {
		return out.Failure(err)
	}

	ctx := cmd.Context()
	if err := loop.Start(ctx); err != nil {
		return out.Failure(err)
	}
	defer loop.Stop()

	<-ctx.Done()
	return nil
}

func writeSnapshot(w io.Writer, format string, kind surface.Kind, snap surface.Snapshot) {
	if format != "json" {
		renderSnapshot(w, kind, snap)
		return
	}

	frame := struct {
		Surface  surface.Kind `json:"surface"`
		Orders   interface{}  `json:"orders"`
		Recent   []string     `json:"recent,omitempty"`
		MyOrder  string       `json:"myOrder,omitempty"`
		Error    string       `json:"error,omitempty"`
		LastSync time.Time    `json:"lastSync"`
	}{Surface: kind, Orders: snap.Orders, MyOrder: snap.MyOrderID, LastSync: snap.LastSync}
	for id := range snap.Recent {
		frame.Recent = append(frame.Recent, id)
	}
	if snap.Err != nil {
		frame.Error = snap.Err.Error()
	}
	_ = json.NewEncoder(w).Encode(frame)
}
