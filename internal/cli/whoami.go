package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/vaidashi/coffee-queue/internal/surface"
)

// NewWhoamiCommand shows the saved order and where it stands.
func NewWhoamiCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show your saved order and its place in the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)

			loop, err := rootOpts.newLoop(surface.Config{Kind: surface.KindCustomer}, cmd.ErrOrStderr())
			if err != nil {
				return out.Failure(err)
			}
			if err := loop.Start(cmd.Context()); err != nil {
				return out.Failure(err)
			}
			loop.Stop()

			snap := loop.Snapshot()
			if snap.Err != nil && snap.MyOrderID != "" {
				return out.Failure(requestError("fetch orders", snap.Err))
			}

			return out.Success(map[string]interface{}{"orderId": snap.MyOrderID, "order": snap.MyOrder()}, func(w io.Writer) {
				fmt.Fprintln(w, describeMine(snap))
			})
		},
	}
}

// NewForgetCommand clears the saved order.
func NewForgetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "forget",
		Short: "Forget your saved order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)

			identity, err := rootOpts.identityStore()
			if err != nil {
				return out.Failure(err)
			}
			if err := identity.Clear(); err != nil {
				return out.Failure(WrapExitError(ExitCommandError, "cannot clear saved order", err))
			}

			return out.Success(map[string]string{"identity": identity.Path()}, func(w io.Writer) {
				fmt.Fprintln(w, "Saved order forgotten")
			})
		},
	}
}
