package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/vaidashi/coffee-queue/internal/models"
	"github.com/vaidashi/coffee-queue/internal/surface"
)

// PlaceOptions holds flags for order place.
type PlaceOptions struct {
	*RootOptions
	Name   string
	Coffee string
	Milk   string
	Extras []string
	Notes  string
}

// NewOrderCommand groups the order actions.
func NewOrderCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Place or move an order",
	}

	cmd.AddCommand(newPlaceCommand(rootOpts))
	cmd.AddCommand(newTransitionCommand(rootOpts, "ready", "Mark an order ready; it gets the smallest free collection spot", models.StatusReady))
	cmd.AddCommand(newTransitionCommand(rootOpts, "collect", "Mark an order collected; its spot is freed", models.StatusCollected))
	cmd.AddCommand(newTransitionCommand(rootOpts, "pending", "Send an order back to preparation", models.StatusPending))
	cmd.AddCommand(newCancelCommand(rootOpts))

	return cmd
}

func newPlaceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlaceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "place",
		Short: "Place a new order and remember it as yours",
		Long: `Place a new order. The order id is saved so that "cafectl whoami" and
"cafectl watch --surface customer" can follow it.

Examples:
  cafectl order place --name Sam --coffee Latte --milk Oat --extra Honey
  cafectl order place --name Kim --coffee Espresso --milk None`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlace(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "customer name (required)")
	cmd.Flags().StringVar(&opts.Coffee, "coffee", "", "coffee type (required)")
	cmd.Flags().StringVar(&opts.Milk, "milk", models.MilkNone, "milk option")
	cmd.Flags().StringSliceVar(&opts.Extras, "extra", nil, "extra, repeatable")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "notes for the barista")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("coffee")

	return cmd
}

func runPlace(ctx context.Context, opts *PlaceOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	loop, err := opts.newLoop(surface.Config{Kind: surface.KindCustomer}, cmd.ErrOrStderr())
	if err != nil {
		return out.Failure(err)
	}
	defer loop.Stop()

	order, err := loop.PlaceOrder(ctx, models.NewOrder{
		CustomerName: opts.Name,
		CoffeeType:   opts.Coffee,
		MilkOption:   opts.Milk,
		Extras:       opts.Extras,
		Notes:        opts.Notes,
	})
	if err != nil {
		return out.Failure(requestError("place order", err))
	}

	out.VerboseLog("saved order %s as yours", order.ID)
	return out.Success(order, func(w io.Writer) {
		fmt.Fprintf(w, "Order %s placed: %s for %s\n", order.ID, describeDrink(order), order.CustomerName)
	})
}

func newTransitionCommand(rootOpts *RootOptions, use, short string, status models.OrderStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <order-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransition(cmd.Context(), rootOpts, cmd, args[0], status)
		},
	}
}

func runTransition(ctx context.Context, opts *RootOptions, cmd *cobra.Command, id string, status models.OrderStatus) error {
	out := opts.formatter(cmd)

	loop, err := opts.newLoop(surface.Config{Kind: surface.KindBarista}, cmd.ErrOrStderr())
	if err != nil {
		return out.Failure(err)
	}
	defer loop.Stop()

	var order *models.Order
	switch status {
	case models.StatusReady:
		order, err = loop.MarkReady(ctx, id)
	case models.StatusCollected:
		order, err = loop.MarkCollected(ctx, id)
	default:
		order, err = loop.MarkPending(ctx, id)
	}
	if err != nil {
		return out.Failure(requestError("update order", err))
	}

	return out.Success(order, func(w io.Writer) {
		fmt.Fprintf(w, "Order %s (%s): %s\n", order.ID, order.CustomerName, describeStatus(order))
	})
}

func newCancelCommand(rootOpts *RootOptions) *cobra.Command {
	var surfaceName string

	cmd := &cobra.Command{
		Use:   "cancel [order-id]",
		Short: "Cancel an order",
		Long: `Cancel an order. From the customer surface (the default) only Pending
orders can be cancelled and the order id defaults to your saved order.
The barista surface may cancel an order in any status.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := surface.ParseKind(surfaceName)
			if err != nil {
				return rootOpts.formatter(cmd).Failure(NewExitError(ExitCommandError, err.Error()))
			}
			var id string
			if len(args) == 1 {
				id = args[0]
			}
			return runCancel(cmd.Context(), rootOpts, cmd, kind, id)
		},
	}

	cmd.Flags().StringVar(&surfaceName, "surface", string(surface.KindCustomer), "acting surface (customer|barista)")
	return cmd
}

func runCancel(ctx context.Context, opts *RootOptions, cmd *cobra.Command, kind surface.Kind, id string) error {
	out := opts.formatter(cmd)

	loop, err := opts.newLoop(surface.Config{Kind: kind}, cmd.ErrOrStderr())
	if err != nil {
		return out.Failure(err)
	}
	defer loop.Stop()

	if id == "" {
		identity, err := opts.identityStore()
		if err != nil {
			return out.Failure(err)
		}
		if id, err = identity.Load(); err != nil {
			return out.Failure(WrapExitError(ExitCommandError, "cannot read saved order", err))
		}
		if id == "" {
			return out.Failure(NewExitError(ExitCommandError, "no order id given and no saved order"))
		}
	}

	// Start restores the saved identity so cancelling my own order also forgets it
	if err := loop.Start(ctx); err != nil {
		return out.Failure(err)
	}
	if err := loop.Cancel(ctx, id); err != nil {
		return out.Failure(requestError("cancel order", err))
	}

	return out.Success(map[string]string{"id": id, "status": "cancelled"}, func(w io.Writer) {
		fmt.Fprintf(w, "Order %s cancelled\n", id)
	})
}
