package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mmeshcher/courier-agent/internal/config"
	"github.com/mmeshcher/courier-agent/internal/model"
	"github.com/mmeshcher/courier-agent/internal/service"
	"github.com/mmeshcher/courier-agent/internal/validation"
	"github.com/mmeshcher/courier-agent/internal/verification"
)

var errDeliveryCancelled = errors.New("delivery cancelled")

func ordersCmd(cfg *config.Config) *cobra.Command {
	var (
		nearby bool
		radius float64
	)

	cmd := &cobra.Command{
		Use:   "orders",
		Short: "List open orders from both sources",
		Args:  cobra.NoArgs,
		RunE: withApp(cfg, true, func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			orders := a.orders.RefreshOpenOrders(ctx, service.RefreshPull)
			if !nearby {
				printOrders(cmd.OutOrStdout(), orders, false)
				return nil
			}

			if radius <= 0 {
				radius = cfg.NearbyRadiusKm
			}
			near, err := a.orders.NearbyOrders(radius)
			if err != nil {
				return err
			}
			printOrders(cmd.OutOrStdout(), near, true)
			return nil
		}),
	}

	cmd.Flags().BoolVar(&nearby, "nearby", false, "only orders near the last reported location")
	cmd.Flags().Float64Var(&radius, "radius", 0, "nearby radius in km (defaults to --nearby-radius)")
	return cmd
}

func mineCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "mine",
		Short: "List orders assigned to you",
		Args:  cobra.NoArgs,
		RunE: withApp(cfg, true, func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			printOrders(cmd.OutOrStdout(), a.orders.RefreshMyOrders(ctx, service.RefreshPull), false)
			return nil
		}),
	}
}

func acceptCmd(cfg *config.Config) *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "accept <order-id>",
		Short: "Accept an open order",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(cfg, true, func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			src := model.Source(source)
			if source != "" && !src.Valid() {
				return fmt.Errorf("%w: %q", service.ErrInvalidSource, source)
			}
			if source == "" {
				a.orders.RefreshOpenOrders(ctx, service.RefreshPull)
			}

			if err := a.orders.AcceptOrder(ctx, args[0], nil, src); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s Order accepted\n", okMark)
			if o, ok := a.orders.Find(args[0]); ok {
				printOrder(out, o)
			}
			return nil
		}),
	}

	cmd.Flags().StringVar(&source, "source", "", "order source: stockist or direct (looked up when omitted)")
	return cmd
}

func advanceCmd(cfg *config.Config) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "advance <order-id>",
		Short: "Move an assigned order to its next status",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(cfg, true, func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			o, err := loadAssigned(ctx, a, args[0])
			if err != nil {
				return err
			}

			next, ok := o.Status.Next()
			if !ok {
				return fmt.Errorf("order %s is %s: %w", o.DisplayID(), o.Status.Label(), service.ErrTerminalStatus)
			}
			return runPrompt(ctx, cmd, a, o, next, yes)
		}),
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation question")
	return cmd
}

func deliverCmd(cfg *config.Config) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "deliver <order-id>",
		Short: "Mark an order delivered, asking for the customer's code when required",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(cfg, true, func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			o, err := loadAssigned(ctx, a, args[0])
			if err != nil {
				return err
			}
			if o.Status.Terminal() {
				return fmt.Errorf("order %s is %s: %w", o.DisplayID(), o.Status.Label(), service.ErrTerminalStatus)
			}
			return runPrompt(ctx, cmd, a, o, model.StatusDelivered, yes)
		}),
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation question for orders without a code")
	return cmd
}

func loadAssigned(ctx context.Context, a *app, orderID string) (model.Order, error) {
	a.orders.RefreshMyOrders(ctx, service.RefreshPull)
	o, ok := a.orders.Find(orderID)
	if !ok {
		return model.Order{}, fmt.Errorf("order %s: %w", orderID, service.ErrOrderNotFound)
	}
	return o, nil
}

// runPrompt проводит смену статуса через шлюз подтверждения: вопрос да/нет
// или ввод кода получателя с повтором до верного кода или конца ввода.
func runPrompt(ctx context.Context, cmd *cobra.Command, a *app, o model.Order, target model.OrderStatus, yes bool) error {
	out := cmd.OutOrStdout()
	in := bufio.NewReader(cmd.InOrStdin())
	prompt := a.gate.Begin(o, target)

	if prompt.Kind() == verification.KindConfirm {
		if !yes {
			ok, err := askYesNo(in, out, fmt.Sprintf("Mark order %s as %s?", o.DisplayID(), target.Label()))
			if err != nil {
				return err
			}
			if !ok {
				prompt.Cancel()
				fmt.Fprintln(out, "Cancelled")
				return nil
			}
		}
		if err := prompt.Confirm(ctx); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s Order %s is now %s\n", okMark, o.DisplayID(), statusText(target))
		return nil
	}

	fmt.Fprintf(out, "Ask the customer for the last 6 characters of order %s\n", prompt.Masked())
	for prompt.Open() {
		code, err := readLine(in, out, "Verification code: ")
		if err != nil {
			prompt.Cancel()
			if errors.Is(err, io.EOF) {
				return errDeliveryCancelled
			}
			return err
		}

		err = prompt.Submit(ctx, code)
		switch {
		case err == nil:
		case errors.Is(err, validation.ErrCodeMismatch), errors.Is(err, validation.ErrEmptyCode):
			fmt.Fprintf(out, "%s %s\n", failMark, prompt.Message())
		default:
			return err
		}
	}

	fmt.Fprintf(out, "%s Order %s delivered\n", okMark, o.DisplayID())
	return nil
}
