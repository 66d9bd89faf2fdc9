package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mmeshcher/courier-agent/internal/config"
	"github.com/mmeshcher/courier-agent/internal/service"
	"github.com/mmeshcher/courier-agent/internal/session"
)

var errLoginFailed = errors.New("login failed, check the partner id and password")

func loginCmd(cfg *config.Config) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "login <identifier>",
		Short: "Sign in as a delivery partner",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(cfg, false, func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			out := cmd.OutOrStdout()

			if password == "" {
				in := bufio.NewReader(cmd.InOrStdin())
				p, err := readLine(in, out, "Password: ")
				if err != nil {
					return fmt.Errorf("read password: %w", err)
				}
				password = p
			}

			if !a.session.Login(ctx, args[0], password) {
				return errLoginFailed
			}

			c, _ := a.session.Courier()
			fmt.Fprintf(out, "%s Logged in as %s (id %s)\n", okMark, c.Name, c.ID)

			mine := a.orders.RefreshMyOrders(ctx, service.RefreshInitial)
			fmt.Fprintf(out, "  %d order(s) assigned to you\n", len(mine))
			return nil
		}),
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when omitted)")
	return cmd
}

func logoutCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored session",
		Args:  cobra.NoArgs,
		RunE: withApp(cfg, false, func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			a.session.Logout(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "%s Logged out\n", okMark)
			return nil
		}),
	}
}

func whoamiCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in delivery partner",
		Args:  cobra.NoArgs,
		RunE: withApp(cfg, true, func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			c, _ := a.session.Courier()
			printCourier(cmd.OutOrStdout(), c)
			return nil
		}),
	}
}

func locationCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "location <latitude> <longitude>",
		Short: "Report the current location",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(cfg, true, func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			lat, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("parse latitude: %w", err)
			}
			lon, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("parse longitude: %w", err)
			}

			out := cmd.OutOrStdout()
			err = a.session.UpdateLocation(ctx, lat, lon)
			switch {
			case errors.Is(err, session.ErrInvalidLocation):
				return err
			case err != nil:
				fmt.Fprintf(out, "%s Location saved locally, backend update failed: %v\n", warnMark, err)
			default:
				fmt.Fprintf(out, "%s Location updated\n", okMark)
			}
			return nil
		}),
	}
}
