package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mmeshcher/courier-agent/internal/config"
	"github.com/mmeshcher/courier-agent/internal/model"
)

func earningsCmd(cfg *config.Config) *cobra.Command {
	var (
		month   string
		year    int
		current bool
	)

	cmd := &cobra.Command{
		Use:   "earnings",
		Short: "Show earnings, optionally for one month",
		Args:  cobra.NoArgs,
		RunE: withApp(cfg, true, func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			if current {
				e, err := a.earnings.CurrentMonth(ctx)
				if err != nil {
					return err
				}
				printEarnings(cmd.OutOrStdout(), []model.Earnings{e})
				return nil
			}

			list, err := a.earnings.List(ctx, month, year)
			if err != nil {
				return err
			}
			printEarnings(cmd.OutOrStdout(), list)
			return nil
		}),
	}

	cmd.Flags().StringVar(&month, "month", "", "month name, e.g. March")
	cmd.Flags().IntVar(&year, "year", 0, "year, e.g. 2026")
	cmd.Flags().BoolVar(&current, "current", false, "only the current month")
	cmd.MarkFlagsMutuallyExclusive("current", "month")
	cmd.MarkFlagsMutuallyExclusive("current", "year")
	return cmd
}
