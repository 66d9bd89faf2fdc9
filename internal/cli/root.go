// Package cli содержит команды командной строки агента курьера.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mmeshcher/courier-agent/internal/config"
)

var errNotLoggedIn = errors.New("not logged in, run `courier-agent login` first")

// NewRootCmd создаёт корневую команду courier-agent со всеми подкомандами.
func NewRootCmd() *cobra.Command {
	cfg := config.Default()

	root := &cobra.Command{
		Use:   "courier-agent",
		Short: "Courier client for medicine delivery orders",
		Long: `courier-agent signs a delivery partner in, lists open and assigned orders
from the stockist and direct sources, accepts orders and moves them through
pickup and delivery. "serve" exposes the same operations as a local HTTP API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cfg.LoadEnv()
		},
	}
	cfg.BindFlags(root.PersistentFlags())

	root.AddCommand(serveCmd(cfg))

	// Сессия
	root.AddCommand(loginCmd(cfg))
	root.AddCommand(logoutCmd(cfg))
	root.AddCommand(whoamiCmd(cfg))
	root.AddCommand(locationCmd(cfg))

	// Заказы
	root.AddCommand(ordersCmd(cfg))
	root.AddCommand(mineCmd(cfg))
	root.AddCommand(acceptCmd(cfg))
	root.AddCommand(advanceCmd(cfg))
	root.AddCommand(deliverCmd(cfg))

	root.AddCommand(earningsCmd(cfg))

	return root
}

type runFunc func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error

// withApp собирает зависимости для одной команды и освобождает их после выполнения.
func withApp(cfg *config.Config, requireSession bool, run runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger(cfg.LogLevel, true)
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}

		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			_ = logger.Sync()
			return err
		}
		defer a.Close()

		if requireSession && !a.session.IsAuthenticated() {
			return errNotLoggedIn
		}
		return run(ctx, cmd, a, args)
	}
}

// newLogger создаёт логгер с указанным уровнем. Для интерактивных команд
// уровень info поднимается до warn, чтобы не смешивать журнал с выводом.
func newLogger(level string, quiet bool) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}

	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	if quiet && lvl.Level() < zap.WarnLevel {
		lvl.SetLevel(zap.WarnLevel)
	}

	zc := zap.NewProductionConfig()
	zc.Level = lvl
	return zc.Build()
}
