package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/courier-agent/internal/config"
	"github.com/mmeshcher/courier-agent/internal/handler"
	"github.com/mmeshcher/courier-agent/internal/service"
)

const shutdownTimeout = 5 * time.Second

func serveCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the local HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cfg.LogLevel, false)
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				logger.Error("startup error", zap.Error(err))
				_ = logger.Sync()
				return err
			}
			defer a.Close()

			return serve(ctx, a)
		},
	}
}

// serve запускает HTTP-сервер и фоновое обновление заказов до отмены контекста.
func serve(ctx context.Context, a *app) error {
	sugar := a.logger.Sugar()

	h := handler.NewHandler(a.session, a.orders, a.earnings, a.logger, handler.Options{
		NearbyRadiusKm: a.cfg.NearbyRadiusKm,
		Metrics:        a.metrics,
		MetricsHandler: promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
	})

	server := &http.Server{
		Addr:              a.cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Первичная загрузка заказов восстановленной сессии и периодическое обновление
	g.Go(func() error {
		if a.session.IsAuthenticated() {
			a.orders.RefreshOpenOrders(ctx, service.RefreshInitial)
			a.orders.RefreshMyOrders(ctx, service.RefreshInitial)
		}
		a.orders.StartAutoRefresh(ctx, a.cfg.RefreshInterval)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting courier agent", "addr", a.cfg.RunAddress, "backend", a.cfg.BackendAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	return g.Wait()
}
