package cli

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/mmeshcher/courier-agent/internal/backend"
	"github.com/mmeshcher/courier-agent/internal/config"
	"github.com/mmeshcher/courier-agent/internal/metrics"
	"github.com/mmeshcher/courier-agent/internal/repository"
	"github.com/mmeshcher/courier-agent/internal/service"
	"github.com/mmeshcher/courier-agent/internal/session"
	"github.com/mmeshcher/courier-agent/internal/verification"
)

// app связывает компоненты клиента: хранилище, бэкенд, сессию и менеджер заказов.
// Создаётся один раз на запуск и передаётся командам явно.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	store    repository.KV
	client   *backend.Client
	session  *session.Store
	orders   *service.OrderManager
	earnings *service.Earnings
	gate     *verification.Gate

	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	store, err := repository.Open(ctx, cfg.SessionStore)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	client := backend.NewClient(cfg.BackendAddress, cfg.RequestTimeout, cfg.RequestRetries, logger)
	sess := session.NewStore(store, client, logger)
	client.SetTokenSource(sess)
	sess.Restore(ctx)

	orders := service.NewOrderManager(client, sess, logger,
		service.WithReconcileDelay(cfg.ReconcileDelay),
		service.WithSampleFallback(cfg.SampleFallback),
		service.WithMetrics(m),
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		client:   client,
		session:  sess,
		orders:   orders,
		earnings: service.NewEarnings(client, logger),
		gate:     verification.NewGate(orders, logger),
		registry: registry,
		metrics:  m,
	}, nil
}

// Close останавливает отложенные обновления и закрывает хранилище сессии.
func (a *app) Close() {
	a.orders.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close session store error", zap.Error(err))
	}
	_ = a.logger.Sync()
}
