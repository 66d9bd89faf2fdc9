// Package metrics описывает метрики Prometheus агента курьера.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics объединяет коллекторы агента.
type Metrics struct {
	SourceFailures  *prometheus.CounterVec
	SampleFallbacks prometheus.Counter
	OrderActions    *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
}

// New создаёт коллекторы и регистрирует их в reg. При nil регистрация пропускается.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SourceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_source_fetch_failures_total",
			Help: "Total number of failed order list fetches per source",
		}, []string{"scope", "source"}),
		SampleFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "courier_sample_fallback_total",
			Help: "Total number of times sample open orders replaced unreachable sources",
		}),
		OrderActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_order_actions_total",
			Help: "Total number of order accept and status update attempts",
		}, []string{"action", "result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "code"}),
	}

	if reg != nil {
		reg.MustRegister(m.SourceFailures, m.SampleFallbacks, m.OrderActions, m.HTTPRequests, m.HTTPDuration)
	}
	return m
}

// SourceFailed отмечает неудачную загрузку списка из источника.
func (m *Metrics) SourceFailed(scope, source string) {
	if m == nil {
		return
	}
	m.SourceFailures.WithLabelValues(scope, source).Inc()
}

// SampleFallback отмечает подстановку демонстрационных заказов.
func (m *Metrics) SampleFallback() {
	if m == nil {
		return
	}
	m.SampleFallbacks.Inc()
}

// OrderAction отмечает результат действия над заказом.
func (m *Metrics) OrderAction(action string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.OrderActions.WithLabelValues(action, result).Inc()
}
