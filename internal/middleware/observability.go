package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/mmeshcher/courier-agent/internal/metrics"
)

// Observability считает запросы и их длительность по шаблону маршрута.
func Observability(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := routePattern(r) // шаблон вместо пути, чтобы не плодить метки
			code := strconv.Itoa(ww.Status())

			m.HTTPRequests.WithLabelValues(r.Method, route, code).Inc()
			m.HTTPDuration.WithLabelValues(r.Method, route, code).Observe(time.Since(start).Seconds())
		})
	}
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
