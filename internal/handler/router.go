package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	custommiddleware "github.com/mmeshcher/courier-agent/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware локального API.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))
	if h.opts.Metrics != nil {
		r.Use(custommiddleware.Observability(h.opts.Metrics))
	}

	metricsHandler := h.opts.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	requireSession := custommiddleware.RequireSession(h.session)

	r.Route("/api", func(r chi.Router) {
		r.Route("/session", func(r chi.Router) {
			r.Post("/login", h.Login)
			r.Post("/logout", h.Logout)
			r.Get("/", h.GetSession)
			r.With(requireSession).Put("/location", h.UpdateLocation)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireSession)

			r.Route("/orders", func(r chi.Router) {
				r.Get("/open", h.GetOpenOrders)
				r.Get("/mine", h.GetMyOrders)
				r.Get("/nearby", h.GetNearbyOrders)
				r.Delete("/active", h.ClearActiveOrder)

				r.Get("/{id}", h.GetOrder)
				r.Post("/{id}/accept", h.AcceptOrder)
				r.Get("/{id}/verification", h.GetVerification)
				r.Post("/{id}/status", h.UpdateStatus)
			})

			r.Get("/earnings", h.GetEarnings)
			r.Get("/earnings/current", h.GetCurrentEarnings)
			r.Get("/events", h.Events)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
