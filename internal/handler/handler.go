// Package handler содержит HTTP-обработчики локального API агента курьера.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/courier-agent/internal/backend"
	"github.com/mmeshcher/courier-agent/internal/metrics"
	"github.com/mmeshcher/courier-agent/internal/middleware"
	"github.com/mmeshcher/courier-agent/internal/model"
	"github.com/mmeshcher/courier-agent/internal/service"
	"github.com/mmeshcher/courier-agent/internal/session"
	"github.com/mmeshcher/courier-agent/internal/validation"
	"github.com/mmeshcher/courier-agent/internal/verification"
)

// Session определяет контракт сессии курьера, используемый обработчиками.
type Session interface {
	middleware.SessionSource
	Login(ctx context.Context, identifier, password string) bool
	Logout(ctx context.Context)
	IsAuthenticated() bool
	UpdateLocation(ctx context.Context, lat, lon float64) error
}

// Orders определяет контракт менеджера заказов, используемый обработчиками.
type Orders interface {
	verification.StatusUpdater
	RefreshOpenOrders(ctx context.Context, mode service.RefreshMode) []model.Order
	RefreshMyOrders(ctx context.Context, mode service.RefreshMode) []model.Order
	OpenOrders() []model.Order
	MyOrders() []model.Order
	NearbyOrders(radiusKm float64) ([]model.Order, error)
	Find(orderID string) (model.Order, bool)
	SetActiveOrder(orderID string) (model.Order, error)
	ClearActiveOrder()
	AcceptOrder(ctx context.Context, orderID string, override *model.Courier, source model.Source) error
	Snapshot() service.Snapshot
	Subscribe() (<-chan service.Snapshot, func())
}

// Earnings определяет контракт сервиса начислений.
type Earnings interface {
	List(ctx context.Context, month string, year int) ([]model.Earnings, error)
	CurrentMonth(ctx context.Context) (model.Earnings, error)
}

// Options задаёт необязательные параметры обработчика.
type Options struct {
	NearbyRadiusKm float64
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
}

// Handler реализует HTTP-обработчики локального API.
type Handler struct {
	session  Session
	orders   Orders
	earnings Earnings
	gate     *verification.Gate
	logger   *zap.Logger
	opts     Options
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Session, orders Orders, earnings Earnings, logger *zap.Logger, opts Options) *Handler {
	if opts.NearbyRadiusKm <= 0 {
		opts.NearbyRadiusKm = 5
	}
	return &Handler{
		session:  s,
		orders:   orders,
		earnings: earnings,
		gate:     verification.NewGate(orders, logger),
		logger:   logger,
		opts:     opts,
	}
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type sessionResponse struct {
	Authenticated bool           `json:"authenticated"`
	Courier       *model.Courier `json:"courier,omitempty"`
}

// Login выполняет вход курьера и запускает первичную загрузку заказов.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if strings.TrimSpace(req.Identifier) == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !h.session.Login(r.Context(), req.Identifier, req.Password) {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	go func() {
		h.orders.RefreshOpenOrders(ctx, service.RefreshInitial)
		h.orders.RefreshMyOrders(ctx, service.RefreshInitial)
	}()

	h.GetSession(w, r)
}

// Logout завершает сессию курьера.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.session.Logout(r.Context())
	h.orders.ClearActiveOrder()
	w.WriteHeader(http.StatusOK)
}

// GetSession возвращает состояние сессии.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	resp := sessionResponse{Authenticated: h.session.IsAuthenticated()}
	if c, ok := h.session.Courier(); ok && resp.Authenticated {
		resp.Courier = &c
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type locationResponse struct {
	Courier model.Courier `json:"courier"`
	Error   string        `json:"error,omitempty"`
}

// UpdateLocation сохраняет координаты курьера. Если бэкенд недоступен,
// координаты остаются сохранёнными локально и возвращается 202.
func (h *Handler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	var req model.Location
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	err := h.session.UpdateLocation(r.Context(), req.Latitude, req.Longitude)
	if errors.Is(err, session.ErrInvalidLocation) || errors.Is(err, session.ErrNotAuthenticated) {
		h.writeError(w, err)
		return
	}

	c, _ := h.session.Courier()
	if err != nil {
		h.writeJSON(w, http.StatusAccepted, locationResponse{Courier: c, Error: err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, locationResponse{Courier: c})
}

func wantsRefresh(r *http.Request) bool {
	v := r.URL.Query().Get("refresh")
	ok, _ := strconv.ParseBool(v)
	return ok
}

// GetOpenOrders возвращает открытые заказы; с refresh=1 список обновляется с бэкенда.
func (h *Handler) GetOpenOrders(w http.ResponseWriter, r *http.Request) {
	var orders []model.Order
	if wantsRefresh(r) {
		orders = h.orders.RefreshOpenOrders(r.Context(), service.RefreshPull)
	} else {
		orders = h.orders.OpenOrders()
	}
	h.writeJSON(w, http.StatusOK, orders)
}

// GetMyOrders возвращает заказы курьера; с refresh=1 список обновляется с бэкенда.
func (h *Handler) GetMyOrders(w http.ResponseWriter, r *http.Request) {
	var orders []model.Order
	if wantsRefresh(r) {
		orders = h.orders.RefreshMyOrders(r.Context(), service.RefreshPull)
	} else {
		orders = h.orders.MyOrders()
	}
	h.writeJSON(w, http.StatusOK, orders)
}

// GetNearbyOrders возвращает открытые заказы в радиусе от курьера.
func (h *Handler) GetNearbyOrders(w http.ResponseWriter, r *http.Request) {
	radius := h.opts.NearbyRadiusKm
	if v := r.URL.Query().Get("radius"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed <= 0 {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		radius = parsed
	}

	orders, err := h.orders.NearbyOrders(radius)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, orders)
}

// GetOrder возвращает заказ и делает его текущим.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.SetActiveOrder(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, o)
}

// ClearActiveOrder сбрасывает текущий заказ.
func (h *Handler) ClearActiveOrder(w http.ResponseWriter, r *http.Request) {
	h.orders.ClearActiveOrder()
	w.WriteHeader(http.StatusNoContent)
}

type acceptRequest struct {
	Source model.Source `json:"source"`
}

// AcceptOrder назначает заказ на текущего курьера.
func (h *Handler) AcceptOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req acceptRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
	}

	var override *model.Courier
	if c, ok := middleware.CourierFromContext(r.Context()); ok {
		override = &c
	}

	if err := h.orders.AcceptOrder(r.Context(), id, override, req.Source); err != nil {
		h.writeError(w, err)
		return
	}

	o, _ := h.orders.Find(id)
	h.writeJSON(w, http.StatusOK, o)
}

type verificationResponse struct {
	OrderID  string            `json:"orderId"`
	Target   model.OrderStatus `json:"target"`
	Required bool              `json:"required"`
	Masked   string            `json:"masked,omitempty"`
}

// GetVerification сообщает, нужен ли код получателя для перехода заказа в статус.
// По умолчанию проверяется переход в DELIVERED.
func (h *Handler) GetVerification(w http.ResponseWriter, r *http.Request) {
	o, ok := h.orders.Find(chi.URLParam(r, "id"))
	if !ok {
		h.writeError(w, service.ErrOrderNotFound)
		return
	}

	target := model.StatusDelivered
	if v := r.URL.Query().Get("status"); v != "" {
		target = model.ParseStatus(v)
	}

	resp := verificationResponse{OrderID: o.ID, Target: target, Required: verification.RequiresCode(o, target)}
	if resp.Required {
		resp.Masked = validation.MaskDisplayID(o.DisplayID())
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type statusRequest struct {
	Status string       `json:"status"`
	Source model.Source `json:"source"`
	Code   string       `json:"code"`
}

type statusErrorResponse struct {
	Error  string `json:"error"`
	Masked string `json:"masked,omitempty"`
}

// UpdateStatus меняет статус заказа через шлюз подтверждения.
// Без статуса в запросе заказ переводится в следующий статус цепочки.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	// Код получателя проверяется только по загруженной записи заказа.
	o, found := h.orders.Find(id)
	if !found {
		h.orders.RefreshMyOrders(r.Context(), service.RefreshPull)
		o, found = h.orders.Find(id)
	}
	if !found {
		h.writeError(w, fmt.Errorf("order %s: %w", id, service.ErrOrderNotFound))
		return
	}
	if req.Source != "" && req.Source != o.Source {
		h.writeError(w, fmt.Errorf("order %s is a %s order: %w", id, o.Source, service.ErrInvalidSource))
		return
	}

	target := model.ParseStatus(req.Status)
	if req.Status == "" {
		next, ok := o.Status.Next()
		if !ok {
			h.writeError(w, service.ErrTerminalStatus)
			return
		}
		target = next
	}
	if !target.Valid() {
		h.writeError(w, service.ErrInvalidStatus)
		return
	}

	prompt := h.gate.Begin(o, target)

	var err error
	if prompt.Kind() == verification.KindCode {
		err = prompt.Submit(r.Context(), req.Code)
	} else {
		err = prompt.Confirm(r.Context())
	}

	if errors.Is(err, validation.ErrCodeMismatch) || errors.Is(err, validation.ErrEmptyCode) {
		h.writeJSON(w, http.StatusUnprocessableEntity, statusErrorResponse{Error: prompt.Message(), Masked: prompt.Masked()})
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}

	updated, _ := h.orders.Find(id)
	h.writeJSON(w, http.StatusOK, updated)
}

// GetEarnings возвращает начисления, опционально за месяц и год.
func (h *Handler) GetEarnings(w http.ResponseWriter, r *http.Request) {
	month := r.URL.Query().Get("month")

	year := 0
	if v := r.URL.Query().Get("year"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		year = parsed
	}

	list, err := h.earnings.List(r.Context(), month, year)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

// GetCurrentEarnings возвращает начисления за текущий месяц.
func (h *Handler) GetCurrentEarnings(w http.ResponseWriter, r *http.Request) {
	e, err := h.earnings.CurrentMonth(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, e)
}

// Events передаёт снимки состояния заказов в формате server-sent events.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, http.StatusText(http.StatusNotImplemented), http.StatusNotImplemented)
		return
	}

	events, cancel := h.orders.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	send := func(s service.Snapshot) bool {
		data, err := json.Marshal(s)
		if err != nil {
			h.logger.Error("encode snapshot error", zap.Error(err))
			return false
		}
		if _, err := w.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !send(h.orders.Snapshot()) {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case s, ok := <-events:
			if !ok || !send(s) {
				return
			}
		}
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

// writeError отображает ошибку в HTTP-статус.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var apiErr *backend.APIError

	switch {
	case errors.Is(err, session.ErrNotAuthenticated),
		errors.Is(err, session.ErrSessionExpired),
		errors.Is(err, service.ErrCourierRequired),
		errors.Is(err, backend.ErrUnauthorized):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, service.ErrOrderNotFound),
		errors.Is(err, service.ErrNoEarnings):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrTerminalStatus):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrInvalidSource),
		errors.Is(err, service.ErrLocationUnknown),
		errors.Is(err, session.ErrInvalidLocation),
		errors.Is(err, verification.ErrWrongPromptKind),
		errors.Is(err, verification.ErrPromptClosed):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.As(err, &apiErr):
		h.logger.Warn("backend rejected request", zap.Int("backend_status", apiErr.StatusCode), zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		h.logger.Error("request error", zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadGateway)
	}
}
