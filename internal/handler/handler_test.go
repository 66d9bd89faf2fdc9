package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/courier-agent/internal/backend"
	"github.com/mmeshcher/courier-agent/internal/metrics"
	"github.com/mmeshcher/courier-agent/internal/model"
	"github.com/mmeshcher/courier-agent/internal/service"
	"github.com/mmeshcher/courier-agent/internal/session"
)

type stubSession struct {
	mu          sync.Mutex
	courier     *model.Courier
	tokenErr    error
	loginOK     bool
	locationErr error
}

func (s *stubSession) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokenErr != nil {
		return "", s.tokenErr
	}
	if s.courier == nil {
		return "", session.ErrNotAuthenticated
	}
	return "token", nil
}

func (s *stubSession) Courier() (model.Courier, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.courier == nil {
		return model.Courier{}, false
	}
	return *s.courier, true
}

func (s *stubSession) Login(ctx context.Context, identifier, password string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loginOK {
		s.courier = &model.Courier{ID: "7", Name: "Ravi"}
	}
	return s.loginOK
}

func (s *stubSession) Logout(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.courier = nil
}

func (s *stubSession) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.courier != nil
}

func (s *stubSession) UpdateLocation(ctx context.Context, lat, lon float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lat > 90 || lat < -90 {
		return session.ErrInvalidLocation
	}
	s.courier.Location = &model.Location{Latitude: lat, Longitude: lon}
	return s.locationErr
}

type statusCall struct {
	orderID string
	status  model.OrderStatus
	source  model.Source
}

type stubOrders struct {
	mu sync.Mutex

	open   []model.Order
	mine   []model.Order
	active *model.Order

	refreshOpen int
	refreshMine int

	acceptErr   error
	acceptedBy  *model.Courier
	statusErr   error
	statusCalls []statusCall
	nearbyErr   error
}

func (s *stubOrders) RefreshOpenOrders(ctx context.Context, mode service.RefreshMode) []model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshOpen++
	return s.open
}

func (s *stubOrders) RefreshMyOrders(ctx context.Context, mode service.RefreshMode) []model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshMine++
	return s.mine
}

func (s *stubOrders) OpenOrders() []model.Order { return s.open }

func (s *stubOrders) MyOrders() []model.Order { return s.mine }

func (s *stubOrders) NearbyOrders(radiusKm float64) ([]model.Order, error) {
	if s.nearbyErr != nil {
		return nil, s.nearbyErr
	}
	var out []model.Order
	for _, o := range s.open {
		d := radiusKm / 2
		o.DistanceKm = &d
		out = append(out, o)
	}
	return out, nil
}

func (s *stubOrders) Find(orderID string) (model.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, list := range [][]model.Order{s.mine, s.open} {
		for _, o := range list {
			if o.ID == orderID {
				return o, true
			}
		}
	}
	return model.Order{}, false
}

func (s *stubOrders) SetActiveOrder(orderID string) (model.Order, error) {
	o, ok := s.Find(orderID)
	if !ok {
		return model.Order{}, service.ErrOrderNotFound
	}
	s.active = &o
	return o, nil
}

func (s *stubOrders) ClearActiveOrder() { s.active = nil }

func (s *stubOrders) AcceptOrder(ctx context.Context, orderID string, override *model.Courier, source model.Source) error {
	s.acceptedBy = override
	if s.acceptErr != nil {
		return fmt.Errorf("accept order %s: %w", orderID, s.acceptErr)
	}
	return nil
}

func (s *stubOrders) UpdateOrderStatus(ctx context.Context, orderID string, status model.OrderStatus, source model.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusCalls = append(s.statusCalls, statusCall{orderID, status, source})
	if s.statusErr != nil {
		return s.statusErr
	}
	for i := range s.mine {
		if s.mine[i].ID == orderID {
			s.mine[i].Status = status
		}
	}
	return nil
}

func (s *stubOrders) Snapshot() service.Snapshot {
	return service.Snapshot{Open: s.open, Mine: s.mine}
}

func (s *stubOrders) Subscribe() (<-chan service.Snapshot, func()) {
	ch := make(chan service.Snapshot)
	return ch, func() {}
}

type stubEarnings struct {
	list    []model.Earnings
	current *model.Earnings
	err     error
}

func (s *stubEarnings) List(ctx context.Context, month string, year int) ([]model.Earnings, error) {
	return s.list, s.err
}

func (s *stubEarnings) CurrentMonth(ctx context.Context) (model.Earnings, error) {
	if s.current == nil {
		return model.Earnings{}, service.ErrNoEarnings
	}
	return *s.current, nil
}

var directOrder = model.Order{ID: "17", Number: "ABC123456789", Source: model.SourceDirect, Status: model.StatusPickedUp}

func newTestHandler(t *testing.T, sess *stubSession, orders *stubOrders, earnings *stubEarnings) http.Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	reg := prometheus.NewRegistry()
	h := NewHandler(sess, orders, earnings, logger, Options{
		NearbyRadiusKm: 5,
		Metrics:        metrics.New(reg),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	return h.SetupRouter()
}

func loggedIn() *stubSession {
	return &stubSession{courier: &model.Courier{ID: "7", Name: "Ravi"}}
}

func doRequest(t *testing.T, h http.Handler, method, target string, body any) *http.Response {
	t.Helper()

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Result()
}

func decode[T any](t *testing.T, res *http.Response) T {
	t.Helper()
	defer res.Body.Close()

	var v T
	require.NoError(t, json.NewDecoder(res.Body).Decode(&v))
	return v
}

func TestLogin_Success(t *testing.T) {
	orders := &stubOrders{}
	h := newTestHandler(t, &stubSession{loginOK: true}, orders, &stubEarnings{})

	res := doRequest(t, h, http.MethodPost, "/api/session/login", loginRequest{Identifier: "DP009", Password: "secret"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	got := decode[sessionResponse](t, res)
	assert.True(t, got.Authenticated)
	require.NotNil(t, got.Courier)
	assert.Equal(t, "7", got.Courier.ID)

	assert.Eventually(t, func() bool {
		orders.mu.Lock()
		defer orders.mu.Unlock()
		return orders.refreshOpen == 1 && orders.refreshMine == 1
	}, time.Second, 5*time.Millisecond)
}

func TestLogin_Rejected(t *testing.T) {
	h := newTestHandler(t, &stubSession{}, &stubOrders{}, &stubEarnings{})

	res := doRequest(t, h, http.MethodPost, "/api/session/login", loginRequest{Identifier: "DP009", Password: "wrong"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}

	res = doRequest(t, h, http.MethodPost, "/api/session/login", loginRequest{Identifier: " "})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	h := newTestHandler(t, &stubSession{tokenErr: session.ErrSessionExpired}, &stubOrders{}, &stubEarnings{})

	for _, target := range []string{"/api/orders/open", "/api/orders/mine", "/api/earnings"} {
		res := doRequest(t, h, http.MethodGet, target, nil)
		res.Body.Close()
		if res.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s: status = %d, want %d", target, res.StatusCode, http.StatusUnauthorized)
		}
	}

	res := doRequest(t, h, http.MethodGet, "/api/session", nil)
	got := decode[sessionResponse](t, res)
	assert.False(t, got.Authenticated)
}

func TestGetOpenOrders_Refresh(t *testing.T) {
	orders := &stubOrders{open: []model.Order{{ID: "s1"}, {ID: "d1"}}}
	h := newTestHandler(t, loggedIn(), orders, &stubEarnings{})

	res := doRequest(t, h, http.MethodGet, "/api/orders/open", nil)
	assert.Len(t, decode[[]model.Order](t, res), 2)
	assert.Zero(t, orders.refreshOpen)

	res = doRequest(t, h, http.MethodGet, "/api/orders/open?refresh=1", nil)
	assert.Len(t, decode[[]model.Order](t, res), 2)
	assert.Equal(t, 1, orders.refreshOpen)
}

func TestGetNearbyOrders(t *testing.T) {
	orders := &stubOrders{open: []model.Order{{ID: "s1"}}}
	h := newTestHandler(t, loggedIn(), orders, &stubEarnings{})

	got := decode[[]model.Order](t, doRequest(t, h, http.MethodGet, "/api/orders/nearby?radius=8", nil))
	require.Len(t, got, 1)
	assert.Equal(t, 4.0, *got[0].DistanceKm)

	res := doRequest(t, h, http.MethodGet, "/api/orders/nearby?radius=abc", nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	orders.nearbyErr = service.ErrLocationUnknown
	res = doRequest(t, h, http.MethodGet, "/api/orders/nearby", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
}

func TestGetOrderSetsActive(t *testing.T) {
	orders := &stubOrders{open: []model.Order{directOrder}}
	h := newTestHandler(t, loggedIn(), orders, &stubEarnings{})

	res := doRequest(t, h, http.MethodGet, "/api/orders/17", nil)
	assert.Equal(t, "17", decode[model.Order](t, res).ID)
	require.NotNil(t, orders.active)

	res = doRequest(t, h, http.MethodGet, "/api/orders/404", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res = doRequest(t, h, http.MethodDelete, "/api/orders/active", nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.Nil(t, orders.active)
}

func TestAcceptOrder(t *testing.T) {
	orders := &stubOrders{open: []model.Order{{ID: "s1", Source: model.SourceStockist}}}
	h := newTestHandler(t, loggedIn(), orders, &stubEarnings{})

	res := doRequest(t, h, http.MethodPost, "/api/orders/s1/accept", acceptRequest{Source: model.SourceStockist})
	assert.Equal(t, http.StatusOK, res.StatusCode)
	require.NotNil(t, orders.acceptedBy)
	assert.Equal(t, "7", orders.acceptedBy.ID)

	orders.acceptErr = &backend.APIError{StatusCode: http.StatusConflict, Message: "Order already assigned"}
	res = doRequest(t, h, http.MethodPost, "/api/orders/s1/accept", acceptRequest{Source: model.SourceStockist})
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	assert.Equal(t, http.StatusBadGateway, res.StatusCode)
	assert.Contains(t, string(body), "Order already assigned")
}

func TestVerificationEndpoint(t *testing.T) {
	orders := &stubOrders{mine: []model.Order{directOrder}}
	h := newTestHandler(t, loggedIn(), orders, &stubEarnings{})

	got := decode[verificationResponse](t, doRequest(t, h, http.MethodGet, "/api/orders/17/verification", nil))
	assert.True(t, got.Required)
	assert.Equal(t, "ABC123******", got.Masked)

	got = decode[verificationResponse](t, doRequest(t, h, http.MethodGet, "/api/orders/17/verification?status=picked_up", nil))
	assert.False(t, got.Required)
	assert.Empty(t, got.Masked)
}

func TestUpdateStatus_DeliveryCode(t *testing.T) {
	orders := &stubOrders{mine: []model.Order{directOrder}}
	h := newTestHandler(t, loggedIn(), orders, &stubEarnings{})

	res := doRequest(t, h, http.MethodPost, "/api/orders/17/status", statusRequest{Status: "DELIVERED", Code: "456788"})
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnprocessableEntity)
	}
	wrong := decode[statusErrorResponse](t, res)
	assert.Contains(t, wrong.Error, "invalid verification code")
	assert.Equal(t, "ABC123******", wrong.Masked)
	assert.Empty(t, orders.statusCalls)

	res = doRequest(t, h, http.MethodPost, "/api/orders/17/status", statusRequest{Status: "delivered", Code: "456789"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	assert.Equal(t, model.StatusDelivered, decode[model.Order](t, res).Status)
	assert.Equal(t, []statusCall{{"17", model.StatusDelivered, model.SourceDirect}}, orders.statusCalls)
}

func TestUpdateStatus_ConfirmAndNext(t *testing.T) {
	stockist := model.Order{ID: "s1", Source: model.SourceStockist, Status: model.StatusAssigned}
	orders := &stubOrders{mine: []model.Order{stockist}}
	h := newTestHandler(t, loggedIn(), orders, &stubEarnings{})

	res := doRequest(t, h, http.MethodPost, "/api/orders/s1/status", statusRequest{})
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, []statusCall{{"s1", model.StatusPickedUp, model.SourceStockist}}, orders.statusCalls)

	res = doRequest(t, h, http.MethodPost, "/api/orders/s1/status", statusRequest{Status: "DELIVERED"})
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res = doRequest(t, h, http.MethodPost, "/api/orders/s1/status", statusRequest{})
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	res = doRequest(t, h, http.MethodPost, "/api/orders/s1/status", statusRequest{Status: "teleported"})
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)

	res = doRequest(t, h, http.MethodPost, "/api/orders/ghost/status", statusRequest{Status: "DELIVERED"})
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestUpdateStatus_ErrorMapping(t *testing.T) {
	orders := &stubOrders{
		mine:      []model.Order{{ID: "s1", Source: model.SourceStockist, Status: model.StatusAssigned}},
		statusErr: fmt.Errorf("update order s1: %w", service.ErrTerminalStatus),
	}
	h := newTestHandler(t, loggedIn(), orders, &stubEarnings{})

	res := doRequest(t, h, http.MethodPost, "/api/orders/s1/status", statusRequest{Status: "PICKED_UP"})
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	orders.statusErr = errors.New("update order s1 to PICKED_UP: context deadline exceeded")
	res = doRequest(t, h, http.MethodPost, "/api/orders/s1/status", statusRequest{Status: "PICKED_UP"})
	assert.Equal(t, http.StatusBadGateway, res.StatusCode)
}

func TestUpdateStatus_SourceMismatchKeepsCodeCheck(t *testing.T) {
	orders := &stubOrders{mine: []model.Order{directOrder}}
	h := newTestHandler(t, loggedIn(), orders, &stubEarnings{})

	res := doRequest(t, h, http.MethodPost, "/api/orders/17/status",
		statusRequest{Status: "DELIVERED", Source: model.SourceStockist})
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnprocessableEntity)
	}
	assert.Empty(t, orders.statusCalls)

	res = doRequest(t, h, http.MethodPost, "/api/orders/17/status",
		statusRequest{Status: "DELIVERED", Source: model.SourceDirect, Code: "456789"})
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, []statusCall{{"17", model.StatusDelivered, model.SourceDirect}}, orders.statusCalls)
}

func TestUpdateStatus_UnknownOrderIsNotSynthesized(t *testing.T) {
	orders := &stubOrders{}
	h := newTestHandler(t, loggedIn(), orders, &stubEarnings{})

	res := doRequest(t, h, http.MethodPost, "/api/orders/900123456/status",
		statusRequest{Status: "DELIVERED", Source: model.SourceDirect, Code: "123456"})
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
	assert.Empty(t, orders.statusCalls)

	orders.mu.Lock()
	defer orders.mu.Unlock()
	assert.Equal(t, 1, orders.refreshMine)
}

func TestUpdateLocation(t *testing.T) {
	sess := loggedIn()
	h := newTestHandler(t, sess, &stubOrders{}, &stubEarnings{})

	res := doRequest(t, h, http.MethodPut, "/api/session/location", model.Location{Latitude: 18.52, Longitude: 73.85})
	assert.Equal(t, http.StatusOK, res.StatusCode)

	sess.locationErr = errors.New("report location: backend unavailable")
	res = doRequest(t, h, http.MethodPut, "/api/session/location", model.Location{Latitude: 18.6, Longitude: 73.9})
	assert.Equal(t, http.StatusAccepted, res.StatusCode)
	got := decode[locationResponse](t, res)
	assert.Contains(t, got.Error, "backend unavailable")
	require.NotNil(t, got.Courier.Location)
	assert.Equal(t, 18.6, got.Courier.Location.Latitude)

	res = doRequest(t, h, http.MethodPut, "/api/session/location", model.Location{Latitude: 120})
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
}

func TestEarnings(t *testing.T) {
	earnings := &stubEarnings{list: []model.Earnings{{ID: "1", Month: "March", Year: 2026}}}
	h := newTestHandler(t, loggedIn(), &stubOrders{}, earnings)

	got := decode[[]model.Earnings](t, doRequest(t, h, http.MethodGet, "/api/earnings?month=March&year=2026", nil))
	assert.Len(t, got, 1)

	res := doRequest(t, h, http.MethodGet, "/api/earnings?year=twenty", nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = doRequest(t, h, http.MethodGet, "/api/earnings/current", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	earnings.current = &earnings.list[0]
	res = doRequest(t, h, http.MethodGet, "/api/earnings/current", nil)
	assert.Equal(t, "1", decode[model.Earnings](t, res).ID)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestHandler(t, loggedIn(), &stubOrders{}, &stubEarnings{})

	doRequest(t, h, http.MethodGet, "/api/orders/open", nil).Body.Close()

	res := doRequest(t, h, http.MethodGet, "/metrics", nil)
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), `http_requests_total{code="200",method="GET",route="/api/orders/open"} 1`)
}

func TestEventsStreamsSnapshot(t *testing.T) {
	orders := &stubOrders{open: []model.Order{{ID: "s1"}}}
	h := newTestHandler(t, loggedIn(), orders, &stubEarnings{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "data: {"))
	assert.Contains(t, rec.Body.String(), `"id":"s1"`)
}
