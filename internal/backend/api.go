package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mmeshcher/courier-agent/internal/model"
	"github.com/mmeshcher/courier-agent/internal/normalize"
)

// LoginResult содержит токен и профиль курьера после успешного входа.
type LoginResult struct {
	Token   string
	Courier model.Courier
}

// StatusUpdate описывает тело запроса смены статуса заказа.
type StatusUpdate struct {
	Status      model.OrderStatus `json:"status"`
	PickedUpAt  *time.Time        `json:"pickedUpAt,omitempty"`
	DeliveredAt *time.Time        `json:"deliveredAt,omitempty"`
}

type acceptRequest struct {
	DeliveryPartner string            `json:"delivery_partner"`
	Status          model.OrderStatus `json:"status"`
}

type locationRequest struct {
	CurrentLocation model.Location `json:"currentLocation"`
}

// Login выполняет вход курьера по идентификатору и паролю.
func (c *Client) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	body := map[string]string{
		"partnerid":  identifier,
		"identifier": identifier,
		"password":   password,
	}

	resp, err := c.do(ctx, http.MethodPost, "/delivery-partner/login", nil, body, false)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	payload, ok := resp.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("login: %w", ErrMalformedResponse)
	}

	token := ""
	for _, key := range []string{"jwt", "token"} {
		if s, ok := payload[key].(string); ok && s != "" {
			token = s
			break
		}
	}

	user, _ := payload["user"].(map[string]any)
	courier := normalize.Courier(user)
	if token == "" || courier.ID == "" {
		return nil, fmt.Errorf("login: %w", ErrMalformedResponse)
	}

	return &LoginResult{Token: token, Courier: courier}, nil
}

// UpdateLocation передаёт текущие координаты курьера.
func (c *Client) UpdateLocation(ctx context.Context, courierID string, loc model.Location) error {
	path := "/delivery-partners/" + url.PathEscape(courierID)
	if _, err := c.do(ctx, http.MethodPut, path, nil, locationRequest{CurrentLocation: loc}, true); err != nil {
		return fmt.Errorf("update location: %w", err)
	}
	return nil
}

// OpenOrders возвращает открытые заказы указанного источника.
func (c *Client) OpenOrders(ctx context.Context, source model.Source) ([]map[string]any, error) {
	path := "/delivery-partner/open-orders"
	if source == model.SourceDirect {
		path = "/stockist-orders/open"
	}

	resp, err := c.do(ctx, http.MethodGet, path, nil, nil, true)
	if err != nil {
		return nil, fmt.Errorf("fetch open %s orders: %w", source, err)
	}
	return asList(resp)
}

// MyOrders возвращает заказы указанного источника, назначенные курьеру.
func (c *Client) MyOrders(ctx context.Context, source model.Source, courierID string) ([]map[string]any, error) {
	path := "/stockist-orders/my-orders/"
	var query url.Values

	if source != model.SourceDirect {
		if courierID == "" {
			return nil, errors.New("fetch my stockist orders: courier id is required")
		}
		path = "/delivery-partner/orders"
		query = url.Values{"partnerId": {courierID}, "populate": {"*"}}
	}

	resp, err := c.do(ctx, http.MethodGet, path, query, nil, true)
	if err != nil {
		return nil, fmt.Errorf("fetch my %s orders: %w", source, err)
	}
	return asList(resp)
}

// AcceptOrder назначает заказ на курьера.
func (c *Client) AcceptOrder(ctx context.Context, source model.Source, orderID, courierID string) (map[string]any, error) {
	path := "/delivery-partner/orders/" + url.PathEscape(orderID) + "/accept"
	if source == model.SourceDirect {
		path = "/stockist-orders/" + url.PathEscape(orderID) + "/accept"
	}

	body := acceptRequest{DeliveryPartner: courierID, Status: model.StatusAssigned}
	resp, err := c.do(ctx, http.MethodPost, path, nil, body, true)
	if err != nil {
		return nil, err
	}
	return asObject(resp), nil
}

// UpdateOrderStatus меняет статус заказа.
func (c *Client) UpdateOrderStatus(ctx context.Context, source model.Source, orderID string, update StatusUpdate) (map[string]any, error) {
	path := "/delivery-partner/orders/" + url.PathEscape(orderID) + "/status"
	if source == model.SourceDirect {
		path = "/stockist-orders/" + url.PathEscape(orderID) + "/update"
	}

	resp, err := c.do(ctx, http.MethodPut, path, nil, update, true)
	if err != nil {
		return nil, err
	}
	return asObject(resp), nil
}

// Earnings возвращает начисления курьера, опционально за указанный месяц и год.
func (c *Client) Earnings(ctx context.Context, month string, year int) ([]model.Earnings, error) {
	query := url.Values{}
	if month != "" {
		query.Set("month", month)
	}
	if year > 0 {
		query.Set("year", strconv.Itoa(year))
	}

	resp, err := c.do(ctx, http.MethodGet, "/earnings", query, nil, true)
	if err != nil {
		return nil, fmt.Errorf("fetch earnings: %w", err)
	}

	raws, err := asList(resp)
	if err != nil {
		return nil, fmt.Errorf("fetch earnings: %w", err)
	}

	out := make([]model.Earnings, 0, len(raws))
	for _, raw := range raws {
		out = append(out, normalize.Earnings(raw))
	}
	return out, nil
}
