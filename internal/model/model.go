// Package model содержит доменные сущности клиента курьера службы доставки лекарств.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Location описывает географическую координату.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Courier представляет аутентифицированного курьера (delivery partner).
type Courier struct {
	ID            string    `json:"id"`
	PartnerID     string    `json:"partnerid,omitempty"`
	Name          string    `json:"name"`
	Email         string    `json:"mail,omitempty"`
	Phone         string    `json:"phone"`
	VehicleNumber string    `json:"vehicleNumber,omitempty"`
	VehicleType   string    `json:"vehicleType,omitempty"`
	Active        bool      `json:"isActive"`
	Location      *Location `json:"currentLocation,omitempty"`
}

// Ref возвращает ссылку на курьера для назначения заказа.
func (c Courier) Ref() *CourierRef {
	return &CourierRef{ID: c.ID, Name: c.Name, Phone: c.Phone}
}

// CourierRef ссылается на курьера, назначенного на заказ.
type CourierRef struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Source определяет, из какого источника бэкенда получен заказ.
type Source string

const (
	SourceStockist Source = "stockist"
	SourceDirect   Source = "direct"
)

// Valid сообщает, является ли источник известным.
func (s Source) Valid() bool {
	return s == SourceStockist || s == SourceDirect
}

// Place описывает точку забора или доставки.
type Place struct {
	Address      string  `json:"address"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Instructions string  `json:"instructions,omitempty"`
}

// HasCoordinates сообщает, заданы ли координаты точки.
func (p Place) HasCoordinates() bool {
	return p.Latitude != 0 || p.Longitude != 0
}

// Item описывает позицию заказа.
type Item struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category"`
}

// StockistDetails содержит поля, присущие только заказам оптовиков.
type StockistDetails struct {
	SellerID   string `json:"sellerId,omitempty"`
	SellerName string `json:"sellerName,omitempty"`
}

// DirectDetails содержит поля, присущие только прямым заказам розничных точек.
type DirectDetails struct {
	OrderRef              string     `json:"orderId,omitempty"`
	RetailerID            string     `json:"retailerId,omitempty"`
	RetailerName          string     `json:"retailerName,omitempty"`
	RetailerPhone         string     `json:"retailerPhone,omitempty"`
	StockistName          string     `json:"stockistName,omitempty"`
	StockistPhone         string     `json:"stockistPhone,omitempty"`
	CourierName           string     `json:"deliveryPartnerName,omitempty"`
	CourierPhone          string     `json:"deliveryPartnerPhone,omitempty"`
	EstimatedDeliveryTime *time.Time `json:"estimatedDeliveryTime,omitempty"`
	CancellationReason    string     `json:"cancellationReason,omitempty"`
}

// Order представляет единую модель заказа для обоих источников.
// Ровно одно из полей Stockist и Direct заполнено в соответствии с Source.
type Order struct {
	ID                   string           `json:"id"`
	Number               string           `json:"orderNumber,omitempty"`
	Slug                 string           `json:"slug,omitempty"`
	Source               Source           `json:"orderType"`
	CustomerName         string           `json:"customerName"`
	CustomerPhone        string           `json:"customerPhone"`
	Pickup               Place            `json:"pickupAddress"`
	Delivery             Place            `json:"deliveryAddress"`
	Items                []Item           `json:"items"`
	TotalAmount          decimal.Decimal  `json:"totalAmount"`
	BillAmount           *decimal.Decimal `json:"billAmount,omitempty"`
	DeliveryCharge       *decimal.Decimal `json:"deliveryCharge,omitempty"`
	FreeDeliveryExceeded *bool            `json:"isFreeDeliveryExceeded,omitempty"`
	Status               OrderStatus      `json:"status"`
	CreatedAt            time.Time        `json:"createdAt"`
	AcceptedAt           *time.Time       `json:"acceptedAt,omitempty"`
	PickedUpAt           *time.Time       `json:"pickedUpAt,omitempty"`
	DeliveredAt          *time.Time       `json:"deliveredAt,omitempty"`
	AssignedCourier      *CourierRef      `json:"assignedCourier,omitempty"`
	DistanceKm           *float64         `json:"distance,omitempty"`

	Stockist *StockistDetails `json:"stockist,omitempty"`
	Direct   *DirectDetails   `json:"direct,omitempty"`
}

// DisplayID возвращает человекочитаемый идентификатор: номер, slug,
// номер прямого заказа или id записи.
func (o Order) DisplayID() string {
	switch {
	case o.Number != "":
		return o.Number
	case o.Slug != "":
		return o.Slug
	case o.Direct != nil && o.Direct.OrderRef != "":
		return o.Direct.OrderRef
	default:
		return o.ID
	}
}

// Ownership описывает отношение заказа к текущему курьеру.
type Ownership string

const (
	OwnershipOpen  Ownership = "open"
	OwnershipMine  Ownership = "mine"
	OwnershipOther Ownership = "other"
)

// Ownership определяет, открыт ли заказ, принадлежит ли он курьеру или другому курьеру.
func (o Order) Ownership(courierID string) Ownership {
	if o.AssignedCourier == nil || o.AssignedCourier.ID == "" {
		return OwnershipOpen
	}
	if courierID != "" && o.AssignedCourier.ID == courierID {
		return OwnershipMine
	}
	return OwnershipOther
}

// Earnings описывает начисления курьера за месяц.
type Earnings struct {
	ID         string          `json:"id"`
	Month      string          `json:"month"`
	Year       int             `json:"year"`
	OrderCount int             `json:"totalOrders"`
	Gross      decimal.Decimal `json:"totalEarnings"`
	Bonus      decimal.Decimal `json:"bonus"`
	Deductions decimal.Decimal `json:"deductions"`
	Net        decimal.Decimal `json:"netEarnings"`
	Paid       bool            `json:"paid"`
	PaidAt     *time.Time      `json:"paidAt,omitempty"`
}
