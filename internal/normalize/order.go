// Package normalize приводит записи бэкенда двух источников к единой модели заказа.
package normalize

import (
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/courier-agent/internal/model"
)

var addressParts = [][]string{
	{"addressLine1", "address_line1", "line1", "street"},
	{"addressLine2", "address_line2", "line2"},
	{"city"},
	{"state"},
	{"pincode", "pinCode", "pin_code", "zip"},
}

// ID возвращает обязательный идентификатор записи.
func ID(raw Raw) (string, bool) {
	id := str(unwrap(raw), "id")
	return id, id != ""
}

// Orders нормализует пакет записей одного источника, пропуская записи без идентификатора.
func Orders(raws []Raw, source model.Source, logger *zap.Logger) []model.Order {
	out := make([]model.Order, 0, len(raws))
	for i, raw := range raws {
		if _, ok := ID(raw); !ok {
			if logger != nil {
				logger.Warn("skip order without id",
					zap.String("source", string(source)),
					zap.Int("index", i),
				)
			}
			continue
		}
		out = append(out, Order(raw, source))
	}
	return out
}

// Order преобразует одну запись бэкенда в единую модель заказа.
// Отсутствующие необязательные поля заменяются значениями по умолчанию.
func Order(raw Raw, source model.Source) model.Order {
	raw = unwrap(raw)

	o := model.Order{
		ID:                   str(raw, "id"),
		Number:               str(raw, "orderNumber", "order_number"),
		Slug:                 str(raw, "slug"),
		Source:               source,
		BillAmount:           optionalAmount(raw, "billAmount", "bill_amount"),
		DeliveryCharge:       optionalAmount(raw, "deliveryCharge", "delivery_charge"),
		Status:               model.ParseStatus(str(raw, "status", "orderStatus", "order_status")),
		AcceptedAt:           timestamp(raw, "acceptedAt", "accepted_at"),
		PickedUpAt:           timestamp(raw, "pickedUpAt", "picked_up_at"),
		DeliveredAt:          timestamp(raw, "deliveredAt", "delivered_at"),
		AssignedCourier:      courierRef(raw),
		FreeDeliveryExceeded: optionalBool(raw, "isFreeDeliveryExceeded", "is_free_delivery_exceeded"),
	}
	if created := timestamp(raw, "createdAt", "created_at"); created != nil {
		o.CreatedAt = *created
	}

	if source == model.SourceDirect {
		fillDirect(&o, raw)
	} else {
		fillStockist(&o, raw)
	}
	return o
}

func fillStockist(o *model.Order, raw Raw) {
	seller := object(raw, "seller")
	sellerName := firstNonEmpty(str(seller, "name", "shopName", "shop_name"), notAvailable)

	o.CustomerName = firstNonEmpty(str(raw, "consumerName", "consumer_name", "customerName", "customer_name"), notAvailable)
	o.CustomerPhone = firstNonEmpty(str(raw, "consumerPhone", "consumer_phone", "customerPhone", "customer_phone", "phone"), notAvailable)
	o.TotalAmount, _ = amount(raw, "totalAmount", "total_amount")

	o.Delivery = place(raw, "address", "deliveryAddress", "delivery_address")
	o.Pickup = place(seller, "address")
	o.Pickup.Instructions = "Pickup from " + sellerName

	o.Items = items(list(raw, "orderProducts", "order_products", "items"))
	o.Stockist = &model.StockistDetails{
		SellerID:   str(seller, "id"),
		SellerName: str(seller, "name", "shopName", "shop_name"),
	}
}

func fillDirect(o *model.Order, raw Raw) {
	retailer := object(raw, "retailer")
	stockist := object(raw, "stockist")
	courier := object(raw, "deliveryPartner", "delivery_partner")

	d := &model.DirectDetails{
		OrderRef:              str(raw, "orderId", "order_id"),
		RetailerID:            firstNonEmpty(str(raw, "retailerId", "retailer_id"), str(retailer, "id")),
		RetailerName:          firstNonEmpty(str(raw, "retailerName", "retailer_name"), str(retailer, "name", "shopName", "shop_name")),
		RetailerPhone:         firstNonEmpty(str(raw, "retailerPhone", "retailer_phone"), str(retailer, "phone")),
		StockistName:          firstNonEmpty(str(raw, "stockistName", "stockist_name"), str(stockist, "name", "shopName", "shop_name")),
		StockistPhone:         firstNonEmpty(str(raw, "stockistPhone", "stockist_phone"), str(stockist, "phone")),
		CourierName:           firstNonEmpty(str(raw, "deliveryPartnerName", "delivery_partner_name"), str(courier, "name")),
		CourierPhone:          firstNonEmpty(str(raw, "deliveryPartnerPhone", "delivery_partner_phone"), str(courier, "phone")),
		EstimatedDeliveryTime: timestamp(raw, "estimatedDeliveryTime", "estimated_delivery_time"),
		CancellationReason:    str(raw, "cancellationReason", "cancellation_reason"),
	}
	o.Direct = d

	o.CustomerName = firstNonEmpty(d.RetailerName, str(raw, "customerName", "customer_name"), notAvailable)
	o.CustomerPhone = firstNonEmpty(d.RetailerPhone, str(raw, "customerPhone", "customer_phone"), notAvailable)
	o.TotalAmount, _ = amount(raw, "totalAmount", "total_amount", "amount")

	o.Pickup = model.Place{
		Address: firstNonEmpty(
			addressText(raw, "pickupAddress", "pickup_address", "stockistAddress", "stockist_address"),
			addressText(stockist, "address"),
			notAvailable,
		),
	}
	o.Delivery = model.Place{
		Address: firstNonEmpty(
			addressText(raw, "deliveryAddress", "delivery_address", "retailerAddress", "retailer_address"),
			addressText(retailer, "address"),
			notAvailable,
		),
	}
	o.Items = []model.Item{}
}

// place строит точку маршрута из вложенного адреса; адрес может быть строкой или объектом.
func place(raw Raw, keys ...string) model.Place {
	p := model.Place{Address: firstNonEmpty(addressText(raw, keys...), notAvailable)}
	if addr := object(raw, keys...); addr != nil {
		p.Latitude = float(addr, "latitude", "lat")
		p.Longitude = float(addr, "longitude", "lng", "lon")
		p.Instructions = str(addr, "instructions", "landmark")
	}
	return p
}

func addressText(raw Raw, keys ...string) string {
	v, ok := field(raw, keys...)
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	addr := unwrap(v)
	if addr == nil {
		return ""
	}
	parts := make([]string, 0, len(addressParts))
	for _, group := range addressParts {
		if s := str(addr, group...); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, ", ")
	}
	return str(addr, "address", "fullAddress", "full_address")
}

func items(raws []Raw) []model.Item {
	out := make([]model.Item, 0, len(raws))
	for _, it := range raws {
		product := object(it, "product")
		price, ok := amount(it, "price", "unitPrice", "unit_price")
		if !ok {
			price, _ = amount(product, "price", "mrp")
		}
		out = append(out, model.Item{
			ID:       firstNonEmpty(str(it, "id"), str(product, "id")),
			Name:     firstNonEmpty(str(it, "name", "productName", "product_name"), str(product, "name"), notAvailable),
			Quantity: integer(it, "quantity", "qty"),
			Price:    price,
			Category: firstNonEmpty(str(it, "category"), str(product, "category"), notAvailable),
		})
	}
	return out
}

func courierRef(raw Raw) *model.CourierRef {
	v, ok := field(raw, "deliveryPartner", "delivery_partner")
	if !ok {
		return nil
	}
	if m := unwrap(v); m != nil {
		id := str(m, "id")
		if id == "" {
			return nil
		}
		return &model.CourierRef{ID: id, Name: str(m, "name"), Phone: str(m, "phone")}
	}
	if id := toString(v); id != "" {
		return &model.CourierRef{ID: id}
	}
	return nil
}

func optionalBool(raw Raw, keys ...string) *bool {
	b, ok := boolean(raw, keys...)
	if !ok {
		return nil
	}
	return &b
}
