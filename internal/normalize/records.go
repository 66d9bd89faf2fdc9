package normalize

import (
	"github.com/mmeshcher/courier-agent/internal/model"
)

// Courier преобразует профиль курьера из ответа на вход.
func Courier(raw Raw) model.Courier {
	raw = unwrap(raw)

	c := model.Courier{
		ID:            str(raw, "id"),
		PartnerID:     str(raw, "partnerid", "partnerId", "partner_id", "username"),
		Name:          str(raw, "name", "username"),
		Email:         str(raw, "mail", "email"),
		Phone:         str(raw, "phone"),
		VehicleNumber: str(raw, "vehicleNumber", "vehicle_number"),
		VehicleType:   str(raw, "vehicleType", "vehicle_type"),
	}
	c.Active, _ = boolean(raw, "isActive", "is_active")

	if loc := object(raw, "currentLocation", "current_location"); loc != nil {
		c.Location = &model.Location{
			Latitude:  float(loc, "latitude", "lat"),
			Longitude: float(loc, "longitude", "lng", "lon"),
		}
	} else if _, ok := field(raw, "latitude"); ok {
		c.Location = &model.Location{
			Latitude:  float(raw, "latitude"),
			Longitude: float(raw, "longitude"),
		}
	}
	return c
}

// Earnings преобразует запись о начислениях.
func Earnings(raw Raw) model.Earnings {
	raw = unwrap(raw)

	e := model.Earnings{
		ID:         str(raw, "id"),
		Month:      str(raw, "month"),
		Year:       integer(raw, "year"),
		OrderCount: integer(raw, "totalOrders", "total_orders", "orderCount"),
		PaidAt:     timestamp(raw, "paidAt", "paid_at"),
	}
	e.Gross, _ = amount(raw, "totalEarnings", "total_earnings", "gross")
	e.Bonus, _ = amount(raw, "bonus")
	e.Deductions, _ = amount(raw, "deductions")
	e.Net, _ = amount(raw, "netEarnings", "net_earnings", "net")
	e.Paid, _ = boolean(raw, "paid", "isPaid", "is_paid")
	return e
}
