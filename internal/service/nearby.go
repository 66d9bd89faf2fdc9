package service

import (
	"math"
	"sort"

	"github.com/mmeshcher/courier-agent/internal/model"
)

const earthRadiusKm = 6371

// Distance возвращает расстояние по большому кругу между точками в километрах,
// округлённое до 0.1 км.
func Distance(from, to model.Location) float64 {
	lat1 := toRadians(from.Latitude)
	lat2 := toRadians(to.Latitude)
	dLat := toRadians(to.Latitude - from.Latitude)
	dLon := toRadians(to.Longitude - from.Longitude)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return math.Round(earthRadiusKm*c*10) / 10
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// NearbyOrders возвращает открытые заказы с известной точкой доставки в пределах radiusKm
// от курьера, по возрастанию расстояния.
func (m *OrderManager) NearbyOrders(radiusKm float64) ([]model.Order, error) {
	c, ok := m.courier.Courier()
	if !ok {
		return nil, ErrCourierRequired
	}
	if c.Location == nil {
		return nil, ErrLocationUnknown
	}
	here := *c.Location

	out := make([]model.Order, 0)
	for _, o := range m.OpenOrders() {
		if !o.Delivery.HasCoordinates() {
			continue
		}
		d := Distance(here, model.Location{Latitude: o.Delivery.Latitude, Longitude: o.Delivery.Longitude})
		if d > radiusKm {
			continue
		}
		o.DistanceKm = &d
		out = append(out, o)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return *out[i].DistanceKm < *out[j].DistanceKm
	})
	return out, nil
}
