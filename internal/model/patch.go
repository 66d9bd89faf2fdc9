package model

import "time"

// Patch описывает частичное изменение заказа. Незаданные поля не меняются.
type Patch struct {
	Status          *OrderStatus
	AssignedCourier *CourierRef
	AcceptedAt      *time.Time
	PickedUpAt      *time.Time
	DeliveredAt     *time.Time
}

// AcceptPatch строит изменение для принятия заказа курьером.
func AcceptPatch(courier *CourierRef, at time.Time) Patch {
	st := StatusAssigned
	return Patch{Status: &st, AssignedCourier: courier, AcceptedAt: &at}
}

// StatusPatch строит изменение статуса с клиентской отметкой времени для забора и доставки.
func StatusPatch(status OrderStatus, at time.Time) Patch {
	p := Patch{Status: &status}
	switch status {
	case StatusPickedUp:
		p.PickedUpAt = &at
	case StatusDelivered:
		p.DeliveredAt = &at
	}
	return p
}

// Apply возвращает копию заказа с применёнными заданными полями.
func (p Patch) Apply(o Order) Order {
	if p.Status != nil {
		o.Status = *p.Status
	}
	if p.AssignedCourier != nil {
		ref := *p.AssignedCourier
		o.AssignedCourier = &ref
	}
	if p.AcceptedAt != nil {
		t := *p.AcceptedAt
		o.AcceptedAt = &t
	}
	if p.PickedUpAt != nil {
		t := *p.PickedUpAt
		o.PickedUpAt = &t
	}
	if p.DeliveredAt != nil {
		t := *p.DeliveredAt
		o.DeliveredAt = &t
	}
	return o
}
