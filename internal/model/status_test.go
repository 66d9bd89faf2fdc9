package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want OrderStatus
	}{
		{raw: "ASSIGNED", want: StatusAssigned},
		{raw: "assigned", want: StatusAssigned},
		{raw: " Picked_Up ", want: StatusPickedUp},
		{raw: "picked", want: StatusPickedUp},
		{raw: "PICKED", want: StatusPickedUp},
		{raw: "in-transit", want: StatusPickedUp},
		{raw: "IN_TRANSIT", want: StatusPickedUp},
		{raw: "accepted", want: StatusAccepted},
		{raw: "DELIVERED", want: StatusDelivered},
		{raw: "cancelled", want: StatusDeclined},
		{raw: "", want: StatusUnassigned},
		{raw: "pending", want: StatusUnassigned},
		{raw: "teleported", want: StatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := ParseStatus(tt.raw); got != tt.want {
				t.Fatalf("ParseStatus(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestStatusNext(t *testing.T) {
	tests := []struct {
		from   OrderStatus
		want   OrderStatus
		wantOK bool
	}{
		{from: StatusUnassigned, want: StatusAssigned, wantOK: true},
		{from: StatusAccepted, want: StatusPickedUp, wantOK: true},
		{from: StatusAssigned, want: StatusPickedUp, wantOK: true},
		{from: StatusPickedUp, want: StatusDelivered, wantOK: true},
		{from: StatusDelivered, wantOK: false},
		{from: StatusDeclined, wantOK: false},
		{from: StatusUnknown, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from), func(t *testing.T) {
			got, ok := tt.from.Next()
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusDeclined.Terminal())
	assert.False(t, StatusPickedUp.Terminal())
	assert.False(t, StatusUnknown.Valid())
}

func TestPatchApplyKeepsOtherFields(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	accepted := created.Add(time.Hour)
	order := Order{
		ID:           "7",
		Number:       "ORD-7",
		Source:       SourceStockist,
		CustomerName: "City Pharmacy",
		Items:        []Item{{ID: "1", Name: "Paracetamol", Quantity: 2, Price: decimal.NewFromInt(40)}},
		TotalAmount:  decimal.NewFromInt(80),
		Status:       StatusUnassigned,
		CreatedAt:    created,
	}

	got := AcceptPatch(&CourierRef{ID: "c1", Name: "Ravi"}, accepted).Apply(order)

	assert.Equal(t, StatusAssigned, got.Status)
	assert.Equal(t, "c1", got.AssignedCourier.ID)
	assert.Equal(t, accepted, *got.AcceptedAt)

	got.Status = order.Status
	got.AssignedCourier = nil
	got.AcceptedAt = nil
	assert.Equal(t, order, got)
}

func TestStatusPatchTimestamps(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	picked := StatusPatch(StatusPickedUp, at)
	assert.NotNil(t, picked.PickedUpAt)
	assert.Nil(t, picked.DeliveredAt)

	delivered := StatusPatch(StatusDelivered, at)
	assert.Nil(t, delivered.PickedUpAt)
	assert.NotNil(t, delivered.DeliveredAt)

	assigned := StatusPatch(StatusAssigned, at)
	assert.Nil(t, assigned.PickedUpAt)
	assert.Nil(t, assigned.DeliveredAt)
}

func TestOrderDisplayIDAndOwnership(t *testing.T) {
	assert.Equal(t, "ORD-1", Order{ID: "1", Number: "ORD-1", Slug: "s"}.DisplayID())
	assert.Equal(t, "slug-1", Order{ID: "1", Slug: "slug-1"}.DisplayID())
	assert.Equal(t, "1", Order{ID: "1"}.DisplayID())
	assert.Equal(t, "slug-1", Order{ID: "1", Slug: "slug-1", Direct: &DirectDetails{OrderRef: "ORD-9"}}.DisplayID())
	assert.Equal(t, "ORD-9", Order{ID: "1", Direct: &DirectDetails{OrderRef: "ORD-9"}}.DisplayID())

	o := Order{ID: "1"}
	assert.Equal(t, OwnershipOpen, o.Ownership("c1"))
	o.AssignedCourier = &CourierRef{ID: "c1"}
	assert.Equal(t, OwnershipMine, o.Ownership("c1"))
	assert.Equal(t, OwnershipOther, o.Ownership("c2"))
}
