package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/courier-agent/internal/model"
)

func TestDistance(t *testing.T) {
	assert.Equal(t, 0.0, Distance(model.Location{Latitude: 18.52, Longitude: 73.85}, model.Location{Latitude: 18.52, Longitude: 73.85}))
	assert.Equal(t, 111.2, Distance(model.Location{}, model.Location{Latitude: 0, Longitude: 1}))
}

func TestNearbyOrders(t *testing.T) {
	courier := &model.Courier{ID: "7", Location: &model.Location{Latitude: 18.5204, Longitude: 73.8567}}
	m, _ := newTestManager(newStubBackend(), courier)

	m.reconcileOpen([]model.Order{
		{ID: "fc-road", Delivery: model.Place{Latitude: 18.5286, Longitude: 73.8412}},
		{ID: "no-coords", Delivery: model.Place{Address: "N/A"}},
		{ID: "mumbai", Delivery: model.Place{Latitude: 19.0760, Longitude: 72.8777}},
		{ID: "shivaji-nagar", Delivery: model.Place{Latitude: 18.5300, Longitude: 73.8500}},
	})

	got, err := m.NearbyOrders(5)
	require.NoError(t, err)
	require.Equal(t, []string{"shivaji-nagar", "fc-road"}, orderIDs(got))

	require.NotNil(t, got[0].DistanceKm)
	assert.InDelta(t, 1.3, *got[0].DistanceKm, 0.15)
	assert.InDelta(t, 1.9, *got[1].DistanceKm, 0.15)
	assert.Nil(t, m.OpenOrders()[0].DistanceKm)

	wide, err := m.NearbyOrders(500)
	require.NoError(t, err)
	assert.Len(t, wide, 3)
}

func TestNearbyOrdersNeedsLocation(t *testing.T) {
	m, _ := newTestManager(newStubBackend(), &model.Courier{ID: "7"})
	_, err := m.NearbyOrders(5)
	assert.ErrorIs(t, err, ErrLocationUnknown)

	m, _ = newTestManager(newStubBackend(), nil)
	_, err = m.NearbyOrders(5)
	assert.ErrorIs(t, err, ErrCourierRequired)
}
