package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tripcore.ridepulse.org/internal/models"
)

func kph(v float64) *float64 { return &v }

// twoStopRoute places stop B due north of stop A. At the equator one degree
// of latitude is close to 111.3 km, so 0.9 degrees is roughly 100 km.
func twoStopRoute() *models.Route {
	return &models.Route{
		ID: "route-1",
		Stops: []models.Stop{
			{ID: "a", Name: "Origin", Lat: 0, Lon: 0, ArrivalOffsetMin: 0},
			{ID: "b", Name: "Terminus", Lat: 0.9, Lon: 0, ArrivalOffsetMin: 120},
		},
	}
}

func TestEstimate_DestinationETAFromSpeed(t *testing.T) {
	e := NewEstimator()
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	// Halfway along the route at 50 km/h: remaining ~50 km, ETA ~1h.
	sample := models.LocationSample{TripID: "t1", Lat: 0.45, Lon: 0, SpeedKPH: kph(50), Timestamp: now}
	snap := e.Estimate(twoStopRoute(), sample, nil, now)

	require.NotNil(t, snap)
	require.NotNil(t, snap.DestinationETA)
	assert.False(t, snap.Arrived)
	assert.InDelta(t, 50_000, snap.RemainingMeters, 500)
	assert.InDelta(t, time.Hour.Minutes(), snap.DestinationETA.Sub(now).Minutes(), 1.5)
}

func TestEstimate_SpeedFloorPreventsBlowUp(t *testing.T) {
	e := NewEstimator()
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	sample := models.LocationSample{TripID: "t1", Lat: 0.45, Lon: 0, SpeedKPH: kph(0.1), Timestamp: now}
	snap := e.Estimate(twoStopRoute(), sample, nil, now)

	require.NotNil(t, snap)
	assert.Equal(t, DefaultSpeedFloorKPH, snap.SpeedKPH)
}

func TestEstimate_FallbackSpeedWhenNoSignal(t *testing.T) {
	e := NewEstimator()
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	sample := models.LocationSample{TripID: "t1", Lat: 0.45, Lon: 0, Timestamp: now}
	snap := e.Estimate(twoStopRoute(), sample, nil, now)

	require.NotNil(t, snap)
	assert.Equal(t, DefaultFallbackSpeedKPH, snap.SpeedKPH)
}

func TestEstimate_DerivedSpeedUsedWhenPublisherOmits(t *testing.T) {
	e := NewEstimator()
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	sample := models.LocationSample{TripID: "t1", Lat: 0.45, Lon: 0, Timestamp: now}
	snap := e.Estimate(twoStopRoute(), sample, kph(25), now)

	require.NotNil(t, snap)
	assert.Equal(t, 25.0, snap.SpeedKPH)
}

func TestEstimate_ArrivedBelowThreshold(t *testing.T) {
	e := NewEstimator()
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

	sample := models.LocationSample{TripID: "t1", Lat: 0.9, Lon: 0, SpeedKPH: kph(30), Timestamp: now}
	snap := e.Estimate(twoStopRoute(), sample, nil, now)

	require.NotNil(t, snap)
	assert.True(t, snap.Arrived)
	assert.Nil(t, snap.DestinationETA)
}

func TestEstimate_StopClassification(t *testing.T) {
	route := &models.Route{
		ID: "route-2",
		Stops: []models.Stop{
			{ID: "s0", Lat: 0.0, Lon: 0, ArrivalOffsetMin: 0},
			{ID: "s1", Lat: 0.1, Lon: 0, ArrivalOffsetMin: 10},
			{ID: "s2", Lat: 0.2, Lon: 0, ArrivalOffsetMin: 20},
			{ID: "s3", Lat: 0.3, Lon: 0, ArrivalOffsetMin: 30},
		},
	}
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	// Vehicle sits just past s1.
	sample := models.LocationSample{TripID: "t1", Lat: 0.11, Lon: 0, SpeedKPH: kph(40), Timestamp: now}
	snap := NewEstimator().Estimate(route, sample, nil, now)

	require.NotNil(t, snap)
	assert.Equal(t, 1, snap.NearestStopIndex)
	assert.Equal(t, models.StopPassed, snap.Stops[0].Status)
	assert.Equal(t, models.StopCurrent, snap.Stops[1].Status)
	assert.Equal(t, models.StopNext, snap.Stops[2].Status)
	assert.Equal(t, models.StopUpcoming, snap.Stops[3].Status)

	// Upcoming stops carry schedule ETAs relative to the current stop.
	require.NotNil(t, snap.Stops[2].ETA)
	assert.Equal(t, now.Add(10*time.Minute), *snap.Stops[2].ETA)
	require.NotNil(t, snap.Stops[3].ETA)
	assert.Equal(t, now.Add(20*time.Minute), *snap.Stops[3].ETA)

	// Passed and current stops carry none.
	assert.Nil(t, snap.Stops[0].ETA)
	assert.Nil(t, snap.Stops[1].ETA)
}

func TestEstimate_ShapeRefinesRemainingDistance(t *testing.T) {
	e := NewEstimator()
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	// The road detours far east of the direct line between the stops. The
	// vehicle sits halfway up the first detour leg.
	detour := twoStopRoute()
	detour.Shape = []models.Location{
		{Lat: 0, Lon: 0},
		{Lat: 0.45, Lon: 0.45},
		{Lat: 0.9, Lon: 0},
	}
	sample := models.LocationSample{TripID: "t1", Lat: 0.225, Lon: 0.225, SpeedKPH: kph(50), Timestamp: now}

	flat := e.Estimate(twoStopRoute(), sample, nil, now)
	shaped := e.Estimate(detour, sample, nil, now)
	require.NotNil(t, flat)
	require.NotNil(t, shaped)

	// Shapeless: straight line to the terminus, ~79 km. Along the road: half
	// a ~70.8 km leg behind, one and a half ahead, ~106 km.
	assert.InDelta(t, 79_100, flat.RemainingMeters, 800)
	assert.InDelta(t, 106_100, shaped.RemainingMeters, 1_500)
	assert.Greater(t, shaped.RemainingMeters, flat.RemainingMeters)
	assert.True(t, shaped.DestinationETA.After(*flat.DestinationETA))
}

func TestEstimate_ShapeEndIsArrival(t *testing.T) {
	e := NewEstimator()
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

	route := twoStopRoute()
	route.Shape = []models.Location{
		{Lat: 0, Lon: 0},
		{Lat: 0.45, Lon: 0.45},
		{Lat: 0.9, Lon: 0},
	}
	sample := models.LocationSample{TripID: "t1", Lat: 0.9, Lon: 0, SpeedKPH: kph(30), Timestamp: now}

	snap := e.Estimate(route, sample, nil, now)
	require.NotNil(t, snap)
	assert.Equal(t, 1, snap.NearestStopIndex)
	assert.True(t, snap.Arrived)
	assert.Nil(t, snap.DestinationETA)
}

func TestEstimate_NegativeScheduleDeltaClampedToUnknown(t *testing.T) {
	// A stop list with drifting offsets: the stop after the nearest one is
	// scheduled earlier. Its ETA must be suppressed, never shown in the past.
	route := &models.Route{
		ID: "route-3",
		Stops: []models.Stop{
			{ID: "s0", Lat: 0.0, Lon: 0, ArrivalOffsetMin: 30},
			{ID: "s1", Lat: 0.1, Lon: 0, ArrivalOffsetMin: 10},
		},
	}
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	sample := models.LocationSample{TripID: "t1", Lat: 0.0, Lon: 0, SpeedKPH: kph(40), Timestamp: now}

	snap := NewEstimator().Estimate(route, sample, nil, now)
	require.NotNil(t, snap)
	assert.Nil(t, snap.Stops[1].ETA)
}

func TestEstimate_NoStops(t *testing.T) {
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	sample := models.LocationSample{TripID: "t1", Lat: 0, Lon: 0, Timestamp: now}

	assert.Nil(t, NewEstimator().Estimate(nil, sample, nil, now))
	assert.Nil(t, NewEstimator().Estimate(&models.Route{}, sample, nil, now))
}

func TestStaleDetector(t *testing.T) {
	d := NewStaleDetector().WithThreshold(90 * time.Second)
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	assert.True(t, d.Check(nil, now))
	assert.Equal(t, models.PhaseNoSamplesYet, d.Phase(nil, now))

	fresh := &models.LocationSample{Timestamp: now.Add(-30 * time.Second)}
	assert.False(t, d.Check(fresh, now))
	assert.Equal(t, models.PhaseTracking, d.Phase(fresh, now))
	assert.Equal(t, 30*time.Second, d.Age(fresh, now))

	old := &models.LocationSample{Timestamp: now.Add(-2 * time.Minute)}
	assert.True(t, d.Check(old, now))
	assert.Equal(t, models.PhaseStale, d.Phase(old, now))
}
