package tripdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tripcore.ridepulse.org/internal/appconf"
	"tripcore.ridepulse.org/internal/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(NewConfig(":memory:", appconf.Test, false))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func seedTrip(t *testing.T, client *Client) {
	t.Helper()
	ctx := context.Background()
	q := client.Queries

	require.NoError(t, q.UpsertRoute(ctx, "route-1", "CBD - Westlands"))
	require.NoError(t, q.ReplaceStops(ctx, "route-1", []models.Stop{
		{ID: "s0", Name: "Terminal", Lat: -1.2833, Lon: 36.8167, ArrivalOffsetMin: 0},
		{ID: "s1", Name: "Museum Hill", Lat: -1.2750, Lon: 36.8100, ArrivalOffsetMin: 15},
		{ID: "s2", Name: "Westlands", Lat: -1.2650, Lon: 36.8020, ArrivalOffsetMin: 30},
	}))
	require.NoError(t, q.UpsertVehicle(ctx, models.Vehicle{ID: "bus-7", SeatCount: 33, ServiceClass: "standard"}))
	require.NoError(t, q.UpsertTrip(ctx, "trip-1", "route-1", "bus-7",
		time.Date(2025, 3, 10, 7, 30, 0, 0, time.UTC)))
}

func TestGetTrip(t *testing.T) {
	client := newTestClient(t)
	seedTrip(t, client)

	trip, err := client.Queries.GetTrip(context.Background(), "trip-1")
	require.NoError(t, err)

	assert.Equal(t, "trip-1", trip.ID)
	assert.Equal(t, 33, trip.Vehicle.SeatCount)
	require.NotNil(t, trip.Route)
	require.Len(t, trip.Route.Stops, 3)
	assert.Equal(t, "Museum Hill", trip.Route.Stops[1].Name)
	assert.Equal(t, 15, trip.Route.Stops[1].ArrivalOffsetMin)
	assert.Empty(t, trip.BookedSeats)
}

func TestGetTrip_NotFound(t *testing.T) {
	client := newTestClient(t)

	_, err := client.Queries.GetTrip(context.Background(), "no-such-trip")
	assert.ErrorIs(t, err, ErrTripNotFound)
}

func TestInsertBookings_DuplicateSeatFailsWholeBatch(t *testing.T) {
	client := newTestClient(t)
	seedTrip(t, client)
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 7, 0, 0, 0, time.UTC)

	require.NoError(t, client.Queries.InsertBookings(ctx, "trip-1", []int{4, 5}, "holder-a", now))

	// Seat 5 is taken: the whole batch must fail and seat 9 must not appear.
	err := client.Queries.InsertBookings(ctx, "trip-1", []int{9, 5}, "holder-b", now)
	require.Error(t, err)

	seats, err := client.Queries.GetBookedSeats(ctx, "trip-1")
	require.NoError(t, err)
	assert.Equal(t, []int{4, 5}, seats)
}

func TestRouteShapeRoundTrip(t *testing.T) {
	client := newTestClient(t)
	seedTrip(t, client)
	ctx := context.Background()

	encoded, err := client.Queries.GetRouteShape(ctx, "route-1")
	require.NoError(t, err)
	assert.Empty(t, encoded)

	require.NoError(t, client.Queries.SetRouteShape(ctx, "route-1", "_p~iF~ps|U_ulLnnqC"))
	encoded, err = client.Queries.GetRouteShape(ctx, "route-1")
	require.NoError(t, err)
	assert.Equal(t, "_p~iF~ps|U_ulLnnqC", encoded)
}

func TestListAllStops(t *testing.T) {
	client := newTestClient(t)
	seedTrip(t, client)

	stops, err := client.Queries.ListAllStops(context.Background())
	require.NoError(t, err)
	require.Len(t, stops, 3)
	assert.Equal(t, "route-1", stops[0].RouteID)
	assert.Equal(t, "s0", stops[0].ID)
}
