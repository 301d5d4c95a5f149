package fleet

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tripcore.ridepulse.org/internal/appconf"
	"tripcore.ridepulse.org/internal/clock"
	"tripcore.ridepulse.org/internal/models"
	"tripcore.ridepulse.org/tripdb"
)

func newTestCatalog(t *testing.T) (*Catalog, *tripdb.Client) {
	t.Helper()
	client, err := tripdb.NewClient(tripdb.NewConfig(":memory:", appconf.Test, false))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	clk := clock.NewMockClock(time.Date(2025, 3, 10, 7, 0, 0, 0, time.UTC))
	return NewCatalog(client, clk, nil), client
}

func seedCatalog(t *testing.T, client *tripdb.Client) {
	t.Helper()
	ctx := context.Background()
	q := client.Queries

	require.NoError(t, q.UpsertRoute(ctx, "route-1", "CBD - Westlands"))
	require.NoError(t, q.ReplaceStops(ctx, "route-1", []models.Stop{
		{ID: "s0", Name: "Terminal", Lat: -1.2833, Lon: 36.8167, ArrivalOffsetMin: 0},
		{ID: "s1", Name: "Westlands", Lat: -1.2650, Lon: 36.8020, ArrivalOffsetMin: 30},
	}))
	require.NoError(t, q.UpsertVehicle(ctx, models.Vehicle{ID: "bus-7", SeatCount: 14}))
	require.NoError(t, q.UpsertTrip(ctx, "trip-1", "route-1", "bus-7",
		time.Date(2025, 3, 10, 7, 30, 0, 0, time.UTC)))
}

func TestTripDetails_BookedSeatsAlwaysFresh(t *testing.T) {
	catalog, client := newTestCatalog(t)
	seedCatalog(t, client)
	ctx := context.Background()

	trip, err := catalog.TripDetails(ctx, "trip-1")
	require.NoError(t, err)
	assert.Empty(t, trip.BookedSeats)

	require.NoError(t, catalog.PersistBookings(ctx, "trip-1", []int{3, 4}, "holder-a"))

	// Second call hits the route/vehicle cache but must see the new bookings.
	trip, err = catalog.TripDetails(ctx, "trip-1")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, trip.BookedSeats)
	assert.Equal(t, 14, trip.Vehicle.SeatCount)
	assert.Equal(t, time.Date(2025, 3, 10, 7, 30, 0, 0, time.UTC), trip.Departure)
}

func TestTripDetails_NotFound(t *testing.T) {
	catalog, _ := newTestCatalog(t)
	_, err := catalog.TripDetails(context.Background(), "ghost")
	assert.ErrorIs(t, err, tripdb.ErrTripNotFound)
}

func TestTripDetails_AttachesDecodedShape(t *testing.T) {
	catalog, client := newTestCatalog(t)
	seedCatalog(t, client)
	ctx := context.Background()

	// The canonical example polyline from the encoding spec.
	require.NoError(t, client.Queries.SetRouteShape(ctx, "route-1", "_p~iF~ps|U_ulLnnqC_mqNvxq`@"))

	trip, err := catalog.TripDetails(ctx, "trip-1")
	require.NoError(t, err)
	require.Len(t, trip.Route.Shape, 3)
	assert.InDelta(t, 38.5, trip.Route.Shape[0].Lat, 1e-9)
	assert.InDelta(t, -120.2, trip.Route.Shape[0].Lon, 1e-9)
}

func TestDecodeShape_Invalid(t *testing.T) {
	_, err := DecodeShape("!!!not-a-polyline")
	assert.Error(t, err)
}

func TestStopIndex_Near(t *testing.T) {
	catalog, client := newTestCatalog(t)
	seedCatalog(t, client)
	ctx := context.Background()

	require.NoError(t, catalog.BuildStopIndex(ctx))

	// ~250m from Terminal, several km from Westlands.
	hits := catalog.StopsNear(-1.2830, 36.8145, 1000)
	require.Len(t, hits, 1)
	assert.Equal(t, "s0", hits[0].ID)
	assert.Less(t, hits[0].DistanceMeters, 1000.0)

	// A radius wide enough for both returns closest-first.
	hits = catalog.StopsNear(-1.2830, 36.8145, 10_000)
	require.Len(t, hits, 2)
	assert.Equal(t, "s0", hits[0].ID)
	assert.Equal(t, "s1", hits[1].ID)

	assert.Empty(t, catalog.StopsNear(-1.2830, 36.8145, 0))
}
