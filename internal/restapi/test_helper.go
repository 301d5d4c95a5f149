// test_helper.go contains the shared fixture for handler integration
// tests: an in-memory trip store seeded with one trip, a live coordinator,
// and a fully routed test server.
package restapi

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tripcore.ridepulse.org/internal/app"
	"tripcore.ridepulse.org/internal/appconf"
	"tripcore.ridepulse.org/internal/clock"
	"tripcore.ridepulse.org/internal/coord"
	"tripcore.ridepulse.org/internal/fleet"
	"tripcore.ridepulse.org/internal/models"
	"tripcore.ridepulse.org/tripdb"
)

const testAPIKey = "test-key"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	client, err := tripdb.NewClient(tripdb.NewConfig(":memory:", appconf.Test, false))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	seedTestTrip(t, client)

	logger := slog.New(slog.DiscardHandler)
	clk := clock.RealClock{}
	catalog := fleet.NewCatalog(client, clk, logger)
	require.NoError(t, catalog.BuildStopIndex(context.Background()))

	cfg := appconf.Config{
		Env:     appconf.Test,
		ApiKeys: []string{testAPIKey},
	}.WithDefaults()

	coordinator := coord.NewCoordinator(coord.Options{
		HoldTTL:       cfg.HoldTTL,
		SweepInterval: cfg.SweepInterval,
		StaleAfter:    cfg.StaleAfter,
		RoomIdleAfter: cfg.RoomIdleAfter,
	}, catalog, catalog, nil, clk, logger, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = coordinator.Shutdown(ctx)
	})

	api := NewRestAPI(&app.Application{
		Config:      cfg,
		Logger:      logger,
		Clock:       clk,
		TripDB:      client,
		Catalog:     catalog,
		Coordinator: coordinator,
	})

	mux := http.NewServeMux()
	api.SetRoutes(mux)
	server := httptest.NewServer(RequestIDMiddleware(mux))
	t.Cleanup(server.Close)
	return server
}

func seedTestTrip(t *testing.T, client *tripdb.Client) {
	t.Helper()
	ctx := context.Background()
	q := client.Queries

	require.NoError(t, q.UpsertRoute(ctx, "route-1", "CBD - Airport"))
	require.NoError(t, q.ReplaceStops(ctx, "route-1", []models.Stop{
		{ID: "s0", Name: "Central Station", Lat: -1.2850, Lon: 36.8200, ArrivalOffsetMin: 0},
		{ID: "s1", Name: "Bellevue", Lat: -1.3050, Lon: 36.8450, ArrivalOffsetMin: 20},
		{ID: "s2", Name: "Airport", Lat: -1.3190, Lon: 36.9278, ArrivalOffsetMin: 50},
	}))
	require.NoError(t, q.UpsertVehicle(ctx, models.Vehicle{ID: "bus-1", SeatCount: 40, ServiceClass: "standard"}))
	require.NoError(t, q.UpsertTrip(ctx, "trip-1", "route-1", "bus-1",
		time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)))
}
