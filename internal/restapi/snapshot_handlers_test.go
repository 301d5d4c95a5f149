package restapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestSeatStatusSnapshot(t *testing.T) {
	server := newTestServer(t)

	resp := postBookingIntent(t, server.URL, "trip-1", map[string]any{
		"seatNumbers": []int{7},
		"holderId":    "alice",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = get(t, fmt.Sprintf("%s/api/v1/trips/trip-1/seat-status?key=%s", server.URL, testAPIKey))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := decodeData(t, resp)
	assert.Equal(t, []any{float64(7)}, data["bookedSeats"])
	assert.Empty(t, data["heldSeats"])
}

func TestSeatStatusUnknownTrip(t *testing.T) {
	server := newTestServer(t)

	resp := get(t, fmt.Sprintf("%s/api/v1/trips/ghost/seat-status?key=%s", server.URL, testAPIKey))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTrackingSnapshotNoData(t *testing.T) {
	server := newTestServer(t)

	resp := get(t, fmt.Sprintf("%s/api/v1/trips/trip-1/tracking?key=%s", server.URL, testAPIKey))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := decodeData(t, resp)
	assert.Equal(t, false, data["hasData"])
	assert.Equal(t, "no_samples_yet", data["phase"])
}

func TestStopsForLocation(t *testing.T) {
	server := newTestServer(t)

	// Centered on the seeded Central Station stop.
	resp := get(t, fmt.Sprintf("%s/api/v1/stops-for-location?key=%s&lat=-1.2851&lon=36.8201&radius=500",
		server.URL, testAPIKey))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	hits, ok := envelope["data"].([]any)
	require.True(t, ok)
	require.Len(t, hits, 1)
	hit := hits[0].(map[string]any)
	assert.Equal(t, "Central Station", hit["name"])
}

func TestStopsForLocationValidation(t *testing.T) {
	server := newTestServer(t)

	tests := []struct {
		name  string
		query string
	}{
		{"missing lat", "lon=36.82"},
		{"lat out of range", "lat=120&lon=36.82"},
		{"bad radius", "lat=-1.28&lon=36.82&radius=-5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := get(t, fmt.Sprintf("%s/api/v1/stops-for-location?key=%s&%s", server.URL, testAPIKey, tt.query))
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t)

	resp := get(t, server.URL+"/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
}

func TestCurrentTime(t *testing.T) {
	server := newTestServer(t)

	resp := get(t, fmt.Sprintf("%s/api/v1/current-time?key=%s", server.URL, testAPIKey))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := decodeData(t, resp)
	assert.NotEmpty(t, data["readableTime"])
	assert.Greater(t, data["time"].(float64), 0.0)
}
