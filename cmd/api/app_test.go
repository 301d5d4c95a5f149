package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3" // CGo-based SQLite driver
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripcore.ridepulse.org/internal/app"
	"tripcore.ridepulse.org/internal/appconf"
)

func TestParseAPIKeys(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "Single key",
			input:    "test-key",
			expected: []string{"test-key"},
		},
		{
			name:     "Multiple keys",
			input:    "key1,key2,key3",
			expected: []string{"key1", "key2", "key3"},
		},
		{
			name:     "Keys with spaces",
			input:    " key1 , key2 , key3 ",
			expected: []string{"key1", "key2", "key3"},
		},
		{
			name:     "Empty string",
			input:    "",
			expected: []string{},
		},
		{
			name:     "Trailing comma",
			input:    "key1,",
			expected: []string{"key1", ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseAPIKeys(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func testConfig() appconf.Config {
	return appconf.Config{
		Port:      4000,
		Env:       appconf.Test,
		ApiKeys:   []string{"test"},
		Verbose:   false,
		RateLimit: 100,
		DBPath:    ":memory:",
	}.WithDefaults()
}

func buildTestApplication(t *testing.T, cfg appconf.Config) *app.Application {
	t.Helper()
	coreApp, err := BuildApplication(cfg)
	require.NoError(t, err, "BuildApplication should not return an error")
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = coreApp.Coordinator.Shutdown(ctx)
		coreApp.Metrics.Shutdown()
		_ = coreApp.TripDB.Close()
	})
	return coreApp
}

func TestBuildApplicationWithMemoryDB(t *testing.T) {
	cfg := testConfig()
	coreApp := buildTestApplication(t, cfg)

	assert.NotNil(t, coreApp.Logger, "Logger should be initialized")
	assert.NotNil(t, coreApp.TripDB, "Trip store should be initialized")
	assert.NotNil(t, coreApp.Catalog, "Catalog should be initialized")
	assert.NotNil(t, coreApp.Coordinator, "Coordinator should be initialized")
	assert.Nil(t, coreApp.Relay, "Relay should be nil without a NATS URL")
	assert.Equal(t, cfg, coreApp.Config, "Config should match input")
}

func TestBuildApplicationErrorHandling(t *testing.T) {
	t.Run("handles invalid GTFS path", func(t *testing.T) {
		cfg := testConfig()
		cfg.GTFSStaticPath = "/nonexistent/path/to/gtfs.zip"

		_, err := BuildApplication(cfg)
		assert.Error(t, err, "Should return error for invalid GTFS path")
		assert.Contains(t, err.Error(), "failed to import GTFS static data")
	})
}

func TestCreateServer(t *testing.T) {
	cfg := testConfig()
	cfg.Port = 8080
	coreApp := buildTestApplication(t, cfg)

	srv, rateLimiter := CreateServer(coreApp, cfg)
	defer rateLimiter.Stop()

	assert.NotNil(t, srv, "Server should not be nil")
	assert.Equal(t, ":8080", srv.Addr, "Server address should match port")
	assert.NotNil(t, srv.Handler, "Server handler should be set")
	assert.Equal(t, time.Minute, srv.IdleTimeout, "IdleTimeout should be 1 minute")
	assert.Equal(t, 5*time.Second, srv.ReadTimeout, "ReadTimeout should be 5 seconds")
	assert.Equal(t, 10*time.Second, srv.WriteTimeout, "WriteTimeout should be 10 seconds")
}

func TestCreateServerHandlerResponds(t *testing.T) {
	cfg := testConfig()
	coreApp := buildTestApplication(t, cfg)

	srv, rateLimiter := CreateServer(coreApp, cfg)
	defer rateLimiter.Stop()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/current-time?key=test", nil)
	w := httptest.NewRecorder()

	srv.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code, "current-time should respond with a valid key")

	req = httptest.NewRequest(http.MethodGet, "/api/v1/current-time", nil)
	w = httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code, "missing API key should be rejected")
}

func TestCreateServerShutdownCleanly(t *testing.T) {
	cfg := testConfig()
	cfg.Port = 0
	coreApp := buildTestApplication(t, cfg)

	srv, rateLimiter := CreateServer(coreApp, cfg)
	defer rateLimiter.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	err := srv.Shutdown(shutdownCtx)
	assert.NoError(t, err, "Server shutdown should succeed")
}
