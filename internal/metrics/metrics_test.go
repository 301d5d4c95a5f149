package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersAllMetrics(t *testing.T) {
	m := New()
	require.NotNil(t, m.Registry)

	m.HTTPRequestsTotal.WithLabelValues("GET", "/health", "200").Inc()
	m.ActiveRooms.Set(3)
	m.ActiveHolds.Set(7)
	m.CommitsTotal.WithLabelValues("ok").Inc()
	m.HoldRequestsTotal.WithLabelValues("rejected").Inc()
	m.LocationUpdatesTotal.Inc()
	m.StaleSamplesDropped.Inc()
	m.BroadcastsTotal.WithLabelValues("tracking").Inc()
	m.Subscribers.WithLabelValues("seat_selection").Set(2)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.ActiveRooms))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.ActiveHolds))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommitsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LocationUpdatesTotal))

	families, err := m.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestStartDBStatsCollector_NilDBIsNoOp(t *testing.T) {
	m := New()
	m.StartDBStatsCollector(nil, time.Millisecond)
	m.Shutdown()
}

func TestShutdown_Idempotent(t *testing.T) {
	m := New()
	m.Shutdown()
	m.Shutdown()
}
