// Package metrics provides Prometheus metrics for the tripcore server.
package metrics

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Registry is the Prometheus registry for this metrics instance
	Registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Coordination core metrics
	ActiveRooms          prometheus.Gauge
	ActiveHolds          prometheus.Gauge
	Subscribers          *prometheus.GaugeVec
	HoldRequestsTotal    *prometheus.CounterVec
	CommitsTotal         *prometheus.CounterVec
	LocationUpdatesTotal prometheus.Counter
	StaleSamplesDropped  prometheus.Counter
	BroadcastsTotal      *prometheus.CounterVec

	// Database metrics
	DBConnectionsOpen  prometheus.Gauge
	DBConnectionsInUse prometheus.Gauge
	DBConnectionsIdle  prometheus.Gauge
	DBWaitSecondsTotal prometheus.Counter

	// logger for error reporting
	logger *slog.Logger

	// collectorStarted prevents spawning multiple collector goroutines
	collectorStarted atomic.Bool

	// cancel stops the DB stats collector goroutine
	cancel context.CancelFunc

	// wg tracks the DB stats collector goroutine for graceful shutdown
	wg sync.WaitGroup
}

// New creates and registers all application metrics with a new registry.
func New() *Metrics {
	return NewWithLogger(nil)
}

// NewWithLogger creates metrics with a logger for error reporting.
func NewWithLogger(logger *slog.Logger) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		logger:   logger,

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tripcore_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tripcore_http_request_duration_seconds",
				Help:    "HTTP request latency distribution",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tripcore_active_trip_rooms",
			Help: "Number of live trip rooms",
		}),
		ActiveHolds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tripcore_active_seat_holds",
			Help: "Number of unexpired seat holds across all trips",
		}),
		Subscribers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tripcore_room_subscribers",
			Help: "Connected subscribers per channel kind",
		}, []string{"channel"}),
		HoldRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tripcore_hold_requests_total",
			Help: "Seat hold requests by outcome",
		}, []string{"result"}),
		CommitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tripcore_commits_total",
			Help: "Booking commit attempts by outcome",
		}, []string{"result"}),
		LocationUpdatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tripcore_location_updates_total",
			Help: "Accepted location samples",
		}),
		StaleSamplesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tripcore_stale_samples_dropped_total",
			Help: "Location samples discarded for having an older timestamp than the cached sample",
		}),
		BroadcastsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tripcore_broadcasts_total",
			Help: "Room broadcasts by channel kind",
		}, []string{"channel"}),

		DBConnectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tripcore_db_connections_open",
			Help: "Number of open database connections",
		}),
		DBConnectionsInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tripcore_db_connections_in_use",
			Help: "Number of database connections currently in use",
		}),
		DBConnectionsIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tripcore_db_connections_idle",
			Help: "Number of idle database connections",
		}),
		DBWaitSecondsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tripcore_db_wait_seconds_total",
			Help: "Total time blocked waiting for a database connection",
		}),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ActiveRooms,
		m.ActiveHolds,
		m.Subscribers,
		m.HoldRequestsTotal,
		m.CommitsTotal,
		m.LocationUpdatesTotal,
		m.StaleSamplesDropped,
		m.BroadcastsTotal,
		m.DBConnectionsOpen,
		m.DBConnectionsInUse,
		m.DBConnectionsIdle,
		m.DBWaitSecondsTotal,
	)

	return m
}

// StartDBStatsCollector starts a goroutine that periodically collects database
// connection pool statistics and updates the corresponding metrics.
// This method is idempotent - calling it multiple times has no effect after
// the first call. Call Shutdown() to stop the collector.
func (m *Metrics) StartDBStatsCollector(db *sql.DB, interval time.Duration) {
	if db == nil {
		return
	}

	if !m.collectorStarted.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	var lastWaitDuration time.Duration

	// Add to WaitGroup BEFORE exposing cancel to avoid race with Shutdown
	m.wg.Add(1)
	m.cancel = cancel

	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				if m.logger != nil {
					m.logger.Error("panic in DB stats collector", "error", r)
				}
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				stats := db.Stats()
				m.DBConnectionsOpen.Set(float64(stats.OpenConnections))
				m.DBConnectionsInUse.Set(float64(stats.InUse))
				m.DBConnectionsIdle.Set(float64(stats.Idle))

				// Add the delta of wait duration since last check
				waitDelta := stats.WaitDuration - lastWaitDuration
				if waitDelta > 0 {
					m.DBWaitSecondsTotal.Add(waitDelta.Seconds())
				}
				lastWaitDuration = stats.WaitDuration

			case <-ctx.Done():
				return
			}
		}
	}()
}

// Shutdown stops the DB stats collector goroutine and waits for it to exit.
// This method is safe to call multiple times.
func (m *Metrics) Shutdown() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}
