package app

import (
	"log/slog"

	"tripcore.ridepulse.org/internal/appconf"
	"tripcore.ridepulse.org/internal/clock"
	"tripcore.ridepulse.org/internal/coord"
	"tripcore.ridepulse.org/internal/fleet"
	"tripcore.ridepulse.org/internal/metrics"
	"tripcore.ridepulse.org/internal/relay"
	"tripcore.ridepulse.org/tripdb"
)

// Application holds the dependencies shared by HTTP handlers, the websocket
// gateway, and middleware.
type Application struct {
	Config      appconf.Config
	Logger      *slog.Logger
	Clock       clock.Clock
	Metrics     *metrics.Metrics
	TripDB      *tripdb.Client
	Catalog     *fleet.Catalog
	Coordinator *coord.Coordinator

	// Relay is non-nil only when a NATS URL was configured; kept concrete
	// here so shutdown can drain it.
	Relay *relay.NATSRelay
}
