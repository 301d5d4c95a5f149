// Package relay mirrors accepted location broadcasts onto a NATS bus so
// other backend consumers (analytics, trip archival) can observe vehicle
// movement without attaching to the websocket gateway.
package relay

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"

	"tripcore.ridepulse.org/internal/models"
)

const subjectPrefix = "tripcore.location"

// NATSRelay publishes tracking states to per-trip subjects. Publishing is
// best-effort: a failure is logged and the in-process broadcast proceeds
// unaffected.
type NATSRelay struct {
	nc     *nats.Conn
	logger *slog.Logger
}

func NewNATSRelay(url string, logger *slog.Logger) (*NATSRelay, error) {
	logger = logger.With(slog.String("component", "relay"))
	nc, err := nats.Connect(url,
		nats.Name("tripcore-api"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			logger.Warn("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("nats connection closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	return &NATSRelay{nc: nc, logger: logger}, nil
}

// RelayLocation implements coord.LocationRelay.
func (r *NATSRelay) RelayLocation(state models.TrackingState) {
	subject := subjectPrefix + "." + subjectToken(state.TripID)
	b, err := json.Marshal(state)
	if err != nil {
		r.logger.Error("failed to marshal tracking state", slog.Any("error", err))
		return
	}
	if err := r.nc.Publish(subject, b); err != nil {
		r.logger.Warn("nats publish failed",
			slog.String("subject", subject), slog.Any("error", err))
	}
}

func (r *NATSRelay) Close() {
	if r.nc != nil {
		_ = r.nc.Drain()
		r.nc.Close()
	}
}

// subjectToken sanitizes an ID for use as a NATS subject token, which
// cannot contain spaces, wildcards, or dots.
func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
