// Package gateway is the websocket session layer: it upgrades connections,
// resolves the caller's identity claim, and routes the closed set of wire
// messages to the coordination core.
package gateway

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"tripcore.ridepulse.org/internal/auth"
	"tripcore.ridepulse.org/internal/clock"
	"tripcore.ridepulse.org/internal/coord"
)

// Gateway owns the websocket endpoint. Authentication is optional:
// anonymous connections can subscribe and hold seats under their generated
// connection identity, but publishing locations requires a verified token
// naming the trip.
type Gateway struct {
	coordinator *coord.Coordinator
	verifier    *auth.Verifier
	clock       clock.Clock
	logger      *slog.Logger
	upgrader    websocket.Upgrader
}

func NewGateway(coordinator *coord.Coordinator, verifier *auth.Verifier, clk clock.Clock, logger *slog.Logger) *Gateway {
	return &Gateway{
		coordinator: coordinator,
		verifier:    verifier,
		clock:       clk,
		logger:      logger.With(slog.String("component", "gateway")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients come from the booking frontend on another
			// origin; access control happens via the identity token.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// HandleWS upgrades the connection and runs its read/write pumps. A token
// that is present but invalid is a hard 401; a missing token yields an
// anonymous subscribe-only identity.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	connID := uuid.NewString()
	ident := auth.Identity{SubjectID: connID}

	if token := r.URL.Query().Get("token"); token != "" {
		verified, err := g.verifier.Verify(token)
		if err != nil {
			g.logger.Warn("rejected websocket with invalid token", slog.Any("error", err))
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		ident = verified
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	s := &session{
		id:       connID,
		holderID: ident.SubjectID,
		ident:    ident,
		conn:     conn,
		gw:       g,
		logger: g.logger.With(
			slog.String("connection_id", connID),
			slog.String("holder_id", ident.SubjectID),
		),
		send:   make(chan []byte, sendBuffer),
		closed: make(chan struct{}),
		trips:  make(map[string]struct{}),
	}
	s.logger.Debug("websocket session opened")

	go s.writePump()
	go s.readPump()
}
