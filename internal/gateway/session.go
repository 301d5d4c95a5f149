package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tripcore.ridepulse.org/internal/auth"
	"tripcore.ridepulse.org/internal/coord"
	"tripcore.ridepulse.org/internal/models"
	"tripcore.ridepulse.org/tripdb"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	// sendBuffer bounds the per-connection outbound queue. A subscriber
	// that cannot drain this many events is too slow and gets reaped.
	sendBuffer = 64

	opTimeout = 10 * time.Second
)

var errSendBufferFull = errors.New("session send buffer full")

// session is one websocket connection. It implements coord.Subscriber; the
// room pushes land in the send buffer and the write pump drains them.
type session struct {
	id       string
	holderID string
	ident    auth.Identity
	conn     *websocket.Conn
	gw       *Gateway
	logger   *slog.Logger

	send      chan []byte
	closeOnce sync.Once
	closed    chan struct{}

	mu    sync.Mutex
	trips map[string]struct{}
}

func (s *session) ID() string { return s.id }

// Deliver implements coord.Subscriber. It must not block: a full buffer
// returns an error so the room reaps this connection. Tracking bootstraps
// go out as tracking_state, live pushes as new_location; the seat channel
// uses seat_status for both.
func (s *session) Deliver(event coord.Event) error {
	var payload any
	switch event.Kind {
	case coord.ChannelSeatSelection:
		payload = SeatStatusMessage{Type: msgSeatStatus, SeatStatus: event.SeatStatus}
	case coord.ChannelTracking:
		if event.Bootstrap {
			payload = TrackingStateMessage{Type: msgTrackingState, TrackingState: event.Tracking}
		} else {
			payload = NewLocationMessage{Type: msgNewLocation, TrackingState: event.Tracking}
		}
	default:
		return fmt.Errorf("unknown event kind %q", event.Kind)
	}
	return s.enqueue(payload)
}

func (s *session) enqueue(payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	select {
	case s.send <- b:
		return nil
	case <-s.closed:
		return errors.New("session closed")
	default:
		return errSendBufferFull
	}
}

func (s *session) sendError(code, message string) {
	if err := s.enqueue(ErrorMessage{Type: msgError, Code: code, Message: message}); err != nil {
		s.logger.Debug("dropping error event", slog.Any("error", err))
	}
}

// touchedTrip records the trip for disconnect cleanup.
func (s *session) touchedTrip(tripID string) {
	s.mu.Lock()
	s.trips[tripID] = struct{}{}
	s.mu.Unlock()
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.conn.Close()

		s.mu.Lock()
		trips := make([]string, 0, len(s.trips))
		for tripID := range s.trips {
			trips = append(trips, tripID)
		}
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		for _, tripID := range trips {
			if err := s.gw.coordinator.Disconnect(ctx, tripID, s.id, s.holderID); err != nil {
				s.logger.Warn("disconnect cleanup failed",
					slog.String("trip_id", tripID), slog.Any("error", err))
			}
		}
	})
}

func (s *session) readPump() {
	defer s.close()
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(s.gw.clock.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(s.gw.clock.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read failed", slog.Any("error", err))
			}
			return
		}
		s.handle(raw)
	}
}

func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case b, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(s.gw.clock.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(s.gw.clock.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.closed:
			return
		}
	}
}

// handle dispatches one inbound message. Rejections go back as error
// events; the connection stays open unless the transport itself fails.
func (s *session) handle(raw []byte) {
	msg, err := parseInbound(raw)
	if err != nil {
		s.sendError(errCodeMalformed, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	switch msg.Type {
	case msgSubscribeSeats:
		s.subscribe(ctx, msg.TripID, coord.ChannelSeatSelection)
	case msgUnsubscribeSeats:
		s.gw.coordinator.Unsubscribe(msg.TripID, coord.ChannelSeatSelection, s.id)
	case msgSubscribeTracking:
		s.subscribe(ctx, msg.TripID, coord.ChannelTracking)
	case msgUnsubscribeTracking:
		s.gw.coordinator.Unsubscribe(msg.TripID, coord.ChannelTracking, s.id)
	case msgHoldSeats:
		s.holdSeats(ctx, msg)
	case msgReleaseSeats:
		if err := s.gw.coordinator.ReleaseSeats(ctx, msg.TripID, msg.SeatNumbers, s.holderID); err != nil {
			s.sendCoordError(msg.TripID, err)
		}
	case msgDriverLocationUpdate:
		s.publishLocation(ctx, msg)
	default:
		s.sendError(errCodeUnknownType, fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

// subscribe joins the channel; the room pushes the bootstrap through
// Deliver before Subscribe returns, so it reaches the client ahead of any
// concurrent broadcast.
func (s *session) subscribe(ctx context.Context, tripID string, kind coord.ChannelKind) {
	if err := s.gw.coordinator.Subscribe(ctx, tripID, kind, s); err != nil {
		s.sendCoordError(tripID, err)
		return
	}
	s.touchedTrip(tripID)
}

func (s *session) holdSeats(ctx context.Context, msg inboundMessage) {
	if len(msg.SeatNumbers) == 0 {
		s.sendError(errCodeValidation, "hold_seats requires seatNumbers")
		return
	}
	results, err := s.gw.coordinator.HoldSeats(ctx, msg.TripID, msg.SeatNumbers, s.holderID)
	if err != nil {
		s.sendCoordError(msg.TripID, err)
		return
	}
	s.touchedTrip(msg.TripID)
	if err := s.enqueue(HoldResultMessage{Type: msgHoldResult, TripID: msg.TripID, Results: results}); err != nil {
		s.logger.Debug("dropping hold result", slog.Any("error", err))
	}
}

func (s *session) publishLocation(ctx context.Context, msg inboundMessage) {
	if msg.Lat == nil || msg.Lon == nil {
		s.sendError(errCodeValidation, "driver_location_update requires lat and lon")
		return
	}

	timestamp := s.gw.clock.Now()
	if msg.Timestamp != nil {
		timestamp = time.UnixMilli(*msg.Timestamp)
	}
	sample := models.LocationSample{
		TripID:    msg.TripID,
		Lat:       *msg.Lat,
		Lon:       *msg.Lon,
		SpeedKPH:  msg.SpeedKPH,
		Timestamp: timestamp,
	}

	result, err := s.gw.coordinator.Publish(ctx, msg.TripID, s.ident, sample)
	if err != nil {
		s.sendCoordError(msg.TripID, err)
		return
	}
	if !result.Accepted {
		s.sendError(errCodeUnauthorized, "not an authorized publisher for this trip")
	}
}

func (s *session) sendCoordError(tripID string, err error) {
	switch {
	case errors.Is(err, tripdb.ErrTripNotFound):
		s.sendError(errCodeTripNotFound, fmt.Sprintf("trip %s not found", tripID))
	case errors.Is(err, coord.ErrSeatOutOfRange):
		s.sendError(errCodeValidation, err.Error())
	default:
		s.logger.Error("coordinator operation failed",
			slog.String("trip_id", tripID), slog.Any("error", err))
		s.sendError(errCodeInternal, "operation failed")
	}
}
