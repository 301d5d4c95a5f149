package gateway

import (
	"encoding/json"
	"fmt"

	"tripcore.ridepulse.org/internal/coord"
	"tripcore.ridepulse.org/internal/models"
)

// Inbound message types. The set is closed: anything else is rejected with
// an error event, never silently ignored.
const (
	msgSubscribeSeats       = "subscribe_seats"
	msgUnsubscribeSeats     = "unsubscribe_seats"
	msgHoldSeats            = "hold_seats"
	msgReleaseSeats         = "release_seats"
	msgSubscribeTracking    = "subscribe_tracking"
	msgUnsubscribeTracking  = "unsubscribe_tracking"
	msgDriverLocationUpdate = "driver_location_update"
)

// Outbound message types.
const (
	msgSeatStatus    = "seat_status"
	msgTrackingState = "tracking_state"
	msgNewLocation   = "new_location"
	msgHoldResult    = "hold_result"
	msgError         = "error"
)

// Error codes carried on error events.
const (
	errCodeMalformed    = "malformed_message"
	errCodeUnknownType  = "unknown_type"
	errCodeValidation   = "validation_failed"
	errCodeTripNotFound = "trip_not_found"
	errCodeUnauthorized = "not_authorized"
	errCodeInternal     = "internal_error"
)

// inboundMessage is the union of all client-to-server messages; Type
// selects which fields are meaningful.
type inboundMessage struct {
	Type        string   `json:"type"`
	TripID      string   `json:"tripId"`
	SeatNumbers []int    `json:"seatNumbers,omitempty"`
	Lat         *float64 `json:"lat,omitempty"`
	Lon         *float64 `json:"lon,omitempty"`
	SpeedKPH    *float64 `json:"speedKph,omitempty"`
	Timestamp   *int64   `json:"timestamp,omitempty"`
}

func parseInbound(raw []byte) (inboundMessage, error) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return inboundMessage{}, fmt.Errorf("parsing message: %w", err)
	}
	if msg.TripID == "" {
		return inboundMessage{}, fmt.Errorf("message has no tripId")
	}
	return msg, nil
}

// SeatStatusMessage carries the booked and held seat sets, sent both as a
// direct subscribe reply and as a room broadcast.
type SeatStatusMessage struct {
	Type string `json:"type"` // "seat_status"
	*models.SeatStatus
}

// TrackingStateMessage bootstraps a tracking subscriber with the last known
// state, or HasData=false when nothing was published yet.
type TrackingStateMessage struct {
	Type string `json:"type"` // "tracking_state"
	*models.TrackingState
}

// NewLocationMessage is the live push on every applied location sample (and
// on the transition to stale).
type NewLocationMessage struct {
	Type string `json:"type"` // "new_location"
	*models.TrackingState
}

// HoldResultMessage is the direct per-seat reply to hold_seats. The room
// broadcast of the updated held set goes out separately as seat_status.
type HoldResultMessage struct {
	Type    string             `json:"type"` // "hold_result"
	TripID  string             `json:"tripId"`
	Results []coord.HoldResult `json:"results"`
}

// ErrorMessage reports a rejected inbound message.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Code    string `json:"code"`
	Message string `json:"message"`
}
