// Package coord implements the real-time trip coordination core: per-trip
// seat holds with TTL expiry and atomic commit, subscriber rooms for the
// seat-selection and tracking channels, and the last-value location hub.
//
// Safety comes from a single-writer-per-trip actor: every mutating
// operation on a trip (hold, release, commit, publish, subscribe, sweep,
// disconnect, eviction) executes on that trip's owning goroutine in
// acceptance order. Trips are fully independent; the only cross-trip state
// is the registry map. A failed room takes down one trip and is recreated
// lazily from durable state on next access.
package coord

import (
	"context"
	"errors"

	"tripcore.ridepulse.org/internal/models"
)

// ChannelKind selects one of a trip room's two subscriber channels.
type ChannelKind string

const (
	ChannelSeatSelection ChannelKind = "seat_selection"
	ChannelTracking      ChannelKind = "tracking"
)

var (
	// ErrShutdown is returned once the coordinator has been shut down.
	ErrShutdown = errors.New("coordinator is shut down")

	// ErrRoomFailed indicates the trip's owning task failed while the
	// operation was queued. The room is recreated lazily on next access.
	ErrRoomFailed = errors.New("trip room failed")

	// ErrSeatOutOfRange rejects seat numbers outside 1..seatCount. This is
	// a validation failure, distinct from contention, and is surfaced
	// synchronously to the caller.
	ErrSeatOutOfRange = errors.New("seat number outside vehicle capacity")
)

// Subscriber is a connection that receives room pushes. Deliver must not
// block: implementations enqueue into a bounded buffer and return an error
// when the connection is gone or too slow, at which point the room reaps it.
type Subscriber interface {
	ID() string
	Deliver(event Event) error
}

// Event is a payload pushed to subscribers. Exactly one state field is set,
// matching Kind. Bootstrap marks the snapshot delivered at subscribe time;
// it is pushed on the room goroutine before any later broadcast, so a
// subscriber's queue never shows a newer sample ahead of its bootstrap.
type Event struct {
	Kind       ChannelKind
	Bootstrap  bool
	SeatStatus *models.SeatStatus
	Tracking   *models.TrackingState
}

// TripSource supplies read-only trip views from storage. Implemented by
// fleet.Catalog.
type TripSource interface {
	TripDetails(ctx context.Context, tripID string) (*models.Trip, error)
}

// BookingStore durably records committed seat sets. The commit operation
// calls it synchronously and only acknowledges after the write succeeds.
type BookingStore interface {
	PersistBookings(ctx context.Context, tripID string, seats []int, holderID string) error
}

// LocationRelay mirrors accepted location broadcasts to an external bus for
// other backend consumers. Best-effort; failures are logged, never surfaced.
type LocationRelay interface {
	RelayLocation(state models.TrackingState)
}

// HoldResult is the per-seat outcome of a hold request. Contention is a
// first-class result, never an error: Accepted false with HeldBy names the
// competing holder, Accepted false with empty HeldBy means the seat is
// already booked.
type HoldResult struct {
	Seat     int    `json:"seat"`
	Accepted bool   `json:"accepted"`
	HeldBy   string `json:"heldBy,omitempty"`
}

// CommitResult is the all-or-nothing outcome of a booking commit.
type CommitResult struct {
	OK          bool  `json:"ok"`
	FailedSeats []int `json:"failedSeats,omitempty"`
}

// PublishResult reports whether a location sample was authorized and whether
// it actually advanced the cached last value. A stale-but-late sample is
// accepted but not applied.
type PublishResult struct {
	Accepted bool
	Applied  bool
}
