// Package models defines the domain and wire types shared by the trip
// coordination core: trips and their route geometry, location samples,
// derived progress snapshots, and the event payloads pushed to clients.
package models

import (
	"time"
)

// Location is a WGS84 coordinate as it appears on the wire.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Stop is one entry in a route's ordered stop list. ArrivalOffsetMin is the
// scheduled arrival at this stop, in minutes after trip departure.
type Stop struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Lat              float64 `json:"lat"`
	Lon              float64 `json:"lon"`
	ArrivalOffsetMin int     `json:"arrivalOffsetMin"`
}

// Route is an ordered stop list plus optional road geometry supplied by
// the external map-routing collaborator (decoded from an encoded polyline).
type Route struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Stops []Stop     `json:"stops"`
	Shape []Location `json:"shape,omitempty"`
}

// Vehicle carries the seat inventory bounds for a trip.
type Vehicle struct {
	ID           string `json:"id"`
	SeatCount    int    `json:"seatCount"`
	ServiceClass string `json:"serviceClass"`
}

// Trip is the read-only trip view the core receives from storage. The
// booked-seat set is the one part the core mutates, and only through the
// commit operation of its owning trip room.
type Trip struct {
	ID          string    `json:"id"`
	Route       *Route    `json:"route"`
	Vehicle     Vehicle   `json:"vehicle"`
	Departure   time.Time `json:"departure"`
	BookedSeats []int     `json:"bookedSeats"`
}

// LocationSample is one position report from a trip's publisher. SpeedKPH is
// nil when the device did not report speed; the hub then derives it from the
// delta to the previous sample.
type LocationSample struct {
	TripID    string    `json:"tripId"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	SpeedKPH  *float64  `json:"speedKph,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StopStatus classifies a stop relative to the vehicle's nearest stop.
type StopStatus string

const (
	StopPassed   StopStatus = "passed"
	StopCurrent  StopStatus = "current"
	StopNext     StopStatus = "next"
	StopUpcoming StopStatus = "upcoming"
)

// StopProgress annotates one stop with its classification and, for stops the
// vehicle has not reached, a schedule-derived ETA. ETA is nil when the
// computed time would lie in the past (schedule drift) or the stop is behind
// the vehicle.
type StopProgress struct {
	Stop   Stop       `json:"stop"`
	Status StopStatus `json:"status"`
	ETA    *time.Time `json:"eta,omitempty"`
}

// ProgressSnapshot is the derived progress view for a trip at a point in
// time. It is recomputed on every location sample and never cached beyond
// the push that carries it.
type ProgressSnapshot struct {
	NearestStopIndex int            `json:"nearestStopIndex"`
	Stops            []StopProgress `json:"stops"`
	RemainingMeters  float64        `json:"remainingMeters"`
	SpeedKPH         float64        `json:"speedKph"`
	DestinationETA   *time.Time     `json:"destinationEta,omitempty"`
	Arrived          bool           `json:"arrived"`
}

// TrackingPhase is the lifecycle of a trip's tracking channel.
type TrackingPhase string

const (
	PhaseNoSamplesYet TrackingPhase = "no_samples_yet"
	PhaseTracking     TrackingPhase = "tracking"
	PhaseStale        TrackingPhase = "stale"
)

// SeatStatus is the seat-selection channel payload: the authoritative booked
// set plus the currently held (soft-locked) seats.
type SeatStatus struct {
	TripID      string `json:"tripId"`
	BookedSeats []int  `json:"bookedSeats"`
	HeldSeats   []int  `json:"heldSeats"`
}

// TrackingState is the tracking channel payload, used both for live pushes
// and for bootstrapping late joiners. HasData is false before the first
// publish; everything else is zero-valued in that case.
type TrackingState struct {
	TripID    string            `json:"tripId"`
	HasData   bool              `json:"hasData"`
	Phase     TrackingPhase     `json:"phase"`
	Location  *Location         `json:"location,omitempty"`
	SpeedKPH  float64           `json:"speedKph,omitempty"`
	Progress  *ProgressSnapshot `json:"progress,omitempty"`
	Stale     bool              `json:"stale"`
	Timestamp int64             `json:"timestamp,omitempty"`
}
