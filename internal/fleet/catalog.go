// Package fleet is the boundary to the trip/route/vehicle storage
// collaborator. It serves read-only trip views to the coordination core,
// persists committed bookings, decodes route shapes supplied by the
// map-routing collaborator, and maintains a spatial index over stops.
package fleet

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tripcore.ridepulse.org/internal/clock"
	"tripcore.ridepulse.org/internal/models"
	"tripcore.ridepulse.org/tripdb"
)

// Catalog caches route and vehicle data per trip. Booked seats are always
// read fresh from the store so a recreated trip room starts from the durable
// state, per the crash-recovery decision: holds are lost on crash, bookings
// are not.
type Catalog struct {
	db     *tripdb.Client
	clock  clock.Clock
	logger *slog.Logger

	mu     sync.RWMutex
	cached map[string]*cachedTrip

	stopIndex *StopIndex
}

type cachedTrip struct {
	route     *models.Route
	vehicle   models.Vehicle
	departure time.Time
}

func NewCatalog(db *tripdb.Client, clk clock.Clock, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		db:        db,
		clock:     clk,
		logger:    logger.With(slog.String("component", "fleet_catalog")),
		cached:    make(map[string]*cachedTrip),
		stopIndex: NewStopIndex(),
	}
}

// TripDetails returns the read-only trip view used to seed a trip room.
// Route and vehicle come from the cache after first load; the booked-seat
// set is read from the store on every call.
func (c *Catalog) TripDetails(ctx context.Context, tripID string) (*models.Trip, error) {
	c.mu.RLock()
	entry := c.cached[tripID]
	c.mu.RUnlock()

	if entry == nil {
		trip, err := c.db.Queries.GetTrip(ctx, tripID)
		if err != nil {
			return nil, err
		}
		if err := c.attachShape(ctx, trip.Route); err != nil {
			// A missing or corrupt shape only degrades progress display,
			// it never blocks the trip.
			c.logger.Warn("failed to load route shape",
				slog.String("route_id", trip.Route.ID), slog.Any("error", err))
		}
		entry = &cachedTrip{
			route:     trip.Route,
			vehicle:   trip.Vehicle,
			departure: trip.Departure,
		}
		c.mu.Lock()
		c.cached[tripID] = entry
		c.mu.Unlock()

		return trip, nil
	}

	booked, err := c.db.Queries.GetBookedSeats(ctx, tripID)
	if err != nil {
		return nil, err
	}
	return &models.Trip{
		ID:          tripID,
		Route:       entry.route,
		Vehicle:     entry.vehicle,
		Departure:   entry.departure,
		BookedSeats: booked,
	}, nil
}

// PersistBookings durably records a committed seat set. Called synchronously
// inside the commit operation, before the commit is acknowledged.
func (c *Catalog) PersistBookings(ctx context.Context, tripID string, seats []int, holderID string) error {
	return c.db.Queries.InsertBookings(ctx, tripID, seats, holderID, c.clock.Now())
}

// Invalidate drops the cached route/vehicle view of a trip, forcing the next
// TripDetails to reload from the store.
func (c *Catalog) Invalidate(tripID string) {
	c.mu.Lock()
	delete(c.cached, tripID)
	c.mu.Unlock()
}

// BuildStopIndex (re)builds the spatial stop index from the store.
func (c *Catalog) BuildStopIndex(ctx context.Context) error {
	stops, err := c.db.Queries.ListAllStops(ctx)
	if err != nil {
		return fmt.Errorf("listing stops for index: %w", err)
	}
	index := NewStopIndex()
	for _, s := range stops {
		index.Insert(s)
	}
	c.mu.Lock()
	c.stopIndex = index
	c.mu.Unlock()

	c.logger.Info("stop index built", slog.Int("stops", index.Len()))
	return nil
}

// StopsNear returns the stops within radiusMeters of (lat, lon), closest
// first.
func (c *Catalog) StopsNear(lat, lon, radiusMeters float64) []StopHit {
	c.mu.RLock()
	index := c.stopIndex
	c.mu.RUnlock()
	return index.Near(lat, lon, radiusMeters)
}
