package tripdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tripcore.ridepulse.org/internal/models"
)

// ErrTripNotFound is returned when a trip ID does not exist in the store.
var ErrTripNotFound = errors.New("trip not found")

// Queries bundles the hand-written SQL used by the core.
type Queries struct {
	db *sql.DB
}

func NewQueries(db *sql.DB) *Queries {
	return &Queries{db: db}
}

// UpsertRoute inserts or replaces a route row.
func (q *Queries) UpsertRoute(ctx context.Context, id, name string) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO routes (id, name) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name`, id, name)
	return err
}

// ReplaceStops atomically replaces the ordered stop list of a route.
func (q *Queries) ReplaceStops(ctx context.Context, routeID string, stops []models.Stop) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM stops WHERE route_id = ?`, routeID); err != nil {
		return err
	}
	for i, s := range stops {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO stops (route_id, seq, id, name, lat, lon, arrival_offset_min)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			routeID, i, s.ID, s.Name, s.Lat, s.Lon, s.ArrivalOffsetMin)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SetRouteShape stores the encoded polyline for a route's road geometry.
func (q *Queries) SetRouteShape(ctx context.Context, routeID, encoded string) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO route_shapes (route_id, encoded) VALUES (?, ?)
		 ON CONFLICT(route_id) DO UPDATE SET encoded = excluded.encoded`, routeID, encoded)
	return err
}

// GetRouteShape returns the encoded polyline for a route, or "" when none
// was supplied by the map-routing collaborator.
func (q *Queries) GetRouteShape(ctx context.Context, routeID string) (string, error) {
	var encoded string
	err := q.db.QueryRowContext(ctx,
		`SELECT encoded FROM route_shapes WHERE route_id = ?`, routeID).Scan(&encoded)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return encoded, err
}

// UpsertVehicle inserts or replaces a vehicle row.
func (q *Queries) UpsertVehicle(ctx context.Context, v models.Vehicle) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO vehicles (id, seat_count, service_class) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET seat_count = excluded.seat_count,
		                               service_class = excluded.service_class`,
		v.ID, v.SeatCount, v.ServiceClass)
	return err
}

// UpsertTrip inserts or replaces a trip row.
func (q *Queries) UpsertTrip(ctx context.Context, tripID, routeID, vehicleID string, departure time.Time) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO trips (id, route_id, vehicle_id, departure) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET route_id = excluded.route_id,
		                               vehicle_id = excluded.vehicle_id,
		                               departure = excluded.departure`,
		tripID, routeID, vehicleID, departure.Unix())
	return err
}

// GetRoute assembles a route with its ordered stop list.
func (q *Queries) GetRoute(ctx context.Context, routeID string) (*models.Route, error) {
	route := &models.Route{ID: routeID}
	err := q.db.QueryRowContext(ctx, `SELECT name FROM routes WHERE id = ?`, routeID).Scan(&route.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("route %q: %w", routeID, sql.ErrNoRows)
	} else if err != nil {
		return nil, err
	}

	rows, err := q.db.QueryContext(ctx,
		`SELECT id, name, lat, lon, arrival_offset_min FROM stops WHERE route_id = ? ORDER BY seq`,
		routeID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var s models.Stop
		if err := rows.Scan(&s.ID, &s.Name, &s.Lat, &s.Lon, &s.ArrivalOffsetMin); err != nil {
			return nil, err
		}
		route.Stops = append(route.Stops, s)
	}
	return route, rows.Err()
}

// GetTrip assembles the full read-only trip view: route with stops, vehicle,
// departure, and the already-committed seat set.
func (q *Queries) GetTrip(ctx context.Context, tripID string) (*models.Trip, error) {
	var routeID, vehicleID string
	var departureUnix int64
	err := q.db.QueryRowContext(ctx,
		`SELECT route_id, vehicle_id, departure FROM trips WHERE id = ?`, tripID).
		Scan(&routeID, &vehicleID, &departureUnix)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTripNotFound
	} else if err != nil {
		return nil, err
	}

	route, err := q.GetRoute(ctx, routeID)
	if err != nil {
		return nil, fmt.Errorf("loading route for trip %q: %w", tripID, err)
	}

	trip := &models.Trip{
		ID:        tripID,
		Route:     route,
		Departure: time.Unix(departureUnix, 0).UTC(),
	}

	err = q.db.QueryRowContext(ctx,
		`SELECT id, seat_count, service_class FROM vehicles WHERE id = ?`, vehicleID).
		Scan(&trip.Vehicle.ID, &trip.Vehicle.SeatCount, &trip.Vehicle.ServiceClass)
	if err != nil {
		return nil, fmt.Errorf("loading vehicle for trip %q: %w", tripID, err)
	}

	trip.BookedSeats, err = q.GetBookedSeats(ctx, tripID)
	if err != nil {
		return nil, err
	}
	return trip, nil
}

// GetBookedSeats returns the committed seat numbers for a trip in order.
func (q *Queries) GetBookedSeats(ctx context.Context, tripID string) ([]int, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT seat FROM bookings WHERE trip_id = ? ORDER BY seat`, tripID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var seats []int
	for rows.Next() {
		var seat int
		if err := rows.Scan(&seat); err != nil {
			return nil, err
		}
		seats = append(seats, seat)
	}
	return seats, rows.Err()
}

// InsertBookings durably records a committed seat set in one transaction.
// The primary key on (trip_id, seat) makes a conflicting write fail as a
// whole, which is the desired all-or-nothing behavior.
func (q *Queries) InsertBookings(ctx context.Context, tripID string, seats []int, holderID string, at time.Time) error {
	if len(seats) == 0 {
		return nil
	}
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, seat := range seats {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO bookings (trip_id, seat, holder_id, created_at) VALUES (?, ?, ?, ?)`,
			tripID, seat, holderID, at.Unix())
		if err != nil {
			return fmt.Errorf("booking seat %d on trip %q: %w", seat, tripID, err)
		}
	}
	return tx.Commit()
}

// ListAllStops returns every stop with its route, used to build the spatial
// stop index at startup.
func (q *Queries) ListAllStops(ctx context.Context) ([]StopRow, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT route_id, id, name, lat, lon FROM stops ORDER BY route_id, seq`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var stops []StopRow
	for rows.Next() {
		var s StopRow
		if err := rows.Scan(&s.RouteID, &s.ID, &s.Name, &s.Lat, &s.Lon); err != nil {
			return nil, err
		}
		stops = append(stops, s)
	}
	return stops, rows.Err()
}

// StopRow is a stop joined with its route, as stored.
type StopRow struct {
	RouteID string  `json:"routeId"`
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}
