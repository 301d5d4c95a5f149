// Package tripdb is the durable store behind the coordination core: routes,
// stops, vehicles, trips, and the committed booking ledger. The core treats
// its in-memory state as authoritative for holds; booked seats are written
// here synchronously before a commit is acknowledged.
package tripdb

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/mattn/go-sqlite3" // CGo-based SQLite driver
	"tripcore.ridepulse.org/internal/appconf"
)

// Config controls where and how the trip database is opened.
type Config struct {
	DBPath  string
	env     appconf.Environment
	verbose bool
}

// NewConfig creates a Config. Use ":memory:" as the path for tests.
func NewConfig(dbPath string, env appconf.Environment, verbose bool) Config {
	return Config{DBPath: dbPath, env: env, verbose: verbose}
}

// Client is the main entry point for the store.
type Client struct {
	config  Config
	DB      *sql.DB
	Queries *Queries
}

// NewClient opens the database, creates the schema if needed, and returns a
// ready client.
func NewClient(config Config) (*Client, error) {
	db, err := createDB(config)
	if err != nil {
		return nil, fmt.Errorf("unable to create DB: %w", err)
	} else if config.verbose {
		log.Println("Successfully created tables")
	}

	return &Client{
		config:  config,
		DB:      db,
		Queries: NewQueries(db),
	}, nil
}

func (c *Client) Close() error {
	return c.DB.Close()
}

func (c *Client) GetDBPath() string {
	return c.config.DBPath
}

func createDB(config Config) (*sql.DB, error) {
	path := config.DBPath
	if path == "" {
		path = ":memory:"
	}

	// busy_timeout and foreign_keys are set per-connection via the DSN so
	// every pooled connection behaves the same.
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to apply schema: %w", err)
	}

	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS routes (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS stops (
	route_id           TEXT NOT NULL REFERENCES routes(id),
	seq                INTEGER NOT NULL,
	id                 TEXT NOT NULL,
	name               TEXT NOT NULL,
	lat                REAL NOT NULL,
	lon                REAL NOT NULL,
	arrival_offset_min INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (route_id, seq)
);

CREATE TABLE IF NOT EXISTS route_shapes (
	route_id TEXT PRIMARY KEY REFERENCES routes(id),
	encoded  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS vehicles (
	id            TEXT PRIMARY KEY,
	seat_count    INTEGER NOT NULL,
	service_class TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS trips (
	id         TEXT PRIMARY KEY,
	route_id   TEXT NOT NULL REFERENCES routes(id),
	vehicle_id TEXT NOT NULL REFERENCES vehicles(id),
	departure  INTEGER NOT NULL
);

-- The UNIQUE primary key on (trip_id, seat) is defense in depth: the
-- coordination core already serializes commits per trip, but a duplicate
-- write must still fail rather than double-book.
CREATE TABLE IF NOT EXISTS bookings (
	trip_id    TEXT NOT NULL REFERENCES trips(id),
	seat       INTEGER NOT NULL,
	holder_id  TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (trip_id, seat)
);

CREATE INDEX IF NOT EXISTS idx_stops_route ON stops(route_id, seq);
CREATE INDEX IF NOT EXISTS idx_trips_route ON trips(route_id);
`
