// Package appconf holds the runtime configuration for the tripcore server.
package appconf

import (
	"time"
)

type Environment int

const (
	Development Environment = iota
	Test
	Production
)

// EnvFlagToEnvironment converts an environment flag value ("development",
// "test", "production") to its Environment constant. Unknown values map to
// Development.
func EnvFlagToEnvironment(flag string) Environment {
	switch flag {
	case "production":
		return Production
	case "test":
		return Test
	default:
		return Development
	}
}

func (e Environment) String() string {
	switch e {
	case Production:
		return "production"
	case Test:
		return "test"
	default:
		return "development"
	}
}

// Config contains everything the server needs to run. It is assembled in
// cmd/api from flags and environment variables and treated as immutable
// afterwards.
type Config struct {
	Env     Environment
	Port    int
	ApiKeys []string
	Verbose bool

	// RateLimit is the number of REST requests allowed per second per API key.
	RateLimit int

	// JWTSecret signs the identity claims minted by the external session
	// service. Connections present these claims when they open a socket.
	JWTSecret string

	// DBPath is the SQLite trip store location. ":memory:" is valid and used
	// by tests.
	DBPath string

	// GTFSStaticPath optionally points at a GTFS zip used to seed routes,
	// stops, and trips at startup. Empty means the store is already seeded.
	GTFSStaticPath string

	// NATSURL enables the location relay when non-empty.
	NATSURL string

	// HoldTTL is how long a seat hold lives without being refreshed.
	HoldTTL time.Duration

	// SweepInterval is how often the janitor expires holds and checks for
	// stale tracking and idle rooms.
	SweepInterval time.Duration

	// StaleAfter is the silence window after which tracking is flagged stale.
	StaleAfter time.Duration

	// RoomIdleAfter is the inactivity window after which an empty trip room
	// is evicted.
	RoomIdleAfter time.Duration
}

// WithDefaults fills zero-valued tuning knobs with their production defaults.
func (c Config) WithDefaults() Config {
	if c.HoldTTL <= 0 {
		c.HoldTTL = 60 * time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 5 * time.Second
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 90 * time.Second
	}
	if c.RoomIdleAfter <= 0 {
		c.RoomIdleAfter = 10 * time.Minute
	}
	return c
}
