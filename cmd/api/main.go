package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/klauspost/compress/gzhttp"
	_ "github.com/mattn/go-sqlite3" // CGo-based SQLite driver
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tripcore.ridepulse.org/internal/app"
	"tripcore.ridepulse.org/internal/appconf"
	"tripcore.ridepulse.org/internal/auth"
	"tripcore.ridepulse.org/internal/clock"
	"tripcore.ridepulse.org/internal/coord"
	"tripcore.ridepulse.org/internal/fleet"
	"tripcore.ridepulse.org/internal/gateway"
	"tripcore.ridepulse.org/internal/logging"
	"tripcore.ridepulse.org/internal/metrics"
	"tripcore.ridepulse.org/internal/relay"
	"tripcore.ridepulse.org/internal/restapi"
	"tripcore.ridepulse.org/internal/webui"
	"tripcore.ridepulse.org/tripdb"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	var (
		port      = flag.Int("port", envInt("PORT", 4000), "API server port")
		envFlag   = flag.String("env", envStr("ENV", "development"), "Environment (development|test|production)")
		apiKeys   = flag.String("api-keys", envStr("API_KEYS", ""), "Comma-separated list of valid API keys")
		rateLimit = flag.Int("rate-limit", envInt("RATE_LIMIT", 100), "Requests per second per API key")
		jwtSecret = flag.String("jwt-secret", envStr("JWT_SECRET", ""), "Shared secret for identity tokens")
		dbPath    = flag.String("db-path", envStr("DB_PATH", "tripcore.db"), "SQLite trip store path")
		gtfsPath  = flag.String("gtfs-path", envStr("GTFS_STATIC_PATH", ""), "Optional GTFS static zip to seed the trip store")
		natsURL   = flag.String("nats-url", envStr("NATS_URL", ""), "Optional NATS URL for the location relay")
		verbose   = flag.Bool("verbose", envStr("VERBOSE", "") == "true", "Enable debug logging")
	)
	flag.Parse()

	cfg := appconf.Config{
		Env:            appconf.EnvFlagToEnvironment(*envFlag),
		Port:           *port,
		ApiKeys:        ParseAPIKeys(*apiKeys),
		Verbose:        *verbose,
		RateLimit:      *rateLimit,
		JWTSecret:      *jwtSecret,
		DBPath:         *dbPath,
		GTFSStaticPath: *gtfsPath,
		NATSURL:        *natsURL,
	}.WithDefaults()

	if err := run(cfg); err != nil {
		slog.Error("server exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

// ParseAPIKeys splits a comma-separated key list, trimming whitespace
// around each key.
func ParseAPIKeys(raw string) []string {
	if raw == "" {
		return []string{}
	}
	keys := strings.Split(raw, ",")
	for i, key := range keys {
		keys[i] = strings.TrimSpace(key)
	}
	return keys
}

func envStr(name, fallback string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	return fallback
}

func envInt(name string, fallback int) int {
	if v, ok := os.LookupEnv(name); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// BuildApplication wires the dependency graph: store, catalog, relay, and
// the coordination core.
func BuildApplication(cfg appconf.Config) (*app.Application, error) {
	logLevel := slog.LevelInfo
	if cfg.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	clk := clock.RealClock{}
	m := metrics.NewWithLogger(logger)

	db, err := tripdb.NewClient(tripdb.NewConfig(cfg.DBPath, cfg.Env, cfg.Verbose))
	if err != nil {
		return nil, fmt.Errorf("failed to open trip store: %w", err)
	}
	m.StartDBStatsCollector(db.DB, 15*time.Second)

	catalog := fleet.NewCatalog(db, clk, logger)

	ctx := context.Background()
	if cfg.GTFSStaticPath != "" {
		summary, err := catalog.ImportGTFSStatic(ctx, cfg.GTFSStaticPath, clk.Now())
		if err != nil {
			return nil, fmt.Errorf("failed to import GTFS static data: %w", err)
		}
		logging.LogOperation(logger, "imported GTFS static data",
			slog.Int("routes", summary.Routes),
			slog.Int("stops", summary.Stops),
			slog.Int("trips", summary.Trips))
	}
	if err := catalog.BuildStopIndex(ctx); err != nil {
		return nil, fmt.Errorf("failed to build stop index: %w", err)
	}

	var natsRelay *relay.NATSRelay
	var locationRelay coord.LocationRelay
	if cfg.NATSURL != "" {
		natsRelay, err = relay.NewNATSRelay(cfg.NATSURL, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect location relay: %w", err)
		}
		locationRelay = natsRelay
	}

	coordinator := coord.NewCoordinator(coord.Options{
		HoldTTL:       cfg.HoldTTL,
		SweepInterval: cfg.SweepInterval,
		StaleAfter:    cfg.StaleAfter,
		RoomIdleAfter: cfg.RoomIdleAfter,
	}, catalog, catalog, locationRelay, clk, logger, m)
	coordinator.Start()

	return &app.Application{
		Config:      cfg,
		Logger:      logger,
		Clock:       clk,
		Metrics:     m,
		TripDB:      db,
		Catalog:     catalog,
		Coordinator: coordinator,
		Relay:       natsRelay,
	}, nil
}

// CreateServer assembles the HTTP server: REST routes, the websocket
// gateway, metrics, the debug UI outside production, and the middleware
// chain. The returned rate limiter must be stopped on shutdown.
func CreateServer(coreApp *app.Application, cfg appconf.Config) (*http.Server, *restapi.RateLimitMiddleware) {
	api := restapi.NewRestAPI(coreApp)
	gw := gateway.NewGateway(coreApp.Coordinator, auth.NewVerifier(cfg.JWTSecret), coreApp.Clock, coreApp.Logger)

	mux := http.NewServeMux()
	api.SetRoutes(mux)
	mux.Handle("GET /metrics", promhttp.HandlerFor(coreApp.Metrics.Registry, promhttp.HandlerOpts{}))
	if cfg.Env != appconf.Production {
		webui.NewWebUI(coreApp).SetRoutes(mux)
	}

	rateLimiter := restapi.NewRateLimitMiddleware(cfg.RateLimit, time.Second, nil, coreApp.Clock)

	var handler http.Handler = mux
	handler = rateLimiter.Handler()(handler)
	handler = restapi.MetricsHandler(coreApp.Metrics)(handler)
	handler = restapi.NewRequestLoggingMiddleware(coreApp.Logger)(handler)
	handler = restapi.RequestIDMiddleware(handler)
	handler = gzhttp.GzipHandler(handler)

	// The websocket endpoint bypasses compression and rate limiting; its
	// admission control is the identity token.
	root := http.NewServeMux()
	root.HandleFunc("GET /ws", gw.HandleWS)
	root.Handle("/", handler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      root,
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return srv, rateLimiter
}

func run(cfg appconf.Config) error {
	coreApp, err := BuildApplication(cfg)
	if err != nil {
		return err
	}

	srv, rateLimiter := CreateServer(coreApp, cfg)

	shutdownErr := make(chan error, 1)
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		sig := <-quit
		coreApp.Logger.Info("shutting down", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		err := srv.Shutdown(ctx)

		rateLimiter.Stop()
		if coordErr := coreApp.Coordinator.Shutdown(ctx); coordErr != nil && err == nil {
			err = coordErr
		}
		if coreApp.Relay != nil {
			coreApp.Relay.Close()
		}
		coreApp.Metrics.Shutdown()
		logging.SafeCloseWithLogging(coreApp.TripDB, coreApp.Logger, "trip store")

		shutdownErr <- err
	}()

	coreApp.Logger.Info("starting server",
		slog.Int("port", cfg.Port),
		slog.String("env", cfg.Env.String()))

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return <-shutdownErr
}
