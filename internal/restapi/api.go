// Package restapi is the HTTP surface of the coordination core: the
// synchronous booking commit, read-only seat/tracking snapshots, the
// stops-for-location lookup, and the operational endpoints.
package restapi

import (
	"net/http"

	"tripcore.ridepulse.org/internal/app"
)

// RestAPI bundles the application dependencies for the HTTP handlers.
type RestAPI struct {
	*app.Application
}

func NewRestAPI(application *app.Application) *RestAPI {
	return &RestAPI{Application: application}
}

// SetRoutes registers the API endpoints on mux. Rate limiting and the outer
// middleware chain are applied by the caller; per-route concerns (API key,
// cache headers) are applied here.
func (api *RestAPI) SetRoutes(mux *http.ServeMux) {
	mux.Handle("POST /api/v1/trips/{tripID}/booking-intent",
		api.withAPIKey(http.HandlerFunc(api.bookingIntentHandler)))
	mux.Handle("GET /api/v1/trips/{tripID}/seat-status",
		api.withAPIKey(http.HandlerFunc(api.seatStatusHandler)))
	mux.Handle("GET /api/v1/trips/{tripID}/tracking",
		api.withAPIKey(http.HandlerFunc(api.trackingHandler)))
	mux.Handle("GET /api/v1/stops-for-location",
		api.withAPIKey(CacheControlMiddleware(30, http.HandlerFunc(api.stopsForLocationHandler))))
	mux.Handle("GET /api/v1/current-time",
		api.withAPIKey(http.HandlerFunc(api.currentTimeHandler)))
	mux.HandleFunc("GET /health", api.healthHandler)
}

func (api *RestAPI) withAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if api.RequestHasInvalidAPIKey(r) {
			api.sendUnauthorized(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
