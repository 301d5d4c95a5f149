package restapi

import (
	"net/http"
	"strconv"

	"tripcore.ridepulse.org/internal/models"
)

const (
	defaultStopSearchRadiusMeters = 500.0
	maxStopSearchRadiusMeters     = 20000.0
)

// stopsForLocationHandler finds stops near a coordinate using the spatial
// stop index.
func (api *RestAPI) stopsForLocationHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	lat, err := strconv.ParseFloat(query.Get("lat"), 64)
	if err != nil || lat < -90 || lat > 90 {
		api.sendError(w, r, http.StatusBadRequest, "lat must be a number between -90 and 90")
		return
	}
	lon, err := strconv.ParseFloat(query.Get("lon"), 64)
	if err != nil || lon < -180 || lon > 180 {
		api.sendError(w, r, http.StatusBadRequest, "lon must be a number between -180 and 180")
		return
	}

	radius := defaultStopSearchRadiusMeters
	if raw := query.Get("radius"); raw != "" {
		radius, err = strconv.ParseFloat(raw, 64)
		if err != nil || radius <= 0 {
			api.sendError(w, r, http.StatusBadRequest, "radius must be a positive number of meters")
			return
		}
		if radius > maxStopSearchRadiusMeters {
			radius = maxStopSearchRadiusMeters
		}
	}

	hits := api.Catalog.StopsNear(lat, lon, radius)
	api.sendResponse(w, r, models.NewOKResponse(api.Clock, hits))
}
