package restapi

import (
	"errors"
	"net/http"

	"tripcore.ridepulse.org/internal/models"
	"tripcore.ridepulse.org/tripdb"
)

// trackingHandler returns the trip's last known location, speed and derived
// progress, or a no-data state when nothing was published yet.
func (api *RestAPI) trackingHandler(w http.ResponseWriter, r *http.Request) {
	tripID := r.PathValue("tripID")

	state, err := api.Coordinator.TrackingSnapshot(r.Context(), tripID)
	switch {
	case errors.Is(err, tripdb.ErrTripNotFound):
		api.sendNotFound(w, r)
		return
	case err != nil:
		api.serverErrorResponse(w, r, err)
		return
	}

	api.sendResponse(w, r, models.NewOKResponse(api.Clock, state))
}
