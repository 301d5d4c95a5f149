package restapi

import (
	"errors"
	"net/http"

	"tripcore.ridepulse.org/internal/models"
	"tripcore.ridepulse.org/tripdb"
)

// seatStatusHandler returns the booked and currently held seat sets for a
// trip, the same snapshot a websocket subscriber receives as bootstrap.
func (api *RestAPI) seatStatusHandler(w http.ResponseWriter, r *http.Request) {
	tripID := r.PathValue("tripID")

	status, err := api.Coordinator.SeatStatusSnapshot(r.Context(), tripID)
	switch {
	case errors.Is(err, tripdb.ErrTripNotFound):
		api.sendNotFound(w, r)
		return
	case err != nil:
		api.serverErrorResponse(w, r, err)
		return
	}

	api.sendResponse(w, r, models.NewOKResponse(api.Clock, status))
}
