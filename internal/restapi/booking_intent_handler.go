package restapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"tripcore.ridepulse.org/internal/coord"
	"tripcore.ridepulse.org/internal/models"
	"tripcore.ridepulse.org/tripdb"
)

type bookingIntentRequest struct {
	SeatNumbers []int  `json:"seatNumbers"`
	HolderID    string `json:"holderId"`
}

// bookingIntentHandler is the synchronous commit path used by the booking
// frontend once the passenger confirms. The commit either books every
// requested seat (durably, before this handler returns) or books none and
// reports the contended seats.
func (api *RestAPI) bookingIntentHandler(w http.ResponseWriter, r *http.Request) {
	tripID := r.PathValue("tripID")

	var req bookingIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.sendError(w, r, http.StatusBadRequest, "request body must be valid JSON")
		return
	}
	if len(req.SeatNumbers) == 0 {
		api.sendError(w, r, http.StatusUnprocessableEntity, "seatNumbers must not be empty")
		return
	}
	if req.HolderID == "" {
		api.sendError(w, r, http.StatusUnprocessableEntity, "holderId is required")
		return
	}

	result, err := api.Coordinator.Commit(r.Context(), tripID, req.SeatNumbers, req.HolderID)
	switch {
	case errors.Is(err, tripdb.ErrTripNotFound):
		api.sendNotFound(w, r)
		return
	case errors.Is(err, coord.ErrSeatOutOfRange):
		api.sendError(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		api.serverErrorResponse(w, r, err)
		return
	}

	api.sendResponse(w, r, models.NewOKResponse(api.Clock, result))
}
