package restapi

import (
	"net/http"
	"time"

	"tripcore.ridepulse.org/internal/models"
)

type currentTimeData struct {
	ReadableTime string `json:"readableTime"`
	Time         int64  `json:"time"`
}

// Writes a JSON response with the server's current time, used by clients to
// align hold-expiry countdowns with server time.
func (api *RestAPI) currentTimeHandler(w http.ResponseWriter, r *http.Request) {
	now := api.Clock.Now()
	data := currentTimeData{
		ReadableTime: now.Format(time.RFC3339),
		Time:         now.UnixMilli(),
	}
	api.sendResponse(w, r, models.NewOKResponse(api.Clock, data))
}
