// Package webui serves the non-production debug pages: raw dumps of the
// coordinator's room state and the trip store contents.
package webui

import (
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/davecgh/go-spew/spew"

	"tripcore.ridepulse.org/internal/app"
	"tripcore.ridepulse.org/internal/appconf"
)

//go:embed debug_index.html
var templateFS embed.FS

type WebUI struct {
	*app.Application
}

func NewWebUI(application *app.Application) *WebUI {
	return &WebUI{Application: application}
}

func (webUI *WebUI) SetRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /debug", webUI.debugIndexHandler)
}

type debugData struct {
	Title string
	Pre   string
}

func writeDebugData(w http.ResponseWriter, title string, data interface{}) {
	content := spew.Sdump(data)
	w.Header().Set("Content-Type", "text/html")
	tmpl, err := template.ParseFS(templateFS, "debug_index.html")
	if err != nil {
		slog.Error("failed to parse debug template", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	dataStruct := debugData{
		Title: title,
		Pre:   content,
	}

	err = tmpl.Execute(w, dataStruct)
	if err != nil {
		slog.Error("failed to execute debug template", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (webUI *WebUI) debugIndexHandler(w http.ResponseWriter, r *http.Request) {
	if webUI.Config.Env == appconf.Production {
		http.NotFound(w, r)
		return
	}
	dataType := r.URL.Query().Get("dataType")

	var data interface{}
	var title string

	switch dataType {
	case "rooms":
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		data = webUI.Coordinator.DebugState(ctx)
		title = "Coordinator - Trip Rooms"
	case "stops":
		stops, err := webUI.TripDB.Queries.ListAllStops(r.Context())
		if err != nil {
			data = map[string]string{"error": err.Error()}
		} else {
			data = stops
		}
		title = "Trip Store - Stops"
	case "config":
		data = webUI.Config
		title = "Configuration"
	default:
		data = map[string]string{
			"error": "Please use one of the following: rooms, stops, config.",
		}
		title = "Choose a data type"
	}

	writeDebugData(w, title, data)
}
