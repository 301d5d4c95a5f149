package fleet

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/OneBusAway/go-gtfs"
	"tripcore.ridepulse.org/internal/models"
)

// DefaultImportSeatCount is used when seeding trips from GTFS, which has no
// seat inventory concept. The real count comes from the fleet admin surface.
const DefaultImportSeatCount = 50

// ImportSummary reports what a GTFS static import wrote to the store.
type ImportSummary struct {
	Routes int
	Stops  int
	Trips  int
}

// ImportGTFSStatic seeds routes, stops, and trips from a local GTFS zip.
// serviceDate anchors scheduled departure times, which GTFS expresses as
// offsets from midnight. Trips whose stop times lack coordinates are
// skipped. Intended for development and cold-start seeding; the production
// store is maintained by the scheduling collaborator.
func (c *Catalog) ImportGTFSStatic(ctx context.Context, path string, serviceDate time.Time) (ImportSummary, error) {
	var summary ImportSummary

	b, err := os.ReadFile(path)
	if err != nil {
		return summary, fmt.Errorf("reading GTFS file: %w", err)
	}

	static, err := gtfs.ParseStatic(b, gtfs.ParseStaticOptions{})
	if err != nil {
		return summary, fmt.Errorf("parsing GTFS static data: %w", err)
	}

	midnight := time.Date(serviceDate.Year(), serviceDate.Month(), serviceDate.Day(), 0, 0, 0, 0, serviceDate.Location())

	seenRoutes := make(map[string]bool)
	for _, trip := range static.Trips {
		if trip.Route == nil || len(trip.StopTimes) == 0 {
			continue
		}

		stops := make([]models.Stop, 0, len(trip.StopTimes))
		base := trip.StopTimes[0].DepartureTime
		usable := true
		for _, st := range trip.StopTimes {
			if st.Stop == nil || st.Stop.Latitude == nil || st.Stop.Longitude == nil {
				usable = false
				break
			}
			stops = append(stops, models.Stop{
				ID:               st.Stop.Id,
				Name:             st.Stop.Name,
				Lat:              *st.Stop.Latitude,
				Lon:              *st.Stop.Longitude,
				ArrivalOffsetMin: int((st.ArrivalTime - base).Minutes()),
			})
		}
		if !usable {
			c.logger.Debug("skipping GTFS trip without stop coordinates", slog.String("trip_id", trip.ID))
			continue
		}

		routeID := trip.Route.Id
		routeName := trip.Route.LongName
		if routeName == "" {
			routeName = trip.Route.ShortName
		}
		if !seenRoutes[routeID] {
			if err := c.db.Queries.UpsertRoute(ctx, routeID, routeName); err != nil {
				return summary, err
			}
			if err := c.db.Queries.ReplaceStops(ctx, routeID, stops); err != nil {
				return summary, err
			}
			seenRoutes[routeID] = true
			summary.Routes++
			summary.Stops += len(stops)
		}

		vehicleID := "gtfs-" + trip.ID
		err := c.db.Queries.UpsertVehicle(ctx, models.Vehicle{
			ID:           vehicleID,
			SeatCount:    DefaultImportSeatCount,
			ServiceClass: "standard",
		})
		if err != nil {
			return summary, err
		}

		departure := midnight.Add(base)
		if err := c.db.Queries.UpsertTrip(ctx, trip.ID, routeID, vehicleID, departure); err != nil {
			return summary, err
		}
		summary.Trips++
	}

	c.logger.Info("GTFS static import complete",
		slog.Int("routes", summary.Routes),
		slog.Int("stops", summary.Stops),
		slog.Int("trips", summary.Trips))
	return summary, nil
}
