package fleet

import (
	"context"
	"fmt"

	"github.com/twpayne/go-polyline"
	"tripcore.ridepulse.org/internal/models"
)

// attachShape decodes the route's encoded polyline, if one was supplied by
// the map-routing collaborator, and attaches it to the route. Routes without
// a shape keep a nil Shape; the estimator then works from straight-line stop
// coordinates alone.
func (c *Catalog) attachShape(ctx context.Context, route *models.Route) error {
	if route == nil {
		return nil
	}
	encoded, err := c.db.Queries.GetRouteShape(ctx, route.ID)
	if err != nil {
		return err
	}
	if encoded == "" {
		return nil
	}

	shape, err := DecodeShape(encoded)
	if err != nil {
		return err
	}
	route.Shape = shape
	return nil
}

// DecodeShape decodes a Google-format encoded polyline into locations.
func DecodeShape(encoded string) ([]models.Location, error) {
	coords, _, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("decoding route shape: %w", err)
	}
	shape := make([]models.Location, len(coords))
	for i, c := range coords {
		shape[i] = models.Location{Lat: c[0], Lon: c[1]}
	}
	return shape, nil
}
