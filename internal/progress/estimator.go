// Package progress derives the passed/current/next stop classification and
// ETA view for a trip from its stop list and the latest location sample.
// When the route carries a road shape the remaining distance and nearest
// stop follow it; without one the estimate falls back to straight lines
// between stop coordinates, which can under- or over-estimate when the road
// deviates from the direct line. That fallback is an accepted approximation.
package progress

import (
	"math"
	"time"

	"tripcore.ridepulse.org/internal/geo"
	"tripcore.ridepulse.org/internal/models"
)

const (
	// DefaultSpeedFloorKPH guards the ETA division against near-zero speeds.
	DefaultSpeedFloorKPH = 5.0

	// DefaultFallbackSpeedKPH is assumed when no speed signal exists at all.
	DefaultFallbackSpeedKPH = 40.0

	// DefaultArrivalThresholdMeters is the remaining distance below which the
	// trip is reported as arrived instead of carrying an ETA.
	DefaultArrivalThresholdMeters = 100.0
)

// Estimator computes ProgressSnapshots. The zero value is not usable; call
// NewEstimator and override fields as needed.
type Estimator struct {
	SpeedFloorKPH          float64
	FallbackSpeedKPH       float64
	ArrivalThresholdMeters float64
}

func NewEstimator() *Estimator {
	return &Estimator{
		SpeedFloorKPH:          DefaultSpeedFloorKPH,
		FallbackSpeedKPH:       DefaultFallbackSpeedKPH,
		ArrivalThresholdMeters: DefaultArrivalThresholdMeters,
	}
}

// EffectiveSpeedKPH resolves the speed used for the destination ETA:
// the publisher-supplied value when present, otherwise the hub-derived
// value, otherwise the fallback; the floor applies in every case.
func (e *Estimator) EffectiveSpeedKPH(supplied, derived *float64) float64 {
	speed := e.FallbackSpeedKPH
	if supplied != nil {
		speed = *supplied
	} else if derived != nil {
		speed = *derived
	}
	if speed < e.SpeedFloorKPH {
		speed = e.SpeedFloorKPH
	}
	return speed
}

// Estimate computes the progress snapshot for the sample against the route.
// With a route shape present the vehicle is projected onto it, the nearest
// stop is chosen by position along the shape, and the remaining distance
// follows the road to the end of the shape. derivedSpeedKPH is the hub's
// delta-based speed estimate, nil when there is no previous sample to derive
// from. Returns nil when the route has no stops.
//
// The snapshot is recomputed for every sample and must not be cached beyond
// the push that carries it.
func (e *Estimator) Estimate(route *models.Route, sample models.LocationSample, derivedSpeedKPH *float64, now time.Time) *models.ProgressSnapshot {
	if route == nil || len(route.Stops) == 0 {
		return nil
	}

	stops := route.Stops
	pts := make([]geo.Point, len(stops))
	for i, s := range stops {
		pts[i] = geo.Point{Lat: s.Lat, Lon: s.Lon}
	}

	shape := shapeLine(route.Shape)
	var closestIndex int
	var remaining float64
	if shape != nil {
		along := geo.DistanceAlong(sample.Lat, sample.Lon, shape)
		closestIndex = nearestStopAlongShape(pts, shape, along)
		remaining = geo.PolylineLength(shape) - along
		if remaining < 0 {
			remaining = 0
		}
	} else {
		closestIndex, _ = geo.ClosestIndex(sample.Lat, sample.Lon, pts)
		final := stops[len(stops)-1]
		remaining = geo.Distance(sample.Lat, sample.Lon, final.Lat, final.Lon)
	}

	annotated := make([]models.StopProgress, len(stops))
	closestOffset := stops[closestIndex].ArrivalOffsetMin
	for i, s := range stops {
		sp := models.StopProgress{Stop: s}
		switch {
		case i < closestIndex:
			sp.Status = models.StopPassed
		case i == closestIndex:
			sp.Status = models.StopCurrent
		case i == closestIndex+1:
			sp.Status = models.StopNext
		default:
			sp.Status = models.StopUpcoming
		}

		// Schedule-based per-stop ETA, clamped to unknown when the offset
		// delta is negative so we never display a time in the past.
		if i > closestIndex {
			deltaMin := s.ArrivalOffsetMin - closestOffset
			if deltaMin >= 0 {
				eta := now.Add(time.Duration(deltaMin) * time.Minute)
				sp.ETA = &eta
			}
		}
		annotated[i] = sp
	}

	speed := e.EffectiveSpeedKPH(sample.SpeedKPH, derivedSpeedKPH)

	snapshot := &models.ProgressSnapshot{
		NearestStopIndex: closestIndex,
		Stops:            annotated,
		RemainingMeters:  remaining,
		SpeedKPH:         speed,
	}

	if remaining < e.ArrivalThresholdMeters {
		snapshot.Arrived = true
		return snapshot
	}

	hours := (remaining / 1000.0) / speed
	eta := now.Add(time.Duration(hours * float64(time.Hour)))
	snapshot.DestinationETA = &eta
	return snapshot
}

// shapeLine converts a route shape to geo points. A shape with fewer than
// two points carries no road geometry and yields nil.
func shapeLine(shape []models.Location) []geo.Point {
	if len(shape) < 2 {
		return nil
	}
	line := make([]geo.Point, len(shape))
	for i, p := range shape {
		line[i] = geo.Point{Lat: p.Lat, Lon: p.Lon}
	}
	return line
}

// nearestStopAlongShape picks the stop whose projection onto the shape is
// closest, measured along the road, to the vehicle's own projection. Stops
// near each other in space but far apart along the route stay distinct.
func nearestStopAlongShape(stops []geo.Point, shape []geo.Point, vehicleAlong float64) int {
	best := 0
	bestDelta := math.MaxFloat64
	for i, s := range stops {
		delta := math.Abs(geo.DistanceAlong(s.Lat, s.Lon, shape) - vehicleAlong)
		if delta < bestDelta {
			best = i
			bestDelta = delta
		}
	}
	return best
}
