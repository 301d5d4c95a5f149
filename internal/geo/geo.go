// Package geo contains the pure geometry used by the coordination core:
// great-circle distance, bounding boxes, and nearest-point lookups against
// route polylines and stop lists. Nothing in this package holds state.
package geo

import "math"

const (
	// RadiusOfEarthInMeters is RADIUS_OF_EARTH_IN_KM * 1000
	RadiusOfEarthInMeters = 6371010.0

	degToRad = math.Pi / 180
)

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64
	Lon float64
}

// CoordinateBounds represents a bounding box with min/max latitude and longitude
type CoordinateBounds struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// Distance calculates the distance in meters between two points on the Earth.
// For short distances (under ~22km), it uses an Equirectangular approximation
// to save CPU cycles; beyond that it falls back to the exact great-circle
// formula. City bus trips hit the fast path almost exclusively.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	if math.Abs(lat2-lat1) < 0.2 && math.Abs(lon2-lon1) < 0.2 {
		lat1Rad := lat1 * degToRad
		lat2Rad := lat2 * degToRad
		dLatRad := (lat2 - lat1) * degToRad
		dLonRad := (lon2 - lon1) * degToRad

		x := dLonRad * math.Cos((lat1Rad+lat2Rad)/2)
		y := dLatRad
		return RadiusOfEarthInMeters * math.Sqrt(x*x+y*y)
	}

	lat1Rad := lat1 * degToRad
	lon1Rad := lon1 * degToRad
	lat2Rad := lat2 * degToRad
	lon2Rad := lon2 * degToRad

	deltaLon := lon2Rad - lon1Rad

	y := math.Sqrt(math.Pow(math.Cos(lat2Rad)*math.Sin(deltaLon), 2) +
		math.Pow(math.Cos(lat1Rad)*math.Sin(lat2Rad)-math.Sin(lat1Rad)*math.Cos(lat2Rad)*math.Cos(deltaLon), 2))
	x := math.Sin(lat1Rad)*math.Sin(lat2Rad) + math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Cos(deltaLon)

	return RadiusOfEarthInMeters * math.Atan2(y, x)
}

// DistanceBetween is Distance over Point values.
func DistanceBetween(a, b Point) float64 {
	return Distance(a.Lat, a.Lon, b.Lat, b.Lon)
}

// CalculateBounds returns a bounding box centered on (lat, lon) that contains
// every point within distance meters.
func CalculateBounds(lat, lon, distance float64) CoordinateBounds {
	latRadians := lat * degToRad
	lonRadians := lon * degToRad

	latRadius := RadiusOfEarthInMeters
	lonRadius := math.Cos(latRadians) * RadiusOfEarthInMeters

	latOffset := distance / latRadius
	lonOffset := distance / lonRadius

	return CoordinateBounds{
		MinLat: (latRadians - latOffset) * 180 / math.Pi,
		MaxLat: (latRadians + latOffset) * 180 / math.Pi,
		MinLon: (lonRadians - lonOffset) * 180 / math.Pi,
		MaxLon: (lonRadians + lonOffset) * 180 / math.Pi,
	}
}

// ClosestIndex returns the index of the point in pts nearest to (lat, lon)
// and the distance to it in meters. Returns -1 when pts is empty. Linear
// scan; a route has on the order of tens of stops.
func ClosestIndex(lat, lon float64, pts []Point) (int, float64) {
	best := -1
	bestDist := math.MaxFloat64
	for i, p := range pts {
		d := Distance(lat, lon, p.Lat, p.Lon)
		if d < bestDist {
			best = i
			bestDist = d
		}
	}
	if best == -1 {
		return -1, 0
	}
	return best, bestDist
}

// ClosestPointOnPolyline projects (lat, lon) onto the polyline and returns
// the projected point, the index of the segment it falls on, and the
// distance from the input to the projection in meters. A single-point
// polyline projects onto that point; an empty one returns segment -1.
func ClosestPointOnPolyline(lat, lon float64, line []Point) (Point, int, float64) {
	switch len(line) {
	case 0:
		return Point{}, -1, 0
	case 1:
		return line[0], 0, Distance(lat, lon, line[0].Lat, line[0].Lon)
	}

	best := line[0]
	bestSeg := 0
	bestDist := math.MaxFloat64

	for i := 0; i < len(line)-1; i++ {
		candidate := closestPointOnSegment(lat, lon, line[i], line[i+1])
		d := Distance(lat, lon, candidate.Lat, candidate.Lon)
		if d < bestDist {
			best = candidate
			bestSeg = i
			bestDist = d
		}
	}
	return best, bestSeg, bestDist
}

// PolylineLength returns the total length of the polyline in meters.
func PolylineLength(line []Point) float64 {
	total := 0.0
	for i := 0; i < len(line)-1; i++ {
		total += DistanceBetween(line[i], line[i+1])
	}
	return total
}

// DistanceAlong returns how far along the polyline, in meters, the
// projection of (lat, lon) lies. A point before the start measures 0 and a
// point past the end measures the full length. Returns 0 for a polyline
// with fewer than two points.
func DistanceAlong(lat, lon float64, line []Point) float64 {
	if len(line) < 2 {
		return 0
	}
	proj, seg, _ := ClosestPointOnPolyline(lat, lon, line)
	along := 0.0
	for i := 0; i < seg; i++ {
		along += DistanceBetween(line[i], line[i+1])
	}
	return along + DistanceBetween(line[seg], proj)
}

// closestPointOnSegment projects p onto the segment [a, b] using a planar
// equirectangular approximation, which is accurate at the segment lengths a
// bus route shape produces.
func closestPointOnSegment(lat, lon float64, a, b Point) Point {
	// Scale longitude by cos(lat) so that one unit is the same ground
	// distance on both axes.
	scale := math.Cos(lat * degToRad)

	ax, ay := a.Lon*scale, a.Lat
	bx, by := b.Lon*scale, b.Lat
	px, py := lon*scale, lat

	dx, dy := bx-ax, by-ay
	segLenSq := dx*dx + dy*dy
	if segLenSq == 0 {
		return a
	}

	t := ((px-ax)*dx + (py-ay)*dy) / segLenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}

	return Point{
		Lat: ay + t*dy,
		Lon: (ax + t*dx) / scale,
	}
}

// IsOutOfBounds returns true only if the inner bounds have no overlap
// with the outer bounds.
func IsOutOfBounds(inner, outer CoordinateBounds) bool {
	return inner.MaxLat < outer.MinLat ||
		inner.MinLat > outer.MaxLat ||
		inner.MaxLon < outer.MinLon ||
		inner.MinLon > outer.MaxLon
}
