package fleet

import (
	"sort"
	"sync"

	"github.com/tidwall/rtree"
	"tripcore.ridepulse.org/internal/geo"
	"tripcore.ridepulse.org/tripdb"
)

// StopHit is a stop returned from a proximity query.
type StopHit struct {
	tripdb.StopRow
	DistanceMeters float64 `json:"distanceMeters"`
}

// StopIndex is an R-tree over stop coordinates. Writes happen only while
// (re)building; queries take the read lock.
type StopIndex struct {
	mu   sync.RWMutex
	tree rtree.RTree
}

func NewStopIndex() *StopIndex {
	return &StopIndex{}
}

func (ix *StopIndex) Insert(s tripdb.StopRow) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	pt := [2]float64{s.Lon, s.Lat}
	ix.tree.Insert(pt, pt, s)
}

func (ix *StopIndex) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.tree.Len()
}

// Near returns stops within radiusMeters of (lat, lon), sorted by distance.
// The R-tree search uses a bounding box; exact great-circle distance filters
// the corners out.
func (ix *StopIndex) Near(lat, lon, radiusMeters float64) []StopHit {
	if radiusMeters <= 0 {
		return nil
	}
	bounds := geo.CalculateBounds(lat, lon, radiusMeters)

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var hits []StopHit
	ix.tree.Search(
		[2]float64{bounds.MinLon, bounds.MinLat},
		[2]float64{bounds.MaxLon, bounds.MaxLat},
		func(_, _ [2]float64, value interface{}) bool {
			stop, ok := value.(tripdb.StopRow)
			if !ok {
				return true
			}
			d := geo.Distance(lat, lon, stop.Lat, stop.Lon)
			if d <= radiusMeters {
				hits = append(hits, StopHit{StopRow: stop, DistanceMeters: d})
			}
			return true
		})

	sort.Slice(hits, func(i, j int) bool {
		return hits[i].DistanceMeters < hits[j].DistanceMeters
	})
	return hits
}
