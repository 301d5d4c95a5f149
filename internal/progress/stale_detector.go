package progress

import (
	"time"

	"tripcore.ridepulse.org/internal/models"
)

// DefaultStaleThreshold is the silence window after which a trip's tracking
// channel is flagged stale. Staleness only changes what subscribers see; the
// cached last sample is kept and the next publish clears the flag.
const DefaultStaleThreshold = 90 * time.Second

type StaleDetector struct {
	threshold time.Duration
}

func NewStaleDetector() *StaleDetector {
	return &StaleDetector{threshold: DefaultStaleThreshold}
}

func (d *StaleDetector) WithThreshold(threshold time.Duration) *StaleDetector {
	d.threshold = threshold
	return d
}

// Check returns true when the sample is missing or older than the threshold.
func (d *StaleDetector) Check(sample *models.LocationSample, currentTime time.Time) bool {
	if sample == nil {
		return true
	}
	return currentTime.Sub(sample.Timestamp) > d.threshold
}

// Age returns the sample's age, or threshold+1 when there is no sample, so
// that a missing sample always reads as stale.
func (d *StaleDetector) Age(sample *models.LocationSample, currentTime time.Time) time.Duration {
	if sample == nil {
		return d.threshold + 1
	}
	return currentTime.Sub(sample.Timestamp)
}

// Phase maps the sample state onto the tracking lifecycle.
func (d *StaleDetector) Phase(sample *models.LocationSample, currentTime time.Time) models.TrackingPhase {
	if sample == nil {
		return models.PhaseNoSamplesYet
	}
	if d.Check(sample, currentTime) {
		return models.PhaseStale
	}
	return models.PhaseTracking
}
