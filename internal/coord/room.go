package coord

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"tripcore.ridepulse.org/internal/auth"
	"tripcore.ridepulse.org/internal/geo"
	"tripcore.ridepulse.org/internal/models"
)

// roomOpBuffer bounds the per-trip operation queue. Producers block (with
// their context) rather than drop when a trip is extremely contended.
const roomOpBuffer = 64

type roomOp struct {
	fn   func(*tripRoom)
	done chan struct{}
}

// seatHold is a transient soft-lock on one seat. At most one unexpired hold
// exists per seat; enforcement is by program order on the room goroutine.
type seatHold struct {
	holderID  string
	createdAt time.Time
	expiresAt time.Time
}

// tripRoom owns all mutable state for one trip. Every field below ops is
// touched only by the run goroutine.
type tripRoom struct {
	tripID string
	c      *Coordinator
	logger *slog.Logger

	ops      chan roomOp
	quit     chan struct{}
	stopOnce sync.Once
	stopped  chan struct{}

	trip    *models.Trip
	booked  map[int]struct{}
	holds   map[int]*seatHold
	members map[ChannelKind]map[string]Subscriber

	lastSample   *models.LocationSample
	prevSample   *models.LocationSample
	derivedSpeed *float64

	staleAnnounced bool
	lastActivity   time.Time
}

func newTripRoom(c *Coordinator, trip *models.Trip) *tripRoom {
	booked := make(map[int]struct{}, len(trip.BookedSeats))
	for _, seat := range trip.BookedSeats {
		booked[seat] = struct{}{}
	}
	return &tripRoom{
		tripID:  trip.ID,
		c:       c,
		logger:  c.logger.With(slog.String("trip_id", trip.ID)),
		ops:     make(chan roomOp, roomOpBuffer),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
		trip:    trip,
		booked:  booked,
		holds:   make(map[int]*seatHold),
		members: map[ChannelKind]map[string]Subscriber{
			ChannelSeatSelection: {},
			ChannelTracking:      {},
		},
		lastActivity: c.clock.Now(),
	}
}

// run is the trip's single writer. A panic in an operation terminates only
// this trip; the coordinator drops the room and recreates it lazily from
// durable state on next access.
func (r *tripRoom) run() {
	defer close(r.stopped)
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("trip room panicked", slog.Any("panic", p))
		}
		r.releaseGauges()
		r.c.dropRoom(r.tripID, r)
	}()

	for {
		select {
		case op := <-r.ops:
			op.fn(r)
			close(op.done)
		case <-r.quit:
			return
		}
	}
}

func (r *tripRoom) stop() {
	r.stopOnce.Do(func() { close(r.quit) })
}

// releaseGauges backs the room's contributions out of the shared gauges
// when the room dies, so a failed trip does not leak metric residue.
func (r *tripRoom) releaseGauges() {
	if r.c.metrics == nil {
		return
	}
	r.c.metrics.ActiveHolds.Sub(float64(len(r.holds)))
	for kind, subs := range r.members {
		r.c.metrics.Subscribers.WithLabelValues(string(kind)).Sub(float64(len(subs)))
	}
}

// --- operations; all run on the room goroutine ---

func (r *tripRoom) touch() {
	r.lastActivity = r.c.clock.Now()
}

func (r *tripRoom) validSeat(seat int) bool {
	return seat >= 1 && seat <= r.trip.Vehicle.SeatCount
}

func (r *tripRoom) holdActive(seat int, now time.Time) (*seatHold, bool) {
	h, ok := r.holds[seat]
	if !ok || now.After(h.expiresAt) {
		return nil, false
	}
	return h, true
}

// subscribe registers the connection and hands it its bootstrap snapshot.
// The bootstrap goes through Deliver on the room goroutine, so it always
// precedes any broadcast from a later operation in the subscriber's queue.
func (r *tripRoom) subscribe(kind ChannelKind, sub Subscriber) {
	r.touch()
	subs := r.members[kind]
	if _, exists := subs[sub.ID()]; !exists {
		subs[sub.ID()] = sub
		if r.c.metrics != nil {
			r.c.metrics.Subscribers.WithLabelValues(string(kind)).Inc()
		}
	}

	event := Event{Kind: kind, Bootstrap: true}
	switch kind {
	case ChannelTracking:
		event.Tracking = r.trackingState()
	default:
		event.SeatStatus = r.seatStatus()
	}
	if err := sub.Deliver(event); err != nil {
		r.logger.Debug("reaping subscriber on bootstrap",
			slog.String("connection_id", sub.ID()), slog.Any("error", err))
		r.unsubscribe(kind, sub.ID())
	}
}

func (r *tripRoom) unsubscribe(kind ChannelKind, connID string) {
	subs := r.members[kind]
	if _, exists := subs[connID]; exists {
		delete(subs, connID)
		if r.c.metrics != nil {
			r.c.metrics.Subscribers.WithLabelValues(string(kind)).Dec()
		}
	}
}

func (r *tripRoom) holdSeats(seats []int, holderID string) ([]HoldResult, error) {
	r.touch()
	for _, seat := range seats {
		if !r.validSeat(seat) {
			return nil, ErrSeatOutOfRange
		}
	}

	now := r.c.clock.Now()
	results := make([]HoldResult, len(seats))
	changed := false
	for i, seat := range seats {
		res := HoldResult{Seat: seat}

		if _, isBooked := r.booked[seat]; isBooked {
			results[i] = res
			r.countHold("booked")
			continue
		}
		if h, active := r.holdActive(seat, now); active && h.holderID != holderID {
			res.HeldBy = h.holderID
			results[i] = res
			r.countHold("contended")
			continue
		}

		// Create, or refresh the caller's own hold without double-counting.
		if _, existed := r.holds[seat]; !existed && r.c.metrics != nil {
			r.c.metrics.ActiveHolds.Inc()
		}
		r.holds[seat] = &seatHold{
			holderID:  holderID,
			createdAt: now,
			expiresAt: now.Add(r.c.cfg.HoldTTL),
		}
		res.Accepted = true
		results[i] = res
		changed = true
		r.countHold("accepted")
	}

	if changed {
		r.broadcastSeatStatus()
	}
	return results, nil
}

func (r *tripRoom) countHold(result string) {
	if r.c.metrics != nil {
		r.c.metrics.HoldRequestsTotal.WithLabelValues(result).Inc()
	}
}

// releaseSeats removes the caller's holds on the given seats. Releasing a
// seat the caller does not hold is an idempotent no-op, never an error.
func (r *tripRoom) releaseSeats(seats []int, holderID string) {
	r.touch()
	changed := false
	for _, seat := range seats {
		h, ok := r.holds[seat]
		if !ok || h.holderID != holderID {
			continue
		}
		delete(r.holds, seat)
		changed = true
		if r.c.metrics != nil {
			r.c.metrics.ActiveHolds.Dec()
		}
	}
	if changed {
		r.broadcastSeatStatus()
	}
}

// commit is the single serialization point converting holds (or unheld
// seats) into permanent bookings. All-or-nothing: if any seat fails the
// check, nothing is mutated. On success the booked set is persisted
// durably before the result is returned.
func (r *tripRoom) commit(ctx context.Context, seats []int, holderID string) (CommitResult, error) {
	r.touch()
	for _, seat := range seats {
		if !r.validSeat(seat) {
			return CommitResult{}, ErrSeatOutOfRange
		}
	}

	now := r.c.clock.Now()
	var failed []int
	for _, seat := range seats {
		if _, isBooked := r.booked[seat]; isBooked {
			failed = append(failed, seat)
			continue
		}
		if h, active := r.holdActive(seat, now); active && h.holderID != holderID {
			failed = append(failed, seat)
		}
	}
	if len(failed) > 0 {
		sort.Ints(failed)
		r.countCommit("contended")
		return CommitResult{OK: false, FailedSeats: failed}, nil
	}

	if err := r.c.store.PersistBookings(ctx, r.tripID, seats, holderID); err != nil {
		r.countCommit("store_error")
		return CommitResult{}, err
	}

	for _, seat := range seats {
		r.booked[seat] = struct{}{}
		if _, held := r.holds[seat]; held {
			delete(r.holds, seat)
			if r.c.metrics != nil {
				r.c.metrics.ActiveHolds.Dec()
			}
		}
	}
	if len(seats) > 0 {
		r.broadcastSeatStatus()
	}
	r.countCommit("ok")
	return CommitResult{OK: true}, nil
}

func (r *tripRoom) countCommit(result string) {
	if r.c.metrics != nil {
		r.c.metrics.CommitsTotal.WithLabelValues(result).Inc()
	}
}

// publish ingests one location sample. Only the sample with the greatest
// timestamp seen so far is kept: a late sample older than the cached one is
// dropped without a broadcast.
func (r *tripRoom) publish(ident auth.Identity, sample models.LocationSample) PublishResult {
	if !ident.CanPublish(r.tripID) {
		r.logger.Warn("rejected location publish from unauthorized publisher",
			slog.String("publisher_id", ident.SubjectID))
		return PublishResult{Accepted: false}
	}
	r.touch()

	if r.lastSample != nil && !sample.Timestamp.After(r.lastSample.Timestamp) {
		if r.c.metrics != nil {
			r.c.metrics.StaleSamplesDropped.Inc()
		}
		return PublishResult{Accepted: true, Applied: false}
	}

	r.prevSample = r.lastSample
	r.lastSample = &sample
	r.derivedSpeed = deriveSpeedKPH(r.prevSample, &sample)
	r.staleAnnounced = false

	if r.c.metrics != nil {
		r.c.metrics.LocationUpdatesTotal.Inc()
	}

	state := r.trackingState()
	r.broadcastTracking(state)
	if r.c.relay != nil {
		r.c.relay.RelayLocation(*state)
	}
	return PublishResult{Accepted: true, Applied: true}
}

// deriveSpeedKPH estimates speed from the delta between two samples when
// the publisher omitted it. Returns nil when no estimate is possible.
func deriveSpeedKPH(prev, cur *models.LocationSample) *float64 {
	if cur.SpeedKPH != nil {
		return cur.SpeedKPH
	}
	if prev == nil {
		return nil
	}
	dt := cur.Timestamp.Sub(prev.Timestamp)
	if dt <= 0 {
		return nil
	}
	meters := geo.Distance(prev.Lat, prev.Lon, cur.Lat, cur.Lon)
	kph := (meters / 1000.0) / dt.Hours()
	return &kph
}

// disconnect handles a connection going away: membership is removed from
// both channels and every hold owned by the holder is released immediately
// rather than waiting for TTL, so other viewers see freed seats quickly.
func (r *tripRoom) disconnect(connID, holderID string) {
	r.unsubscribe(ChannelSeatSelection, connID)
	r.unsubscribe(ChannelTracking, connID)

	changed := false
	for seat, h := range r.holds {
		if h.holderID == holderID {
			delete(r.holds, seat)
			changed = true
			if r.c.metrics != nil {
				r.c.metrics.ActiveHolds.Dec()
			}
		}
	}
	if changed {
		r.broadcastSeatStatus()
	}
}

// sweep expires holds whose TTL has elapsed and announces a stale tracking
// phase once per silence window. It runs on the room goroutine like every
// other operation, so expiry can never race a commit.
func (r *tripRoom) sweep() {
	now := r.c.clock.Now()

	expired := false
	for seat, h := range r.holds {
		if now.After(h.expiresAt) {
			delete(r.holds, seat)
			expired = true
			if r.c.metrics != nil {
				r.c.metrics.ActiveHolds.Dec()
			}
		}
	}
	if expired {
		r.broadcastSeatStatus()
	}

	if r.lastSample != nil && !r.staleAnnounced && r.c.stale.Check(r.lastSample, now) {
		r.staleAnnounced = true
		r.broadcastTracking(r.trackingState())
	}
}

// idle reports whether this room can be evicted: nobody connected, no live
// holds, and no activity within the idle window.
func (r *tripRoom) idle() bool {
	now := r.c.clock.Now()
	for _, subs := range r.members {
		if len(subs) > 0 {
			return false
		}
	}
	for _, h := range r.holds {
		if !now.After(h.expiresAt) {
			return false
		}
	}
	return now.Sub(r.lastActivity) >= r.c.cfg.RoomIdleAfter
}

// --- derived views ---

func (r *tripRoom) seatStatus() *models.SeatStatus {
	now := r.c.clock.Now()

	bookedSeats := make([]int, 0, len(r.booked))
	for seat := range r.booked {
		bookedSeats = append(bookedSeats, seat)
	}
	sort.Ints(bookedSeats)

	heldSeats := make([]int, 0, len(r.holds))
	for seat, h := range r.holds {
		if !now.After(h.expiresAt) {
			heldSeats = append(heldSeats, seat)
		}
	}
	sort.Ints(heldSeats)

	return &models.SeatStatus{
		TripID:      r.tripID,
		BookedSeats: bookedSeats,
		HeldSeats:   heldSeats,
	}
}

// trackingState builds the tracking payload for a push or a late-join
// bootstrap. The progress snapshot is recomputed every time, never cached.
func (r *tripRoom) trackingState() *models.TrackingState {
	now := r.c.clock.Now()
	if r.lastSample == nil {
		return &models.TrackingState{
			TripID:  r.tripID,
			HasData: false,
			Phase:   models.PhaseNoSamplesYet,
		}
	}

	sample := *r.lastSample
	snapshot := r.c.estimator.Estimate(r.trip.Route, sample, r.derivedSpeed, now)
	speed := r.c.estimator.EffectiveSpeedKPH(sample.SpeedKPH, r.derivedSpeed)

	return &models.TrackingState{
		TripID:    r.tripID,
		HasData:   true,
		Phase:     r.c.stale.Phase(&sample, now),
		Location:  &models.Location{Lat: sample.Lat, Lon: sample.Lon},
		SpeedKPH:  speed,
		Progress:  snapshot,
		Stale:     r.c.stale.Check(&sample, now),
		Timestamp: sample.Timestamp.UnixMilli(),
	}
}

// --- fan-out ---

func (r *tripRoom) broadcastSeatStatus() {
	r.deliver(ChannelSeatSelection, Event{Kind: ChannelSeatSelection, SeatStatus: r.seatStatus()})
}

func (r *tripRoom) broadcastTracking(state *models.TrackingState) {
	r.deliver(ChannelTracking, Event{Kind: ChannelTracking, Tracking: state})
}

// deliver pushes the event to every subscriber of the channel. Delivery is
// best-effort: a failed push reaps the connection instead of propagating an
// error to the publisher.
func (r *tripRoom) deliver(kind ChannelKind, event Event) {
	subs := r.members[kind]
	for id, sub := range subs {
		if err := sub.Deliver(event); err != nil {
			r.logger.Debug("reaping dead subscriber",
				slog.String("connection_id", id), slog.Any("error", err))
			delete(subs, id)
			if r.c.metrics != nil {
				r.c.metrics.Subscribers.WithLabelValues(string(kind)).Dec()
			}
		}
	}
	if r.c.metrics != nil {
		r.c.metrics.BroadcastsTotal.WithLabelValues(string(kind)).Inc()
	}
}
