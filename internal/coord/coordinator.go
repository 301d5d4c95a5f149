package coord

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tripcore.ridepulse.org/internal/auth"
	"tripcore.ridepulse.org/internal/clock"
	"tripcore.ridepulse.org/internal/metrics"
	"tripcore.ridepulse.org/internal/models"
	"tripcore.ridepulse.org/internal/progress"
)

// Options are the coordinator's timing knobs, usually taken straight from
// appconf.Config.
type Options struct {
	HoldTTL       time.Duration
	SweepInterval time.Duration
	StaleAfter    time.Duration
	RoomIdleAfter time.Duration
}

// Coordinator owns the trip room registry and fronts every room operation.
// The registry map is the only cross-trip state; everything else lives
// inside the rooms.
type Coordinator struct {
	cfg       Options
	source    TripSource
	store     BookingStore
	relay     LocationRelay
	clock     clock.Clock
	logger    *slog.Logger
	metrics   *metrics.Metrics
	estimator *progress.Estimator
	stale     *progress.StaleDetector

	mu       sync.Mutex
	rooms    map[string]*tripRoom
	shutdown bool

	janitorQuit    chan struct{}
	janitorDone    chan struct{}
	janitorRunning bool
	startOnce      sync.Once
}

// NewCoordinator wires the coordination core. relay and m may be nil (no
// external bus, no metrics) - everything else is required.
func NewCoordinator(cfg Options, source TripSource, store BookingStore, relay LocationRelay, clk clock.Clock, logger *slog.Logger, m *metrics.Metrics) *Coordinator {
	return &Coordinator{
		cfg:         cfg,
		source:      source,
		store:       store,
		relay:       relay,
		clock:       clk,
		logger:      logger.With(slog.String("component", "coord")),
		metrics:     m,
		estimator:   progress.NewEstimator(),
		stale:       progress.NewStaleDetector().WithThreshold(cfg.StaleAfter),
		rooms:       make(map[string]*tripRoom),
		janitorQuit: make(chan struct{}),
		janitorDone: make(chan struct{}),
	}
}

// Start launches the janitor that drives hold expiry, stale announcements
// and idle-room eviction.
func (c *Coordinator) Start() {
	c.startOnce.Do(func() {
		c.mu.Lock()
		c.janitorRunning = true
		c.mu.Unlock()
		go c.janitor()
	})
}

// Shutdown stops the janitor and every trip room, waiting (bounded by ctx)
// for the room goroutines to exit. Held seats are transient and simply
// vanish; booked seats are already durable.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return nil
	}
	c.shutdown = true
	janitorRunning := c.janitorRunning
	rooms := make([]*tripRoom, 0, len(c.rooms))
	for _, room := range c.rooms {
		rooms = append(rooms, room)
	}
	c.mu.Unlock()

	close(c.janitorQuit)
	if janitorRunning {
		select {
		case <-c.janitorDone:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for _, room := range rooms {
		room.stop()
	}
	for _, room := range rooms {
		select {
		case <-room.stopped:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.logger.Info("coordinator shut down", slog.Int("rooms_stopped", len(rooms)))
	return nil
}

// room returns the trip's room, creating it lazily. The trip load happens
// outside the registry lock, then the insert is double-checked so two
// concurrent first-touches converge on one room.
func (c *Coordinator) room(ctx context.Context, tripID string) (*tripRoom, error) {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return nil, ErrShutdown
	}
	if room, ok := c.rooms[tripID]; ok {
		c.mu.Unlock()
		return room, nil
	}
	c.mu.Unlock()

	trip, err := c.source.TripDetails(ctx, tripID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shutdown {
		return nil, ErrShutdown
	}
	if room, ok := c.rooms[tripID]; ok {
		return room, nil
	}
	room := newTripRoom(c, trip)
	c.rooms[tripID] = room
	if c.metrics != nil {
		c.metrics.ActiveRooms.Inc()
	}
	go room.run()
	c.logger.Debug("trip room created", slog.String("trip_id", tripID))
	return room, nil
}

// existingRoom looks up a live room without creating one. Operations that
// only tear state down (unsubscribe, release, disconnect) use this so they
// stay no-ops after an eviction.
func (c *Coordinator) existingRoom(tripID string) *tripRoom {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rooms[tripID]
}

// dropRoom removes a dead room from the registry. Called from the room's
// own exit path; the identity check keeps a stale drop from clobbering a
// recreated successor.
func (c *Coordinator) dropRoom(tripID string, room *tripRoom) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rooms[tripID] == room {
		delete(c.rooms, tripID)
		if c.metrics != nil {
			c.metrics.ActiveRooms.Dec()
		}
	}
}

// exec runs fn on the trip's room goroutine and waits for it to complete.
// If the room dies before the op was ever enqueued, the lookup is retried
// once against a freshly created room. If the room dies with the op already
// queued, the op's effects are ambiguous and ErrRoomFailed is returned
// instead of retrying.
func (c *Coordinator) exec(ctx context.Context, tripID string, fn func(*tripRoom)) error {
	for attempt := 0; attempt < 2; attempt++ {
		room, err := c.room(ctx, tripID)
		if err != nil {
			return err
		}

		op := roomOp{fn: fn, done: make(chan struct{})}
		select {
		case room.ops <- op:
		case <-room.stopped:
			continue
		case <-ctx.Done():
			return ctx.Err()
		}

		select {
		case <-op.done:
			return nil
		case <-room.stopped:
			select {
			case <-op.done:
				return nil
			default:
				return ErrRoomFailed
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return ErrRoomFailed
}

// Subscribe registers a connection on one of the trip's channels. The room
// delivers the bootstrap snapshot through sub.Deliver before this returns,
// ahead of any subsequent broadcast, so a late joiner is never blank and
// never sees a push ordered before its bootstrap.
func (c *Coordinator) Subscribe(ctx context.Context, tripID string, kind ChannelKind, sub Subscriber) error {
	return c.exec(ctx, tripID, func(r *tripRoom) {
		r.subscribe(kind, sub)
	})
}

// Unsubscribe removes a connection from one channel. A trip with no live
// room is already unsubscribed.
func (c *Coordinator) Unsubscribe(tripID string, kind ChannelKind, connID string) {
	room := c.existingRoom(tripID)
	if room == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = c.execOn(ctx, room, func(r *tripRoom) {
		r.unsubscribe(kind, connID)
	})
}

// HoldSeats attempts a TTL soft-lock on each requested seat, returning a
// per-seat outcome. Contention is reported in the results, not as an error.
func (c *Coordinator) HoldSeats(ctx context.Context, tripID string, seats []int, holderID string) ([]HoldResult, error) {
	var results []HoldResult
	var opErr error
	err := c.exec(ctx, tripID, func(r *tripRoom) {
		results, opErr = r.holdSeats(seats, holderID)
	})
	if err != nil {
		return nil, err
	}
	return results, opErr
}

// ReleaseSeats drops the holder's holds on the given seats. Idempotent.
func (c *Coordinator) ReleaseSeats(ctx context.Context, tripID string, seats []int, holderID string) error {
	room := c.existingRoom(tripID)
	if room == nil {
		return nil
	}
	return c.execOn(ctx, room, func(r *tripRoom) {
		r.releaseSeats(seats, holderID)
	})
}

// Commit converts the requested seats into permanent bookings, all or
// nothing, persisting durably before acknowledging.
func (c *Coordinator) Commit(ctx context.Context, tripID string, seats []int, holderID string) (CommitResult, error) {
	var result CommitResult
	var opErr error
	err := c.exec(ctx, tripID, func(r *tripRoom) {
		result, opErr = r.commit(ctx, seats, holderID)
	})
	if err != nil {
		return CommitResult{}, err
	}
	return result, opErr
}

// Publish ingests a location sample from an authorized publisher and fans
// the refreshed tracking state out to subscribers.
func (c *Coordinator) Publish(ctx context.Context, tripID string, ident auth.Identity, sample models.LocationSample) (PublishResult, error) {
	var result PublishResult
	err := c.exec(ctx, tripID, func(r *tripRoom) {
		result = r.publish(ident, sample)
	})
	if err != nil {
		return PublishResult{}, err
	}
	return result, nil
}

// Disconnect tears down everything a closed connection owned in the trip:
// channel memberships and all of the holder's seat holds.
func (c *Coordinator) Disconnect(ctx context.Context, tripID string, connID, holderID string) error {
	room := c.existingRoom(tripID)
	if room == nil {
		return nil
	}
	return c.execOn(ctx, room, func(r *tripRoom) {
		r.disconnect(connID, holderID)
	})
}

// SeatStatusSnapshot returns the current booked and held seat sets.
func (c *Coordinator) SeatStatusSnapshot(ctx context.Context, tripID string) (*models.SeatStatus, error) {
	var status *models.SeatStatus
	err := c.exec(ctx, tripID, func(r *tripRoom) {
		status = r.seatStatus()
	})
	return status, err
}

// TrackingSnapshot returns the current tracking state, identical to what a
// subscriber would receive as bootstrap.
func (c *Coordinator) TrackingSnapshot(ctx context.Context, tripID string) (*models.TrackingState, error) {
	var state *models.TrackingState
	err := c.exec(ctx, tripID, func(r *tripRoom) {
		state = r.trackingState()
	})
	return state, err
}

// execOn is exec against a room already in hand, without the create-retry
// path.
func (c *Coordinator) execOn(ctx context.Context, room *tripRoom, fn func(*tripRoom)) error {
	op := roomOp{fn: fn, done: make(chan struct{})}
	select {
	case room.ops <- op:
	case <-room.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-op.done:
		return nil
	case <-room.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// janitor periodically drives every room's sweep (hold expiry, stale
// announcement) and evicts idle rooms.
func (c *Coordinator) janitor() {
	defer close(c.janitorDone)
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweepAll()
		case <-c.janitorQuit:
			return
		}
	}
}

// sweepAll enqueues a sweep on every live room. Enqueue is non-blocking: a
// room with a saturated queue is busy and will be swept next tick.
func (c *Coordinator) sweepAll() {
	c.mu.Lock()
	rooms := make([]*tripRoom, 0, len(c.rooms))
	for _, room := range c.rooms {
		rooms = append(rooms, room)
	}
	c.mu.Unlock()

	for _, room := range rooms {
		op := roomOp{done: make(chan struct{}), fn: func(r *tripRoom) {
			r.sweep()
			if r.idle() {
				r.logger.Debug("evicting idle trip room")
				r.stop()
			}
		}}
		select {
		case room.ops <- op:
		default:
		}
	}
}

// RoomDebug is a point-in-time summary of one trip room for the debug UI.
type RoomDebug struct {
	TripID        string
	BookedSeats   []int
	HeldSeats     []int
	Subscribers   map[ChannelKind]int
	Phase         models.TrackingPhase
	LastTimestamp time.Time
	LastActivity  time.Time
}

// DebugState snapshots every live room. Best-effort; rooms that die while
// being queried are skipped.
func (c *Coordinator) DebugState(ctx context.Context) []RoomDebug {
	c.mu.Lock()
	rooms := make([]*tripRoom, 0, len(c.rooms))
	for _, room := range c.rooms {
		rooms = append(rooms, room)
	}
	c.mu.Unlock()

	out := make([]RoomDebug, 0, len(rooms))
	for _, room := range rooms {
		var d RoomDebug
		captured := false
		err := c.execOn(ctx, room, func(r *tripRoom) {
			status := r.seatStatus()
			d = RoomDebug{
				TripID:      r.tripID,
				BookedSeats: status.BookedSeats,
				HeldSeats:   status.HeldSeats,
				Subscribers: map[ChannelKind]int{
					ChannelSeatSelection: len(r.members[ChannelSeatSelection]),
					ChannelTracking:      len(r.members[ChannelTracking]),
				},
				Phase:        r.trackingState().Phase,
				LastActivity: r.lastActivity,
			}
			if r.lastSample != nil {
				d.LastTimestamp = r.lastSample.Timestamp
			}
			captured = true
		})
		if err == nil && captured {
			out = append(out, d)
		}
	}
	return out
}
