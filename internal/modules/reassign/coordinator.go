// README: Reassignment coordinator. Watches the live feed for driver
// drop-outs and flips the ride into the reassignment pool. Edge-triggered:
// acting on the transition event, not on observed state, so a ride that was
// already handled is left alone. A periodic sweep backstops the feed: pub/sub
// is fire-and-forget, so a lost drop-out message is reconciled from the store
// on the next tick.
package reassign

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"glide/internal/modules/ride"
	"glide/internal/types"
)

const defaultSweepInterval = 30 * time.Second

// RideSource is the slice of the ride service the coordinator drives.
type RideSource interface {
	Reopen(ctx context.Context, rideID, departing types.ID, from ride.Status) error
	ListByStatus(ctx context.Context, status ride.Status) ([]*ride.Ride, error)
}

type Coordinator struct {
	feed       ride.Watcher
	rides      RideSource
	log        *slog.Logger
	sweepEvery time.Duration

	// lastSeen suppresses repeated handling when the feed re-delivers the
	// same transition. The store-level write is idempotent regardless; this
	// just avoids the round-trip.
	mu       sync.Mutex
	lastSeen map[types.ID]ride.Status
}

func NewCoordinator(feed ride.Watcher, rides RideSource, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		feed:       feed,
		rides:      rides,
		log:        log,
		sweepEvery: defaultSweepInterval,
		lastSeen:   make(map[types.ID]ride.Status),
	}
}

// SetSweepInterval overrides how often the reconciliation sweep runs.
func (c *Coordinator) SetSweepInterval(d time.Duration) {
	c.sweepEvery = d
}

// Run blocks until the context is cancelled or the feed closes.
func (c *Coordinator) Run(ctx context.Context) error {
	sub, err := c.feed.Watch(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()

	ticker := time.NewTicker(c.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.sweep(ctx)
		case change, ok := <-sub.Updates():
			if !ok {
				return nil
			}
			c.handle(ctx, change)
		}
	}
}

func (c *Coordinator) handle(ctx context.Context, change ride.Change) {
	if change.Status != ride.StatusDeclined && change.Status != ride.StatusCancelledByDriver {
		c.observe(change)
		return
	}
	if !c.edge(change) {
		return
	}
	if change.DriverID == "" {
		c.log.Warn("drop-out event without a driver", "ride_id", change.RideID, "status", change.Status)
		return
	}
	if err := c.rides.Reopen(ctx, change.RideID, change.DriverID, change.Status); err != nil {
		c.log.Error("reopen ride", "ride_id", change.RideID, "err", err)
		return
	}
	c.log.Info("ride reopened for reassignment",
		"ride_id", change.RideID, "departing_driver", change.DriverID, "from", change.Status)
}

// sweep reconciles rides stranded in a drop-out status because the feed
// message never arrived. Reopen is idempotent, so re-covering a ride the feed
// already handled is harmless.
func (c *Coordinator) sweep(ctx context.Context) {
	for _, status := range []ride.Status{ride.StatusDeclined, ride.StatusCancelledByDriver} {
		stranded, err := c.rides.ListByStatus(ctx, status)
		if err != nil {
			c.log.Error("sweep list rides", "status", status, "err", err)
			continue
		}
		for _, r := range stranded {
			if r.DriverID == nil {
				c.log.Warn("stranded ride without a driver", "ride_id", r.ID, "status", r.Status)
				continue
			}
			if err := c.rides.Reopen(ctx, r.ID, *r.DriverID, r.Status); err != nil {
				c.log.Error("sweep reopen", "ride_id", r.ID, "err", err)
				continue
			}
			c.log.Info("sweep reopened stranded ride", "ride_id", r.ID, "from", r.Status)
		}
	}
}

// edge reports whether this change is a new observation for the ride.
func (c *Coordinator) edge(change ride.Change) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastSeen[change.RideID] == change.Status {
		return false
	}
	c.lastSeen[change.RideID] = change.Status
	return true
}

func (c *Coordinator) observe(change ride.Change) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if change.Status.Terminal() {
		// Terminal rides never come back; stop tracking them.
		delete(c.lastSeen, change.RideID)
		return
	}
	c.lastSeen[change.RideID] = change.Status
}
