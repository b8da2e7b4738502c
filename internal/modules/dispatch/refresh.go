// README: Feed-driven refresh signalling for match lists. Changes to the
// open-ride set arrive on the live feed; a burst inside the debounce window
// coalesces into a single refresh that fires once the burst quiets, carrying
// the burst's final change.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"glide/internal/modules/ride"
)

// RefreshFunc is invoked when the open-ride set may have changed. The last
// change of the coalesced burst is passed so consumers can scope the refresh.
type RefreshFunc func(c ride.Change)

// Debouncer coalesces triggers per key. Each trigger resets the key's timer;
// the callback fires once the key has been quiet for a full window, with the
// latest change recorded for it.
type Debouncer struct {
	mu       sync.Mutex
	interval time.Duration
	fire     RefreshFunc
	pending  map[string]*pendingRefresh
}

type pendingRefresh struct {
	timer  *time.Timer
	latest ride.Change
}

func NewDebouncer(interval time.Duration, fire RefreshFunc) *Debouncer {
	return &Debouncer{
		interval: interval,
		fire:     fire,
		pending:  make(map[string]*pendingRefresh),
	}
}

// Trigger records a change for the key and (re)starts its quiet-window timer.
func (d *Debouncer) Trigger(key string, c ride.Change) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pending[key]; ok {
		p.latest = c
		p.timer.Reset(d.interval)
		return
	}
	p := &pendingRefresh{latest: c}
	p.timer = time.AfterFunc(d.interval, func() { d.flush(key) })
	d.pending[key] = p
}

func (d *Debouncer) flush(key string) {
	d.mu.Lock()
	p, ok := d.pending[key]
	if ok {
		delete(d.pending, key)
	}
	d.mu.Unlock()
	if ok {
		d.fire(p.latest)
	}
}

// Stop cancels all pending timers without firing them.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, key)
	}
}

// Refresher watches the live feed and fires the callback on changes that
// alter what drivers see, debounced so a burst of transitions collapses into
// one refresh after the burst quiets.
type Refresher struct {
	feed     ride.Watcher
	debounce *Debouncer
	log      *slog.Logger
}

func NewRefresher(feed ride.Watcher, debounce time.Duration, onChange RefreshFunc, log *slog.Logger) *Refresher {
	if log == nil {
		log = slog.Default()
	}
	return &Refresher{
		feed:     feed,
		debounce: NewDebouncer(debounce, onChange),
		log:      log,
	}
}

// Run blocks until the context is cancelled or the feed closes. Pending
// debounce timers are cancelled on the way out.
func (r *Refresher) Run(ctx context.Context) error {
	sub, err := r.feed.Watch(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()
	defer r.debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-sub.Updates():
			if !ok {
				return nil
			}
			if !affectsOpenSet(c) {
				continue
			}
			r.debounce.Trigger("pending", c)
		}
	}
}

// affectsOpenSet reports whether a transition changes the set of rides a
// driver could see: anything entering or leaving pending.
func affectsOpenSet(c ride.Change) bool {
	return c.Status == ride.StatusPending || c.From == ride.StatusPending
}
