// README: Live-update channel for ride changes. Subscriptions are explicit
// handles owned by the caller; teardown is Close(), required.
package ride

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"

	"glide/internal/types"
)

// Change is one live-update event: a ride moved from one status to another.
// Doc carries the ride document so feed consumers can filter without a
// round-trip to the store.
type Change struct {
	RideID   types.ID       `json:"rideId"`
	RiderID  types.ID       `json:"riderId"`
	DriverID types.ID       `json:"driverId,omitempty"`
	From     Status         `json:"from"`
	Status   Status         `json:"status"`
	Doc      map[string]any `json:"doc,omitempty"`
}

// Watcher hands out live subscriptions to ride changes.
type Watcher interface {
	Watch(ctx context.Context) (*Subscription, error)
}

// Subscription is a caller-owned handle on the live-update channel. The
// Updates channel closes after Close is called (or the backing feed drops).
type Subscription struct {
	updates   chan Change
	closeOnce sync.Once
	stop      func()
}

func (s *Subscription) Updates() <-chan Change {
	return s.updates
}

func (s *Subscription) Close() {
	s.closeOnce.Do(s.stop)
}

const feedChannel = "rides:changes"

// RedisFeed carries ride changes over a redis pub/sub channel so every API
// process observes every transition regardless of which one performed it.
type RedisFeed struct {
	client *redis.Client
}

func NewRedisFeed(client *redis.Client) *RedisFeed {
	return &RedisFeed{client: client}
}

func (f *RedisFeed) Publish(ctx context.Context, c Change) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, feedChannel, payload).Err()
}

func (f *RedisFeed) Watch(ctx context.Context) (*Subscription, error) {
	ps := f.client.Subscribe(ctx, feedChannel)
	// Force the subscribe round-trip so a dead broker fails here, not on
	// first receive.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	sub := &Subscription{
		updates: make(chan Change, 64),
		stop:    func() { _ = ps.Close() },
	}
	go func() {
		defer close(sub.updates)
		for msg := range ps.Channel() {
			var c Change
			if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
				continue
			}
			select {
			case sub.updates <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return sub, nil
}

// Hub is an in-process feed for tests and single-process deployments.
type Hub struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Change
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan Change)}
}

func (h *Hub) Publish(_ context.Context, c Change) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- c:
		default:
			// Slow consumer; drop rather than block the publisher.
		}
	}
	return nil
}

func (h *Hub) Watch(_ context.Context) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	ch := make(chan Change, 64)
	h.subs[id] = ch
	return &Subscription{
		updates: ch,
		stop: func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			close(ch)
		},
	}, nil
}
