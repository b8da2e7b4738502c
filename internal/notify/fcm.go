// README: Push-notification bridge. Consumes ride transitions from the live
// feed and forwards them to the affected party over FCM. Everything here is
// best-effort: a failed push never blocks or rolls back a transition.
package notify

import (
	"context"
	"log/slog"

	"firebase.google.com/go/v4/messaging"

	"glide/internal/modules/ride"
	"glide/internal/types"
)

// TokenSource resolves a user to their registered device token. Empty token
// means no registered device; the notification is skipped.
type TokenSource interface {
	DeviceToken(ctx context.Context, userID types.ID) (string, error)
}

// Sender is the slice of the FCM client the bridge uses.
type Sender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

type Bridge struct {
	feed   ride.Watcher
	tokens TokenSource
	sender Sender
	log    *slog.Logger
}

func NewBridge(feed ride.Watcher, tokens TokenSource, sender Sender, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{feed: feed, tokens: tokens, sender: sender, log: log}
}

// Run blocks until the context is cancelled or the feed closes.
func (b *Bridge) Run(ctx context.Context) error {
	sub, err := b.feed.Watch(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-sub.Updates():
			if !ok {
				return nil
			}
			b.notify(ctx, c)
		}
	}
}

func (b *Bridge) notify(ctx context.Context, c ride.Change) {
	recipient, title, body := compose(c)
	if recipient == "" {
		return
	}

	token, err := b.tokens.DeviceToken(ctx, recipient)
	if err != nil {
		b.log.Warn("device token lookup", "user_id", recipient, "err", err)
		return
	}
	if token == "" {
		return
	}

	msg := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: map[string]string{
			"rideId": string(c.RideID),
			"status": string(c.Status),
		},
	}
	if _, err := b.sender.Send(ctx, msg); err != nil {
		b.log.Warn("send push", "user_id", recipient, "ride_id", c.RideID, "err", err)
		return
	}
	b.log.Info("push sent", "user_id", recipient, "ride_id", c.RideID, "status", c.Status)
}

// compose picks the party who needs to hear about this transition and the
// notification text. Empty recipient means nobody is notified.
func compose(c ride.Change) (recipient types.ID, title, body string) {
	switch c.Status {
	case ride.StatusPending:
		if c.From == ride.StatusNeedsReassignment {
			// Re-entry: the newly selected driver gets the request.
			return c.DriverID, "New ride request", "A rider selected you for their trip."
		}
		if c.DriverID != "" {
			return c.DriverID, "New ride request", "A rider selected you for their trip."
		}
		return "", "", ""
	case ride.StatusAccepted:
		return c.RiderID, "Driver on the way", "Your driver accepted the ride."
	case ride.StatusInProgress:
		return c.RiderID, "Trip started", "Your trip is underway."
	case ride.StatusCompleted:
		return c.RiderID, "Trip completed", "Thanks for riding with us."
	case ride.StatusCancelledByDriver, ride.StatusDeclined:
		return c.RiderID, "Driver unavailable", "Your driver dropped out. Pick another driver to continue."
	case ride.StatusCancelled:
		if c.DriverID != "" {
			return c.DriverID, "Ride cancelled", "The rider cancelled this trip."
		}
		return "", "", ""
	}
	return "", "", ""
}
