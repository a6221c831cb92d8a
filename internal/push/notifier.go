// Package push sends Web Push notifications for users without a live
// connection. Subscriptions are stored per user; dead endpoints are pruned
// on delivery failure.
package push

import (
	"context"
	"encoding/json"
	"fmt"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/chatline/internal/config"
	"github.com/chatline/internal/logger"
	"github.com/chatline/internal/repository"
)

// SubscriptionStore is the slice of the push subscription repository the
// notifier needs.
type SubscriptionStore interface {
	ListByUser(ctx context.Context, userID string) ([]repository.PushSubscription, error)
	Delete(ctx context.Context, userID, endpoint string) error
}

type Notifier struct {
	subs  SubscriptionStore
	vapid *webpush.Options
}

// NewNotifier builds the notifier. With empty VAPID keys subscriptions are
// still stored but nothing is sent.
func NewNotifier(subs SubscriptionStore, cfg *config.PushConfig) *Notifier {
	var opts *webpush.Options
	if cfg.VAPIDPublicKey != "" && cfg.VAPIDPrivateKey != "" {
		opts = &webpush.Options{
			Subscriber:      cfg.Subject,
			VAPIDPublicKey:  cfg.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.VAPIDPrivateKey,
			TTL:             30,
		}
	}
	return &Notifier{subs: subs, vapid: opts}
}

// Notify pushes to every subscription the user has. Endpoints answering 404
// or 410 are gone and get deleted.
func (n *Notifier) Notify(ctx context.Context, userID, title, body string) error {
	if n.vapid == nil {
		return nil
	}
	subs, err := n.subs.ListByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("push: list subscriptions for %s: %w", userID, err)
	}
	if len(subs) == 0 {
		return nil
	}
	payload, err := json.Marshal(map[string]string{"title": title, "body": body})
	if err != nil {
		return fmt.Errorf("push: marshal payload: %w", err)
	}

	for _, sub := range subs {
		wpSub := &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys:     webpush.Keys{P256dh: sub.P256dh, Auth: sub.Auth},
		}
		resp, err := webpush.SendNotificationWithContext(ctx, payload, wpSub, n.vapid)
		if err != nil {
			logger.Errorf("push: send to %s: %v", truncEndpoint(sub.Endpoint), err)
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == 404 || resp.StatusCode == 410 {
			if err := n.subs.Delete(ctx, userID, sub.Endpoint); err != nil {
				logger.Errorf("push: prune %s: %v", truncEndpoint(sub.Endpoint), err)
			}
		}
	}
	return nil
}

func truncEndpoint(e string) string {
	const max = 50
	if len(e) > max {
		return e[:max]
	}
	return e
}
