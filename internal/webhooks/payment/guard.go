package paymentwebhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Provider scopes payment gateway delivery keys in Redis.
const Provider = "payment"

type deliveryStore interface {
	MarkWebhookSeen(ctx context.Context, provider, deliveryID string, ttl time.Duration) (bool, error)
	WebhookKey(provider, deliveryID string) string
	Del(ctx context.Context, keys ...string) error
}

// Guard deduplicates gateway deliveries before they reach the order service.
type Guard struct {
	store deliveryStore
	ttl   time.Duration
}

func NewGuard(store deliveryStore, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("webhook store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Guard{store: store, ttl: ttl}, nil
}

// DeliveryID identifies one gateway notification. Success and failure for the
// same transaction are distinct deliveries.
func DeliveryID(transactionID, status string) string {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return ""
	}
	return transactionID + ":" + strings.ToLower(strings.TrimSpace(status))
}

// CheckAndMark reports true when the delivery was already seen.
func (g *Guard) CheckAndMark(ctx context.Context, deliveryID string) (bool, error) {
	if deliveryID == "" {
		return false, errors.New("delivery id is required")
	}
	fresh, err := g.store.MarkWebhookSeen(ctx, Provider, deliveryID, g.ttl)
	if err != nil {
		return false, fmt.Errorf("mark webhook delivery: %w", err)
	}
	return !fresh, nil
}

// Delete forgets a delivery so the gateway's retry is processed again.
func (g *Guard) Delete(ctx context.Context, deliveryID string) error {
	if deliveryID == "" {
		return errors.New("delivery id is required")
	}
	return g.store.Del(ctx, g.store.WebhookKey(Provider, deliveryID))
}
