package payments

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// WebhookKeyStore is the redis surface the dedupe guard needs. *redis.Client
// satisfies it.
type WebhookKeyStore interface {
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	Del(context.Context, ...string) error
	WebhookKey(provider, externalRef, status string) string
}

// IdempotencyGuard remembers which (provider, reference, status) triples were
// already applied.
type IdempotencyGuard struct {
	store WebhookKeyStore
	ttl   time.Duration
}

func NewIdempotencyGuard(store WebhookKeyStore, ttl time.Duration) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &IdempotencyGuard{store: store, ttl: ttl}, nil
}

// CheckAndMark reports whether the triple was seen before, marking it if not.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, provider, reference, status string) (bool, error) {
	if provider == "" || reference == "" || status == "" {
		return false, errors.New("provider, reference and status are required")
	}
	set, err := g.store.SetNX(ctx, g.store.WebhookKey(provider, reference, status), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set webhook key: %w", err)
	}
	return !set, nil
}

// Release forgets the triple so a provider retry is processed again.
func (g *IdempotencyGuard) Release(ctx context.Context, provider, reference, status string) error {
	return g.store.Del(ctx, g.store.WebhookKey(provider, reference, status))
}
