// Package webhookguard deduplicates external webhook deliveries so the
// side-effecting handler for a payment event runs exactly once, no matter
// how many times the provider retries or how many deliveries race.
package webhookguard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/tipcast/tipcast/app/models"
	"gorm.io/gorm"
)

// Handler is the side-effecting action to run exactly once per event.
type Handler func(ctx context.Context) error

// Guard wraps webhook handlers with insert-first idempotency.
type Guard struct {
	repo Repository
}

// NewGuard creates a guard from an injected repository.
func NewGuard(repo Repository) *Guard {
	return &Guard{repo: repo}
}

// NewGuardFromDB creates a guard from a GORM DB handle.
func NewGuardFromDB(db *gorm.DB) *Guard {
	return NewGuard(NewRepository(db))
}

// ProcessOnce runs handler exactly once per (provider, eventKey).
//
// The uniqueness constraint on the event row makes the insert the
// serialization point: of N concurrent deliveries exactly one creates the
// row and runs the handler, the rest observe alreadyProcessed = true. A
// handler failure marks the row failed and propagates the error so the HTTP
// layer answers non-2xx and the provider retries; a later retry finds the
// failed row, takes it over, and re-runs the handler.
func (g *Guard) ProcessOnce(ctx context.Context, provider, eventKey, eventType string, payload []byte, handler Handler) (bool, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return false, errors.New("provider is required")
	}
	eventKey = strings.TrimSpace(eventKey)
	if eventKey == "" {
		// Providers occasionally omit delivery IDs; fall back to a content
		// fingerprint so replays of the identical payload still dedup.
		eventKey = "hash:" + payloadHash(payload)
	}

	event := &models.WebhookEvent{
		Provider:    provider,
		EventKey:    eventKey,
		EventType:   strings.TrimSpace(eventType),
		PayloadHash: payloadHash(payload),
		Status:      models.WebhookEventProcessing,
	}

	created, stored, err := g.repo.CreateIfNotExists(event)
	if err != nil {
		return false, err
	}

	if !created {
		if stored.Status != models.WebhookEventFailed {
			return true, nil
		}
		// The previous attempt failed. Exactly one retry delivery wins the
		// takeover and re-runs the handler; losers report already processed.
		taken, err := g.repo.TakeOverFailed(stored.ID)
		if err != nil {
			return false, err
		}
		if !taken {
			return true, nil
		}
	}

	return false, g.run(ctx, stored.ID, handler)
}

func (g *Guard) run(ctx context.Context, eventID uint, handler Handler) error {
	if err := handler(ctx); err != nil {
		if markErr := g.repo.MarkOutcome(eventID, models.WebhookEventFailed, err.Error()); markErr != nil {
			return errors.Join(err, markErr)
		}
		return err
	}
	return g.repo.MarkOutcome(eventID, models.WebhookEventProcessed, "")
}

func payloadHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
