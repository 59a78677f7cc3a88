package repository

import (
	"context"
	"time"

	"github.com/tipcast/tipcast/app/models"
)

// UserRepository provides streamer account and settings lookups.
type UserRepository interface {
	GetByID(id uint) (*models.User, error)
	GetByUsername(name string) (*models.User, error)
	GetSettings(userID uint) (*models.UserSettings, error)
	SaveSettings(us *models.UserSettings) error
	GetByAPIKeyHash(hash string) (*models.User, *models.UserSettings, error)
}

// DonationRepository provides donation persistence and status flips.
type DonationRepository interface {
	Create(d *models.Donation) error
	GetByID(id uint) (*models.Donation, error)
	GetByProviderPaymentID(provider, providerPaymentID string) (*models.Donation, error)
	// MarkPaid flips a pending donation to paid. The changed flag is false
	// when the donation was already in a non-pending state.
	MarkPaid(ctx context.Context, provider, providerPaymentID string, paidAt time.Time) (*models.Donation, bool, error)
	MarkExpired(ctx context.Context, provider, providerPaymentID string) (*models.Donation, bool, error)
}

// AlertRepository owns the alert state machine. All status mutations go
// through these operations; callers never read-then-write alert rows
// directly.
type AlertRepository interface {
	Create(a *models.Alert) error
	GetByID(id uint) (*models.Alert, error)
	// ClaimNext atomically hands out the oldest deliverable alert for a
	// streamer, locking it for models.AlertLockDuration. Returns nil when no
	// alert is eligible. Two concurrent claims never both receive the same
	// alert.
	ClaimNext(ctx context.Context, userID uint) (*models.Alert, error)
	// Acknowledge flips a locked alert to done. Fails with ErrNotLocked when
	// the alert is not currently locked or belongs to another streamer.
	Acknowledge(ctx context.Context, alertID, userID uint) error
	// Skip forces a non-terminal alert to skipped.
	Skip(ctx context.Context, alertID, userID uint) error
	// MarkReady transitions a queued alert to ready, recording the narration
	// outcome. An empty audioURL with a non-empty lastError is a degraded,
	// silent alert.
	MarkReady(ctx context.Context, alertID uint, audioURL, lastError string) error
	// CurrentLocked returns the alert a streamer's overlay is displaying
	// right now, or an error when none is locked.
	CurrentLocked(ctx context.Context, userID uint) (*models.Alert, error)
	// LastDone returns the most recently acknowledged alert for a streamer.
	LastDone(ctx context.Context, userID uint) (*models.Alert, error)
	// DoneByDonation returns the most recent done alert for a donation.
	DoneByDonation(ctx context.Context, userID, donationID uint) (*models.Alert, error)
	// ReclaimExpired flips locked alerts with lapsed locks back to ready and
	// returns how many rows changed.
	ReclaimExpired(ctx context.Context) (int64, error)
}

// Repositories bundles all repository implementations.
type Repositories struct {
	User     UserRepository
	Donation DonationRepository
	Alert    AlertRepository
}
