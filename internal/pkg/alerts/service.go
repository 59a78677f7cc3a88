package alerts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/tipcast/tipcast/app/models"
	"github.com/tipcast/tipcast/app/repository"
	metrics "github.com/tipcast/tipcast/internal/pkg/metrics/counter"
)

// ErrDonationNotFound is returned when a payment event references a donation
// this service never issued.
var ErrDonationNotFound = errors.New("donation not found")

// EnqueueFunc schedules the narration build for a freshly queued alert.
type EnqueueFunc func(alertID, userID uint) error

// Service owns the alert delivery pipeline between paid donations and the
// overlay: it turns payment events into alert rows, hands alerts out to
// polling overlays and records their consumption.
type Service struct {
	repos   *repository.Repositories
	enqueue EnqueueFunc
}

// NewService creates an alert service from injected repositories. enqueue may
// be nil; queued alerts then wait for the internal narration endpoint.
func NewService(repos *repository.Repositories, enqueue EnqueueFunc) *Service {
	return &Service{repos: repos, enqueue: enqueue}
}

// NewServiceFromDB creates an alert service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, enqueue EnqueueFunc) *Service {
	return NewService(repository.NewRepositories(db), enqueue)
}

// HandlePaymentCompleted marks the referenced donation paid and creates its
// alert. Alerts start queued when narration is enabled, ready otherwise.
// Donations below the streamer's configured minimum are marked paid but never
// produce an alert.
func (s *Service) HandlePaymentCompleted(ctx context.Context, provider, providerPaymentID string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	providerPaymentID = strings.TrimSpace(providerPaymentID)
	if provider == "" || providerPaymentID == "" {
		return errors.New("provider and payment id are required")
	}

	donation, changed, err := s.repos.Donation.MarkPaid(ctx, provider, providerPaymentID, time.Now())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s/%s", ErrDonationNotFound, provider, providerPaymentID)
		}
		return err
	}
	if !changed {
		// Donation already paid or expired; the guard normally shields us from
		// duplicates but providers occasionally reuse payment ids across
		// distinct event keys.
		log.Infof("[Alerts] Donation %d already settled, no alert created", donation.ID)
		return nil
	}

	if err := metrics.AddDonationPaid(donation.UserID); err != nil {
		log.Warnf("[Alerts] Failed to count paid donation for user %d: %v", donation.UserID, err)
	}

	settings, err := s.repos.User.GetSettings(donation.UserID)
	if err != nil {
		return fmt.Errorf("load settings for user %d: %w", donation.UserID, err)
	}

	if settings != nil && settings.MinDonationCents > 0 && donation.AmountCents < settings.MinDonationCents {
		log.Infof("[Alerts] Donation %d below minimum (%d < %d), no alert",
			donation.ID, donation.AmountCents, settings.MinDonationCents)
		return nil
	}

	alert := &models.Alert{
		UserID:     donation.UserID,
		DonationID: donation.ID,
		Status:     models.AlertStatusQueued,
	}
	if settings == nil || !settings.NarrationEnabled {
		now := time.Now()
		alert.Status = models.AlertStatusReady
		alert.ReadyAt = &now
	}
	if err := s.repos.Alert.Create(alert); err != nil {
		return fmt.Errorf("create alert for donation %d: %w", donation.ID, err)
	}

	if alert.Status == models.AlertStatusQueued {
		s.scheduleNarration(alert)
	}
	return nil
}

// HandlePaymentExpired marks the referenced donation expired. No alert is
// ever created for an expired payment.
func (s *Service) HandlePaymentExpired(ctx context.Context, provider, providerPaymentID string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	providerPaymentID = strings.TrimSpace(providerPaymentID)
	if provider == "" || providerPaymentID == "" {
		return errors.New("provider and payment id are required")
	}

	_, _, err := s.repos.Donation.MarkExpired(ctx, provider, providerPaymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s/%s", ErrDonationNotFound, provider, providerPaymentID)
		}
		return err
	}
	return nil
}

// Claim hands out the oldest deliverable alert for a streamer, donation
// loaded, or nil when nothing is eligible.
func (s *Service) Claim(ctx context.Context, userID uint) (*models.Alert, error) {
	claimed, err := s.repos.Alert.ClaimNext(ctx, userID)
	if err != nil || claimed == nil {
		return nil, err
	}
	// Reload with the donation attached; claims fetch the bare row.
	return s.repos.Alert.GetByID(claimed.ID)
}

// Acknowledge confirms an alert finished displaying and counts the delivery.
func (s *Service) Acknowledge(ctx context.Context, alertID, userID uint) error {
	if err := s.repos.Alert.Acknowledge(ctx, alertID, userID); err != nil {
		return err
	}
	if err := metrics.AddAlertDelivered(userID); err != nil {
		log.Warnf("[Alerts] Failed to count delivered alert for user %d: %v", userID, err)
	}
	return nil
}

// Skip forces a non-terminal alert to skipped.
func (s *Service) Skip(ctx context.Context, alertID, userID uint) error {
	return s.repos.Alert.Skip(ctx, alertID, userID)
}

// SkipCurrent silences the alert the overlay is displaying right now. A
// streamer with nothing locked is a no-op.
func (s *Service) SkipCurrent(ctx context.Context, userID uint) error {
	current, err := s.repos.Alert.CurrentLocked(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	return s.repos.Alert.Skip(ctx, current.ID, userID)
}

// ReplayLast creates a fresh delivery cycle for the streamer's most recently
// acknowledged alert.
func (s *Service) ReplayLast(ctx context.Context, userID uint) (*models.Alert, error) {
	prior, err := s.repos.Alert.LastDone(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, err
	}
	return s.replayFrom(prior)
}

// ReplayDonation creates a fresh delivery cycle for a specific donation that
// was already delivered once.
func (s *Service) ReplayDonation(ctx context.Context, userID, donationID uint) (*models.Alert, error) {
	prior, err := s.repos.Alert.DoneByDonation(ctx, userID, donationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, err
	}
	return s.replayFrom(prior)
}

// replayFrom models replay as a brand-new alert, never a mutation of the
// original. Cached audio short-circuits narration; without it the replay goes
// through the builder again.
func (s *Service) replayFrom(prior *models.Alert) (*models.Alert, error) {
	replay := &models.Alert{
		UserID:     prior.UserID,
		DonationID: prior.DonationID,
		Status:     models.AlertStatusQueued,
	}
	if prior.AudioURL != "" {
		now := time.Now()
		replay.Status = models.AlertStatusReady
		replay.AudioURL = prior.AudioURL
		replay.ReadyAt = &now
	}
	if err := s.repos.Alert.Create(replay); err != nil {
		return nil, fmt.Errorf("create replay alert for donation %d: %w", prior.DonationID, err)
	}
	if replay.Status == models.AlertStatusQueued {
		s.scheduleNarration(replay)
	}
	return replay, nil
}

func (s *Service) scheduleNarration(alert *models.Alert) {
	if s.enqueue == nil {
		return
	}
	if err := s.enqueue(alert.ID, alert.UserID); err != nil {
		// The alert stays queued; the internal narration endpoint or a
		// redelivered job can still pick it up.
		log.Errorf("[Alerts] Failed to enqueue narration for alert %d: %v", alert.ID, err)
	}
}
