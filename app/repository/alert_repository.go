package repository

import (
	"context"
	"errors"
	"time"

	"github.com/tipcast/tipcast/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotLocked is returned by Acknowledge when the alert is not currently
// locked, does not exist, or belongs to another streamer.
var ErrNotLocked = errors.New("alert is not locked")

// ErrNotSkippable is returned by Skip when the alert already reached a
// terminal state.
var ErrNotSkippable = errors.New("alert already terminal")

// claimRetries bounds the compare-and-swap loop on dialects without
// SKIP LOCKED.
const claimRetries = 3

type alertRepository struct {
	db *gorm.DB
}

// NewAlertRepository creates an alert repository backed by GORM.
func NewAlertRepository(db *gorm.DB) AlertRepository {
	return &alertRepository{db: db}
}

func (r *alertRepository) Create(a *models.Alert) error {
	return r.db.Create(a).Error
}

func (r *alertRepository) GetByID(id uint) (*models.Alert, error) {
	var a models.Alert
	if err := r.db.Preload("Donation").First(&a, id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// eligible scopes a query to alerts a claimer may take: ready, or locked
// with a lapsed lock (crash/disconnect recovery), oldest first.
func (r *alertRepository) eligible(tx *gorm.DB, userID uint, now time.Time) *gorm.DB {
	return tx.
		Where("user_id = ? AND (status = ? OR (status = ? AND lock_expires_at < ?))",
			userID, models.AlertStatusReady, models.AlertStatusLocked, now).
		Order("created_at ASC, id ASC")
}

func (r *alertRepository) ClaimNext(ctx context.Context, userID uint) (*models.Alert, error) {
	if r.db.Name() == "mysql" {
		return r.claimNextSkipLocked(ctx, userID)
	}
	return r.claimNextCAS(ctx, userID)
}

// claimNextSkipLocked selects and locks the oldest eligible row in one
// transaction. SKIP LOCKED keeps rows mid-claim by another transaction out
// of this claimer's candidate set, so concurrent pollers never block on or
// receive the same alert.
func (r *alertRepository) claimNextSkipLocked(ctx context.Context, userID uint) (*models.Alert, error) {
	now := time.Now()
	expiry := now.Add(models.AlertLockDuration)

	var claimed models.Alert
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.eligible(tx, userID, now).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			First(&claimed).Error; err != nil {
			return err
		}
		return tx.Model(&models.Alert{}).
			Where("id = ?", claimed.ID).
			Updates(map[string]interface{}{
				"status":          models.AlertStatusLocked,
				"lock_expires_at": &expiry,
			}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	claimed.Status = models.AlertStatusLocked
	claimed.LockExpiresAt = &expiry
	return &claimed, nil
}

// claimNextCAS is the fallback for dialects without SKIP LOCKED (sqlite in
// tests): pick a candidate, then take it with a guarded update that only
// succeeds if the row is still in the observed claimable state. RowsAffected
// == 0 means another claimer won the race; retry with the next candidate.
func (r *alertRepository) claimNextCAS(ctx context.Context, userID uint) (*models.Alert, error) {
	for attempt := 0; attempt < claimRetries; attempt++ {
		now := time.Now()
		expiry := now.Add(models.AlertLockDuration)

		var candidate models.Alert
		if err := r.eligible(r.db.WithContext(ctx), userID, now).First(&candidate).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil
			}
			return nil, err
		}

		take := r.db.WithContext(ctx).Model(&models.Alert{})
		if candidate.Status == models.AlertStatusReady {
			take = take.Where("id = ? AND status = ?", candidate.ID, models.AlertStatusReady)
		} else {
			take = take.Where("id = ? AND status = ? AND lock_expires_at < ?",
				candidate.ID, models.AlertStatusLocked, now)
		}
		res := take.Updates(map[string]interface{}{
			"status":          models.AlertStatusLocked,
			"lock_expires_at": &expiry,
		})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			candidate.Status = models.AlertStatusLocked
			candidate.LockExpiresAt = &expiry
			return &candidate, nil
		}
		// Lost the race for this row; another poller claimed it first.
	}
	return nil, nil
}

func (r *alertRepository) Acknowledge(ctx context.Context, alertID, userID uint) error {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&models.Alert{}).
		Where("id = ? AND user_id = ? AND status = ?", alertID, userID, models.AlertStatusLocked).
		Updates(map[string]interface{}{
			"status":      models.AlertStatusDone,
			"consumed_at": &now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotLocked
	}
	return nil
}

func (r *alertRepository) Skip(ctx context.Context, alertID, userID uint) error {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&models.Alert{}).
		Where("id = ? AND user_id = ? AND status IN ?", alertID, userID,
			[]string{models.AlertStatusQueued, models.AlertStatusReady, models.AlertStatusLocked}).
		Updates(map[string]interface{}{
			"status":      models.AlertStatusSkipped,
			"consumed_at": &now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotSkippable
	}
	return nil
}

func (r *alertRepository) MarkReady(ctx context.Context, alertID uint, audioURL, lastError string) error {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&models.Alert{}).
		Where("id = ? AND status = ?", alertID, models.AlertStatusQueued).
		Updates(map[string]interface{}{
			"status":     models.AlertStatusReady,
			"audio_url":  audioURL,
			"last_error": lastError,
			"ready_at":   &now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *alertRepository) CurrentLocked(ctx context.Context, userID uint) (*models.Alert, error) {
	var a models.Alert
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND lock_expires_at >= ?", userID, models.AlertStatusLocked, time.Now()).
		Order("lock_expires_at DESC").
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *alertRepository) LastDone(ctx context.Context, userID uint) (*models.Alert, error) {
	var a models.Alert
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.AlertStatusDone).
		Order("consumed_at DESC, id DESC").
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *alertRepository) DoneByDonation(ctx context.Context, userID, donationID uint) (*models.Alert, error) {
	var a models.Alert
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND donation_id = ? AND status = ?", userID, donationID, models.AlertStatusDone).
		Order("consumed_at DESC, id DESC").
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *alertRepository) ReclaimExpired(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Alert{}).
		Where("status = ? AND lock_expires_at < ?", models.AlertStatusLocked, time.Now()).
		Updates(map[string]interface{}{
			"status":          models.AlertStatusReady,
			"lock_expires_at": nil,
		})
	return res.RowsAffected, res.Error
}
