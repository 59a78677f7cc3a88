package webhookguard

import (
	"time"

	"github.com/tipcast/tipcast/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the guard.
type Repository interface {
	// CreateIfNotExists inserts the event row unless one already exists for
	// (provider, event_key). The insert is the first-writer-wins
	// serialization point; created is false when another delivery won.
	CreateIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	// MarkOutcome records the handler result on the event row.
	MarkOutcome(id uint, status, lastError string) error
	// TakeOverFailed atomically flips a failed event back to processing so a
	// provider retry can re-run the handler. Returns false when another
	// delivery already took it over.
	TakeOverFailed(id uint) (bool, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a guard repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "event_key"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.Where("provider = ? AND event_key = ?", event.Provider, event.EventKey).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkOutcome(id uint, status, lastError string) error {
	now := time.Now()
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       status,
			"processed_at": &now,
			"last_error":   lastError,
		}).Error
}

func (r *gormRepository) TakeOverFailed(id uint) (bool, error) {
	res := r.db.Model(&models.WebhookEvent{}).
		Where("id = ? AND status = ?", id, models.WebhookEventFailed).
		Update("status", models.WebhookEventProcessing)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
