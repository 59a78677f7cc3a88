package models

import "time"

const (
	WebhookEventProcessing = "processing"
	WebhookEventProcessed  = "processed"
	WebhookEventFailed     = "failed"
)

// WebhookEvent records every external payment notification with
// deduplication metadata. The composite unique index on
// (provider, event_key) is the serialization point for first-writer-wins:
// concurrent deliveries of the same event race on the insert and exactly one
// wins. Rows are never deleted.
type WebhookEvent struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Provider    string     `gorm:"type:varchar(20);not null;index:ux_webhook_events_provider_key,unique,priority:1;index" json:"provider"`
	EventKey    string     `gorm:"type:varchar(191);not null;index:ux_webhook_events_provider_key,unique,priority:2" json:"event_key"`
	EventType   string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	PayloadHash string     `gorm:"type:char(64);not null" json:"payload_hash"`
	Status      string     `gorm:"type:varchar(20);default:'processing';index" json:"status"`
	ProcessedAt *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	LastError   string     `gorm:"type:text" json:"last_error"`
	CreatedAt   time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
