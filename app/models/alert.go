package models

import "time"

const (
	AlertStatusQueued  = "queued"
	AlertStatusReady   = "ready"
	AlertStatusLocked  = "locked"
	AlertStatusDone    = "done"
	AlertStatusSkipped = "skipped"
)

// AlertLockDuration bounds how long a claimed alert stays exclusive without
// acknowledgment. It must stay well above the maximum configured display
// duration so a still-playing alert is never reclaimed.
const AlertLockDuration = 60 * time.Second

// Alert is one overlay display event tied to a paid donation.
//
// Lifecycle: created queued (or ready when narration is disabled or a replay
// reuses cached audio), flipped to ready by the narration builder, claimed
// into locked by the overlay poll, acknowledged into done, or skipped. A
// locked alert whose lock expired is claimable again; that is the only state
// regression.
type Alert struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	UserID        uint       `gorm:"not null;index:idx_alerts_user_status,priority:1" json:"user_id"`
	DonationID    uint       `gorm:"not null;index" json:"donation_id"`
	Donation      *Donation  `gorm:"foreignKey:DonationID" json:"donation,omitempty"`
	Status        string     `gorm:"type:varchar(20);default:'queued';index:idx_alerts_user_status,priority:2" json:"status"`
	AudioURL      string     `gorm:"type:varchar(500);default:''" json:"audio_url"`
	LockExpiresAt *time.Time `gorm:"type:timestamp;default:null" json:"lock_expires_at,omitempty"`
	ReadyAt       *time.Time `gorm:"type:timestamp;default:null" json:"ready_at,omitempty"`
	ConsumedAt    *time.Time `gorm:"type:timestamp;default:null" json:"consumed_at,omitempty"`
	LastError     string     `gorm:"type:text" json:"last_error"`
	CreatedAt     time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminal reports whether the alert reached a final state.
func (a *Alert) IsTerminal() bool {
	return a.Status == AlertStatusDone || a.Status == AlertStatusSkipped
}

// LockExpired reports whether a locked alert's exclusivity has lapsed.
func (a *Alert) LockExpired(now time.Time) bool {
	return a.Status == AlertStatusLocked && a.LockExpiresAt != nil && a.LockExpiresAt.Before(now)
}
