package models

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	// DefaultDisplayDurationMS is used when a streamer has not configured
	// how long an alert stays on screen.
	DefaultDisplayDurationMS = 8000

	// DefaultNarrationTemplate is the narration text used when the streamer
	// has not customized it.
	DefaultNarrationTemplate = "{donor} sent {amount}: {message}"
)

// UserSettings stores per-streamer alert preferences plus the overlay token
// and the control API key material.
type UserSettings struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	UserID            uint           `gorm:"uniqueIndex" json:"user_id"`
	NarrationEnabled  bool           `gorm:"default:true" json:"narration_enabled"`
	NarrationTemplate string         `gorm:"type:varchar(500);default:''" json:"narration_template"`
	NarrationVoice    string         `gorm:"type:varchar(20);default:''" json:"narration_voice"`
	WordBlacklist     string         `gorm:"type:text" json:"word_blacklist"`
	MinDonationCents  int64          `gorm:"default:0" json:"min_donation_cents"`
	DisplayDurationMS int            `gorm:"default:0" json:"display_duration_ms"`
	OverlayToken      string         `gorm:"type:char(52);default:'';index" json:"-"`
	APIKeyHash        string         `gorm:"type:char(64);default:''" json:"-"`
	APIKeyPrefix      string         `gorm:"type:varchar(20);default:''" json:"api_key_prefix"`
	APIKeyCreatedAt   *time.Time     `json:"api_key_created_at"`
	APIKeyLastUsedAt  *time.Time     `json:"api_key_last_used_at"`
	APIKeyRevokedAt   *time.Time     `json:"api_key_revoked_at"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`
}

var tokenEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

const apiKeyPrefix = "tpc_"

// GetOrCreateUserSettings returns existing settings or creates defaults
func GetOrCreateUserSettings(db *gorm.DB, userID uint) (*UserSettings, error) {
	var us UserSettings
	if err := db.Where("user_id = ?", userID).First(&us).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			us = UserSettings{UserID: userID, NarrationEnabled: true}
			if err := us.RotateOverlayToken(); err != nil {
				return nil, err
			}
			if err := db.Create(&us).Error; err != nil {
				return nil, err
			}
			return &us, nil
		}
		return nil, err
	}
	return &us, nil
}

// EffectiveDisplayDuration returns the configured alert display duration in
// milliseconds, falling back to the default when unset.
func (us *UserSettings) EffectiveDisplayDuration() int {
	if us == nil || us.DisplayDurationMS <= 0 {
		return DefaultDisplayDurationMS
	}
	return us.DisplayDurationMS
}

// EffectiveNarrationTemplate returns the narration template, falling back to
// the default when the streamer has not set one.
func (us *UserSettings) EffectiveNarrationTemplate() string {
	if us == nil || strings.TrimSpace(us.NarrationTemplate) == "" {
		return DefaultNarrationTemplate
	}
	return us.NarrationTemplate
}

// BlacklistWords splits the stored blacklist into individual words.
func (us *UserSettings) BlacklistWords() []string {
	if us == nil {
		return nil
	}
	fields := strings.FieldsFunc(us.WordBlacklist, func(r rune) bool {
		return r == '\n' || r == ',' || r == ';'
	})
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		if w := strings.TrimSpace(f); w != "" {
			words = append(words, w)
		}
	}
	return words
}

// RotateOverlayToken generates a fresh overlay token, invalidating the old
// one. The token authenticates the overlay poll/ack/stream endpoints and is
// compared in constant time.
func (us *UserSettings) RotateOverlayToken() error {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return err
	}
	us.OverlayToken = strings.ToLower(tokenEncoding.EncodeToString(b))
	return nil
}

// VerifyOverlayToken compares a presented token with the stored one in
// constant time.
func (us *UserSettings) VerifyOverlayToken(token string) bool {
	if us == nil || us.OverlayToken == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(us.OverlayToken), []byte(token)) == 1
}

// HasActiveAPIKey reports whether the streamer has an active control API key
func (us *UserSettings) HasActiveAPIKey() bool {
	return us != nil && us.APIKeyHash != "" && us.APIKeyRevokedAt == nil
}

// IssueAPIKey generates a new control API key, persists metadata on the
// struct, and returns the raw secret. Callers must persist the struct via
// the database after invoking this method.
func (us *UserSettings) IssueAPIKey() (string, error) {
	rawKey, prefix, hash, err := generateAPIKeyMaterial()
	if err != nil {
		return "", err
	}
	now := time.Now()
	us.APIKeyHash = hash
	us.APIKeyPrefix = prefix
	us.APIKeyCreatedAt = &now
	us.APIKeyRevokedAt = nil
	us.APIKeyLastUsedAt = nil
	return rawKey, nil
}

// RevokeAPIKey clears the stored API key metadata without deleting the record.
func (us *UserSettings) RevokeAPIKey() {
	us.APIKeyHash = ""
	us.APIKeyPrefix = ""
	now := time.Now()
	us.APIKeyRevokedAt = &now
	us.APIKeyLastUsedAt = nil
}

// TouchAPIKeyUsage updates the last-used timestamp metadata.
func (us *UserSettings) TouchAPIKeyUsage() {
	now := time.Now()
	us.APIKeyLastUsedAt = &now
}

// HashAPIKey returns the SHA-256 hash for the provided API key.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}

func generateAPIKeyMaterial() (string, string, string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", "", err
	}
	encoded := strings.ToLower(tokenEncoding.EncodeToString(b))
	rawKey := apiKeyPrefix + encoded
	if len(rawKey) < 12 {
		return "", "", "", fmt.Errorf("api key generation failed: key too short")
	}
	prefix := rawKey[:min(len(rawKey), 16)]
	hash := HashAPIKey(rawKey)
	return rawKey, prefix, hash, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
