package narration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tipcast/tipcast/app/models"
	"github.com/tipcast/tipcast/app/repository"
	"github.com/tipcast/tipcast/internal/pkg/audiostore"
)

// MaxNarrationChars caps the text sent to the speech engine. Longer donation
// messages are truncated, not rejected.
const MaxNarrationChars = 350

// TTSClient synthesizes narration text into MP3 audio.
type TTSClient interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

// AudioStore persists synthesized audio and returns a public URL.
type AudioStore interface {
	UploadAudio(ctx context.Context, objectKey string, data []byte) (string, error)
}

// Builder turns a queued alert into a ready one by rendering, filtering and
// synthesizing its narration. Narration is best effort: any failure still
// transitions the alert to ready as a silent alert so delivery is never
// blocked on audio.
type Builder struct {
	alerts   repository.AlertRepository
	users    repository.UserRepository
	tts      TTSClient
	store    AudioStore
	storeCfg *audiostore.Config
}

func NewBuilder(repos *repository.Repositories, tts TTSClient, store AudioStore, cfg *audiostore.Config) *Builder {
	return &Builder{
		alerts:   repos.Alert,
		users:    repos.User,
		tts:      tts,
		store:    store,
		storeCfg: cfg,
	}
}

// Build processes one alert. A missing alert or one that already left the
// queued state is a no-op, which makes retried jobs harmless.
func (b *Builder) Build(ctx context.Context, alertID uint) error {
	alert, err := b.alerts.GetByID(alertID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("load alert %d: %w", alertID, err)
	}
	if alert.Status != models.AlertStatusQueued {
		return nil
	}

	settings, err := b.users.GetSettings(alert.UserID)
	if err != nil {
		return fmt.Errorf("load settings for user %d: %w", alert.UserID, err)
	}

	if settings == nil || !settings.NarrationEnabled {
		return b.alerts.MarkReady(ctx, alert.ID, "", "")
	}

	audioURL, buildErr := b.buildAudio(ctx, alert, settings)
	if buildErr != nil {
		log.Warnf("[Narration] alert %d degraded to silent: %v", alert.ID, buildErr)
		return b.alerts.MarkReady(ctx, alert.ID, "", buildErr.Error())
	}
	return b.alerts.MarkReady(ctx, alert.ID, audioURL, "")
}

func (b *Builder) buildAudio(ctx context.Context, alert *models.Alert, settings *models.UserSettings) (string, error) {
	if alert.Donation == nil {
		return "", fmt.Errorf("alert %d has no donation loaded", alert.ID)
	}
	if b.tts == nil || b.store == nil || b.storeCfg == nil || !b.storeCfg.IsEnabled() {
		return "", fmt.Errorf("audio pipeline not configured")
	}

	text := b.narrationText(alert.Donation, settings)
	if text == "" {
		return "", fmt.Errorf("empty narration text")
	}

	audio, err := b.tts.Synthesize(ctx, text, settings.NarrationVoice)
	if err != nil {
		return "", fmt.Errorf("synthesize: %w", err)
	}

	now := time.Now()
	key := b.storeCfg.ObjectKey(uuid.New().String(), now.Year(), int(now.Month()))
	url, err := b.store.UploadAudio(ctx, key, audio)
	if err != nil {
		return "", fmt.Errorf("upload audio: %w", err)
	}
	return url, nil
}

func (b *Builder) narrationText(d *models.Donation, settings *models.UserSettings) string {
	message := Censor(d.Message, settings.BlacklistWords())
	amount := FormatAmount(d.AmountCents, d.Currency)
	text := RenderTemplate(settings.EffectiveNarrationTemplate(), d.DonorName, amount, message)

	runes := []rune(text)
	if len(runes) > MaxNarrationChars {
		text = string(runes[:MaxNarrationChars])
	}
	return text
}
