package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/tipcast/tipcast/app/models"
	"github.com/tipcast/tipcast/app/repository"
	"github.com/tipcast/tipcast/internal/pkg/alerts"
	"github.com/tipcast/tipcast/internal/pkg/controlcast"
	"github.com/tipcast/tipcast/internal/pkg/narration"
	"github.com/tipcast/tipcast/internal/pkg/payments"
	"github.com/tipcast/tipcast/internal/pkg/webhookguard"
)

// Deps bundles everything the HTTP handlers need. Wired once at startup by
// the router, replaced wholesale in tests.
type Deps struct {
	Alerts    *alerts.Service
	Guard     *webhookguard.Guard
	Providers *payments.Registry
	Hub       *controlcast.Hub
	Notifier  *controlcast.Notifier
	Narration *narration.Builder
}

var deps Deps

// SetDependencies installs the handler dependencies.
func SetDependencies(d Deps) {
	deps = d
}

// ErrInvalidToken is returned when an overlay token does not match.
var ErrInvalidToken = errors.New("invalid overlay token")

// resolveOverlayStreamer authenticates an overlay request by username plus
// rotating token and returns the owning streamer with settings.
func resolveOverlayStreamer(username, token string) (*models.User, *models.UserSettings, error) {
	username = strings.TrimSpace(username)
	token = strings.TrimSpace(token)
	if username == "" || token == "" {
		return nil, nil, ErrInvalidToken
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	user, err := repo.GetByUsername(username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, err
	}

	settings, err := repo.GetSettings(user.ID)
	if err != nil {
		return nil, nil, err
	}
	if !settings.VerifyOverlayToken(token) {
		return nil, nil, ErrInvalidToken
	}
	return user, settings, nil
}

func jsonError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
}
