package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/tipcast/tipcast/app/repository"
	"github.com/tipcast/tipcast/internal/pkg/narration"
)

// overlayAckRequest is the body of POST /api/overlay/ack.
type overlayAckRequest struct {
	AlertID uint   `json:"alert_id"`
	Token   string `json:"token"`
}

// HandleOverlayNext is polled by the browser overlay on a short interval.
// On success it claims the oldest deliverable alert for the streamer and
// returns everything the overlay needs to render it; with nothing eligible
// it returns {"alert": null}.
func HandleOverlayNext(c *fiber.Ctx) error {
	user, settings, err := resolveOverlayStreamer(c.Query("username"), c.Query("token"))
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Invalid overlay credentials")
		}
		log.Errorf("[Overlay] Streamer resolution failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Overlay lookup failed")
	}

	alert, err := deps.Alerts.Claim(c.Context(), user.ID)
	if err != nil {
		log.Errorf("[Overlay] Claim failed for user %d: %v", user.ID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Claim failed")
	}
	if alert == nil {
		return c.JSON(fiber.Map{"alert": nil})
	}

	donor := narration.AnonymousDonor
	message := ""
	var amountCents int64
	currency := ""
	if alert.Donation != nil {
		if alert.Donation.DonorName != "" {
			donor = alert.Donation.DonorName
		}
		message = alert.Donation.Message
		amountCents = alert.Donation.AmountCents
		currency = alert.Donation.Currency
	}

	return c.JSON(fiber.Map{
		"alert": fiber.Map{
			"id":                  alert.ID,
			"donor":               donor,
			"amount_cents":        amountCents,
			"amount_formatted":    narration.FormatAmount(amountCents, currency),
			"currency":            currency,
			"message":             message,
			"audio_url":           alert.AudioURL,
			"display_duration_ms": settings.EffectiveDisplayDuration(),
			"created_at":          alert.CreatedAt,
		},
	})
}

// HandleOverlayAck confirms the overlay finished displaying an alert. The
// token must belong to the alert's owning streamer, which both authenticates
// the call and prevents cross-tenant acknowledgment.
func HandleOverlayAck(c *fiber.Ctx) error {
	var req overlayAckRequest
	if err := c.BodyParser(&req); err != nil || req.AlertID == 0 || req.Token == "" {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "alert_id and token are required")
	}

	factory := repository.GetGlobalFactory()
	alert, err := factory.GetAlertRepository().GetByID(req.AlertID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "Unknown alert")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Alert lookup failed")
	}

	settings, err := factory.GetUserRepository().GetSettings(alert.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Settings lookup failed")
	}
	if !settings.VerifyOverlayToken(req.Token) {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Invalid overlay credentials")
	}

	if err := deps.Alerts.Acknowledge(c.Context(), alert.ID, alert.UserID); err != nil {
		if errors.Is(err, repository.ErrNotLocked) {
			return jsonError(c, fiber.StatusConflict, "conflict", "Alert is not locked")
		}
		log.Errorf("[Overlay] Ack failed for alert %d: %v", alert.ID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Acknowledge failed")
	}

	return c.JSON(fiber.Map{"status": "ok"})
}
