package controllers

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tipcast/tipcast/app/models"
)

func (e *testEnv) createReadyAlert(t *testing.T, userID uint, paymentID, audioURL string) *models.Alert {
	t.Helper()
	d := e.createPendingDonation(t, userID, paymentID)
	require.NoError(t, e.db.Model(d).Update("status", models.DonationStatusPaid).Error)
	now := time.Now()
	a := &models.Alert{
		UserID:     userID,
		DonationID: d.ID,
		Status:     models.AlertStatusReady,
		AudioURL:   audioURL,
		ReadyAt:    &now,
	}
	require.NoError(t, e.db.Create(a).Error)
	return a
}

func overlayNextURL(username, token string) string {
	return "/api/overlay/next?username=" + url.QueryEscape(username) + "&token=" + url.QueryEscape(token)
}

func TestOverlayNextClaimsAlert(t *testing.T) {
	env := setupTestEnv(t)
	user, settings := env.createStreamer(t)
	created := env.createReadyAlert(t, user.ID, "pay-1", "https://cdn.example.com/a.mp3")

	resp, body := doJSON(t, env.app, fiber.MethodGet, overlayNextURL(user.Name, settings.OverlayToken), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	alert, ok := body["alert"].(map[string]any)
	require.True(t, ok, "alert missing: %v", body)
	assert.Equal(t, float64(created.ID), alert["id"])
	assert.Equal(t, "Bob", alert["donor"])
	assert.Equal(t, float64(500), alert["amount_cents"])
	assert.Equal(t, "R$ 5,00", alert["amount_formatted"])
	assert.Equal(t, "nice", alert["message"])
	assert.Equal(t, "https://cdn.example.com/a.mp3", alert["audio_url"])
	assert.Equal(t, float64(models.DefaultDisplayDurationMS), alert["display_duration_ms"])

	// The claimed alert is locked; a second poll comes back empty.
	resp, body = doJSON(t, env.app, fiber.MethodGet, overlayNextURL(user.Name, settings.OverlayToken), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, body["alert"])
}

func TestOverlayNextEmptyQueue(t *testing.T) {
	env := setupTestEnv(t)
	user, settings := env.createStreamer(t)

	resp, body := doJSON(t, env.app, fiber.MethodGet, overlayNextURL(user.Name, settings.OverlayToken), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, body["alert"])
}

func TestOverlayNextRejectsBadToken(t *testing.T) {
	env := setupTestEnv(t)
	user, _ := env.createStreamer(t)

	resp, _ := doJSON(t, env.app, fiber.MethodGet, overlayNextURL(user.Name, "wrong"), nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doJSON(t, env.app, fiber.MethodGet, overlayNextURL("nobody", "wrong"), nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doJSON(t, env.app, fiber.MethodGet, "/api/overlay/next", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestOverlayAck(t *testing.T) {
	env := setupTestEnv(t)
	user, settings := env.createStreamer(t)
	created := env.createReadyAlert(t, user.ID, "pay-2", "")

	// Claim first so the alert is locked.
	resp, _ := doJSON(t, env.app, fiber.MethodGet, overlayNextURL(user.Name, settings.OverlayToken), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, env.app, fiber.MethodPost, "/api/overlay/ack", map[string]any{
		"alert_id": created.ID,
		"token":    settings.OverlayToken,
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	var stored models.Alert
	require.NoError(t, env.db.First(&stored, created.ID).Error)
	assert.Equal(t, models.AlertStatusDone, stored.Status)
}

func TestOverlayAckConflictWhenNotLocked(t *testing.T) {
	env := setupTestEnv(t)
	user, settings := env.createStreamer(t)
	created := env.createReadyAlert(t, user.ID, "pay-3", "")

	// Never claimed, so the ack hits a ready alert.
	resp, _ := doJSON(t, env.app, fiber.MethodPost, "/api/overlay/ack", map[string]any{
		"alert_id": created.ID,
		"token":    settings.OverlayToken,
	}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestOverlayAckRejectsForeignToken(t *testing.T) {
	env := setupTestEnv(t)
	user, settings := env.createStreamer(t)
	created := env.createReadyAlert(t, user.ID, "pay-4", "")

	resp, _ := doJSON(t, env.app, fiber.MethodGet, overlayNextURL(user.Name, settings.OverlayToken), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// A token that is not the owner's cannot acknowledge the alert.
	resp, _ = doJSON(t, env.app, fiber.MethodPost, "/api/overlay/ack", map[string]any{
		"alert_id": created.ID,
		"token":    "stolen-token",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var stored models.Alert
	require.NoError(t, env.db.First(&stored, created.ID).Error)
	assert.Equal(t, models.AlertStatusLocked, stored.Status)
}

func TestOverlayAckUnknownAlert(t *testing.T) {
	env := setupTestEnv(t)
	_, settings := env.createStreamer(t)

	resp, _ := doJSON(t, env.app, fiber.MethodPost, "/api/overlay/ack", map[string]any{
		"alert_id": 999,
		"token":    settings.OverlayToken,
	}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOverlayAckMissingFields(t *testing.T) {
	env := setupTestEnv(t)

	resp, _ := doJSON(t, env.app, fiber.MethodPost, "/api/overlay/ack", map[string]any{}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOverlayNextAnonymousDonor(t *testing.T) {
	env := setupTestEnv(t)
	user, settings := env.createStreamer(t)
	alert := env.createReadyAlert(t, user.ID, "pay-5", "")
	require.NoError(t, env.db.Model(&models.Donation{}).
		Where("id = ?", alert.DonationID).Update("donor_name", "").Error)

	resp, body := doJSON(t, env.app, fiber.MethodGet, overlayNextURL(user.Name, settings.OverlayToken), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got, ok := body["alert"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Anonymous", got["donor"])
}
