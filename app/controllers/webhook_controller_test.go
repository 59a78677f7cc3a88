package controllers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tipcast/tipcast/app/models"
)

func signPayload(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func openPixPayload(event, eventID, correlationID string) []byte {
	return []byte(fmt.Sprintf(`{"event":"%s","eventId":"%s","charge":{"correlationID":"%s"}}`,
		event, eventID, correlationID))
}

func postWebhook(t *testing.T, env *testEnv, provider string, payload []byte, signature string) (*http.Response, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/"+provider, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("x-openpix-signature", signature)
	}

	resp, err := env.app.Test(req, 5000)
	require.NoError(t, err)

	var parsed map[string]any
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &parsed), "body: %s", data)
	}
	return resp, parsed
}

func TestWebhookProcessesPayment(t *testing.T) {
	env := setupTestEnv(t)
	user, _ := env.createStreamer(t)
	d := env.createPendingDonation(t, user.ID, "corr-1")

	payload := openPixPayload("OPENPIX:CHARGE_COMPLETED", "evt-1", "corr-1")
	resp, body := postWebhook(t, env, "openpix", payload, signPayload(payload))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "processed", body["status"])

	var donation models.Donation
	require.NoError(t, env.db.First(&donation, d.ID).Error)
	assert.Equal(t, models.DonationStatusPaid, donation.Status)

	var alert models.Alert
	require.NoError(t, env.db.Where("donation_id = ?", d.ID).First(&alert).Error)
	assert.Equal(t, models.AlertStatusQueued, alert.Status)
}

func TestWebhookDuplicateDelivery(t *testing.T) {
	env := setupTestEnv(t)
	user, _ := env.createStreamer(t)
	d := env.createPendingDonation(t, user.ID, "corr-2")

	payload := openPixPayload("OPENPIX:CHARGE_COMPLETED", "evt-2", "corr-2")
	sig := signPayload(payload)

	resp, body := postWebhook(t, env, "openpix", payload, sig)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "processed", body["status"])

	resp, body = postWebhook(t, env, "openpix", payload, sig)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "duplicate", body["status"])

	var count int64
	require.NoError(t, env.db.Model(&models.Alert{}).Where("donation_id = ?", d.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	env := setupTestEnv(t)
	user, _ := env.createStreamer(t)
	env.createPendingDonation(t, user.ID, "corr-3")

	payload := openPixPayload("OPENPIX:CHARGE_COMPLETED", "evt-3", "corr-3")

	resp, _ := postWebhook(t, env, "openpix", payload, "deadbeef")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = postWebhook(t, env, "openpix", payload, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var count int64
	require.NoError(t, env.db.Model(&models.Alert{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestWebhookUnknownProvider(t *testing.T) {
	env := setupTestEnv(t)
	resp, _ := postWebhook(t, env, "paypal", []byte(`{}`), "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebhookUnknownPaymentReference(t *testing.T) {
	env := setupTestEnv(t)
	env.createStreamer(t)

	payload := openPixPayload("OPENPIX:CHARGE_COMPLETED", "evt-4", "ghost")
	resp, _ := postWebhook(t, env, "openpix", payload, signPayload(payload))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebhookFailedEventRetries(t *testing.T) {
	env := setupTestEnv(t)
	user, _ := env.createStreamer(t)

	payload := openPixPayload("OPENPIX:CHARGE_COMPLETED", "evt-5", "corr-5")
	sig := signPayload(payload)

	// First delivery fails: the donation does not exist yet.
	resp, _ := postWebhook(t, env, "openpix", payload, sig)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// The provider retries after the donation record lands.
	env.createPendingDonation(t, user.ID, "corr-5")
	resp, body := postWebhook(t, env, "openpix", payload, sig)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "processed", body["status"])
}

func TestWebhookIgnoredEvent(t *testing.T) {
	env := setupTestEnv(t)
	env.createStreamer(t)

	payload := openPixPayload("OPENPIX:CHARGE_CREATED", "evt-6", "corr-6")
	resp, body := postWebhook(t, env, "openpix", payload, signPayload(payload))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ignored", body["status"])
}

func TestWebhookExpiredPayment(t *testing.T) {
	env := setupTestEnv(t)
	user, _ := env.createStreamer(t)
	d := env.createPendingDonation(t, user.ID, "corr-7")

	payload := openPixPayload("OPENPIX:CHARGE_EXPIRED", "evt-7", "corr-7")
	resp, body := postWebhook(t, env, "openpix", payload, signPayload(payload))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "processed", body["status"])

	var donation models.Donation
	require.NoError(t, env.db.First(&donation, d.ID).Error)
	assert.Equal(t, models.DonationStatusExpired, donation.Status)

	var count int64
	require.NoError(t, env.db.Model(&models.Alert{}).Count(&count).Error)
	assert.Zero(t, count)
}
