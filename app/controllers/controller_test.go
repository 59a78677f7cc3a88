package controllers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tipcast/tipcast/app/models"
	"github.com/tipcast/tipcast/app/repository"
	"github.com/tipcast/tipcast/internal/pkg/alerts"
	"github.com/tipcast/tipcast/internal/pkg/cache"
	"github.com/tipcast/tipcast/internal/pkg/controlcast"
	"github.com/tipcast/tipcast/internal/pkg/database"
	"github.com/tipcast/tipcast/internal/pkg/middleware"
	"github.com/tipcast/tipcast/internal/pkg/payments"
	"github.com/tipcast/tipcast/internal/pkg/usercontext"
	"github.com/tipcast/tipcast/internal/pkg/webhookguard"
)

const testWebhookSecret = "whsec-test"

// testEnv wires real services over sqlite and miniredis the way the router
// does at startup.
type testEnv struct {
	db  *gorm.DB
	hub *controlcast.Hub
	app *fiber.App
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.UserSettings{},
		&models.Donation{},
		&models.WebhookEvent{},
		&models.Alert{},
	))

	database.SetDB(db)
	repository.InitializeFactory(db)
	t.Cleanup(func() { database.SetDB(nil) })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache.SetClient(rdb)
	t.Cleanup(func() {
		cache.SetClient(nil)
		_ = rdb.Close()
	})

	hub := controlcast.NewHub()
	SetDependencies(Deps{
		Alerts:    alerts.NewServiceFromDB(db, nil),
		Guard:     webhookguard.NewGuardFromDB(db),
		Providers: payments.NewRegistry(payments.NewOpenPix(testWebhookSecret)),
		Hub:       hub,
		Notifier:  controlcast.NewNotifier(nil, hub),
	})

	app := fiber.New()
	app.Post("/webhooks/:provider", HandleProviderWebhook)
	app.Get("/api/overlay/next", HandleOverlayNext)
	app.Post("/api/overlay/ack", HandleOverlayAck)
	app.Post("/api/controls/webhook", middleware.APIKeyAuthMiddleware(), HandleControlWebhook)

	// Session-authenticated routes get the context injected directly; the
	// session middleware itself is covered elsewhere.
	authed := app.Group("/api/session", func(c *fiber.Ctx) error {
		c.Locals("USER_CONTEXT", usercontext.UserContext{UserID: 1, Username: "alice", IsLoggedIn: true})
		return c.Next()
	})
	authed.Post("/controls/command", HandleControlCommand)
	authed.Get("/controls/state", HandleControlState)

	return &testEnv{db: db, hub: hub, app: app}
}

func (e *testEnv) createStreamer(t *testing.T) (*models.User, *models.UserSettings) {
	t.Helper()
	user := &models.User{
		Name:     "alice",
		Email:    "alice@example.com",
		Password: "x",
		Role:     models.ROLE_USER,
		Status:   models.STATUS_ACTIVE,
	}
	require.NoError(t, e.db.Create(user).Error)

	settings, err := repository.GetGlobalFactory().GetUserRepository().GetSettings(user.ID)
	require.NoError(t, err)
	return user, settings
}

func (e *testEnv) createPendingDonation(t *testing.T, userID uint, paymentID string) *models.Donation {
	t.Helper()
	d := &models.Donation{
		UserID:            userID,
		Provider:          models.PaymentProviderOpenPix,
		ProviderPaymentID: paymentID,
		DonorName:         "Bob",
		Message:           "nice",
		AmountCents:       500,
		Currency:          "BRL",
		Status:            models.DonationStatusPending,
	}
	require.NoError(t, e.db.Create(d).Error)
	return d
}

func doJSON(t *testing.T, app *fiber.App, method, target string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req, int((5 * time.Second).Milliseconds()))
	require.NoError(t, err)

	var parsed map[string]any
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &parsed), "body: %s", data)
	}
	return resp, parsed
}
