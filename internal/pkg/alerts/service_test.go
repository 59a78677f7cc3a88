package alerts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tipcast/tipcast/app/models"
	"github.com/tipcast/tipcast/app/repository"
	"github.com/tipcast/tipcast/internal/pkg/cache"
)

func setupTestDB(t *testing.T) *gorm.DB {
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
		&models.Alert{},
	))
	return db
}

func setupTestCache(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache.SetClient(rdb)
	t.Cleanup(func() {
		cache.SetClient(nil)
		_ = rdb.Close()
	})
	return mr
}

type enqueueRecorder struct {
	alertIDs []uint
	err      error
}

func (r *enqueueRecorder) fn(alertID, userID uint) error {
	if r.err != nil {
		return r.err
	}
	r.alertIDs = append(r.alertIDs, alertID)
	return nil
}

func createPendingDonation(t *testing.T, db *gorm.DB, userID uint, cents int64) *models.Donation {
	t.Helper()
	d := &models.Donation{
		UserID:            userID,
		Provider:          models.PaymentProviderOpenPix,
		ProviderPaymentID: "pay-" + time.Now().Format("150405.000000000"),
		DonorName:         "Alice",
		Message:           "hello",
		AmountCents:       cents,
		Currency:          "BRL",
		Status:            models.DonationStatusPending,
	}
	require.NoError(t, db.Create(d).Error)
	return d
}

func TestHandlePaymentCompletedQueuesAlert(t *testing.T) {
	db := setupTestDB(t)
	setupTestCache(t)
	rec := &enqueueRecorder{}
	svc := NewServiceFromDB(db, rec.fn)
	d := createPendingDonation(t, db, 1, 500)

	require.NoError(t, svc.HandlePaymentCompleted(context.Background(), d.Provider, d.ProviderPaymentID))

	var donation models.Donation
	require.NoError(t, db.First(&donation, d.ID).Error)
	assert.Equal(t, models.DonationStatusPaid, donation.Status)

	var alert models.Alert
	require.NoError(t, db.Where("donation_id = ?", d.ID).First(&alert).Error)
	assert.Equal(t, models.AlertStatusQueued, alert.Status)
	assert.Equal(t, []uint{alert.ID}, rec.alertIDs)
}

func TestHandlePaymentCompletedNarrationDisabled(t *testing.T) {
	db := setupTestDB(t)
	setupTestCache(t)
	rec := &enqueueRecorder{}
	repos := repository.NewRepositories(db)
	svc := NewService(repos, rec.fn)

	settings, err := repos.User.GetSettings(1)
	require.NoError(t, err)
	settings.NarrationEnabled = false
	require.NoError(t, repos.User.SaveSettings(settings))

	d := createPendingDonation(t, db, 1, 500)
	require.NoError(t, svc.HandlePaymentCompleted(context.Background(), d.Provider, d.ProviderPaymentID))

	var alert models.Alert
	require.NoError(t, db.Where("donation_id = ?", d.ID).First(&alert).Error)
	assert.Equal(t, models.AlertStatusReady, alert.Status)
	assert.NotNil(t, alert.ReadyAt)
	assert.Empty(t, rec.alertIDs)
}

func TestHandlePaymentCompletedBelowMinimum(t *testing.T) {
	db := setupTestDB(t)
	setupTestCache(t)
	repos := repository.NewRepositories(db)
	svc := NewService(repos, nil)

	settings, err := repos.User.GetSettings(1)
	require.NoError(t, err)
	settings.MinDonationCents = 1000
	require.NoError(t, repos.User.SaveSettings(settings))

	d := createPendingDonation(t, db, 1, 500)
	require.NoError(t, svc.HandlePaymentCompleted(context.Background(), d.Provider, d.ProviderPaymentID))

	// The donation settles but no alert exists.
	var donation models.Donation
	require.NoError(t, db.First(&donation, d.ID).Error)
	assert.Equal(t, models.DonationStatusPaid, donation.Status)

	var count int64
	require.NoError(t, db.Model(&models.Alert{}).Where("donation_id = ?", d.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestHandlePaymentCompletedUnknownDonation(t *testing.T) {
	db := setupTestDB(t)
	setupTestCache(t)
	svc := NewServiceFromDB(db, nil)

	err := svc.HandlePaymentCompleted(context.Background(), "openpix", "ghost")
	assert.ErrorIs(t, err, ErrDonationNotFound)
}

func TestHandlePaymentCompletedAlreadySettled(t *testing.T) {
	db := setupTestDB(t)
	setupTestCache(t)
	svc := NewServiceFromDB(db, nil)
	d := createPendingDonation(t, db, 1, 500)

	require.NoError(t, svc.HandlePaymentCompleted(context.Background(), d.Provider, d.ProviderPaymentID))
	require.NoError(t, svc.HandlePaymentCompleted(context.Background(), d.Provider, d.ProviderPaymentID))

	// Only the first settlement creates an alert.
	var count int64
	require.NoError(t, db.Model(&models.Alert{}).Where("donation_id = ?", d.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestHandlePaymentExpired(t *testing.T) {
	db := setupTestDB(t)
	setupTestCache(t)
	svc := NewServiceFromDB(db, nil)
	d := createPendingDonation(t, db, 1, 500)

	require.NoError(t, svc.HandlePaymentExpired(context.Background(), d.Provider, d.ProviderPaymentID))

	var donation models.Donation
	require.NoError(t, db.First(&donation, d.ID).Error)
	assert.Equal(t, models.DonationStatusExpired, donation.Status)

	var count int64
	require.NoError(t, db.Model(&models.Alert{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestClaimLoadsDonation(t *testing.T) {
	db := setupTestDB(t)
	setupTestCache(t)
	repos := repository.NewRepositories(db)
	svc := NewService(repos, nil)

	settings, err := repos.User.GetSettings(1)
	require.NoError(t, err)
	settings.NarrationEnabled = false
	require.NoError(t, repos.User.SaveSettings(settings))

	d := createPendingDonation(t, db, 1, 500)
	require.NoError(t, svc.HandlePaymentCompleted(context.Background(), d.Provider, d.ProviderPaymentID))

	claimed, err := svc.Claim(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.NotNil(t, claimed.Donation)
	assert.Equal(t, "Alice", claimed.Donation.DonorName)

	// Nothing eligible returns nil, nil.
	empty, err := svc.Claim(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestAcknowledgeCountsDelivery(t *testing.T) {
	db := setupTestDB(t)
	mr := setupTestCache(t)
	repos := repository.NewRepositories(db)
	svc := NewService(repos, nil)

	settings, err := repos.User.GetSettings(1)
	require.NoError(t, err)
	settings.NarrationEnabled = false
	require.NoError(t, repos.User.SaveSettings(settings))

	d := createPendingDonation(t, db, 1, 500)
	require.NoError(t, svc.HandlePaymentCompleted(context.Background(), d.Provider, d.ProviderPaymentID))

	claimed, err := svc.Claim(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	require.NoError(t, svc.Acknowledge(context.Background(), claimed.ID, 1))

	delivered := mr.HGet("user:counters:alerts_delivered", "1")
	assert.Equal(t, "1", delivered)
}

func TestSkipCurrent(t *testing.T) {
	db := setupTestDB(t)
	setupTestCache(t)
	repos := repository.NewRepositories(db)
	svc := NewService(repos, nil)

	// Nothing locked is a no-op.
	require.NoError(t, svc.SkipCurrent(context.Background(), 1))

	settings, err := repos.User.GetSettings(1)
	require.NoError(t, err)
	settings.NarrationEnabled = false
	require.NoError(t, repos.User.SaveSettings(settings))

	d := createPendingDonation(t, db, 1, 500)
	require.NoError(t, svc.HandlePaymentCompleted(context.Background(), d.Provider, d.ProviderPaymentID))

	claimed, err := svc.Claim(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	require.NoError(t, svc.SkipCurrent(context.Background(), 1))

	var stored models.Alert
	require.NoError(t, db.First(&stored, claimed.ID).Error)
	assert.Equal(t, models.AlertStatusSkipped, stored.Status)
}

func TestReplayLastReusesCachedAudio(t *testing.T) {
	db := setupTestDB(t)
	setupTestCache(t)
	repos := repository.NewRepositories(db)
	rec := &enqueueRecorder{}
	svc := NewService(repos, rec.fn)

	d := createPendingDonation(t, db, 1, 500)
	require.NoError(t, db.Model(d).Update("status", models.DonationStatusPaid).Error)
	done := time.Now()
	original := &models.Alert{
		UserID:     1,
		DonationID: d.ID,
		Status:     models.AlertStatusDone,
		AudioURL:   "https://cdn.example.com/a.mp3",
		ConsumedAt: &done,
	}
	require.NoError(t, db.Create(original).Error)

	replay, err := svc.ReplayLast(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, replay)
	assert.NotEqual(t, original.ID, replay.ID)
	assert.Equal(t, models.AlertStatusReady, replay.Status)
	assert.Equal(t, original.AudioURL, replay.AudioURL)
	assert.NotNil(t, replay.ReadyAt)
	// Cached audio skips the narration queue.
	assert.Empty(t, rec.alertIDs)

	// The original stays done.
	var stored models.Alert
	require.NoError(t, db.First(&stored, original.ID).Error)
	assert.Equal(t, models.AlertStatusDone, stored.Status)
}

func TestReplayLastWithoutAudioGoesThroughNarration(t *testing.T) {
	db := setupTestDB(t)
	setupTestCache(t)
	rec := &enqueueRecorder{}
	svc := NewServiceFromDB(db, rec.fn)

	d := createPendingDonation(t, db, 1, 500)
	done := time.Now()
	require.NoError(t, db.Create(&models.Alert{
		UserID:     1,
		DonationID: d.ID,
		Status:     models.AlertStatusDone,
		ConsumedAt: &done,
	}).Error)

	replay, err := svc.ReplayLast(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusQueued, replay.Status)
	assert.Equal(t, []uint{replay.ID}, rec.alertIDs)
}

func TestReplayLastNothingDelivered(t *testing.T) {
	db := setupTestDB(t)
	setupTestCache(t)
	svc := NewServiceFromDB(db, nil)

	_, err := svc.ReplayLast(context.Background(), 1)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestReplayDonation(t *testing.T) {
	db := setupTestDB(t)
	setupTestCache(t)
	svc := NewServiceFromDB(db, nil)

	d := createPendingDonation(t, db, 1, 500)
	done := time.Now()
	require.NoError(t, db.Create(&models.Alert{
		UserID:     1,
		DonationID: d.ID,
		Status:     models.AlertStatusDone,
		AudioURL:   "https://cdn.example.com/b.mp3",
		ConsumedAt: &done,
	}).Error)

	replay, err := svc.ReplayDonation(context.Background(), 1, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.ID, replay.DonationID)

	// A donation never delivered for this streamer cannot be replayed.
	_, err = svc.ReplayDonation(context.Background(), 2, d.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestEnqueueFailureLeavesAlertQueued(t *testing.T) {
	db := setupTestDB(t)
	setupTestCache(t)
	rec := &enqueueRecorder{err: errors.New("queue down")}
	svc := NewServiceFromDB(db, rec.fn)
	d := createPendingDonation(t, db, 1, 500)

	require.NoError(t, svc.HandlePaymentCompleted(context.Background(), d.Provider, d.ProviderPaymentID))

	var alert models.Alert
	require.NoError(t, db.Where("donation_id = ?", d.ID).First(&alert).Error)
	assert.Equal(t, models.AlertStatusQueued, alert.Status)
}
