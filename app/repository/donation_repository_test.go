package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tipcast/tipcast/app/models"
)

func TestMarkPaid(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDonationRepository(db)

	d := &models.Donation{
		UserID:            1,
		Provider:          models.PaymentProviderOpenPix,
		ProviderPaymentID: "charge-1",
		AmountCents:       1000,
		Currency:          "BRL",
		Status:            models.DonationStatusPending,
	}
	require.NoError(t, repo.Create(d))

	paidAt := time.Now()
	paid, changed, err := repo.MarkPaid(context.Background(), models.PaymentProviderOpenPix, "charge-1", paidAt)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.DonationStatusPaid, paid.Status)
	require.NotNil(t, paid.PaidAt)

	// A provider retry hits the same row but flips nothing.
	again, changed, err := repo.MarkPaid(context.Background(), models.PaymentProviderOpenPix, "charge-1", time.Now())
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, models.DonationStatusPaid, again.Status)
}

func TestMarkPaidUnknownPayment(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDonationRepository(db)

	_, _, err := repo.MarkPaid(context.Background(), models.PaymentProviderOpenPix, "nope", time.Now())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestMarkExpired(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDonationRepository(db)

	d := &models.Donation{
		UserID:            1,
		Provider:          models.PaymentProviderOpenNode,
		ProviderPaymentID: "inv-9",
		AmountCents:       2500,
		Currency:          "USD",
		Status:            models.DonationStatusPending,
	}
	require.NoError(t, repo.Create(d))

	expired, changed, err := repo.MarkExpired(context.Background(), models.PaymentProviderOpenNode, "inv-9")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.DonationStatusExpired, expired.Status)

	// Expiry after payment confirmation must not clobber the paid status.
	paid := &models.Donation{
		UserID:            1,
		Provider:          models.PaymentProviderOpenNode,
		ProviderPaymentID: "inv-10",
		AmountCents:       100,
		Currency:          "USD",
		Status:            models.DonationStatusPaid,
	}
	require.NoError(t, repo.Create(paid))

	got, changed, err := repo.MarkExpired(context.Background(), models.PaymentProviderOpenNode, "inv-10")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, models.DonationStatusPaid, got.Status)
}
