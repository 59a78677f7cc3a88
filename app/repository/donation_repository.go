package repository

import (
	"context"
	"time"

	"github.com/tipcast/tipcast/app/models"
	"gorm.io/gorm"
)

type donationRepository struct {
	db *gorm.DB
}

// NewDonationRepository creates a donation repository backed by GORM.
func NewDonationRepository(db *gorm.DB) DonationRepository {
	return &donationRepository{db: db}
}

func (r *donationRepository) Create(d *models.Donation) error {
	return r.db.Create(d).Error
}

func (r *donationRepository) GetByID(id uint) (*models.Donation, error) {
	var d models.Donation
	if err := r.db.First(&d, id).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *donationRepository) GetByProviderPaymentID(provider, providerPaymentID string) (*models.Donation, error) {
	var d models.Donation
	err := r.db.Where("provider = ? AND provider_payment_id = ?", provider, providerPaymentID).
		First(&d).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *donationRepository) MarkPaid(ctx context.Context, provider, providerPaymentID string, paidAt time.Time) (*models.Donation, bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Donation{}).
		Where("provider = ? AND provider_payment_id = ? AND status = ?",
			provider, providerPaymentID, models.DonationStatusPending).
		Updates(map[string]interface{}{
			"status":  models.DonationStatusPaid,
			"paid_at": &paidAt,
		})
	if res.Error != nil {
		return nil, false, res.Error
	}

	d, err := r.GetByProviderPaymentID(provider, providerPaymentID)
	if err != nil {
		return nil, false, err
	}
	return d, res.RowsAffected > 0, nil
}

func (r *donationRepository) MarkExpired(ctx context.Context, provider, providerPaymentID string) (*models.Donation, bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Donation{}).
		Where("provider = ? AND provider_payment_id = ? AND status = ?",
			provider, providerPaymentID, models.DonationStatusPending).
		Update("status", models.DonationStatusExpired)
	if res.Error != nil {
		return nil, false, res.Error
	}

	d, err := r.GetByProviderPaymentID(provider, providerPaymentID)
	if err != nil {
		return nil, false, err
	}
	return d, res.RowsAffected > 0, nil
}
