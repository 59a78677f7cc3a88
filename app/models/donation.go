package models

import "time"

const (
	DonationStatusPending = "pending"
	DonationStatusPaid    = "paid"
	DonationStatusExpired = "expired"
)

const (
	PaymentProviderOpenPix     = "openpix"
	PaymentProviderMercadoPago = "mercadopago"
	PaymentProviderOpenNode    = "opennode"
)

// Donation is one supporter payment. Invoice creation and currency
// conversion happen upstream; this service only flips status when the
// provider confirms or expires the charge.
type Donation struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	UserID            uint       `gorm:"not null;index" json:"user_id"`
	Provider          string     `gorm:"type:varchar(20);not null;index:ux_donations_provider_payment,unique,priority:1" json:"provider"`
	ProviderPaymentID string     `gorm:"type:varchar(191);not null;index:ux_donations_provider_payment,unique,priority:2" json:"provider_payment_id"`
	DonorName         string     `gorm:"type:varchar(150)" json:"donor_name"`
	Message           string     `gorm:"type:varchar(500)" json:"message"`
	AmountCents       int64      `gorm:"not null" json:"amount_cents"`
	Currency          string     `gorm:"type:varchar(10);default:'BRL'" json:"currency"`
	Status            string     `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	PaidAt            *time.Time `gorm:"type:timestamp;default:null" json:"paid_at,omitempty"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsPaid reports whether the donation has been confirmed by the provider.
func (d *Donation) IsPaid() bool {
	return d.Status == DonationStatusPaid
}
