package models

import (
	"time"

	"github.com/google/uuid"
)

// BillingCustomer maps one Sunroad account to one Stripe customer.
type BillingCustomer struct {
	ID               uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AccountID        uuid.UUID `gorm:"column:account_id;type:uuid;not null;unique"`
	StripeCustomerID string    `gorm:"column:stripe_customer_id;not null;index"`
	Email            *string   `gorm:"column:email"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
