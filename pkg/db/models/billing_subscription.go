package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/sunroad-co/sunroad-backend/pkg/enums"
)

// BillingSubscription persists the latest-known Stripe subscription state per
// external subscription id. EventCreatedAt is the watermark: an upsert whose
// watermark is older than the stored value must not be applied.
type BillingSubscription struct {
	ID                   uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AccountID            uuid.UUID                `gorm:"column:account_id;type:uuid;not null;index"`
	StripeSubscriptionID string                   `gorm:"column:stripe_subscription_id;not null;unique"`
	StripeCustomerID     string                   `gorm:"column:stripe_customer_id;not null"`
	PriceID              *string                  `gorm:"column:price_id"`
	Status               enums.SubscriptionStatus `gorm:"column:status;not null"`
	CancelAtPeriodEnd    bool                     `gorm:"column:cancel_at_period_end;not null;default:false"`
	CurrentPeriodStart   *time.Time               `gorm:"column:current_period_start"`
	CurrentPeriodEnd     *time.Time               `gorm:"column:current_period_end"`
	EndedAt              *time.Time               `gorm:"column:ended_at"`
	EventCreatedAt       time.Time                `gorm:"column:event_created_at;not null"`
	CreatedAt            time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
