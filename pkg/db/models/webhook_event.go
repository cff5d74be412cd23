package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/sunroad-co/sunroad-backend/pkg/enums"
)

// WebhookEvent is the idempotency ledger row for one provider event.
// Rows are never deleted; they form the processing audit trail.
type WebhookEvent struct {
	ID            uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StripeEventID string                   `gorm:"column:stripe_event_id;not null;unique"`
	EventType     string                   `gorm:"column:event_type;not null"`
	Status        enums.WebhookEventStatus `gorm:"column:status;not null;default:'pending'"`
	LastError     *string                  `gorm:"column:last_error"`
	CreatedAt     time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
