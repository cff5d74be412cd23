package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/sunroad-co/sunroad-backend/pkg/enums"
)

// Profile is the public directory profile for an account. The webhook
// processor reads the handle for cache invalidation and writes the tier
// whenever subscription state changes; everything else belongs to the
// directory service.
type Profile struct {
	ID           uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AccountID    uuid.UUID             `gorm:"column:account_id;type:uuid;not null;unique"`
	Handle       string                `gorm:"column:handle;not null;unique"`
	Tier         enums.EntitlementTier `gorm:"column:tier;not null;default:'free'"`
	TierSyncedAt *time.Time            `gorm:"column:tier_synced_at"`
	CreatedAt    time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
