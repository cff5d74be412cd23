package profiles

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sunroad-co/sunroad-backend/pkg/db/models"
	"github.com/sunroad-co/sunroad-backend/pkg/enums"
)

// Repository handles directory profile persistence. The webhook processor only
// ever reads profiles and writes their entitlement tier.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByAccountID(ctx context.Context, accountID uuid.UUID) (*models.Profile, error)
	UpdateTier(ctx context.Context, accountID uuid.UUID, tier enums.EntitlementTier, syncedAt time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a profile repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByAccountID(ctx context.Context, accountID uuid.UUID) (*models.Profile, error) {
	var profile models.Profile
	if err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		First(&profile).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}

// UpdateTier writes the computed tier for the account. Returns false when the
// account has no profile yet, which callers treat as a non-fatal skip.
func (r *repository) UpdateTier(ctx context.Context, accountID uuid.UUID, tier enums.EntitlementTier, syncedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("account_id = ?", accountID).
		Updates(map[string]any{
			"tier":           tier,
			"tier_synced_at": syncedAt.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
