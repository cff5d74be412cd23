package ledger

import (
	"context"

	"github.com/sunroad-co/sunroad-backend/pkg/db/models"
	"github.com/sunroad-co/sunroad-backend/pkg/enums"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository manages persistence for the webhook idempotency ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	// Insert atomically creates a pending record unless one already exists
	// for the event id. It reports whether this call created the record.
	Insert(ctx context.Context, event *models.WebhookEvent) (bool, error)
	// ReclaimFailed atomically flips a failed record back to pending so a
	// provider redelivery can retry it. It reports whether the claim won.
	ReclaimFailed(ctx context.Context, stripeEventID string) (bool, error)
	// Transition moves a record from one status to another, recording an
	// optional error message. It reports whether the row was in the
	// expected source status.
	Transition(ctx context.Context, stripeEventID string, from, to enums.WebhookEventStatus, lastError *string) (bool, error)
	Find(ctx context.Context, stripeEventID string) (*models.WebhookEvent, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Insert(ctx context.Context, event *models.WebhookEvent) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "stripe_event_id"}},
			DoNothing: true,
		}).
		Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ReclaimFailed(ctx context.Context, stripeEventID string) (bool, error) {
	return r.Transition(ctx, stripeEventID, enums.WebhookEventStatusFailed, enums.WebhookEventStatusPending, nil)
}

func (r *repository) Transition(ctx context.Context, stripeEventID string, from, to enums.WebhookEventStatus, lastError *string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("stripe_event_id = ? AND status = ?", stripeEventID, from).
		Updates(map[string]any{
			"status":     to,
			"last_error": lastError,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) Find(ctx context.Context, stripeEventID string) (*models.WebhookEvent, error) {
	if stripeEventID == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var event models.WebhookEvent
	if err := r.db.WithContext(ctx).
		Where("stripe_event_id = ?", stripeEventID).
		First(&event).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}
