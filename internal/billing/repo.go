package billing

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sunroad-co/sunroad-backend/pkg/db/models"
)

// Repository handles billing persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	UpsertCustomer(ctx context.Context, customer *models.BillingCustomer) error
	FindCustomerByAccountID(ctx context.Context, accountID uuid.UUID) (*models.BillingCustomer, error)
	FindCustomerByStripeID(ctx context.Context, stripeCustomerID string) (*models.BillingCustomer, error)
	UpsertSubscriptionIfNewer(ctx context.Context, subscription *models.BillingSubscription) (bool, error)
	FindSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.BillingSubscription, error)
	ListSubscriptionsByAccount(ctx context.Context, accountID uuid.UUID) ([]models.BillingSubscription, error)
	ListAccountIDsWithSubscriptions(ctx context.Context) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a billing repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// UpsertCustomer records the account's Stripe customer mapping. The mapping is
// keyed by account: a later event for the same account overwrites the customer
// id. Email is only replaced when the incoming event carries one; most
// subscription events do not, and a known contact address must survive them.
func (r *repository) UpsertCustomer(ctx context.Context, customer *models.BillingCustomer) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "account_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"stripe_customer_id": gorm.Expr("excluded.stripe_customer_id"),
				"email":              gorm.Expr("COALESCE(excluded.email, billing_customers.email)"),
				"updated_at":         gorm.Expr("excluded.updated_at"),
			}),
		}).
		Create(customer).Error
}

func (r *repository) FindCustomerByAccountID(ctx context.Context, accountID uuid.UUID) (*models.BillingCustomer, error) {
	var customer models.BillingCustomer
	if err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		First(&customer).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &customer, nil
}

func (r *repository) FindCustomerByStripeID(ctx context.Context, stripeCustomerID string) (*models.BillingCustomer, error) {
	if stripeCustomerID == "" {
		return nil, nil
	}
	var customer models.BillingCustomer
	if err := r.db.WithContext(ctx).
		Where("stripe_customer_id = ?", stripeCustomerID).
		First(&customer).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &customer, nil
}

// UpsertSubscriptionIfNewer writes subscription state guarded by the
// event_created_at watermark. The update only lands when the stored watermark
// is at or before the incoming one, so late-arriving older events cannot
// clobber newer state. Returns whether the write was applied.
func (r *repository) UpsertSubscriptionIfNewer(ctx context.Context, subscription *models.BillingSubscription) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "stripe_subscription_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"account_id",
				"stripe_customer_id",
				"price_id",
				"status",
				"cancel_at_period_end",
				"current_period_start",
				"current_period_end",
				"ended_at",
				"event_created_at",
				"updated_at",
			}),
			Where: clause.Where{
				Exprs: []clause.Expression{
					gorm.Expr("billing_subscriptions.event_created_at <= excluded.event_created_at"),
				},
			},
		}).
		Create(subscription)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected >= 1, nil
}

func (r *repository) FindSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.BillingSubscription, error) {
	if stripeSubscriptionID == "" {
		return nil, nil
	}
	var subscription models.BillingSubscription
	if err := r.db.WithContext(ctx).
		Where("stripe_subscription_id = ?", stripeSubscriptionID).
		First(&subscription).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &subscription, nil
}

func (r *repository) ListSubscriptionsByAccount(ctx context.Context, accountID uuid.UUID) ([]models.BillingSubscription, error) {
	var subs []models.BillingSubscription
	if err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("event_created_at DESC").
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

// ListAccountIDsWithSubscriptions returns every account holding at least one
// subscription row, for full entitlement resyncs.
func (r *repository) ListAccountIDsWithSubscriptions(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.BillingSubscription{}).
		Distinct("account_id").
		Pluck("account_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
