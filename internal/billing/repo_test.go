package billing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sunroad-co/sunroad-backend/pkg/db/models"
	"github.com/sunroad-co/sunroad-backend/pkg/enums"
)

func setupBillingTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	customers := `
CREATE TABLE IF NOT EXISTS billing_customers (
  id TEXT NOT NULL PRIMARY KEY,
  account_id TEXT NOT NULL UNIQUE,
  stripe_customer_id TEXT NOT NULL,
  email TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	subscriptions := `
CREATE TABLE IF NOT EXISTS billing_subscriptions (
  id TEXT NOT NULL PRIMARY KEY,
  account_id TEXT NOT NULL,
  stripe_subscription_id TEXT NOT NULL UNIQUE,
  stripe_customer_id TEXT NOT NULL,
  price_id TEXT,
  status TEXT NOT NULL,
  cancel_at_period_end INTEGER NOT NULL DEFAULT 0,
  current_period_start DATETIME,
  current_period_end DATETIME,
  ended_at DATETIME,
  event_created_at DATETIME NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(customers).Error)
	require.NoError(t, db.Exec(subscriptions).Error)
	return db
}

func newBillingSubscription(accountID uuid.UUID, stripeSubID string, status enums.SubscriptionStatus, watermark time.Time) *models.BillingSubscription {
	price := "price_pro_monthly"
	return &models.BillingSubscription{
		ID:                   uuid.New(),
		AccountID:            accountID,
		StripeSubscriptionID: stripeSubID,
		StripeCustomerID:     "cus_123",
		PriceID:              &price,
		Status:               status,
		EventCreatedAt:       watermark,
	}
}

func TestRepositoryUpsertCustomer(t *testing.T) {
	db := setupBillingTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	accountID := uuid.New()

	email := "owner@sunroad.example"
	require.NoError(t, repo.UpsertCustomer(ctx, &models.BillingCustomer{
		ID:               uuid.New(),
		AccountID:        accountID,
		StripeCustomerID: "cus_1",
		Email:            &email,
	}))

	// A later event for the same account moves the mapping.
	require.NoError(t, repo.UpsertCustomer(ctx, &models.BillingCustomer{
		ID:               uuid.New(),
		AccountID:        accountID,
		StripeCustomerID: "cus_2",
	}))

	stored, err := repo.FindCustomerByAccountID(ctx, accountID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "cus_2", stored.StripeCustomerID)

	byStripe, err := repo.FindCustomerByStripeID(ctx, "cus_2")
	require.NoError(t, err)
	require.NotNil(t, byStripe)
	assert.Equal(t, accountID, byStripe.AccountID)

	var count int64
	require.NoError(t, db.Model(&models.BillingCustomer{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRepositoryUpsertCustomerKeepsEmailWhenIncomingIsNil(t *testing.T) {
	db := setupBillingTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	accountID := uuid.New()

	email := "owner@sunroad.example"
	require.NoError(t, repo.UpsertCustomer(ctx, &models.BillingCustomer{
		ID:               uuid.New(),
		AccountID:        accountID,
		StripeCustomerID: "cus_1",
		Email:            &email,
	}))

	// Subscription lifecycle events carry no email; the address captured at
	// checkout must survive them.
	require.NoError(t, repo.UpsertCustomer(ctx, &models.BillingCustomer{
		ID:               uuid.New(),
		AccountID:        accountID,
		StripeCustomerID: "cus_1",
	}))

	stored, err := repo.FindCustomerByAccountID(ctx, accountID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.NotNil(t, stored.Email)
	assert.Equal(t, email, *stored.Email)

	// A fresh address still replaces the stored one.
	updated := "billing@sunroad.example"
	require.NoError(t, repo.UpsertCustomer(ctx, &models.BillingCustomer{
		ID:               uuid.New(),
		AccountID:        accountID,
		StripeCustomerID: "cus_1",
		Email:            &updated,
	}))

	stored, err = repo.FindCustomerByAccountID(ctx, accountID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.NotNil(t, stored.Email)
	assert.Equal(t, updated, *stored.Email)
}

func TestRepositoryUpsertSubscriptionInOrder(t *testing.T) {
	db := setupBillingTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	accountID := uuid.New()
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	applied, err := repo.UpsertSubscriptionIfNewer(ctx, newBillingSubscription(accountID, "sub_1", enums.SubscriptionStatusActive, base))
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = repo.UpsertSubscriptionIfNewer(ctx, newBillingSubscription(accountID, "sub_1", enums.SubscriptionStatusCanceled, base.Add(time.Minute)))
	require.NoError(t, err)
	assert.True(t, applied)

	stored, err := repo.FindSubscriptionByStripeID(ctx, "sub_1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, enums.SubscriptionStatusCanceled, stored.Status)
}

func TestRepositoryUpsertSubscriptionIgnoresStaleWrite(t *testing.T) {
	db := setupBillingTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	accountID := uuid.New()
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	// The newer "canceled" event arrives first.
	applied, err := repo.UpsertSubscriptionIfNewer(ctx, newBillingSubscription(accountID, "sub_1", enums.SubscriptionStatusCanceled, base.Add(time.Minute)))
	require.NoError(t, err)
	assert.True(t, applied)

	// The older "active" event arrives late and must not win.
	applied, err = repo.UpsertSubscriptionIfNewer(ctx, newBillingSubscription(accountID, "sub_1", enums.SubscriptionStatusActive, base))
	require.NoError(t, err)
	assert.False(t, applied)

	stored, err := repo.FindSubscriptionByStripeID(ctx, "sub_1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, enums.SubscriptionStatusCanceled, stored.Status)
	assert.Equal(t, base.Add(time.Minute), stored.EventCreatedAt.UTC())
}

func TestRepositoryUpsertSubscriptionEqualWatermarkApplies(t *testing.T) {
	db := setupBillingTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	accountID := uuid.New()
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	_, err := repo.UpsertSubscriptionIfNewer(ctx, newBillingSubscription(accountID, "sub_1", enums.SubscriptionStatusActive, base))
	require.NoError(t, err)

	applied, err := repo.UpsertSubscriptionIfNewer(ctx, newBillingSubscription(accountID, "sub_1", enums.SubscriptionStatusPastDue, base))
	require.NoError(t, err)
	assert.True(t, applied, "equal watermarks apply, last write wins")

	stored, err := repo.FindSubscriptionByStripeID(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusPastDue, stored.Status)
}

func TestRepositoryListSubscriptionsByAccount(t *testing.T) {
	db := setupBillingTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	accountID := uuid.New()
	otherAccount := uuid.New()
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	_, err := repo.UpsertSubscriptionIfNewer(ctx, newBillingSubscription(accountID, "sub_1", enums.SubscriptionStatusCanceled, base))
	require.NoError(t, err)
	_, err = repo.UpsertSubscriptionIfNewer(ctx, newBillingSubscription(accountID, "sub_2", enums.SubscriptionStatusActive, base.Add(time.Hour)))
	require.NoError(t, err)
	_, err = repo.UpsertSubscriptionIfNewer(ctx, newBillingSubscription(otherAccount, "sub_3", enums.SubscriptionStatusActive, base))
	require.NoError(t, err)

	subs, err := repo.ListSubscriptionsByAccount(ctx, accountID)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "sub_2", subs[0].StripeSubscriptionID, "newest watermark first")

	accounts, err := repo.ListAccountIDsWithSubscriptions(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{accountID, otherAccount}, accounts)
}

func TestRepositoryFindSubscriptionMissing(t *testing.T) {
	db := setupBillingTestDB(t)
	repo := NewRepository(db)

	stored, err := repo.FindSubscriptionByStripeID(context.Background(), "sub_missing")
	require.NoError(t, err)
	assert.Nil(t, stored)
}
