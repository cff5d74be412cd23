package entitlements

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sunroad-co/sunroad-backend/internal/billing"
	"github.com/sunroad-co/sunroad-backend/internal/profiles"
	"github.com/sunroad-co/sunroad-backend/pkg/db/models"
	"github.com/sunroad-co/sunroad-backend/pkg/enums"
	"github.com/sunroad-co/sunroad-backend/pkg/logger"
)

func TestComputeTier(t *testing.T) {
	cases := []struct {
		name     string
		statuses []enums.SubscriptionStatus
		want     enums.EntitlementTier
	}{
		{name: "no subscriptions", statuses: nil, want: enums.EntitlementTierFree},
		{name: "active", statuses: []enums.SubscriptionStatus{enums.SubscriptionStatusActive}, want: enums.EntitlementTierPro},
		{name: "trialing", statuses: []enums.SubscriptionStatus{enums.SubscriptionStatusTrialing}, want: enums.EntitlementTierPro},
		{name: "past due keeps access", statuses: []enums.SubscriptionStatus{enums.SubscriptionStatusPastDue}, want: enums.EntitlementTierPro},
		{name: "canceled", statuses: []enums.SubscriptionStatus{enums.SubscriptionStatusCanceled}, want: enums.EntitlementTierFree},
		{name: "unpaid", statuses: []enums.SubscriptionStatus{enums.SubscriptionStatusUnpaid}, want: enums.EntitlementTierFree},
		{name: "canceled then new active", statuses: []enums.SubscriptionStatus{enums.SubscriptionStatusCanceled, enums.SubscriptionStatusActive}, want: enums.EntitlementTierPro},
		{name: "incomplete", statuses: []enums.SubscriptionStatus{enums.SubscriptionStatusIncomplete}, want: enums.EntitlementTierFree},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			subs := make([]models.BillingSubscription, 0, len(tc.statuses))
			for _, status := range tc.statuses {
				subs = append(subs, models.BillingSubscription{Status: status})
			}
			if got := ComputeTier(subs); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestSyncAccountWritesTier(t *testing.T) {
	accountID := uuid.New()
	billingRepo := &stubBillingRepo{
		subs: []models.BillingSubscription{{AccountID: accountID, Status: enums.SubscriptionStatusActive}},
	}
	profileRepo := &stubProfileRepo{updated: true}
	svc := newTestService(t, billingRepo, profileRepo)

	tier, err := svc.SyncAccount(context.Background(), accountID)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if tier != enums.EntitlementTierPro {
		t.Fatalf("expected pro, got %s", tier)
	}
	if profileRepo.lastTier != enums.EntitlementTierPro {
		t.Fatalf("expected tier persisted, got %s", profileRepo.lastTier)
	}
	if profileRepo.lastAccountID != accountID {
		t.Fatalf("tier written for wrong account")
	}
}

func TestSyncAccountMissingProfileIsNotFatal(t *testing.T) {
	billingRepo := &stubBillingRepo{}
	profileRepo := &stubProfileRepo{updated: false}
	svc := newTestService(t, billingRepo, profileRepo)

	tier, err := svc.SyncAccount(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("missing profile must not fail the sync: %v", err)
	}
	if tier != enums.EntitlementTierFree {
		t.Fatalf("expected free, got %s", tier)
	}
}

func TestSyncAccountPropagatesStoreErrors(t *testing.T) {
	billingRepo := &stubBillingRepo{listErr: errors.New("connection reset")}
	svc := newTestService(t, billingRepo, &stubProfileRepo{})

	if _, err := svc.SyncAccount(context.Background(), uuid.New()); err == nil {
		t.Fatal("expected error from subscription listing")
	}

	profileRepo := &stubProfileRepo{updateErr: errors.New("connection reset")}
	svc = newTestService(t, &stubBillingRepo{}, profileRepo)
	if _, err := svc.SyncAccount(context.Background(), uuid.New()); err == nil {
		t.Fatal("expected error from tier update")
	}
}

func TestSyncAccountRequiresAccountID(t *testing.T) {
	svc := newTestService(t, &stubBillingRepo{}, &stubProfileRepo{})
	if _, err := svc.SyncAccount(context.Background(), uuid.Nil); err == nil {
		t.Fatal("expected validation error for nil account id")
	}
}

func newTestService(t *testing.T, billingRepo billing.Repository, profileRepo profiles.Repository) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		BillingRepo: billingRepo,
		ProfileRepo: profileRepo,
		Logger:      logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

type stubBillingRepo struct {
	subs    []models.BillingSubscription
	listErr error
}

func (s *stubBillingRepo) WithTx(tx *gorm.DB) billing.Repository { return s }

func (s *stubBillingRepo) UpsertCustomer(ctx context.Context, customer *models.BillingCustomer) error {
	return nil
}

func (s *stubBillingRepo) FindCustomerByAccountID(ctx context.Context, accountID uuid.UUID) (*models.BillingCustomer, error) {
	return nil, nil
}

func (s *stubBillingRepo) FindCustomerByStripeID(ctx context.Context, stripeCustomerID string) (*models.BillingCustomer, error) {
	return nil, nil
}

func (s *stubBillingRepo) UpsertSubscriptionIfNewer(ctx context.Context, subscription *models.BillingSubscription) (bool, error) {
	return false, nil
}

func (s *stubBillingRepo) FindSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.BillingSubscription, error) {
	return nil, nil
}

func (s *stubBillingRepo) ListSubscriptionsByAccount(ctx context.Context, accountID uuid.UUID) ([]models.BillingSubscription, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.subs, nil
}

func (s *stubBillingRepo) ListAccountIDsWithSubscriptions(ctx context.Context) ([]uuid.UUID, error) {
	return nil, nil
}

type stubProfileRepo struct {
	updated       bool
	updateErr     error
	lastAccountID uuid.UUID
	lastTier      enums.EntitlementTier
}

func (s *stubProfileRepo) WithTx(tx *gorm.DB) profiles.Repository { return s }

func (s *stubProfileRepo) FindByAccountID(ctx context.Context, accountID uuid.UUID) (*models.Profile, error) {
	return nil, nil
}

func (s *stubProfileRepo) UpdateTier(ctx context.Context, accountID uuid.UUID, tier enums.EntitlementTier, syncedAt time.Time) (bool, error) {
	if s.updateErr != nil {
		return false, s.updateErr
	}
	s.lastAccountID = accountID
	s.lastTier = tier
	return s.updated, nil
}
