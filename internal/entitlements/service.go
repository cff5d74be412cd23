package entitlements

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sunroad-co/sunroad-backend/internal/billing"
	"github.com/sunroad-co/sunroad-backend/internal/profiles"
	"github.com/sunroad-co/sunroad-backend/pkg/db/models"
	"github.com/sunroad-co/sunroad-backend/pkg/enums"
	pkgerrors "github.com/sunroad-co/sunroad-backend/pkg/errors"
	"github.com/sunroad-co/sunroad-backend/pkg/logger"
)

// Service derives an account's entitlement tier from its subscription rows and
// persists it on the directory profile.
type Service interface {
	WithTx(tx *gorm.DB) Service
	SyncAccount(ctx context.Context, accountID uuid.UUID) (enums.EntitlementTier, error)
}

type ServiceParams struct {
	BillingRepo billing.Repository
	ProfileRepo profiles.Repository
	Logger      *logger.Logger
	Now         func() time.Time
}

type service struct {
	billingRepo billing.Repository
	profileRepo profiles.Repository
	log         *logger.Logger
	now         func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.BillingRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "billing repo required")
	}
	if params.ProfileRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "profile repo required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		billingRepo: params.BillingRepo,
		profileRepo: params.ProfileRepo,
		log:         params.Logger,
		now:         now,
	}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	return &service{
		billingRepo: s.billingRepo.WithTx(tx),
		profileRepo: s.profileRepo.WithTx(tx),
		log:         s.log,
		now:         s.now,
	}
}

// SyncAccount recomputes the tier from every subscription the account holds
// and writes it to the profile. The computation is deliberately conservative:
// past-due accounts keep access until the provider cancels the subscription.
func (s *service) SyncAccount(ctx context.Context, accountID uuid.UUID) (enums.EntitlementTier, error) {
	if accountID == uuid.Nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}

	subs, err := s.billingRepo.ListSubscriptionsByAccount(ctx, accountID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list subscriptions")
	}

	tier := ComputeTier(subs)

	updated, err := s.profileRepo.UpdateTier(ctx, accountID, tier, s.now().UTC())
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update profile tier")
	}
	if !updated {
		// The directory service owns profile creation. An account that has
		// billing state before its profile exists picks the tier up on the
		// next subscription event or resync.
		ctx = s.log.WithAccountID(ctx, accountID.String())
		s.log.Warn(ctx, "entitlement sync skipped, account has no profile")
	}
	return tier, nil
}

// ComputeTier folds subscription rows into a single access level. Any
// subscription still in a paying state grants pro.
func ComputeTier(subs []models.BillingSubscription) enums.EntitlementTier {
	for _, sub := range subs {
		switch sub.Status {
		case enums.SubscriptionStatusActive,
			enums.SubscriptionStatusTrialing,
			enums.SubscriptionStatusPastDue:
			return enums.EntitlementTierPro
		}
	}
	return enums.EntitlementTierFree
}
