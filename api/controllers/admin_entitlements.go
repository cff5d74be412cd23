package controllers

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/google/uuid"

	"github.com/sunroad-co/sunroad-backend/api/responses"
	"github.com/sunroad-co/sunroad-backend/api/validators"
	"github.com/sunroad-co/sunroad-backend/pkg/config"
	"github.com/sunroad-co/sunroad-backend/pkg/enums"
	pkgerrors "github.com/sunroad-co/sunroad-backend/pkg/errors"
	"github.com/sunroad-co/sunroad-backend/pkg/logger"
)

const adminSecretHeader = "X-Admin-Secret"

type entitlementResyncService interface {
	SyncAccount(ctx context.Context, accountID uuid.UUID) (enums.EntitlementTier, error)
}

type adminEntitlementsResyncRequest struct {
	AccountID string `json:"account_id" validate:"required,uuid"`
}

// AdminEntitlementsResync re-runs the entitlement computation for one account.
// Operator recovery path for events that exhausted the provider's retries.
func AdminEntitlementsResync(svc entitlementResyncService, cfg config.AdminConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "entitlement service unavailable"))
			return
		}
		if cfg.Secret == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "admin secret not configured"))
			return
		}
		if subtle.ConstantTimeCompare([]byte(r.Header.Get(adminSecretHeader)), []byte(cfg.Secret)) != 1 {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid admin secret"))
			return
		}

		var req adminEntitlementsResyncRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		accountID, err := uuid.Parse(req.AccountID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "account_id must be a uuid"))
			return
		}

		if logg != nil {
			ctx = logg.WithAccountID(ctx, accountID.String())
		}
		tier, err := svc.SyncAccount(ctx, accountID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(ctx, "entitlement resynced by operator")
		}
		responses.WriteSuccess(w, map[string]string{
			"account_id": accountID.String(),
			"tier":       tier.String(),
		})
	}
}
