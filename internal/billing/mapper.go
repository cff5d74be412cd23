package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/sunroad-co/sunroad-backend/pkg/db/models"
	"github.com/sunroad-co/sunroad-backend/pkg/enums"
	pkgerrors "github.com/sunroad-co/sunroad-backend/pkg/errors"
)

// BuildSubscriptionFromStripe maps a Stripe subscription into the canonical
// model. watermark is the created timestamp of the event that carried (or
// triggered fetching) this state; it guards against out-of-order applies.
func BuildSubscriptionFromStripe(accountID uuid.UUID, stripeSub *stripe.Subscription, watermark time.Time) (*models.BillingSubscription, error) {
	if stripeSub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeExtraction, "stripe subscription is nil")
	}
	if stripeSub.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeExtraction, "stripe subscription id missing")
	}
	if accountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeExtraction, "account id missing")
	}
	customerID := customerIDFromSubscription(stripeSub)
	if customerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeExtraction, "stripe customer id missing")
	}
	if stripeSub.Status == "" {
		return nil, pkgerrors.New(pkgerrors.CodeExtraction, "subscription status missing")
	}

	startTS, endTS := periodFromSubscription(stripeSub)

	return &models.BillingSubscription{
		AccountID:            accountID,
		StripeSubscriptionID: stripeSub.ID,
		StripeCustomerID:     customerID,
		PriceID:              priceIDFromSubscription(stripeSub),
		// Statuses the provider adds later are stored verbatim rather than
		// rejected, so sync keeps working across API versions.
		Status:             enums.SubscriptionStatus(stripeSub.Status),
		CancelAtPeriodEnd:  stripeSub.CancelAtPeriodEnd,
		CurrentPeriodStart: toTimePtr(startTS),
		CurrentPeriodEnd:   toTimePtr(endTS),
		EndedAt:            toTimePtr(stripeSub.EndedAt),
		EventCreatedAt:     watermark.UTC(),
	}, nil
}

func customerIDFromSubscription(stripeSub *stripe.Subscription) string {
	if stripeSub.Customer == nil {
		return ""
	}
	return stripeSub.Customer.ID
}

// Billing periods live on the subscription items since API version 2025-03-31;
// the first item carries the period for single-plan subscriptions.
func periodFromSubscription(stripeSub *stripe.Subscription) (int64, int64) {
	if stripeSub.Items != nil && len(stripeSub.Items.Data) > 0 {
		item := stripeSub.Items.Data[0]
		return item.CurrentPeriodStart, item.CurrentPeriodEnd
	}
	return 0, 0
}

func priceIDFromSubscription(stripeSub *stripe.Subscription) *string {
	if stripeSub.Items == nil || len(stripeSub.Items.Data) == 0 {
		return nil
	}
	price := stripeSub.Items.Data[0].Price
	if price == nil || price.ID == "" {
		return nil
	}
	id := price.ID
	return &id
}

func toTimePtr(ts int64) *time.Time {
	if ts <= 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}
