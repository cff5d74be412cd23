package stripewebhook

import (
	"context"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/subscription"

	pkgstripe "github.com/sunroad-co/sunroad-backend/pkg/stripe"
)

// SubscriptionFetcher exposes the single Stripe call the reconciler needs:
// fetching the authoritative subscription object for invoice-derived events.
type SubscriptionFetcher interface {
	Get(ctx context.Context, id string) (*stripe.Subscription, error)
}

type subscriptionFetcher struct{}

// NewSubscriptionFetcher wraps the configured Stripe client so the webhook
// service can be tested against a stub.
func NewSubscriptionFetcher(api *pkgstripe.Client) SubscriptionFetcher {
	if api == nil {
		return nil
	}
	return &subscriptionFetcher{}
}

func (f *subscriptionFetcher) Get(ctx context.Context, id string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	params.AddExpand("items.data.price")
	return subscription.Get(id, params)
}
