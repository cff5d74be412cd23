package stripewebhook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/sunroad-co/sunroad-backend/internal/billing"
	"github.com/sunroad-co/sunroad-backend/internal/entitlements"
	"github.com/sunroad-co/sunroad-backend/pkg/db/models"
	pkgerrors "github.com/sunroad-co/sunroad-backend/pkg/errors"
	"github.com/sunroad-co/sunroad-backend/pkg/logger"
)

// Stripe emitted this alias for invoice.paid historically; both arrive in the
// wild depending on the account's webhook configuration.
const eventTypeInvoicePaymentSucceeded stripe.EventType = "invoice.payment_succeeded"

const metadataAccountIDKey = "account_id"

type accountNotifier interface {
	NotifyAccount(ctx context.Context, accountID uuid.UUID)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	BillingRepo       billing.Repository
	Entitlements      entitlements.Service
	Notifier          accountNotifier
	StripeClient      SubscriptionFetcher
	TransactionRunner txRunner
	Logger            *logger.Logger
}

// Service converts verified Stripe events into consistent local billing and
// entitlement state.
type Service struct {
	billingRepo  billing.Repository
	entitlements entitlements.Service
	notifier     accountNotifier
	stripe       SubscriptionFetcher
	txRunner     txRunner
	log          *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.BillingRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "billing repo required")
	}
	if params.Entitlements == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "entitlement service required")
	}
	if params.Notifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "revalidate notifier required")
	}
	if params.StripeClient == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe client required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		billingRepo:  params.BillingRepo,
		entitlements: params.Entitlements,
		notifier:     params.Notifier,
		stripe:       params.StripeClient,
		txRunner:     params.TransactionRunner,
		log:          params.Logger,
	}, nil
}

// HandleEvent routes one verified, claimed event. Returning nil means every
// strict side effect completed; any error marks the event failed so the
// provider retries it.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	ctx = s.log.WithEventID(ctx, event.ID)
	ctx = s.log.WithEventType(ctx, string(event.Type))

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		return s.handleCheckoutCompleted(ctx, event)
	case stripe.EventTypeCustomerSubscriptionCreated,
		stripe.EventTypeCustomerSubscriptionUpdated,
		stripe.EventTypeCustomerSubscriptionDeleted:
		return s.handleSubscriptionLifecycle(ctx, event)
	case stripe.EventTypeInvoicePaid, eventTypeInvoicePaymentSucceeded:
		return s.handleInvoicePaid(ctx, event)
	case stripe.EventTypeInvoicePaymentFailed:
		return s.handleInvoicePaymentFailed(ctx, event)
	default:
		// Acknowledged so unknown types never clog the provider's retry queue.
		s.log.Info(ctx, "unhandled stripe event type acknowledged")
		return nil
	}
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, event *stripe.Event) error {
	session, err := parseCheckoutSession(event.Data.Raw)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeExtraction, err, "decode checkout session")
	}
	customerID := string(session.Customer)
	if customerID == "" {
		return extractionFailure(event.ID, "customer")
	}

	accountID, err := s.resolveAccountID(ctx, session.Metadata, session.ClientReferenceID, customerID, string(session.Subscription))
	if err != nil {
		return err
	}
	if accountID == uuid.Nil {
		return extractionFailure(event.ID, "metadata.account_id", "client_reference_id", "billing_customers<-customer")
	}

	// Checkout sessions carry a subscription id but not its full state; fetch
	// the authoritative object eagerly so entitlement flips without waiting
	// for the subscription.created delivery.
	var fetched *stripe.Subscription
	if session.Subscription != "" {
		fetched, err = s.stripe.Get(ctx, string(session.Subscription))
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch stripe subscription")
		}
	}

	watermark, err := watermarkOf(event)
	if err != nil {
		return err
	}
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.billingRepo.WithTx(tx)
		if err := repo.UpsertCustomer(ctx, &models.BillingCustomer{
			AccountID:        accountID,
			StripeCustomerID: customerID,
			Email:            optionalString(session.CustomerDetails.Email),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert billing customer")
		}
		if fetched != nil {
			if err := s.reconcileSubscription(ctx, repo, accountID, fetched, nil, watermark); err != nil {
				return err
			}
		}
		if _, err := s.entitlements.WithTx(tx).SyncAccount(ctx, accountID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.notifier.NotifyAccount(ctx, accountID)
	return nil
}

func (s *Service) handleSubscriptionLifecycle(ctx context.Context, event *stripe.Event) error {
	var stripeSub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeExtraction, err, "decode subscription payload")
	}
	customerID := ""
	if stripeSub.Customer != nil {
		customerID = stripeSub.Customer.ID
	}

	accountID, err := s.resolveAccountID(ctx, stripeSub.Metadata, "", customerID, stripeSub.ID)
	if err != nil {
		return err
	}
	if accountID == uuid.Nil {
		return extractionFailure(event.ID, "metadata.account_id", "billing_customers<-customer", "billing_subscriptions<-subscription")
	}

	watermark, err := watermarkOf(event)
	if err != nil {
		return err
	}
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.billingRepo.WithTx(tx)
		if customerID != "" {
			if err := repo.UpsertCustomer(ctx, &models.BillingCustomer{
				AccountID:        accountID,
				StripeCustomerID: customerID,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert billing customer")
			}
		}
		if err := s.reconcileSubscription(ctx, repo, accountID, &stripeSub, event.Data.Raw, watermark); err != nil {
			return err
		}
		if _, err := s.entitlements.WithTx(tx).SyncAccount(ctx, accountID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.notifier.NotifyAccount(ctx, accountID)
	return nil
}

func (s *Service) handleInvoicePaid(ctx context.Context, event *stripe.Event) error {
	invoice, err := parseInvoice(event.Data.Raw)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeExtraction, err, "decode invoice payload")
	}
	subscriptionID := invoice.subscriptionID()
	if subscriptionID == "" {
		return extractionFailure(event.ID, invoiceSubscriptionLocations...)
	}

	// Invoice payloads omit most subscription fields; the provider's current
	// object is the source of truth, not the webhook snapshot.
	fetched, err := s.stripe.Get(ctx, subscriptionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch stripe subscription")
	}

	customerID := string(invoice.Customer)
	if fetched.Customer != nil && fetched.Customer.ID != "" {
		customerID = fetched.Customer.ID
	}

	accountID, err := s.resolveAccountID(ctx, fetched.Metadata, "", customerID, subscriptionID)
	if err != nil {
		return err
	}
	if accountID == uuid.Nil {
		return extractionFailure(event.ID, "subscription.metadata.account_id", "billing_customers<-customer", "billing_subscriptions<-subscription")
	}

	watermark, err := watermarkOf(event)
	if err != nil {
		return err
	}
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.billingRepo.WithTx(tx)
		if err := s.reconcileSubscription(ctx, repo, accountID, fetched, nil, watermark); err != nil {
			return err
		}
		if _, err := s.entitlements.WithTx(tx).SyncAccount(ctx, accountID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.notifier.NotifyAccount(ctx, accountID)
	return nil
}

// handleInvoicePaymentFailed refreshes the entitlement so dunning state is
// visible, but the whole path is best-effort: Stripe follows up with a
// subscription.updated carrying past_due, which is the strict signal.
func (s *Service) handleInvoicePaymentFailed(ctx context.Context, event *stripe.Event) error {
	invoice, err := parseInvoice(event.Data.Raw)
	if err != nil {
		s.log.Warn(ctx, "invoice payment_failed payload undecodable, acknowledged")
		return nil
	}
	customerID := string(invoice.Customer)
	if customerID == "" {
		s.log.Warn(ctx, "invoice payment_failed without customer, acknowledged")
		return nil
	}

	customer, err := s.billingRepo.FindCustomerByStripeID(ctx, customerID)
	if err != nil {
		s.log.Error(ctx, "customer lookup failed for payment_failed event", err)
		return nil
	}
	if customer == nil {
		s.log.Warn(ctx, "no account for payment_failed customer, acknowledged")
		return nil
	}

	ctx = s.log.WithAccountID(ctx, customer.AccountID.String())
	if _, err := s.entitlements.SyncAccount(ctx, customer.AccountID); err != nil {
		s.log.Error(ctx, "entitlement sync failed for payment_failed event", err)
		return nil
	}
	s.notifier.NotifyAccount(ctx, customer.AccountID)
	return nil
}

// reconcileSubscription builds the canonical row and applies it under the
// watermark guard. raw, when present, supplies subscription-level period
// fields from older payload shapes; they win over per-item periods.
func (s *Service) reconcileSubscription(ctx context.Context, repo billing.Repository, accountID uuid.UUID, stripeSub *stripe.Subscription, raw []byte, watermark time.Time) error {
	built, err := billing.BuildSubscriptionFromStripe(accountID, stripeSub, watermark)
	if err != nil {
		return err
	}
	if raw != nil {
		if period := parseTopLevelPeriod(raw); period.CurrentPeriodStart > 0 {
			built.CurrentPeriodStart = timePtr(period.CurrentPeriodStart)
			built.CurrentPeriodEnd = timePtr(period.CurrentPeriodEnd)
		}
	}

	applied, err := repo.UpsertSubscriptionIfNewer(ctx, built)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert billing subscription")
	}
	if !applied {
		s.log.Info(ctx, "stale subscription event ignored by watermark")
	}
	return nil
}

// resolveAccountID resolves the owning account with priority: explicit
// metadata, then checkout client reference, then the stored customer mapping,
// then the stored subscription row. uuid.Nil means unresolved.
func (s *Service) resolveAccountID(ctx context.Context, metadata map[string]string, clientReference, customerID, subscriptionID string) (uuid.UUID, error) {
	if raw := metadata[metadataAccountIDKey]; raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			return id, nil
		}
		s.log.Warn(ctx, "malformed account_id metadata ignored")
	}
	if clientReference != "" {
		if id, err := uuid.Parse(clientReference); err == nil {
			return id, nil
		}
	}
	if customerID != "" {
		customer, err := s.billingRepo.FindCustomerByStripeID(ctx, customerID)
		if err != nil {
			return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup billing customer")
		}
		if customer != nil {
			return customer.AccountID, nil
		}
	}
	if subscriptionID != "" {
		stored, err := s.billingRepo.FindSubscriptionByStripeID(ctx, subscriptionID)
		if err != nil {
			return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup billing subscription")
		}
		if stored != nil {
			return stored.AccountID, nil
		}
	}
	return uuid.Nil, nil
}

func extractionFailure(eventID string, missing ...string) error {
	return pkgerrors.Wrap(pkgerrors.CodeExtraction,
		&ExtractionError{EventID: eventID, Missing: missing},
		"resolve event identifiers")
}

// watermarkOf reads the ordering watermark from the event timestamp. An event
// without one cannot be ordered against stored state, so it is rejected
// instead of being given a fresh watermark that would beat newer writes.
func watermarkOf(event *stripe.Event) (time.Time, error) {
	if event.Created <= 0 {
		return time.Time{}, extractionFailure(event.ID, "created")
	}
	return time.Unix(event.Created, 0).UTC(), nil
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func timePtr(ts int64) *time.Time {
	if ts <= 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}
