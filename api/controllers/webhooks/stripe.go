package webhooks

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/sunroad-co/sunroad-backend/api/responses"
	pkgerrors "github.com/sunroad-co/sunroad-backend/pkg/errors"
	"github.com/sunroad-co/sunroad-backend/pkg/logger"
	"github.com/sunroad-co/sunroad-backend/pkg/metrics"
)

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

type stripeLedger interface {
	Begin(ctx context.Context, eventID, eventType string) (bool, error)
	MarkDone(ctx context.Context, eventID string) error
	MarkFailed(ctx context.Context, eventID string, cause error) error
}

type stripeClient interface {
	SigningSecret() string
	ExpectsLivemode() bool
}

// StripeWebhook is the single entry point for Stripe deliveries: verify the
// signature over the raw bytes, check the mode, claim the event in the
// ledger, hand it to the service, finalize the ledger, respond.
func StripeWebhook(svc StripeWebhookService, client stripeClient, ledger stripeLedger, m *metrics.WebhookMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil || client == nil || ledger == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook pipeline unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing"))
			return
		}

		// Verification runs over the exact raw bytes; re-encoding the parsed
		// payload would break the signature.
		event, err := webhook.ConstructEventWithOptions(payload, sigHeader, client.SigningSecret(), webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stripe signature"))
			return
		}

		if logg != nil {
			ctx = logg.WithEventID(ctx, event.ID)
			ctx = logg.WithEventType(ctx, string(event.Type))
		}
		eventType := string(event.Type)

		// Events from the wrong mode are acknowledged without processing so
		// the provider stops retrying a configuration mismatch.
		if event.Livemode != client.ExpectsLivemode() {
			if logg != nil {
				logg.Warn(ctx, "stripe event mode mismatch, acknowledged without processing")
			}
			m.IncEvent(eventType, metrics.OutcomeSkippedMode)
			responses.WriteSuccess(w, nil)
			return
		}

		claimed, err := ledger.Begin(ctx, event.ID, eventType)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim event"))
			return
		}
		if !claimed {
			m.IncEvent(eventType, metrics.OutcomeDuplicate)
			responses.WriteSuccess(w, nil)
			return
		}

		start := time.Now()
		if err := svc.HandleEvent(ctx, &event); err != nil {
			if markErr := ledger.MarkFailed(ctx, event.ID, err); markErr != nil && logg != nil {
				logg.Error(ctx, "mark event failed", markErr)
			}
			m.IncEvent(eventType, metrics.OutcomeFailed)
			m.ObserveDuration(eventType, time.Since(start))
			responses.WriteError(ctx, logg, w, asProcessingFailure(err))
			return
		}

		if err := ledger.MarkDone(ctx, event.ID); err != nil {
			m.IncEvent(eventType, metrics.OutcomeFailed)
			m.ObserveDuration(eventType, time.Since(start))
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finalize event"))
			return
		}

		m.IncEvent(eventType, metrics.OutcomeProcessed)
		m.ObserveDuration(eventType, time.Since(start))
		if logg != nil {
			logg.Info(ctx, "stripe event processed")
		}
		responses.WriteSuccess(w, nil)
	}
}

// asProcessingFailure keeps every post-claim failure a server error so the
// provider retries; a 4xx here would drop the event permanently.
func asProcessingFailure(err error) error {
	if typed := pkgerrors.As(err); typed != nil {
		if pkgerrors.MetadataFor(typed.Code()).HTTPStatus >= http.StatusInternalServerError {
			return err
		}
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "event processing failed")
}
