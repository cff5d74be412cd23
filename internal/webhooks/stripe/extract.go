package stripewebhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractionError reports which payload fields were searched and found
// missing. Events whose identifiers cannot be resolved are failed loudly and
// retried, never dropped.
type ExtractionError struct {
	EventID string
	Missing []string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("event %s: required fields missing: %s", e.EventID, strings.Join(e.Missing, ", "))
}

// objectID decodes Stripe's expandable references, which arrive either as a
// bare id string or as an expanded object carrying an "id" field.
type objectID string

func (o *objectID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*o = ""
		return nil
	}
	if data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*o = objectID(id)
		return nil
	}
	var expanded struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &expanded); err != nil {
		return err
	}
	*o = objectID(expanded.ID)
	return nil
}

// invoicePayload holds the invoice fields we extract, across the payload
// shapes Stripe has used for them over API versions.
type invoicePayload struct {
	ID           string   `json:"id"`
	Customer     objectID `json:"customer"`
	Subscription objectID `json:"subscription"`
	Parent       struct {
		SubscriptionDetails struct {
			Subscription objectID `json:"subscription"`
		} `json:"subscription_details"`
		SubscriptionItemDetails struct {
			Subscription objectID `json:"subscription"`
		} `json:"subscription_item_details"`
	} `json:"parent"`
	Lines struct {
		Data []struct {
			Subscription objectID `json:"subscription"`
			Parent       struct {
				SubscriptionItemDetails struct {
					Subscription objectID `json:"subscription"`
				} `json:"subscription_item_details"`
			} `json:"parent"`
		} `json:"data"`
	} `json:"lines"`
}

func parseInvoice(raw []byte) (*invoicePayload, error) {
	var invoice invoicePayload
	if err := json.Unmarshal(raw, &invoice); err != nil {
		return nil, err
	}
	return &invoice, nil
}

// invoiceSubscriptionLocations names the fallback chain, in search order, for
// extraction diagnostics.
var invoiceSubscriptionLocations = []string{
	"subscription",
	"parent.subscription_details.subscription",
	"parent.subscription_item_details.subscription",
	"lines.data[0].subscription",
}

// subscriptionID walks the known payload locations in order and stops at the
// first present value.
func (i *invoicePayload) subscriptionID() string {
	if i.Subscription != "" {
		return string(i.Subscription)
	}
	if i.Parent.SubscriptionDetails.Subscription != "" {
		return string(i.Parent.SubscriptionDetails.Subscription)
	}
	if i.Parent.SubscriptionItemDetails.Subscription != "" {
		return string(i.Parent.SubscriptionItemDetails.Subscription)
	}
	if len(i.Lines.Data) > 0 {
		line := i.Lines.Data[0]
		if line.Subscription != "" {
			return string(line.Subscription)
		}
		if line.Parent.SubscriptionItemDetails.Subscription != "" {
			return string(line.Parent.SubscriptionItemDetails.Subscription)
		}
	}
	return ""
}

// checkoutSessionPayload holds the checkout-session fields we extract.
type checkoutSessionPayload struct {
	ID                string            `json:"id"`
	Customer          objectID          `json:"customer"`
	Subscription      objectID          `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
	CustomerDetails   struct {
		Email string `json:"email"`
	} `json:"customer_details"`
}

func parseCheckoutSession(raw []byte) (*checkoutSessionPayload, error) {
	var session checkoutSessionPayload
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// subscriptionPeriod is the top-level period representation used by API
// versions before the move to per-item periods.
type subscriptionPeriod struct {
	CurrentPeriodStart int64 `json:"current_period_start"`
	CurrentPeriodEnd   int64 `json:"current_period_end"`
}

// parseTopLevelPeriod reads subscription-level period fields from the raw
// payload. These win over per-item fields when present.
func parseTopLevelPeriod(raw []byte) subscriptionPeriod {
	var period subscriptionPeriod
	_ = json.Unmarshal(raw, &period)
	return period
}
