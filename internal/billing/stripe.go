package billing

import (
	"encoding/json"
	"net/http"

	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	apperrors "github.com/aiorreal/quota-service/internal/errors"
	"github.com/aiorreal/quota-service/internal/models"
)

// Stripe parses Stripe webhook deliveries into the same normalized event
// vocabulary the RevenueCat path uses, so the processor stays provider
// agnostic. The user id rides in subscription metadata under "user_id",
// set at checkout time.
type Stripe struct {
	secret string
}

func NewStripe(webhookSecret string) *Stripe {
	return &Stripe{secret: webhookSecret}
}

func (p *Stripe) Name() string { return "stripe" }

// Verify checks the Stripe-Signature header against the endpoint secret.
func (p *Stripe) Verify(r *http.Request, body []byte) error {
	if p.secret == "" {
		return nil
	}
	sig := r.Header.Get("Stripe-Signature")
	if _, err := webhook.ConstructEvent(body, sig, p.secret); err != nil {
		return apperrors.ErrUnauthorized
	}
	return nil
}

func (p *Stripe) Parse(body []byte) (*models.BillingEvent, error) {
	var event stripe.Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, apperrors.WebhookError{EventType: "stripe", Stage: "parse", Err: err}
	}
	if event.Data == nil {
		return nil, apperrors.ValidationError{Field: "data", Message: "required"}
	}

	ev := &models.BillingEvent{
		EventID:  event.ID,
		Platform: "stripe",
		Raw:      body,
	}

	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, apperrors.WebhookError{EventType: string(event.Type), Stage: "parse", Err: err}
		}
		if event.Type == "customer.subscription.created" {
			ev.EventType = "SUBSCRIPTION_PURCHASE"
		} else {
			ev.EventType = "RENEWAL"
		}
		ev.UserID = sub.Metadata["user_id"]
		if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
			ev.ProductID = sub.Items.Data[0].Price.ID
		}
		ev.PeriodStart = models.NormalizeTimestamp(sub.CurrentPeriodStart)
		ev.PeriodEnd = models.NormalizeTimestamp(sub.CurrentPeriodEnd)
		willRenew := !sub.CancelAtPeriodEnd
		ev.WillRenew = &willRenew
		if sub.CancelAtPeriodEnd {
			ev.EventType = "AUTO_RENEW_DISABLED"
		}

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, apperrors.WebhookError{EventType: string(event.Type), Stage: "parse", Err: err}
		}
		ev.EventType = "EXPIRATION"
		ev.UserID = sub.Metadata["user_id"]

	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return nil, apperrors.WebhookError{EventType: string(event.Type), Stage: "parse", Err: err}
		}
		ev.EventType = "REFUND"
		ev.UserID = ch.Metadata["user_id"]

	case "invoice.payment_failed":
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, apperrors.WebhookError{EventType: string(event.Type), Stage: "parse", Err: err}
		}
		ev.EventType = "BILLING_ISSUE"
		ev.UserID = inv.Metadata["user_id"]

	default:
		// Events outside the subscription lifecycle are acknowledged and
		// dropped; Stripe retries anything we refuse.
		return nil, nil
	}

	return ev, nil
}
