package stripe

import (
	"encoding/json"
	"fmt"
	"strings"

	stripeapi "github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/webhook"
	"go.uber.org/zap"

	"storefront-billing/internal/domain/billing"
)

// Verifier authenticates webhook payloads against the endpoint secret and
// decodes the event object into domain types.
type Verifier struct {
	secret string
	log    *zap.Logger
}

func NewVerifier(secret string, log *zap.Logger) *Verifier {
	return &Verifier{secret: secret, log: log.Named("stripe.verifier")}
}

// Verify fails closed: a missing secret, missing header or bad signature all
// yield billing.ErrSignatureInvalid.
func (v *Verifier) Verify(payload []byte, signatureHeader string) (*billing.Event, error) {
	if v.secret == "" || strings.TrimSpace(signatureHeader) == "" {
		return nil, billing.ErrSignatureInvalid
	}

	ev, err := webhook.ConstructEventWithOptions(
		payload,
		signatureHeader,
		v.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		v.log.Warn("webhook signature verification failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", billing.ErrSignatureInvalid, err)
	}

	out := &billing.Event{
		ID:      ev.ID,
		Type:    billing.EventType(ev.Type),
		Created: unix(ev.Created),
	}
	if ev.Data == nil {
		return out, nil
	}

	switch out.Type {
	case billing.EventCheckoutSessionCompleted:
		var s stripeapi.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return nil, malformed(out, err)
		}
		out.CheckoutSession = toCheckoutSession(&s)

	case billing.EventSubscriptionCreated, billing.EventSubscriptionUpdated, billing.EventSubscriptionDeleted:
		var s stripeapi.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return nil, malformed(out, err)
		}
		out.Subscription = toSubscription(&s)

	case billing.EventInvoicePaymentSucceeded, billing.EventInvoicePaymentFailed:
		var inv stripeapi.Invoice
		if err := json.Unmarshal(ev.Data.Raw, &inv); err != nil {
			return nil, malformed(out, err)
		}
		out.Invoice = toInvoice(&inv)
	}
	return out, nil
}

func malformed(ev *billing.Event, err error) error {
	return fmt.Errorf("%w: %s %s: %v", billing.ErrMalformedEvent, ev.Type, ev.ID, err)
}
