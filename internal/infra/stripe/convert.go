package stripe

import (
	"time"

	stripeapi "github.com/stripe/stripe-go/v75"

	"storefront-billing/internal/domain/billing"
)

func unix(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}

func toSubscription(s *stripeapi.Subscription) *billing.Subscription {
	if s == nil {
		return nil
	}
	out := &billing.Subscription{
		ID:                 s.ID,
		Status:             NormalizeStatus(string(s.Status)),
		CurrentPeriodStart: unix(s.CurrentPeriodStart),
		CurrentPeriodEnd:   unix(s.CurrentPeriodEnd),
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
		Metadata:           s.Metadata,
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
		out.CustomerEmail = s.Customer.Email
	}
	if s.Items != nil && len(s.Items.Data) > 0 && s.Items.Data[0].Price != nil {
		out.PriceID = s.Items.Data[0].Price.ID
	}
	return out
}

func toCheckoutSession(s *stripeapi.CheckoutSession) *billing.CheckoutSession {
	out := &billing.CheckoutSession{
		ID:            s.ID,
		Mode:          string(s.Mode),
		CustomerEmail: s.CustomerEmail,
		Metadata:      s.Metadata,
	}
	if s.Subscription != nil {
		out.SubscriptionID = s.Subscription.ID
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
		if out.CustomerEmail == "" {
			out.CustomerEmail = s.Customer.Email
		}
	}
	if out.CustomerEmail == "" && s.CustomerDetails != nil {
		out.CustomerEmail = s.CustomerDetails.Email
	}
	if s.ClientReferenceID != "" {
		if out.Metadata == nil {
			out.Metadata = map[string]string{}
		}
		if out.Metadata[billing.MetadataTenantID] == "" {
			out.Metadata[billing.MetadataTenantID] = s.ClientReferenceID
		}
	}
	return out
}

// toInvoice takes the billed period from the first line item; the invoice's
// own period fields describe when it was drafted, not what it pays for.
func toInvoice(inv *stripeapi.Invoice) *billing.Invoice {
	out := &billing.Invoice{
		ID:            inv.ID,
		CustomerEmail: inv.CustomerEmail,
		AmountPaid:    inv.AmountPaid,
		Currency:      string(inv.Currency),
		PeriodStart:   unix(inv.PeriodStart),
		PeriodEnd:     unix(inv.PeriodEnd),
	}
	if inv.Subscription != nil {
		out.SubscriptionID = inv.Subscription.ID
	}
	if inv.Customer != nil {
		out.CustomerID = inv.Customer.ID
	}
	if inv.Lines != nil {
		for _, line := range inv.Lines.Data {
			if line == nil || line.Period == nil || line.Period.Start == 0 {
				continue
			}
			out.PeriodStart = unix(line.Period.Start)
			out.PeriodEnd = unix(line.Period.End)
			break
		}
	}
	return out
}

func toCustomer(c *stripeapi.Customer) *billing.Customer {
	return &billing.Customer{ID: c.ID, Email: c.Email}
}
