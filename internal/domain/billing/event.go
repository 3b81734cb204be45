package billing

import (
	"strconv"
	"strings"
	"time"
)

type EventType string

const (
	EventCheckoutSessionCompleted EventType = "checkout.session.completed"
	EventSubscriptionCreated      EventType = "customer.subscription.created"
	EventSubscriptionUpdated      EventType = "customer.subscription.updated"
	EventSubscriptionDeleted      EventType = "customer.subscription.deleted"
	EventInvoicePaymentSucceeded  EventType = "invoice.payment_succeeded"
	EventInvoicePaymentFailed     EventType = "invoice.payment_failed"
)

// Outcome is what the webhook endpoint reports back for an accepted event.
type Outcome string

const (
	OutcomeProcessed Outcome = "received"
	OutcomeIgnored   Outcome = "ignored"
)

// Normalised processor subscription states.
const (
	StatusNone     = "none"
	StatusActive   = "active"
	StatusTrialing = "trialing"
	StatusPastDue  = "past_due"
	StatusCanceled = "canceled"
)

// Event is a verified processor event. Exactly one of the payload pointers is
// set for the event types reconciliation understands; all are nil otherwise.
type Event struct {
	ID      string
	Type    EventType
	Created time.Time

	CheckoutSession *CheckoutSession
	Subscription    *Subscription
	Invoice         *Invoice
}

type CheckoutSession struct {
	ID             string
	Mode           string
	SubscriptionID string
	CustomerID     string
	CustomerEmail  string
	Metadata       map[string]string
}

// Subscription is the processor's view of a subscription. Period bounds are
// taken verbatim and never recomputed locally.
type Subscription struct {
	ID                 string
	CustomerID         string
	CustomerEmail      string
	PriceID            string
	Status             string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
	Metadata           map[string]string
}

// Entitling reports whether the processor status grants access.
func (s *Subscription) Entitling() bool {
	return s.Status == StatusActive || s.Status == StatusTrialing
}

type Invoice struct {
	ID             string
	SubscriptionID string
	CustomerID     string
	CustomerEmail  string
	AmountPaid     int64
	Currency       string
	PeriodStart    time.Time
	PeriodEnd      time.Time
}

type Customer struct {
	ID    string
	Email string
}

// MetadataTenantID is the metadata key checkout stamps on sessions and
// subscriptions so events can be traced back to a tenant.
const MetadataTenantID = "tenant_id"

// TenantIDFromMetadata returns the tenant id carried in processor metadata,
// or 0 when absent or unparsable.
func TenantIDFromMetadata(md map[string]string) uint {
	s := strings.TrimSpace(md[MetadataTenantID])
	if s == "" {
		return 0
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}
