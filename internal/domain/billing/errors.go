package billing

import "errors"

var (
	ErrSignatureInvalid     = errors.New("signature_invalid")
	ErrMalformedEvent       = errors.New("malformed_event")
	ErrUnresolvedTenant     = errors.New("unresolved_tenant")
	ErrUnknownPrice         = errors.New("unknown_price")
	ErrPriceNotFound        = errors.New("price_not_found")
	ErrNoCustomer           = errors.New("no_customer")
	ErrPortalNotConfigured  = errors.New("portal_not_configured")
	ErrProcessorRateLimited = errors.New("processor_rate_limited")
	ErrProcessorUnavailable = errors.New("processor_unavailable")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrCustomerNotFound     = errors.New("customer_not_found")
	ErrNoActiveSubscription = errors.New("no_active_subscription")
	ErrDuplicateCommission  = errors.New("duplicate_commission")
)
