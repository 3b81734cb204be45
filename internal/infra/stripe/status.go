package stripe

import (
	"strings"

	"storefront-billing/internal/domain/billing"
)

// NormalizeStatus collapses the processor's subscription states onto the ones
// reconciliation acts on.
func NormalizeStatus(s string) string {
	s = strings.TrimSpace(s)
	switch s {
	case "":
		return billing.StatusNone
	case "active":
		return billing.StatusActive
	case "trialing":
		return billing.StatusTrialing
	case "past_due", "unpaid":
		return billing.StatusPastDue
	case "canceled", "incomplete_expired":
		return billing.StatusCanceled
	default:
		return s
	}
}
