package billing

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront-billing/internal/app/http/middleware"
	domain "storefront-billing/internal/domain/billing"
	"storefront-billing/internal/domain/tenants"
)

// StatusFor maps a billing error to the HTTP status returned to the tenant.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnknownPrice), errors.Is(err, domain.ErrPriceNotFound):
		return http.StatusBadRequest
	case errors.Is(err, tenants.ErrNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNoActiveSubscription), errors.Is(err, domain.ErrSubscriptionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNoCustomer):
		return http.StatusConflict
	case errors.Is(err, domain.ErrProcessorRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrProcessorUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrPortalNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var messages = []struct {
	err error
	msg string
}{
	{domain.ErrUnknownPrice, "Unknown plan/price_id"},
	{domain.ErrPriceNotFound, "Price is not available at the payment processor"},
	{tenants.ErrNotFound, "Tenant not found"},
	{domain.ErrNoActiveSubscription, "No active subscription"},
	{domain.ErrSubscriptionNotFound, "Subscription not found"},
	{domain.ErrNoCustomer, "No Stripe customer yet (subscribe first)"},
	{domain.ErrProcessorRateLimited, "Payment processor is busy, try again shortly"},
	{domain.ErrPortalNotConfigured, "Billing portal is not configured"},
}

func (h *Handler) fail(c *gin.Context, fallback string, err error) {
	code := StatusFor(err)
	if code >= http.StatusInternalServerError {
		h.log.Error(fallback, zap.Uint("tenant_id", c.GetUint(middleware.KeyTenantID)), zap.Error(err))
	} else {
		h.log.Info(fallback, zap.Uint("tenant_id", c.GetUint(middleware.KeyTenantID)), zap.Error(err))
	}

	body := gin.H{"error": fallback}
	for _, m := range messages {
		if errors.Is(err, m.err) {
			body["error"] = m.msg
			break
		}
	}
	if errors.Is(err, domain.ErrPortalNotConfigured) {
		body["code"] = "portal_not_configured"
	}
	body["details"] = err.Error()
	c.JSON(code, body)
}
