package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"storefront-billing/internal/domain/entitlements"
	"storefront-billing/internal/domain/plans"
)

type EntitlementReader interface {
	Current(ctx context.Context, tenantID uint, now time.Time) (entitlements.Entitlement, error)
}

type RecordReader interface {
	ActiveForTenant(ctx context.Context, tenantID uint, types ...plans.PlanType) ([]entitlements.SubscriptionRecord, error)
}

const keyEntitlement = "entitlement"

// RequireActiveSubscription lets through tenants holding an active
// subscription record. The period end is not consulted: a record awaiting a
// late renewal still belongs to a live subscription.
func RequireActiveSubscription(reader RecordReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.GetUint(KeyTenantID)
		if tenantID == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Tenant not identified"})
			return
		}

		records, err := reader.ActiveForTenant(c.Request.Context(), tenantID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to load subscriptions"})
			return
		}
		if len(records) == 0 {
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{"error": "Subscription not found or expired"})
			return
		}
		c.Next()
	}
}

// RequireFeature lets through tenants whose active plans grant feature.
func RequireFeature(reader EntitlementReader, feature string) gin.HandlerFunc {
	return guard(reader, func(e entitlements.Entitlement) bool { return e.Has(feature) },
		"Your plan does not include "+feature)
}

func guard(reader EntitlementReader, allow func(entitlements.Entitlement) bool, msg string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.GetUint(KeyTenantID)
		if tenantID == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Tenant not identified"})
			return
		}

		ent, err := reader.Current(c.Request.Context(), tenantID, time.Now())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to load entitlement"})
			return
		}
		if !allow(ent) {
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{"error": msg})
			return
		}

		c.Set(keyEntitlement, ent)
		c.Next()
	}
}
