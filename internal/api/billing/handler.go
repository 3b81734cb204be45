package billing

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"storefront-billing/internal/app/http/middleware"
	"storefront-billing/internal/cancellation"
	domain "storefront-billing/internal/domain/billing"
	"storefront-billing/internal/domain/entitlements"
	"storefront-billing/internal/domain/plans"
	"storefront-billing/internal/reconcile"
)

type CheckoutGateway interface {
	CreateCheckout(ctx context.Context, tenantID uint, priceID string) (string, error)
	OpenPortal(ctx context.Context, tenantID uint) (string, error)
}

type Canceller interface {
	Cancel(ctx context.Context, tenantID uint, planType plans.PlanType, immediate bool) (cancellation.Result, error)
	CancelAll(ctx context.Context, tenantID uint, immediate bool) (cancellation.Report, error)
}

type Syncer interface {
	SyncTenant(ctx context.Context, tenantID uint) (reconcile.SyncReport, error)
}

type PaymentHistory interface {
	ForTenant(ctx context.Context, tenantID uint) ([]domain.Payment, error)
}

type Params struct {
	fx.In

	Gateway      CheckoutGateway
	Canceller    Canceller
	Syncer       Syncer
	Entitlements middleware.EntitlementReader
	Payments     PaymentHistory
	Log          *zap.Logger
}

// Handler serves the tenant-facing billing endpoints. Every route expects
// middleware.AuthMiddleware to have set the tenant id.
type Handler struct {
	gateway      CheckoutGateway
	canceller    Canceller
	syncer       Syncer
	entitlements middleware.EntitlementReader
	payments     PaymentHistory
	log          *zap.Logger
}

func NewHandler(p Params) *Handler {
	return &Handler{
		gateway:      p.Gateway,
		canceller:    p.Canceller,
		syncer:       p.Syncer,
		entitlements: p.Entitlements,
		payments:     p.Payments,
		log:          p.Log.Named("api.billing"),
	}
}

func tenantID(c *gin.Context) (uint, bool) {
	id := c.GetUint(middleware.KeyTenantID)
	if id == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Tenant not identified"})
		return 0, false
	}
	return id, true
}

func (h *Handler) GetEntitlement(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}
	ent, err := h.entitlements.Current(c.Request.Context(), id, time.Now())
	if err != nil {
		h.fail(c, "Failed to load entitlement", err)
		return
	}
	c.JSON(http.StatusOK, ent)
}

// Sync repairs local records from the processor and returns the resulting
// entitlement alongside what changed.
func (h *Handler) Sync(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}
	report, err := h.syncer.SyncTenant(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to sync subscriptions", err)
		return
	}

	var ent entitlements.Entitlement
	if ent, err = h.entitlements.Current(c.Request.Context(), id, time.Now()); err != nil {
		h.fail(c, "Failed to load entitlement", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sync": report, "entitlement": ent})
}
