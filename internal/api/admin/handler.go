package admin

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"storefront-billing/internal/domain/affiliates"
	"storefront-billing/internal/domain/entitlements"
	"storefront-billing/internal/domain/tenants"
)

type Ledger interface {
	Totals(ctx context.Context, affiliateID uint) (affiliates.Totals, error)
}

type Referrals interface {
	RegisterReferral(ctx context.Context, affiliateID, tenantID uint) (*affiliates.Referral, error)
}

type Tenants interface {
	FindByID(ctx context.Context, id uint) (*tenants.Tenant, error)
}

type Entitlements interface {
	Current(ctx context.Context, tenantID uint, now time.Time) (entitlements.Entitlement, error)
}

type Params struct {
	fx.In

	Ledger       Ledger
	Referrals    Referrals
	Tenants      Tenants
	Entitlements Entitlements
	Log          *zap.Logger
}

type Handler struct {
	ledger       Ledger
	referrals    Referrals
	tenants      Tenants
	entitlements Entitlements
	log          *zap.Logger
}

func NewHandler(p Params) *Handler {
	return &Handler{
		ledger:       p.Ledger,
		referrals:    p.Referrals,
		tenants:      p.Tenants,
		entitlements: p.Entitlements,
		log:          p.Log.Named("api.admin"),
	}
}

type AdminTenant struct {
	ID               uint                     `json:"id"`
	Name             string                   `json:"name"`
	Email            string                   `json:"email"`
	StripeCustomerID *string                  `json:"stripe_customer_id,omitempty"`
	Entitlement      entitlements.Entitlement `json:"entitlement"`
}

func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return uint(id), true
}

func (h *Handler) GetTenantBilling(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	t, err := h.tenants.FindByID(c.Request.Context(), id)
	if errors.Is(err, tenants.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Tenant not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load tenant"})
		return
	}

	ent, err := h.entitlements.Current(c.Request.Context(), id, time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load entitlement"})
		return
	}

	c.JSON(http.StatusOK, AdminTenant{
		ID:               t.ID,
		Name:             t.Name,
		Email:            t.Email,
		StripeCustomerID: t.StripeCustomerID,
		Entitlement:      ent,
	})
}

func (h *Handler) CommissionTotals(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	totals, err := h.ledger.Totals(c.Request.Context(), id)
	if errors.Is(err, affiliates.ErrAffiliateNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Affiliate not found"})
		return
	}
	if err != nil {
		h.log.Error("commission totals failed", zap.Uint("affiliate_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load commissions"})
		return
	}
	c.JSON(http.StatusOK, totals)
}

// RegisterReferral records which affiliate brought a tenant in. The first
// registration for a tenant wins.
func (h *Handler) RegisterReferral(c *gin.Context) {
	var body struct {
		AffiliateID uint `json:"affiliate_id"`
		TenantID    uint `json:"tenant_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.AffiliateID == 0 || body.TenantID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "affiliate_id and tenant_id are required"})
		return
	}

	ctx := c.Request.Context()
	if _, err := h.tenants.FindByID(ctx, body.TenantID); err != nil {
		if errors.Is(err, tenants.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Tenant not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load tenant"})
		return
	}

	ref, err := h.referrals.RegisterReferral(ctx, body.AffiliateID, body.TenantID)
	if errors.Is(err, affiliates.ErrAffiliateNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Affiliate not found"})
		return
	}
	if err != nil {
		h.log.Error("register referral failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register referral"})
		return
	}

	code := http.StatusCreated
	if ref.AffiliateID != body.AffiliateID {
		code = http.StatusOK
	}
	c.JSON(code, ref)
}
