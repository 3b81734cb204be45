package plans

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront-billing/internal/domain/billing"
	catalog "storefront-billing/internal/domain/plans"
)

type PriceChecker interface {
	PriceExists(ctx context.Context, priceID string) error
}

type Handler struct {
	catalog *catalog.Catalog
	prices  PriceChecker
	log     *zap.Logger
}

func NewHandler(c *catalog.Catalog, prices PriceChecker, log *zap.Logger) *Handler {
	return &Handler{catalog: c, prices: prices, log: log.Named("api.plans")}
}

func (h *Handler) ListPlans(c *gin.Context) {
	c.JSON(http.StatusOK, h.catalog.Plans())
}

type priceCheck struct {
	Plan    catalog.PlanType `json:"plan"`
	PriceID string           `json:"price_id"`
	OK      bool             `json:"ok"`
	Error   string           `json:"error,omitempty"`
}

// VerifyPrices checks every configured price id against the processor so a
// misconfigured deployment shows up before a tenant hits checkout.
func (h *Handler) VerifyPrices(c *gin.Context) {
	checked := 0
	missing := 0
	results := []priceCheck{}

	for _, p := range h.catalog.Plans() {
		if p.ExternalPriceID == "" {
			continue
		}
		checked++
		res := priceCheck{Plan: p.ID, PriceID: p.ExternalPriceID, OK: true}

		err := h.prices.PriceExists(c.Request.Context(), p.ExternalPriceID)
		switch {
		case err == nil:
		case errors.Is(err, billing.ErrPriceNotFound):
			missing++
			res.OK = false
			res.Error = "price not found or inactive"
			h.log.Warn("configured price missing at processor",
				zap.String("plan", string(p.ID)), zap.String("price_id", p.ExternalPriceID))
		default:
			h.log.Error("price check failed", zap.String("price_id", p.ExternalPriceID), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch Stripe prices", "details": err.Error()})
			return
		}
		results = append(results, res)
	}

	code := http.StatusOK
	if missing > 0 {
		code = http.StatusConflict
	}
	c.JSON(code, gin.H{
		"checked": checked,
		"missing": missing,
		"prices":  results,
	})
}
