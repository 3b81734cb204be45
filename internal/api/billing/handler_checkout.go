package billing

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (h *Handler) CreateCheckoutSession(c *gin.Context) {
	var body struct {
		PriceID string `json:"price_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.PriceID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid price_id"})
		return
	}

	id, ok := tenantID(c)
	if !ok {
		return
	}

	url, err := h.gateway.CreateCheckout(c.Request.Context(), id, strings.TrimSpace(body.PriceID))
	if err != nil {
		h.fail(c, "Failed to create checkout session", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (h *Handler) CreateBillingPortal(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}

	url, err := h.gateway.OpenPortal(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Could not create billing portal session", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}
