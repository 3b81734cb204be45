package billing

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) GetPaymentHistory(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}

	payments, err := h.payments.ForTenant(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to load payments", err)
		return
	}
	c.JSON(http.StatusOK, payments)
}
