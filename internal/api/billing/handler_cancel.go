package billing

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront-billing/internal/domain/plans"
)

func (h *Handler) CancelSubscription(c *gin.Context) {
	var body struct {
		Immediate bool   `json:"immediate"`
		PlanType  string `json:"plan_type"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
	}

	var planType plans.PlanType
	if body.PlanType != "" {
		pt, ok := plans.ParsePlanType(body.PlanType)
		if !ok || pt == plans.PlanFree {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown plan_type"})
			return
		}
		planType = pt
	}

	id, ok := tenantID(c)
	if !ok {
		return
	}

	res, err := h.canceller.Cancel(c.Request.Context(), id, planType, body.Immediate)
	if err != nil {
		h.fail(c, "Failed to cancel subscription", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// CancelAllSubscriptions reports per-subscription failures in the body and
// answers 207 when some but not all cancellations went through.
func (h *Handler) CancelAllSubscriptions(c *gin.Context) {
	var body struct {
		Immediate bool `json:"immediate"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
	}

	id, ok := tenantID(c)
	if !ok {
		return
	}

	report, err := h.canceller.CancelAll(c.Request.Context(), id, body.Immediate)
	if err != nil {
		h.fail(c, "Failed to cancel subscriptions", err)
		return
	}

	code := http.StatusOK
	if len(report.Failed) > 0 {
		code = http.StatusMultiStatus
		if len(report.Canceled) == 0 {
			code = http.StatusBadGateway
		}
	}
	c.JSON(code, report)
}
