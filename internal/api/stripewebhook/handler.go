package stripewebhooks

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"storefront-billing/internal/domain/billing"
	"storefront-billing/internal/eventlog"
	"storefront-billing/internal/observability"
)

const maxBodyBytes = 65536

type EventVerifier interface {
	Verify(payload []byte, signatureHeader string) (*billing.Event, error)
}

type EventHandler interface {
	HandleEvent(ctx context.Context, ev *billing.Event) (billing.Outcome, error)
}

type Params struct {
	fx.In

	Verifier EventVerifier
	Engine   EventHandler
	Events   eventlog.Deduper       `optional:"true"`
	Metrics  *observability.Metrics `optional:"true"`
	Log      *zap.Logger
}

type Handler struct {
	verifier EventVerifier
	engine   EventHandler
	events   eventlog.Deduper
	metrics  *observability.Metrics
	log      *zap.Logger
}

func NewHandler(p Params) *Handler {
	return &Handler{
		verifier: p.Verifier,
		engine:   p.Engine,
		events:   p.Events,
		metrics:  p.Metrics,
		log:      p.Log.Named("stripe.webhook"),
	}
}

// StripeWebhook acknowledges with 200 anything that was applied or
// deliberately skipped, 400 for payloads that fail verification, and 500 for
// genuine faults so the processor redelivers.
func (h *Handler) StripeWebhook(c *gin.Context) {
	started := time.Now()

	payload, err := readStripeBody(c, maxBodyBytes)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Error reading request body"})
		return
	}

	ev, err := h.verifier.Verify(payload, c.GetHeader("Stripe-Signature"))
	switch {
	case errors.Is(err, billing.ErrSignatureInvalid):
		h.metrics.ObserveWebhook("unverified", "rejected", time.Since(started))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Signature verification failed"})
		return
	case err != nil:
		h.log.Warn("webhook payload could not be decoded", zap.Error(err))
		h.metrics.ObserveWebhook("unverified", "rejected", time.Since(started))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse event"})
		return
	}

	ctx := c.Request.Context()
	log := h.log.With(zap.String("event_id", ev.ID), zap.String("event_type", string(ev.Type)))

	if h.events != nil {
		seen, err := h.events.Seen(ctx, ev.ID)
		if err != nil {
			log.Warn("event log lookup failed; processing anyway", zap.Error(err))
		} else if seen {
			h.metrics.ObserveWebhook(string(ev.Type), "duplicate", time.Since(started))
			c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
			return
		}
	}

	outcome, err := h.engine.HandleEvent(ctx, ev)
	if err != nil {
		if errors.Is(err, billing.ErrMalformedEvent) {
			log.Warn("event payload incomplete", zap.Error(err))
			h.metrics.ObserveWebhook(string(ev.Type), "rejected", time.Since(started))
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse event"})
			return
		}
		log.Error("event processing failed", zap.Error(err))
		h.metrics.ObserveWebhook(string(ev.Type), "error", time.Since(started))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if h.events != nil {
		if err := h.events.Mark(ctx, ev.ID, ev.Type); err != nil {
			log.Warn("event log write failed", zap.Error(err))
		}
	}
	h.metrics.ObserveWebhook(string(ev.Type), string(outcome), time.Since(started))
	c.JSON(http.StatusOK, gin.H{"status": outcome})
}

func readStripeBody(c *gin.Context, maxBytes int64) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
	return io.ReadAll(c.Request.Body)
}
