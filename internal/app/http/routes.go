package routes

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"storefront-billing/config"
	adminapi "storefront-billing/internal/api/admin"
	billingapi "storefront-billing/internal/api/billing"
	plansapi "storefront-billing/internal/api/plans"
	stripewebhooks "storefront-billing/internal/api/stripewebhook"
	"storefront-billing/internal/app/http/middleware"
)

type Handlers struct {
	fx.In

	Config   config.Config
	Log      *zap.Logger
	Gatherer prometheus.Gatherer
	Records  middleware.RecordReader

	Webhook *stripewebhooks.Handler
	Billing *billingapi.Handler
	Plans   *plansapi.Handler
	Admin   *adminapi.Handler
}

// NewEngine builds the gin engine with the global middleware chain and every
// route registered.
func NewEngine(h Handlers) *gin.Engine {
	if !h.Config.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(h.Log))
	if h.Config.CORSOrigin != "" {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{h.Config.CORSOrigin},
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length", middleware.HeaderRequestID},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	RegisterRoutes(r, h)
	return r
}

func RegisterRoutes(r *gin.Engine, h Handlers) {
	// Raw body is needed for signature verification, so no sanitiser here.
	r.POST("/webhook", h.Webhook.StripeWebhook)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{})))
	r.GET("/plans", h.Plans.ListPlans)

	auth := r.Group("/billing")
	auth.Use(middleware.AuthMiddleware(h.Config.JWTSecret), middleware.SanitizeAndCleanInputMiddleware())
	auth.GET("/entitlement", h.Billing.GetEntitlement)
	auth.GET("/payments", h.Billing.GetPaymentHistory)
	auth.POST("/checkout", h.Billing.CreateCheckoutSession)
	auth.POST("/portal", h.Billing.CreateBillingPortal)
	auth.POST("/sync", h.Billing.Sync)
	auth.POST("/cancel-all", h.Billing.CancelAllSubscriptions)

	// Subscribed tenants
	subscribed := auth.Group("")
	subscribed.Use(middleware.RequireActiveSubscription(h.Records))
	subscribed.POST("/cancel", h.Billing.CancelSubscription)

	admin := r.Group("/")
	admin.Use(middleware.AuthMiddleware(h.Config.JWTSecret), middleware.RequireRole("admin"), middleware.SanitizeAndCleanInputMiddleware())
	admin.GET("/affiliates/:id/commissions/totals", h.Admin.CommissionTotals)
	admin.POST("/admin/referrals", h.Admin.RegisterReferral)
	admin.GET("/admin/tenants/:id", h.Admin.GetTenantBilling)
	admin.POST("/admin/plans/verify", h.Plans.VerifyPrices)
}
