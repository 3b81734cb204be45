// Package app assembles the service from its fx modules.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"storefront-billing/config"
	"storefront-billing/database"
	"storefront-billing/internal/affiliate"
	adminapi "storefront-billing/internal/api/admin"
	billingapi "storefront-billing/internal/api/billing"
	plansapi "storefront-billing/internal/api/plans"
	stripewebhooks "storefront-billing/internal/api/stripewebhook"
	routes "storefront-billing/internal/app/http"
	"storefront-billing/internal/app/http/middleware"
	"storefront-billing/internal/cancellation"
	"storefront-billing/internal/checkout"
	"storefront-billing/internal/commission"
	"storefront-billing/internal/domain/billing"
	"storefront-billing/internal/domain/plans"
	"storefront-billing/internal/entitlement"
	"storefront-billing/internal/eventlog"
	stripeinfra "storefront-billing/internal/infra/stripe"
	"storefront-billing/internal/observability"
	"storefront-billing/internal/payment"
	"storefront-billing/internal/reconcile"
	"storefront-billing/internal/tenant"
)

var CoreModule = fx.Module("core",
	fx.Provide(
		config.Load,
		observability.NewLogger,
		database.Open,
	),
)

var withZapEvents = fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
	return &fxevent.ZapLogger{Logger: log.Named("fx")}
})

var BillingModule = fx.Module("billing",
	fx.Provide(
		newRegistry,
		observability.MustNewMetrics,
		newCatalog,
		newUnknownPricePolicy,
		newProcessor,
		newVerifier,
		tenant.NewDirectory,
		affiliate.NewDirectory,
		entitlement.NewStore,
		commission.NewLedger,
		payment.NewHistory,
		reconcile.NewEngine,
		checkout.NewGateway,
		cancellation.NewOrchestrator,
		eventlog.NewRedisClient,
		eventlog.NewDeduper,
	),
	fx.Invoke(closeRedis, startEventLogPruner),
)

var HTTPModule = fx.Module("http",
	fx.Provide(
		stripewebhooks.NewHandler,
		billingapi.NewHandler,
		newPlansHandler,
		adminapi.NewHandler,
		routes.NewEngine,

		func(e *reconcile.Engine) stripewebhooks.EventHandler { return e },
		func(e *reconcile.Engine) billingapi.Syncer { return e },
		func(g *checkout.Gateway) billingapi.CheckoutGateway { return g },
		func(o *cancellation.Orchestrator) billingapi.Canceller { return o },
		func(h *payment.History) billingapi.PaymentHistory { return h },
		func(s *entitlement.Store) middleware.EntitlementReader { return s },
		func(s *entitlement.Store) middleware.RecordReader { return s },
		func(s *entitlement.Store) adminapi.Entitlements { return s },
		func(l *commission.Ledger) adminapi.Ledger { return l },
		func(d *affiliate.Directory) adminapi.Referrals { return d },
		func(d *tenant.Directory) adminapi.Tenants { return d },
	),
	fx.Invoke(RunHTTP),
)

// Serve is the full service: webhook intake plus the tenant and admin APIs.
func Serve() *fx.App {
	return fx.New(withZapEvents, CoreModule, BillingModule, HTTPModule)
}

// Migrate opens the database, applies the schema and stops.
func Migrate() *fx.App {
	return fx.New(withZapEvents, CoreModule, fx.Invoke(runMigrations))
}

func runMigrations(db *gorm.DB, log *zap.Logger) error {
	if err := database.Migrate(db); err != nil {
		return err
	}
	log.Info("database migrated")
	return nil
}

func newRegistry() (prometheus.Registerer, prometheus.Gatherer) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, reg
}

func newCatalog(cfg config.Config) (*plans.Catalog, error) {
	return plans.NewCatalog(cfg.PlanPrices)
}

func newUnknownPricePolicy(cfg config.Config) plans.UnknownPricePolicy {
	return cfg.UnknownPricePolicy
}

func newProcessor(cfg config.Config, metrics *observability.Metrics, log *zap.Logger) billing.Processor {
	api := stripeinfra.NewAPI(cfg.StripeSecretKey, "", log)
	return stripeinfra.NewRetryingProcessor(stripeinfra.NewClient(api, log), cfg.StripeMaxRetries, nil, metrics, log)
}

func newVerifier(cfg config.Config, log *zap.Logger) stripewebhooks.EventVerifier {
	return stripeinfra.NewVerifier(cfg.StripeWebhookSecret, log)
}

func newPlansHandler(catalog *plans.Catalog, processor billing.Processor, log *zap.Logger) *plansapi.Handler {
	return plansapi.NewHandler(catalog, processor, log)
}

func closeRedis(lc fx.Lifecycle, client *redis.Client) {
	if client == nil {
		return
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return client.Close() },
	})
}

// startEventLogPruner trims expired rows when the event log lives in the
// database. Redis expires keys on its own.
func startEventLogPruner(lc fx.Lifecycle, d eventlog.Deduper, log *zap.Logger) {
	db, ok := d.(*eventlog.DBDeduper)
	if !ok {
		return
	}
	log = log.Named("eventlog")
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				ticker := time.NewTicker(time.Hour)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						n, err := db.Prune(ctx)
						if err != nil {
							log.Warn("prune failed", zap.Error(err))
							continue
						}
						if n > 0 {
							log.Debug("pruned processed events", zap.Int64("rows", n))
						}
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

// RunHTTP binds the listener on start so port conflicts fail the start-up,
// and drains in-flight requests on stop.
func RunHTTP(lc fx.Lifecycle, cfg config.Config, engine *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log = log.Named("http")

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("listening", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
