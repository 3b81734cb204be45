package database

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"storefront-billing/config"
	"storefront-billing/internal/domain/affiliates"
	"storefront-billing/internal/domain/billing"
	"storefront-billing/internal/domain/entitlements"
	"storefront-billing/internal/domain/tenants"
)

// Open connects to the configured database. sqlite is meant for local runs
// and tests; production uses postgres.
func Open(cfg config.Config, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "postgres":
		dialector = postgres.Open(cfg.DBURL)
	case "sqlite":
		dialector = sqlite.Open(cfg.DBURL)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}

	level := logger.Warn
	if cfg.IsDevelopment() {
		level = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(level), TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	log.Info("database connected", zap.String("driver", cfg.DBDriver))
	return db, nil
}

// Models lists every table this service owns or reads.
func Models() []any {
	return []any{
		&tenants.Tenant{},
		&entitlements.SubscriptionRecord{},
		&affiliates.Affiliate{},
		&affiliates.Referral{},
		&affiliates.Commission{},
		&billing.ProcessedEvent{},
		&billing.Payment{},
	}
}

// Migrate creates or updates the schema, including the unique indexes the
// reconciliation and ledger writes rely on.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}
