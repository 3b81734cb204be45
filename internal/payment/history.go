// Package payment keeps the per-tenant history of settled invoices.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront-billing/internal/domain/billing"
)

type History struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewHistory(db *gorm.DB, log *zap.Logger) *History {
	return &History{db: db, log: log.Named("billing.payments")}
}

// Record upserts p keyed by its invoice id.
func (h *History) Record(ctx context.Context, p billing.Payment) error {
	if p.ExternalInvoiceID == "" {
		return errors.New("record payment: missing invoice id")
	}
	if p.Status == "" {
		p.Status = billing.PaymentPaid
	}
	err := h.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "external_invoice_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"status":     p.Status,
				"amount":     p.Amount,
				"currency":   p.Currency,
				"updated_at": time.Now().UTC(),
			}),
		}).
		Create(&p).Error
	if err != nil {
		return fmt.Errorf("record payment %s: %w", p.ExternalInvoiceID, err)
	}
	h.log.Debug("payment recorded",
		zap.Uint("tenant_id", p.TenantID),
		zap.String("invoice_id", p.ExternalInvoiceID),
		zap.Int64("amount", p.Amount),
	)
	return nil
}

// ForTenant returns the tenant's payments, newest first.
func (h *History) ForTenant(ctx context.Context, tenantID uint) ([]billing.Payment, error) {
	var out []billing.Payment
	err := h.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("period_start DESC, id DESC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("load payments: %w", err)
	}
	return out, nil
}
