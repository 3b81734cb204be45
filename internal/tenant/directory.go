// Package tenant reads store-owner accounts for billing. Accounts are
// created elsewhere; the only write is attaching the processor customer id.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"storefront-billing/internal/domain/tenants"
)

type Directory struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewDirectory(db *gorm.DB, log *zap.Logger) *Directory {
	return &Directory{db: db, log: log.Named("tenant.directory")}
}

func (d *Directory) FindByID(ctx context.Context, id uint) (*tenants.Tenant, error) {
	var t tenants.Tenant
	if err := d.db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, tenants.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// FindByEmail matches case-insensitively.
func (d *Directory) FindByEmail(ctx context.Context, email string) (*tenants.Tenant, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, tenants.ErrNotFound
	}
	var t tenants.Tenant
	if err := d.db.WithContext(ctx).Where("LOWER(email) = ?", email).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, tenants.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (d *Directory) FindByCustomerID(ctx context.Context, customerID string) (*tenants.Tenant, error) {
	if customerID == "" {
		return nil, tenants.ErrNotFound
	}
	var t tenants.Tenant
	if err := d.db.WithContext(ctx).Where("stripe_customer_id = ?", customerID).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, tenants.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// AttachCustomer records the processor customer id on first sight. An id
// already attached is left alone. A customer id owned by another tenant is
// logged and skipped so the caller's event still applies.
func (d *Directory) AttachCustomer(ctx context.Context, tenantID uint, customerID string) error {
	if customerID == "" {
		return nil
	}
	res := d.db.WithContext(ctx).Model(&tenants.Tenant{}).
		Where("id = ? AND (stripe_customer_id IS NULL OR stripe_customer_id = '')", tenantID).
		Update("stripe_customer_id", customerID)
	if isUniqueViolation(res.Error) {
		d.log.Warn("processor customer already attached to another tenant",
			zap.Uint("tenant_id", tenantID),
			zap.String("customer_id", customerID),
			zap.Error(res.Error),
		)
		return nil
	}
	if res.Error != nil {
		return fmt.Errorf("attach customer: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		d.log.Info("processor customer attached",
			zap.Uint("tenant_id", tenantID),
			zap.String("customer_id", customerID),
		)
	}
	return nil
}

// isUniqueViolation matches gorm's translated error and the raw driver
// messages for dialects without a translator.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "SQLSTATE 23505")
}
