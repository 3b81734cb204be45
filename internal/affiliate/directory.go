// Package affiliate reads the affiliate program tables the commission ledger
// depends on and registers referrals on behalf of onboarding.
package affiliate

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront-billing/internal/domain/affiliates"
)

type Directory struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewDirectory(db *gorm.DB, log *zap.Logger) *Directory {
	return &Directory{db: db, log: log.Named("affiliate.directory")}
}

// ReferralForTenant returns the tenant's referral, or nil when the tenant
// signed up without one.
func (d *Directory) ReferralForTenant(ctx context.Context, tenantID uint) (*affiliates.Referral, error) {
	var r affiliates.Referral
	err := d.db.WithContext(ctx).Where("referred_tenant_id = ?", tenantID).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (d *Directory) Affiliate(ctx context.Context, id uint) (*affiliates.Affiliate, error) {
	var a affiliates.Affiliate
	if err := d.db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, affiliates.ErrAffiliateNotFound
		}
		return nil, err
	}
	return &a, nil
}

// RegisterReferral links tenantID to affiliateID. A tenant keeps its first
// referrer; later registrations return the existing referral unchanged.
func (d *Directory) RegisterReferral(ctx context.Context, affiliateID, tenantID uint) (*affiliates.Referral, error) {
	if _, err := d.Affiliate(ctx, affiliateID); err != nil {
		return nil, err
	}

	ref := affiliates.Referral{AffiliateID: affiliateID, ReferredTenantID: tenantID}
	res := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "referred_tenant_id"}}, DoNothing: true}).
		Create(&ref)
	if res.Error != nil {
		return nil, fmt.Errorf("register referral: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		existing, err := d.ReferralForTenant(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		return existing, nil
	}

	d.log.Info("referral registered",
		zap.Uint("affiliate_id", affiliateID),
		zap.Uint("tenant_id", tenantID),
	)
	return &ref, nil
}
