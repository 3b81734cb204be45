// Package commission records affiliate commissions for confirmed payments.
// Each (affiliate, referred tenant, subscription, period start) is paid at
// most once no matter how often the payment event is delivered.
package commission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront-billing/internal/affiliate"
	"storefront-billing/internal/domain/affiliates"
	"storefront-billing/internal/domain/billing"
	"storefront-billing/internal/observability"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Affiliates *affiliate.Directory
	Log        *zap.Logger
	Metrics    *observability.Metrics `optional:"true"`
}

type Ledger struct {
	db         *gorm.DB
	affiliates *affiliate.Directory
	log        *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

func NewLedger(p Params) *Ledger {
	return &Ledger{
		db:         p.DB,
		affiliates: p.Affiliates,
		log:        p.Log.Named("commission.ledger"),
		metrics:    p.Metrics,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Amount is amount × rate rounded half away from zero, in the same unit.
func Amount(amount int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(rate).Round(0).IntPart()
}

// Record writes the commission for one paid period. It reports false without
// error when the tenant has no active referrer or the period is already
// recorded.
func (l *Ledger) Record(ctx context.Context, in affiliates.CommissionInput) (bool, error) {
	if in.Amount <= 0 {
		l.metrics.IncCommission("skipped")
		return false, nil
	}

	ref, err := l.affiliates.ReferralForTenant(ctx, in.TenantID)
	if err != nil {
		return false, fmt.Errorf("load referral: %w", err)
	}
	if ref == nil {
		l.metrics.IncCommission("skipped")
		return false, nil
	}

	aff, err := l.affiliates.Affiliate(ctx, ref.AffiliateID)
	if errors.Is(err, affiliates.ErrAffiliateNotFound) {
		l.log.Warn("referral points at missing affiliate",
			zap.Uint("affiliate_id", ref.AffiliateID),
			zap.Uint("tenant_id", in.TenantID),
		)
		l.metrics.IncCommission("skipped")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load affiliate: %w", err)
	}
	if aff.Status != affiliates.StatusActive {
		l.metrics.IncCommission("skipped")
		return false, nil
	}

	periodStart := in.PeriodStart.UTC()
	fields := []zap.Field{
		zap.Uint("affiliate_id", aff.ID),
		zap.Uint("tenant_id", in.TenantID),
		zap.String("subscription_id", in.SubscriptionID),
		zap.Time("period_start", periodStart),
	}

	exists, err := l.exists(ctx, aff.ID, in.TenantID, in.SubscriptionID, periodStart)
	if err != nil {
		return false, err
	}
	if exists {
		l.log.Debug("commission already recorded", fields...)
		l.metrics.IncCommission("duplicate")
		return false, nil
	}

	row := affiliates.Commission{
		AffiliateID:            aff.ID,
		ReferredTenantID:       in.TenantID,
		ExternalSubscriptionID: in.SubscriptionID,
		PeriodStart:            periodStart,
		PeriodEnd:              in.PeriodEnd.UTC(),
		Amount:                 in.Amount,
		CommissionAmount:       Amount(in.Amount, aff.CommissionRate),
		Status:                 affiliates.CommissionPending,
	}

	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error != nil {
			return fmt.Errorf("insert commission: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return billing.ErrDuplicateCommission
		}

		return tx.Model(&affiliates.Referral{}).
			Where("id = ? AND first_purchase_at IS NULL", ref.ID).
			Update("first_purchase_at", l.now()).Error
	})
	if errors.Is(err, billing.ErrDuplicateCommission) {
		l.log.Debug("commission insert lost race to a duplicate", fields...)
		l.metrics.IncCommission("duplicate")
		return false, nil
	}
	if err != nil {
		return false, err
	}

	l.log.Info("commission recorded", append(fields,
		zap.Int64("amount", row.Amount),
		zap.Int64("commission_amount", row.CommissionAmount),
	)...)
	l.metrics.IncCommission("recorded")
	return true, nil
}

func (l *Ledger) exists(ctx context.Context, affiliateID, tenantID uint, subID string, periodStart time.Time) (bool, error) {
	var count int64
	err := l.db.WithContext(ctx).Model(&affiliates.Commission{}).
		Where("affiliate_id = ? AND referred_tenant_id = ? AND external_subscription_id = ? AND period_start = ?",
			affiliateID, tenantID, subID, periodStart).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check commission: %w", err)
	}
	return count > 0, nil
}

// Totals sums an affiliate's commissions by payout status.
func (l *Ledger) Totals(ctx context.Context, affiliateID uint) (affiliates.Totals, error) {
	if _, err := l.affiliates.Affiliate(ctx, affiliateID); err != nil {
		return affiliates.Totals{}, err
	}

	var rows []struct {
		Status affiliates.CommissionStatus
		Total  int64
		Count  int64
	}
	err := l.db.WithContext(ctx).Model(&affiliates.Commission{}).
		Select("status, COALESCE(SUM(commission_amount), 0) AS total, COUNT(*) AS count").
		Where("affiliate_id = ?", affiliateID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return affiliates.Totals{}, fmt.Errorf("sum commissions: %w", err)
	}

	out := affiliates.Totals{AffiliateID: affiliateID}
	for _, r := range rows {
		switch r.Status {
		case affiliates.CommissionPending:
			out.Pending += r.Total
		case affiliates.CommissionPaid:
			out.Paid += r.Total
		}
		out.Count += r.Count
	}
	return out, nil
}
