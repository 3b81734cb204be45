// Package entitlement persists what each tenant is entitled to and serves the
// read model used for feature gating.
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront-billing/internal/domain/entitlements"
	"storefront-billing/internal/domain/plans"
)

var ErrRecordNotFound = errors.New("subscription_record_not_found")

type Store struct {
	db      *gorm.DB
	catalog *plans.Catalog
	log     *zap.Logger
}

func NewStore(db *gorm.DB, catalog *plans.Catalog, log *zap.Logger) *Store {
	return &Store{db: db, catalog: catalog, log: log.Named("entitlement.store")}
}

// Upsert writes rec as the single record for (tenant, plan type). Concurrent
// deliveries race on the unique index, not on a prior read.
func (s *Store) Upsert(ctx context.Context, rec entitlements.SubscriptionRecord) error {
	rec.ID = 0
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}, {Name: "plan_type"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"external_subscription_id",
				"external_price_id",
				"status",
				"current_period_start",
				"current_period_end",
				"cancel_at_period_end",
				"updated_at",
			}),
		}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("upsert subscription record: %w", err)
	}
	return nil
}

// ExpireBySubscriptionID moves the active records backed by subID to expired.
// Records already canceled keep their status.
func (s *Store) ExpireBySubscriptionID(ctx context.Context, subID string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&entitlements.SubscriptionRecord{}).
		Where("external_subscription_id = ? AND status = ?", subID, entitlements.StatusActive).
		Updates(map[string]any{
			"status":     entitlements.StatusExpired,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("expire subscription records: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// MarkCanceled cancels the (tenant, plan type) record if it is still backed by
// subID. A record already replaced by a newer subscription is left alone.
func (s *Store) MarkCanceled(ctx context.Context, tenantID uint, planType plans.PlanType, subID string) error {
	err := s.db.WithContext(ctx).Model(&entitlements.SubscriptionRecord{}).
		Where("tenant_id = ? AND plan_type = ? AND external_subscription_id = ?", tenantID, planType, subID).
		Updates(map[string]any{
			"status":     entitlements.StatusCanceled,
			"updated_at": time.Now().UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("mark subscription record canceled: %w", err)
	}
	return nil
}

// RetireOtherPlans cancels the tenant's active records that are backed by
// subID under a different plan type. A subscription switched to a new price
// keeps its id, so the record for the old plan must stop granting access.
func (s *Store) RetireOtherPlans(ctx context.Context, tenantID uint, subID string, keep plans.PlanType) (int64, error) {
	res := s.db.WithContext(ctx).Model(&entitlements.SubscriptionRecord{}).
		Where("tenant_id = ? AND external_subscription_id = ? AND plan_type <> ? AND status = ?",
			tenantID, subID, string(keep), entitlements.StatusActive).
		Updates(map[string]any{
			"status":     entitlements.StatusCanceled,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("retire replaced plan records: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// SetCancelAtPeriodEnd flags a deferred cancellation. Status and period end
// are untouched so access continues until the period closes.
func (s *Store) SetCancelAtPeriodEnd(ctx context.Context, tenantID uint, planType plans.PlanType, subID string) error {
	err := s.db.WithContext(ctx).Model(&entitlements.SubscriptionRecord{}).
		Where("tenant_id = ? AND plan_type = ? AND external_subscription_id = ?", tenantID, planType, subID).
		Updates(map[string]any{
			"cancel_at_period_end": true,
			"updated_at":           time.Now().UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("flag cancel at period end: %w", err)
	}
	return nil
}

// ActiveForTenant lists the tenant's active records, optionally limited to
// the given plan types.
func (s *Store) ActiveForTenant(ctx context.Context, tenantID uint, types ...plans.PlanType) ([]entitlements.SubscriptionRecord, error) {
	q := s.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ?", tenantID, entitlements.StatusActive)
	if len(types) > 0 {
		names := make([]string, len(types))
		for i, t := range types {
			names[i] = string(t)
		}
		q = q.Where("plan_type IN ?", names)
	}

	var out []entitlements.SubscriptionRecord
	if err := q.Order("id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list active records: %w", err)
	}
	return out, nil
}

func (s *Store) FindByTenantPlan(ctx context.Context, tenantID uint, planType plans.PlanType) (*entitlements.SubscriptionRecord, error) {
	var rec entitlements.SubscriptionRecord
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND plan_type = ?", tenantID, planType).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Current computes the tenant's entitlement at now. Only active records whose
// period has not ended count; with none the tenant is on the free plan.
func (s *Store) Current(ctx context.Context, tenantID uint, now time.Time) (entitlements.Entitlement, error) {
	active, err := s.ActiveForTenant(ctx, tenantID)
	if err != nil {
		return entitlements.Entitlement{}, err
	}

	out := entitlements.Entitlement{
		TenantID: tenantID,
		Plan:     plans.PlanFree,
		Records:  []entitlements.SubscriptionRecord{},
	}
	for _, rec := range active {
		if !rec.Entitled(now) {
			continue
		}
		out.Records = append(out.Records, rec)
		out.Plans = append(out.Plans, rec.PlanType)
		if plans.Higher(rec.PlanType, out.Plan) {
			out.Plan = rec.PlanType
		}
		if out.ActiveUntil == nil || rec.CurrentPeriodEnd.After(*out.ActiveUntil) {
			end := rec.CurrentPeriodEnd
			out.ActiveUntil = &end
		}
	}
	if len(out.Plans) == 0 {
		out.Plans = []plans.PlanType{plans.PlanFree}
	}
	sort.Slice(out.Plans, func(i, j int) bool { return plans.Higher(out.Plans[i], out.Plans[j]) })
	out.Features = s.catalog.Features(out.Plans...)
	return out, nil
}
