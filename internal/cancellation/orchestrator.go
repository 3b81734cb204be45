// Package cancellation ends tenant subscriptions at the processor and mirrors
// the result locally. Calls are safe to repeat: canceling an already canceled
// subscription converges on the same state.
package cancellation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"storefront-billing/internal/domain/billing"
	"storefront-billing/internal/domain/entitlements"
	"storefront-billing/internal/domain/plans"
	"storefront-billing/internal/entitlement"
	"storefront-billing/internal/tenant"
)

type Params struct {
	fx.In

	Processor billing.Processor
	Store     *entitlement.Store
	Tenants   *tenant.Directory
	Log       *zap.Logger
}

type Orchestrator struct {
	processor billing.Processor
	store     *entitlement.Store
	tenants   *tenant.Directory
	log       *zap.Logger
	now       func() time.Time
}

func NewOrchestrator(p Params) *Orchestrator {
	return &Orchestrator{
		processor: p.Processor,
		store:     p.Store,
		tenants:   p.Tenants,
		log:       p.Log.Named("billing.cancellation"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type Result struct {
	SubscriptionID string         `json:"subscription_id"`
	PlanType       plans.PlanType `json:"plan_type"`
	Immediate      bool           `json:"immediate"`
	EffectiveEnd   time.Time      `json:"effective_end"`
}

type Failure struct {
	SubscriptionID string `json:"subscription_id"`
	Error          string `json:"error"`
}

type Report struct {
	Canceled []Result  `json:"canceled"`
	Failed   []Failure `json:"failed"`
}

// Cancel ends one of the tenant's subscriptions. With an empty planType the
// highest ranked active plan is chosen. Immediate cancellation revokes access
// now; otherwise access runs to the end of the paid period.
func (o *Orchestrator) Cancel(ctx context.Context, tenantID uint, planType plans.PlanType, immediate bool) (Result, error) {
	var filter []plans.PlanType
	if planType != "" {
		filter = append(filter, planType)
	}
	recs, err := o.store.ActiveForTenant(ctx, tenantID, filter...)
	if err != nil {
		return Result{}, err
	}
	if len(recs) == 0 {
		return Result{}, billing.ErrNoActiveSubscription
	}

	target := recs[0]
	for _, rec := range recs[1:] {
		if plans.Higher(rec.PlanType, target.PlanType) {
			target = rec
		}
	}
	return o.cancelRecord(ctx, target, immediate)
}

func (o *Orchestrator) cancelRecord(ctx context.Context, rec entitlements.SubscriptionRecord, immediate bool) (Result, error) {
	log := o.log.With(
		zap.Uint("tenant_id", rec.TenantID),
		zap.String("plan_type", string(rec.PlanType)),
		zap.String("subscription_id", rec.ExternalSubscriptionID),
		zap.Bool("immediate", immediate),
	)
	res := Result{SubscriptionID: rec.ExternalSubscriptionID, PlanType: rec.PlanType, Immediate: immediate}

	if immediate {
		_, err := o.processor.CancelSubscription(ctx, rec.ExternalSubscriptionID)
		if err != nil && !errors.Is(err, billing.ErrSubscriptionNotFound) {
			return Result{}, fmt.Errorf("cancel at processor: %w", err)
		}
		if err := o.store.MarkCanceled(ctx, rec.TenantID, rec.PlanType, rec.ExternalSubscriptionID); err != nil {
			return Result{}, err
		}
		res.EffectiveEnd = o.now()
		log.Info("subscription canceled")
		return res, nil
	}

	sub, err := o.processor.CancelAtPeriodEnd(ctx, rec.ExternalSubscriptionID)
	if errors.Is(err, billing.ErrSubscriptionNotFound) {
		// Nothing left to run out at the processor.
		if _, err := o.store.ExpireBySubscriptionID(ctx, rec.ExternalSubscriptionID); err != nil {
			return Result{}, err
		}
		res.Immediate = true
		res.EffectiveEnd = o.now()
		log.Info("subscription already gone at processor; expired locally")
		return res, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("schedule cancellation at processor: %w", err)
	}
	if err := o.store.SetCancelAtPeriodEnd(ctx, rec.TenantID, rec.PlanType, rec.ExternalSubscriptionID); err != nil {
		return Result{}, err
	}

	res.EffectiveEnd = rec.CurrentPeriodEnd
	if sub != nil && !sub.CurrentPeriodEnd.IsZero() {
		res.EffectiveEnd = sub.CurrentPeriodEnd
	}
	log.Info("subscription set to end with period", zap.Time("effective_end", res.EffectiveEnd))
	return res, nil
}

// CancelAll cancels every live subscription the processor holds for the
// tenant's customer. One failure does not stop the rest.
func (o *Orchestrator) CancelAll(ctx context.Context, tenantID uint, immediate bool) (Report, error) {
	t, err := o.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return Report{}, err
	}
	customerID := t.CustomerID()
	if customerID == "" {
		cus, err := o.processor.FindCustomerByEmail(ctx, t.Email)
		if errors.Is(err, billing.ErrCustomerNotFound) {
			return Report{}, billing.ErrNoCustomer
		}
		if err != nil {
			return Report{}, err
		}
		customerID = cus.ID
	}

	subs, err := o.processor.ListActiveSubscriptions(ctx, customerID)
	if err != nil {
		return Report{}, fmt.Errorf("list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return Report{}, billing.ErrNoActiveSubscription
	}

	local, err := o.store.ActiveForTenant(ctx, tenantID)
	if err != nil {
		return Report{}, err
	}
	bySub := make(map[string]entitlements.SubscriptionRecord, len(local))
	for _, rec := range local {
		bySub[rec.ExternalSubscriptionID] = rec
	}

	report := Report{Canceled: []Result{}, Failed: []Failure{}}
	for _, sub := range subs {
		rec, ok := bySub[sub.ID]
		if !ok {
			rec = entitlements.SubscriptionRecord{
				TenantID:               tenantID,
				ExternalSubscriptionID: sub.ID,
				CurrentPeriodEnd:       sub.CurrentPeriodEnd,
			}
		}
		res, err := o.cancelRecord(ctx, rec, immediate)
		if err != nil {
			o.log.Warn("cancel failed",
				zap.Uint("tenant_id", tenantID),
				zap.String("subscription_id", sub.ID),
				zap.Error(err),
			)
			report.Failed = append(report.Failed, Failure{SubscriptionID: sub.ID, Error: err.Error()})
			continue
		}
		report.Canceled = append(report.Canceled, res)
	}
	return report, nil
}
