package reconcile

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"storefront-billing/internal/domain/billing"
	"storefront-billing/internal/domain/plans"
)

// collapse runs after a bundle record is committed. Component subscriptions
// the bundle makes redundant are canceled at the processor first, then
// locally, so a failure leaves the component billable but never unpaid.
func (e *Engine) collapse(ctx context.Context, log *zap.Logger, tenantID uint, bundle plans.PlanType, bundleSubID string) error {
	components := e.catalog.ComponentsOf(bundle)
	if len(components) == 0 {
		return nil
	}

	recs, err := e.store.ActiveForTenant(ctx, tenantID, components...)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if rec.ExternalSubscriptionID == bundleSubID {
			continue
		}
		if err := e.cancelAtProcessor(ctx, log, rec.ExternalSubscriptionID); err != nil {
			return err
		}
		if err := e.store.MarkCanceled(ctx, tenantID, rec.PlanType, rec.ExternalSubscriptionID); err != nil {
			return err
		}
		log.Info("redundant subscription collapsed into bundle",
			zap.String("bundle", string(bundle)),
			zap.String("component", string(rec.PlanType)),
			zap.String("component_subscription_id", rec.ExternalSubscriptionID),
		)
	}
	return nil
}

// supersededBy reports whether an active bundle already covers planType for
// the tenant through a different subscription.
func (e *Engine) supersededBy(ctx context.Context, tenantID uint, planType plans.PlanType, subID string) (plans.PlanType, bool, error) {
	bundles := e.catalog.BundlesContaining(planType)
	if len(bundles) == 0 {
		return "", false, nil
	}
	recs, err := e.store.ActiveForTenant(ctx, tenantID, bundles...)
	if err != nil {
		return "", false, err
	}
	for _, rec := range recs {
		if rec.ExternalSubscriptionID != subID {
			return rec.PlanType, true, nil
		}
	}
	return "", false, nil
}

// cancelAtProcessor cancels immediately. A subscription the processor no
// longer knows counts as canceled.
func (e *Engine) cancelAtProcessor(ctx context.Context, log *zap.Logger, subID string) error {
	_, err := e.processor.CancelSubscription(ctx, subID)
	if errors.Is(err, billing.ErrSubscriptionNotFound) {
		log.Info("subscription already gone at processor", zap.String("subscription_id", subID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("cancel subscription %s: %w", subID, err)
	}
	return nil
}
