// Package reconcile applies verified processor events to the entitlement
// store and the commission ledger. Every transition is idempotent so
// redelivered and reordered events converge on the processor's state.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"storefront-billing/internal/commission"
	"storefront-billing/internal/domain/affiliates"
	"storefront-billing/internal/domain/billing"
	"storefront-billing/internal/domain/entitlements"
	"storefront-billing/internal/domain/plans"
	"storefront-billing/internal/domain/tenants"
	"storefront-billing/internal/entitlement"
	"storefront-billing/internal/observability"
	"storefront-billing/internal/payment"
	"storefront-billing/internal/tenant"
)

type Params struct {
	fx.In

	Processor billing.Processor
	Store     *entitlement.Store
	Ledger    *commission.Ledger
	Payments  *payment.History
	Tenants   *tenant.Directory
	Catalog   *plans.Catalog
	Policy    plans.UnknownPricePolicy
	Log       *zap.Logger
	Metrics   *observability.Metrics `optional:"true"`
}

type Engine struct {
	processor billing.Processor
	store     *entitlement.Store
	ledger    *commission.Ledger
	payments  *payment.History
	tenants   *tenant.Directory
	catalog   *plans.Catalog
	policy    plans.UnknownPricePolicy
	log       *zap.Logger
	metrics   *observability.Metrics
}

func NewEngine(p Params) *Engine {
	policy := p.Policy
	if policy == "" {
		policy = plans.PolicyFallback
	}
	return &Engine{
		processor: p.Processor,
		store:     p.Store,
		ledger:    p.Ledger,
		payments:  p.Payments,
		tenants:   p.Tenants,
		catalog:   p.Catalog,
		policy:    policy,
		log:       p.Log.Named("billing.reconcile"),
		metrics:   p.Metrics,
	}
}

// HandleEvent applies one verified event. A nil error means the event can be
// acknowledged; an error means the processor should redeliver it.
func (e *Engine) HandleEvent(ctx context.Context, ev *billing.Event) (billing.Outcome, error) {
	log := e.log.With(zap.String("event_id", ev.ID), zap.String("event_type", string(ev.Type)))

	switch ev.Type {
	case billing.EventCheckoutSessionCompleted:
		if ev.CheckoutSession == nil {
			return "", fmt.Errorf("%w: missing checkout session", billing.ErrMalformedEvent)
		}
		return e.checkoutCompleted(ctx, log, ev.CheckoutSession)

	case billing.EventSubscriptionCreated, billing.EventSubscriptionUpdated:
		if ev.Subscription == nil {
			return "", fmt.Errorf("%w: missing subscription", billing.ErrMalformedEvent)
		}
		_, outcome, err := e.applySubscription(ctx, log, ev.Subscription)
		return outcome, err

	case billing.EventSubscriptionDeleted:
		if ev.Subscription == nil {
			return "", fmt.Errorf("%w: missing subscription", billing.ErrMalformedEvent)
		}
		return e.expire(ctx, log, ev.Subscription.ID)

	case billing.EventInvoicePaymentSucceeded:
		if ev.Invoice == nil {
			return "", fmt.Errorf("%w: missing invoice", billing.ErrMalformedEvent)
		}
		return e.paymentSucceeded(ctx, log, ev.Invoice)

	case billing.EventInvoicePaymentFailed:
		if ev.Invoice != nil {
			log.Info("invoice payment failed; processor handles dunning",
				zap.String("invoice_id", ev.Invoice.ID),
				zap.String("subscription_id", ev.Invoice.SubscriptionID),
			)
		}
		return billing.OutcomeProcessed, nil
	}

	log.Debug("ignoring unhandled event type")
	return billing.OutcomeIgnored, nil
}

func (e *Engine) checkoutCompleted(ctx context.Context, log *zap.Logger, cs *billing.CheckoutSession) (billing.Outcome, error) {
	if cs.Mode != "subscription" || cs.SubscriptionID == "" {
		log.Debug("ignoring non-subscription checkout", zap.String("session_id", cs.ID), zap.String("mode", cs.Mode))
		return billing.OutcomeIgnored, nil
	}

	sub, err := e.processor.GetSubscription(ctx, cs.SubscriptionID)
	if err != nil {
		return "", fmt.Errorf("fetch subscription %s: %w", cs.SubscriptionID, err)
	}
	if billing.TenantIDFromMetadata(sub.Metadata) == 0 && billing.TenantIDFromMetadata(cs.Metadata) != 0 {
		sub.Metadata = withTenant(sub.Metadata, cs.Metadata[billing.MetadataTenantID])
	}
	if sub.CustomerEmail == "" {
		sub.CustomerEmail = cs.CustomerEmail
	}
	if sub.CustomerID == "" {
		sub.CustomerID = cs.CustomerID
	}

	_, outcome, err := e.applySubscription(ctx, log, sub)
	return outcome, err
}

// paymentSucceeded re-reads the subscription so the local record reflects the
// renewed period before the commission for that period is written.
func (e *Engine) paymentSucceeded(ctx context.Context, log *zap.Logger, inv *billing.Invoice) (billing.Outcome, error) {
	if inv.SubscriptionID == "" {
		log.Debug("ignoring invoice without subscription", zap.String("invoice_id", inv.ID))
		return billing.OutcomeIgnored, nil
	}

	sub, err := e.processor.GetSubscription(ctx, inv.SubscriptionID)
	if err != nil {
		return "", fmt.Errorf("fetch subscription %s: %w", inv.SubscriptionID, err)
	}
	if sub.CustomerEmail == "" {
		sub.CustomerEmail = inv.CustomerEmail
	}
	if sub.CustomerID == "" {
		sub.CustomerID = inv.CustomerID
	}

	tenantID, outcome, err := e.applySubscription(ctx, log, sub)
	if err != nil || tenantID == 0 {
		return outcome, err
	}

	periodStart, periodEnd := inv.PeriodStart, inv.PeriodEnd
	if periodStart.IsZero() {
		periodStart, periodEnd = sub.CurrentPeriodStart, sub.CurrentPeriodEnd
	}
	if e.payments != nil && inv.ID != "" {
		planType, _ := e.catalog.ResolvePrice(sub.PriceID)
		if err := e.payments.Record(ctx, billing.Payment{
			TenantID:               tenantID,
			ExternalInvoiceID:      inv.ID,
			ExternalSubscriptionID: sub.ID,
			PlanType:               string(planType),
			Amount:                 inv.AmountPaid,
			Currency:               inv.Currency,
			Status:                 billing.PaymentPaid,
			PeriodStart:            periodStart,
			PeriodEnd:              periodEnd,
		}); err != nil {
			return "", err
		}
	}

	if inv.AmountPaid <= 0 {
		log.Debug("zero amount invoice, no commission", zap.String("invoice_id", inv.ID))
		return billing.OutcomeProcessed, nil
	}
	if _, err := e.ledger.Record(ctx, affiliates.CommissionInput{
		TenantID:       tenantID,
		Amount:         inv.AmountPaid,
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
		SubscriptionID: sub.ID,
	}); err != nil {
		return "", fmt.Errorf("record commission: %w", err)
	}
	return billing.OutcomeProcessed, nil
}

// applySubscription converges the local record for sub's plan on the
// processor's view of it. It returns the resolved tenant id, or 0 when the
// tenant could not be identified.
func (e *Engine) applySubscription(ctx context.Context, log *zap.Logger, sub *billing.Subscription) (uint, billing.Outcome, error) {
	log = log.With(zap.String("subscription_id", sub.ID))

	t, err := e.resolveTenant(ctx, sub)
	if errors.Is(err, billing.ErrUnresolvedTenant) {
		log.Warn("could not resolve tenant for subscription",
			zap.String("customer_id", sub.CustomerID),
			zap.Error(err),
		)
		return 0, billing.OutcomeIgnored, nil
	}
	if err != nil {
		return 0, "", err
	}
	log = log.With(zap.Uint("tenant_id", t.ID))

	if err := e.tenants.AttachCustomer(ctx, t.ID, sub.CustomerID); err != nil {
		return t.ID, "", err
	}

	switch {
	case sub.Entitling():
	case sub.Status == billing.StatusCanceled:
		outcome, err := e.expire(ctx, log, sub.ID)
		return t.ID, outcome, err
	default:
		log.Info("subscription not entitling, leaving entitlement unchanged", zap.String("status", sub.Status))
		return t.ID, billing.OutcomeIgnored, nil
	}

	planType, ok := e.resolvePlan(log, sub.PriceID)
	if !ok {
		return t.ID, billing.OutcomeIgnored, nil
	}

	if ended, err := e.alreadyEnded(ctx, t.ID, planType, sub.ID); err != nil {
		return t.ID, "", err
	} else if ended {
		log.Info("stale snapshot for an ended subscription, not reactivating",
			zap.String("plan_type", string(planType)),
			zap.String("status", sub.Status),
		)
		return t.ID, billing.OutcomeIgnored, nil
	}

	status := entitlements.StatusActive
	if bundle, redundant, err := e.supersededBy(ctx, t.ID, planType, sub.ID); err != nil {
		return t.ID, "", err
	} else if redundant {
		log.Info("subscription made redundant by active bundle",
			zap.String("plan_type", string(planType)),
			zap.String("bundle", string(bundle)),
		)
		if err := e.cancelAtProcessor(ctx, log, sub.ID); err != nil {
			return t.ID, "", err
		}
		status = entitlements.StatusCanceled
	}

	rec := entitlements.SubscriptionRecord{
		TenantID:               t.ID,
		PlanType:               planType,
		ExternalSubscriptionID: sub.ID,
		ExternalPriceID:        sub.PriceID,
		Status:                 status,
		CurrentPeriodStart:     sub.CurrentPeriodStart,
		CurrentPeriodEnd:       sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
	}
	if err := e.store.Upsert(ctx, rec); err != nil {
		return t.ID, "", err
	}
	if n, err := e.store.RetireOtherPlans(ctx, t.ID, sub.ID, planType); err != nil {
		return t.ID, "", err
	} else if n > 0 {
		log.Info("retired records replaced by plan change", zap.Int64("count", n))
	}
	log.Info("subscription record upserted",
		zap.String("plan_type", string(planType)),
		zap.String("status", string(status)),
		zap.Time("current_period_end", sub.CurrentPeriodEnd),
	)

	if status == entitlements.StatusActive && e.catalog.IsBundle(planType) {
		if err := e.collapse(ctx, log, t.ID, planType, sub.ID); err != nil {
			return t.ID, "", err
		}
	}
	return t.ID, billing.OutcomeProcessed, nil
}

func (e *Engine) expire(ctx context.Context, log *zap.Logger, subID string) (billing.Outcome, error) {
	n, err := e.store.ExpireBySubscriptionID(ctx, subID)
	if err != nil {
		return "", err
	}
	log.Info("subscription ended", zap.String("subscription_id", subID), zap.Int64("expired", n))
	return billing.OutcomeProcessed, nil
}

// alreadyEnded reports whether subID has ended for this tenant: its record for
// planType left the active state and no other active record carries it. The
// processor never revives an ended subscription, so the plan only moves again
// under a new id.
func (e *Engine) alreadyEnded(ctx context.Context, tenantID uint, planType plans.PlanType, subID string) (bool, error) {
	rec, err := e.store.FindByTenantPlan(ctx, tenantID, planType)
	if errors.Is(err, entitlement.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if rec.ExternalSubscriptionID != subID || rec.Status == entitlements.StatusActive {
		return false, nil
	}
	active, err := e.store.ActiveForTenant(ctx, tenantID)
	if err != nil {
		return false, err
	}
	for _, r := range active {
		if r.ExternalSubscriptionID == subID {
			return false, nil
		}
	}
	return true, nil
}

// resolvePlan applies the unknown-price policy. ok is false when the event
// must not change entitlements.
func (e *Engine) resolvePlan(log *zap.Logger, priceID string) (plans.PlanType, bool) {
	if t, ok := e.catalog.ResolvePrice(priceID); ok {
		return t, true
	}
	e.metrics.IncUnknownPrice(string(e.policy))
	if e.policy == plans.PolicyReject {
		log.Error("subscription price not in catalog; entitlement unchanged",
			zap.String("price_id", priceID),
			zap.Error(billing.ErrUnknownPrice),
		)
		return "", false
	}
	log.Warn("subscription price not in catalog; entitling fallback plan",
		zap.String("price_id", priceID),
		zap.String("fallback", string(e.catalog.Fallback())),
	)
	return e.catalog.Fallback(), true
}

// resolveTenant tries checkout metadata, then the attached customer id, then
// the customer's email.
func (e *Engine) resolveTenant(ctx context.Context, sub *billing.Subscription) (*tenants.Tenant, error) {
	if id := billing.TenantIDFromMetadata(sub.Metadata); id != 0 {
		t, err := e.tenants.FindByID(ctx, id)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, tenants.ErrNotFound) {
			return nil, err
		}
	}

	if sub.CustomerID != "" {
		t, err := e.tenants.FindByCustomerID(ctx, sub.CustomerID)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, tenants.ErrNotFound) {
			return nil, err
		}
	}

	email := sub.CustomerEmail
	if email == "" && sub.CustomerID != "" {
		cus, err := e.processor.GetCustomer(ctx, sub.CustomerID)
		switch {
		case errors.Is(err, billing.ErrCustomerNotFound):
		case err != nil:
			return nil, fmt.Errorf("fetch customer %s: %w", sub.CustomerID, err)
		default:
			email = cus.Email
		}
	}

	t, err := e.tenants.FindByEmail(ctx, email)
	if errors.Is(err, tenants.ErrNotFound) {
		return nil, billing.ErrUnresolvedTenant
	}
	return t, err
}

func withTenant(md map[string]string, tenantID string) map[string]string {
	out := make(map[string]string, len(md)+1)
	for k, v := range md {
		out[k] = v
	}
	out[billing.MetadataTenantID] = tenantID
	return out
}
