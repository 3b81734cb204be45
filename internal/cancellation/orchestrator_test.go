package cancellation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storefront-billing/internal/domain/billing"
	"storefront-billing/internal/domain/billing/billingtest"
	"storefront-billing/internal/domain/entitlements"
	"storefront-billing/internal/domain/plans"
	"storefront-billing/internal/domain/tenants"
	"storefront-billing/internal/entitlement"
	"storefront-billing/internal/tenant"
	"storefront-billing/internal/testutil"
)

var (
	now       = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	periodEnd = time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
)

type harness struct {
	orch   *Orchestrator
	store  *entitlement.Store
	proc   *billingtest.Processor
	tenant tenants.Tenant
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.NewDB(t)
	catalog, err := plans.NewCatalog(map[plans.PlanType]string{
		plans.PlanPro:             "price_pro",
		plans.PlanProPlus:         "price_pro_plus",
		plans.PlanVerified:        "price_verified",
		plans.PlanProPlusVerified: "price_bundle",
	})
	require.NoError(t, err)

	customer := "cus_1"
	owner := tenants.Tenant{Name: "Shop", Email: "owner@example.com", StripeCustomerID: &customer}
	require.NoError(t, db.Create(&owner).Error)

	store := entitlement.NewStore(db, catalog, zap.NewNop())
	proc := billingtest.NewProcessor()
	o := NewOrchestrator(Params{
		Processor: proc,
		Store:     store,
		Tenants:   tenant.NewDirectory(db, zap.NewNop()),
		Log:       zap.NewNop(),
	})
	o.now = func() time.Time { return now }
	return &harness{orch: o, store: store, proc: proc, tenant: owner}
}

func (h *harness) subscribe(t *testing.T, subID string, pt plans.PlanType) {
	t.Helper()
	h.proc.AddSubscription(billing.Subscription{
		ID:               subID,
		CustomerID:       "cus_1",
		PriceID:          "price_" + string(pt),
		Status:           billing.StatusActive,
		CurrentPeriodEnd: periodEnd,
	})
	require.NoError(t, h.store.Upsert(context.Background(), entitlements.SubscriptionRecord{
		TenantID:               h.tenant.ID,
		PlanType:               pt,
		ExternalSubscriptionID: subID,
		ExternalPriceID:        "price_" + string(pt),
		Status:                 entitlements.StatusActive,
		CurrentPeriodStart:     periodEnd.AddDate(0, -1, 0),
		CurrentPeriodEnd:       periodEnd,
	}))
}

func (h *harness) record(t *testing.T, pt plans.PlanType) *entitlements.SubscriptionRecord {
	t.Helper()
	rec, err := h.store.FindByTenantPlan(context.Background(), h.tenant.ID, pt)
	require.NoError(t, err)
	return rec
}

func TestCancel_Deferred(t *testing.T) {
	h := newHarness(t)
	h.subscribe(t, "sub_1", plans.PlanPro)

	res, err := h.orch.Cancel(context.Background(), h.tenant.ID, "", false)
	require.NoError(t, err)
	assert.Equal(t, "sub_1", res.SubscriptionID)
	assert.False(t, res.Immediate)
	assert.True(t, res.EffectiveEnd.Equal(periodEnd))

	rec := h.record(t, plans.PlanPro)
	assert.Equal(t, entitlements.StatusActive, rec.Status, "access continues to period end")
	assert.True(t, rec.CurrentPeriodEnd.Equal(periodEnd))
	assert.True(t, rec.CancelAtPeriodEnd)
	assert.True(t, h.proc.Subscriptions["sub_1"].CancelAtPeriodEnd)
	assert.Empty(t, h.proc.CallsTo("CancelSubscription"))

	ent, err := h.store.Current(context.Background(), h.tenant.ID, now)
	require.NoError(t, err)
	assert.Equal(t, plans.PlanPro, ent.Plan)
}

func TestCancel_Immediate(t *testing.T) {
	h := newHarness(t)
	h.subscribe(t, "sub_1", plans.PlanPro)

	res, err := h.orch.Cancel(context.Background(), h.tenant.ID, plans.PlanPro, true)
	require.NoError(t, err)
	assert.True(t, res.Immediate)
	assert.True(t, res.EffectiveEnd.Equal(now))
	assert.Equal(t, entitlements.StatusCanceled, h.record(t, plans.PlanPro).Status)
	assert.Equal(t, billing.StatusCanceled, h.proc.Subscriptions["sub_1"].Status)

	// Repeating is harmless.
	_, err = h.orch.Cancel(context.Background(), h.tenant.ID, plans.PlanPro, true)
	assert.ErrorIs(t, err, billing.ErrNoActiveSubscription)
}

func TestCancel_PicksHighestPlan(t *testing.T) {
	h := newHarness(t)
	h.subscribe(t, "sub_v", plans.PlanVerified)
	h.subscribe(t, "sub_pp", plans.PlanProPlus)

	res, err := h.orch.Cancel(context.Background(), h.tenant.ID, "", true)
	require.NoError(t, err)
	assert.Equal(t, plans.PlanProPlus, res.PlanType)
	assert.Equal(t, entitlements.StatusActive, h.record(t, plans.PlanVerified).Status)
}

func TestCancel_NoActiveSubscription(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.Cancel(context.Background(), h.tenant.ID, plans.PlanVerified, false)
	assert.ErrorIs(t, err, billing.ErrNoActiveSubscription)
}

func TestCancel_GoneAtProcessor(t *testing.T) {
	h := newHarness(t)
	h.subscribe(t, "sub_1", plans.PlanPro)
	delete(h.proc.Subscriptions, "sub_1")

	res, err := h.orch.Cancel(context.Background(), h.tenant.ID, "", false)
	require.NoError(t, err)
	assert.True(t, res.Immediate)
	assert.Equal(t, entitlements.StatusExpired, h.record(t, plans.PlanPro).Status)
}

func TestCancel_ProcessorErrorLeavesRecord(t *testing.T) {
	h := newHarness(t)
	h.subscribe(t, "sub_1", plans.PlanPro)
	h.proc.Errs["CancelSubscription"] = billing.ErrProcessorRateLimited

	_, err := h.orch.Cancel(context.Background(), h.tenant.ID, "", true)
	assert.ErrorIs(t, err, billing.ErrProcessorRateLimited)
	assert.Equal(t, entitlements.StatusActive, h.record(t, plans.PlanPro).Status)
}

func TestCancelAll(t *testing.T) {
	h := newHarness(t)
	h.subscribe(t, "sub_a", plans.PlanPro)
	h.subscribe(t, "sub_b", plans.PlanVerified)

	report, err := h.orch.CancelAll(context.Background(), h.tenant.ID, true)
	require.NoError(t, err)
	assert.Len(t, report.Canceled, 2)
	assert.Empty(t, report.Failed)
	assert.Equal(t, entitlements.StatusCanceled, h.record(t, plans.PlanPro).Status)
	assert.Equal(t, entitlements.StatusCanceled, h.record(t, plans.PlanVerified).Status)
}

func TestCancelAll_AggregatesFailures(t *testing.T) {
	h := newHarness(t)
	h.subscribe(t, "sub_a", plans.PlanPro)
	h.subscribe(t, "sub_b", plans.PlanVerified)

	first := true
	h.proc.OnCancel = func(id string) {
		if first {
			first = false
			h.proc.Errs["CancelSubscription"] = billing.ErrProcessorUnavailable
		}
	}

	report, err := h.orch.CancelAll(context.Background(), h.tenant.ID, true)
	require.NoError(t, err)
	assert.Len(t, report.Canceled, 1)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "sub_b", report.Failed[0].SubscriptionID)
	assert.Contains(t, report.Failed[0].Error, "processor_unavailable")
}

func TestCancelAll_UnknownTenant(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.CancelAll(context.Background(), 999, true)
	assert.ErrorIs(t, err, tenants.ErrNotFound)
}

func TestCancelAll_NothingToCancel(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.CancelAll(context.Background(), h.tenant.ID, false)
	assert.ErrorIs(t, err, billing.ErrNoActiveSubscription)
}
