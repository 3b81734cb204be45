package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"storefront-billing/internal/domain/billing"
	"storefront-billing/internal/domain/tenants"
)

// SyncReport summarises a SyncTenant run.
type SyncReport struct {
	CustomerID string `json:"customer_id"`
	Applied    int    `json:"applied"`
	Expired    int64  `json:"expired"`
}

// SyncTenant pulls the tenant's live subscriptions from the processor and
// replays them through the same path as webhook events. Local active records
// the processor no longer reports are expired. It repairs drift left by
// missed deliveries.
func (e *Engine) SyncTenant(ctx context.Context, tenantID uint) (SyncReport, error) {
	log := e.log.With(zap.Uint("tenant_id", tenantID))

	t, err := e.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return SyncReport{}, err
	}
	customerID, err := e.customerFor(ctx, t)
	if err != nil {
		return SyncReport{}, err
	}
	report := SyncReport{CustomerID: customerID}

	subs, err := e.processor.ListActiveSubscriptions(ctx, customerID)
	if err != nil {
		return report, fmt.Errorf("list subscriptions: %w", err)
	}

	// Components first so a bundle in the same listing collapses them.
	sort.SliceStable(subs, func(i, j int) bool {
		return !e.isBundlePrice(subs[i].PriceID) && e.isBundlePrice(subs[j].PriceID)
	})

	live := make(map[string]bool, len(subs))
	for i := range subs {
		sub := subs[i]
		live[sub.ID] = true
		sub.Metadata = withTenant(sub.Metadata, fmt.Sprint(tenantID))
		if sub.CustomerID == "" {
			sub.CustomerID = customerID
		}
		if _, _, err := e.applySubscription(ctx, log, &sub); err != nil {
			return report, err
		}
		report.Applied++
	}

	active, err := e.store.ActiveForTenant(ctx, tenantID)
	if err != nil {
		return report, err
	}
	for _, rec := range active {
		if live[rec.ExternalSubscriptionID] {
			continue
		}
		n, err := e.store.ExpireBySubscriptionID(ctx, rec.ExternalSubscriptionID)
		if err != nil {
			return report, err
		}
		report.Expired += n
	}

	log.Info("tenant synced from processor",
		zap.String("customer_id", customerID),
		zap.Int("applied", report.Applied),
		zap.Int64("expired", report.Expired),
	)
	return report, nil
}

// customerFor returns the tenant's processor customer, looking it up by email
// and attaching it when not yet known.
func (e *Engine) customerFor(ctx context.Context, t *tenants.Tenant) (string, error) {
	if id := t.CustomerID(); id != "" {
		return id, nil
	}
	cus, err := e.processor.FindCustomerByEmail(ctx, t.Email)
	if errors.Is(err, billing.ErrCustomerNotFound) {
		return "", billing.ErrNoCustomer
	}
	if err != nil {
		return "", fmt.Errorf("find customer: %w", err)
	}
	if err := e.tenants.AttachCustomer(ctx, t.ID, cus.ID); err != nil {
		return "", err
	}
	return cus.ID, nil
}

func (e *Engine) isBundlePrice(priceID string) bool {
	t, ok := e.catalog.ResolvePrice(priceID)
	return ok && e.catalog.IsBundle(t)
}
