package plans

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrMissingPrice   = errors.New("plan_price_missing")
	ErrDuplicatePrice = errors.New("plan_price_duplicate")
)

var displayNames = map[PlanType]string{
	PlanFree:            "Free",
	PlanPro:             "Pro",
	PlanProPlus:         "Pro Plus",
	PlanVerified:        "Verified",
	PlanProPlusVerified: "Pro Plus + Verified",
}

var baseFeatures = map[PlanType][]string{
	PlanFree:     {"catalog", "storefront"},
	PlanPro:      {"catalog", "storefront", "custom_domain", "unlimited_products", "analytics"},
	PlanProPlus:  {"catalog", "storefront", "custom_domain", "unlimited_products", "analytics", "lead_capture", "priority_support"},
	PlanVerified: {"catalog", "storefront", "verified_badge"},
}

// Catalog maps plan types to processor price ids and feature sets. It is the
// only place price ids are translated into plans.
type Catalog struct {
	plans    map[PlanType]Plan
	byPrice  map[string]PlanType
	fallback PlanType
}

// NewCatalog builds the catalog from a plan type -> price id table. Every paid
// plan must have a distinct price id.
func NewCatalog(prices map[PlanType]string) (*Catalog, error) {
	c := &Catalog{
		plans:    make(map[PlanType]Plan, len(PaidPlanTypes)+1),
		byPrice:  make(map[string]PlanType, len(PaidPlanTypes)),
		fallback: PlanPro,
	}
	c.plans[PlanFree] = Plan{ID: PlanFree, DisplayName: displayNames[PlanFree], Features: baseFeatures[PlanFree]}

	for _, t := range PaidPlanTypes {
		priceID := strings.TrimSpace(prices[t])
		if priceID == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingPrice, t)
		}
		if other, dup := c.byPrice[priceID]; dup {
			return nil, fmt.Errorf("%w: %s used by %s and %s", ErrDuplicatePrice, priceID, other, t)
		}
		c.byPrice[priceID] = t

		p := Plan{
			ID:              t,
			ExternalPriceID: priceID,
			DisplayName:     displayNames[t],
			Components:      bundleComponents[t],
		}
		if p.IsBundle() {
			p.Features = unionFeatures(p.Components...)
		} else {
			p.Features = baseFeatures[t]
		}
		c.plans[t] = p
	}
	return c, nil
}

// Plan returns the catalog entry for t.
func (c *Catalog) Plan(t PlanType) (Plan, bool) {
	p, ok := c.plans[t]
	return p, ok
}

// Plans returns every plan, free first, then paid plans in display order.
func (c *Catalog) Plans() []Plan {
	out := []Plan{c.plans[PlanFree]}
	for _, t := range PaidPlanTypes {
		out = append(out, c.plans[t])
	}
	return out
}

// ResolvePrice maps a processor price id to its plan type.
func (c *Catalog) ResolvePrice(priceID string) (PlanType, bool) {
	t, ok := c.byPrice[strings.TrimSpace(priceID)]
	return t, ok
}

// Fallback is the plan entitled for unknown price ids under PolicyFallback.
func (c *Catalog) Fallback() PlanType {
	return c.fallback
}

func (c *Catalog) IsBundle(t PlanType) bool {
	return c.plans[t].IsBundle()
}

// ComponentsOf lists the plan types made redundant by bundle t.
func (c *Catalog) ComponentsOf(t PlanType) []PlanType {
	return c.plans[t].Components
}

// BundlesContaining lists the bundle plans that make t redundant.
func (c *Catalog) BundlesContaining(t PlanType) []PlanType {
	var out []PlanType
	for _, b := range PaidPlanTypes {
		for _, comp := range c.plans[b].Components {
			if comp == t {
				out = append(out, b)
			}
		}
	}
	return out
}

// Features returns the sorted union of the feature sets of the given plans.
// With no plans it returns the free plan's features.
func (c *Catalog) Features(types ...PlanType) []string {
	if len(types) == 0 {
		types = []PlanType{PlanFree}
	}
	set := map[string]struct{}{}
	for _, t := range types {
		for _, f := range c.plans[t].Features {
			set[f] = struct{}{}
		}
	}
	return sortedKeys(set)
}

func unionFeatures(types ...PlanType) []string {
	set := map[string]struct{}{}
	for _, t := range types {
		for _, f := range baseFeatures[t] {
			set[f] = struct{}{}
		}
	}
	return sortedKeys(set)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
