package plans

import "strings"

// PlanType is the internal plan identifier stored on subscription records.
type PlanType string

// Plan types (single source of truth)
const (
	PlanFree            PlanType = "free"
	PlanPro             PlanType = "pro"
	PlanProPlus         PlanType = "pro_plus"
	PlanVerified        PlanType = "verified"
	PlanProPlusVerified PlanType = "pro_plus_verified"
)

// PaidPlanTypes lists every plan type that is sold through the processor, in
// display order.
var PaidPlanTypes = []PlanType{PlanPro, PlanProPlus, PlanVerified, PlanProPlusVerified}

// bundleComponents is the redundancy policy: buying the key plan makes the
// listed component plans redundant.
var bundleComponents = map[PlanType][]PlanType{
	PlanProPlusVerified: {PlanProPlus, PlanVerified},
}

// ParsePlanType normalises a user or config supplied plan identifier.
func ParsePlanType(s string) (PlanType, bool) {
	t := PlanType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case PlanFree, PlanPro, PlanProPlus, PlanVerified, PlanProPlusVerified:
		return t, true
	}
	return "", false
}

// rank orders plan types for picking the "primary" plan of a tenant holding
// several at once.
func rank(t PlanType) int {
	switch t {
	case PlanProPlusVerified:
		return 4
	case PlanProPlus:
		return 3
	case PlanPro:
		return 2
	case PlanVerified:
		return 1
	default:
		return 0
	}
}

// Higher reports whether a outranks b.
func Higher(a, b PlanType) bool {
	return rank(a) > rank(b)
}

// UnknownPricePolicy decides what reconciliation does with a processor price
// id that is not in the catalog.
type UnknownPricePolicy string

const (
	// PolicyFallback entitles the catalog's fallback plan and logs loudly.
	PolicyFallback UnknownPricePolicy = "fallback"
	// PolicyReject acknowledges the event without touching entitlements.
	PolicyReject UnknownPricePolicy = "reject"
)

func ParseUnknownPricePolicy(s string) (UnknownPricePolicy, bool) {
	switch p := UnknownPricePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyFallback, PolicyReject:
		return p, true
	}
	return "", false
}
