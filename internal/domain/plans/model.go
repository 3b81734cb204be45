package plans

// Plan is an immutable catalog entry. Plans are built once from configuration
// and never written back.
type Plan struct {
	ID              PlanType   `json:"id"`
	ExternalPriceID string     `json:"price_id,omitempty"`
	DisplayName     string     `json:"name"`
	Features        []string   `json:"features"`
	Components      []PlanType `json:"components,omitempty"`
}

// IsBundle reports whether the plan subsumes other plans.
func (p Plan) IsBundle() bool {
	return len(p.Components) > 0
}
