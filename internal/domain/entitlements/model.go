package entitlements

import (
	"time"

	"storefront-billing/internal/domain/plans"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusCanceled Status = "canceled"
	StatusExpired  Status = "expired"
)

// SubscriptionRecord is the local entitlement row for one (tenant, plan type)
// pair. Rows are never deleted; they move to canceled or expired.
type SubscriptionRecord struct {
	ID       uint           `gorm:"primaryKey" json:"-"`
	TenantID uint           `gorm:"not null;uniqueIndex:idx_subscription_records_tenant_plan" json:"tenant_id"`
	PlanType plans.PlanType `gorm:"type:varchar(32);not null;uniqueIndex:idx_subscription_records_tenant_plan" json:"plan_type"`

	ExternalSubscriptionID string `gorm:"not null;index" json:"subscription_id"`
	ExternalPriceID        string `gorm:"not null" json:"price_id"`
	Status                 Status `gorm:"type:varchar(16);not null;index" json:"status"`

	CurrentPeriodStart time.Time `json:"current_period_start"`
	CurrentPeriodEnd   time.Time `json:"current_period_end"`
	CancelAtPeriodEnd  bool      `gorm:"not null;default:false" json:"cancel_at_period_end"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SubscriptionRecord) TableName() string { return "subscription_records" }

// Entitled reports whether the record grants access at t. Deferred
// cancellations keep access until the period end.
func (r SubscriptionRecord) Entitled(t time.Time) bool {
	return r.Status == StatusActive && t.Before(r.CurrentPeriodEnd)
}

// Entitlement is the read model served to feature gating.
type Entitlement struct {
	TenantID    uint                 `json:"tenant_id"`
	Plan        plans.PlanType       `json:"plan"`
	Plans       []plans.PlanType     `json:"plans"`
	Features    []string             `json:"features"`
	ActiveUntil *time.Time           `json:"active_until,omitempty"`
	Records     []SubscriptionRecord `json:"subscriptions"`
}

// Has reports whether the entitlement includes feature.
func (e Entitlement) Has(feature string) bool {
	for _, f := range e.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// Paid reports whether any paid plan is active.
func (e Entitlement) Paid() bool {
	return e.Plan != plans.PlanFree && e.Plan != ""
}
