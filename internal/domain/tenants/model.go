package tenants

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("tenant_not_found")

// Tenant is a store-owner account. The account itself is managed by the
// onboarding collaborator; billing only reads it and attaches the processor
// customer id.
type Tenant struct {
	ID    uint `gorm:"primaryKey"`
	Name  string
	Email string `gorm:"not null;uniqueIndex:idx_tenants_email"`
	Role  string

	StripeCustomerID *string `gorm:"column:stripe_customer_id;uniqueIndex:idx_tenants_stripe_customer_id"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Tenant) TableName() string { return "tenants" }

// CustomerID returns the attached processor customer id, or "".
func (t *Tenant) CustomerID() string {
	if t == nil || t.StripeCustomerID == nil {
		return ""
	}
	return *t.StripeCustomerID
}
