package affiliates

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrAffiliateNotFound = errors.New("affiliate_not_found")

type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

type Affiliate struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	Name           string          `json:"name"`
	Email          string          `gorm:"not null;uniqueIndex:idx_affiliates_email" json:"email"`
	CommissionRate decimal.Decimal `gorm:"type:numeric(6,4);not null" json:"commission_rate"`
	Status         Status          `gorm:"type:varchar(16);not null;default:'active'" json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (Affiliate) TableName() string { return "affiliates" }

// Referral links a tenant to the affiliate it signed up through. A tenant has
// at most one referrer.
type Referral struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	AffiliateID      uint       `gorm:"not null;index" json:"affiliate_id"`
	ReferredTenantID uint       `gorm:"not null;uniqueIndex:idx_referrals_referred_tenant" json:"referred_tenant_id"`
	FirstPurchaseAt  *time.Time `json:"first_purchase_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func (Referral) TableName() string { return "referrals" }

type CommissionStatus string

const (
	CommissionPending CommissionStatus = "pending"
	CommissionPaid    CommissionStatus = "paid"
)

// Commission is one affiliate payout line. The composite unique index is the
// idempotency key for redelivered payment events.
type Commission struct {
	ID                     uint      `gorm:"primaryKey" json:"id"`
	AffiliateID            uint      `gorm:"not null;uniqueIndex:idx_commissions_idempotency" json:"affiliate_id"`
	ReferredTenantID       uint      `gorm:"not null;uniqueIndex:idx_commissions_idempotency" json:"referred_tenant_id"`
	ExternalSubscriptionID string    `gorm:"not null;uniqueIndex:idx_commissions_idempotency" json:"subscription_id"`
	PeriodStart            time.Time `gorm:"not null;uniqueIndex:idx_commissions_idempotency" json:"period_start"`
	PeriodEnd              time.Time `gorm:"not null" json:"period_end"`

	Amount           int64            `gorm:"not null" json:"amount"`
	CommissionAmount int64            `gorm:"not null" json:"commission_amount"`
	Status           CommissionStatus `gorm:"type:varchar(16);not null;index" json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Commission) TableName() string { return "commissions" }

// CommissionInput is what reconciliation hands the ledger after a confirmed
// successful payment. Amount is in the smallest currency unit.
type CommissionInput struct {
	TenantID       uint
	Amount         int64
	PeriodStart    time.Time
	PeriodEnd      time.Time
	SubscriptionID string
}

// Totals aggregates an affiliate's ledger for dashboards.
type Totals struct {
	AffiliateID uint  `json:"affiliate_id"`
	Pending     int64 `json:"pending"`
	Paid        int64 `json:"paid"`
	Count       int64 `json:"count"`
}
