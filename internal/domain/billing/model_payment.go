package billing

import "time"

const (
	PaymentPaid = "paid"
)

// Payment is one settled invoice as shown in the tenant's payment history.
// The processor invoice id is unique, so redelivered payment events update
// the same row.
type Payment struct {
	ID                     uint      `gorm:"primaryKey" json:"id"`
	TenantID               uint      `gorm:"not null;index" json:"tenant_id"`
	ExternalInvoiceID      string    `gorm:"size:255;not null;uniqueIndex:idx_payments_invoice" json:"invoice_id"`
	ExternalSubscriptionID string    `gorm:"size:255;not null;index" json:"subscription_id"`
	PlanType               string    `gorm:"size:32" json:"plan_type,omitempty"`
	Amount                 int64     `gorm:"not null" json:"amount"`
	Currency               string    `gorm:"size:8" json:"currency"`
	Status                 string    `gorm:"size:16;not null" json:"status"`
	PeriodStart            time.Time `json:"period_start"`
	PeriodEnd              time.Time `json:"period_end"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }
