package billing

import "context"

// CheckoutParams describes a subscription checkout session. Exactly one of
// CustomerID and CustomerEmail is expected to be set.
type CheckoutParams struct {
	TenantID      string
	PriceID       string
	CustomerID    string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
}

// Processor is the outbound surface of the payment processor. Implementations
// classify failures with the sentinel errors of this package.
type Processor interface {
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	ListActiveSubscriptions(ctx context.Context, customerID string) ([]Subscription, error)
	CancelSubscription(ctx context.Context, id string) (*Subscription, error)
	CancelAtPeriodEnd(ctx context.Context, id string) (*Subscription, error)

	PriceExists(ctx context.Context, priceID string) error

	GetCustomer(ctx context.Context, id string) (*Customer, error)
	FindCustomerByEmail(ctx context.Context, email string) (*Customer, error)

	CreateCheckoutSession(ctx context.Context, p CheckoutParams) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}
