package stripe

import (
	"context"
	"fmt"

	stripeapi "github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/client"
	"go.uber.org/zap"

	"storefront-billing/internal/domain/billing"
)

// NewAPI builds a per-process stripe client. The library's own network
// retries are disabled; RetryingProcessor owns retry policy. baseURL is only
// set by tests.
func NewAPI(secretKey, baseURL string, log *zap.Logger) *client.API {
	backend := func(b stripeapi.SupportedBackend) stripeapi.Backend {
		cfg := &stripeapi.BackendConfig{
			MaxNetworkRetries: stripeapi.Int64(0),
			LeveledLogger:     log.Named("stripe-go").Sugar(),
		}
		if baseURL != "" {
			cfg.URL = stripeapi.String(baseURL)
		}
		return stripeapi.GetBackendWithConfig(b, cfg)
	}
	return client.New(secretKey, &stripeapi.Backends{
		API:     backend(stripeapi.APIBackend),
		Connect: backend(stripeapi.ConnectBackend),
		Uploads: backend(stripeapi.UploadsBackend),
	})
}

// Client implements billing.Processor on top of stripe-go.
type Client struct {
	api *client.API
	log *zap.Logger
}

func NewClient(api *client.API, log *zap.Logger) *Client {
	return &Client{api: api, log: log.Named("stripe")}
}

func (c *Client) GetSubscription(ctx context.Context, id string) (*billing.Subscription, error) {
	params := &stripeapi.SubscriptionParams{}
	params.Context = ctx
	params.AddExpand("customer")

	sub, err := c.api.Subscriptions.Get(id, params)
	if err != nil {
		return nil, classify(err, billing.ErrSubscriptionNotFound)
	}
	return toSubscription(sub), nil
}

func (c *Client) ListActiveSubscriptions(ctx context.Context, customerID string) ([]billing.Subscription, error) {
	params := &stripeapi.SubscriptionListParams{Customer: stripeapi.String(customerID)}
	params.Context = ctx

	var out []billing.Subscription
	it := c.api.Subscriptions.List(params)
	for it.Next() {
		s := toSubscription(it.Subscription())
		if s.Entitling() {
			out = append(out, *s)
		}
	}
	if err := it.Err(); err != nil {
		return nil, classify(err, billing.ErrCustomerNotFound)
	}
	return out, nil
}

func (c *Client) CancelSubscription(ctx context.Context, id string) (*billing.Subscription, error) {
	params := &stripeapi.SubscriptionCancelParams{}
	params.Context = ctx

	sub, err := c.api.Subscriptions.Cancel(id, params)
	if err != nil {
		return nil, classify(err, billing.ErrSubscriptionNotFound)
	}
	c.log.Info("subscription canceled", zap.String("subscription_id", id))
	return toSubscription(sub), nil
}

func (c *Client) CancelAtPeriodEnd(ctx context.Context, id string) (*billing.Subscription, error) {
	params := &stripeapi.SubscriptionParams{CancelAtPeriodEnd: stripeapi.Bool(true)}
	params.Context = ctx

	sub, err := c.api.Subscriptions.Update(id, params)
	if err != nil {
		return nil, classify(err, billing.ErrSubscriptionNotFound)
	}
	c.log.Info("subscription set to cancel at period end", zap.String("subscription_id", id))
	return toSubscription(sub), nil
}

// PriceExists treats archived prices as missing; checkout would reject them.
func (c *Client) PriceExists(ctx context.Context, priceID string) error {
	params := &stripeapi.PriceParams{}
	params.Context = ctx

	p, err := c.api.Prices.Get(priceID, params)
	if err != nil {
		return classify(err, billing.ErrPriceNotFound)
	}
	if !p.Active {
		return fmt.Errorf("%w: price %s is archived", billing.ErrPriceNotFound, priceID)
	}
	return nil
}

func (c *Client) GetCustomer(ctx context.Context, id string) (*billing.Customer, error) {
	params := &stripeapi.CustomerParams{}
	params.Context = ctx

	cus, err := c.api.Customers.Get(id, params)
	if err != nil {
		return nil, classify(err, billing.ErrCustomerNotFound)
	}
	if cus.Deleted {
		return nil, billing.ErrCustomerNotFound
	}
	return toCustomer(cus), nil
}

func (c *Client) FindCustomerByEmail(ctx context.Context, email string) (*billing.Customer, error) {
	params := &stripeapi.CustomerListParams{Email: stripeapi.String(email)}
	params.Context = ctx
	params.Limit = stripeapi.Int64(1)

	it := c.api.Customers.List(params)
	for it.Next() {
		if cus := it.Customer(); cus != nil && !cus.Deleted {
			return toCustomer(cus), nil
		}
	}
	if err := it.Err(); err != nil {
		return nil, classify(err, billing.ErrCustomerNotFound)
	}
	return nil, billing.ErrCustomerNotFound
}

func (c *Client) CreateCheckoutSession(ctx context.Context, p billing.CheckoutParams) (string, error) {
	params := &stripeapi.CheckoutSessionParams{
		SuccessURL: stripeapi.String(p.SuccessURL),
		CancelURL:  stripeapi.String(p.CancelURL),
		Mode:       stripeapi.String(string(stripeapi.CheckoutSessionModeSubscription)),
		LineItems: []*stripeapi.CheckoutSessionLineItemParams{
			{Price: stripeapi.String(p.PriceID), Quantity: stripeapi.Int64(1)},
		},
		ClientReferenceID: stripeapi.String(p.TenantID),
		SubscriptionData: &stripeapi.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{billing.MetadataTenantID: p.TenantID},
		},
	}
	params.Context = ctx
	params.AddMetadata(billing.MetadataTenantID, p.TenantID)
	if p.CustomerID != "" {
		params.Customer = stripeapi.String(p.CustomerID)
	} else if p.CustomerEmail != "" {
		params.CustomerEmail = stripeapi.String(p.CustomerEmail)
	}

	s, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return "", classify(err, billing.ErrPriceNotFound)
	}
	c.log.Info("checkout session created",
		zap.String("session_id", s.ID),
		zap.String("tenant_id", p.TenantID),
		zap.String("price_id", p.PriceID),
	)
	return s.URL, nil
}

func (c *Client) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripeapi.BillingPortalSessionParams{
		Customer:  stripeapi.String(customerID),
		ReturnURL: stripeapi.String(returnURL),
	}
	params.Context = ctx

	s, err := c.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", classifyPortal(err)
	}
	return s.URL, nil
}

var _ billing.Processor = (*Client)(nil)
