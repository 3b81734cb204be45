// Package checkout starts processor-hosted checkout and billing portal
// sessions for a tenant.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"storefront-billing/config"
	"storefront-billing/internal/domain/billing"
	"storefront-billing/internal/domain/plans"
	"storefront-billing/internal/tenant"
)

type Params struct {
	fx.In

	Processor billing.Processor
	Tenants   *tenant.Directory
	Catalog   *plans.Catalog
	Config    config.Config
	Log       *zap.Logger
}

type Gateway struct {
	processor billing.Processor
	tenants   *tenant.Directory
	catalog   *plans.Catalog
	appURL    string
	log       *zap.Logger
}

func NewGateway(p Params) *Gateway {
	return &Gateway{
		processor: p.Processor,
		tenants:   p.Tenants,
		catalog:   p.Catalog,
		appURL:    strings.TrimRight(p.Config.AppURL, "/"),
		log:       p.Log.Named("billing.checkout"),
	}
}

// CreateCheckout returns the URL of a subscription checkout session for
// priceID. The price must be in the catalog and live at the processor before
// a session is created.
func (g *Gateway) CreateCheckout(ctx context.Context, tenantID uint, priceID string) (string, error) {
	priceID = strings.TrimSpace(priceID)
	planType, ok := g.catalog.ResolvePrice(priceID)
	if !ok {
		return "", fmt.Errorf("%w: %s", billing.ErrUnknownPrice, priceID)
	}

	t, err := g.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return "", err
	}

	if err := g.processor.PriceExists(ctx, priceID); err != nil {
		return "", err
	}

	params := billing.CheckoutParams{
		TenantID:   strconv.FormatUint(uint64(t.ID), 10),
		PriceID:    priceID,
		SuccessURL: g.appURL + "/account?checkout=success",
		CancelURL:  g.appURL + "/account?canceled=1",
	}
	customerID, err := g.findCustomer(ctx, t.CustomerID(), t.Email)
	switch {
	case errors.Is(err, billing.ErrNoCustomer):
		params.CustomerEmail = t.Email
	case err != nil:
		return "", err
	default:
		params.CustomerID = customerID
	}

	url, err := g.processor.CreateCheckoutSession(ctx, params)
	if err != nil {
		return "", err
	}
	g.log.Info("checkout started",
		zap.Uint("tenant_id", t.ID),
		zap.String("plan_type", string(planType)),
		zap.Bool("existing_customer", params.CustomerID != ""),
	)
	return url, nil
}

// OpenPortal returns the URL of a billing portal session for the tenant's
// processor customer.
func (g *Gateway) OpenPortal(ctx context.Context, tenantID uint) (string, error) {
	t, err := g.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return "", err
	}
	customerID, err := g.findCustomer(ctx, t.CustomerID(), t.Email)
	if err != nil {
		return "", err
	}
	if err := g.tenants.AttachCustomer(ctx, t.ID, customerID); err != nil {
		return "", err
	}
	return g.processor.CreatePortalSession(ctx, customerID, g.appURL+"/account")
}

func (g *Gateway) findCustomer(ctx context.Context, attached, email string) (string, error) {
	if attached != "" {
		return attached, nil
	}
	cus, err := g.processor.FindCustomerByEmail(ctx, email)
	if errors.Is(err, billing.ErrCustomerNotFound) {
		return "", billing.ErrNoCustomer
	}
	if err != nil {
		return "", err
	}
	return cus.ID, nil
}
