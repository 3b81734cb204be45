// Package billingtest provides an in-memory billing.Processor for tests.
package billingtest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"storefront-billing/internal/domain/billing"
)

// Call is one recorded processor invocation.
type Call struct {
	Method string
	Arg    string
}

// Processor is a scriptable billing.Processor. Errors set in Errs are returned
// by the method of the same name before any state change.
type Processor struct {
	mu sync.Mutex

	Subscriptions map[string]*billing.Subscription
	Customers     map[string]*billing.Customer
	Prices        map[string]bool
	Errs          map[string]error
	PortalErr     error

	// OnCancel runs before an immediate cancel is applied.
	OnCancel func(id string)

	Calls    []Call
	Sessions []billing.CheckoutParams
}

func NewProcessor() *Processor {
	return &Processor{
		Subscriptions: map[string]*billing.Subscription{},
		Customers:     map[string]*billing.Customer{},
		Prices:        map[string]bool{},
		Errs:          map[string]error{},
	}
}

func (p *Processor) AddSubscription(s billing.Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := s
	p.Subscriptions[s.ID] = &cp
}

func (p *Processor) AddCustomer(id, email string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Customers[id] = &billing.Customer{ID: id, Email: email}
}

func (p *Processor) AddPrice(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Prices[id] = true
}

// CallsTo returns the arguments of every call to method, in order.
func (p *Processor) CallsTo(method string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, c := range p.Calls {
		if c.Method == method {
			out = append(out, c.Arg)
		}
	}
	return out
}

// MethodOrder returns the recorded method names, in order.
func (p *Processor) MethodOrder() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.Calls))
	for _, c := range p.Calls {
		out = append(out, c.Method)
	}
	return out
}

func (p *Processor) record(method, arg string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, Call{Method: method, Arg: arg})
	return p.Errs[method]
}

func (p *Processor) GetSubscription(_ context.Context, id string) (*billing.Subscription, error) {
	if err := p.record("GetSubscription", id); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.Subscriptions[id]
	if !ok {
		return nil, billing.ErrSubscriptionNotFound
	}
	cp := *s
	return &cp, nil
}

func (p *Processor) ListActiveSubscriptions(_ context.Context, customerID string) ([]billing.Subscription, error) {
	if err := p.record("ListActiveSubscriptions", customerID); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []billing.Subscription
	for _, s := range p.Subscriptions {
		if s.CustomerID == customerID && s.Entitling() {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (p *Processor) CancelSubscription(_ context.Context, id string) (*billing.Subscription, error) {
	if err := p.record("CancelSubscription", id); err != nil {
		return nil, err
	}
	if p.OnCancel != nil {
		p.OnCancel(id)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.Subscriptions[id]
	if !ok {
		return nil, billing.ErrSubscriptionNotFound
	}
	s.Status = billing.StatusCanceled
	cp := *s
	return &cp, nil
}

func (p *Processor) CancelAtPeriodEnd(_ context.Context, id string) (*billing.Subscription, error) {
	if err := p.record("CancelAtPeriodEnd", id); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.Subscriptions[id]
	if !ok {
		return nil, billing.ErrSubscriptionNotFound
	}
	s.CancelAtPeriodEnd = true
	cp := *s
	return &cp, nil
}

func (p *Processor) PriceExists(_ context.Context, priceID string) error {
	if err := p.record("PriceExists", priceID); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.Prices[priceID] {
		return billing.ErrPriceNotFound
	}
	return nil
}

func (p *Processor) GetCustomer(_ context.Context, id string) (*billing.Customer, error) {
	if err := p.record("GetCustomer", id); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.Customers[id]
	if !ok {
		return nil, billing.ErrCustomerNotFound
	}
	cp := *c
	return &cp, nil
}

func (p *Processor) FindCustomerByEmail(_ context.Context, email string) (*billing.Customer, error) {
	if err := p.record("FindCustomerByEmail", email); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.Customers))
	for id := range p.Customers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if strings.EqualFold(p.Customers[id].Email, email) {
			cp := *p.Customers[id]
			return &cp, nil
		}
	}
	return nil, billing.ErrCustomerNotFound
}

func (p *Processor) CreateCheckoutSession(_ context.Context, params billing.CheckoutParams) (string, error) {
	if err := p.record("CreateCheckoutSession", params.PriceID); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Sessions = append(p.Sessions, params)
	return fmt.Sprintf("https://checkout.test/session/%d", len(p.Sessions)), nil
}

func (p *Processor) CreatePortalSession(_ context.Context, customerID, _ string) (string, error) {
	if err := p.record("CreatePortalSession", customerID); err != nil {
		return "", err
	}
	if p.PortalErr != nil {
		return "", p.PortalErr
	}
	return "https://portal.test/" + customerID, nil
}

var _ billing.Processor = (*Processor)(nil)
