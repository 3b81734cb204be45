package stripe

import (
	"context"
	"errors"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"storefront-billing/internal/domain/billing"
	"storefront-billing/internal/observability"
)

// RetryingProcessor wraps a processor and retries calls the processor
// rejected for rate limiting. Every other failure is returned immediately.
type RetryingProcessor struct {
	delegate     billing.Processor
	buildBackoff func() backoff.BackOff
	metrics      *observability.Metrics
	log          *zap.Logger
}

// NewRetryingProcessor retries up to maxRetries times with exponential
// backoff. A nil factory uses that default.
func NewRetryingProcessor(delegate billing.Processor, maxRetries uint64, factory func() backoff.BackOff, metrics *observability.Metrics, log *zap.Logger) *RetryingProcessor {
	if factory == nil {
		factory = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 8 * time.Second
			b.MaxElapsedTime = 30 * time.Second
			return backoff.WithMaxRetries(b, maxRetries)
		}
	}
	return &RetryingProcessor{
		delegate:     delegate,
		buildBackoff: factory,
		metrics:      metrics,
		log:          log.Named("stripe.retry"),
	}
}

func retry[T any](ctx context.Context, p *RetryingProcessor, op string, fn func() (T, error)) (T, error) {
	b := backoff.WithContext(p.buildBackoff(), ctx)
	return backoff.RetryNotifyWithData(func() (T, error) {
		v, err := fn()
		if err != nil && !errors.Is(err, billing.ErrProcessorRateLimited) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, b, func(err error, wait time.Duration) {
		p.metrics.IncProcessorRetry(op)
		p.log.Warn("processor rate limited, retrying",
			zap.String("op", op),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
}

func (p *RetryingProcessor) GetSubscription(ctx context.Context, id string) (*billing.Subscription, error) {
	return retry(ctx, p, "GetSubscription", func() (*billing.Subscription, error) {
		return p.delegate.GetSubscription(ctx, id)
	})
}

func (p *RetryingProcessor) ListActiveSubscriptions(ctx context.Context, customerID string) ([]billing.Subscription, error) {
	return retry(ctx, p, "ListActiveSubscriptions", func() ([]billing.Subscription, error) {
		return p.delegate.ListActiveSubscriptions(ctx, customerID)
	})
}

func (p *RetryingProcessor) CancelSubscription(ctx context.Context, id string) (*billing.Subscription, error) {
	return retry(ctx, p, "CancelSubscription", func() (*billing.Subscription, error) {
		return p.delegate.CancelSubscription(ctx, id)
	})
}

func (p *RetryingProcessor) CancelAtPeriodEnd(ctx context.Context, id string) (*billing.Subscription, error) {
	return retry(ctx, p, "CancelAtPeriodEnd", func() (*billing.Subscription, error) {
		return p.delegate.CancelAtPeriodEnd(ctx, id)
	})
}

func (p *RetryingProcessor) PriceExists(ctx context.Context, priceID string) error {
	_, err := retry(ctx, p, "PriceExists", func() (struct{}, error) {
		return struct{}{}, p.delegate.PriceExists(ctx, priceID)
	})
	return err
}

func (p *RetryingProcessor) GetCustomer(ctx context.Context, id string) (*billing.Customer, error) {
	return retry(ctx, p, "GetCustomer", func() (*billing.Customer, error) {
		return p.delegate.GetCustomer(ctx, id)
	})
}

func (p *RetryingProcessor) FindCustomerByEmail(ctx context.Context, email string) (*billing.Customer, error) {
	return retry(ctx, p, "FindCustomerByEmail", func() (*billing.Customer, error) {
		return p.delegate.FindCustomerByEmail(ctx, email)
	})
}

// CreateCheckoutSession is not retried: a rate-limited create may still have
// produced a session, and the user can simply click again.
func (p *RetryingProcessor) CreateCheckoutSession(ctx context.Context, params billing.CheckoutParams) (string, error) {
	return p.delegate.CreateCheckoutSession(ctx, params)
}

func (p *RetryingProcessor) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	return retry(ctx, p, "CreatePortalSession", func() (string, error) {
		return p.delegate.CreatePortalSession(ctx, customerID, returnURL)
	})
}

var _ billing.Processor = (*RetryingProcessor)(nil)
