package stripe

import (
	"context"
	"errors"
	"fmt"
	"testing"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storefront-billing/internal/domain/billing"
	"storefront-billing/internal/domain/billing/billingtest"
	"storefront-billing/internal/observability"
)

// flakyProcessor fails GetSubscription with a rate limit a fixed number of
// times before delegating.
type flakyProcessor struct {
	billing.Processor
	failures int
	err      error
	calls    int
}

func (f *flakyProcessor) GetSubscription(ctx context.Context, id string) (*billing.Subscription, error) {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, f.err
	}
	return f.Processor.GetSubscription(ctx, id)
}

func zeroBackoff(max uint64) func() backoff.BackOff {
	return func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, max)
	}
}

func newFake() *billingtest.Processor {
	fake := billingtest.NewProcessor()
	fake.AddSubscription(billing.Subscription{ID: "sub_1", CustomerID: "cus_1", Status: billing.StatusActive})
	return fake
}

func TestRetryingProcessor_RetriesRateLimit(t *testing.T) {
	flaky := &flakyProcessor{
		Processor: newFake(),
		failures:  2,
		err:       fmt.Errorf("%w: too many requests", billing.ErrProcessorRateLimited),
	}
	p := NewRetryingProcessor(flaky, 0, zeroBackoff(3), observability.MustNewMetrics(prometheus.NewRegistry()), zap.NewNop())

	sub, err := p.GetSubscription(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "sub_1", sub.ID)
	assert.Equal(t, 3, flaky.calls)
}

func TestRetryingProcessor_GivesUpAfterMaxRetries(t *testing.T) {
	flaky := &flakyProcessor{
		Processor: newFake(),
		failures:  10,
		err:       fmt.Errorf("%w: too many requests", billing.ErrProcessorRateLimited),
	}
	p := NewRetryingProcessor(flaky, 0, zeroBackoff(2), nil, zap.NewNop())

	_, err := p.GetSubscription(context.Background(), "sub_1")
	assert.ErrorIs(t, err, billing.ErrProcessorRateLimited)
	assert.Equal(t, 3, flaky.calls)
}

func TestRetryingProcessor_DoesNotRetryOtherErrors(t *testing.T) {
	flaky := &flakyProcessor{
		Processor: newFake(),
		failures:  1,
		err:       errors.New("card_declined"),
	}
	p := NewRetryingProcessor(flaky, 0, zeroBackoff(5), nil, zap.NewNop())

	_, err := p.GetSubscription(context.Background(), "sub_1")
	assert.EqualError(t, err, "card_declined")
	assert.Equal(t, 1, flaky.calls)
}

func TestRetryingProcessor_PassesThroughSentinels(t *testing.T) {
	fake := newFake()
	fake.Errs["PriceExists"] = billing.ErrPriceNotFound
	p := NewRetryingProcessor(fake, 0, zeroBackoff(5), nil, zap.NewNop())

	err := p.PriceExists(context.Background(), "price_missing")
	assert.ErrorIs(t, err, billing.ErrPriceNotFound)
	assert.Len(t, fake.CallsTo("PriceExists"), 1)
}

func TestRetryingProcessor_StopsOnCanceledContext(t *testing.T) {
	flaky := &flakyProcessor{
		Processor: newFake(),
		failures:  10,
		err:       billing.ErrProcessorRateLimited,
	}
	p := NewRetryingProcessor(flaky, 0, zeroBackoff(100), nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.GetSubscription(ctx, "sub_1")
	assert.Error(t, err)
	assert.Less(t, flaky.calls, 10)
}
