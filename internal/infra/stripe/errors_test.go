package stripe

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	stripeapi "github.com/stripe/stripe-go/v75"

	"storefront-billing/internal/domain/billing"
)

func TestClassify(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, classify(nil, nil))
	})

	t.Run("rate limit by status", func(t *testing.T) {
		err := classify(&stripeapi.Error{HTTPStatusCode: http.StatusTooManyRequests, Msg: "slow down"}, nil)
		assert.ErrorIs(t, err, billing.ErrProcessorRateLimited)
	})

	t.Run("rate limit by code", func(t *testing.T) {
		err := classify(&stripeapi.Error{HTTPStatusCode: http.StatusBadRequest, Code: stripeapi.ErrorCodeRateLimit}, nil)
		assert.ErrorIs(t, err, billing.ErrProcessorRateLimited)
	})

	t.Run("missing resource", func(t *testing.T) {
		err := classify(&stripeapi.Error{
			HTTPStatusCode: http.StatusNotFound,
			Code:           stripeapi.ErrorCodeResourceMissing,
			Msg:            "No such price: 'price_x'",
		}, billing.ErrPriceNotFound)
		assert.ErrorIs(t, err, billing.ErrPriceNotFound)
		assert.Contains(t, err.Error(), "No such price")
	})

	t.Run("server side", func(t *testing.T) {
		err := classify(&stripeapi.Error{HTTPStatusCode: http.StatusBadGateway, Type: stripeapi.ErrorTypeAPI}, nil)
		assert.ErrorIs(t, err, billing.ErrProcessorUnavailable)
	})

	t.Run("transport failure", func(t *testing.T) {
		err := classify(errors.New("dial tcp: i/o timeout"), nil)
		assert.ErrorIs(t, err, billing.ErrProcessorUnavailable)
	})

	t.Run("other processor errors keep the message", func(t *testing.T) {
		err := classify(&stripeapi.Error{HTTPStatusCode: http.StatusBadRequest, Msg: "This price is archived"}, nil)
		assert.EqualError(t, err, "This price is archived")
		assert.NotErrorIs(t, err, billing.ErrProcessorUnavailable)
	})
}

func TestClassifyPortal(t *testing.T) {
	err := classifyPortal(&stripeapi.Error{
		HTTPStatusCode: http.StatusBadRequest,
		Msg:            "No configuration provided and your test mode default configuration has not been created.",
	})
	assert.ErrorIs(t, err, billing.ErrPortalNotConfigured)

	err = classifyPortal(&stripeapi.Error{HTTPStatusCode: http.StatusNotFound, Code: stripeapi.ErrorCodeResourceMissing})
	assert.ErrorIs(t, err, billing.ErrCustomerNotFound)
}
