package stripe

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	stripeapi "github.com/stripe/stripe-go/v75"

	"storefront-billing/internal/domain/billing"
)

// classify maps a stripe-go error onto the billing sentinels. notFound is the
// sentinel used when the requested object does not exist. Messages from the
// processor are kept so interactive callers can surface them.
func classify(err error, notFound error) error {
	if err == nil {
		return nil
	}

	var se *stripeapi.Error
	if !errors.As(err, &se) {
		return fmt.Errorf("%w: %v", billing.ErrProcessorUnavailable, err)
	}

	switch {
	case se.HTTPStatusCode == http.StatusTooManyRequests || se.Code == stripeapi.ErrorCodeRateLimit:
		return fmt.Errorf("%w: %s", billing.ErrProcessorRateLimited, se.Msg)
	case se.Code == stripeapi.ErrorCodeResourceMissing && notFound != nil:
		return fmt.Errorf("%w: %s", notFound, se.Msg)
	case se.HTTPStatusCode >= http.StatusInternalServerError || se.Type == stripeapi.ErrorTypeAPI:
		return fmt.Errorf("%w: %s", billing.ErrProcessorUnavailable, se.Msg)
	}
	return errors.New(se.Msg)
}

// classifyPortal additionally recognises a missing customer portal
// configuration, which the processor reports as an invalid request.
func classifyPortal(err error) error {
	var se *stripeapi.Error
	if errors.As(err, &se) && se.HTTPStatusCode == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(se.Msg), "configuration") {
		return fmt.Errorf("%w: %s", billing.ErrPortalNotConfigured, se.Msg)
	}
	return classify(err, billing.ErrCustomerNotFound)
}
