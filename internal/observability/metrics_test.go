package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-billing/config"
)

func TestMetricsCount(t *testing.T) {
	m := MustNewMetrics(prometheus.NewRegistry())

	m.ObserveWebhook("invoice.payment_succeeded", "received", 10*time.Millisecond)
	m.ObserveWebhook("invoice.payment_succeeded", "received", 5*time.Millisecond)
	m.IncProcessorRetry("GetSubscription")
	m.IncUnknownPrice("fallback")
	m.IncCommission("duplicate")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.webhookEvents.WithLabelValues("invoice.payment_succeeded", "received")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.processorRetry.WithLabelValues("GetSubscription")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.unknownPrices.WithLabelValues("fallback")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commissions.WithLabelValues("duplicate")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveWebhook("x", "ignored", time.Second)
		m.IncProcessorRetry("x")
		m.IncUnknownPrice("reject")
		m.IncCommission("recorded")
	})
}

func TestNewLogger(t *testing.T) {
	log, err := NewLogger(config.Config{LogLevel: "debug", AppEnv: "development"})
	require.NoError(t, err)
	assert.NotNil(t, log)

	_, err = NewLogger(config.Config{LogLevel: "loud"})
	assert.Error(t, err)
}
