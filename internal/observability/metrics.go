package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storefront_billing"

// Metrics exposes Prometheus collectors for webhook handling, processor calls
// and the commission ledger. A nil *Metrics is a valid no-op.
type Metrics struct {
	webhookEvents   *prometheus.CounterVec
	webhookDuration *prometheus.HistogramVec
	processorRetry  *prometheus.CounterVec
	unknownPrices   *prometheus.CounterVec
	commissions     *prometheus.CounterVec
}

// MustNewMetrics registers the collectors with reg and panics on conflicts.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		webhookEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "webhook",
				Name:      "events_total",
				Help:      "Processor events received, by type and outcome.",
			},
			[]string{"type", "outcome"},
		),
		webhookDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "webhook",
				Name:      "handle_duration_seconds",
				Help:      "Time spent reconciling one processor event.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"type"},
		),
		processorRetry: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "processor",
				Name:      "retries_total",
				Help:      "Processor calls retried after rate limiting.",
			},
			[]string{"op"},
		),
		unknownPrices: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reconcile",
				Name:      "unknown_prices_total",
				Help:      "Subscriptions seen with a price missing from the catalog.",
			},
			[]string{"policy"},
		),
		commissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "commission",
				Name:      "records_total",
				Help:      "Commission ledger writes, by result.",
			},
			[]string{"result"},
		),
	}
	reg.MustRegister(m.webhookEvents, m.webhookDuration, m.processorRetry, m.unknownPrices, m.commissions)
	return m
}

func (m *Metrics) ObserveWebhook(eventType, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
	m.webhookDuration.WithLabelValues(eventType).Observe(d.Seconds())
}

func (m *Metrics) IncProcessorRetry(op string) {
	if m == nil {
		return
	}
	m.processorRetry.WithLabelValues(op).Inc()
}

func (m *Metrics) IncUnknownPrice(policy string) {
	if m == nil {
		return
	}
	m.unknownPrices.WithLabelValues(policy).Inc()
}

// IncCommission counts ledger outcomes: recorded, duplicate, skipped.
func (m *Metrics) IncCommission(result string) {
	if m == nil {
		return
	}
	m.commissions.WithLabelValues(result).Inc()
}
