// Package metrics defines the engine's metrics collector contract and its
// Prometheus implementation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector receives settlement engine measurements. Services accept the
// interface; a no-op implementation is substituted when metrics are disabled.
type Collector interface {
	RecordSettlement(outcome string)
	RecordPosting(ownerType string, amount float64)
	RecordBatchDuration(status string, duration time.Duration)
	RecordError(operation, errType string)
}

// NoopCollector is a no-op implementation of Collector.
type NoopCollector struct{}

func (NoopCollector) RecordSettlement(string)                   {}
func (NoopCollector) RecordPosting(string, float64)             {}
func (NoopCollector) RecordBatchDuration(string, time.Duration) {}
func (NoopCollector) RecordError(string, string)                {}

// PrometheusCollector exports engine metrics through a Prometheus registry.
type PrometheusCollector struct {
	settlements    *prometheus.CounterVec
	postingAmounts *prometheus.CounterVec
	batchDurations *prometheus.HistogramVec
	errors         *prometheus.CounterVec
}

// NewPrometheusCollector registers the engine's collectors on the given
// registerer (pass prometheus.DefaultRegisterer in production).
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)
	return &PrometheusCollector{
		settlements: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_outcomes_total",
			Help: "Settlement executor outcomes by result.",
		}, []string{"outcome"}),
		postingAmounts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_posting_amount_total",
			Help: "Net amounts posted to wallets by owner type.",
		}, []string{"owner_type"}),
		batchDurations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "settlement_batch_duration_seconds",
			Help:    "Wall time of batch processing runs by final status.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"status"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_errors_total",
			Help: "Errors by operation and type.",
		}, []string{"operation", "type"}),
	}
}

func (c *PrometheusCollector) RecordSettlement(outcome string) {
	c.settlements.WithLabelValues(outcome).Inc()
}

func (c *PrometheusCollector) RecordPosting(ownerType string, amount float64) {
	c.postingAmounts.WithLabelValues(ownerType).Add(amount)
}

func (c *PrometheusCollector) RecordBatchDuration(status string, duration time.Duration) {
	c.batchDurations.WithLabelValues(status).Observe(duration.Seconds())
}

func (c *PrometheusCollector) RecordError(operation, errType string) {
	c.errors.WithLabelValues(operation, errType).Inc()
}
