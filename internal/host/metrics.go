package host

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type hostMetrics struct {
	transactions *prometheus.CounterVec
	refused      *prometheus.CounterVec
	ledger       prometheus.Gauge
	records      prometheus.Gauge
	queueDepth   prometheus.Gauge
	applySeconds prometheus.Histogram
	swept        prometheus.Counter
}

// init registers with promRegistry. A nil registry still yields working,
// unregistered collectors.
func (m *hostMetrics) init(promRegistry prometheus.Registerer) {
	factory := promauto.With(promRegistry)
	m.transactions = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "vidproof_transactions_total",
		Help: "logged transactions by outcome",
	}, []string{"outcome"})
	m.refused = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "vidproof_transactions_refused_total",
		Help: "transactions refused before logging, by reason",
	}, []string{"reason"})
	m.ledger = factory.NewGauge(prometheus.GaugeOpts{
		Name: "vidproof_ledger_sequence",
		Help: "last assigned ledger sequence",
	})
	m.records = factory.NewGauge(prometheus.GaugeOpts{
		Name: "vidproof_records",
		Help: "verification counter value",
	})
	m.queueDepth = factory.NewGauge(prometheus.GaugeOpts{
		Name: "vidproof_queue_depth",
		Help: "transactions waiting for the writer",
	})
	m.applySeconds = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "vidproof_apply_seconds",
		Help:    "time to apply, log and commit one transaction",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
	})
	m.swept = factory.NewCounter(prometheus.CounterOpts{
		Name: "vidproof_swept_entries_total",
		Help: "expired state entries reclaimed",
	})
}
