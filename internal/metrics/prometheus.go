package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements Collector for Prometheus.
type PrometheusCollector struct {
	files          *prometheus.CounterVec
	fileLatency    *prometheus.HistogramVec
	lines          *prometheus.CounterVec
	transactions   *prometheus.CounterVec
	reconciliation *prometheus.CounterVec
}

// NewPrometheusCollector creates the collectors under namespace. Call
// Register before use.
func NewPrometheusCollector(namespace string) *PrometheusCollector {
	return &PrometheusCollector{
		files: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_total",
				Help:      "Statements processed per issuer and outcome",
			},
			[]string{"issuer", "status"},
		),
		fileLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "file_duration_seconds",
				Help:      "Time spent parsing and categorizing one statement",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
			},
			[]string{"issuer"},
		),
		lines: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lines_total",
				Help:      "Statement lines seen per issuer and classification",
			},
			[]string{"issuer", "result"},
		),
		transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_total",
				Help:      "Transactions emitted per issuer",
			},
			[]string{"issuer"},
		),
		reconciliation: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconciliations_total",
				Help:      "Summary reconciliation outcomes per issuer",
			},
			[]string{"issuer", "matched"},
		),
	}
}

// Register registers all metrics with the given registerer.
func (pc *PrometheusCollector) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		pc.files,
		pc.fileLatency,
		pc.lines,
		pc.transactions,
		pc.reconciliation,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (pc *PrometheusCollector) RecordFile(issuer, status string, duration time.Duration) {
	pc.files.WithLabelValues(issuer, status).Inc()
	pc.fileLatency.WithLabelValues(issuer).Observe(duration.Seconds())
}

func (pc *PrometheusCollector) RecordLines(issuer, result string, n int) {
	if n <= 0 {
		return
	}
	pc.lines.WithLabelValues(issuer, result).Add(float64(n))
}

func (pc *PrometheusCollector) RecordTransactions(issuer string, n int) {
	if n <= 0 {
		return
	}
	pc.transactions.WithLabelValues(issuer).Add(float64(n))
}

func (pc *PrometheusCollector) RecordReconciliation(issuer string, matched bool) {
	pc.reconciliation.WithLabelValues(issuer, strconv.FormatBool(matched)).Inc()
}
