// Package metrics records per-file and per-line extraction diagnostics.
package metrics

import "time"

// Collector receives pipeline events. Implementations must be safe for
// concurrent use because files are processed in parallel.
type Collector interface {
	// RecordFile is called once per document with its outcome
	// ("ok", "empty" or "error").
	RecordFile(issuer, status string, duration time.Duration)
	// RecordLines adds n lines with the given classification result.
	RecordLines(issuer, result string, n int)
	RecordTransactions(issuer string, n int)
	RecordReconciliation(issuer string, matched bool)
}

// File statuses.
const (
	StatusOK    = "ok"
	StatusEmpty = "empty"
	StatusError = "error"
)

// NoOpCollector discards everything. It is the default when metrics are
// not needed.
type NoOpCollector struct{}

func (NoOpCollector) RecordFile(issuer, status string, duration time.Duration) {}

func (NoOpCollector) RecordLines(issuer, result string, n int) {}

func (NoOpCollector) RecordTransactions(issuer string, n int) {}

func (NoOpCollector) RecordReconciliation(issuer string, matched bool) {}
