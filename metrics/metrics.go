// Package metrics exposes Prometheus counters for engine outcomes.
// Everything registers on the default registry; the API serves it at
// /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DispenseSubmissions counts submitted dispense events by outcome
	// ("linked" or "pending").
	DispenseSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fuel_dispense_submissions_total",
		Help: "Dispense event submissions by outcome.",
	}, []string{"outcome"})

	// ManualLinks counts operator-driven link operations (the swept
	// events ride along and are not counted individually).
	ManualLinks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fuel_manual_links_total",
		Help: "Manual link operations.",
	})

	// Rejections counts dispense event rejections.
	Rejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fuel_event_rejections_total",
		Help: "Dispense event rejections.",
	})

	// Reentries counts rejected events put back through the pipeline.
	Reentries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fuel_event_reentries_total",
		Help: "Rejected dispense events re-entered.",
	})

	// ConflictRetries counts optimistic-concurrency retries.
	ConflictRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fuel_conflict_retries_total",
		Help: "Submissions retried after a concurrent modification.",
	})

	// ConfigLocks counts records locked for missing fleet configuration.
	ConfigLocks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fuel_config_locks_total",
		Help: "Journey records locked pending fleet configuration.",
	})

	// RecordsCreated counts new journey records.
	RecordsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fuel_records_created_total",
		Help: "Journey records created.",
	})

	// BalanceMismatches is the drifted-record count found by the last
	// balance audit.
	BalanceMismatches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fuel_balance_mismatches",
		Help: "Records whose stored balance drifted, per the last audit.",
	})
)
