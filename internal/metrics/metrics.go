// Package metrics exposes Prometheus counters for the position saga. They
// are registered on the default registry and served at /metrics by the
// diagnostics HTTP server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// SagaOutcomes counts completed open-position sagas by result
	// (active|rejected|verification_timeout|stop_failed|duplicate|cancelled|failed).
	SagaOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "futuresbot_saga_outcomes_total",
			Help: "Open-position sagas by final outcome",
		},
		[]string{"venue", "result"},
	)

	// StopPlacements counts protective-stop placement results
	// (created|already_exists|failed).
	StopPlacements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "futuresbot_stop_placements_total",
			Help: "Protective stop placements by result",
		},
		[]string{"venue", "result"},
	)

	// Rollbacks counts compensation attempts split by whether the position
	// was verified flat afterwards.
	Rollbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "futuresbot_rollbacks_total",
			Help: "Compensating rollbacks by verification result (verified|unverified|skipped)",
		},
		[]string{"venue", "result"},
	)

	// RecoveredPositions counts positions handled by startup recovery.
	RecoveredPositions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "futuresbot_recovered_positions_total",
			Help: "Positions handled by startup recovery, by action taken",
		},
		[]string{"action"},
	)
)

func init() {
	prometheus.MustRegister(SagaOutcomes, StopPlacements, Rollbacks, RecoveredPositions)
}
