// Package metrics exposes the Prometheus collectors of dispatchcost.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	// RateFetchesTotal counts rate provider requests by outcome.
	RateFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatchcost_rate_fetches_total",
			Help: "Exchange rate provider requests",
		},
		[]string{"outcome"},
	)

	// HydrationsTotal counts edit-mode record loads by outcome.
	HydrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatchcost_hydrations_total",
			Help: "Records loaded into a form for editing",
		},
		[]string{"outcome"},
	)

	// SubmissionsTotal counts submissions by mode (create/update) and outcome.
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatchcost_submissions_total",
			Help: "Dispatch item cost submissions",
		},
		[]string{"mode", "outcome"},
	)

	// AuditEntriesTotal counts audit entries by whether they were queued or dropped.
	AuditEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatchcost_audit_entries_total",
			Help: "Store mutations queued for the audit log",
		},
		[]string{"outcome"},
	)

	// ActiveSessions is the number of open form sessions held by the server.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatchcost_active_sessions",
			Help: "Open form sessions",
		},
	)
)

// Outcome maps an error to an outcome label.
func Outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}
