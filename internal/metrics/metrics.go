// Package metrics exposes counters for the save and sync paths.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SavesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "permitport_saves_total",
		Help: "Project saves by outcome.",
	}, []string{"outcome"})

	SyncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "permitport_sync_runs_total",
		Help: "Partner sync runs by partner and outcome.",
	}, []string{"partner", "outcome"})

	BackendErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "permitport_backend_errors_total",
		Help: "Backend errors by HTTP status.",
	}, []string{"status"})

	SwallowedEventFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "permitport_case_event_failures_swallowed_total",
		Help: "Case-event creation failures downgraded to warnings.",
	})
)
