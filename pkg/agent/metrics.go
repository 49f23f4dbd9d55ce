package agent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run outcomes.
const (
	outcomeSuccess      = "success"
	outcomeCancelled    = "cancelled"
	outcomeModelError   = "model_error"
	outcomeToolError    = "tool_error"
	outcomeToolNotFound = "tool_not_found"
	outcomeBadArguments = "bad_arguments"
	outcomeMaxRounds    = "max_rounds"
)

var (
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcpagent_runs_total",
			Help: "Total orchestration runs by outcome",
		},
		[]string{"outcome"},
	)

	roundsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mcpagent_rounds_total",
		Help: "Total model rounds across all runs",
	})

	runRounds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mcpagent_run_rounds",
		Help:    "Model rounds per run",
		Buckets: []float64{1, 2, 3, 5, 8, 13, 25},
	})
)
