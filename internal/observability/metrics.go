package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus counters shared across the runtime.
var (
	// ToolDispatches counts tool executions by tool name and outcome.
	ToolDispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skilllite_tool_dispatches_total",
		Help: "Tool executions by name and outcome.",
	}, []string{"tool", "outcome"})

	// SandboxSpawns counts sandboxed process spawns by level.
	SandboxSpawns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skilllite_sandbox_spawns_total",
		Help: "Sandboxed process spawns by sandbox level.",
	}, []string{"level"})

	// AdmissionVerdicts counts admission outcomes by risk.
	AdmissionVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skilllite_admission_verdicts_total",
		Help: "Admission pipeline verdicts by risk classification.",
	}, []string{"risk"})

	// ModelCalls counts LLM completion requests by outcome.
	ModelCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skilllite_model_calls_total",
		Help: "LLM completion calls by outcome.",
	}, []string{"outcome"})
)
