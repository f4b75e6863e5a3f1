package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	toolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tableagent_tool_calls_total",
			Help: "Total number of tool invocations by tool and outcome.",
		},
		[]string{"tool", "outcome"},
	)
	toolCallDurationMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tableagent_tool_call_duration_ms",
			Help:    "Tool handler latency in milliseconds.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
		[]string{"tool"},
	)
	toolVetoesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tableagent_tool_vetoes_total",
			Help: "Total number of tool calls vetoed by a call budget.",
		},
		[]string{"tool"},
	)
	queryDurationMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tableagent_query_duration_ms",
			Help:    "Query engine execution latency in milliseconds.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		},
		[]string{"outcome"},
	)
	datasetRows = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tableagent_dataset_rows",
			Help: "Row count of the loaded dataset.",
		},
	)
	datasetColumns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tableagent_dataset_columns",
			Help: "Column count of the loaded dataset.",
		},
	)
	agentRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tableagent_agent_runs_total",
			Help: "Total number of agent runs by outcome.",
		},
		[]string{"outcome"},
	)
	agentRunDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tableagent_agent_run_duration_seconds",
			Help:    "End-to-end agent run latency in seconds.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
	)
)

func init() {
	prometheus.MustRegister(
		toolCallsTotal,
		toolCallDurationMs,
		toolVetoesTotal,
		queryDurationMs,
		datasetRows,
		datasetColumns,
		agentRunsTotal,
		agentRunDurationSeconds,
	)
}

func ObserveToolCall(tool, outcome string, elapsed time.Duration) {
	toolCallsTotal.WithLabelValues(tool, outcome).Inc()
	toolCallDurationMs.WithLabelValues(tool).Observe(float64(elapsed.Milliseconds()))
}

func IncrementToolVeto(tool string) {
	toolVetoesTotal.WithLabelValues(tool).Inc()
	toolCallsTotal.WithLabelValues(tool, "vetoed").Inc()
}

func ObserveQuery(outcome string, elapsed time.Duration) {
	queryDurationMs.WithLabelValues(outcome).Observe(float64(elapsed.Milliseconds()))
}

func SetDatasetShape(rows, columns int) {
	if rows < 0 {
		rows = 0
	}
	if columns < 0 {
		columns = 0
	}
	datasetRows.Set(float64(rows))
	datasetColumns.Set(float64(columns))
}

func ObserveAgentRun(outcome string, elapsed time.Duration) {
	agentRunsTotal.WithLabelValues(outcome).Inc()
	agentRunDurationSeconds.Observe(elapsed.Seconds())
}
