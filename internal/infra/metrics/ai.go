package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		inferenceCallsTotal,
		inferenceLatencyMs,
		inferencePromptBlocks,
	)
}

var (
	inferenceCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inference_calls_total",
			Help: "Inference calls per role and outcome (ok/unavailable/invalid/timeout).",
		},
		[]string{"role", "outcome"},
	)

	inferenceLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inference_latency_ms",
			Help:    "Inference call latency distribution in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		},
		[]string{"role", "success"},
	)

	inferencePromptBlocks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inference_prompt_blocks_total",
			Help: "Prompts rejected by the pre-send token budget, per role.",
		},
		[]string{"role"},
	)
)

func IncInference(role, outcome string) {
	inferenceCallsTotal.WithLabelValues(norm(role), norm(outcome)).Inc()
}

func ObserveInferenceLatency(role string, latencyMs int, success bool) {
	inferenceLatencyMs.WithLabelValues(norm(role), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}

func PromptBlocked(role string) {
	inferencePromptBlocks.WithLabelValues(norm(role)).Inc()
}
