package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		sandboxRunsTotal,
		sandboxDurationSeconds,
		criticVerdictsTotal,
		criticFindingsTotal,
	)
}

var (
	sandboxRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandbox_runs_total",
			Help: "Sandbox executions by terminal execution status.",
		},
		[]string{"status"},
	)

	sandboxDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sandbox_duration_seconds",
			Help:    "Wall-clock duration of sandbox executions.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	criticVerdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "critic_verdicts_total",
			Help: "Validation verdicts (passed/failed).",
		},
		[]string{"verdict"},
	)

	criticFindingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "critic_findings_total",
			Help: "Validation findings by tool and severity.",
		},
		[]string{"tool", "severity"},
	)
)

func ObserveSandboxRun(status string, seconds float64) {
	sandboxRunsTotal.WithLabelValues(norm(status)).Inc()
	sandboxDurationSeconds.Observe(seconds)
}

func IncCriticVerdict(passed bool) {
	verdict := "passed"
	if !passed {
		verdict = "failed"
	}
	criticVerdictsTotal.WithLabelValues(verdict).Inc()
}

func IncCriticFinding(tool, severity string) {
	criticFindingsTotal.WithLabelValues(norm(tool), norm(severity)).Inc()
}
