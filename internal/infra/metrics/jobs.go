package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		jobsTerminalTotal,
		jobsSubmittedTotal,
		stageDurationSeconds,
		stageClaimsTotal,
		codegenAttempts,
	)
}

var (
	jobsSubmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_jobs_submitted_total",
			Help: "Total number of jobs accepted for processing.",
		},
	)

	jobsTerminalTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_jobs_terminal_total",
			Help: "Jobs reaching a terminal state, labeled by status and error kind.",
		},
		[]string{"status", "kind"}, // kind empty for completed
	)

	stageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Wall-clock duration of one stage execution.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage", "outcome"},
	)

	stageClaimsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stage_claims_total",
			Help: "Stage claim attempts by result (won/lost).",
		},
		[]string{"result"},
	)

	codegenAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_codegen_attempts",
			Help:    "Code generation attempts consumed per job leaving the loop.",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)
)

func IncJobSubmitted() { jobsSubmittedTotal.Inc() }

func IncJobTerminal(status, kind string) {
	jobsTerminalTotal.WithLabelValues(norm(status), norm(kind)).Inc()
}

func ObserveStage(stage, outcome string, seconds float64) {
	stageDurationSeconds.WithLabelValues(norm(stage), norm(outcome)).Observe(seconds)
}

func IncClaim(won bool) {
	result := "won"
	if !won {
		result = "lost"
	}
	stageClaimsTotal.WithLabelValues(result).Inc()
}

func ObserveCodegenAttempts(n int) { codegenAttempts.Observe(float64(n)) }
