package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	// QuestionsTotal counts answered questions by category and outcome.
	QuestionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdata_questions_total",
			Help: "Total number of answered questions.",
		},
		[]string{"category", "status"},
	)

	// RepairAttemptsTotal counts repair loop iterations by sub-path.
	RepairAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdata_repair_attempts_total",
			Help: "Total number of query repair attempts.",
		},
		[]string{"path"},
	)

	// LLMTokensTotal counts token usage by direction.
	LLMTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askdata_llm_tokens_total",
			Help: "Total LLM tokens consumed.",
		},
		[]string{"direction"},
	)

	// PhaseDurationSeconds observes latency per pipeline phase.
	PhaseDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askdata_phase_duration_seconds",
			Help:    "Latency per pipeline phase.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase"},
	)
)

func init() {
	prometheus.MustRegister(
		QuestionsTotal,
		RepairAttemptsTotal,
		LLMTokensTotal,
		PhaseDurationSeconds,
	)
}
