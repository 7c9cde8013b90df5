package metrics

import "github.com/prometheus/client_golang/prometheus"

// Response pipeline Prometheus metrics.
var (
	PipelineRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "contextd",
			Name:      "pipeline_requests_total",
			Help:      "Total pipeline requests by outcome",
		},
		[]string{"outcome"}, // "success" / "fallback" / "error" / "timeout"
	)

	PipelineDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "contextd",
			Name:      "pipeline_duration_seconds",
			Help:      "End-to-end pipeline duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	PipelineDedupJoinsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "contextd",
			Name:      "pipeline_dedup_joins_total",
			Help:      "Requests that joined an identical in-flight request",
		},
	)

	CompletionTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "contextd",
			Name:      "completion_tokens_total",
			Help:      "Total completion tokens consumed",
		},
		[]string{"model", "type"}, // type: "prompt" / "completion"
	)

	QualityActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "contextd",
			Name:      "quality_actions_total",
			Help:      "Quality pipeline stage actions",
		},
		[]string{"stage", "action"},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers Prometheus pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(PipelineRequestsTotal)
	prometheus.MustRegister(PipelineDuration)
	prometheus.MustRegister(PipelineDedupJoinsTotal)
	prometheus.MustRegister(CompletionTokensTotal)
	prometheus.MustRegister(QualityActionsTotal)
	pipelineMetricsRegistered = true
}
