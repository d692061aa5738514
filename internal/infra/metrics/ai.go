package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		aiTokensIn,
		aiTokensOut,
		aiCallsLatencyMs,
		aiRetriesTotal,
		generationsTotal,
		aiPrecheckBlocks,
	)
}

var (
	aiTokensIn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_in",
			Help: "Estimated prompt (input) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiTokensOut = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_out",
			Help: "Estimated completion (output) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiCallsLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_calls_latency_ms",
			Help:    "AI call latency distribution in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 10000, 30000},
		},
		[]string{"provider", "success"},
	)

	aiRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_retries_total",
			Help: "Retried generation attempts per kind.",
		},
		[]string{"kind"},
	)

	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generations_total",
			Help: "Finished generations by kind and result.",
		},
		[]string{"kind", "result"}, // result: 'ok', 'failed', 'rejected'
	)

	aiPrecheckBlocks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_precheck_blocks",
			Help: "Count of pre-send affordability blocks per kind.",
		},
		[]string{"kind"},
	)
)

func PrecheckBlocked(kind string) {
	aiPrecheckBlocks.WithLabelValues(norm(kind)).Inc()
}

func ObserveCall(provider string, started time.Time, success bool) {
	aiCallsLatencyMs.WithLabelValues(norm(provider), strconv.FormatBool(success)).
		Observe(float64(time.Since(started).Milliseconds()))
}

func ObserveTokens(provider, model string, tokensIn, tokensOut int) {
	lbl := []string{norm(provider), norm(model)}
	aiTokensIn.WithLabelValues(lbl...).Add(float64(tokensIn))
	aiTokensOut.WithLabelValues(lbl...).Add(float64(tokensOut))
}

func IncRetry(kind string) {
	aiRetriesTotal.WithLabelValues(norm(kind)).Inc()
}

func IncGeneration(kind, result string) {
	generationsTotal.WithLabelValues(norm(kind), norm(result)).Inc()
}
