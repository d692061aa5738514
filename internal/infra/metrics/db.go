package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(dbPoolStats, storeFlushDuration, storeFlushTotal, storeDirtyRecords) }

var (
	dbPoolStats = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_pool_stats",
			Help: "Current state of the database connection pool.",
		},
		[]string{"state"}, // 'total', 'idle', 'in_use'
	)

	storeFlushDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_flush_duration_seconds",
			Help:    "Duration of a full document flush.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"backend"},
	)

	storeFlushTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_flush_total",
			Help: "Document flushes by result.",
		},
		[]string{"backend", "result"}, // 'ok', 'failed', 'clean'
	)

	storeDirtyRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "store_dirty_records",
			Help: "User records changed since the last successful flush.",
		},
	)
)

func SetDBPoolStats(total, idle, inUse int32) {
	dbPoolStats.WithLabelValues("total").Set(float64(total))
	dbPoolStats.WithLabelValues("idle").Set(float64(idle))
	dbPoolStats.WithLabelValues("in_use").Set(float64(inUse))
}

func ObserveFlush(backend, result string, started time.Time) {
	storeFlushTotal.WithLabelValues(norm(backend), norm(result)).Inc()
	if result != "clean" {
		storeFlushDuration.WithLabelValues(norm(backend)).Observe(time.Since(started).Seconds())
	}
}

func SetDirtyRecords(n int) {
	storeDirtyRecords.Set(float64(n))
}
