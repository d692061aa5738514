package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentsTotal,
		paymentsRevenueTotal,
		starsMovedTotal,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Stars top-up payments by outcome (success/failed/rejected).",
		},
		[]string{"status"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "The total value of successful payments, labeled by currency.",
		},
		[]string{"currency"},
	)

	starsMovedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "economy_stars_total",
			Help: "In-bot stars spent or credited, labeled by direction and reason.",
		},
		[]string{"direction", "reason"}, // direction: 'spent', 'credited'
	)
)

func IncPayment(status string) {
	paymentsTotal.WithLabelValues(norm(status)).Inc()
}

func AddPaymentRevenue(currency string, amount int64) {
	paymentsRevenueTotal.WithLabelValues(norm(currency)).Add(float64(amount))
}

func AddStarsSpent(reason string, n int64) {
	if n > 0 {
		starsMovedTotal.WithLabelValues("spent", norm(reason)).Add(float64(n))
	}
}

func AddStarsCredited(reason string, n int64) {
	if n > 0 {
		starsMovedTotal.WithLabelValues("credited", norm(reason)).Add(float64(n))
	}
}
