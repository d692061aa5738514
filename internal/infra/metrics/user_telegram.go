package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		usersRegisteredTotal,
		usersSweptTotal,
		telegramUpdatesReceivedTotal,
		telegramRateLimitTriggeredTotal,
		accessChecksTotal,
		handlerPanicsTotal,
	)
}

var (
	usersRegisteredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "users_registered_total",
			Help: "Total number of new users registered.",
		},
	)

	usersSweptTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "users_swept_total",
			Help: "Total number of idle users removed by the sweep.",
		},
	)

	telegramUpdatesReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telegram_updates_received_total",
			Help: "Counts incoming updates by kind (command, callback, text, payment).",
		},
		[]string{"kind", "name"},
	)

	telegramRateLimitTriggeredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "telegram_rate_limit_triggered_total",
			Help: "Total number of times users have been rate-limited.",
		},
	)

	accessChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_checks_total",
			Help: "Channel membership checks by result.",
		},
		[]string{"result"}, // 'latched', 'granted', 'denied', 'error', 'admin'
	)

	handlerPanicsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "handler_panics_total",
			Help: "Panics recovered at the inbound event boundary.",
		},
	)
)

func IncUsersRegistered() {
	usersRegisteredTotal.Inc()
}

func AddUsersSwept(n int) {
	usersSweptTotal.Add(float64(n))
}

func IncTelegramUpdate(kind, name string) {
	telegramUpdatesReceivedTotal.WithLabelValues(norm(kind), norm(name)).Inc()
}

func IncRateLimitTriggered() {
	telegramRateLimitTriggeredTotal.Inc()
}

func IncAccessCheck(result string) {
	accessChecksTotal.WithLabelValues(norm(result)).Inc()
}

func IncHandlerPanic() {
	handlerPanicsTotal.Inc()
}
