package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(adminCommandTotal, broadcastMessagesTotal) }

var (
	adminCommandTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admin_command_total",
			Help: "Tracks attempts to use admin commands.",
		},
		[]string{"command", "status"}, // status: 'authorized', 'unauthorized', 'failed'
	)

	broadcastMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_messages_total",
			Help: "Broadcast deliveries by result.",
		},
		[]string{"result"}, // 'sent', 'failed'
	)
)

func IncAdminCommand(command, status string) {
	adminCommandTotal.WithLabelValues(norm(command), norm(status)).Inc()
}

func IncBroadcast(result string) {
	broadcastMessagesTotal.WithLabelValues(norm(result)).Inc()
}
