package reconcile

import "github.com/prometheus/client_golang/prometheus"

var (
	messagesAccepted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_widget_messages_accepted_total",
			Help: "Inbound messages appended to the conversation log.",
		},
	)
	messagesDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_widget_messages_dropped_total",
			Help: "Inbound messages discarded as duplicates or ignored echoes.",
		},
	)
	optimisticAdopted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_widget_optimistic_adoptions_total",
			Help: "Optimistic entries that adopted a confirmed server id.",
		},
	)
)

func init() {
	prometheus.MustRegister(messagesAccepted, messagesDropped, optimisticAdopted)
}

func countAccepted() {
	messagesAccepted.Inc()
}

func countDropped() {
	messagesDropped.Inc()
}

func countAdopted() {
	optimisticAdopted.Inc()
}
