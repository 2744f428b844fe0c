package socket

import "github.com/prometheus/client_golang/prometheus"

var (
	socketConnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_widget_socket_connects_total",
			Help: "Successful live channel connections.",
		},
	)
	socketDisconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_widget_socket_disconnects_total",
			Help: "Live channel disconnects reported upward (grace-window drops excluded).",
		},
	)
	socketEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_widget_socket_events_total",
			Help: "Live channel events received, by event name.",
		},
		[]string{"event"},
	)
)

func init() {
	prometheus.MustRegister(socketConnects, socketDisconnects, socketEvents)
}

func countConnect() {
	socketConnects.Inc()
}

func countDisconnect() {
	socketDisconnects.Inc()
}

func countEvent(event string) {
	socketEvents.WithLabelValues(event).Inc()
}
