// Package httpserver is the HTTP front of the development backend: a mux
// with queued handlers, CORS, JSON request logging and Prometheus
// instrumentation.
package httpserver

import (
	"fmt"
	"net/http"

	"chat-widget-engine/internal/queue"

	"github.com/prometheus/client_golang/prometheus"
)

type RouteRegistrar func(mux *http.ServeMux, s *Server)

type Server struct {
	listenAddr          string
	requestQueueManager *queue.RequestQueueManager
	routeRegistrars     []RouteRegistrar
	allowedOrigins      []string
	metrics             *metrics
}

func NewServer(listenAddr string, rqm *queue.RequestQueueManager, allowedOrigins []string, registrars ...RouteRegistrar) *Server {
	return &Server{
		listenAddr:          listenAddr,
		requestQueueManager: rqm,
		routeRegistrars:     registrars,
		allowedOrigins:      allowedOrigins,
		metrics:             newMetrics(prometheus.DefaultRegisterer, listenAddr, rqm),
	}
}

func (s *Server) Run() {
	mux := http.NewServeMux()

	for _, reg := range s.routeRegistrars {
		reg(mux, s)
	}

	mux.Handle("/metrics", s.metrics.metricsHandler())

	fmt.Printf("Server listening on http://localhost%s\n", s.listenAddr)

	if err := http.ListenAndServe(s.listenAddr, s.metrics.instrument(mux)); err != nil {
		fmt.Printf("server stopped: %v\n", err)
	}
}
