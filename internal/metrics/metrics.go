// Package metrics exposes Prometheus collectors for relayed queries.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Remote call outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeRejected  = "rejected"
	OutcomeTransport = "transport_error"
)

var (
	queriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hfrelay_queries_total",
			Help: "Host queries handled, by conversation state.",
		},
		[]string{"state"},
	)

	remoteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hfrelay_remote_requests_total",
			Help: "Calls to the remote model, by backend and outcome.",
		},
		[]string{"backend", "outcome"},
	)

	remoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hfrelay_remote_request_duration_seconds",
			Help:    "Latency of calls to the remote model.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 3, 4, 5, 10},
		},
		[]string{"backend"},
	)
)

// ObserveQuery counts one host query in the given conversation state.
func ObserveQuery(state string) {
	queriesTotal.WithLabelValues(state).Inc()
}

// ObserveRemote records one remote call.
func ObserveRemote(backend, outcome string, elapsed time.Duration) {
	remoteRequestsTotal.WithLabelValues(backend, outcome).Inc()
	remoteRequestDuration.WithLabelValues(backend).Observe(elapsed.Seconds())
}

func Handler() http.Handler {
	return promhttp.Handler()
}
