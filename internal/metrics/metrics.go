package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tenantdesk",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	dashboardLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tenantdesk",
			Name:      "dashboard_loads_total",
			Help:      "Dashboard loads by outcome.",
		},
		[]string{"outcome"},
	)

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tenantdesk",
			Name:      "transitions_total",
			Help:      "Lifecycle transitions by action and outcome.",
		},
		[]string{"action", "outcome"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, dashboardLoads, transitions)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncLoad increments the dashboard load counter.
func IncLoad(outcome string) {
	dashboardLoads.WithLabelValues(outcome).Inc()
}

// IncTransition increments the transition counter.
func IncTransition(action, outcome string) {
	transitions.WithLabelValues(action, outcome).Inc()
}
