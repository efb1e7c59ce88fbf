// Package metrics exposes Prometheus counters for worker supervision and test results.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"avatx/internal/domain"
)

const Namespace = "avatx"

// Registry holds every collector of this package.
var Registry = prometheus.NewRegistry()

var (
	factory = promauto.With(Registry)

	WorkerSpawns = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "worker_spawns_total",
		Help:      "Worker processes started",
	})

	WorkerExits = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "worker_exits_total",
		Help:      "Worker processes that exited, by whether they were killed by the coordinator",
	}, []string{"killed"})

	HandshakeFailures = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "handshake_failures_total",
		Help:      "Failed worker handshakes, by reason",
	}, []string{"reason"})

	ProtocolErrors = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "protocol_errors_total",
		Help:      "Inbound messages rejected by validation, by side",
	}, []string{"side"})

	TestResults = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "test_results_total",
		Help:      "Test state changes reported by workers",
	}, []string{"state"})

	DiscoveryDrops = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "discovery_dropped_total",
		Help:      "Discovery messages dropped because their parent was unknown",
	}, []string{"type"})
)

// RecordResult counts one test state change.
func RecordResult(state domain.State) {
	TestResults.WithLabelValues(string(state)).Inc()
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
