// Package metrics exposes watch-engine counters through a private Prometheus
// registry. A nil *Registry accepts every call and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dirwatch"

type Registry struct {
	registry *prometheus.Registry

	subscriptions      prometheus.Gauge
	listeners          prometheus.Gauge
	batchesDelivered   prometheus.Counter
	changesDelivered   prometheus.Counter
	batchesDropped     prometheus.Counter
	listenerFailures   *prometheus.CounterVec
	handlesInvalidated prometheus.Counter
	facilityErrors     prometheus.Counter
	facilityRestarts   prometheus.Counter
	streamClients      prometheus.Gauge
	streamDropped      prometheus.Counter
}

// New creates a Registry with its own prometheus.Registry, so several engines
// (and tests) never collide on registration.
func New() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscriptions_active",
			Help:      "Directories with a live OS watch registration",
		}),
		listeners: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "listeners_active",
			Help:      "Listener registrations across all subscriptions",
		}),
		batchesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_delivered_total",
			Help:      "Change batches handed to subscription listeners",
		}),
		changesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changes_delivered_total",
			Help:      "Individual change records handed to subscription listeners",
		}),
		batchesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_dropped_total",
			Help:      "Batches discarded because their subscription was already evicted",
		}),
		listenerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listener_failures_total",
			Help:      "Listener invocations that returned an error or panicked",
		}, []string{"reason"}),
		handlesInvalidated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handles_invalidated_total",
			Help:      "Watch handles evicted after the facility reported them invalid",
		}),
		facilityErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "facility_errors_total",
			Help:      "Errors reported by the OS watch facility",
		}),
		facilityRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "facility_restarts_total",
			Help:      "Attempts to rebuild the OS watch facility after an error",
		}),
		streamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_clients_active",
			Help:      "Connected change stream clients",
		}),
		streamDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_batches_dropped_total",
			Help:      "Batches not queued for a slow change stream client",
		}),
	}

	r.registry.MustRegister(
		r.subscriptions,
		r.listeners,
		r.batchesDelivered,
		r.changesDelivered,
		r.batchesDropped,
		r.listenerFailures,
		r.handlesInvalidated,
		r.facilityErrors,
		r.facilityRestarts,
		r.streamClients,
		r.streamDropped,
		collectors.NewGoCollector(),
	)
	return r
}

// Handler serves the Prometheus text exposition for this registry.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.registry
}

func (r *Registry) SetSubscriptions(subscriptions, listeners int) {
	if r == nil {
		return
	}
	r.subscriptions.Set(float64(subscriptions))
	r.listeners.Set(float64(listeners))
}

func (r *Registry) RecordDelivery(changes int) {
	if r == nil {
		return
	}
	r.batchesDelivered.Inc()
	r.changesDelivered.Add(float64(changes))
}

func (r *Registry) IncBatchDropped() {
	if r == nil {
		return
	}
	r.batchesDropped.Inc()
}

// IncListenerFailure counts a failed invocation; reason is "error" or "panic".
func (r *Registry) IncListenerFailure(reason string) {
	if r == nil {
		return
	}
	r.listenerFailures.WithLabelValues(reason).Inc()
}

func (r *Registry) IncHandleInvalidated() {
	if r == nil {
		return
	}
	r.handlesInvalidated.Inc()
}

func (r *Registry) IncFacilityError() {
	if r == nil {
		return
	}
	r.facilityErrors.Inc()
}

func (r *Registry) IncFacilityRestart() {
	if r == nil {
		return
	}
	r.facilityRestarts.Inc()
}

func (r *Registry) AddStreamClients(delta int) {
	if r == nil {
		return
	}
	r.streamClients.Add(float64(delta))
}

func (r *Registry) IncStreamDropped() {
	if r == nil {
		return
	}
	r.streamDropped.Inc()
}
