// Package metrics exposes Prometheus instrumentation for the sync client.
//
// Labels are bounded: resources and collections are fixed names, message
// types come from the push vocabulary, and status codes are numeric strings.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stackit_sync"

// Metrics owns the collectors and implements the observer hooks of the
// backend client, stores, change feed, transport and push router.
type Metrics struct {
	registry *prometheus.Registry

	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	staleWrites    *prometheus.CounterVec
	feedDrops      *prometheus.CounterVec
	reconnects     prometheus.Counter
	reconnectFails prometheus.Counter
	routed         *prometheus.CounterVec
	dropped        *prometheus.CounterVec
	resyncs        *prometheus.CounterVec
	apiRequests    *prometheus.CounterVec
	apiLatency     *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry, along with the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "REST calls to the backend by resource, method and status.",
		}, []string{"resource", "method", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Duration of backend REST calls in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"resource", "method"}),
		staleWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_stale_writes_total",
			Help:      "Writes rejected because a newer version was already held.",
		}, []string{"collection"}),
		feedDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_events_dropped_total",
			Help:      "Change feed events dropped because a buffer was full.",
		}, []string{"type"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_reconnect_attempts_total",
			Help:      "Reconnect attempts made by the push transport.",
		}),
		reconnectFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_reconnect_failures_total",
			Help:      "Reconnect attempts that failed.",
		}),
		routed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_messages_routed_total",
			Help:      "Push messages applied to the stores by type.",
		}, []string{"type"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_messages_dropped_total",
			Help:      "Malformed push messages dropped by topic kind.",
		}, []string{"kind"}),
		resyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_resyncs_total",
			Help:      "Store resyncs after a reconnect by result.",
		}, []string{"result"}),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Local API requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "Duration of local API requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.requestLatency, m.staleWrites, m.feedDrops,
		m.reconnects, m.reconnectFails, m.routed, m.dropped, m.resyncs,
		m.apiRequests, m.apiLatency,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest records a backend REST call. status 0 means no response was received.
func (m *Metrics) ObserveRequest(resource, method string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(resource, method, strconv.Itoa(status)).Inc()
	m.requestLatency.WithLabelValues(resource, method).Observe(elapsed.Seconds())
}

// StaleRejected counts a write dropped by a store's version check.
func (m *Metrics) StaleRejected(collection string) {
	m.staleWrites.WithLabelValues(collection).Inc()
}

// EventDropped counts a change feed event that could not be buffered.
func (m *Metrics) EventDropped(eventType string) {
	m.feedDrops.WithLabelValues(eventType).Inc()
}

// ReconnectAttempt counts a transport reconnect attempt and its failure, if any.
func (m *Metrics) ReconnectAttempt(_ int, err error) {
	m.reconnects.Inc()
	if err != nil {
		m.reconnectFails.Inc()
	}
}

// MessageRouted counts a push message applied to the stores.
func (m *Metrics) MessageRouted(msgType string) {
	m.routed.WithLabelValues(msgType).Inc()
}

// MessageDropped counts a malformed push message.
func (m *Metrics) MessageDropped(kind string) {
	m.dropped.WithLabelValues(kind).Inc()
}

// Resynced counts a post-reconnect resync.
func (m *Metrics) Resynced(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.resyncs.WithLabelValues(result).Inc()
}

// ObserveAPI records a local API request. route must be the registered
// pattern, not the raw path.
func (m *Metrics) ObserveAPI(method, route string, status int, elapsed time.Duration) {
	m.apiRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.apiLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
