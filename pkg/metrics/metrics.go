// Package metrics provides Prometheus metrics for stepform.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gabrielmiguelok/stepform/pkg/stepper"
)

const namespace = "stepform"

// Metrics holds all application metrics.
type Metrics struct {
	// Connections
	ConnectionsActive prometheus.Gauge
	ConnectionsTotal  prometheus.Counter

	// Messages
	MessagesReceived *prometheus.CounterVec
	MessagesSent     *prometheus.CounterVec
	MessageLatency   prometheus.Histogram
	PatchOps         prometheus.Histogram

	// Errors
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter

	// Form
	StepTransitions    *prometheus.CounterVec
	ValidationFailures *prometheus.CounterVec
	Submissions        *prometheus.CounterVec

	// HTTP
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New registers the metrics with the default Prometheus registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewWithRegistry registers the metrics with reg and serves them from g.
// Tests pass a fresh prometheus.NewRegistry for both.
func NewWithRegistry(reg prometheus.Registerer, g prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of active live connections",
		}),
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total live connections established",
		}),

		MessagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Messages received from clients",
		}, []string{"event"}),
		MessagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Messages sent to clients",
		}, []string{"event"}),
		MessageLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_latency_seconds",
			Help:      "Client message processing latency",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		}),
		PatchOps: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "patch_ops",
			Help:      "DOM commands per flushed patch",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
		}),

		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total errors by kind",
		}, []string{"kind"}),
		PanicsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "panics_total",
			Help:      "Total panics recovered",
		}),

		StepTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_transitions_total",
			Help:      "Form step changes by direction",
		}, []string{"direction"}),
		ValidationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_failures_total",
			Help:      "Step validations that failed, by field",
		}, []string{"field"}),
		Submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Validated form submissions by mode",
		}, []string{"mode"}),

		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"method", "route"}),

		gatherer: g,
	}
}

// Handler returns an HTTP handler exposing the metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Live connection hooks

// ConnOpened records a new live connection.
func (m *Metrics) ConnOpened() {
	m.ConnectionsActive.Inc()
	m.ConnectionsTotal.Inc()
}

// ConnClosed records a closed live connection.
func (m *Metrics) ConnClosed() {
	m.ConnectionsActive.Dec()
}

// MessageHandled records one processed client message.
func (m *Metrics) MessageHandled(event string, d time.Duration, err error) {
	m.MessagesReceived.WithLabelValues(event).Inc()
	m.MessageLatency.Observe(d.Seconds())
	if err != nil {
		m.ErrorsTotal.WithLabelValues("message").Inc()
	}
}

// PatchFlushed records a patch sent to a client.
func (m *Metrics) PatchFlushed(ops int) {
	m.MessagesSent.WithLabelValues("patch").Inc()
	m.PatchOps.Observe(float64(ops))
}

// Panic records a recovered panic.
func (m *Metrics) Panic() {
	m.PanicsTotal.Inc()
}

// Form hooks

// StepChanged records a step transition.
func (m *Metrics) StepChanged(from, to int) {
	direction := "forward"
	if to < from {
		direction = "backward"
	}
	m.StepTransitions.WithLabelValues(direction).Inc()
}

// ValidationFailed records a failed step validation.
func (m *Metrics) ValidationFailed(field string) {
	m.ValidationFailures.WithLabelValues(field).Inc()
}

// Submitted records a validated submission.
func (m *Metrics) Submitted(mode stepper.SubmitMode) {
	m.Submissions.WithLabelValues(string(mode)).Inc()
}

// HTTP hooks

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

var _ stepper.Observer = (*Metrics)(nil)
