// Package metrics holds the Prometheus collectors for the store runtime and
// message delivery. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tgflux"

// Delivery attempt results.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// Metrics holds the collectors. A nil *Metrics records nothing.
type Metrics struct {
	actions       *prometheus.CounterVec
	flows         prometheus.Counter
	attempts      *prometheus.CounterVec
	exhausted     prometheus.Counter
	notifications prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Actions reduced by the store, by action name.",
		}, []string{"action"}),
		flows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flows_started_total",
			Help:      "Background flows started by the store.",
		}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_attempts_total",
			Help:      "Message delivery attempts, by result.",
		}, []string{"result"}),
		exhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_exhausted_total",
			Help:      "Messages left undelivered after all attempts failed.",
		}),
		notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listener_notifications_total",
			Help:      "Chat change listener notifications scheduled.",
		}),
	}
	reg.MustRegister(m.actions, m.flows, m.attempts, m.exhausted, m.notifications)
	return m
}

// ActionReduced counts one reduced action by name.
func (m *Metrics) ActionReduced(name string) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(name).Inc()
}

// FlowStarted counts one started flow.
func (m *Metrics) FlowStarted() {
	if m == nil {
		return
	}
	m.flows.Inc()
}

// DeliveryAttempt records one call to the delivery capability.
func (m *Metrics) DeliveryAttempt(result string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(result).Inc()
}

// DeliveryExhausted counts a message that ran out of attempts.
func (m *Metrics) DeliveryExhausted() {
	if m == nil {
		return
	}
	m.exhausted.Inc()
}

// ListenerNotified counts one chat listener call.
func (m *Metrics) ListenerNotified() {
	if m == nil {
		return
	}
	m.notifications.Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
