// Package metrics exposes vigil's Prometheus collectors on a private registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	EventsReceived      prometheus.Counter
	EventsDiscarded     prometheus.Counter
	Alerts              *prometheus.CounterVec
	SubscriptionsOpened prometheus.Counter
	SubscriptionsClosed prometheus.Counter
	DialFailures        prometheus.Counter
	Probes              *prometheus.CounterVec
	Connected           prometheus.Gauge
	ControlActions      *prometheus.CounterVec
	HistoryFetches      *prometheus.CounterVec
	WebhookDeliveries   *prometheus.CounterVec
	StreamSubscribers   prometheus.Gauge

	registry *prometheus.Registry
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		EventsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vigil_detection_events_total",
			Help: "Detection events received on the push channel",
		}),
		EventsDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vigil_detection_events_discarded_total",
			Help: "Detection events dropped because their subscription was already released",
		}),
		Alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vigil_alerts_total",
			Help: "History entries recorded, by detection type",
		}, []string{"kind"}),
		SubscriptionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vigil_subscriptions_opened_total",
			Help: "Push-channel subscriptions acquired",
		}),
		SubscriptionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vigil_subscriptions_closed_total",
			Help: "Push-channel subscriptions released",
		}),
		DialFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vigil_dial_failures_total",
			Help: "Failed attempts to open the push channel",
		}),
		Probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vigil_probes_total",
			Help: "Backend reachability probes, by result",
		}, []string{"result"}),
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vigil_backend_connected",
			Help: "1 when the last probe reached the backend",
		}),
		ControlActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vigil_control_actions_total",
			Help: "Control actions forwarded to the backend, by action and result",
		}, []string{"action", "result"}),
		HistoryFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vigil_history_fetches_total",
			Help: "Backend history lookups, by source",
		}, []string{"source"}),
		WebhookDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vigil_webhook_deliveries_total",
			Help: "Alert webhook posts, by result",
		}, []string{"result"}),
		StreamSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vigil_state_subscribers",
			Help: "Live consumers of the detection state stream",
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.EventsReceived,
		m.EventsDiscarded,
		m.Alerts,
		m.SubscriptionsOpened,
		m.SubscriptionsClosed,
		m.DialFailures,
		m.Probes,
		m.Connected,
		m.ControlActions,
		m.HistoryFetches,
		m.WebhookDeliveries,
		m.StreamSubscribers,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) EventReceived() {
	if m != nil {
		m.EventsReceived.Inc()
	}
}

func (m *Metrics) EventDiscarded() {
	if m != nil {
		m.EventsDiscarded.Inc()
	}
}

func (m *Metrics) Alert(kind string) {
	if m != nil {
		m.Alerts.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) SubscriptionOpened() {
	if m != nil {
		m.SubscriptionsOpened.Inc()
	}
}

func (m *Metrics) SubscriptionClosed() {
	if m != nil {
		m.SubscriptionsClosed.Inc()
	}
}

func (m *Metrics) DialFailed() {
	if m != nil {
		m.DialFailures.Inc()
	}
}

// Probe records one reachability probe and updates the connected gauge.
func (m *Metrics) Probe(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.Probes.WithLabelValues("up").Inc()
		m.Connected.Set(1)
		return
	}
	m.Probes.WithLabelValues("down").Inc()
	m.Connected.Set(0)
}

func (m *Metrics) ControlAction(action, result string) {
	if m != nil {
		m.ControlActions.WithLabelValues(action, result).Inc()
	}
}

func (m *Metrics) HistoryFetch(source string) {
	if m != nil {
		m.HistoryFetches.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) WebhookDelivery(result string) {
	if m != nil {
		m.WebhookDeliveries.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) StreamSubscriberDelta(d float64) {
	if m != nil {
		m.StreamSubscribers.Add(d)
	}
}
