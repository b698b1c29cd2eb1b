package bareclient

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics of a Client.
// A nil *Metrics records nothing.
type Metrics struct {
	RequestsTotal       *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
	RedirectsTotal      *prometheus.CounterVec
	DiscoveriesTotal    *prometheus.CounterVec
	EnvelopeErrorsTotal *prometheus.CounterVec
	SocketsTotal        *prometheus.CounterVec
	DeniedTotal         prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bareclient",
				Name:      "requests_total",
				Help:      "Total number of requests sent through the gateway",
			},
			[]string{"version", "outcome"}, // outcome=ok/error/cancelled
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "bareclient",
				Name:      "request_duration_seconds",
				Help:      "Time until the gateway response envelope was decoded",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"version"},
		),
		RedirectsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bareclient",
				Name:      "redirects_total",
				Help:      "Redirect responses seen by Fetch",
			},
			[]string{"action"}, // action=followed/returned/rejected
		),
		DiscoveriesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bareclient",
				Name:      "discoveries_total",
				Help:      "Capability document fetches",
			},
			[]string{"result"}, // result=ok/error
		),
		EnvelopeErrorsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bareclient",
				Name:      "envelope_errors_total",
				Help:      "Gateway responses rejected as invalid envelopes",
			},
			[]string{"version"},
		),
		SocketsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bareclient",
				Name:      "sockets_total",
				Help:      "WebSocket connections opened through the gateway",
			},
			[]string{"version", "outcome"},
		),
		DeniedTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "bareclient",
				Name:      "denied_total",
				Help:      "Remote targets refused by the guard",
			},
		),
	}
}

func (m *Metrics) observeRequest(version, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(version, outcome).Inc()
	m.RequestDuration.WithLabelValues(version).Observe(d.Seconds())
}

func (m *Metrics) redirect(action string) {
	if m == nil {
		return
	}
	m.RedirectsTotal.WithLabelValues(action).Inc()
}

func (m *Metrics) discovery(result string) {
	if m == nil {
		return
	}
	m.DiscoveriesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) envelopeError(version string) {
	if m == nil {
		return
	}
	m.EnvelopeErrorsTotal.WithLabelValues(version).Inc()
}

func (m *Metrics) socket(version, outcome string) {
	if m == nil {
		return
	}
	m.SocketsTotal.WithLabelValues(version, outcome).Inc()
}

func (m *Metrics) denied() {
	if m == nil {
		return
	}
	m.DeniedTotal.Inc()
}
