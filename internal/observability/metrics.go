package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is nil-safe: every method is a no-op on a nil receiver.
type Metrics struct {
	registry       *prometheus.Registry
	requests       *prometheus.CounterVec
	requestSeconds *prometheus.HistogramVec
	fetches        *prometheus.CounterVec
	discarded      *prometheus.CounterVec
	ticketsSent    prometheus.Counter
	logouts        *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal_admin",
			Name:      "http_requests_total",
			Help:      "Requests sent to the registration service.",
		}, []string{"method", "status"}),
		requestSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "portal_admin",
			Name:      "http_request_duration_seconds",
			Help:      "Latency of requests sent to the registration service.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 70},
		}, []string{"method"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal_admin",
			Name:      "registration_fetches_total",
			Help:      "Registration page fetches by outcome.",
		}, []string{"outcome"}),
		discarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal_admin",
			Name:      "registration_responses_discarded_total",
			Help:      "Fetch responses dropped instead of applied.",
		}, []string{"reason"}),
		ticketsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "portal_admin",
			Name:      "tickets_sent_total",
			Help:      "Tickets the service reported as sent.",
		}),
		logouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal_admin",
			Name:      "session_logouts_total",
			Help:      "Session terminations by reason.",
		}, []string{"reason"}),
	}
	m.registry.MustRegister(m.requests, m.requestSeconds, m.fetches, m.discarded, m.ticketsSent, m.logouts)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveRequest(method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status != 0 {
		label = strconv.Itoa(status)
	}
	m.requests.WithLabelValues(method, label).Inc()
	m.requestSeconds.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *Metrics) FetchOutcome(outcome string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Discarded(reason string) {
	if m == nil {
		return
	}
	m.discarded.WithLabelValues(reason).Inc()
}

func (m *Metrics) TicketsSent(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ticketsSent.Add(float64(n))
}

func (m *Metrics) Logout(reason string) {
	if m == nil {
		return
	}
	m.logouts.WithLabelValues(reason).Inc()
}

// WriteTextfile dumps the registry in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
