package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Metrics holds the credchain collectors on a private registry so tests can
// build as many instances as they like.
type Metrics struct {
	registry *prometheus.Registry

	RPCAttemptsTotal   *prometheus.CounterVec
	RPCAttemptDuration *prometheus.HistogramVec
	RPCExhaustedTotal  *prometheus.CounterVec

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	CredentialsIssued  prometheus.Counter
	VerificationsTotal *prometheus.CounterVec
	EventsTracked      *prometheus.CounterVec
}

func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RPCAttemptsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "attempts_total",
			Help:      "JSON-RPC endpoint attempts by method, endpoint and outcome",
		}, []string{"method", "endpoint", "outcome"}),
		RPCAttemptDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "attempt_duration_seconds",
			Help:      "JSON-RPC endpoint attempt latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		RPCExhaustedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "exhausted_total",
			Help:      "Calls for which every endpoint failed",
		}, []string{"method"}),
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		CredentialsIssued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credentials_issued_total",
			Help:      "Credentials issued",
		}),
		VerificationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Credential verification lookups by result",
		}, []string{"result"}),
		EventsTracked: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_tracked_total",
			Help:      "Analytics events by type",
		}, []string{"type"}),
	}
}

// ObserveAttempt satisfies ethrpc.Observer.
func (m *Metrics) ObserveAttempt(method, endpoint string, err error, took time.Duration) {
	outcome := outcomeSuccess
	if err != nil {
		outcome = outcomeFailure
	}
	m.RPCAttemptsTotal.WithLabelValues(method, endpoint, outcome).Inc()
	m.RPCAttemptDuration.WithLabelValues(method, endpoint).Observe(took.Seconds())
}

func (m *Metrics) ObserveExhausted(method string) {
	m.RPCExhaustedTotal.WithLabelValues(method).Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, status int, took time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(took.Seconds())
}

func (m *Metrics) ObserveIssued() {
	m.CredentialsIssued.Inc()
}

func (m *Metrics) ObserveVerification(found bool) {
	result := "not_found"
	if found {
		result = "found"
	}
	m.VerificationsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveEvent(eventType string) {
	m.EventsTracked.WithLabelValues(eventType).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
