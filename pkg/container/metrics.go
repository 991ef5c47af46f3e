package container

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector records container metrics
type MetricsCollector interface {
	RecordScopeStart(scope string, duration time.Duration)
	RecordScopeClose(scope string)
	RecordComponentCreated(scope, kind, name string, duration time.Duration)
	RecordObjectLookup(scope, provider string, found bool)
	RecordClientTransition(service, client, transition string, duration time.Duration, err error)
}

type noopMetrics struct{}

func (noopMetrics) RecordScopeStart(string, time.Duration)                             {}
func (noopMetrics) RecordScopeClose(string)                                            {}
func (noopMetrics) RecordComponentCreated(string, string, string, time.Duration)       {}
func (noopMetrics) RecordObjectLookup(string, string, bool)                            {}
func (noopMetrics) RecordClientTransition(string, string, string, time.Duration, error) {}

// NoopMetrics returns a collector that discards everything
func NoopMetrics() MetricsCollector {
	return noopMetrics{}
}

// PrometheusMetrics implements MetricsCollector with Prometheus collectors
type PrometheusMetrics struct {
	ScopesStarted     *prometheus.CounterVec
	ScopesClosed      *prometheus.CounterVec
	ScopeStartTime    *prometheus.HistogramVec
	ComponentsCreated *prometheus.CounterVec
	ObjectLookups     *prometheus.CounterVec
	ClientTransitions *prometheus.CounterVec
	ClientDuration    *prometheus.HistogramVec
}

// NewPrometheusMetrics creates the collectors under namespace and registers
// them with registerer
func NewPrometheusMetrics(namespace string, registerer prometheus.Registerer) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		ScopesStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scopes_started_total",
				Help:      "Total number of scopes started",
			},
			[]string{"scope"},
		),
		ScopesClosed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scopes_closed_total",
				Help:      "Total number of scopes closed",
			},
			[]string{"scope"},
		),
		ScopeStartTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "scope_start_duration_seconds",
				Help:      "Scope start duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"scope"},
		),
		ComponentsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "components_created_total",
				Help:      "Total number of providers and services instantiated",
			},
			[]string{"scope", "kind"},
		),
		ObjectLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "object_lookups_total",
				Help:      "Total number of provider object lookups",
			},
			[]string{"scope", "provider", "result"},
		),
		ClientTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "client_transitions_total",
				Help:      "Total number of client state transitions",
			},
			[]string{"service", "transition", "status"},
		),
		ClientDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "client_transition_duration_seconds",
				Help:      "Client state transition duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service", "transition"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.ScopesStarted,
		m.ScopesClosed,
		m.ScopeStartTime,
		m.ComponentsCreated,
		m.ObjectLookups,
		m.ClientTransitions,
		m.ClientDuration,
	} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *PrometheusMetrics) RecordScopeStart(scope string, duration time.Duration) {
	m.ScopesStarted.WithLabelValues(scope).Inc()
	m.ScopeStartTime.WithLabelValues(scope).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordScopeClose(scope string) {
	m.ScopesClosed.WithLabelValues(scope).Inc()
}

func (m *PrometheusMetrics) RecordComponentCreated(scope, kind, _ string, _ time.Duration) {
	m.ComponentsCreated.WithLabelValues(scope, kind).Inc()
}

func (m *PrometheusMetrics) RecordObjectLookup(scope, provider string, found bool) {
	result := "miss"
	if found {
		result = "hit"
	}
	m.ObjectLookups.WithLabelValues(scope, provider, result).Inc()
}

// RecordClientTransition labels by service; client names are not labels
func (m *PrometheusMetrics) RecordClientTransition(service, _ string, transition string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ClientTransitions.WithLabelValues(service, transition, status).Inc()
	m.ClientDuration.WithLabelValues(service, transition).Observe(duration.Seconds())
}
