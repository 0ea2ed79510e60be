package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"zend/internal/domain"
)

var systemStates = []domain.SystemState{domain.SystemHealthy, domain.SystemDegraded, domain.SystemUnhealthy}

type PrometheusMetrics struct {
	routeDuration   *prometheus.HistogramVec
	fallbacks       *prometheus.CounterVec
	cacheRequests   *prometheus.CounterVec
	probeDuration   *prometheus.HistogramVec
	serviceHealth   *prometheus.GaugeVec
	systemHealth    *prometheus.GaugeVec
	auditDropped    prometheus.Counter
	auditWrites     *prometheus.CounterVec
	auditQueueDepth prometheus.Gauge
}

func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &PrometheusMetrics{
		routeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "zend_route_duration_seconds",
				Help:    "Duration of dispatched tool calls in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"service", "status", "kind", "path"},
		),
		fallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zend_fallback_total",
				Help: "Total number of calls that took the native fallback path",
			},
			[]string{"service"},
		),
		cacheRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zend_cache_requests_total",
				Help: "Aggregate cache lookups by outcome",
			},
			[]string{"key", "outcome"},
		),
		probeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "zend_probe_duration_seconds",
				Help:    "Duration of liveness probes in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2},
			},
			[]string{"service", "state"},
		),
		serviceHealth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "zend_service_up",
				Help: "1 when the last probe found the service healthy or degraded",
			},
			[]string{"service"},
		),
		systemHealth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "zend_system_health",
				Help: "1 for the current system-wide health state",
			},
			[]string{"state"},
		),
		auditDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "zend_audit_dropped_total",
				Help: "Audit records discarded because the queue was full",
			},
		),
		auditWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zend_audit_writes_total",
				Help: "Audit sink writes by outcome",
			},
			[]string{"status"},
		),
		auditQueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "zend_audit_queue_depth",
				Help: "Audit records waiting to be written",
			},
		),
	}
}

func (p *PrometheusMetrics) ObserveRoute(metric domain.RouteMetric) {
	status := string(metric.Status)
	if status == "" {
		status = string(domain.RouteStatusError)
	}
	path := string(metric.Path)
	if path == "" {
		path = string(domain.RoutePathNone)
	}
	p.routeDuration.WithLabelValues(metric.Service, status, string(metric.Kind), path).Observe(metric.Duration.Seconds())
}

func (p *PrometheusMetrics) ObserveFallback(service string) {
	p.fallbacks.WithLabelValues(service).Inc()
}

func (p *PrometheusMetrics) ObserveCache(key string, outcome domain.CacheOutcome) {
	p.cacheRequests.WithLabelValues(key, string(outcome)).Inc()
}

func (p *PrometheusMetrics) ObserveProbe(service string, state domain.HealthState, duration time.Duration) {
	p.probeDuration.WithLabelValues(service, string(state)).Observe(duration.Seconds())
	up := 0.0
	if state.Up() {
		up = 1
	}
	p.serviceHealth.WithLabelValues(service).Set(up)
}

func (p *PrometheusMetrics) SetSystemHealth(state domain.SystemState) {
	for _, candidate := range systemStates {
		value := 0.0
		if candidate == state {
			value = 1
		}
		p.systemHealth.WithLabelValues(string(candidate)).Set(value)
	}
}

func (p *PrometheusMetrics) ObserveAuditDropped() {
	p.auditDropped.Inc()
}

func (p *PrometheusMetrics) ObserveAuditWrite(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	p.auditWrites.WithLabelValues(status).Inc()
}

func (p *PrometheusMetrics) SetAuditQueueDepth(depth int) {
	p.auditQueueDepth.Set(float64(depth))
}

var _ domain.Metrics = (*PrometheusMetrics)(nil)
