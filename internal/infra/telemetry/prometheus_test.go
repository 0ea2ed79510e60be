package telemetry

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zend/internal/domain"
)

func TestNewPrometheusMetrics(t *testing.T) {
	m := NewPrometheusMetrics(prometheus.NewRegistry())
	assert.NotNil(t, m)
	assert.NotNil(t, m.routeDuration)
	assert.NotNil(t, m.fallbacks)
	assert.NotNil(t, m.cacheRequests)
	assert.NotNil(t, m.probeDuration)
	assert.NotNil(t, m.serviceHealth)
	assert.NotNil(t, m.systemHealth)
	assert.NotNil(t, m.auditDropped)
	assert.NotNil(t, m.auditWrites)
	assert.NotNil(t, m.auditQueueDepth)
}

func TestNewPrometheusMetrics_UsesProvidedRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()

	m := NewPrometheusMetrics(registry)
	m.ObserveRoute(domain.RouteMetric{
		Service:  "memory",
		Status:   domain.RouteStatusSuccess,
		Path:     domain.RoutePathPrimary,
		Duration: 10 * time.Millisecond,
	})
	m.ObserveFallback("memory")
	m.ObserveCache(domain.CacheKeyTools, domain.CacheHit)
	m.ObserveProbe("memory", domain.HealthHealthy, 5*time.Millisecond)
	m.SetSystemHealth(domain.SystemDegraded)
	m.ObserveAuditDropped()
	m.ObserveAuditWrite(nil)
	m.SetAuditQueueDepth(3)

	metrics, err := registry.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(metrics))
	for _, m := range metrics {
		names = append(names, m.GetName())
	}

	assert.Contains(t, names, "zend_route_duration_seconds")
	assert.Contains(t, names, "zend_fallback_total")
	assert.Contains(t, names, "zend_cache_requests_total")
	assert.Contains(t, names, "zend_probe_duration_seconds")
	assert.Contains(t, names, "zend_service_up")
	assert.Contains(t, names, "zend_system_health")
	assert.Contains(t, names, "zend_audit_dropped_total")
	assert.Contains(t, names, "zend_audit_writes_total")
	assert.Contains(t, names, "zend_audit_queue_depth")
}

func TestPrometheusMetrics_SystemHealthIsOneHot(t *testing.T) {
	m := NewPrometheusMetrics(prometheus.NewRegistry())

	m.SetSystemHealth(domain.SystemUnhealthy)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.systemHealth.WithLabelValues("unhealthy")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.systemHealth.WithLabelValues("healthy")))

	m.SetSystemHealth(domain.SystemHealthy)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.systemHealth.WithLabelValues("unhealthy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.systemHealth.WithLabelValues("healthy")))
}

func TestPrometheusMetrics_ProbeSetsServiceUp(t *testing.T) {
	m := NewPrometheusMetrics(prometheus.NewRegistry())

	m.ObserveProbe("git", domain.HealthDegraded, time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.serviceHealth.WithLabelValues("git")))

	m.ObserveProbe("git", domain.HealthUnreachable, time.Millisecond)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.serviceHealth.WithLabelValues("git")))
}

func TestPrometheusMetrics_AuditCounters(t *testing.T) {
	m := NewPrometheusMetrics(prometheus.NewRegistry())

	m.ObserveAuditWrite(nil)
	m.ObserveAuditWrite(errors.New("db down"))
	m.ObserveAuditWrite(errors.New("db down"))
	m.ObserveAuditDropped()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.auditWrites.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.auditWrites.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.auditDropped))
}

func TestNoopMetrics(t *testing.T) {
	var m domain.Metrics = NewNoopMetrics()
	m.ObserveRoute(domain.RouteMetric{})
	m.ObserveFallback("x")
	m.ObserveCache("k", domain.CacheMiss)
	m.ObserveProbe("x", domain.HealthUnknown, 0)
	m.SetSystemHealth(domain.SystemHealthy)
	m.ObserveAuditDropped()
	m.ObserveAuditWrite(nil)
	m.SetAuditQueueDepth(0)
}
