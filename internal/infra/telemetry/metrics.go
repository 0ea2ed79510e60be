package telemetry

import (
	"time"

	"zend/internal/domain"
)

type NoopMetrics struct{}

func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (n *NoopMetrics) ObserveRoute(_ domain.RouteMetric) {}

func (n *NoopMetrics) ObserveFallback(_ string) {}

func (n *NoopMetrics) ObserveCache(_ string, _ domain.CacheOutcome) {}

func (n *NoopMetrics) ObserveProbe(_ string, _ domain.HealthState, _ time.Duration) {}

func (n *NoopMetrics) SetSystemHealth(_ domain.SystemState) {}

func (n *NoopMetrics) ObserveAuditDropped() {}

func (n *NoopMetrics) ObserveAuditWrite(_ error) {}

func (n *NoopMetrics) SetAuditQueueDepth(_ int) {}

var _ domain.Metrics = (*NoopMetrics)(nil)
