package domain

import "time"

// RouteStatus labels the outcome of a dispatched call.
type RouteStatus string

const (
	RouteStatusSuccess RouteStatus = "success"
	RouteStatusError   RouteStatus = "error"
)

// RoutePath labels which leg produced the outcome.
type RoutePath string

const (
	RoutePathNone     RoutePath = "none"
	RoutePathPrimary  RoutePath = "primary"
	RoutePathFallback RoutePath = "fallback"
)

// RouteMetric captures metrics for one dispatched call.
type RouteMetric struct {
	Service  string
	Status   RouteStatus
	Kind     ErrorKind
	Path     RoutePath
	Duration time.Duration
}

// CacheOutcome labels a cache lookup.
type CacheOutcome string

const (
	CacheHit         CacheOutcome = "hit"
	CacheMiss        CacheOutcome = "miss"
	CacheUnavailable CacheOutcome = "unavailable"
)

// Metrics records operational metrics for the gateway.
type Metrics interface {
	ObserveRoute(metric RouteMetric)
	ObserveFallback(service string)
	ObserveCache(key string, outcome CacheOutcome)
	ObserveProbe(service string, state HealthState, duration time.Duration)
	SetSystemHealth(state SystemState)
	ObserveAuditDropped()
	ObserveAuditWrite(err error)
	SetAuditQueueDepth(depth int)
}
