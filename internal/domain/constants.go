package domain

import "time"

const (
	DefaultListenAddress              = "0.0.0.0:8080"
	DefaultRouteTimeoutSeconds        = 5
	DefaultProbeIntervalSeconds       = 30
	DefaultProbeTimeoutSeconds        = 2
	DefaultDegradedLatencyMs          = 1000
	DefaultProbeConcurrency           = 8
	DefaultCacheComputeTimeoutSeconds = 10
	DefaultAuditQueueSize             = 1024
	DefaultAuditMaxSummaryBytes       = 512
	DefaultAuditWriteTimeoutSeconds   = 2
	DefaultEnvelopePath               = "/call"
	DefaultHealthPath                 = "/health"
	DefaultObservabilityListenAddress = "0.0.0.0:9090"
	DefaultPostgresPort               = 5432
	DefaultPostgresSSLMode            = "disable"
	DefaultMaxConnsPerService         = 32
)

// CacheTTL is the fixed freshness window for aggregate reads.
const CacheTTL = 5 * time.Minute

// QuorumRatio is the share of services that must be up for a degraded roll-up.
// At or below it the system is unhealthy.
const QuorumRatio = 0.5

// Cache keys for aggregate endpoints.
const (
	CacheKeyTools    = "aggregate:tools"
	CacheKeyServices = "aggregate:services"
	CacheKeyHealth   = "aggregate:health"
)
