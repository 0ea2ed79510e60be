package domain

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// ToolDescriptor names a tool and the service that owns it.
type ToolDescriptor struct {
	Name      string `json:"name"`
	ServiceID string `json:"service"`
}

// Route maps one tool onto a native REST endpoint of its service.
type Route struct {
	Tool   string `json:"tool"`
	Method string `json:"method"`
	Path   string `json:"path"`
}

// ServiceDescriptor describes one backend tool service.
// Built once from configuration and never mutated afterwards.
type ServiceDescriptor struct {
	ID       string   `json:"id"`
	Host     string   `json:"host"`
	Port     int      `json:"port"`
	Tools    []string `json:"tools,omitempty"`
	Prefixes []string `json:"prefixes,omitempty"`

	// Adapter names the native translation used when the envelope path fails.
	Adapter string `json:"adapter,omitempty"`
	// Envelope reports whether the service accepts the generic call envelope.
	Envelope     bool    `json:"envelope"`
	EnvelopePath string  `json:"envelopePath,omitempty"`
	HealthPath   string  `json:"healthPath,omitempty"`
	Routes       []Route `json:"routes,omitempty"`
}

// BaseURL returns the scheme and authority used for every call to the service.
func (s ServiceDescriptor) BaseURL() string {
	return "http://" + net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// AdapterName resolves the adapter reference, defaulting to the service id.
func (s ServiceDescriptor) AdapterName() string {
	if name := strings.TrimSpace(s.Adapter); name != "" {
		return name
	}
	return s.ID
}

// HasLiveness reports whether the service declared a liveness endpoint.
func (s ServiceDescriptor) HasLiveness() bool {
	return strings.TrimSpace(s.HealthPath) != ""
}

func (s ServiceDescriptor) String() string {
	return fmt.Sprintf("%s(%s:%d)", s.ID, s.Host, s.Port)
}

// CallRequest is the generic call envelope accepted by the gateway.
type CallRequest struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

// CallError is the structured failure reported to callers.
type CallError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// CallResult is the outcome of dispatching one CallRequest.
type CallResult struct {
	Success   bool            `json:"success"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *CallError      `json:"error,omitempty"`
	Latency   time.Duration   `json:"-"`
	ServiceID string          `json:"service,omitempty"`
	Fallback  bool            `json:"-"`
}

// Succeeded builds a successful result.
func Succeeded(serviceID string, payload json.RawMessage) CallResult {
	return CallResult{Success: true, Result: payload, ServiceID: serviceID}
}

// Failed builds a failed result from err, classifying it with KindFrom.
func Failed(serviceID string, err error) CallResult {
	kind, ok := KindFrom(err)
	if !ok {
		kind = KindAdapterMismatch
	}
	return CallResult{
		ServiceID: serviceID,
		Error:     &CallError{Kind: kind, Message: MessageFrom(err)},
	}
}

// Catalog is the normalized gateway configuration.
type Catalog struct {
	Services []ServiceDescriptor
	Runtime  RuntimeConfig
}

// RuntimeConfig holds process-wide gateway settings.
type RuntimeConfig struct {
	ListenAddress       string              `json:"listenAddress"`
	RouteTimeoutSeconds int                 `json:"routeTimeoutSeconds"`
	Probe               ProbeConfig         `json:"probe"`
	Cache               CacheConfig         `json:"cache"`
	Audit               AuditConfig         `json:"audit"`
	Observability       ObservabilityConfig `json:"observability"`
}

// RouteTimeout returns the per-call bound for primary and fallback calls.
func (r RuntimeConfig) RouteTimeout() time.Duration {
	return durationFromSeconds(r.RouteTimeoutSeconds, DefaultRouteTimeoutSeconds)
}

type ProbeConfig struct {
	IntervalSeconds   int `json:"intervalSeconds"`
	TimeoutSeconds    int `json:"timeoutSeconds"`
	DegradedLatencyMs int `json:"degradedLatencyMs"`
	Concurrency       int `json:"concurrency"`
}

func (p ProbeConfig) Interval() time.Duration {
	return durationFromSeconds(p.IntervalSeconds, DefaultProbeIntervalSeconds)
}

func (p ProbeConfig) Timeout() time.Duration {
	return durationFromSeconds(p.TimeoutSeconds, DefaultProbeTimeoutSeconds)
}

func (p ProbeConfig) DegradedLatency() time.Duration {
	if p.DegradedLatencyMs <= 0 {
		return time.Duration(DefaultDegradedLatencyMs) * time.Millisecond
	}
	return time.Duration(p.DegradedLatencyMs) * time.Millisecond
}

type CacheConfig struct {
	// Path enables the bbolt-backed store; empty keeps entries in memory.
	Path                  string `json:"path,omitempty"`
	ComputeTimeoutSeconds int    `json:"computeTimeoutSeconds"`
}

func (c CacheConfig) ComputeTimeout() time.Duration {
	return durationFromSeconds(c.ComputeTimeoutSeconds, DefaultCacheComputeTimeoutSeconds)
}

type AuditConfig struct {
	QueueSize           int            `json:"queueSize"`
	MaxSummaryBytes     int            `json:"maxSummaryBytes"`
	WriteTimeoutSeconds int            `json:"writeTimeoutSeconds"`
	Postgres            PostgresConfig `json:"postgres"`
}

func (a AuditConfig) WriteTimeout() time.Duration {
	return durationFromSeconds(a.WriteTimeoutSeconds, DefaultAuditWriteTimeoutSeconds)
}

// PostgresConfig addresses the audit database. An empty Host disables it.
type PostgresConfig struct {
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"-"`
	Database string `json:"database,omitempty"`
	SSLMode  string `json:"sslMode,omitempty"`
}

// Enabled reports whether a database was configured.
func (p PostgresConfig) Enabled() bool {
	return strings.TrimSpace(p.Host) != ""
}

type ObservabilityConfig struct {
	ListenAddress string `json:"listenAddress"`
	Metrics       bool   `json:"metrics"`
}

func durationFromSeconds(value, fallback int) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Second
}
