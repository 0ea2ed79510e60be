package telemetry

import (
	"time"

	"go.uber.org/zap"

	"zend/internal/domain"
)

const (
	FieldEvent      = "event"
	FieldService    = "service"
	FieldTool       = "tool"
	FieldKind       = "kind"
	FieldPath       = "path"
	FieldState      = "state"
	FieldCacheKey   = "cache_key"
	FieldDurationMs = "duration_ms"
	FieldLogSource  = "log_source"
	FieldRequestID  = "request_id"
	FieldTraceID    = "trace_id"
	FieldSpanID     = "span_id"
)

const (
	EventCallSuccess      = "call_success"
	EventCallFailure      = "call_failure"
	EventPrimaryFailure   = "primary_failure"
	EventFallbackFailure  = "fallback_failure"
	EventUnknownTool      = "unknown_tool"
	EventProbeFailure     = "probe_failure"
	EventProbeTransition  = "probe_transition"
	EventCacheUnavailable = "cache_unavailable"
	EventAuditDropped     = "audit_dropped"
	EventAuditWriteFailed = "audit_write_failed"
)

const (
	LogSourceCore = "core"
	LogSourceHTTP = "http"
)

func EventField(event string) zap.Field {
	return zap.String(FieldEvent, event)
}

func ServiceField(serviceID string) zap.Field {
	return zap.String(FieldService, serviceID)
}

func ToolField(tool string) zap.Field {
	return zap.String(FieldTool, tool)
}

func KindField(kind domain.ErrorKind) zap.Field {
	return zap.String(FieldKind, string(kind))
}

func PathField(path domain.RoutePath) zap.Field {
	return zap.String(FieldPath, string(path))
}

func StateField(state string) zap.Field {
	return zap.String(FieldState, state)
}

func CacheKeyField(key string) zap.Field {
	return zap.String(FieldCacheKey, key)
}

func DurationField(duration time.Duration) zap.Field {
	return zap.Int64(FieldDurationMs, duration.Milliseconds())
}

func RequestIDField(value string) zap.Field {
	return zap.String(FieldRequestID, value)
}

func TraceIDField(value string) zap.Field {
	return zap.String(FieldTraceID, value)
}

func SpanIDField(value string) zap.Field {
	return zap.String(FieldSpanID, value)
}
