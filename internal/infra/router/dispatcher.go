package router

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"zend/internal/domain"
	"zend/internal/infra/audit"
	"zend/internal/infra/telemetry"
)

// Resolver maps a tool name onto its owning service.
type Resolver interface {
	Resolve(tool string) (domain.ServiceDescriptor, error)
}

// Caller performs the primary and fallback protocol paths.
type Caller interface {
	Primary(ctx context.Context, svc domain.ServiceDescriptor, call domain.CallRequest) (json.RawMessage, error)
	Fallback(ctx context.Context, svc domain.ServiceDescriptor, call domain.CallRequest) (json.RawMessage, error)
	HasFallback(serviceID string) bool
}

// Auditor accepts audit records without blocking.
type Auditor interface {
	Record(rec domain.AuditRecord) error
}

// HealthView exposes the last known health of a service.
type HealthView interface {
	Status(serviceID string) (domain.HealthStatus, bool)
}

type Options struct {
	Timeout         time.Duration
	MaxSummaryBytes int
	Health          HealthView
	Logger          *zap.Logger
	Metrics         domain.Metrics
	// Now overrides the audit timestamp clock (tests).
	Now func() time.Time
}

// Dispatcher routes one call envelope to its backend and produces exactly
// one result and one audit record.
type Dispatcher struct {
	resolver   Resolver
	caller     Caller
	auditor    Auditor
	health     HealthView
	timeout    time.Duration
	maxSummary int
	logger     *zap.Logger
	metrics    domain.Metrics
	now        func() time.Time
}

func NewDispatcher(resolver Resolver, caller Caller, auditor Auditor, opts Options) *Dispatcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Duration(domain.DefaultRouteTimeoutSeconds) * time.Second
	}
	maxSummary := opts.MaxSummaryBytes
	if maxSummary <= 0 {
		maxSummary = domain.DefaultAuditMaxSummaryBytes
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		resolver:   resolver,
		caller:     caller,
		auditor:    auditor,
		health:     opts.Health,
		timeout:    timeout,
		maxSummary: maxSummary,
		logger:     logger.Named("dispatcher"),
		metrics:    metrics,
		now:        now,
	}
}

// Call dispatches req. It never returns an error; failures are reported in
// the result.
func (d *Dispatcher) Call(ctx context.Context, req domain.CallRequest) domain.CallResult {
	started := d.now()
	start := time.Now()
	ctx, meta := telemetry.EnsureRequestMeta(ctx, "")
	logger := telemetry.LoggerWithRequest(ctx, d.logger)

	var (
		result domain.CallResult
		path   = domain.RoutePathNone
	)
	svc, err := d.resolver.Resolve(req.Tool)
	if err != nil {
		result = domain.Failed("", err)
		logger.Info("unknown tool",
			telemetry.EventField(telemetry.EventUnknownTool),
			telemetry.ToolField(req.Tool),
		)
	} else {
		result, path = d.dispatch(ctx, logger, svc, req)
	}

	result.Latency = clampDuration(time.Since(start))
	d.finish(logger, meta, started, req, result, path)
	return result
}

func (d *Dispatcher) dispatch(ctx context.Context, logger *zap.Logger, svc domain.ServiceDescriptor, req domain.CallRequest) (domain.CallResult, domain.RoutePath) {
	hasFallback := d.caller.HasFallback(svc.ID)

	var primaryErr error
	if svc.Envelope {
		payload, err := d.callWithTimeout(ctx, svc, req, d.caller.Primary)
		if err == nil {
			return domain.Succeeded(svc.ID, payload), domain.RoutePathPrimary
		}
		if !hasFallback || !fallbackEligible(ctx, err) {
			return domain.Failed(svc.ID, err), domain.RoutePathPrimary
		}
		logger.Warn("primary call failed, trying native adapter",
			d.failureFields(telemetry.EventPrimaryFailure, svc, req, err)...,
		)
		primaryErr = err
	} else if !hasFallback {
		err := domain.E(domain.KindAdapterMismatch, "dispatch "+svc.ID, "", domain.ErrNoAdapter)
		return domain.Failed(svc.ID, err), domain.RoutePathNone
	}

	d.metrics.ObserveFallback(svc.ID)
	payload, err := d.callWithTimeout(ctx, svc, req, d.caller.Fallback)
	if err != nil {
		logger.Warn("fallback call failed",
			d.failureFields(telemetry.EventFallbackFailure, svc, req, err)...,
		)
		// A fallback that never reached the backend says nothing new about it.
		if primaryErr != nil && errors.Is(err, domain.ErrNotTranslated) {
			err = primaryErr
		}
		result := domain.Failed(svc.ID, err)
		result.Fallback = true
		return result, domain.RoutePathFallback
	}
	result := domain.Succeeded(svc.ID, payload)
	result.Fallback = true
	return result, domain.RoutePathFallback
}

type callFunc func(ctx context.Context, svc domain.ServiceDescriptor, call domain.CallRequest) (json.RawMessage, error)

func (d *Dispatcher) callWithTimeout(ctx context.Context, svc domain.ServiceDescriptor, req domain.CallRequest, fn callFunc) (json.RawMessage, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	payload, err := fn(callCtx, svc, req)
	if err != nil && callCtx.Err() == context.DeadlineExceeded {
		if _, classified := domain.KindFrom(err); !classified {
			err = domain.E(domain.KindTimeout, "call "+svc.ID, "", err)
		}
	}
	return payload, err
}

// fallbackEligible reports whether a primary failure may be retried through
// the native adapter. Backend errors and timeouts are final.
func fallbackEligible(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	kind, ok := domain.KindFrom(err)
	if !ok {
		return true
	}
	switch kind {
	case domain.KindServiceUnreachable, domain.KindAdapterMismatch:
		return true
	default:
		return false
	}
}

func (d *Dispatcher) finish(logger *zap.Logger, meta telemetry.RequestMeta, started time.Time, req domain.CallRequest, result domain.CallResult, path domain.RoutePath) {
	var kind domain.ErrorKind
	if result.Error != nil {
		kind = result.Error.Kind
	}

	rec := domain.AuditRecord{
		Timestamp:       started,
		RequestID:       meta.RequestID,
		Tool:            req.Tool,
		Service:         result.ServiceID,
		Duration:        result.Latency,
		Status:          domain.StatusFor(result.Success),
		ErrorKind:       kind,
		ArgumentSummary: audit.Summarize(req.Arguments, d.maxSummary),
	}
	if d.auditor != nil {
		_ = d.auditor.Record(rec)
	}

	status := domain.RouteStatusSuccess
	if !result.Success {
		status = domain.RouteStatusError
	}
	d.metrics.ObserveRoute(domain.RouteMetric{
		Service:  result.ServiceID,
		Status:   status,
		Kind:     kind,
		Path:     path,
		Duration: result.Latency,
	})

	fields := []zap.Field{
		telemetry.ToolField(req.Tool),
		telemetry.ServiceField(result.ServiceID),
		telemetry.PathField(path),
		telemetry.DurationField(result.Latency),
	}
	if result.Success {
		logger.Debug("call succeeded", append(fields, telemetry.EventField(telemetry.EventCallSuccess))...)
		return
	}
	fields = append(fields,
		telemetry.EventField(telemetry.EventCallFailure),
		telemetry.KindField(kind),
		zap.String("message", result.Error.Message),
	)
	if result.ServiceID != "" {
		fields = append(fields, d.healthFields(result.ServiceID)...)
	}
	logger.Warn("call failed", fields...)
}

func (d *Dispatcher) failureFields(event string, svc domain.ServiceDescriptor, req domain.CallRequest, err error) []zap.Field {
	fields := []zap.Field{
		telemetry.EventField(event),
		telemetry.ServiceField(svc.ID),
		telemetry.ToolField(req.Tool),
		zap.Error(err),
	}
	if kind, ok := domain.KindFrom(err); ok {
		fields = append(fields, telemetry.KindField(kind))
	}
	return append(fields, d.healthFields(svc.ID)...)
}

func (d *Dispatcher) healthFields(serviceID string) []zap.Field {
	if d.health == nil {
		return nil
	}
	status, ok := d.health.Status(serviceID)
	if !ok {
		return nil
	}
	return []zap.Field{
		zap.String("last_known_state", string(status.State)),
		zap.Int("consecutive_failures", status.ConsecutiveFailures),
	}
}

func clampDuration(d time.Duration) time.Duration {
	if d < time.Microsecond {
		return time.Microsecond
	}
	return d
}
