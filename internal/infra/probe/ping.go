package probe

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"zend/internal/domain"
	"zend/internal/infra/transport"
)

// Doer sends a native request to a service.
type Doer interface {
	Do(ctx context.Context, svc domain.ServiceDescriptor, req transport.Request) (transport.Response, error)
}

// HTTPProbe checks a service through its declared liveness endpoint.
type HTTPProbe struct {
	Doer            Doer
	Timeout         time.Duration
	DegradedLatency time.Duration
	// Now overrides the clock (tests).
	Now func() time.Time
}

// Check classifies one service. It never returns an error; failures are
// encoded in the returned state.
func (p *HTTPProbe) Check(ctx context.Context, svc domain.ServiceDescriptor) domain.HealthStatus {
	now := p.now()
	status := domain.HealthStatus{ServiceID: svc.ID, LastChecked: now}
	if !svc.HasLiveness() {
		status.State = domain.HealthUnknown
		status.Message = domain.ErrNoLiveness.Error()
		return status
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = time.Duration(domain.DefaultProbeTimeoutSeconds) * time.Second
	}
	degraded := p.DegradedLatency
	if degraded <= 0 {
		degraded = time.Duration(domain.DefaultDegradedLatencyMs) * time.Millisecond
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := p.Doer.Do(probeCtx, svc, transport.Request{Method: http.MethodGet, Path: svc.HealthPath})
	latency := time.Since(start)
	status.Latency = latency
	status.LatencyMs = latency.Milliseconds()

	switch {
	case err != nil:
		status.State = domain.HealthUnreachable
		status.Message = domain.MessageFrom(err)
	case !resp.OK():
		status.State = domain.HealthDegraded
		status.Message = fmt.Sprintf("liveness returned status %d", resp.Status)
	case latency > degraded:
		status.State = domain.HealthDegraded
		status.Message = fmt.Sprintf("liveness took %s", latency.Round(time.Millisecond))
	default:
		status.State = domain.HealthHealthy
	}
	return status
}

func (p *HTTPProbe) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}
