// Package aggregator keeps the last known health of every backend service
// and rolls it up into a system state.
package aggregator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"zend/internal/domain"
	"zend/internal/infra/telemetry"
)

// Prober classifies the health of one service.
type Prober interface {
	Check(ctx context.Context, svc domain.ServiceDescriptor) domain.HealthStatus
}

type Options struct {
	Concurrency int
	Logger      *zap.Logger
	Metrics     domain.Metrics
}

// HealthAggregator probes services and publishes immutable snapshots.
// Readers load the current snapshot without locking; writers serialize on
// writeMu and replace the whole map.
type HealthAggregator struct {
	services []domain.ServiceDescriptor
	byID     map[string]domain.ServiceDescriptor
	prober   Prober
	limit    int
	logger   *zap.Logger
	metrics  domain.Metrics

	writeMu  sync.Mutex
	snapshot atomic.Pointer[map[string]domain.HealthStatus]
	probing  atomic.Bool
}

func NewHealthAggregator(services []domain.ServiceDescriptor, prober Prober, opts Options) *HealthAggregator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	limit := opts.Concurrency
	if limit <= 0 {
		limit = domain.DefaultProbeConcurrency
	}

	agg := &HealthAggregator{
		services: append([]domain.ServiceDescriptor(nil), services...),
		byID:     make(map[string]domain.ServiceDescriptor, len(services)),
		prober:   prober,
		limit:    limit,
		logger:   logger.Named("health"),
		metrics:  metrics,
	}
	initial := make(map[string]domain.HealthStatus, len(services))
	for _, svc := range services {
		agg.byID[svc.ID] = svc
		initial[svc.ID] = domain.HealthStatus{
			ServiceID: svc.ID,
			State:     domain.HealthUnknown,
			Message:   "not probed yet",
		}
	}
	agg.snapshot.Store(&initial)
	return agg
}

// ProbeOne probes a single service and records the result.
func (a *HealthAggregator) ProbeOne(ctx context.Context, serviceID string) (domain.HealthStatus, error) {
	svc, ok := a.byID[serviceID]
	if !ok {
		return domain.HealthStatus{}, fmt.Errorf("probe %q: %w", serviceID, domain.ErrUnknownService)
	}
	return a.probe(ctx, svc), nil
}

// ProbeAll probes every service with bounded concurrency. Individual
// failures are recorded as states and never abort the sweep.
func (a *HealthAggregator) ProbeAll(ctx context.Context) map[string]domain.HealthStatus {
	var group errgroup.Group
	group.SetLimit(a.limit)
	for _, svc := range a.services {
		group.Go(func() error {
			a.probe(ctx, svc)
			return nil
		})
	}
	_ = group.Wait()
	a.metrics.SetSystemHealth(a.System().State)
	return a.Snapshot()
}

// Run probes on every tick until ctx is done. Overlapping sweeps are skipped.
func (a *HealthAggregator) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Duration(domain.DefaultProbeIntervalSeconds) * time.Second
	}
	a.sweep(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.sweep(ctx)
		}
	}
}

func (a *HealthAggregator) sweep(ctx context.Context) {
	if !a.probing.CompareAndSwap(false, true) {
		return
	}
	defer a.probing.Store(false)
	a.ProbeAll(ctx)
}

// Snapshot returns a copy of the last known status of every service.
func (a *HealthAggregator) Snapshot() map[string]domain.HealthStatus {
	current := *a.snapshot.Load()
	out := make(map[string]domain.HealthStatus, len(current))
	for id, status := range current {
		out[id] = status
	}
	return out
}

// Status returns the last known status of one service.
func (a *HealthAggregator) Status(serviceID string) (domain.HealthStatus, bool) {
	status, ok := (*a.snapshot.Load())[serviceID]
	return status, ok
}

// System rolls the snapshot up in registration order.
func (a *HealthAggregator) System() domain.SystemHealth {
	current := *a.snapshot.Load()
	statuses := make([]domain.HealthStatus, 0, len(a.services))
	for _, svc := range a.services {
		statuses = append(statuses, current[svc.ID])
	}
	return domain.RollUp(statuses)
}

func (a *HealthAggregator) probe(ctx context.Context, svc domain.ServiceDescriptor) domain.HealthStatus {
	status := a.prober.Check(ctx, svc)
	status.ServiceID = svc.ID
	status = a.record(status)
	a.metrics.ObserveProbe(svc.ID, status.State, status.Latency)
	return status
}

func (a *HealthAggregator) record(status domain.HealthStatus) domain.HealthStatus {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	current := *a.snapshot.Load()
	prev := current[status.ServiceID]
	switch status.State {
	case domain.HealthHealthy:
		status.ConsecutiveFailures = 0
	case domain.HealthDegraded, domain.HealthUnreachable:
		status.ConsecutiveFailures = prev.ConsecutiveFailures + 1
	default:
		status.ConsecutiveFailures = prev.ConsecutiveFailures
	}

	next := make(map[string]domain.HealthStatus, len(current))
	for id, existing := range current {
		next[id] = existing
	}
	next[status.ServiceID] = status
	a.snapshot.Store(&next)

	if prev.State != status.State {
		a.logger.Info("service health changed",
			telemetry.EventField(telemetry.EventProbeTransition),
			telemetry.ServiceField(status.ServiceID),
			telemetry.StateField(string(status.State)),
			zap.String("previous", string(prev.State)),
		)
	}
	if status.State == domain.HealthUnreachable || status.State == domain.HealthDegraded {
		a.logger.Warn("probe failed",
			telemetry.EventField(telemetry.EventProbeFailure),
			telemetry.ServiceField(status.ServiceID),
			telemetry.StateField(string(status.State)),
			telemetry.DurationField(status.Latency),
			zap.Int("consecutive_failures", status.ConsecutiveFailures),
			zap.String("message", status.Message),
		)
	}
	return status
}
