package app

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"zend/internal/domain"
	"zend/internal/infra/aggregator"
	"zend/internal/infra/gateway"
	"zend/internal/infra/telemetry"
)

// Application wires the gateway runtime and its background workers.
type Application struct {
	ctx        context.Context
	configPath string

	logger   *zap.Logger
	catalog  domain.Catalog
	registry *prometheus.Registry
	health   *aggregator.HealthAggregator
	server   *gateway.Server
}

// ApplicationOptions captures dependencies and settings for Application.
type ApplicationOptions struct {
	Context     context.Context
	ServeConfig ServeConfig
	Logger      *zap.Logger
	Catalog     domain.Catalog
	Registry    *prometheus.Registry
	Health      *aggregator.HealthAggregator
	Server      *gateway.Server
}

// NewApplication constructs the gateway runtime.
func NewApplication(opts ApplicationOptions) *Application {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Application{
		ctx:        ctx,
		configPath: opts.ServeConfig.ConfigPath,
		logger:     logger,
		catalog:    opts.Catalog,
		registry:   opts.Registry,
		health:     opts.Health,
		server:     opts.Server,
	}
}

// Run starts the health loop, the observability listener and the gateway and
// blocks until the context is cancelled or one of them fails.
func (a *Application) Run() error {
	runtime := a.catalog.Runtime
	a.logger.Info("configuration loaded",
		zap.String("config", a.configPath),
		zap.Int("services", len(a.catalog.Services)),
		zap.String("listen", runtime.ListenAddress),
	)

	group, ctx := errgroup.WithContext(a.ctx)

	group.Go(func() error {
		a.health.Run(ctx, runtime.Probe.Interval())
		return nil
	})

	if a.observabilityEnabled() {
		group.Go(func() error {
			err := telemetry.StartHTTPServer(ctx, telemetry.HTTPServerOptions{
				Addr:          runtime.Observability.ListenAddress,
				EnableMetrics: true,
				EnableHealthz: true,
				Health:        a.health,
				Registry:      a.registry,
			}, a.logger.Named("observability"))
			if err != nil {
				// Metrics stay reachable on the gateway listener.
				a.logger.Warn("observability server unavailable", zap.Error(err))
			}
			return nil
		})
	}

	group.Go(func() error {
		return a.server.Run(ctx)
	})

	start := time.Now()
	err := group.Wait()
	a.logger.Info("gateway shut down", telemetry.DurationField(time.Since(start)))
	return err
}

func (a *Application) observabilityEnabled() bool {
	obs := a.catalog.Runtime.Observability
	if !obs.Metrics || obs.ListenAddress == "" {
		return false
	}
	return obs.ListenAddress != a.catalog.Runtime.ListenAddress
}
