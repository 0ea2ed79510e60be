package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"zend/internal/domain"
	"zend/internal/infra/adapter"
	"zend/internal/infra/aggregator"
	"zend/internal/infra/audit"
	"zend/internal/infra/cache"
	"zend/internal/infra/catalog"
	"zend/internal/infra/gateway"
	"zend/internal/infra/probe"
	"zend/internal/infra/registry"
	"zend/internal/infra/router"
	"zend/internal/infra/telemetry"
	"zend/internal/infra/transport"
)

const (
	auditDrainTimeout  = 10 * time.Second
	auditSchemaTimeout = 10 * time.Second
)

func NewMetricsRegistry() *prometheus.Registry {
	metricsRegistry := prometheus.NewRegistry()
	metricsRegistry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	metricsRegistry.MustRegister(prometheus.NewGoCollector())
	return metricsRegistry
}

func NewMetrics(metricsRegistry *prometheus.Registry) domain.Metrics {
	return telemetry.NewPrometheusMetrics(metricsRegistry)
}

// LoadCatalog reads the configuration file and applies command line overrides.
func LoadCatalog(ctx context.Context, cfg ServeConfig, logger *zap.Logger) (domain.Catalog, error) {
	loaded, err := catalog.NewLoader(logger).Load(ctx, cfg.ConfigPath)
	if err != nil {
		return domain.Catalog{}, err
	}
	if cfg.ListenAddress != "" {
		loaded.Runtime.ListenAddress = cfg.ListenAddress
	}
	return loaded, nil
}

func NewRegistry(cat domain.Catalog) (*registry.Registry, error) {
	return registry.New(cat.Services)
}

func NewTransport(logger *zap.Logger) *transport.HTTPTransport {
	return transport.NewHTTPTransport(transport.Options{
		Logger:             logger,
		MaxConnsPerService: domain.DefaultMaxConnsPerService,
	})
}

func NewAdapterSet() *adapter.Set {
	return adapter.DefaultSet()
}

func NewCaller(doer *transport.HTTPTransport, set *adapter.Set, reg *registry.Registry, logger *zap.Logger) (*adapter.Caller, error) {
	return adapter.NewCaller(doer, set, reg.Services(), logger)
}

func NewProbe(doer *transport.HTTPTransport, cat domain.Catalog) *probe.HTTPProbe {
	return &probe.HTTPProbe{
		Doer:            doer,
		Timeout:         cat.Runtime.Probe.Timeout(),
		DegradedLatency: cat.Runtime.Probe.DegradedLatency(),
	}
}

func NewHealthAggregator(reg *registry.Registry, prober *probe.HTTPProbe, cat domain.Catalog, metrics domain.Metrics, logger *zap.Logger) *aggregator.HealthAggregator {
	return aggregator.NewHealthAggregator(reg.Services(), prober, aggregator.Options{
		Concurrency: cat.Runtime.Probe.Concurrency,
		Logger:      logger,
		Metrics:     metrics,
	})
}

// NewAuditSink prefers the database when one is configured and falls back to
// the log sink when it cannot be reached at startup.
func NewAuditSink(ctx context.Context, cat domain.Catalog, logger *zap.Logger) (audit.Sink, func(), error) {
	logSink := audit.NewLogSink(logger)
	pgCfg := cat.Runtime.Audit.Postgres
	if !pgCfg.Enabled() {
		return logSink, func() {}, nil
	}

	sink, err := audit.OpenPostgresSink(pgCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit database: %w", err)
	}
	initCtx, cancel := context.WithTimeout(ctx, auditSchemaTimeout)
	defer cancel()
	if err := sink.InitSchema(initCtx); err != nil {
		logger.Warn("audit database unavailable, writing audit records to the log",
			zap.String("host", pgCfg.Host),
			zap.Error(err),
		)
		_ = sink.Close()
		return logSink, func() {}, nil
	}

	cleanup := func() {
		if err := sink.Close(); err != nil {
			logger.Warn("audit database close failed", zap.Error(err))
		}
	}
	return sink, cleanup, nil
}

// NewAuditWriter starts the audit consumer. Its cleanup drains queued records
// before the sink is closed.
func NewAuditWriter(sink audit.Sink, cat domain.Catalog, metrics domain.Metrics, logger *zap.Logger) (*audit.Writer, func()) {
	writer := audit.NewWriter(sink, audit.Options{
		QueueSize:    cat.Runtime.Audit.QueueSize,
		WriteTimeout: cat.Runtime.Audit.WriteTimeout(),
		Logger:       logger,
		Metrics:      metrics,
	})
	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), auditDrainTimeout)
		defer cancel()
		if err := writer.Close(ctx); err != nil {
			logger.Warn("audit drain incomplete", zap.Error(err))
		}
	}
	return writer, cleanup
}

// NewCacheStore opens the bbolt store when a path is configured.
func NewCacheStore(cat domain.Catalog, logger *zap.Logger) (cache.Store, func(), error) {
	path := cat.Runtime.Cache.Path
	if path == "" {
		return cache.NewMemoryStore(), func() {}, nil
	}
	store, err := cache.OpenBoltStore(path)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := store.Close(); err != nil && !errors.Is(err, cache.ErrStoreClosed) {
			logger.Warn("cache store close failed", zap.String("path", path), zap.Error(err))
		}
	}
	return store, cleanup, nil
}

func NewCache(store cache.Store, cat domain.Catalog, metrics domain.Metrics, logger *zap.Logger) *cache.Cache {
	return cache.New(cache.Options{
		Store:          store,
		ComputeTimeout: cat.Runtime.Cache.ComputeTimeout(),
		Logger:         logger,
		Metrics:        metrics,
	})
}

func NewDispatcher(
	reg *registry.Registry,
	caller *adapter.Caller,
	writer *audit.Writer,
	health *aggregator.HealthAggregator,
	cat domain.Catalog,
	metrics domain.Metrics,
	logger *zap.Logger,
) *router.Dispatcher {
	return router.NewDispatcher(reg, caller, writer, router.Options{
		Timeout:         cat.Runtime.RouteTimeout(),
		MaxSummaryBytes: cat.Runtime.Audit.MaxSummaryBytes,
		Health:          health,
		Logger:          logger,
		Metrics:         metrics,
	})
}

func NewGatewayServer(
	dispatcher *router.Dispatcher,
	reg *registry.Registry,
	health *aggregator.HealthAggregator,
	aggregates *cache.Cache,
	cat domain.Catalog,
	metricsRegistry *prometheus.Registry,
	logger *zap.Logger,
) *gateway.Server {
	opts := gateway.Options{
		Addr:   cat.Runtime.ListenAddress,
		Logger: logger,
	}
	if cat.Runtime.Observability.Metrics {
		opts.Gatherer = metricsRegistry
	}
	return gateway.NewServer(dispatcher, reg, health, aggregates, opts)
}
