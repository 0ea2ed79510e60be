//go:build wireinject
// +build wireinject

package app

import "github.com/google/wire"

var CoreInfraSet = wire.NewSet(
	NewLogging,
	NewLogger,
	NewMetricsRegistry,
	NewMetrics,
	NewTransport,
	NewAdapterSet,
)

var GatewaySet = wire.NewSet(
	LoadCatalog,
	NewRegistry,
	NewCaller,
	NewProbe,
	NewHealthAggregator,
	NewAuditSink,
	NewAuditWriter,
	NewCacheStore,
	NewCache,
	NewDispatcher,
	NewGatewayServer,
)

var AppSet = wire.NewSet(
	CoreInfraSet,
	GatewaySet,
	wire.Struct(new(ApplicationOptions), "*"),
	NewApplication,
)
