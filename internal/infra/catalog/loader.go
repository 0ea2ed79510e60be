package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"zend/internal/domain"
)

type Loader struct {
	logger *zap.Logger
}

func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		return &Loader{logger: zap.NewNop()}
	}
	return &Loader{logger: logger.Named("catalog")}
}

func newCatalogViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	setRuntimeDefaults(v)
	return v
}

func setRuntimeDefaults(v *viper.Viper) {
	v.SetDefault("listenAddress", domain.DefaultListenAddress)
	v.SetDefault("routeTimeoutSeconds", domain.DefaultRouteTimeoutSeconds)
	v.SetDefault("probe.intervalSeconds", domain.DefaultProbeIntervalSeconds)
	v.SetDefault("probe.timeoutSeconds", domain.DefaultProbeTimeoutSeconds)
	v.SetDefault("probe.degradedLatencyMs", domain.DefaultDegradedLatencyMs)
	v.SetDefault("probe.concurrency", domain.DefaultProbeConcurrency)
	v.SetDefault("cache.computeTimeoutSeconds", domain.DefaultCacheComputeTimeoutSeconds)
	v.SetDefault("audit.queueSize", domain.DefaultAuditQueueSize)
	v.SetDefault("audit.maxSummaryBytes", domain.DefaultAuditMaxSummaryBytes)
	v.SetDefault("audit.writeTimeoutSeconds", domain.DefaultAuditWriteTimeoutSeconds)
	v.SetDefault("audit.postgres.port", domain.DefaultPostgresPort)
	v.SetDefault("audit.postgres.sslMode", domain.DefaultPostgresSSLMode)
	v.SetDefault("observability.listenAddress", domain.DefaultObservabilityListenAddress)
	v.SetDefault("observability.metrics", true)
}

type rawCatalog struct {
	Services         []rawService `mapstructure:"services"`
	rawRuntimeConfig `mapstructure:",squash"`
}

type rawService struct {
	ID           string     `mapstructure:"id"`
	Host         string     `mapstructure:"host"`
	Port         int        `mapstructure:"port"`
	Tools        []string   `mapstructure:"tools"`
	Prefixes     []string   `mapstructure:"prefixes"`
	Adapter      string     `mapstructure:"adapter"`
	Envelope     *bool      `mapstructure:"envelope"`
	EnvelopePath string     `mapstructure:"envelopePath"`
	HealthPath   *string    `mapstructure:"healthPath"`
	Routes       []rawRoute `mapstructure:"routes"`
}

type rawRoute struct {
	Tool   string `mapstructure:"tool"`
	Method string `mapstructure:"method"`
	Path   string `mapstructure:"path"`
}

type rawRuntimeConfig struct {
	ListenAddress       string                 `mapstructure:"listenAddress"`
	RouteTimeoutSeconds int                    `mapstructure:"routeTimeoutSeconds"`
	Probe               rawProbeConfig         `mapstructure:"probe"`
	Cache               rawCacheConfig         `mapstructure:"cache"`
	Audit               rawAuditConfig         `mapstructure:"audit"`
	Observability       rawObservabilityConfig `mapstructure:"observability"`
}

type rawProbeConfig struct {
	IntervalSeconds   int `mapstructure:"intervalSeconds"`
	TimeoutSeconds    int `mapstructure:"timeoutSeconds"`
	DegradedLatencyMs int `mapstructure:"degradedLatencyMs"`
	Concurrency       int `mapstructure:"concurrency"`
}

type rawCacheConfig struct {
	Path                  string `mapstructure:"path"`
	ComputeTimeoutSeconds int    `mapstructure:"computeTimeoutSeconds"`
}

type rawAuditConfig struct {
	QueueSize           int               `mapstructure:"queueSize"`
	MaxSummaryBytes     int               `mapstructure:"maxSummaryBytes"`
	WriteTimeoutSeconds int               `mapstructure:"writeTimeoutSeconds"`
	Postgres            rawPostgresConfig `mapstructure:"postgres"`
}

type rawPostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslMode"`
}

type rawObservabilityConfig struct {
	ListenAddress string `mapstructure:"listenAddress"`
	Metrics       bool   `mapstructure:"metrics"`
}

// Load reads, expands and validates the gateway configuration at path.
func (l *Loader) Load(ctx context.Context, path string) (domain.Catalog, error) {
	if path == "" {
		return domain.Catalog{}, errors.New("config path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Catalog{}, fmt.Errorf("read config: %w", err)
	}
	return l.Parse(ctx, data)
}

// Parse is Load on an in-memory document.
func (l *Loader) Parse(ctx context.Context, data []byte) (domain.Catalog, error) {
	expanded, missing, err := expandConfigEnv(data)
	if err != nil {
		return domain.Catalog{}, err
	}
	if len(missing) > 0 {
		l.logger.Warn("missing environment variables in config", zap.Strings("missing", missing))
	}

	v := newCatalogViper()
	if err := v.ReadConfig(bytes.NewBufferString(expanded)); err != nil {
		return domain.Catalog{}, fmt.Errorf("parse config: %w", err)
	}

	var cfg rawCatalog
	if err := v.Unmarshal(&cfg); err != nil {
		return domain.Catalog{}, fmt.Errorf("decode config: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return domain.Catalog{}, err
	}

	var validationErrors []string
	runtime, runtimeErrs := normalizeRuntimeConfig(cfg.rawRuntimeConfig)
	validationErrors = append(validationErrors, runtimeErrs...)

	services := make([]domain.ServiceDescriptor, 0, len(cfg.Services))
	idSeen := make(map[string]struct{}, len(cfg.Services))
	toolOwner := make(map[string]string)
	for i, raw := range cfg.Services {
		svc := normalizeService(raw)
		if _, exists := idSeen[svc.ID]; exists {
			validationErrors = append(validationErrors, fmt.Sprintf("services[%d]: duplicate id %q", i, svc.ID))
		} else if svc.ID != "" {
			idSeen[svc.ID] = struct{}{}
		}
		for _, tool := range svc.Tools {
			if owner, exists := toolOwner[tool]; exists {
				validationErrors = append(validationErrors, fmt.Sprintf("services[%d]: tool %q already declared by %q", i, tool, owner))
				continue
			}
			toolOwner[tool] = svc.ID
		}

		if errs := validateService(svc, i); len(errs) > 0 {
			validationErrors = append(validationErrors, errs...)
			continue
		}
		if !svc.HasLiveness() {
			l.logger.Warn("service declares no liveness endpoint; health will stay unknown",
				zap.String("service", svc.ID),
			)
		}
		services = append(services, svc)
	}

	if len(validationErrors) > 0 {
		return domain.Catalog{}, errors.New(strings.Join(validationErrors, "; "))
	}

	return domain.Catalog{
		Services: services,
		Runtime:  runtime,
	}, nil
}

func normalizeService(raw rawService) domain.ServiceDescriptor {
	svc := domain.ServiceDescriptor{
		ID:           strings.TrimSpace(raw.ID),
		Host:         strings.TrimSpace(raw.Host),
		Port:         raw.Port,
		Tools:        trimAll(raw.Tools),
		Prefixes:     trimAll(raw.Prefixes),
		Adapter:      strings.ToLower(strings.TrimSpace(raw.Adapter)),
		Envelope:     true,
		EnvelopePath: strings.TrimSpace(raw.EnvelopePath),
		HealthPath:   domain.DefaultHealthPath,
	}
	if raw.Envelope != nil {
		svc.Envelope = *raw.Envelope
	}
	if svc.Envelope && svc.EnvelopePath == "" {
		svc.EnvelopePath = domain.DefaultEnvelopePath
	}
	if raw.HealthPath != nil {
		svc.HealthPath = strings.TrimSpace(*raw.HealthPath)
	}
	for _, route := range raw.Routes {
		method := strings.ToUpper(strings.TrimSpace(route.Method))
		if method == "" {
			method = http.MethodPost
		}
		svc.Routes = append(svc.Routes, domain.Route{
			Tool:   strings.TrimSpace(route.Tool),
			Method: method,
			Path:   strings.TrimSpace(route.Path),
		})
	}
	return svc
}

func trimAll(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func validateService(svc domain.ServiceDescriptor, index int) []string {
	var errs []string
	prefix := fmt.Sprintf("services[%d]", index)
	if svc.ID == "" {
		errs = append(errs, prefix+": id is required")
	} else {
		prefix = fmt.Sprintf("services[%d] (%s)", index, svc.ID)
	}
	if svc.Host == "" {
		errs = append(errs, prefix+": host is required")
	}
	if svc.Port <= 0 || svc.Port > 65535 {
		errs = append(errs, prefix+": port must be between 1 and 65535")
	}
	if len(svc.Tools) == 0 && len(svc.Prefixes) == 0 {
		errs = append(errs, prefix+": at least one tool or prefix is required")
	}
	if svc.Envelope && !strings.HasPrefix(svc.EnvelopePath, "/") {
		errs = append(errs, prefix+": envelopePath must start with /")
	}
	if svc.HealthPath != "" && !strings.HasPrefix(svc.HealthPath, "/") {
		errs = append(errs, prefix+": healthPath must start with /")
	}
	for i, route := range svc.Routes {
		if route.Tool == "" {
			errs = append(errs, fmt.Sprintf("%s: routes[%d].tool is required", prefix, i))
		}
		if !strings.HasPrefix(route.Path, "/") {
			errs = append(errs, fmt.Sprintf("%s: routes[%d].path must start with /", prefix, i))
		}
		if !allowedRouteMethod(route.Method) {
			errs = append(errs, fmt.Sprintf("%s: routes[%d].method %q is not supported", prefix, i, route.Method))
		}
	}
	return errs
}

func allowedRouteMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

func normalizeRuntimeConfig(cfg rawRuntimeConfig) (domain.RuntimeConfig, []string) {
	var errs []string

	listen := strings.TrimSpace(cfg.ListenAddress)
	if err := validateListenAddress(listen); err != nil {
		errs = append(errs, "listenAddress "+err.Error())
	}
	if cfg.RouteTimeoutSeconds <= 0 {
		errs = append(errs, "routeTimeoutSeconds must be > 0")
	}

	probe, probeErrs := normalizeProbeConfig(cfg.Probe)
	errs = append(errs, probeErrs...)

	if cfg.Cache.ComputeTimeoutSeconds <= 0 {
		errs = append(errs, "cache.computeTimeoutSeconds must be > 0")
	}

	audit, auditErrs := normalizeAuditConfig(cfg.Audit)
	errs = append(errs, auditErrs...)

	observability, observabilityErrs := normalizeObservabilityConfig(cfg.Observability)
	errs = append(errs, observabilityErrs...)

	return domain.RuntimeConfig{
		ListenAddress:       listen,
		RouteTimeoutSeconds: cfg.RouteTimeoutSeconds,
		Probe:               probe,
		Cache: domain.CacheConfig{
			Path:                  strings.TrimSpace(cfg.Cache.Path),
			ComputeTimeoutSeconds: cfg.Cache.ComputeTimeoutSeconds,
		},
		Audit:         audit,
		Observability: observability,
	}, errs
}

func normalizeProbeConfig(cfg rawProbeConfig) (domain.ProbeConfig, []string) {
	var errs []string
	if cfg.IntervalSeconds <= 0 {
		errs = append(errs, "probe.intervalSeconds must be > 0")
	}
	if cfg.TimeoutSeconds <= 0 {
		errs = append(errs, "probe.timeoutSeconds must be > 0")
	}
	if cfg.IntervalSeconds > 0 && cfg.TimeoutSeconds > cfg.IntervalSeconds {
		errs = append(errs, "probe.timeoutSeconds must be <= probe.intervalSeconds")
	}
	if cfg.DegradedLatencyMs <= 0 {
		errs = append(errs, "probe.degradedLatencyMs must be > 0")
	}
	concurrency := cfg.Concurrency
	if concurrency < 0 {
		errs = append(errs, "probe.concurrency must be >= 0")
	}
	if concurrency <= 0 {
		concurrency = domain.DefaultProbeConcurrency
	}
	return domain.ProbeConfig{
		IntervalSeconds:   cfg.IntervalSeconds,
		TimeoutSeconds:    cfg.TimeoutSeconds,
		DegradedLatencyMs: cfg.DegradedLatencyMs,
		Concurrency:       concurrency,
	}, errs
}

func normalizeAuditConfig(cfg rawAuditConfig) (domain.AuditConfig, []string) {
	var errs []string
	if cfg.QueueSize <= 0 {
		errs = append(errs, "audit.queueSize must be > 0")
	}
	if cfg.MaxSummaryBytes <= 0 {
		errs = append(errs, "audit.maxSummaryBytes must be > 0")
	}
	if cfg.WriteTimeoutSeconds <= 0 {
		errs = append(errs, "audit.writeTimeoutSeconds must be > 0")
	}

	pg := domain.PostgresConfig{
		Host:     strings.TrimSpace(cfg.Postgres.Host),
		Port:     cfg.Postgres.Port,
		User:     strings.TrimSpace(cfg.Postgres.User),
		Password: cfg.Postgres.Password,
		Database: strings.TrimSpace(cfg.Postgres.Database),
		SSLMode:  strings.TrimSpace(cfg.Postgres.SSLMode),
	}
	if pg.Enabled() {
		if pg.Port <= 0 {
			errs = append(errs, "audit.postgres.port must be > 0")
		}
		if pg.User == "" {
			errs = append(errs, "audit.postgres.user is required")
		}
		if pg.Database == "" {
			errs = append(errs, "audit.postgres.database is required")
		}
		switch pg.SSLMode {
		case "disable", "require", "verify-ca", "verify-full":
		default:
			errs = append(errs, "audit.postgres.sslMode must be disable, require, verify-ca or verify-full")
		}
	}

	return domain.AuditConfig{
		QueueSize:           cfg.QueueSize,
		MaxSummaryBytes:     cfg.MaxSummaryBytes,
		WriteTimeoutSeconds: cfg.WriteTimeoutSeconds,
		Postgres:            pg,
	}, errs
}

func normalizeObservabilityConfig(cfg rawObservabilityConfig) (domain.ObservabilityConfig, []string) {
	addr := strings.TrimSpace(cfg.ListenAddress)
	if addr == "" {
		addr = domain.DefaultObservabilityListenAddress
	}
	var errs []string
	if err := validateListenAddress(addr); err != nil {
		errs = append(errs, "observability.listenAddress "+err.Error())
	}
	return domain.ObservabilityConfig{
		ListenAddress: addr,
		Metrics:       cfg.Metrics,
	}, errs
}

func validateListenAddress(addr string) error {
	if addr == "" {
		return errors.New("is required")
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("is invalid: %w", err)
	}
	return nil
}
