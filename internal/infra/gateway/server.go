// Package gateway exposes the call envelope and aggregate views over HTTP.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"zend/internal/domain"
	"zend/internal/infra/cache"
	"zend/internal/infra/telemetry"
)

const (
	maxCallBodyBytes = 1 << 20
	shutdownTimeout  = 5 * time.Second
)

// Dispatcher handles one call envelope.
type Dispatcher interface {
	Call(ctx context.Context, req domain.CallRequest) domain.CallResult
}

// Catalog lists what the registry knows about.
type Catalog interface {
	Tools() []domain.ToolDescriptor
	Services() []domain.ServiceDescriptor
}

// HealthSource exposes the aggregated health snapshot.
type HealthSource interface {
	Snapshot() map[string]domain.HealthStatus
	System() domain.SystemHealth
}

type Options struct {
	Addr   string
	Logger *zap.Logger
	// Gatherer exposes /metrics on the gateway listener when set.
	Gatherer prometheus.Gatherer
}

type Server struct {
	dispatcher Dispatcher
	catalog    Catalog
	health     HealthSource
	cache      *cache.Cache
	addr       string
	logger     *zap.Logger
	handler    http.Handler
}

func NewServer(dispatcher Dispatcher, catalog Catalog, health HealthSource, aggregates *cache.Cache, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	addr := opts.Addr
	if addr == "" {
		addr = domain.DefaultListenAddress
	}
	if aggregates == nil {
		aggregates = cache.New(cache.Options{Logger: logger})
	}
	s := &Server{
		dispatcher: dispatcher,
		catalog:    catalog,
		health:     health,
		cache:      aggregates,
		addr:       addr,
		logger:     logger.Named("gateway"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /call", s.handleCall)
	mux.HandleFunc("GET /tools", s.handleTools)
	mux.HandleFunc("GET /services", s.handleServices)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	if opts.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	s.handler = s.withRequestMeta(mux)
	return s
}

// Handler returns the root handler with request metadata applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("gateway listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", zap.String("addr", ln.Addr().String()))
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("gateway server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("gateway shutdown error", zap.Error(err))
			return err
		}
		s.logger.Info("gateway stopped")
		return nil
	}
}

func (s *Server) withRequestMeta(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, meta := telemetry.EnsureRequestMeta(r.Context(), telemetry.RequestIDFromHTTP(r))
		w.Header().Set(telemetry.RequestIDHeader, meta.RequestID)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		fields := append(telemetry.RequestFields(meta),
			zap.String(telemetry.FieldLogSource, telemetry.LogSourceHTTP),
			zap.String("method", r.Method),
			zap.String("route", r.URL.Path),
			zap.Int("status", rec.status),
			telemetry.DurationField(time.Since(start)),
		)
		s.logger.Debug("http request", fields...)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
