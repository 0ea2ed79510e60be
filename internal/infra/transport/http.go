package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"zend/internal/domain"
	"zend/internal/infra/telemetry"
)

const (
	defaultMaxBodyBytes = 8 << 20
	userAgent           = "zend-gateway"
)

// Request is a native REST call against one service.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	// Body is encoded as JSON when non-nil.
	Body any
}

// Response is the raw reply of a native REST call.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK reports a 2xx status.
func (r Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

type Options struct {
	Logger *zap.Logger
	// MaxConnsPerService bounds each service's connection pool.
	MaxConnsPerService int
	MaxBodyBytes       int64
	// Base overrides the round tripper cloned for each service (tests).
	Base *http.Transport
}

// HTTPTransport sends native requests. Each service gets its own client and
// connection pool so a stalled backend cannot exhaust connections of another.
type HTTPTransport struct {
	clients      sync.Map // service id -> *http.Client
	logger       *zap.Logger
	maxConns     int
	maxBodyBytes int64
	base         *http.Transport
}

func NewHTTPTransport(opts Options) *HTTPTransport {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxConns := opts.MaxConnsPerService
	if maxConns <= 0 {
		maxConns = domain.DefaultMaxConnsPerService
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	base := opts.Base
	if base == nil {
		base = http.DefaultTransport.(*http.Transport)
	}
	return &HTTPTransport{
		logger:       logger.Named("transport"),
		maxConns:     maxConns,
		maxBodyBytes: maxBody,
		base:         base,
	}
}

func (t *HTTPTransport) client(serviceID string) *http.Client {
	if existing, ok := t.clients.Load(serviceID); ok {
		return existing.(*http.Client)
	}
	rt := t.base.Clone()
	rt.MaxConnsPerHost = t.maxConns
	rt.MaxIdleConnsPerHost = t.maxConns
	rt.IdleConnTimeout = 90 * time.Second
	created := &http.Client{Transport: rt}
	actual, _ := t.clients.LoadOrStore(serviceID, created)
	return actual.(*http.Client)
}

// Do sends req to svc. Deadlines surface as Timeout, connection failures as
// ServiceUnreachable; any HTTP status is returned as a Response.
func (t *HTTPTransport) Do(ctx context.Context, svc domain.ServiceDescriptor, req Request) (Response, error) {
	target, err := buildURL(svc, req)
	if err != nil {
		return Response{}, domain.E(domain.KindAdapterMismatch, "transport", "", err)
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return Response{}, domain.E(domain.KindAdapterMismatch, "transport", "encode request body", err)
		}
		body = bytes.NewReader(payload)
	}

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return Response{}, domain.E(domain.KindAdapterMismatch, "transport", "build request", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if requestID, ok := telemetry.RequestIDFromContext(ctx); ok {
		httpReq.Header.Set(telemetry.RequestIDHeader, requestID)
	}

	resp, err := t.client(svc.ID).Do(httpReq)
	if err != nil {
		return Response{}, classifyError(ctx, svc, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBodyBytes))
	if err != nil {
		return Response{}, classifyError(ctx, svc, fmt.Errorf("read response: %w", err))
	}
	return Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func buildURL(svc domain.ServiceDescriptor, req Request) (string, error) {
	if strings.TrimSpace(svc.Host) == "" {
		return "", fmt.Errorf("service %q has no host", svc.ID)
	}
	path := req.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u, err := url.Parse(svc.BaseURL() + path)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}
	return u.String(), nil
}

func classifyError(ctx context.Context, svc domain.ServiceDescriptor, err error) error {
	op := "call " + svc.ID
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.E(domain.KindTimeout, op, fmt.Sprintf("service %q did not answer in time", svc.ID), err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.E(domain.KindTimeout, op, fmt.Sprintf("service %q did not answer in time", svc.ID), err)
	}
	return domain.E(domain.KindServiceUnreachable, op, fmt.Sprintf("service %q is unreachable: %v", svc.ID, err), err)
}
