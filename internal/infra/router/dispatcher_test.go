package router

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zend/internal/domain"
	"zend/internal/infra/adapter"
	"zend/internal/infra/registry"
	"zend/internal/infra/transport"
)

type recordingAuditor struct {
	mu      sync.Mutex
	records []domain.AuditRecord
}

func (a *recordingAuditor) Record(rec domain.AuditRecord) error {
	a.mu.Lock()
	a.records = append(a.records, rec)
	a.mu.Unlock()
	return nil
}

func (a *recordingAuditor) all() []domain.AuditRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.AuditRecord(nil), a.records...)
}

type fakeCaller struct {
	primaryErr     error
	primaryResult  json.RawMessage
	fallbackErr    error
	fallbackResult json.RawMessage
	hasFallback    bool
	primaryCalls   int
	fallbackCalls  int
}

func (c *fakeCaller) Primary(context.Context, domain.ServiceDescriptor, domain.CallRequest) (json.RawMessage, error) {
	c.primaryCalls++
	return c.primaryResult, c.primaryErr
}

func (c *fakeCaller) Fallback(context.Context, domain.ServiceDescriptor, domain.CallRequest) (json.RawMessage, error) {
	c.fallbackCalls++
	return c.fallbackResult, c.fallbackErr
}

func (c *fakeCaller) HasFallback(string) bool { return c.hasFallback }

func mustRegistry(t *testing.T, services ...domain.ServiceDescriptor) *registry.Registry {
	t.Helper()
	reg, err := registry.New(services)
	require.NoError(t, err)
	return reg
}

func hostPort(t *testing.T, rawURL string) (string, int) {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestDispatcher_LiveServiceSucceeds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Tool      string         `json:"tool"`
			Arguments map[string]any `json:"arguments"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "/call", r.URL.Path)
		require.Equal(t, "alpha_x", body.Tool)
		require.Equal(t, "hi", body.Arguments["q"])
		_, _ = w.Write([]byte(`{"success":true,"result":{"answer":42}}`))
	}))
	defer server.Close()
	host, port := hostPort(t, server.URL)

	svc := domain.ServiceDescriptor{ID: "A", Host: host, Port: port, Tools: []string{"alpha_x", "alpha_y"}, Envelope: true}
	caller, err := adapter.NewCaller(transport.NewHTTPTransport(transport.Options{}), adapter.DefaultSet(), []domain.ServiceDescriptor{svc}, nil)
	require.NoError(t, err)
	auditor := &recordingAuditor{}
	d := NewDispatcher(mustRegistry(t, svc), caller, auditor, Options{})

	result := d.Call(context.Background(), domain.CallRequest{Tool: "alpha_x", Arguments: map[string]any{"q": "hi"}})
	require.True(t, result.Success, "%+v", result.Error)
	assert.JSONEq(t, `{"answer":42}`, string(result.Result))
	assert.Equal(t, "A", result.ServiceID)
	assert.False(t, result.Fallback)

	records := auditor.all()
	require.Len(t, records, 1)
	assert.Equal(t, "A", records[0].Service)
	assert.Equal(t, domain.AuditStatusSuccess, records[0].Status)
	assert.Equal(t, `{"q":"hi"}`, records[0].ArgumentSummary)
	assert.NotEmpty(t, records[0].RequestID)
	assert.Greater(t, records[0].Duration, time.Duration(0))
}

func TestDispatcher_DownServiceIsUnreachable(t *testing.T) {
	svc := domain.ServiceDescriptor{ID: "A", Host: "127.0.0.1", Port: closedPort(t), Tools: []string{"alpha_x"}, Envelope: true}
	caller, err := adapter.NewCaller(transport.NewHTTPTransport(transport.Options{}), adapter.DefaultSet(), []domain.ServiceDescriptor{svc}, nil)
	require.NoError(t, err)
	auditor := &recordingAuditor{}
	d := NewDispatcher(mustRegistry(t, svc), caller, auditor, Options{Timeout: 5 * time.Second})

	start := time.Now()
	result := d.Call(context.Background(), domain.CallRequest{Tool: "alpha_x"})
	assert.Less(t, time.Since(start), 5*time.Second)

	require.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Equal(t, domain.KindServiceUnreachable, result.Error.Kind)

	records := auditor.all()
	require.Len(t, records, 1)
	assert.Equal(t, domain.AuditStatusError, records[0].Status)
	assert.Equal(t, domain.KindServiceUnreachable, records[0].ErrorKind)
}

func TestDispatcher_UnknownToolIsAudited(t *testing.T) {
	auditor := &recordingAuditor{}
	d := NewDispatcher(mustRegistry(t, domain.ServiceDescriptor{ID: "A", Tools: []string{"alpha_x"}}), &fakeCaller{}, auditor, Options{})

	result := d.Call(context.Background(), domain.CallRequest{Tool: "gamma_1"})
	require.False(t, result.Success)
	assert.Equal(t, domain.KindUnknownTool, result.Error.Kind)
	assert.Empty(t, result.ServiceID)

	records := auditor.all()
	require.Len(t, records, 1)
	assert.Empty(t, records[0].Service)
	assert.Equal(t, "gamma_1", records[0].Tool)
	assert.Equal(t, domain.KindUnknownTool, records[0].ErrorKind)
}

func TestDispatcher_FallbackRules(t *testing.T) {
	svc := domain.ServiceDescriptor{ID: "A", Tools: []string{"alpha_x"}, Envelope: true}
	unreachable := domain.E(domain.KindServiceUnreachable, "call A", "refused", nil)
	mismatch := domain.E(domain.KindAdapterMismatch, "envelope A", "envelope rejected with status 404", nil)
	backend := domain.E(domain.KindBackendError, "envelope A", "disk full", nil)
	timeout := domain.E(domain.KindTimeout, "call A", "slow", context.DeadlineExceeded)
	untranslated := domain.E(domain.KindAdapterMismatch, "fallback A", `tool "alpha_x" has no native mapping`, domain.ErrNotTranslated)

	tests := []struct {
		name          string
		caller        *fakeCaller
		wantSuccess   bool
		wantKind      domain.ErrorKind
		wantFallback  bool
		fallbackCalls int
	}{
		{
			name:          "primary success skips fallback",
			caller:        &fakeCaller{primaryResult: json.RawMessage(`1`), hasFallback: true},
			wantSuccess:   true,
			fallbackCalls: 0,
		},
		{
			name:          "unreachable falls back",
			caller:        &fakeCaller{primaryErr: unreachable, fallbackResult: json.RawMessage(`2`), hasFallback: true},
			wantSuccess:   true,
			wantFallback:  true,
			fallbackCalls: 1,
		},
		{
			name:          "envelope mismatch falls back",
			caller:        &fakeCaller{primaryErr: mismatch, fallbackResult: json.RawMessage(`2`), hasFallback: true},
			wantSuccess:   true,
			wantFallback:  true,
			fallbackCalls: 1,
		},
		{
			name:          "backend error is final",
			caller:        &fakeCaller{primaryErr: backend, hasFallback: true},
			wantKind:      domain.KindBackendError,
			fallbackCalls: 0,
		},
		{
			name:          "timeout is final",
			caller:        &fakeCaller{primaryErr: timeout, hasFallback: true},
			wantKind:      domain.KindTimeout,
			fallbackCalls: 0,
		},
		{
			name:          "no adapter returns primary error",
			caller:        &fakeCaller{primaryErr: unreachable},
			wantKind:      domain.KindServiceUnreachable,
			fallbackCalls: 0,
		},
		{
			name:          "untranslatable fallback keeps unreachable",
			caller:        &fakeCaller{primaryErr: unreachable, fallbackErr: untranslated, hasFallback: true},
			wantKind:      domain.KindServiceUnreachable,
			wantFallback:  true,
			fallbackCalls: 1,
		},
		{
			name:          "native reply mismatch is reported",
			caller:        &fakeCaller{primaryErr: unreachable, fallbackErr: mismatch, hasFallback: true},
			wantKind:      domain.KindAdapterMismatch,
			wantFallback:  true,
			fallbackCalls: 1,
		},
		{
			name:          "fallback failure is reported",
			caller:        &fakeCaller{primaryErr: unreachable, fallbackErr: unreachable, hasFallback: true},
			wantKind:      domain.KindServiceUnreachable,
			wantFallback:  true,
			fallbackCalls: 1,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			auditor := &recordingAuditor{}
			d := NewDispatcher(mustRegistry(t, svc), tc.caller, auditor, Options{})
			result := d.Call(context.Background(), domain.CallRequest{Tool: "alpha_x"})

			assert.Equal(t, tc.wantSuccess, result.Success)
			assert.Equal(t, tc.wantFallback, result.Fallback)
			assert.Equal(t, 1, tc.caller.primaryCalls)
			assert.Equal(t, tc.fallbackCalls, tc.caller.fallbackCalls)
			if !tc.wantSuccess {
				require.NotNil(t, result.Error)
				assert.Equal(t, tc.wantKind, result.Error.Kind)
			}
			records := auditor.all()
			require.Len(t, records, 1)
			assert.Equal(t, domain.StatusFor(tc.wantSuccess), records[0].Status)
			assert.Equal(t, "A", records[0].Service)
		})
	}
}

func TestDispatcher_NativeOnlyServiceSkipsPrimary(t *testing.T) {
	svc := domain.ServiceDescriptor{ID: "files", Tools: []string{"read_file"}, Envelope: false}
	caller := &fakeCaller{fallbackResult: json.RawMessage(`"content"`), hasFallback: true}
	d := NewDispatcher(mustRegistry(t, svc), caller, &recordingAuditor{}, Options{})

	result := d.Call(context.Background(), domain.CallRequest{Tool: "read_file"})
	require.True(t, result.Success)
	assert.Equal(t, 0, caller.primaryCalls)
	assert.Equal(t, 1, caller.fallbackCalls)
}

func TestDispatcher_EnforcesRouteTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)
	host, port := hostPort(t, server.URL)

	svc := domain.ServiceDescriptor{ID: "slow", Host: host, Port: port, Tools: []string{"slow_tool"}, Envelope: true}
	caller, err := adapter.NewCaller(transport.NewHTTPTransport(transport.Options{}), adapter.DefaultSet(), []domain.ServiceDescriptor{svc}, nil)
	require.NoError(t, err)
	d := NewDispatcher(mustRegistry(t, svc), caller, &recordingAuditor{}, Options{Timeout: 50 * time.Millisecond})

	start := time.Now()
	result := d.Call(context.Background(), domain.CallRequest{Tool: "slow_tool"})
	assert.Less(t, time.Since(start), 2*time.Second)
	require.False(t, result.Success)
	assert.Equal(t, domain.KindTimeout, result.Error.Kind)
}

func TestDispatcher_SlowServiceDoesNotBlockOthers(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()
	defer close(release)
	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"result":"ok"}`))
	}))
	defer fast.Close()

	slowHost, slowPort := hostPort(t, slow.URL)
	fastHost, fastPort := hostPort(t, fast.URL)
	services := []domain.ServiceDescriptor{
		{ID: "slow", Host: slowHost, Port: slowPort, Tools: []string{"slow_tool"}, Envelope: true},
		{ID: "fast", Host: fastHost, Port: fastPort, Tools: []string{"fast_tool"}, Envelope: true},
	}
	tr := transport.NewHTTPTransport(transport.Options{MaxConnsPerService: 2})
	caller, err := adapter.NewCaller(tr, adapter.DefaultSet(), services, nil)
	require.NoError(t, err)
	d := NewDispatcher(mustRegistry(t, services...), caller, &recordingAuditor{}, Options{Timeout: 2 * time.Second})

	for i := 0; i < 4; i++ {
		go d.Call(context.Background(), domain.CallRequest{Tool: "slow_tool"})
	}
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	result := d.Call(context.Background(), domain.CallRequest{Tool: "fast_tool"})
	require.True(t, result.Success)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestDispatcher_RequestIDIsPropagatedToAudit(t *testing.T) {
	auditor := &recordingAuditor{}
	svc := domain.ServiceDescriptor{ID: "A", Tools: []string{"alpha_x"}, Envelope: true}
	d := NewDispatcher(mustRegistry(t, svc), &fakeCaller{primaryResult: json.RawMessage(`1`)}, auditor, Options{})

	first := d.Call(context.Background(), domain.CallRequest{Tool: "alpha_x"})
	second := d.Call(context.Background(), domain.CallRequest{Tool: "alpha_x"})
	require.True(t, first.Success)
	require.True(t, second.Success)

	records := auditor.all()
	require.Len(t, records, 2)
	assert.NotEqual(t, records[0].RequestID, records[1].RequestID)
}

func TestFallbackEligible_CancelledCaller(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, fallbackEligible(ctx, domain.E(domain.KindServiceUnreachable, "", "x", nil)))
	assert.True(t, fallbackEligible(context.Background(), errors.New("unclassified")))
}
