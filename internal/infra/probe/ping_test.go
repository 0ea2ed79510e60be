package probe

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zend/internal/domain"
	"zend/internal/infra/transport"
)

type stubDoer struct {
	delay time.Duration
	resp  transport.Response
	err   error
	paths []string
}

func (s *stubDoer) Do(ctx context.Context, _ domain.ServiceDescriptor, req transport.Request) (transport.Response, error) {
	s.paths = append(s.paths, req.Path)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return transport.Response{}, domain.E(domain.KindTimeout, "probe", "", ctx.Err())
		}
	}
	return s.resp, s.err
}

func TestHTTPProbe_Check(t *testing.T) {
	svc := domain.ServiceDescriptor{ID: "memory", Host: "127.0.0.1", Port: 9, HealthPath: "/health"}
	tests := []struct {
		name    string
		svc     domain.ServiceDescriptor
		doer    *stubDoer
		timeout time.Duration
		want    domain.HealthState
	}{
		{
			name: "healthy",
			svc:  svc,
			doer: &stubDoer{resp: transport.Response{Status: http.StatusOK}},
			want: domain.HealthHealthy,
		},
		{
			name: "non 2xx is degraded",
			svc:  svc,
			doer: &stubDoer{resp: transport.Response{Status: http.StatusServiceUnavailable}},
			want: domain.HealthDegraded,
		},
		{
			name: "slow is degraded",
			svc:  svc,
			doer: &stubDoer{delay: 30 * time.Millisecond, resp: transport.Response{Status: http.StatusOK}},
			want: domain.HealthDegraded,
		},
		{
			name: "connection refused is unreachable",
			svc:  svc,
			doer: &stubDoer{err: domain.E(domain.KindServiceUnreachable, "call memory", "", errors.New("connection refused"))},
			want: domain.HealthUnreachable,
		},
		{
			name:    "timeout is unreachable",
			svc:     svc,
			doer:    &stubDoer{delay: time.Second},
			timeout: 20 * time.Millisecond,
			want:    domain.HealthUnreachable,
		},
		{
			name: "no liveness endpoint is unknown",
			svc:  domain.ServiceDescriptor{ID: "legacy"},
			doer: &stubDoer{},
			want: domain.HealthUnknown,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			timeout := tc.timeout
			if timeout == 0 {
				timeout = time.Second
			}
			probe := &HTTPProbe{Doer: tc.doer, Timeout: timeout, DegradedLatency: 10 * time.Millisecond}
			got := probe.Check(context.Background(), tc.svc)
			assert.Equal(t, tc.want, got.State)
			assert.Equal(t, tc.svc.ID, got.ServiceID)
			assert.False(t, got.LastChecked.IsZero())
			if tc.want == domain.HealthUnknown {
				assert.Empty(t, tc.doer.paths)
			} else {
				require.Equal(t, []string{"/health"}, tc.doer.paths)
			}
		})
	}
}
