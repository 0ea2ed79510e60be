package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindFrom(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
		ok   bool
	}{
		{name: "nil", err: nil, ok: false},
		{name: "domain error", err: E(KindBackendError, "call", "boom", nil), want: KindBackendError, ok: true},
		{name: "wrapped domain error", err: fmt.Errorf("outer: %w", E(KindServiceUnreachable, "", "", errors.New("refused"))), want: KindServiceUnreachable, ok: true},
		{name: "unknown tool sentinel", err: fmt.Errorf("resolve: %w", ErrUnknownTool), want: KindUnknownTool, ok: true},
		{name: "deadline", err: context.DeadlineExceeded, want: KindTimeout, ok: true},
		{name: "queue full", err: ErrQueueFull, want: KindAuditWriteFailure, ok: true},
		{name: "plain", err: errors.New("plain"), ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := KindFrom(tt.err)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestWrapKeepsExistingKind(t *testing.T) {
	inner := E(KindTimeout, "", "slow", nil)
	wrapped := Wrap(KindAdapterMismatch, "fallback", inner)
	require.Equal(t, KindTimeout, wrapped.Kind)
	require.Equal(t, "fallback", wrapped.Op)
	require.Equal(t, "fallback: Timeout: slow", wrapped.Error())
	require.Nil(t, Wrap(KindTimeout, "op", nil))
}

func TestFailedResultCarriesKindAndMessage(t *testing.T) {
	result := Failed("svc", E(KindBackendError, "fallback", "disk full", nil))
	require.False(t, result.Success)
	require.Equal(t, "svc", result.ServiceID)
	require.Equal(t, KindBackendError, result.Error.Kind)
	require.Equal(t, "disk full", result.Error.Message)

	unclassified := Failed("svc", errors.New("weird"))
	require.Equal(t, KindAdapterMismatch, unclassified.Error.Kind)
}

func TestInternalKinds(t *testing.T) {
	require.True(t, KindAuditWriteFailure.Internal())
	require.True(t, KindCacheUnavailable.Internal())
	require.False(t, KindUnknownTool.Internal())
}

func TestServiceDescriptorHelpers(t *testing.T) {
	svc := ServiceDescriptor{ID: "memory", Host: "memory-service", Port: 8005}
	require.Equal(t, "http://memory-service:8005", svc.BaseURL())
	require.Equal(t, "memory", svc.AdapterName())
	require.False(t, svc.HasLiveness())

	svc.Adapter = "rest"
	svc.HealthPath = "/health"
	require.Equal(t, "rest", svc.AdapterName())
	require.True(t, svc.HasLiveness())
}
