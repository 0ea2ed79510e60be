package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func statuses(states ...HealthState) []HealthStatus {
	out := make([]HealthStatus, 0, len(states))
	for i, state := range states {
		out = append(out, HealthStatus{ServiceID: string(rune('a' + i)), State: state})
	}
	return out
}

func TestRollUp(t *testing.T) {
	tests := []struct {
		name   string
		states []HealthState
		want   SystemState
	}{
		{name: "no services", want: SystemHealthy},
		{name: "all healthy", states: []HealthState{HealthHealthy, HealthHealthy}, want: SystemHealthy},
		{name: "one degraded", states: []HealthState{HealthHealthy, HealthDegraded, HealthHealthy}, want: SystemDegraded},
		{name: "majority up", states: []HealthState{HealthHealthy, HealthHealthy, HealthUnreachable}, want: SystemDegraded},
		{name: "exactly half up", states: []HealthState{HealthHealthy, HealthUnreachable}, want: SystemUnhealthy},
		{name: "minority up", states: []HealthState{HealthDegraded, HealthUnreachable, HealthUnreachable}, want: SystemUnhealthy},
		{name: "unknown counts against quorum", states: []HealthState{HealthHealthy, HealthUnknown}, want: SystemUnhealthy},
		{name: "unknown with majority up", states: []HealthState{HealthHealthy, HealthHealthy, HealthUnknown}, want: SystemDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RollUp(statuses(tt.states...))
			require.Equal(t, tt.want, got.State)
			require.Equal(t, len(tt.states), got.Healthy+got.Degraded+got.Unreachable+got.Unknown)
		})
	}
}

func TestQuorumRatio(t *testing.T) {
	require.Equal(t, 0.5, QuorumRatio)
}
