package domain

import "time"

// HealthState is the probe classification of one service.
type HealthState string

const (
	HealthHealthy     HealthState = "healthy"
	HealthDegraded    HealthState = "degraded"
	HealthUnreachable HealthState = "unreachable"
	HealthUnknown     HealthState = "unknown"
)

// Up reports whether the service still answers.
func (s HealthState) Up() bool {
	return s == HealthHealthy || s == HealthDegraded
}

// HealthStatus is the last known health of one service.
type HealthStatus struct {
	ServiceID           string        `json:"service"`
	State               HealthState   `json:"state"`
	LastChecked         time.Time     `json:"lastChecked"`
	Latency             time.Duration `json:"-"`
	LatencyMs           int64         `json:"latencyMs"`
	ConsecutiveFailures int           `json:"consecutiveFailures"`
	Message             string        `json:"message,omitempty"`
}

// SystemState is the roll-up across every registered service.
type SystemState string

const (
	SystemHealthy   SystemState = "healthy"
	SystemDegraded  SystemState = "degraded"
	SystemUnhealthy SystemState = "unhealthy"
)

// SystemHealth is the aggregate health view.
type SystemHealth struct {
	State       SystemState    `json:"status"`
	Healthy     int            `json:"healthy"`
	Degraded    int            `json:"degraded"`
	Unreachable int            `json:"unreachable"`
	Unknown     int            `json:"unknown"`
	Services    []HealthStatus `json:"services"`
}

// RollUp derives the system state from per-service states.
// Healthy iff every service is healthy; degraded while more than QuorumRatio
// of services are up; unhealthy otherwise. No services at all is healthy.
func RollUp(statuses []HealthStatus) SystemHealth {
	out := SystemHealth{Services: statuses}
	for _, status := range statuses {
		switch status.State {
		case HealthHealthy:
			out.Healthy++
		case HealthDegraded:
			out.Degraded++
		case HealthUnreachable:
			out.Unreachable++
		default:
			out.Unknown++
		}
	}
	total := len(statuses)
	up := out.Healthy + out.Degraded
	switch {
	case out.Healthy == total:
		out.State = SystemHealthy
	case float64(up) > float64(total)*QuorumRatio:
		out.State = SystemDegraded
	default:
		out.State = SystemUnhealthy
	}
	return out
}
