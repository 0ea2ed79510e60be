package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"zend/internal/domain"
	"zend/internal/infra/telemetry"
)

// kindInvalidRequest reports a malformed call envelope. It never reaches
// dispatch and is not audited.
const kindInvalidRequest domain.ErrorKind = "InvalidRequest"

type callResponse struct {
	Success   bool              `json:"success"`
	Result    json.RawMessage   `json:"result,omitempty"`
	Error     *domain.CallError `json:"error,omitempty"`
	Service   string            `json:"service,omitempty"`
	LatencyMs float64           `json:"latency_ms"`
}

type toolsResponse struct {
	Tools []domain.ToolDescriptor `json:"tools"`
}

type serviceView struct {
	ID       string              `json:"id"`
	Host     string              `json:"host"`
	Port     int                 `json:"port"`
	Tools    []string            `json:"tools,omitempty"`
	Prefixes []string            `json:"prefixes,omitempty"`
	Adapter  string              `json:"adapter"`
	Envelope bool                `json:"envelope"`
	Health   domain.HealthStatus `json:"health"`
}

type servicesResponse struct {
	Services []serviceView `json:"services"`
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxCallBodyBytes)
	var req domain.CallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeCallError(w, http.StatusBadRequest, fmt.Sprintf("invalid call envelope: %v", err))
		return
	}
	if req.Tool == "" {
		writeCallError(w, http.StatusBadRequest, "tool is required")
		return
	}

	result := s.dispatcher.Call(r.Context(), req)
	resp := callResponse{
		Success:   result.Success,
		Result:    result.Result,
		Error:     result.Error,
		Service:   result.ServiceID,
		LatencyMs: float64(result.Latency.Microseconds()) / 1000,
	}
	status := http.StatusOK
	if result.Error != nil {
		status = httpStatus(result.Error.Kind)
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	s.serveAggregate(w, r, domain.CacheKeyTools, func(context.Context) (any, error) {
		tools := s.catalog.Tools()
		if tools == nil {
			tools = []domain.ToolDescriptor{}
		}
		return toolsResponse{Tools: tools}, nil
	})
}

func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	s.serveAggregate(w, r, domain.CacheKeyServices, func(context.Context) (any, error) {
		snapshot := s.health.Snapshot()
		services := s.catalog.Services()
		views := make([]serviceView, 0, len(services))
		for _, svc := range services {
			views = append(views, serviceView{
				ID:       svc.ID,
				Host:     svc.Host,
				Port:     svc.Port,
				Tools:    svc.Tools,
				Prefixes: svc.Prefixes,
				Adapter:  svc.AdapterName(),
				Envelope: svc.Envelope,
				Health:   snapshot[svc.ID],
			})
		}
		return servicesResponse{Services: views}, nil
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	payload, err := s.cache.GetOrCompute(r.Context(), domain.CacheKeyHealth, func(context.Context) (json.RawMessage, error) {
		return json.Marshal(s.health.System())
	})
	if err != nil {
		s.aggregateFailed(w, r, domain.CacheKeyHealth, err)
		return
	}
	var head struct {
		Status domain.SystemState `json:"status"`
	}
	status := http.StatusOK
	if json.Unmarshal(payload, &head) == nil && head.Status == domain.SystemUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeRaw(w, status, payload)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) serveAggregate(w http.ResponseWriter, r *http.Request, key string, build func(context.Context) (any, error)) {
	payload, err := s.cache.GetOrCompute(r.Context(), key, func(ctx context.Context) (json.RawMessage, error) {
		value, err := build(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(value)
	})
	if err != nil {
		s.aggregateFailed(w, r, key, err)
		return
	}
	writeRaw(w, http.StatusOK, payload)
}

func (s *Server) aggregateFailed(w http.ResponseWriter, r *http.Request, key string, err error) {
	telemetry.LoggerWithRequest(r.Context(), s.logger).Error("aggregate read failed",
		telemetry.CacheKeyField(key),
		zap.Error(err),
	)
	status := http.StatusInternalServerError
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// httpStatus maps a caller-visible error kind onto an HTTP status.
func httpStatus(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindUnknownTool:
		return http.StatusNotFound
	case domain.KindTimeout:
		return http.StatusGatewayTimeout
	case domain.KindServiceUnreachable, domain.KindBackendError, domain.KindAdapterMismatch:
		return http.StatusBadGateway
	case kindInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeCallError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, callResponse{
		Error: &domain.CallError{Kind: kindInvalidRequest, Message: message},
	})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	payload, err := json.Marshal(value)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeRaw(w, status, payload)
}

func writeRaw(w http.ResponseWriter, status int, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
	_, _ = w.Write([]byte("\n"))
}
