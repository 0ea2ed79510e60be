package adapter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"zend/internal/domain"
	"zend/internal/infra/transport"
)

type envelopeRequest struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

type envelopeResponse struct {
	Success *bool           `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   json.RawMessage `json:"error"`
}

func envelopeCall(svc domain.ServiceDescriptor, call domain.CallRequest) transport.Request {
	path := svc.EnvelopePath
	if path == "" {
		path = domain.DefaultEnvelopePath
	}
	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}
	return transport.Request{
		Method: http.MethodPost,
		Path:   path,
		Body:   envelopeRequest{Tool: call.Tool, Arguments: args},
	}
}

// decodeEnvelope maps an envelope reply. A 2xx envelope with success=false is
// the backend's own error; anything else unexpected is an AdapterMismatch.
func decodeEnvelope(svc domain.ServiceDescriptor, resp transport.Response) (json.RawMessage, error) {
	op := "envelope " + svc.ID
	if !resp.OK() {
		return nil, domain.E(domain.KindAdapterMismatch, op, fmt.Sprintf("envelope rejected with status %d", resp.Status), nil)
	}
	var env envelopeResponse
	decoder := json.NewDecoder(bytes.NewReader(resp.Body))
	if err := decoder.Decode(&env); err != nil {
		return nil, domain.E(domain.KindAdapterMismatch, op, "envelope reply is not JSON", err)
	}
	if env.Success == nil {
		return nil, domain.E(domain.KindAdapterMismatch, op, "envelope reply has no success flag", nil)
	}
	if !*env.Success {
		msg := errorMessage(env.Error)
		if msg == "" {
			msg = "backend reported failure"
		}
		return nil, domain.E(domain.KindBackendError, op, msg, nil)
	}
	if len(env.Result) == 0 {
		return json.RawMessage("null"), nil
	}
	return env.Result, nil
}

// errorMessage flattens the error shapes seen in envelope replies: a bare
// string, {"message": ...} or {"kind": ..., "message": ...}.
func errorMessage(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		if msg := stringField(obj, "message", "detail", "error"); msg != "" {
			return msg
		}
	}
	return string(raw)
}
