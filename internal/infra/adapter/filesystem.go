package adapter

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"zend/internal/domain"
	"zend/internal/infra/transport"
)

// filesystemAdapter speaks the filesystem service dialect, which reports
// failures as {"detail": ...}.
type filesystemAdapter struct{}

func (filesystemAdapter) TranslateRequest(call domain.CallRequest) (transport.Request, error) {
	const op = "filesystem request"
	args := call.Arguments
	switch call.Tool {
	case "read_file":
		path, err := requireString(op, args, "path")
		if err != nil {
			return transport.Request{}, err
		}
		return transport.Request{Method: http.MethodGet, Path: "/files/read", Query: url.Values{"path": []string{path}}}, nil
	case "list_directory", "list_files":
		path, ok := argString(args, "path")
		if !ok {
			path = "."
		}
		return transport.Request{Method: http.MethodGet, Path: "/files/list", Query: url.Values{"path": []string{path}}}, nil
	case "write_file":
		path, err := requireString(op, args, "path")
		if err != nil {
			return transport.Request{}, err
		}
		content, _ := args["content"].(string)
		return transport.Request{
			Method: http.MethodPost,
			Path:   "/files/write",
			Body:   map[string]any{"path": path, "content": content},
		}, nil
	default:
		return transport.Request{}, unsupportedTool(op, call.Tool)
	}
}

func (filesystemAdapter) TranslateResponse(_ domain.CallRequest, resp transport.Response) (json.RawMessage, error) {
	return decodeNative("filesystem response", resp, fastAPIDetail)
}

// fastAPIDetail reads {"detail": "..."} or the validation form
// {"detail": [{"msg": "..."}]}.
func fastAPIDetail(obj map[string]any) string {
	switch detail := obj["detail"].(type) {
	case string:
		return detail
	case []any:
		msgs := make([]string, 0, len(detail))
		for _, item := range detail {
			if entry, ok := item.(map[string]any); ok {
				if msg, ok := entry["msg"].(string); ok && msg != "" {
					msgs = append(msgs, msg)
				}
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}
