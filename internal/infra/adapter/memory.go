package adapter

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"zend/internal/domain"
	"zend/internal/infra/transport"
)

const defaultMemorySearchLimit = 10

// memoryAdapter speaks the memory service dialect. Errors come back as
// {"error": "..."} with either a 2xx or 4xx/5xx status.
type memoryAdapter struct{}

func (memoryAdapter) TranslateRequest(call domain.CallRequest) (transport.Request, error) {
	const op = "memory request"
	args := call.Arguments
	switch call.Tool {
	case "search_memory", "recall_memory", "memory_search":
		query, err := requireString(op, args, "query", "q")
		if err != nil {
			return transport.Request{}, err
		}
		values := url.Values{}
		values.Set("query", query)
		values.Set("limit", strconv.Itoa(argInt(args, defaultMemorySearchLimit, "limit")))
		return transport.Request{Method: http.MethodGet, Path: "/memory/search", Query: values}, nil
	case "list_memories", "memory_list":
		values := url.Values{}
		values.Set("limit", strconv.Itoa(argInt(args, defaultMemorySearchLimit, "limit")))
		return transport.Request{Method: http.MethodGet, Path: "/memory/list", Query: values}, nil
	case "store_memory", "memory_store":
		content, err := requireString(op, args, "content", "text")
		if err != nil {
			return transport.Request{}, err
		}
		body := map[string]any{"content": content}
		if metadata, ok := args["metadata"]; ok {
			body["metadata"] = metadata
		}
		if tags, ok := args["tags"]; ok {
			body["tags"] = tags
		}
		return transport.Request{Method: http.MethodPost, Path: "/memory/store", Body: body}, nil
	default:
		return transport.Request{}, unsupportedTool(op, call.Tool)
	}
}

func (memoryAdapter) TranslateResponse(_ domain.CallRequest, resp transport.Response) (json.RawMessage, error) {
	return decodeNative("memory response", resp, func(obj map[string]any) string {
		return stringField(obj, "error")
	})
}
