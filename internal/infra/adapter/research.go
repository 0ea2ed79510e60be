package adapter

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"zend/internal/domain"
	"zend/internal/infra/transport"
)

const defaultResearchResults = 5

// researchAdapter speaks the research service dialect:
// {"status": "error", "message": "..."} on failure.
type researchAdapter struct{}

func (researchAdapter) TranslateRequest(call domain.CallRequest) (transport.Request, error) {
	const op = "research request"
	args := call.Arguments
	switch call.Tool {
	case "web_search", "research_search":
		query, err := requireString(op, args, "query", "q")
		if err != nil {
			return transport.Request{}, err
		}
		values := url.Values{}
		values.Set("query", query)
		values.Set("max_results", strconv.Itoa(argInt(args, defaultResearchResults, "max_results", "limit")))
		return transport.Request{Method: http.MethodGet, Path: "/research/search", Query: values}, nil
	case "summarize_url", "research_summarize":
		target, err := requireString(op, args, "url")
		if err != nil {
			return transport.Request{}, err
		}
		return transport.Request{Method: http.MethodPost, Path: "/research/summarize", Body: map[string]any{"url": target}}, nil
	default:
		return transport.Request{}, unsupportedTool(op, call.Tool)
	}
}

func (researchAdapter) TranslateResponse(_ domain.CallRequest, resp transport.Response) (json.RawMessage, error) {
	return decodeNative("research response", resp, func(obj map[string]any) string {
		if status, _ := obj["status"].(string); status == "error" {
			if msg := stringField(obj, "message", "error"); msg != "" {
				return msg
			}
			return "research service reported an error"
		}
		return ""
	})
}
