package adapter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"zend/internal/domain"
	"zend/internal/infra/transport"
)

// restAdapter maps tools through the route table declared on the service.
// GET and DELETE routes carry arguments in the query string; other methods
// send them as a JSON body. "{name}" path segments are filled from arguments.
type restAdapter struct {
	serviceID string
	routes    map[string]domain.Route
}

func newRESTAdapter(svc domain.ServiceDescriptor) (Adapter, error) {
	if len(svc.Routes) == 0 {
		return nil, fmt.Errorf("rest adapter requires routes")
	}
	routes := make(map[string]domain.Route, len(svc.Routes))
	for _, route := range svc.Routes {
		if route.Tool == "" || route.Path == "" {
			return nil, fmt.Errorf("route requires tool and path")
		}
		routes[route.Tool] = route
	}
	return &restAdapter{serviceID: svc.ID, routes: routes}, nil
}

func (a *restAdapter) TranslateRequest(call domain.CallRequest) (transport.Request, error) {
	op := "rest request " + a.serviceID
	route, ok := a.routes[call.Tool]
	if !ok {
		return transport.Request{}, unsupportedTool(op, call.Tool)
	}
	path, used, err := expandPath(route.Path, call.Arguments)
	if err != nil {
		return transport.Request{}, domain.E(domain.KindAdapterMismatch, op, "", err)
	}

	method := strings.ToUpper(route.Method)
	if method == "" {
		method = http.MethodPost
	}
	req := transport.Request{Method: method, Path: path}
	switch method {
	case http.MethodGet, http.MethodDelete, http.MethodHead:
		req.Query = queryFromArgs(call.Arguments, used)
	default:
		body := make(map[string]any, len(call.Arguments))
		for key, value := range call.Arguments {
			if _, skipped := used[key]; !skipped {
				body[key] = value
			}
		}
		req.Body = body
	}
	return req, nil
}

func (a *restAdapter) TranslateResponse(_ domain.CallRequest, resp transport.Response) (json.RawMessage, error) {
	return decodeNative("rest response "+a.serviceID, resp, func(obj map[string]any) string {
		if msg := fastAPIDetail(obj); msg != "" {
			return msg
		}
		if success, ok := obj["success"].(bool); ok && !success {
			if msg := stringField(obj, "error", "message"); msg != "" {
				return msg
			}
			return "backend reported failure"
		}
		return stringField(obj, "error")
	})
}

func expandPath(template string, args map[string]any) (string, map[string]struct{}, error) {
	used := make(map[string]struct{})
	var b strings.Builder
	rest := template
	for {
		start := strings.IndexByte(rest, '{')
		if start < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			return "", nil, fmt.Errorf("unterminated placeholder in %q", template)
		}
		name := rest[start+1 : start+end]
		value, ok := argString(args, name)
		if !ok {
			return "", nil, fmt.Errorf("argument %q is required for path %q", name, template)
		}
		b.WriteString(rest[:start])
		b.WriteString(url.PathEscape(value))
		used[name] = struct{}{}
		rest = rest[start+end+1:]
	}
	return b.String(), used, nil
}
