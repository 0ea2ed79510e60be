package adapter

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"zend/internal/domain"
	"zend/internal/infra/transport"
)

// backendErrorFunc extracts a backend-specific error message from a decoded
// JSON object, or returns "" when the object carries none.
type backendErrorFunc func(obj map[string]any) string

// decodeNative validates a native reply and returns its JSON body as the
// call result.
func decodeNative(op string, resp transport.Response, backendError backendErrorFunc) (json.RawMessage, error) {
	body := strings.TrimSpace(string(resp.Body))
	if body == "" {
		if resp.OK() {
			return json.RawMessage("null"), nil
		}
		return nil, domain.E(domain.KindAdapterMismatch, op, fmt.Sprintf("unexpected status %d with empty body", resp.Status), nil)
	}
	if !json.Valid([]byte(body)) {
		if resp.OK() {
			return nil, domain.E(domain.KindAdapterMismatch, op, "reply is not JSON", nil)
		}
		return nil, domain.E(domain.KindAdapterMismatch, op, fmt.Sprintf("unexpected status %d", resp.Status), nil)
	}

	var obj map[string]any
	isObject := json.Unmarshal([]byte(body), &obj) == nil
	if isObject && backendError != nil {
		if msg := backendError(obj); msg != "" {
			return nil, domain.E(domain.KindBackendError, op, msg, nil)
		}
	}
	if !resp.OK() {
		return nil, domain.E(domain.KindAdapterMismatch, op, fmt.Sprintf("unexpected status %d", resp.Status), nil)
	}
	return json.RawMessage(body), nil
}

// stringField returns the first non-empty string found under keys.
func stringField(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := obj[key].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return v
			}
		case map[string]any:
			if msg := stringField(v, "message", "detail"); msg != "" {
				return msg
			}
		}
	}
	return ""
}

func argString(args map[string]any, keys ...string) (string, bool) {
	for _, key := range keys {
		if value, ok := args[key]; ok && value != nil {
			if text, ok := scalarString(value); ok && text != "" {
				return text, true
			}
		}
	}
	return "", false
}

func requireString(op string, args map[string]any, keys ...string) (string, error) {
	value, ok := argString(args, keys...)
	if !ok {
		return "", domain.E(domain.KindAdapterMismatch, op, fmt.Sprintf("argument %q is required", keys[0]), nil)
	}
	return value, nil
}

func argInt(args map[string]any, fallback int, keys ...string) int {
	for _, key := range keys {
		switch v := args[key].(type) {
		case float64:
			return int(v)
		case int:
			return v
		case int64:
			return int(v)
		case json.Number:
			if n, err := v.Int64(); err == nil {
				return int(n)
			}
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return n
			}
		}
	}
	return fallback
}

func scalarString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case json.Number:
		return v.String(), true
	default:
		return "", false
	}
}

// queryFromArgs renders arguments as a query string. Scalars map directly,
// lists repeat the key, and anything else is sent as compact JSON.
// Percent-encoding happens in url.Values.Encode.
func queryFromArgs(args map[string]any, skip map[string]struct{}) url.Values {
	query := url.Values{}
	keys := make([]string, 0, len(args))
	for key := range args {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if _, skipped := skip[key]; skipped {
			continue
		}
		value := args[key]
		if value == nil {
			continue
		}
		if text, ok := scalarString(value); ok {
			query.Set(key, text)
			continue
		}
		if list, ok := value.([]any); ok {
			for _, item := range list {
				if text, ok := scalarString(item); ok {
					query.Add(key, text)
				}
			}
			continue
		}
		if encoded, err := json.Marshal(value); err == nil {
			query.Set(key, string(encoded))
		}
	}
	return query
}

func unsupportedTool(op, tool string) error {
	return domain.E(domain.KindAdapterMismatch, op, fmt.Sprintf("tool %q has no native mapping", tool), nil)
}
