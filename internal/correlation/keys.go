// Package correlation pulls request and trace identifiers out of backend
// responses so a failed turn can be chased through the question service's
// own logs.
package correlation

import (
	"net/http"
	"regexp"
	"strings"
)

// Key is one normalized correlation identifier.
type Key struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

var (
	traceparentPattern = regexp.MustCompile(`(?i)^\s*[0-9a-f]{2}-([0-9a-f]{32})-[0-9a-f]{16}-[0-9a-f]{2}\s*$`)

	requestIDBodyPattern   = regexp.MustCompile(`(?i)\brequest[_-]?id\b["']?\s*(?:=|:)\s*["']?([a-z0-9][a-z0-9._:/\-]{5,127})`)
	correlationBodyPattern = regexp.MustCompile(`(?i)\bcorrelation[_-]?id\b["']?\s*(?:=|:)\s*["']?([a-z0-9][a-z0-9._:/\-]{5,127})`)
	traceIDBodyPattern     = regexp.MustCompile(`(?i)\btrace[_-]?id\b["']?\s*(?:=|:)\s*["']?([0-9a-f]{16,64})`)
)

// FromResponse extracts every correlation key carried by a failed response:
// the well-known identifier headers first, then identifier-shaped tokens in
// the error body.
func FromResponse(header http.Header, body string) []Key {
	var keys []Key
	for name, values := range header {
		for _, value := range values {
			keys = append(keys, fromHeader(name, value)...)
		}
	}
	keys = append(keys, fromBody(body)...)
	return dedupe(keys)
}

func fromHeader(name, value string) []Key {
	value = normalize(value)
	if value == "" {
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "x-request-id", "request-id":
		return []Key{{Type: "request_id", Value: value}}
	case "x-correlation-id", "correlation-id":
		return []Key{{Type: "correlation_id", Value: value}}
	case "x-trace-id", "trace-id":
		return []Key{{Type: "trace_id", Value: value}}
	case "traceparent":
		if m := traceparentPattern.FindStringSubmatch(value); m != nil {
			return []Key{{Type: "trace_id", Value: m[1]}}
		}
	}
	return nil
}

func fromBody(body string) []Key {
	body = strings.ToLower(body)
	if body == "" {
		return nil
	}
	var keys []Key
	for _, m := range requestIDBodyPattern.FindAllStringSubmatch(body, -1) {
		keys = append(keys, Key{Type: "request_id", Value: normalize(m[1])})
	}
	for _, m := range correlationBodyPattern.FindAllStringSubmatch(body, -1) {
		keys = append(keys, Key{Type: "correlation_id", Value: normalize(m[1])})
	}
	for _, m := range traceIDBodyPattern.FindAllStringSubmatch(body, -1) {
		keys = append(keys, Key{Type: "trace_id", Value: normalize(m[1])})
	}
	return keys
}

func normalize(value string) string {
	v := strings.TrimSpace(strings.ToLower(value))
	v = strings.Trim(v, "\"'`")
	return strings.TrimRight(v, ".,;:)]}")
}

func dedupe(keys []Key) []Key {
	if len(keys) <= 1 {
		return keys
	}
	seen := make(map[Key]struct{}, len(keys))
	uniq := make([]Key, 0, len(keys))
	for _, key := range keys {
		if key.Value == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		uniq = append(uniq, key)
	}
	return uniq
}
