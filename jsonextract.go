package fyreflow

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencedJSONBlock = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)```")

// ExtractJSONObject leniently locates a single JSON object in raw text,
// trying in order: the full trimmed text, any fenced ```json blocks,
// then the first brace-balanced object found anywhere (tracking string
// state and escaping so braces inside string literals don't confuse the
// scan). Returns nil, false if nothing parses to a JSON object (arrays
// are rejected — callers that need an array ask for one explicitly via
// the raw bytes this function found).
func ExtractJSONObject(raw string) (json.RawMessage, bool) {
	if obj, ok := tryParseObject(strings.TrimSpace(raw)); ok {
		return obj, true
	}
	for _, m := range fencedJSONBlock.FindAllStringSubmatch(raw, -1) {
		if obj, ok := tryParseObject(strings.TrimSpace(m[1])); ok {
			return obj, true
		}
	}
	if candidate, ok := firstBraceBalancedObject(raw); ok {
		if obj, ok := tryParseObject(candidate); ok {
			return obj, true
		}
	}
	return nil, false
}

// tryParseObject reports whether s is valid JSON whose top-level value
// is an object (not an array, string, number, bool, or null).
func tryParseObject(s string) (json.RawMessage, bool) {
	if s == "" {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	if _, ok := v.(map[string]any); !ok {
		return nil, false
	}
	return json.RawMessage(s), true
}

// firstBraceBalancedObject scans raw for the first top-level {...} span,
// tracking JSON string state so that braces inside string literals are
// ignored.
func firstBraceBalancedObject(raw string) (string, bool) {
	start := strings.IndexByte(raw, '{')
	if start == -1 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1], true
			}
		}
	}
	return "", false
}

// JSONFieldValue resolves a field path against a JSON object, as used
// by the field contract and json_field_exists gate (spec §4.3). The
// path may carry a leading "$." which is stripped; it then splits on
// "." and walks object properties or numeric array indices. Returns
// false if the path is missing or traversal hits a non-container.
func JSONFieldValue(obj json.RawMessage, path string) (any, bool) {
	var root any
	if err := json.Unmarshal(obj, &root); err != nil {
		return nil, false
	}
	path = strings.TrimPrefix(path, "$.")
	if path == "" {
		return root, true
	}
	cur := root
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			return nil, false
		}
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			idx, ok := parseArrayIndex(seg)
			if !ok || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

func parseArrayIndex(seg string) (int, bool) {
	if seg == "" {
		return 0, false
	}
	n := 0
	for _, c := range seg {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}
