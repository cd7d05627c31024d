package streams

import (
	"strconv"
	"strings"
)

// lookup resolves a dotted path such as "item.changes" or "content.0.text"
// against decoded JSON. An empty path returns v itself.
func lookup(v any, path string) (any, bool) {
	if path == "" {
		return v, true
	}
	cur := v
	for _, part := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[part]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// lookupString returns the value at path as a string. String arrays are
// joined with spaces so argv-style commands read naturally.
func lookupString(v any, path string) string {
	raw, ok := lookup(v, path)
	if !ok {
		return ""
	}
	switch s := raw.(type) {
	case string:
		return s
	case []any:
		parts := make([]string, 0, len(s))
		for _, p := range s {
			str, ok := p.(string)
			if !ok {
				return ""
			}
			parts = append(parts, str)
		}
		return strings.Join(parts, " ")
	}
	return ""
}

// firstString returns the first non-empty string among paths.
func firstString(v any, paths []string) string {
	for _, p := range paths {
		if s := lookupString(v, p); s != "" {
			return s
		}
	}
	return ""
}

func lookupSlice(v any, path string) []any {
	raw, ok := lookup(v, path)
	if !ok {
		return nil
	}
	s, _ := raw.([]any)
	return s
}

func lookupMap(v any, path string) map[string]any {
	raw, ok := lookup(v, path)
	if !ok {
		return nil
	}
	m, _ := raw.(map[string]any)
	return m
}
