package remote

import (
	"strconv"
	"strings"
)

// lookupPath walks a dotted path through nested maps and arrays. Numeric
// segments index into arrays. Returns false when any segment is missing.
func lookupPath(doc any, path string) (any, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, false
	}
	current := doc
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			value, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = value
		case []any:
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(node) {
				return nil, false
			}
			current = node[index]
		default:
			return nil, false
		}
	}
	return current, true
}

// lookupString resolves a path to a non-empty string.
func lookupString(doc any, path string) (string, bool) {
	value, ok := lookupPath(doc, path)
	if !ok {
		return "", false
	}
	text, ok := value.(string)
	if !ok || strings.TrimSpace(text) == "" {
		return "", false
	}
	return text, true
}
