// Package template implements the minimal {{var}} substitution used by
// prompt bodies, plus dotted-path access into node outputs.
package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([^}]+?)\s*\}\}`)

// GetPath resolves a dotted path into nested maps.
//
//	GetPath(map[string]any{"a": map[string]any{"b": 1}}, "a.b") -> 1, true
//
// Returns false when any segment is missing or a non-map is traversed.
func GetPath(data map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var current any = data
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Render substitutes {{var}} and {{a.b.c}} placeholders from variables.
// Unknown placeholders are left as-is so partially rendered templates stay
// inspectable.
func Render(body string, variables map[string]any) string {
	return placeholderRe.ReplaceAllStringFunc(body, func(match string) string {
		key := strings.TrimSpace(placeholderRe.FindStringSubmatch(match)[1])
		value, ok := GetPath(variables, key)
		if !ok || value == nil {
			return match
		}
		return Stringify(value)
	})
}

// Stringify renders a value for template substitution. Maps and slices are
// rendered as JSON so structured inputs stay machine-readable in prompts.
func Stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case map[string]any, []any:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	default:
		return fmt.Sprintf("%v", v)
	}
}
