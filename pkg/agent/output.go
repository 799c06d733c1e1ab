package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/groksrc/trident/pkg/models"
)

// ParseJSONResponse extracts a JSON object from agent response text.
// Attempts, in order: the whole text, a ```json fenced block, a bare ```
// fenced block, a brace-matched object embedded in prose, and finally a
// repair pass over the whole text, which only counts when it yields a
// JSON object or array. Non-object JSON is wrapped as {result: value}.
func ParseJSONResponse(agentID, text string) (map[string]any, error) {
	text = strings.TrimSpace(text)

	if parsed, ok := tryParse(text); ok {
		return parsed, nil
	}

	if block, ok := fencedBlock(text, "```json"); ok {
		if parsed, ok := tryParse(block); ok {
			return parsed, nil
		}
	}

	if block, ok := fencedBlock(text, "```"); ok {
		if parsed, ok := tryParse(block); ok {
			return parsed, nil
		}
	}

	if obj, ok := braceMatched(text); ok {
		if parsed, ok := tryParse(obj); ok {
			return parsed, nil
		}
	}

	if repaired, err := jsonrepair.JSONRepair(text); err == nil {
		// Prose repaired into a bare JSON string is not structured output.
		repaired = strings.TrimSpace(repaired)
		if strings.HasPrefix(repaired, "{") || strings.HasPrefix(repaired, "[") {
			if parsed, ok := tryParse(repaired); ok {
				return parsed, nil
			}
		}
	}

	return nil, &models.AgentOutputError{
		AgentID: agentID,
		Message: fmt.Sprintf("no valid JSON found in response, preview: %.200q", text),
	}
}

func tryParse(text string) (map[string]any, bool) {
	var value any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &value); err != nil {
		return nil, false
	}
	if m, ok := value.(map[string]any); ok {
		return m, true
	}
	// Arrays and primitives are wrapped so downstream mappings still work.
	return map[string]any{"result": value}, true
}

func fencedBlock(text, fence string) (string, bool) {
	start := strings.Index(text, fence)
	if start < 0 {
		return "", false
	}
	start += len(fence)
	// A bare fence may carry a language tag on the opening line.
	if fence == "```" {
		if newline := strings.IndexByte(text[start:], '\n'); newline >= 0 && newline < 20 {
			start += newline + 1
		}
	}
	end := strings.Index(text[start:], "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(text[start : start+end]), true
}

// braceMatched finds the first balanced top-level {...} span, respecting
// strings and escapes.
func braceMatched(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// ValidateOutput checks parsed agent output against the expected schema:
// strict on required fields and types, lenient on extras.
func ValidateOutput(agentID string, data map[string]any, schema map[string]models.FieldSpec) error {
	for name, spec := range schema {
		value, ok := data[name]
		if !ok {
			return &models.AgentOutputError{
				AgentID: agentID,
				Message: fmt.Sprintf("output missing required field: %q", name),
			}
		}
		if !matchesType(value, spec.Type) {
			return &models.AgentOutputError{
				AgentID: agentID,
				Message: fmt.Sprintf("output field %q expected %s, got %T", name, spec.Type, value),
			}
		}
	}
	return nil
}

func matchesType(value any, fieldType models.FieldType) bool {
	switch fieldType {
	case models.FieldTypeString:
		_, ok := value.(string)
		return ok
	case models.FieldTypeNumber:
		switch value.(type) {
		case float64, int, int64:
			return true
		}
		return false
	case models.FieldTypeInteger:
		switch v := value.(type) {
		case int, int64:
			return true
		case float64:
			return v == float64(int64(v))
		}
		return false
	case models.FieldTypeBoolean:
		_, ok := value.(bool)
		return ok
	case models.FieldTypeArray:
		_, ok := value.([]any)
		return ok
	case models.FieldTypeObject:
		_, ok := value.(map[string]any)
		return ok
	}
	return true
}
