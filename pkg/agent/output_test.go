package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groksrc/trident/pkg/models"
)

func TestParseJSONResponse(t *testing.T) {
	tests := []struct {
		name string
		text string
		want map[string]any
	}{
		{
			name: "pure json",
			text: `{"status": "ok"}`,
			want: map[string]any{"status": "ok"},
		},
		{
			name: "json fenced block",
			text: "Here you go:\n```json\n{\"status\": \"ok\"}\n```\nDone.",
			want: map[string]any{"status": "ok"},
		},
		{
			name: "bare fenced block",
			text: "```\n{\"status\": \"ok\"}\n```",
			want: map[string]any{"status": "ok"},
		},
		{
			name: "fenced block with language tag",
			text: "```javascript\n{\"status\": \"ok\"}\n```",
			want: map[string]any{"status": "ok"},
		},
		{
			name: "brace matched in prose",
			text: `The result is {"status": "ok", "note": "a {nested} value"} as requested.`,
			want: map[string]any{"status": "ok", "note": "a {nested} value"},
		},
		{
			name: "array wrapped as result",
			text: `[1, 2, 3]`,
			want: map[string]any{"result": []any{float64(1), float64(2), float64(3)}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseJSONResponse("a1", tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseJSONResponseRepair(t *testing.T) {
	// Trailing comma is invalid JSON; the repair pass recovers it.
	got, err := ParseJSONResponse("a1", `{"status": "ok",}`)
	require.NoError(t, err)
	assert.Equal(t, "ok", got["status"])
}

func TestParseJSONResponseNoJSON(t *testing.T) {
	_, err := ParseJSONResponse("a1", "just plain prose with no structure")
	require.Error(t, err)

	var outputErr *models.AgentOutputError
	require.ErrorAs(t, err, &outputErr)
	assert.Equal(t, "a1", outputErr.AgentID)
}

func TestValidateOutput(t *testing.T) {
	schema := map[string]models.FieldSpec{
		"name":  {Type: models.FieldTypeString},
		"score": {Type: models.FieldTypeNumber},
		"tags":  {Type: models.FieldTypeArray},
	}

	t.Run("valid", func(t *testing.T) {
		data := map[string]any{
			"name":  "x",
			"score": 4.5,
			"tags":  []any{"a"},
			"extra": "allowed",
		}
		assert.NoError(t, ValidateOutput("a1", data, schema))
	})

	t.Run("missing field", func(t *testing.T) {
		err := ValidateOutput("a1", map[string]any{"name": "x", "score": 1.0}, schema)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "tags")
	})

	t.Run("wrong type", func(t *testing.T) {
		data := map[string]any{"name": 42, "score": 1.0, "tags": []any{}}
		err := ValidateOutput("a1", data, schema)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "name")
	})

	t.Run("integer accepts whole float", func(t *testing.T) {
		intSchema := map[string]models.FieldSpec{"n": {Type: models.FieldTypeInteger}}
		assert.NoError(t, ValidateOutput("a1", map[string]any{"n": float64(3)}, intSchema))
		assert.Error(t, ValidateOutput("a1", map[string]any{"n": 3.5}, intSchema))
	})
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	Setup(r)

	if _, ok := r.Get("claude"); !ok {
		t.Fatal("claude provider must be registered")
	}
	if _, ok := r.Get("openai"); !ok {
		t.Fatal("openai provider must be registered")
	}
	if _, ok := r.GetDefault(); !ok {
		t.Fatal("default provider must resolve")
	}
}
