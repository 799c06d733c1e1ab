package models

// InputField declares one prompt input: type, whether it is required, and
// a default used when the caller omits it.
type InputField struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Description string    `json:"description,omitempty"`
	Required    bool      `json:"required"`
	Default     any       `json:"default,omitempty"`
}

// Output formats for prompt and agent nodes.
const (
	OutputFormatText = "text"
	OutputFormatJSON = "json"
)

// OutputSchema declares the shape of a prompt's output. Text prompts emit
// {text: content}; JSON prompts emit the parsed fields plus the raw text.
type OutputSchema struct {
	Format string               `json:"format"`
	Fields map[string]FieldSpec `json:"fields,omitempty"`
}

// PromptNode is a parsed .prompt file: frontmatter metadata plus the
// template body with {{var}} placeholders.
type PromptNode struct {
	ID          string                `json:"id"`
	Name        string                `json:"name,omitempty"`
	Description string                `json:"description,omitempty"`
	Model       string                `json:"model,omitempty"`
	Temperature *float64              `json:"temperature,omitempty"`
	MaxTokens   *int                  `json:"max_tokens,omitempty"`
	Inputs      map[string]InputField `json:"inputs,omitempty"`
	Output      OutputSchema          `json:"output"`
	Body        string                `json:"-"`
	FilePath    string                `json:"-"`
}

// RequiredInputs returns the names of inputs with no default that must be
// supplied at dispatch.
func (p *PromptNode) RequiredInputs() []string {
	var required []string
	for name, f := range p.Inputs {
		if f.Required && f.Default == nil {
			required = append(required, name)
		}
	}
	return required
}
