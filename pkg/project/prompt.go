package project

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/groksrc/trident/pkg/models"
)

// promptDoc is the YAML frontmatter of a .prompt file.
type promptDoc struct {
	ID          string                    `yaml:"id"`
	Name        string                    `yaml:"name"`
	Description string                    `yaml:"description"`
	Model       string                    `yaml:"model"`
	Temperature *float64                  `yaml:"temperature"`
	MaxTokens   *int                      `yaml:"max_tokens"`
	Input       map[string]promptInputDoc `yaml:"input"`
	Output      *promptOutputDoc          `yaml:"output"`
}

type promptInputDoc struct {
	Type        string `yaml:"type"`
	Description string `yaml:"description"`
	Required    *bool  `yaml:"required"`
	Default     any    `yaml:"default"`
}

type promptOutputDoc struct {
	Format string         `yaml:"format"`
	Schema map[string]any `yaml:"schema"`
}

var frontmatterDelim = regexp.MustCompile(`(?m)^---\s*$`)

// ParsePromptFile parses a .prompt file: YAML frontmatter between two ---
// delimiters, followed by a free-form template body.
func ParsePromptFile(path string) (*models.PromptNode, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &models.ParseError{Path: path, Message: err.Error(), Cause: err}
	}

	parts := frontmatterDelim.Split(string(data), 3)
	if len(parts) < 3 {
		return nil, &models.ParseError{
			Path:    path,
			Message: "invalid .prompt format: missing frontmatter delimiters",
		}
	}

	var doc promptDoc
	if err := yaml.Unmarshal([]byte(parts[1]), &doc); err != nil {
		return nil, &models.ParseError{Path: path, Message: fmt.Sprintf("invalid YAML: %v", err), Cause: err}
	}
	if doc.ID == "" {
		return nil, &models.ParseError{Path: path, Message: "missing required 'id' in frontmatter"}
	}

	node := &models.PromptNode{
		ID:          doc.ID,
		Name:        doc.Name,
		Description: doc.Description,
		Model:       doc.Model,
		Temperature: doc.Temperature,
		MaxTokens:   doc.MaxTokens,
		Body:        strings.TrimSpace(parts[2]),
		FilePath:    path,
		Output:      models.OutputSchema{Format: models.OutputFormatText},
	}

	if len(doc.Input) > 0 {
		node.Inputs = make(map[string]models.InputField, len(doc.Input))
		for name, spec := range doc.Input {
			field := models.InputField{
				Name:        name,
				Type:        models.FieldTypeString,
				Description: spec.Description,
				Required:    true,
				Default:     spec.Default,
			}
			if spec.Type != "" {
				field.Type = models.FieldType(spec.Type)
			}
			if spec.Required != nil {
				field.Required = *spec.Required
			}
			node.Inputs[name] = field
		}
	}

	if doc.Output != nil {
		if doc.Output.Format != "" {
			node.Output.Format = doc.Output.Format
		}
		if len(doc.Output.Schema) > 0 {
			node.Output.Fields = make(map[string]models.FieldSpec, len(doc.Output.Schema))
			for fname, fspec := range doc.Output.Schema {
				if _, ok := fspec.(map[string]any); !ok {
					return nil, &models.ParseError{
						Path: path,
						Message: fmt.Sprintf("invalid schema field %q: expected mapping with "+
							"'type' and 'description', got %T", fname, fspec),
					}
				}
				node.Output.Fields[fname] = parseFieldSpec(fspec)
			}
		}
	}

	return node, nil
}

// ResolvePromptForAgent loads the agent's prompt file relative to the
// project root, caching the parsed node on the agent.
func ResolvePromptForAgent(project *models.Project, agent *models.AgentNode) (*models.PromptNode, error) {
	if agent.Prompt != nil {
		return agent.Prompt, nil
	}

	// Prompts referenced as prompts/<id>.prompt are usually already
	// loaded by project discovery.
	promptID := strings.TrimSuffix(filepath.Base(agent.PromptPath), ".prompt")
	if node, ok := project.Prompts[promptID]; ok {
		agent.Prompt = node
		return node, nil
	}

	path := agent.PromptPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(project.Root, path)
	}
	node, err := ParsePromptFile(path)
	if err != nil {
		return nil, err
	}
	agent.Prompt = node
	return node, nil
}
