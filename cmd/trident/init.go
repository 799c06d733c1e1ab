package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/groksrc/trident/pkg/models"
)

const minimalManifest = `trident: "0.1"
name: %s
description: A minimal Trident project

defaults:
  model: anthropic/claude-sonnet-4-20250514

entrypoints: [input]

nodes:
  input:
    type: input
    schema:
      topic:
        type: string
        description: Topic to write about
  output:
    type: output

edges:
  e1:
    from: input
    to: summarize
    mapping:
      topic: topic
  e2:
    from: summarize
    to: output
    mapping:
      summary: text
`

const minimalPrompt = `---
id: summarize
description: Summarize a topic in one paragraph
output:
  format: text
---
Write a one-paragraph summary about {{topic}}.
`

const standardToolsManifestExtra = `
tools:
  word_count:
    type: python
    module: word_count
    description: Count words in the summary
`

const standardTool = `def execute(text):
    return {"words": len(text.split())}
`

func cmdProjectInit(args []string) error {
	path, args := pathArg(args)

	fs := flag.NewFlagSet("project init", flag.ExitOnError)
	tmpl := fs.String("template", "minimal", "project template: minimal, standard")
	if err := fs.Parse(args); err != nil {
		return err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return err
	}

	for _, name := range []string{"agent.tml", "trident.tml", "trident.yaml"} {
		if _, err := os.Stat(filepath.Join(abs, name)); err == nil {
			return &models.ValidationError{
				Field:   "path",
				Message: fmt.Sprintf("%s already contains a %s", abs, name),
			}
		}
	}

	name := filepath.Base(abs)
	manifest := fmt.Sprintf(minimalManifest, name)
	if *tmpl == "standard" {
		manifest += standardToolsManifestExtra
	}

	if err := os.WriteFile(filepath.Join(abs, "agent.tml"), []byte(manifest), 0o644); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(abs, "prompts"), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(abs, "prompts", "summarize.prompt"), []byte(minimalPrompt), 0o644); err != nil {
		return err
	}

	if *tmpl == "standard" {
		if err := os.MkdirAll(filepath.Join(abs, "tools"), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(abs, "tools", "word_count.py"), []byte(standardTool), 0o644); err != nil {
			return err
		}
	}

	fmt.Printf("Created %s project in %s\n", *tmpl, abs)
	return nil
}
