package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"

	"github.com/groksrc/trident/pkg/models"
)

// claudeBinary is the agent CLI driven by the claude provider.
const claudeBinary = "claude"

// ClaudeProvider executes agents by driving the Claude Code CLI in
// non-interactive mode (-p --output-format json). The CLI owns the
// multi-turn loop, tool permissions, and MCP servers; this provider
// normalizes its result envelope.
type ClaudeProvider struct {
	binary string
}

// NewClaudeProvider creates the claude agent provider.
func NewClaudeProvider() *ClaudeProvider {
	return &ClaudeProvider{binary: claudeBinary}
}

// Name implements Provider.
func (p *ClaudeProvider) Name() string { return "claude" }

// Available reports whether the CLI is on PATH.
func (p *ClaudeProvider) Available() bool {
	_, err := exec.LookPath(p.binary)
	return err == nil
}

// claudeResult is the CLI's JSON result envelope.
type claudeResult struct {
	Type         string          `json:"type"`
	Subtype      string          `json:"subtype"`
	Result       string          `json:"result"`
	SessionID    string          `json:"session_id"`
	NumTurns     int             `json:"num_turns"`
	TotalCostUSD *float64        `json:"total_cost_usd"`
	IsError      bool            `json:"is_error"`
	Usage        map[string]any  `json:"usage"`
	Structured   json.RawMessage `json:"structured_output"`
}

// Execute implements Provider.
func (p *ClaudeProvider) Execute(ctx context.Context, prompt string, cfg Config) (*Result, error) {
	if !p.Available() {
		return nil, &models.ProviderError{
			Provider: p.Name(),
			Message:  fmt.Sprintf("%s CLI not found on PATH", p.binary),
		}
	}

	args := []string{"-p", "--output-format", "json"}
	if cfg.MaxTurns > 0 {
		args = append(args, "--max-turns", fmt.Sprintf("%d", cfg.MaxTurns))
	}
	if cfg.PermissionMode != "" {
		args = append(args, "--permission-mode", cfg.PermissionMode)
	}
	for _, tool := range cfg.AllowedTools {
		args = append(args, "--allowed-tools", tool)
	}
	if cfg.ResumeSession != "" {
		args = append(args, "--resume", cfg.ResumeSession)
	}
	if cfg.Model != "" {
		args = append(args, "--model", cfg.Model)
	}
	if len(cfg.MCPServers) > 0 {
		mcpConfig, err := mcpConfigJSON(cfg.MCPServers)
		if err != nil {
			return nil, err
		}
		args = append(args, "--mcp-config", mcpConfig)
	}

	cmd := exec.CommandContext(ctx, p.binary, args...)
	cmd.Stdin = bytes.NewBufferString(prompt)
	if cfg.Cwd != "" {
		cmd.Dir = cfg.Cwd
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &models.ProviderError{
			Provider: p.Name(),
			Message:  fmt.Sprintf("agent process failed: %v, stderr: %.500s", err, stderr.String()),
			Cause:    err,
		}
	}

	var envelope claudeResult
	if err := json.Unmarshal(stdout.Bytes(), &envelope); err != nil {
		return nil, &models.ProviderError{
			Provider: p.Name(),
			Message:  fmt.Sprintf("unparseable agent result: %v", err),
			Cause:    err,
		}
	}
	if envelope.IsError {
		return nil, &models.ProviderError{
			Provider: p.Name(),
			Message:  fmt.Sprintf("agent reported error: %.500s", envelope.Result),
		}
	}

	result := &Result{
		SessionID:       envelope.SessionID,
		NumTurns:        envelope.NumTurns,
		CostUSD:         envelope.TotalCostUSD,
		MaxTurnsReached: envelope.Subtype == "error_max_turns",
		Tokens:          usageTokens(envelope.Usage),
	}

	if len(envelope.Structured) > 0 {
		var structured map[string]any
		if err := json.Unmarshal(envelope.Structured, &structured); err == nil {
			result.Output = structured
			result.Structured = true
			return result, nil
		}
	}

	result.Output = map[string]any{"text": envelope.Result}
	return result, nil
}

func usageTokens(usage map[string]any) models.TokenUsage {
	tokens := models.TokenUsage{}
	if v, ok := usage["input_tokens"].(float64); ok {
		tokens.Input = int(v)
	}
	if v, ok := usage["output_tokens"].(float64); ok {
		tokens.Output = int(v)
	}
	return tokens
}

// mcpConfigJSON renders MCP server configs to the CLI's --mcp-config
// format, expanding ${VAR} references against the environment.
func mcpConfigJSON(servers map[string]models.MCPServerConfig) (string, error) {
	type serverDoc struct {
		Command string            `json:"command"`
		Args    []string          `json:"args,omitempty"`
		Env     map[string]string `json:"env,omitempty"`
	}
	doc := struct {
		MCPServers map[string]serverDoc `json:"mcpServers"`
	}{MCPServers: make(map[string]serverDoc, len(servers))}

	for name, server := range servers {
		env := make(map[string]string, len(server.Env))
		for key, value := range server.Env {
			env[key] = os.Expand(value, os.Getenv)
		}
		doc.MCPServers[name] = serverDoc{Command: server.Command, Args: server.Args, Env: env}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
