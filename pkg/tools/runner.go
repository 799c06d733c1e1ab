// Package tools invokes deterministic function tools declared in the
// manifest: python modules run as subprocesses, shell commands, and HTTP
// endpoints.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/groksrc/trident/pkg/models"
)

// pythonBootstrap loads the tool module by path, calls the named function
// with keyword arguments from stdin, and prints the result as JSON.
const pythonBootstrap = `
import importlib.util, json, sys
path, function = sys.argv[1], sys.argv[2]
spec = importlib.util.spec_from_file_location("trident_tool", path)
module = importlib.util.module_from_spec(spec)
spec.loader.exec_module(module)
func = getattr(module, function)
inputs = json.load(sys.stdin)
result = func(**inputs)
json.dump(result, sys.stdout, default=str)
`

// Runner executes project tools. One runner serves a whole run.
type Runner struct {
	projectRoot string
	httpClient  *http.Client
}

// NewRunner creates a tool runner rooted at the project directory.
func NewRunner(projectRoot string) *Runner {
	return &Runner{
		projectRoot: projectRoot,
		httpClient:  &http.Client{Timeout: 120 * time.Second},
	}
}

// Execute invokes a tool with the gathered inputs as named arguments.
// Mapping-valued results become the node output directly; anything else
// is wrapped as {output: value}.
func (r *Runner) Execute(ctx context.Context, tool *models.ToolDef, inputs map[string]any) (map[string]any, error) {
	var result any
	var err error

	switch tool.Type {
	case "python":
		result, err = r.executePython(ctx, tool, inputs)
	case "shell":
		result, err = r.executeShell(ctx, tool, inputs)
	case "http":
		result, err = r.executeHTTP(ctx, tool, inputs)
	default:
		return nil, &models.ToolError{
			ToolID:  tool.ID,
			Message: fmt.Sprintf("unsupported tool type: %s", tool.Type),
		}
	}
	if err != nil {
		return nil, err
	}

	if m, ok := result.(map[string]any); ok {
		return m, nil
	}
	return map[string]any{"output": result}, nil
}

// modulePath resolves the tool's module location. Bare names resolve under
// the project tools/ directory; relative paths starting with ../ and
// absolute paths are honored as-is.
func (r *Runner) modulePath(tool *models.ToolDef) (string, error) {
	location := tool.Module
	if location == "" {
		location = tool.Path
	}
	if location == "" {
		return "", &models.ToolError{ToolID: tool.ID, Message: "no module or path specified"}
	}
	if tool.Type == "python" && !strings.HasSuffix(location, ".py") {
		location += ".py"
	}

	var full string
	switch {
	case filepath.IsAbs(location):
		full = location
	case strings.HasPrefix(location, "../"):
		full = filepath.Join(r.projectRoot, location)
	default:
		full = filepath.Join(r.projectRoot, "tools", location)
	}

	if _, err := os.Stat(full); err != nil {
		return "", &models.ToolError{
			ToolID:  tool.ID,
			Message: fmt.Sprintf("tool module not found: %s", full),
		}
	}
	return full, nil
}

func (r *Runner) executePython(ctx context.Context, tool *models.ToolDef, inputs map[string]any) (any, error) {
	path, err := r.modulePath(tool)
	if err != nil {
		return nil, err
	}

	function := tool.Function
	if function == "" {
		function = "execute"
	}

	inputJSON, err := json.Marshal(inputs)
	if err != nil {
		return nil, &models.ToolError{ToolID: tool.ID, Message: err.Error(), Cause: err}
	}

	cmd := exec.CommandContext(ctx, "python3", "-c", pythonBootstrap, path, function)
	cmd.Stdin = bytes.NewReader(inputJSON)
	cmd.Dir = r.projectRoot

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &models.ToolError{
			ToolID:  tool.ID,
			Message: fmt.Sprintf("execution failed: %v, stderr: %.500s", err, stderr.String()),
			Cause:   err,
		}
	}

	var result any
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return nil, &models.ToolError{
			ToolID:  tool.ID,
			Message: fmt.Sprintf("tool returned invalid JSON: %v", err),
			Cause:   err,
		}
	}
	return result, nil
}

func (r *Runner) executeShell(ctx context.Context, tool *models.ToolDef, inputs map[string]any) (any, error) {
	command := tool.Module
	if command == "" {
		command = tool.Path
	}
	if command == "" {
		return nil, &models.ToolError{ToolID: tool.ID, Message: "no module or path specified"}
	}

	inputJSON, err := json.Marshal(inputs)
	if err != nil {
		return nil, &models.ToolError{ToolID: tool.ID, Message: err.Error(), Cause: err}
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Stdin = bytes.NewReader(inputJSON)
	cmd.Dir = r.projectRoot
	cmd.Env = append(os.Environ(), "TRIDENT_INPUT="+string(inputJSON))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &models.ToolError{
			ToolID:  tool.ID,
			Message: fmt.Sprintf("execution failed: %v, stderr: %.500s", err, stderr.String()),
			Cause:   err,
		}
	}

	// JSON stdout becomes the output; plain text is passed through.
	var result any
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return strings.TrimRight(stdout.String(), "\n"), nil
	}
	return result, nil
}

func (r *Runner) executeHTTP(ctx context.Context, tool *models.ToolDef, inputs map[string]any) (any, error) {
	url := tool.Path
	if url == "" {
		url = tool.Module
	}
	if url == "" {
		return nil, &models.ToolError{ToolID: tool.ID, Message: "no endpoint URL specified"}
	}

	body, err := json.Marshal(inputs)
	if err != nil {
		return nil, &models.ToolError{ToolID: tool.ID, Message: err.Error(), Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &models.ToolError{ToolID: tool.ID, Message: err.Error(), Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, &models.ToolError{ToolID: tool.ID, Message: err.Error(), Cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &models.ToolError{ToolID: tool.ID, Message: err.Error(), Cause: err}
	}
	if resp.StatusCode >= 400 {
		return nil, &models.ToolError{
			ToolID:  tool.ID,
			Message: fmt.Sprintf("endpoint returned status %d: %.500s", resp.StatusCode, respBody),
		}
	}

	var result any
	if err := json.Unmarshal(respBody, &result); err != nil {
		return string(respBody), nil
	}
	return result, nil
}
