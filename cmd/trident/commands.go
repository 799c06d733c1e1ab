package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/groksrc/trident/pkg/artifacts"
	"github.com/groksrc/trident/pkg/dag"
	"github.com/groksrc/trident/pkg/models"
	"github.com/groksrc/trident/pkg/project"
	"github.com/groksrc/trident/pkg/visualization"
)

func cmdProjectValidate(args []string) error {
	path, args := pathArg(args)

	fs := flag.NewFlagSet("project validate", flag.ExitOnError)
	strict := fs.Bool("strict", false, "treat warnings as errors")
	if err := fs.Parse(args); err != nil {
		return err
	}

	proj, err := project.Load(path)
	if err != nil {
		return err
	}

	graph, err := dag.Build(proj)
	if err != nil {
		return err
	}

	result := dag.ValidateMappings(proj, graph, *strict)
	for _, warning := range result.Warnings {
		fmt.Fprintf(os.Stderr, "  warning: %s\n", warning.Message)
	}
	if !result.Valid {
		return &models.ValidationError{
			Field:   "mappings",
			Message: fmt.Sprintf("%d warning(s) promoted to errors in strict mode", len(result.Errors)),
		}
	}

	if err := dag.ValidateSubWorkflows(proj, project.Load, *strict); err != nil {
		return err
	}

	fmt.Printf("Project %q is valid: %d nodes, %d edges, %d levels\n",
		proj.Name, len(graph.Nodes), len(proj.Edges), len(graph.ExecutionLevels))
	return nil
}

func cmdProjectGraph(args []string) error {
	path, args := pathArg(args)

	fs := flag.NewFlagSet("project graph", flag.ExitOnError)
	format := fs.String("format", "ascii", "output format: ascii, mermaid")
	direction := fs.String("direction", "TD", "diagram direction: TD, LR, BT, RL")
	output := fs.String("output", "", "save to file instead of stdout")
	open := fs.Bool("open", false, "open a rendered mermaid diagram in the browser")
	if err := fs.Parse(args); err != nil {
		return err
	}

	proj, err := project.Load(path)
	if err != nil {
		return err
	}
	graph, err := dag.Build(proj)
	if err != nil {
		return err
	}

	var renderer visualization.Renderer
	switch *format {
	case "mermaid":
		renderer = visualization.NewMermaidRenderer()
	case "ascii":
		renderer = visualization.NewASCIIRenderer()
	default:
		return fmt.Errorf("unknown graph format: %s", *format)
	}

	opts := visualization.DefaultRenderOptions()
	opts.Direction = *direction

	rendered, err := renderer.Render(proj, graph, opts)
	if err != nil {
		return err
	}

	if *open && *format == "mermaid" {
		return openMermaid(proj.Name, rendered)
	}
	if *output != "" {
		return os.WriteFile(*output, []byte(rendered), 0o644)
	}
	fmt.Println(rendered)
	return nil
}

// openMermaid writes an HTML wrapper around the diagram and hands it to
// the platform opener.
func openMermaid(name, diagram string) error {
	html := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><title>%s</title></head>
<body>
<pre class="mermaid">
%s
</pre>
<script type="module">
import mermaid from "https://cdn.jsdelivr.net/npm/mermaid@11/dist/mermaid.esm.min.mjs";
mermaid.initialize({ startOnLoad: true });
</script>
</body>
</html>
`, name, diagram)

	file, err := os.CreateTemp("", "trident-graph-*.html")
	if err != nil {
		return err
	}
	if _, err := file.WriteString(html); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}

	opener := "xdg-open"
	if runtime.GOOS == "darwin" {
		opener = "open"
	}
	return exec.Command(opener, file.Name()).Start()
}

func cmdProjectRuns(args []string) error {
	path, args := pathArg(args)

	fs := flag.NewFlagSet("project runs", flag.ExitOnError)
	limit := fs.Int("limit", 20, "maximum number of runs to list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	proj, err := project.Load(path)
	if err != nil {
		return err
	}

	manifest := artifacts.LoadRunManifest(proj.Root)
	runs := manifest.Runs
	if *limit > 0 && len(runs) > *limit {
		runs = runs[len(runs)-*limit:]
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}

	for _, entry := range runs {
		status := entry.Status
		if entry.ErrorSummary != "" {
			status = fmt.Sprintf("%s (%s)", status, firstLine(entry.ErrorSummary))
		}
		fmt.Printf("%s  %s  %s\n", entry.RunID, entry.StartedAt.Format("2006-01-02 15:04:05"), status)
	}
	return nil
}

func cmdProjectSignals(args []string) error {
	path, args := pathArg(args)

	fs := flag.NewFlagSet("project signals", flag.ExitOnError)
	clear := fs.Bool("clear", false, "remove all signal files")
	if err := fs.Parse(args); err != nil {
		return err
	}

	proj, err := project.Load(path)
	if err != nil {
		return err
	}

	signalsDir := filepath.Join(proj.Root, models.DefaultSignalsDir)
	if proj.Orchestration != nil && proj.Orchestration.SignalsDir != "" {
		signalsDir = proj.Orchestration.SignalsDir
		if !filepath.IsAbs(signalsDir) {
			signalsDir = filepath.Join(proj.Root, signalsDir)
		}
	}

	entries, err := os.ReadDir(signalsDir)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("No signals")
			return nil
		}
		return err
	}

	if *clear {
		for _, entry := range entries {
			if !entry.IsDir() {
				if err := os.Remove(filepath.Join(signalsDir, entry.Name())); err != nil {
					return err
				}
			}
		}
		fmt.Printf("Cleared %d signal(s)\n", len(entries))
		return nil
	}

	if len(entries) == 0 {
		fmt.Println("No signals")
		return nil
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		signal, err := artifacts.LoadSignal(filepath.Join(signalsDir, entry.Name()))
		if err != nil {
			fmt.Printf("%s  (unreadable)\n", entry.Name())
			continue
		}
		fmt.Printf("%s  run=%s  at=%s\n", entry.Name(), signal.RunID, signal.Timestamp.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func firstLine(s string) string {
	for i, c := range s {
		if c == '\n' {
			return s[:i]
		}
	}
	return s
}
