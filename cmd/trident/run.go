package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/groksrc/trident/internal/config"
	"github.com/groksrc/trident/internal/tracing"
	"github.com/groksrc/trident/pkg/artifacts"
	"github.com/groksrc/trident/pkg/engine"
	"github.com/groksrc/trident/pkg/models"
	"github.com/groksrc/trident/pkg/orchestration"
	"github.com/groksrc/trident/pkg/project"
)

// stringList collects repeatable flags (--wait-for SPEC ...).
type stringList []string

func (s *stringList) String() string { return fmt.Sprintf("%v", []string(*s)) }

func (s *stringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}

func cmdProjectRun(args []string) error {
	path, args := pathArg(args)

	fs := flag.NewFlagSet("project run", flag.ExitOnError)
	inputJSON := fs.String("input", "", "JSON input data")
	inputFile := fs.String("input-file", "", "path to JSON input file")
	inputFrom := fs.String("input-from", "", "input source: PATH, alias:NAME, or run:ID")
	entrypoint := fs.String("entrypoint", "", "starting node ID")
	outputFormat := fs.String("output", "pretty", "output format: json, text, pretty")
	showTrace := fs.Bool("trace", false, "output execution trace")
	dryRun := fs.Bool("dry-run", false, "simulate without provider calls")
	verbose := fs.Bool("verbose", false, "show node execution progress")
	noArtifacts := fs.Bool("no-artifacts", false, "disable artifact persistence")
	artifactDir := fs.String("artifact-dir", "", "override artifact directory")
	runID := fs.String("run-id", "", "explicit run id")
	resume := fs.String("resume", "", "resume a run: ID or latest")
	startFrom := fs.String("start-from", "", "skip ancestors of this node, reusing checkpointed outputs")
	emitSignal := fs.Bool("emit-signal", false, "emit orchestration signals")
	publishTo := fs.String("publish-to", "", "override outputs publish path")
	timeout := fs.Float64("timeout", 300, "signal wait timeout in seconds")
	var waitFor stringList
	fs.Var(&waitFor, "wait-for", "signal spec to wait for before running (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	proj, err := project.Load(path)
	if err != nil {
		return err
	}

	ctx := context.Background()

	cfg := config.Load()
	tracer, err := tracing.NewProvider(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		_ = tracer.Shutdown(ctx)
	}()

	if len(waitFor) > 0 {
		waitCfg := orchestration.DefaultWaitConfig(waitFor)
		waitCfg.Timeout = time.Duration(*timeout * float64(time.Second))
		if _, err := orchestration.WaitForSignals(ctx, waitCfg, proj.Root); err != nil {
			return err
		}
	}

	inputs, err := resolveInputs(proj.Root, *inputJSON, *inputFile, *inputFrom)
	if err != nil {
		return err
	}

	result, err := engine.New().Run(ctx, proj, engine.RunOptions{
		Entrypoint:  *entrypoint,
		Inputs:      inputs,
		DryRun:      *dryRun,
		Verbose:     *verbose,
		EmitSignals: *emitSignal,
		ArtifactDir: *artifactDir,
		NoArtifacts: *noArtifacts,
		RunID:       *runID,
		Resume:      *resume,
		StartFrom:   *startFrom,
		PublishTo:   *publishTo,
	})
	if err != nil {
		return err
	}

	if err := printResult(result, *outputFormat, *showTrace); err != nil {
		return err
	}

	if result.Err != nil {
		return result.Err
	}
	return nil
}

func resolveInputs(projectRoot, inputJSON, inputFile, inputFrom string) (map[string]any, error) {
	switch {
	case inputJSON != "":
		var inputs map[string]any
		if err := json.Unmarshal([]byte(inputJSON), &inputs); err != nil {
			return nil, fmt.Errorf("invalid --input JSON: %w", err)
		}
		return inputs, nil

	case inputFile != "":
		data, err := os.ReadFile(inputFile)
		if err != nil {
			return nil, err
		}
		var inputs map[string]any
		if err := json.Unmarshal(data, &inputs); err != nil {
			return nil, fmt.Errorf("invalid input file %s: %w", inputFile, err)
		}
		return inputs, nil

	case inputFrom != "":
		return artifacts.ResolveInputSource(inputFrom, projectRoot)
	}
	return nil, nil
}

func printResult(result *models.ExecutionResult, format string, showTrace bool) error {
	switch format {
	case "json":
		doc := map[string]any{
			"success": result.Success(),
			"outputs": result.Outputs,
		}
		if showTrace {
			doc["trace"] = result.Trace
		}
		if result.Err != nil {
			doc["error"] = result.Err.Error()
		}
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))

	case "text":
		for nodeID, output := range result.Outputs {
			fmt.Printf("%s: %v\n", nodeID, output)
		}

	default: // pretty
		fmt.Println(result.Summary())
		if len(result.Outputs) > 0 {
			data, err := json.MarshalIndent(result.Outputs, "", "  ")
			if err != nil {
				return err
			}
			fmt.Printf("\nOutputs:\n%s\n", data)
		}
		if showTrace {
			data, err := json.MarshalIndent(result.Trace, "", "  ")
			if err != nil {
				return err
			}
			fmt.Printf("\nTrace:\n%s\n", data)
		}
	}
	return nil
}
