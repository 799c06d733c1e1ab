// Package orchestration coordinates independent workflow runs through
// filesystem signals: spec resolution and polling waits with timeout.
package orchestration

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/groksrc/trident/pkg/artifacts"
	"github.com/groksrc/trident/pkg/models"
)

// WaitConfig configures signal waiting.
type WaitConfig struct {
	Signals      []string
	Timeout      time.Duration
	PollInterval time.Duration
}

// DefaultWaitConfig waits up to five minutes, polling every five seconds.
func DefaultWaitConfig(signals []string) WaitConfig {
	return WaitConfig{
		Signals:      signals,
		Timeout:      5 * time.Minute,
		PollInterval: 5 * time.Second,
	}
}

// ResolveSignalPath resolves a signal specification to a file path.
// Supported forms: signal:<workflow>.<type>, a project-relative path, or
// an absolute path.
func ResolveSignalPath(spec, projectRoot string) string {
	if name, ok := strings.CutPrefix(spec, "signal:"); ok {
		return filepath.Join(projectRoot, ".trident", "signals", name)
	}
	if filepath.IsAbs(spec) {
		return spec
	}
	return filepath.Join(projectRoot, spec)
}

// WaitForSignals polls until every signal file exists and parses, or the
// timeout elapses. Returns the loaded signals keyed by resolved path.
func WaitForSignals(ctx context.Context, cfg WaitConfig, projectRoot string) (map[string]*models.Signal, error) {
	if len(cfg.Signals) == 0 {
		return nil, nil
	}

	paths := make([]string, len(cfg.Signals))
	for i, spec := range cfg.Signals {
		paths[i] = ResolveSignalPath(spec, projectRoot)
	}

	results := make(map[string]*models.Signal)
	deadline := time.Now().Add(cfg.Timeout)

	for {
		for _, path := range paths {
			if _, done := results[path]; done {
				continue
			}
			if _, err := os.Stat(path); err != nil {
				continue
			}
			signal, err := artifacts.LoadSignal(path)
			if err != nil {
				// Exists but not yet parseable; the writer may still be
				// mid-flight. Retry next poll.
				continue
			}
			results[path] = signal
		}

		if len(results) == len(paths) {
			return results, nil
		}

		if time.Now().After(deadline) {
			var missing []string
			for _, path := range paths {
				if _, ok := results[path]; !ok {
					missing = append(missing, path)
				}
			}
			return nil, &models.SignalTimeoutError{
				Missing: missing,
				Timeout: cfg.Timeout.Seconds(),
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.PollInterval):
		}
	}
}

// CheckSignalsReady reports without blocking whether every signal exists,
// returning the missing specs.
func CheckSignalsReady(specs []string, projectRoot string) (bool, []string) {
	var missing []string
	for _, spec := range specs {
		if _, err := os.Stat(ResolveSignalPath(spec, projectRoot)); err != nil {
			missing = append(missing, spec)
		}
	}
	return len(missing) == 0, missing
}
