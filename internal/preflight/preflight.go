package preflight

import (
	"context"
	"fmt"
	"strings"

	"captioner/internal/config"
	"captioner/internal/services"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Detail   string `json:"detail"`
	Optional bool   `json:"optional,omitempty"`
}

// Pinger reports whether a remote dependency is ready.
type Pinger interface {
	Health(ctx context.Context) error
}

// RunAll executes all applicable preflight checks for the given config.
// A nil sidecar skips the sidecar check.
func RunAll(ctx context.Context, cfg *config.Config, sidecar Pinger) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckBinary("FFmpeg", cfg.Media.FFmpegBinary),
	}
	if sidecar != nil {
		results = append(results, CheckSidecar(ctx, cfg.Engines.SidecarURL, sidecar))
	}
	if cfg.Engines.DiarizationEnabled {
		results = append(results, CheckHFToken(cfg.Engines.HFToken))
	}
	return results
}

// Err returns a configuration error naming every failed required check, or
// nil when all required checks passed.
func Err(results []Result) error {
	var failed []string
	for _, r := range results {
		if !r.Passed && !r.Optional {
			failed = append(failed, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return services.Wrap(services.ErrConfiguration, "preflight", "check dependencies",
		strings.Join(failed, "; "), nil)
}
