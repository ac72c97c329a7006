package preflight

import (
	"context"

	"mediarelay/internal/config"
	"mediarelay/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Asset directory", cfg.Paths.AssetDir),
		CheckDirectoryAccess("Object store", cfg.Paths.ObjectDir),
	}

	results = append(results, CheckStatusChannel(ctx, cfg))

	if cfg.PubSub.Endpoint != "" {
		results = append(results, CheckPubSub(ctx, cfg.PubSub.Endpoint, cfg.CallTimeout()))
	} else {
		results = append(results, Result{Name: "Subtitle trigger", Optional: true, Detail: "not configured (subtitle requests disabled)"})
	}

	for _, status := range deps.CheckBinaries(deps.Requirements(cfg)) {
		result := Result{Name: status.Name, Passed: status.Available, Optional: status.Optional, Detail: status.Path}
		if !status.Available {
			result.Detail = status.Detail
		}
		results = append(results, result)
	}
	return results
}

// Failed reports whether any required check failed.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed && !r.Optional {
			return true
		}
	}
	return false
}
