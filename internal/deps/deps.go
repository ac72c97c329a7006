// Package deps reports the availability of external binaries mediarelay
// shells out to.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"mediarelay/internal/config"
)

// Requirement defines an external binary mediarelay relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is a Requirement plus the outcome of looking it up on PATH.
type Status struct {
	Requirement
	Available bool
	Path      string
	Detail    string
}

// Requirements lists the binaries the given configuration needs. Probing is
// optional: a missing ffprobe only loses duration and resolution metadata.
func Requirements(cfg *config.Config) []Requirement {
	if cfg == nil || !cfg.Probe.Enabled {
		return nil
	}
	return []Requirement{{
		Name:        "FFprobe",
		Command:     cfg.Probe.Binary,
		Description: "Records duration and resolution of submitted assets",
		Optional:    true,
	}}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, len(requirements))
	for i, req := range requirements {
		req.Command = strings.TrimSpace(req.Command)
		results[i] = locate(req)
	}
	return results
}

func locate(req Requirement) Status {
	status := Status{Requirement: req}
	if req.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	path, err := exec.LookPath(req.Command)
	if err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", req.Command)
		return status
	}
	status.Available = true
	status.Path = path
	return status
}
