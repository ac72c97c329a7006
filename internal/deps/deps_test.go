package deps_test

import (
	"os"
	"path/filepath"
	"testing"

	"mediarelay/internal/config"
	"mediarelay/internal/deps"
)

func TestCheckBinaries(t *testing.T) {
	present := filepath.Join(t.TempDir(), "present")
	if err := os.WriteFile(present, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}

	results := deps.CheckBinaries([]deps.Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary", Optional: true},
		{Name: "Blank", Command: "  "},
	})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	if got := results[0]; !got.Available || got.Path != present || got.Detail != "" {
		t.Fatalf("expected present binary resolved, got %#v", got)
	}
	if got := results[1]; got.Available || got.Detail == "" || !got.Optional || got.Command != "clearly-not-present-binary" {
		t.Fatalf("expected missing optional binary reported, got %#v", got)
	}
	if got := results[2]; got.Available || got.Detail != "command not configured" {
		t.Fatalf("expected blank command reported, got %#v", got)
	}
}

func TestRequirementsFollowProbeToggle(t *testing.T) {
	cfg := config.Default()
	if reqs := deps.Requirements(&cfg); len(reqs) != 0 {
		t.Fatalf("expected no requirements with probing disabled, got %#v", reqs)
	}
	cfg.Probe.Enabled = true
	cfg.Probe.Binary = "/opt/ffprobe"
	reqs := deps.Requirements(&cfg)
	if len(reqs) != 1 || reqs[0].Command != "/opt/ffprobe" || !reqs[0].Optional {
		t.Fatalf("unexpected requirements %#v", reqs)
	}
	if deps.Requirements(nil) != nil {
		t.Fatal("expected nil config to need nothing")
	}
}
