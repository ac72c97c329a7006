package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mediarelay/internal/config"
	"mediarelay/internal/statuschannel"
	"mediarelay/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckStatusChannelModes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if result := CheckStatusChannel(context.Background(), cfg); !result.Passed {
		t.Fatalf("expected queue spool to pass, got %s", result.Detail)
	}

	none := testsupport.NewConfig(t, testsupport.WithStatusChannel(config.ChannelNone))
	if result := CheckStatusChannel(context.Background(), none); result.Passed {
		t.Fatal("expected missing channel to fail")
	}

	kv := testsupport.NewConfig(t, testsupport.WithKV())
	if result := CheckStatusChannel(context.Background(), kv); !result.Passed {
		t.Fatalf("expected sqlite kv to pass, got %s", result.Detail)
	}
}

func TestCheckQueueReportsBacklog(t *testing.T) {
	dir := t.TempDir()
	spool, err := statuschannel.NewSpoolQueue(dir)
	if err != nil {
		t.Fatalf("NewSpoolQueue failed: %v", err)
	}
	for _, status := range []string{"IN_PROGRESS", "COMPLETE"} {
		if _, err := spool.Enqueue(statuschannel.StatusMessage{ContentID: "abc", Status: status}); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}
	result := CheckQueue(context.Background(), dir)
	if !result.Passed || !strings.Contains(result.Detail, "2 pending") {
		t.Fatalf("expected backlog of 2, got %#v", result)
	}
}

func TestCheckKVCreatesLocalTable(t *testing.T) {
	kv := config.KV{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "kv.db"), Table: "transcode_status"}
	if result := CheckKV(context.Background(), kv, time.Second); !result.Passed {
		t.Fatalf("expected sqlite kv to pass, got %s", result.Detail)
	}

	store, err := statuschannel.OpenSQLKV(kv.Driver, kv.DSN, kv.Table)
	if err != nil {
		t.Fatalf("OpenSQLKV failed: %v", err)
	}
	defer store.Close()
	if _, found, err := store.Get(context.Background(), "abc"); err != nil || found {
		t.Fatalf("expected table to exist and be empty, found=%v err=%v", found, err)
	}
}

func TestCheckKVMissingDSN(t *testing.T) {
	result := CheckKV(context.Background(), config.KV{Driver: "postgres", Table: "t"}, time.Second)
	if result.Passed || !strings.Contains(result.Detail, "dsn") {
		t.Fatalf("expected dsn failure, got %#v", result)
	}
}

func TestCheckPubSub(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	defer srv.Close()

	if result := CheckPubSub(context.Background(), srv.URL, time.Second); !result.Passed {
		t.Fatalf("expected reachable endpoint, got %s", result.Detail)
	}

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()
	if result := CheckPubSub(context.Background(), failing.URL, time.Second); result.Passed {
		t.Fatal("expected 502 to fail")
	}
}

func TestRunAllMarksOptionalChecks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Probe.Enabled = true
	cfg.Probe.Binary = "clearly-not-present-ffprobe"

	results := RunAll(context.Background(), cfg)
	if Failed(results) {
		t.Fatalf("expected only optional failures, got %#v", results)
	}
	var sawProbe, sawTrigger bool
	for _, r := range results {
		switch r.Name {
		case "FFprobe":
			sawProbe = !r.Passed && r.Optional
		case "Subtitle trigger":
			sawTrigger = r.Optional
		}
	}
	if !sawProbe || !sawTrigger {
		t.Fatalf("expected optional probe and trigger results, got %#v", results)
	}
}

func TestFailedDetectsRequiredFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.ObjectDir = filepath.Join(t.TempDir(), "missing")
	if !Failed(RunAll(context.Background(), cfg)) {
		t.Fatal("expected missing object directory to fail preflight")
	}
}
