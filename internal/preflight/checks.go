package preflight

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"mediarelay/internal/config"
	"mediarelay/internal/statuschannel"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckStatusChannel verifies the configured authoritative status channel is
// complete and reachable. With no channel configured the check fails:
// reconciliation would be a no-op and jobs would only settle through the
// staleness sweep.
func CheckStatusChannel(ctx context.Context, cfg *config.Config) Result {
	const name = "Status channel"
	if !cfg.ChannelConfigured() {
		return Result{Name: name, Detail: "not configured (reconciliation disabled; only the staleness sweep will settle jobs)"}
	}
	switch cfg.Hosting.StatusChannel {
	case config.ChannelQueue:
		return CheckQueue(ctx, cfg.Queue.SpoolDir)
	default:
		return CheckKV(ctx, cfg.KV, cfg.CallTimeout())
	}
}

// CheckQueue verifies the spool directory and reports its backlog.
func CheckQueue(ctx context.Context, dir string) Result {
	const name = "Status channel"
	result := CheckDirectoryAccess(name, dir)
	if !result.Passed {
		return result
	}
	spool, err := statuschannel.NewSpoolQueue(dir)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("queue spool %s (error: %v)", dir, err)}
	}
	depth, err := spool.Depth(ctx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("queue spool %s (error: %v)", dir, err)}
	}
	result.Detail = fmt.Sprintf("queue spool %s, %d pending", result.Detail, depth)
	return result
}

// CheckKV pings the key-value status table. A local SQLite table is created
// when missing; a Postgres table belongs to the transcoder and is only pinged.
func CheckKV(ctx context.Context, kv config.KV, timeout time.Duration) Result {
	const name = "Status channel"
	if strings.TrimSpace(kv.DSN) == "" {
		return Result{Name: name, Detail: "kv dsn missing"}
	}
	store, err := statuschannel.OpenSQLKV(kv.Driver, kv.DSN, kv.Table)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("kv open failed (%v)", err)}
	}
	defer store.Close()

	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := store.Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("kv unreachable (%v)", err)}
	}
	if strings.EqualFold(kv.Driver, "sqlite") {
		if err := store.EnsureTable(checkCtx); err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("kv table %s unavailable (%v)", kv.Table, err)}
		}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("kv %s table %s reachable", kv.Driver, kv.Table)}
}

// CheckPubSub verifies that the trigger endpoint answers HTTP. Any response
// below 500 counts as reachable because the endpoint only accepts authenticated
// POSTs.
func CheckPubSub(ctx context.Context, endpoint string, timeout time.Duration) Result {
	const name = "Subtitle trigger"
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, strings.TrimSpace(endpoint), nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("invalid endpoint (%v)", err)}
	}
	resp, err := (&http.Client{Timeout: timeout}).Do(req)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("unreachable (%v)", err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return Result{Name: name, Detail: fmt.Sprintf("endpoint returned %d", resp.StatusCode)}
	}
	return Result{Name: name, Passed: true, Detail: "reachable"}
}
