package statuschannel

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"mediarelay/internal/jobstore"
	"mediarelay/internal/logging"
)

// Record is one entry of the key-value status table.
type Record struct {
	ContentID       string
	Status          string
	OutputSizeBytes int64
	Message         string
}

// KVStore is the key-value status collaborator.
type KVStore interface {
	Get(ctx context.Context, contentID string) (Record, bool, error)
}

// SQLKV reads the status table over database/sql. Postgres (lib/pq) and
// SQLite drivers are supported.
type SQLKV struct {
	db     *sql.DB
	driver string
	table  string
}

// OpenSQLKV connects to the status table.
func OpenSQLKV(driver, dsn, table string) (*SQLKV, error) {
	driver = strings.ToLower(strings.TrimSpace(driver))
	switch driver {
	case "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported kv driver %q", driver)
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("kv dsn required")
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open kv: %w", err)
	}
	return &SQLKV{db: db, driver: driver, table: table}, nil
}

func (k *SQLKV) bind(n int) string {
	if k.driver == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// EnsureTable creates the status table when it does not exist.
func (k *SQLKV) EnsureTable(ctx context.Context) error {
	_, err := k.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+k.table+` (
        content_id TEXT PRIMARY KEY,
        status TEXT NOT NULL,
        output_size_bytes BIGINT NOT NULL DEFAULT 0,
        message TEXT,
        updated_at TEXT
    )`)
	if err != nil {
		return fmt.Errorf("create kv table: %w", err)
	}
	return nil
}

// Get fetches the status entry for contentID.
func (k *SQLKV) Get(ctx context.Context, contentID string) (Record, bool, error) {
	var (
		rec     Record
		size    sql.NullInt64
		message sql.NullString
	)
	err := k.db.QueryRowContext(ctx,
		`SELECT content_id, status, output_size_bytes, message FROM `+k.table+` WHERE content_id = `+k.bind(1),
		contentID,
	).Scan(&rec.ContentID, &rec.Status, &size, &message)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("kv get %s: %w", contentID, err)
	}
	rec.OutputSizeBytes = size.Int64
	rec.Message = message.String
	return rec, true, nil
}

// Put upserts a status entry. The transcoder owns the table in production;
// this is used by operators and tests.
func (k *SQLKV) Put(ctx context.Context, rec Record) error {
	query := fmt.Sprintf(`INSERT INTO %s (content_id, status, output_size_bytes, message, updated_at)
        VALUES (%s, %s, %s, %s, %s)
        ON CONFLICT (content_id) DO UPDATE SET
            status = excluded.status,
            output_size_bytes = excluded.output_size_bytes,
            message = excluded.message,
            updated_at = excluded.updated_at`,
		k.table, k.bind(1), k.bind(2), k.bind(3), k.bind(4), k.bind(5))
	if _, err := k.db.ExecContext(ctx, query,
		rec.ContentID, rec.Status, rec.OutputSizeBytes, rec.Message, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("kv put %s: %w", rec.ContentID, err)
	}
	return nil
}

// Ping verifies connectivity.
func (k *SQLKV) Ping(ctx context.Context) error {
	return k.db.PingContext(ctx)
}

// Close releases the connection pool.
func (k *SQLKV) Close() error {
	return k.db.Close()
}

// KVChannel queries a KVStore once per pending job.
type KVChannel struct {
	kv          KVStore
	callTimeout time.Duration
	logger      *slog.Logger
}

// NewKVChannel wraps kv as a Channel.
func NewKVChannel(kv KVStore, callTimeout time.Duration, logger *slog.Logger) *KVChannel {
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &KVChannel{kv: kv, callTimeout: callTimeout, logger: logger}
}

func (c *KVChannel) Name() string { return "kv" }

func (c *KVChannel) LogsEvents() bool { return false }

// Close closes the underlying store when it owns resources.
func (c *KVChannel) Close() error {
	if closer, ok := c.kv.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// Collect looks up every pending job. A failed lookup is delivered as a
// signal carrying Err and never aborts the remaining lookups.
func (c *KVChannel) Collect(ctx context.Context, pending []*jobstore.Job, visit Visit) (CollectStats, error) {
	var stats CollectStats
	for _, job := range pending {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Received++
		lookupCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		rec, found, err := c.kv.Get(lookupCtx, job.ContentID)
		cancel()
		switch {
		case err != nil:
			visit(ctx, Signal{ContentID: job.ContentID, Err: err})
		case !found:
			visit(ctx, Signal{ContentID: job.ContentID, Absent: true})
		default:
			sig := Signal{
				ContentID:       job.ContentID,
				Raw:             rec.Status,
				OutputSizeBytes: rec.OutputSizeBytes,
				Message:         rec.Message,
			}
			if status, ok := Normalize(rec.Status); ok {
				sig.Status = status
			}
			visit(ctx, sig)
		}
	}
	return stats, nil
}
