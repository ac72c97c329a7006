package statuschannel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"mediarelay/internal/fileutil"
	"mediarelay/internal/jobstore"
	"mediarelay/internal/logging"
)

// Message is one undecoded queue delivery.
type Message struct {
	ID   string
	Body []byte
}

// StatusMessage is the JSON body the transcoder publishes.
type StatusMessage struct {
	ContentID       string `json:"content_id"`
	Status          string `json:"status"`
	OutputSizeBytes int64  `json:"output_size_bytes,omitempty"`
	Message         string `json:"message,omitempty"`
}

// Queue is the message queue collaborator.
type Queue interface {
	Receive(ctx context.Context, max int) ([]Message, error)
	Ack(ctx context.Context, msg Message) error
}

// SpoolQueue is a directory-backed queue. Each message is one JSON file; files
// are delivered in name order and removed on ack.
type SpoolQueue struct {
	dir string
	seq atomic.Uint64
}

// NewSpoolQueue creates the spool directory if needed.
func NewSpoolQueue(dir string) (*SpoolQueue, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("spool directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create spool directory: %w", err)
	}
	return &SpoolQueue{dir: dir}, nil
}

// Enqueue writes a status message for delivery.
func (q *SpoolQueue) Enqueue(msg StatusMessage) (string, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}
	name := fmt.Sprintf("%020d-%06d-%s.json", time.Now().UTC().UnixNano(), q.seq.Add(1)%1000000, uuid.NewString())
	if _, err := fileutil.WriteAtomic(filepath.Join(q.dir, name), strings.NewReader(string(payload)), 0o644); err != nil {
		return "", fmt.Errorf("spool message: %w", err)
	}
	return name, nil
}

// Receive returns up to max messages without removing them.
func (q *SpoolQueue) Receive(ctx context.Context, max int) ([]Message, error) {
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		return nil, fmt.Errorf("read spool: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Message
	for _, name := range names {
		if max > 0 && len(out) >= max {
			break
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
		body, err := os.ReadFile(filepath.Join(q.dir, name))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return out, fmt.Errorf("read message %s: %w", name, err)
		}
		out = append(out, Message{ID: name, Body: body})
	}
	return out, nil
}

// Ack removes a delivered message.
func (q *SpoolQueue) Ack(_ context.Context, msg Message) error {
	if msg.ID == "" || strings.ContainsAny(msg.ID, `/\`) {
		return fmt.Errorf("ack: invalid message id %q", msg.ID)
	}
	if err := os.Remove(filepath.Join(q.dir, msg.ID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("ack %s: %w", msg.ID, err)
	}
	return nil
}

// Depth returns the number of undelivered messages.
func (q *SpoolQueue) Depth(ctx context.Context) (int, error) {
	msgs, err := q.Receive(ctx, 0)
	return len(msgs), err
}

// QueueOptions bounds one drain.
type QueueOptions struct {
	BatchSize   int
	MaxBatches  int
	CallTimeout time.Duration
}

// QueueChannel drains completion events from a Queue.
type QueueChannel struct {
	queue  Queue
	opts   QueueOptions
	logger *slog.Logger
}

// NewQueueChannel wraps q as a Channel.
func NewQueueChannel(q Queue, opts QueueOptions, logger *slog.Logger) *QueueChannel {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.MaxBatches <= 0 {
		opts.MaxBatches = 1
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &QueueChannel{queue: q, opts: opts, logger: logger}
}

func (c *QueueChannel) Name() string { return "queue" }

func (c *QueueChannel) LogsEvents() bool { return true }

func (c *QueueChannel) Close() error { return nil }

// Collect drains up to MaxBatches batches. Every received message is acked
// after it is visited, whether or not it matched a job.
func (c *QueueChannel) Collect(ctx context.Context, _ []*jobstore.Job, visit Visit) (CollectStats, error) {
	var stats CollectStats
	for batch := 0; batch < c.opts.MaxBatches; batch++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		receiveCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
		msgs, err := c.queue.Receive(receiveCtx, c.opts.BatchSize)
		cancel()
		if err != nil {
			return stats, fmt.Errorf("receive: %w", err)
		}
		if len(msgs) == 0 {
			return stats, nil
		}
		for _, msg := range msgs {
			stats.Received++
			visit(ctx, decodeMessage(msg))

			ackCtx, ackCancel := context.WithTimeout(ctx, c.opts.CallTimeout)
			if err := c.queue.Ack(ackCtx, msg); err != nil {
				stats.AckFailures++
				logging.WarnWithContext(c.logger, "queue ack failed", "queue_ack_failed",
					logging.String("message_id", msg.ID),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "message will be redelivered and re-applied idempotently"),
				)
			}
			ackCancel()
		}
		if len(msgs) < c.opts.BatchSize {
			return stats, nil
		}
	}
	return stats, nil
}

func decodeMessage(msg Message) Signal {
	var body StatusMessage
	if err := json.Unmarshal(msg.Body, &body); err != nil {
		return Signal{Raw: string(msg.Body), Err: fmt.Errorf("decode message %s: %w", msg.ID, err)}
	}
	sig := Signal{
		ContentID:       strings.ToLower(strings.TrimSpace(body.ContentID)),
		Raw:             body.Status,
		OutputSizeBytes: body.OutputSizeBytes,
		Message:         body.Message,
	}
	if status, ok := Normalize(body.Status); ok {
		sig.Status = status
	}
	return sig
}
