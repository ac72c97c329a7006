package engine_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mediarelay/internal/config"
	"mediarelay/internal/engine"
	"mediarelay/internal/jobstore"
	"mediarelay/internal/logging"
	"mediarelay/internal/services"
	"mediarelay/internal/statuschannel"
	"mediarelay/internal/submission"
	"mediarelay/internal/testsupport"
)

type recordingNotifier struct {
	mu       sync.Mutex
	finished []string
	failed   []string
	subtitle []string
	sweeps   int
}

func (n *recordingNotifier) NotifyJobFinished(_ context.Context, id, _ string, _ int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.finished = append(n.finished, id)
	return nil
}

func (n *recordingNotifier) NotifyJobFailed(_ context.Context, id, _, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, id)
	return nil
}

func (n *recordingNotifier) NotifySubtitleFailed(_ context.Context, _, lang, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subtitle = append(n.subtitle, lang)
	return nil
}

func (n *recordingNotifier) NotifySweepForced(context.Context, int, int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sweeps++
	return nil
}

func (n *recordingNotifier) TestNotification(context.Context) error { return nil }

type recordingInvalidator struct {
	ids []string
	err error
}

func (r *recordingInvalidator) Invalidate(_ context.Context, id string) error {
	r.ids = append(r.ids, id)
	return r.err
}

type fixture struct {
	cfg         *config.Config
	engine      *engine.Engine
	spool       *statuschannel.SpoolQueue
	publisher   *testsupport.Publisher
	notifier    *recordingNotifier
	invalidator *recordingInvalidator
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	objects := testsupport.NewObjectStore(t, cfg.Paths.ObjectDir)
	spool, err := statuschannel.NewSpoolQueue(cfg.Queue.SpoolDir)
	if err != nil {
		t.Fatalf("NewSpoolQueue failed: %v", err)
	}
	channel := statuschannel.NewQueueChannel(spool, statuschannel.QueueOptions{BatchSize: 10, MaxBatches: 5, CallTimeout: time.Second}, logging.NewNop())
	f := &fixture{
		cfg:         cfg,
		spool:       spool,
		publisher:   testsupport.NewPublisher(),
		notifier:    &recordingNotifier{},
		invalidator: &recordingInvalidator{},
	}
	eng, err := engine.New(cfg, store, engine.Options{
		Objects:     objects,
		Channel:     channel,
		Publisher:   f.publisher,
		Invalidator: f.invalidator,
		Notifier:    f.notifier,
		Logger:      logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("engine.New failed: %v", err)
	}
	f.engine = eng
	return f
}

func (f *fixture) submit(t *testing.T, name string, size int64) submission.Result {
	t.Helper()
	path := filepath.Join(f.cfg.Paths.AssetDir, name)
	testsupport.WriteFile(t, path, size)
	result, err := f.engine.SubmitConversion(context.Background(), submission.Asset{Path: path})
	if err != nil {
		t.Fatalf("SubmitConversion failed: %v", err)
	}
	if result.Outcome != submission.OutcomeAccepted {
		t.Fatalf("expected accepted, got %s (%v)", result.Outcome, result.Err)
	}
	return result
}

func TestFinishedJobTriggersHooksAndAutoSubtitles(t *testing.T) {
	f := newFixture(t, testsupport.WithAutoLanguages("en", "fr"))
	ctx := context.Background()
	submitted := f.submit(t, "movie.mkv", 512)

	if _, err := f.spool.Enqueue(statuschannel.StatusMessage{ContentID: submitted.ContentID, Status: "COMPLETE", OutputSizeBytes: 100}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	result, err := f.engine.RunReconciliation(ctx)
	if err != nil {
		t.Fatalf("RunReconciliation failed: %v", err)
	}
	if result.Finished != 1 {
		t.Fatalf("expected one finished job, got %#v", result)
	}
	if len(f.invalidator.ids) != 1 || len(f.notifier.finished) != 1 {
		t.Fatalf("expected invalidation and notification, got %v / %v", f.invalidator.ids, f.notifier.finished)
	}

	report, err := f.engine.SubtitleStatus(ctx, submitted.ContentID)
	if err != nil {
		t.Fatalf("SubtitleStatus failed: %v", err)
	}
	if len(report.Requests) != 2 {
		t.Fatalf("expected auto subtitle requests, got %#v", report.Requests)
	}
	for _, req := range report.Requests {
		if req.Status != jobstore.SubtitleProcessing {
			t.Fatalf("expected PROCESSING auto request, got %#v", req)
		}
	}
}

func TestInvalidatorFailureDoesNotBlockFinish(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	submitted := f.submit(t, "movie.mkv", 64)
	f.invalidator.err = errors.New("cache offline")

	if _, err := f.spool.Enqueue(statuschannel.StatusMessage{ContentID: submitted.ContentID, Status: "COMPLETED"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := f.engine.RunReconciliation(ctx); err != nil {
		t.Fatalf("RunReconciliation failed: %v", err)
	}
	job, err := f.engine.JobStatus(ctx, submitted.ContentID)
	if err != nil {
		t.Fatalf("JobStatus failed: %v", err)
	}
	if job.TranscodeStatus != jobstore.TranscodeFinished {
		t.Fatalf("expected FINISHED, got %s", job.TranscodeStatus)
	}
}

func TestFailedSignalNotifiesOperator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	submitted := f.submit(t, "movie.mkv", 64)

	if _, err := f.spool.Enqueue(statuschannel.StatusMessage{ContentID: submitted.ContentID, Status: "ERROR", Message: "bad input"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := f.engine.RunReconciliation(ctx); err != nil {
		t.Fatalf("RunReconciliation failed: %v", err)
	}
	if len(f.notifier.failed) != 1 || f.notifier.failed[0] != submitted.ContentID {
		t.Fatalf("expected failure notification, got %v", f.notifier.failed)
	}

	_, err := f.engine.RequestSubtitles(ctx, submitted.ContentID, []string{"en"})
	if !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("expected precondition error for failed job, got %v", err)
	}
}

func TestSubtitleFailureNotifiesOperator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	submitted := f.submit(t, "movie.mkv", 64)
	if _, err := f.spool.Enqueue(statuschannel.StatusMessage{ContentID: submitted.ContentID, Status: "COMPLETE"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := f.engine.RunReconciliation(ctx); err != nil {
		t.Fatalf("RunReconciliation failed: %v", err)
	}

	f.publisher.FailLanguage("de", testsupport.ErrInjected)
	result, err := f.engine.RequestSubtitles(ctx, submitted.ContentID, []string{"de"})
	if err != nil {
		t.Fatalf("RequestSubtitles failed: %v", err)
	}
	if result.Success() {
		t.Fatal("expected publish failure")
	}
	if len(f.notifier.subtitle) != 1 || f.notifier.subtitle[0] != "de" {
		t.Fatalf("expected subtitle failure notification, got %v", f.notifier.subtitle)
	}
}

func TestJobStatusErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.engine.JobStatus(ctx, "nope"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	missing := "0000000000000000000000000000000000000000000000000000000000000000"
	if _, err := f.engine.JobStatus(ctx, missing); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestHTTPInvalidatorPostsContentID(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		buf := make([]byte, 256)
		n, _ := r.Body.Read(buf)
		got = string(buf[:n])
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Hosting.InvalidateURL = server.URL
	if err := engine.NewInvalidator(cfg).Invalidate(context.Background(), "abc"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if got != `{"content_id":"abc"}` {
		t.Fatalf("unexpected body %q", got)
	}
}

func TestHTTPInvalidatorReportsStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Hosting.InvalidateURL = server.URL
	err := engine.NewInvalidator(cfg).Invalidate(context.Background(), "abc")
	if !errors.Is(err, services.ErrExternal) {
		t.Fatalf("expected external error, got %v", err)
	}
}

func TestOpenBuildsFromConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStatusChannel(config.ChannelNone))
	eng, err := engine.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer eng.Close()

	if eng.ChannelName() != config.ChannelNone {
		t.Fatalf("expected no channel, got %s", eng.ChannelName())
	}
	result, err := eng.RunReconciliation(context.Background())
	if err != nil {
		t.Fatalf("RunReconciliation failed: %v", err)
	}
	if !result.NoOp {
		t.Fatalf("expected no-op reconciliation, got %#v", result)
	}
	if eng.Metrics() == nil {
		t.Fatal("expected metrics enabled by default")
	}
}
