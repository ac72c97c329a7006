package subtitles_test

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"mediarelay/internal/config"
	"mediarelay/internal/jobstore"
	"mediarelay/internal/logging"
	"mediarelay/internal/objectstore"
	"mediarelay/internal/services"
	"mediarelay/internal/subtitles"
	"mediarelay/internal/testsupport"
)

type fixture struct {
	cfg       *config.Config
	store     *jobstore.Store
	objects   *testsupport.ObjectStore
	publisher *testsupport.Publisher
	clock     *testsupport.Clock
	orch      *subtitles.Orchestrator
	layout    objectstore.Layout
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	objects := testsupport.NewObjectStore(t, cfg.Paths.ObjectDir)
	publisher := testsupport.NewPublisher()
	clock := testsupport.NewClock(time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC))
	store.SetClock(clock.Now)
	orch := subtitles.New(cfg, store, objects, publisher, logging.NewNop())
	orch.SetClock(clock.Now)
	return &fixture{
		cfg:       cfg,
		store:     store,
		objects:   objects,
		publisher: publisher,
		clock:     clock,
		orch:      orch,
		layout:    objectstore.LayoutFromConfig(cfg),
	}
}

func id(seed string) string {
	return strings.Repeat(seed, 64/len(seed))
}

func (f *fixture) finishedJob(t *testing.T, contentID string) {
	t.Helper()
	ctx := context.Background()
	if _, _, err := f.store.CreateJob(ctx, jobstore.NewJob{ContentID: contentID, SourceName: "movie.mkv"}); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if _, err := f.store.MarkUploaded(ctx, contentID, ""); err != nil {
		t.Fatalf("MarkUploaded failed: %v", err)
	}
	if _, err := f.store.AdvanceTranscode(ctx, contentID, jobstore.TranscodeFinished, jobstore.Outcome{OutputSizeBytes: 1}); err != nil {
		t.Fatalf("AdvanceTranscode failed: %v", err)
	}
}

func (f *fixture) request(t *testing.T, contentID, lang string) *jobstore.SubtitleRequest {
	t.Helper()
	req, err := f.store.GetSubtitle(context.Background(), contentID, lang)
	if err != nil {
		t.Fatalf("GetSubtitle failed: %v", err)
	}
	return req
}

func TestRequestValidatesAllLanguagesFirst(t *testing.T) {
	f := newFixture(t)
	contentID := id("a1")
	f.finishedJob(t, contentID)

	_, err := f.orch.Request(context.Background(), contentID, []string{"en", "xx-invalid"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	requests, _ := f.store.SubtitlesFor(context.Background(), contentID)
	if len(requests) != 0 {
		t.Fatalf("expected no requests written, got %d", len(requests))
	}
	if len(f.publisher.Messages()) != 0 {
		t.Fatal("expected nothing published")
	}
}

func TestRequestSkipsCompletedAndInFlightLanguages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	contentID := id("b2")
	f.finishedJob(t, contentID)
	if _, err := f.store.CreateSubtitle(ctx, contentID, "en"); err != nil {
		t.Fatalf("CreateSubtitle failed: %v", err)
	}
	if _, err := f.store.MarkSubtitleCompleted(ctx, contentID, "en"); err != nil {
		t.Fatalf("MarkSubtitleCompleted failed: %v", err)
	}
	if _, err := f.store.CreateSubtitle(ctx, contentID, "fr"); err != nil {
		t.Fatalf("CreateSubtitle failed: %v", err)
	}

	result, err := f.orch.Request(ctx, contentID, []string{"en", "fr", "es"})
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if strings.Join(result.Requested, ",") != "es" || strings.Join(result.Skipped, ",") != "en,fr" {
		t.Fatalf("unexpected result requested=%v skipped=%v", result.Requested, result.Skipped)
	}
	if !result.Success() || result.Partial() {
		t.Fatalf("expected full success, got %#v", result)
	}
	if req := f.request(t, contentID, "es"); req.Status != jobstore.SubtitleProcessing || req.MessageID == "" {
		t.Fatalf("unexpected es request %#v", req)
	}
	msgs := f.publisher.Messages()
	if len(msgs) != 1 || msgs[0].Language != "es" || msgs[0].ObjectKey != f.layout.OutputPrefix(contentID) || msgs[0].Filename != "movie.mkv" {
		t.Fatalf("unexpected published messages %#v", msgs)
	}
}

func TestRequestPreconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.orch.Request(ctx, id("c3"), []string{"en"}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	pending := id("d4")
	if _, _, err := f.store.CreateJob(ctx, jobstore.NewJob{ContentID: pending}); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if _, err := f.orch.Request(ctx, pending, []string{"en"}); !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}

	unconfigured := subtitles.New(f.cfg, f.store, f.objects, nil, logging.NewNop())
	if _, err := unconfigured.Request(ctx, pending, []string{"en"}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error without publisher, got %v", err)
	}
}

func TestRequestPublishFailureMarksFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	contentID := id("e5")
	f.finishedJob(t, contentID)
	f.publisher.FailLanguage("de", testsupport.ErrInjected)

	var hooked []string
	f.orch.OnFailed(func(_ context.Context, req *jobstore.SubtitleRequest) { hooked = append(hooked, req.Language) })

	result, err := f.orch.Request(ctx, contentID, []string{"en", "de"})
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if result.Success() || !result.Partial() {
		t.Fatalf("expected partial success, got %#v", result)
	}
	if strings.Join(result.Requested, ",") != "en" || len(result.Skipped) != 0 {
		t.Fatalf("unexpected requested=%v skipped=%v", result.Requested, result.Skipped)
	}
	if len(result.Errors) != 1 || result.Errors[0].Language != "de" {
		t.Fatalf("unexpected errors %#v", result.Errors)
	}
	req := f.request(t, contentID, "de")
	if req.Status != jobstore.SubtitleFailed || req.ErrorMessage == "" {
		t.Fatalf("unexpected de request %#v", req)
	}
	if len(hooked) != 1 || hooked[0] != "de" {
		t.Fatalf("expected failure hook for de, got %v", hooked)
	}
}

func TestRequestStoreFailureIsReportedPerLanguage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	contentID := id("f7")
	f.finishedJob(t, contentID)

	// A second connection installs a trigger that rejects German rows only.
	db, err := sql.Open("sqlite", f.cfg.DatabasePath())
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	defer db.Close()
	if _, err := db.ExecContext(ctx, `CREATE TRIGGER reject_de BEFORE INSERT ON subtitle_requests
        WHEN NEW.language = 'de' BEGIN SELECT RAISE(ABORT, 'disk quota exceeded'); END`); err != nil {
		t.Fatalf("create trigger failed: %v", err)
	}

	result, err := f.orch.Request(ctx, contentID, []string{"de", "en"})
	if err != nil {
		t.Fatalf("Request returned error instead of a per-language result: %v", err)
	}
	if strings.Join(result.Requested, ",") != "en" {
		t.Fatalf("expected en requested after de failed, got %v", result.Requested)
	}
	if len(result.Errors) != 1 || result.Errors[0].Language != "de" {
		t.Fatalf("expected one de error, got %#v", result.Errors)
	}
	if !strings.Contains(result.Errors[0].Message, "record request") {
		t.Fatalf("unexpected error message %q", result.Errors[0].Message)
	}
	if req := f.request(t, contentID, "de"); req != nil {
		t.Fatalf("expected no de row, got %#v", req)
	}
	if req := f.request(t, contentID, "en"); req == nil || req.Status != jobstore.SubtitleProcessing {
		t.Fatalf("expected en PROCESSING, got %#v", req)
	}
	if len(f.publisher.Messages()) != 1 {
		t.Fatalf("expected one trigger published, got %d", len(f.publisher.Messages()))
	}
}

func TestRequestReopensFailedInPlace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	contentID := id("f6")
	f.finishedJob(t, contentID)
	f.publisher.FailLanguage("it", testsupport.ErrInjected)
	if _, err := f.orch.Request(ctx, contentID, []string{"it"}); err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	original := f.request(t, contentID, "it")

	f.publisher.FailLanguage("it", nil)
	result, err := f.orch.Request(ctx, contentID, []string{"italian"})
	if err != nil {
		t.Fatalf("second Request failed: %v", err)
	}
	if strings.Join(result.Requested, ",") != "it" {
		t.Fatalf("expected it requested, got %#v", result)
	}
	reopened := f.request(t, contentID, "it")
	if reopened.ID != original.ID || reopened.RetryCount != 1 || reopened.ErrorMessage != "" {
		t.Fatalf("expected reopened identity with retry 1, got %#v", reopened)
	}
	if reopened.Status != jobstore.SubtitleProcessing {
		t.Fatalf("expected PROCESSING, got %s", reopened.Status)
	}
}

func TestRetryRequiresFailedRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	contentID := id("07")
	f.finishedJob(t, contentID)

	if _, err := f.orch.Retry(ctx, contentID, "en"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.orch.Request(ctx, contentID, []string{"en"}); err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if _, err := f.orch.Retry(ctx, contentID, "en"); !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("expected precondition error for active request, got %v", err)
	}
	if _, err := f.store.MarkSubtitleFailed(ctx, contentID, "en", "boom"); err != nil {
		t.Fatalf("MarkSubtitleFailed failed: %v", err)
	}
	result, err := f.orch.Retry(ctx, contentID, "EN")
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if !result.Success() || len(result.Requested) != 1 {
		t.Fatalf("unexpected retry result %#v", result)
	}
	if len(f.publisher.Messages()) != 2 {
		t.Fatalf("expected second publish, got %d", len(f.publisher.Messages()))
	}
}

func TestReconcilePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	contentID := id("18")
	f.finishedJob(t, contentID)
	if _, err := f.orch.Request(ctx, contentID, []string{"en", "fr"}); err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	f.clock.Advance(3 * time.Hour)
	if _, err := f.orch.Request(ctx, contentID, []string{"es"}); err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	f.objects.PutString(t, f.layout.SubtitleKey(contentID, "en"), "WEBVTT")

	result, err := f.orch.ReconcilePending(ctx, 2*time.Hour)
	if err != nil {
		t.Fatalf("ReconcilePending failed: %v", err)
	}
	if result.Checked != 3 || result.Completed != 1 || result.Failed != 1 || result.StillPending != 1 {
		t.Fatalf("unexpected result %#v", result)
	}
	if req := f.request(t, contentID, "fr"); req.Status != jobstore.SubtitleFailed || !strings.Contains(req.ErrorMessage, "timed out") {
		t.Fatalf("expected fr timeout failure, got %#v", req)
	}
	if req := f.request(t, contentID, "es"); req.Status != jobstore.SubtitleProcessing {
		t.Fatalf("expected es still processing, got %s", req.Status)
	}
	job, _ := f.store.GetJob(ctx, contentID)
	if strings.Join(job.SubtitleLanguages, ",") != "en" {
		t.Fatalf("expected legacy aggregate refreshed, got %v", job.SubtitleLanguages)
	}
}

func TestReconcilePendingCheckFailureNeverFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	contentID := id("29")
	f.finishedJob(t, contentID)
	if _, err := f.orch.Request(ctx, contentID, []string{"en"}); err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	f.clock.Advance(24 * time.Hour)
	f.objects.FailExists(testsupport.ErrInjected)

	result, err := f.orch.ReconcilePending(ctx, time.Hour)
	if err != nil {
		t.Fatalf("ReconcilePending failed: %v", err)
	}
	if result.StillPending != 1 || result.Failed != 0 {
		t.Fatalf("expected still pending on check error, got %#v", result)
	}
}

func TestCleanupStaleExhaustsRetryBudget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	contentID := id("3a")
	f.finishedJob(t, contentID)
	if _, err := f.orch.Request(ctx, contentID, []string{"en"}); err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	for sweep := 1; sweep <= 3; sweep++ {
		f.clock.Advance(time.Hour)
		result, err := f.orch.CleanupStale(ctx, 30*time.Minute)
		if err != nil {
			t.Fatalf("CleanupStale failed: %v", err)
		}
		if result.Recycled != 1 || result.Republished != 1 || result.Count() != 1 {
			t.Fatalf("sweep %d: unexpected result %#v", sweep, result)
		}
		req := f.request(t, contentID, "en")
		if req.RetryCount != sweep || req.Status != jobstore.SubtitleProcessing {
			t.Fatalf("sweep %d: unexpected request %#v", sweep, req)
		}
	}

	f.clock.Advance(time.Hour)
	result, err := f.orch.CleanupStale(ctx, 30*time.Minute)
	if err != nil {
		t.Fatalf("CleanupStale failed: %v", err)
	}
	if result.Failed != 1 || result.Recycled != 0 {
		t.Fatalf("expected budget exhaustion, got %#v", result)
	}
	req := f.request(t, contentID, "en")
	if req.Status != jobstore.SubtitleFailed || req.RetryCount != 3 {
		t.Fatalf("unexpected final request %#v", req)
	}

	f.clock.Advance(time.Hour)
	result, _ = f.orch.CleanupStale(ctx, 30*time.Minute)
	if result.Count() != 0 {
		t.Fatalf("failed request must not be recycled again, got %#v", result)
	}
}

func TestCleanupStaleLeavesFreshRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	contentID := id("4b")
	f.finishedJob(t, contentID)
	if _, err := f.orch.Request(ctx, contentID, []string{"en"}); err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	f.clock.Advance(10 * time.Minute)
	result, err := f.orch.CleanupStale(ctx, 30*time.Minute)
	if err != nil {
		t.Fatalf("CleanupStale failed: %v", err)
	}
	if result.Checked != 1 || result.Count() != 0 {
		t.Fatalf("unexpected result %#v", result)
	}
}

func TestStatusReportsRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	contentID := id("5c")

	if _, err := f.orch.Status(ctx, contentID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	f.finishedJob(t, contentID)
	if _, err := f.orch.Request(ctx, contentID, []string{"en", "original"}); err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	report, err := f.orch.Status(ctx, contentID)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if report.TranscodeStatus != jobstore.TranscodeFinished || len(report.Requests) != 2 || len(report.Completed) != 0 {
		t.Fatalf("unexpected report %#v", report)
	}
}
