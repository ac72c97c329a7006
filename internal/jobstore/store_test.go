package jobstore_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"mediarelay/internal/jobstore"
	"mediarelay/internal/testsupport"
)

func contentID(seed string) string {
	return strings.Repeat(seed, 64/len(seed))
}

func newStore(t *testing.T) (*jobstore.Store, *testsupport.Clock) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	clock := testsupport.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store.SetClock(clock.Now)
	return store, clock
}

func mustCreate(t *testing.T, store *jobstore.Store, id string) *jobstore.Job {
	t.Helper()
	job, created, err := store.CreateJob(context.Background(), jobstore.NewJob{ContentID: id, SourceName: "movie.mkv"})
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if !created {
		t.Fatalf("expected new job for %s", id)
	}
	return job
}

func TestCreateJobIsIdempotent(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	id := contentID("a1")

	job := mustCreate(t, store, id)
	if job.UploadStatus != jobstore.UploadPending || job.TranscodeStatus != jobstore.TranscodeAccepted {
		t.Fatalf("unexpected initial statuses: %s/%s", job.UploadStatus, job.TranscodeStatus)
	}

	again, created, err := store.CreateJob(ctx, jobstore.NewJob{ContentID: id, SourceName: "other.mkv"})
	if err != nil {
		t.Fatalf("second CreateJob failed: %v", err)
	}
	if created {
		t.Fatal("expected existing job to be reused")
	}
	if again.SourceName != "movie.mkv" {
		t.Fatalf("expected original source name, got %q", again.SourceName)
	}

	jobs, err := store.ListJobs(ctx)
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job row, got %d", len(jobs))
	}
}

func TestCreateJobRequiresContentID(t *testing.T) {
	store, _ := newStore(t)
	if _, _, err := store.CreateJob(context.Background(), jobstore.NewJob{}); err == nil {
		t.Fatal("expected error when content id missing")
	}
}

func TestGetJobMissingReturnsNil(t *testing.T) {
	store, _ := newStore(t)
	job, err := store.GetJob(context.Background(), contentID("ff"))
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job != nil {
		t.Fatalf("expected nil job, got %#v", job)
	}
}

func TestTranscodeRequiresUpload(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	id := contentID("b2")
	mustCreate(t, store, id)

	applied, err := store.AdvanceTranscode(ctx, id, jobstore.TranscodeFinished, jobstore.Outcome{OutputSizeBytes: 10})
	if err != nil {
		t.Fatalf("AdvanceTranscode failed: %v", err)
	}
	if applied {
		t.Fatal("expected transition to be rejected before upload")
	}

	if ok, err := store.MarkUploaded(ctx, id, "input/"+id+"/movie.mkv"); err != nil || !ok {
		t.Fatalf("MarkUploaded = %v, %v", ok, err)
	}
	job, _ := store.GetJob(ctx, id)
	if job.UploadStatus != jobstore.UploadDone || job.TranscodeStatus != jobstore.TranscodeInProgress {
		t.Fatalf("unexpected statuses after upload: %s/%s", job.UploadStatus, job.TranscodeStatus)
	}
	if job.SubmittedAt == nil {
		t.Fatal("expected submitted_at to be set")
	}
}

func TestTranscodeStatusNeverRegresses(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	id := contentID("c3")
	mustCreate(t, store, id)
	if _, err := store.MarkUploaded(ctx, id, ""); err != nil {
		t.Fatalf("MarkUploaded failed: %v", err)
	}

	applied, err := store.AdvanceTranscode(ctx, id, jobstore.TranscodeFinished, jobstore.Outcome{OutputSizeBytes: 4096})
	if err != nil || !applied {
		t.Fatalf("expected FINISHED to apply, got %v, %v", applied, err)
	}

	targets := []jobstore.TranscodeStatus{
		jobstore.TranscodeInProgress,
		jobstore.TranscodeError,
		jobstore.TranscodeNotFound,
		jobstore.TranscodeFinished,
	}
	for _, target := range targets {
		applied, err := store.AdvanceTranscode(ctx, id, target, jobstore.Outcome{OutputSizeBytes: 1})
		if err != nil {
			t.Fatalf("AdvanceTranscode(%s) failed: %v", target, err)
		}
		if applied {
			t.Fatalf("terminal job was rewritten to %s", target)
		}
	}
	if _, err := store.AdvanceTranscode(ctx, id, jobstore.TranscodeAccepted, jobstore.Outcome{}); err == nil {
		t.Fatal("expected ACCEPTED target to be rejected")
	}

	job, _ := store.GetJob(ctx, id)
	if job.TranscodeStatus != jobstore.TranscodeFinished || job.OutputSizeBytes != 4096 {
		t.Fatalf("unexpected job after regress attempts: %s size=%d", job.TranscodeStatus, job.OutputSizeBytes)
	}
	if job.CompletedAt == nil {
		t.Fatal("expected completed_at to be set")
	}
}

func TestMarkUploadFailedKeepsJobRetryable(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	id := contentID("d4")
	mustCreate(t, store, id)

	if ok, err := store.MarkUploadFailed(ctx, id, "connection reset"); err != nil || !ok {
		t.Fatalf("MarkUploadFailed = %v, %v", ok, err)
	}
	job, _ := store.GetJob(ctx, id)
	if job.UploadStatus != jobstore.UploadError || job.ErrorMessage != "connection reset" {
		t.Fatalf("unexpected job after upload failure: %#v", job)
	}

	if ok, err := store.PrepareResubmit(ctx, id); err != nil || !ok {
		t.Fatalf("PrepareResubmit = %v, %v", ok, err)
	}
	job, _ = store.GetJob(ctx, id)
	if job.UploadStatus != jobstore.UploadPending || job.ErrorMessage != "" {
		t.Fatalf("expected reset job, got %#v", job)
	}
}

func TestPrepareResubmitRejectsFinished(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	id := contentID("e5")
	mustCreate(t, store, id)
	_, _ = store.MarkUploaded(ctx, id, "")
	_, _ = store.AdvanceTranscode(ctx, id, jobstore.TranscodeFinished, jobstore.Outcome{})

	ok, err := store.PrepareResubmit(ctx, id)
	if err != nil {
		t.Fatalf("PrepareResubmit failed: %v", err)
	}
	if ok {
		t.Fatal("finished job must not be reset")
	}
}

func TestClaimUploadExcludesOtherTokensUntilExpiry(t *testing.T) {
	store, clock := newStore(t)
	ctx := context.Background()
	id := contentID("c7")
	mustCreate(t, store, id)

	ok, err := store.ClaimUpload(ctx, id, "first", 10*time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first claim, ok=%v err=%v", ok, err)
	}
	if ok, _ := store.ClaimUpload(ctx, id, "second", 10*time.Minute); ok {
		t.Fatal("second token must not take a held claim")
	}
	if ok, _ := store.ClaimUpload(ctx, id, "first", 10*time.Minute); !ok {
		t.Fatal("holder must be able to renew its claim")
	}

	if err := store.ReleaseUpload(ctx, id, "second"); err != nil {
		t.Fatalf("ReleaseUpload failed: %v", err)
	}
	if ok, _ := store.ClaimUpload(ctx, id, "second", 10*time.Minute); ok {
		t.Fatal("release by a non-holder must not drop the claim")
	}

	clock.Advance(11 * time.Minute)
	if ok, _ := store.ClaimUpload(ctx, id, "second", 10*time.Minute); !ok {
		t.Fatal("expired claim must be takeable")
	}
	if err := store.ReleaseUpload(ctx, id, "second"); err != nil {
		t.Fatalf("ReleaseUpload failed: %v", err)
	}
	if ok, _ := store.ClaimUpload(ctx, id, "third", 10*time.Minute); !ok {
		t.Fatal("released claim must be takeable")
	}

	if ok, _ := store.ClaimUpload(ctx, contentID("d8"), "first", time.Minute); ok {
		t.Fatal("claim on unknown job must fail")
	}
}

func TestStaleJobsRespectsCutoffAndChannelLog(t *testing.T) {
	store, clock := newStore(t)
	ctx := context.Background()

	old := contentID("0a")
	signalled := contentID("0b")
	for _, id := range []string{old, signalled} {
		mustCreate(t, store, id)
		if _, err := store.MarkUploaded(ctx, id, ""); err != nil {
			t.Fatalf("MarkUploaded failed: %v", err)
		}
	}
	for _, event := range []jobstore.ChannelEvent{
		{ContentID: signalled, Status: string(jobstore.TranscodeFinished), Matched: true, Applied: true},
		{ContentID: old, Status: string(jobstore.TranscodeError), Matched: true},
	} {
		if err := store.RecordChannelEvent(ctx, event); err != nil {
			t.Fatalf("RecordChannelEvent failed: %v", err)
		}
	}

	clock.Advance(8 * 24 * time.Hour)
	fresh := contentID("0c")
	mustCreate(t, store, fresh)
	_, _ = store.MarkUploaded(ctx, fresh, "")

	cutoff := clock.Now().Add(-7 * 24 * time.Hour)
	stale, err := store.StaleJobs(ctx, cutoff, true)
	if err != nil {
		t.Fatalf("StaleJobs failed: %v", err)
	}
	if len(stale) != 1 || stale[0].ContentID != old {
		t.Fatalf("expected only %s to be stale, got %v", old, jobIDs(stale))
	}

	stale, err = store.StaleJobs(ctx, cutoff, false)
	if err != nil {
		t.Fatalf("StaleJobs failed: %v", err)
	}
	if len(stale) != 2 {
		t.Fatalf("expected 2 stale jobs without channel log filter, got %v", jobIDs(stale))
	}
}

func jobIDs(jobs []*jobstore.Job) []string {
	out := make([]string, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, job.ContentID)
	}
	return out
}

func TestPendingJobsAndPurge(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	waiting := contentID("1a")
	uploaded := contentID("1b")
	mustCreate(t, store, waiting)
	mustCreate(t, store, uploaded)
	_, _ = store.MarkUploaded(ctx, uploaded, "")

	pending, err := store.PendingJobs(ctx)
	if err != nil {
		t.Fatalf("PendingJobs failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ContentID != uploaded {
		t.Fatalf("expected only uploaded job pending, got %v", jobIDs(pending))
	}

	if ok, _ := store.MarkInputPurged(ctx, uploaded); ok {
		t.Fatal("purge must require FINISHED")
	}
	_, _ = store.AdvanceTranscode(ctx, uploaded, jobstore.TranscodeFinished, jobstore.Outcome{})
	unpurged, _ := store.UnpurgedFinished(ctx)
	if len(unpurged) != 1 {
		t.Fatalf("expected one unpurged finished job, got %d", len(unpurged))
	}
	if ok, err := store.MarkInputPurged(ctx, uploaded); err != nil || !ok {
		t.Fatalf("MarkInputPurged = %v, %v", ok, err)
	}
	unpurged, _ = store.UnpurgedFinished(ctx)
	if len(unpurged) != 0 {
		t.Fatalf("expected no unpurged jobs, got %d", len(unpurged))
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[jobstore.TranscodeFinished] != 1 || stats[jobstore.TranscodeAccepted] != 1 {
		t.Fatalf("unexpected stats %#v", stats)
	}
}

func TestProbeAndSubtitleAggregate(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	id := contentID("2a")
	mustCreate(t, store, id)

	if err := store.UpdateProbe(ctx, id, jobstore.Probe{DurationSeconds: 5400.5, Width: 1920, Height: 1080}); err != nil {
		t.Fatalf("UpdateProbe failed: %v", err)
	}
	if err := store.SetSubtitleLanguages(ctx, id, []string{"en", "fr"}); err != nil {
		t.Fatalf("SetSubtitleLanguages failed: %v", err)
	}
	job, _ := store.GetJob(ctx, id)
	if job.Width != 1920 || job.Height != 1080 || job.DurationSeconds != 5400.5 {
		t.Fatalf("unexpected probe fields %#v", job)
	}
	if strings.Join(job.SubtitleLanguages, ",") != "en,fr" {
		t.Fatalf("unexpected subtitle languages %v", job.SubtitleLanguages)
	}
}

func TestSubtitleLifecycle(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	id := contentID("3a")

	req, err := store.CreateSubtitle(ctx, id, "en")
	if err != nil {
		t.Fatalf("CreateSubtitle failed: %v", err)
	}
	if req.ID == "" || req.Status != jobstore.SubtitlePending {
		t.Fatalf("unexpected new request %#v", req)
	}
	if _, err := store.CreateSubtitle(ctx, id, "en"); !errors.Is(err, jobstore.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate, got %v", err)
	}
	if _, err := store.ReopenSubtitle(ctx, id, "en"); !errors.Is(err, jobstore.ErrConflict) {
		t.Fatalf("expected ErrConflict reopening active request, got %v", err)
	}

	if ok, err := store.MarkSubtitleProcessing(ctx, id, "en", "msg-1"); err != nil || !ok {
		t.Fatalf("MarkSubtitleProcessing = %v, %v", ok, err)
	}
	if ok, _ := store.MarkSubtitleProcessing(ctx, id, "en", "msg-2"); ok {
		t.Fatal("processing transition must require PENDING")
	}
	if ok, err := store.MarkSubtitleFailed(ctx, id, "en", "timed out"); err != nil || !ok {
		t.Fatalf("MarkSubtitleFailed = %v, %v", ok, err)
	}

	reopened, err := store.ReopenSubtitle(ctx, id, "en")
	if err != nil {
		t.Fatalf("ReopenSubtitle failed: %v", err)
	}
	if reopened.ID != req.ID {
		t.Fatalf("expected reopened request to keep identity %s, got %s", req.ID, reopened.ID)
	}
	if reopened.Status != jobstore.SubtitlePending || reopened.RetryCount != 1 || reopened.ErrorMessage != "" {
		t.Fatalf("unexpected reopened request %#v", reopened)
	}

	if ok, err := store.MarkSubtitleCompleted(ctx, id, "en"); err != nil || !ok {
		t.Fatalf("MarkSubtitleCompleted = %v, %v", ok, err)
	}
	if ok, _ := store.MarkSubtitleFailed(ctx, id, "en", "late"); ok {
		t.Fatal("completed request must be immutable")
	}
	if _, err := store.ReopenSubtitle(ctx, id, "en"); !errors.Is(err, jobstore.ErrConflict) {
		t.Fatalf("expected ErrConflict reopening completed request, got %v", err)
	}

	langs, err := store.CompletedSubtitleLanguages(ctx, id)
	if err != nil {
		t.Fatalf("CompletedSubtitleLanguages failed: %v", err)
	}
	if len(langs) != 1 || langs[0] != "en" {
		t.Fatalf("unexpected completed languages %v", langs)
	}
}

func TestRecycleSubtitleGuardsRetryCount(t *testing.T) {
	store, clock := newStore(t)
	ctx := context.Background()
	id := contentID("4a")
	req, _ := store.CreateSubtitle(ctx, id, "fr")
	clock.Advance(time.Hour)

	if ok, err := store.RecycleSubtitle(ctx, id, "fr", req.RetryCount); err != nil || !ok {
		t.Fatalf("RecycleSubtitle = %v, %v", ok, err)
	}
	if ok, _ := store.RecycleSubtitle(ctx, id, "fr", req.RetryCount); ok {
		t.Fatal("second recycle with stale retry count must be rejected")
	}

	after, _ := store.GetSubtitle(ctx, id, "fr")
	if after.RetryCount != 1 {
		t.Fatalf("expected retry count 1, got %d", after.RetryCount)
	}
	if !after.RequestedAt.Equal(clock.Now()) {
		t.Fatalf("expected requested_at refreshed to %s, got %s", clock.Now(), after.RequestedAt)
	}

	active, err := store.ActiveSubtitles(ctx)
	if err != nil {
		t.Fatalf("ActiveSubtitles failed: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 active request, got %d", len(active))
	}
}

func TestChannelEventsRoundTrip(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	id := contentID("5a")
	if err := store.RecordChannelEvent(ctx, jobstore.ChannelEvent{ContentID: id, Status: "COMPLETE", Raw: `{"status":"COMPLETE"}`}); err != nil {
		t.Fatalf("RecordChannelEvent failed: %v", err)
	}
	events, err := store.ChannelEvents(ctx, id)
	if err != nil {
		t.Fatalf("ChannelEvents failed: %v", err)
	}
	if len(events) != 1 || events[0].Matched || events[0].Raw == "" {
		t.Fatalf("unexpected events %#v", events)
	}
}
