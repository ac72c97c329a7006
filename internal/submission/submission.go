package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"mediarelay/internal/config"
	"mediarelay/internal/contentid"
	"mediarelay/internal/jobstore"
	"mediarelay/internal/language"
	"mediarelay/internal/logging"
	"mediarelay/internal/objectstore"
	"mediarelay/internal/probe"
	"mediarelay/internal/services"
)

// Outcome summarizes what a Submit call did.
type Outcome string

const (
	OutcomeAccepted         Outcome = "accepted"
	OutcomeAlreadySubmitted Outcome = "already_submitted"
	OutcomeError            Outcome = "error"
)

// Asset is a local media file offered for conversion.
type Asset struct {
	Path string
	// Name is the source file name recorded on the job; defaults to the base of Path.
	Name string
	// ContentID, when set, is the hash the caller expects; Submit rejects the
	// asset if the file hashes differently.
	ContentID string
	// ReleaseLocal deletes Path after a confirmed upload.
	ReleaseLocal bool
}

// Result is the structured outcome of Submit.
type Result struct {
	ContentID string
	Outcome   Outcome
	Job       *jobstore.Job
	Err       error
}

// Service submits assets for conversion.
type Service struct {
	store       *jobstore.Store
	objects     objectstore.Store
	layout      objectstore.Layout
	prober      probe.Prober
	preset      string
	callTimeout time.Duration
	logger      *slog.Logger

	locksMu sync.Mutex
	locks   map[string]*lockEntry
}

// New constructs a submission service. prober may be nil.
func New(cfg *config.Config, store *jobstore.Store, objects objectstore.Store, prober probe.Prober, logger *slog.Logger) *Service {
	return &Service{
		store:       store,
		objects:     objects,
		layout:      objectstore.LayoutFromConfig(cfg),
		prober:      prober,
		preset:      cfg.Hosting.TranscodePreset,
		callTimeout: cfg.CallTimeout(),
		logger:      logging.NewComponentLogger(logger, "submission"),
	}
}

// Submit uploads asset unless its content is already submitted. Input errors
// are returned as errors with no side effects; upload and existence-check
// failures are reported through Result with OutcomeError.
func (s *Service) Submit(ctx context.Context, asset Asset) (Result, error) {
	path := strings.TrimSpace(asset.Path)
	if path == "" {
		return Result{}, services.Wrap(services.ErrValidation, "submission", "submit", "asset path required", nil)
	}
	info, err := os.Stat(path)
	if err != nil {
		return Result{}, services.Wrap(services.ErrValidation, "submission", "submit", "asset not readable", err)
	}
	if info.IsDir() {
		return Result{}, services.Wrap(services.ErrValidation, "submission", "submit", "asset is a directory", nil)
	}

	id, err := contentid.FromFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("hash asset: %w", err)
	}
	if expected := contentid.Normalize(asset.ContentID); expected != "" {
		if !contentid.Valid(expected) {
			return Result{}, services.Wrap(services.ErrValidation, "submission", "submit", fmt.Sprintf("invalid content id %q", asset.ContentID), nil)
		}
		if expected != id {
			return Result{}, services.Wrap(services.ErrValidation, "submission", "submit",
				fmt.Sprintf("content id %q does not match file hash %s", expected, id), nil)
		}
	}
	name := strings.TrimSpace(asset.Name)
	if name == "" {
		name = filepath.Base(path)
	}

	unlock := s.lock(id)
	defer unlock()

	ctx = services.WithContentID(ctx, id)
	logger := logging.WithContext(ctx, s.logger)

	job, created, err := s.create(ctx, logger, id, name, path)
	if err != nil {
		return Result{}, err
	}

	token := uuid.NewString()
	claimed, err := s.store.ClaimUpload(ctx, id, token, s.claimTTL())
	if err != nil {
		return Result{}, err
	}
	if !claimed {
		logger.Info("upload in progress elsewhere",
			logging.String(logging.FieldEventType, "submit_claimed"),
		)
		refreshed, err := s.store.GetJob(ctx, id)
		if err != nil {
			return Result{}, err
		}
		return Result{ContentID: id, Outcome: OutcomeAlreadySubmitted, Job: refreshed}, nil
	}
	defer func() {
		if err := s.store.ReleaseUpload(context.WithoutCancel(ctx), id, token); err != nil {
			logging.WarnWithContext(logger, "failed to release upload claim", "claim_release_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "other submitters wait for the claim to expire"),
			)
		}
	}()

	if !created {
		// Re-read under the claim: another submitter may have finished meanwhile.
		if job, err = s.store.GetJob(ctx, id); err != nil {
			return Result{}, err
		}
		done, result, err := s.checkExisting(ctx, logger, job)
		if err != nil || done {
			return result, err
		}
		if job, err = s.store.GetJob(ctx, id); err != nil {
			return Result{}, err
		}
	}

	return s.upload(ctx, logger, job, path, name, asset.ReleaseLocal)
}

// claimTTL bounds how long a crashed submitter can block others.
func (s *Service) claimTTL() time.Duration {
	if s.callTimeout <= 0 {
		return 10 * time.Minute
	}
	return 2 * s.callTimeout
}

// create records the job if it is new and probes the asset once. created
// reports whether this call inserted the row.
func (s *Service) create(ctx context.Context, logger *slog.Logger, id, name, path string) (*jobstore.Job, bool, error) {
	job, created, err := s.store.CreateJob(ctx, jobstore.NewJob{
		ContentID:  id,
		SourceName: name,
		InputKey:   s.layout.InputKey(id, name),
	})
	if err != nil {
		return nil, false, err
	}
	if !created || s.prober == nil {
		return job, created, nil
	}

	meta, err := s.prober.Probe(ctx, path)
	if err != nil {
		logging.WarnWithContext(logger, "metadata probe failed", "probe_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check probe.binary"),
			logging.String(logging.FieldImpact, "job recorded without duration or resolution"),
		)
		return job, true, nil
	}
	if err := s.store.UpdateProbe(ctx, id, jobstore.Probe{
		DurationSeconds: meta.DurationSeconds,
		Width:           meta.Width,
		Height:          meta.Height,
	}); err != nil {
		return nil, true, err
	}
	job, err = s.store.GetJob(ctx, id)
	return job, true, err
}

// checkExisting applies the idempotency guard for a known job. done reports
// that result is final and no upload should happen.
func (s *Service) checkExisting(ctx context.Context, logger *slog.Logger, job *jobstore.Job) (bool, Result, error) {
	id := job.ContentID
	already := Result{ContentID: id, Outcome: OutcomeAlreadySubmitted, Job: job}

	if job.TranscodeStatus == jobstore.TranscodeFinished {
		return true, already, nil
	}

	if !job.TranscodeStatus.IsFailure() {
		key := job.InputKey
		if key == "" {
			key = s.layout.InputKey(id, job.SourceName)
		}
		callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
		exists, err := s.objects.Exists(callCtx, key)
		cancel()
		if err != nil {
			wrapped := services.Wrap(services.ErrTransient, "submission", "exists", "remote input check failed", err)
			logging.WarnWithContext(logger, "remote input check failed; upload skipped", "input_check_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, services.Hint(wrapped)),
				logging.String(logging.FieldImpact, "submission not attempted; retry later"),
			)
			return true, Result{ContentID: id, Outcome: OutcomeError, Job: job, Err: wrapped}, nil
		}
		if exists {
			if job.UploadStatus != jobstore.UploadDone {
				if _, err := s.store.MarkUploaded(ctx, id, key); err != nil {
					return true, Result{}, err
				}
				refreshed, err := s.store.GetJob(ctx, id)
				if err != nil {
					return true, Result{}, err
				}
				already.Job = refreshed
			}
			logger.Info("content already submitted", logging.String(logging.FieldEventType, "submit_duplicate"))
			return true, already, nil
		}
	}

	if job.TranscodeStatus.IsFailure() || job.UploadStatus == jobstore.UploadError {
		if _, err := s.store.PrepareResubmit(ctx, id); err != nil {
			return true, Result{}, err
		}
		logger.Info("resubmitting failed job",
			logging.String(logging.FieldEventType, "submit_retry"),
			logging.String("previous_status", string(job.TranscodeStatus)),
		)
	}
	return false, Result{}, nil
}

func (s *Service) upload(ctx context.Context, logger *slog.Logger, job *jobstore.Job, path, name string, release bool) (Result, error) {
	id := job.ContentID
	key := s.layout.InputKey(id, name)

	file, err := os.Open(path)
	if err != nil {
		return Result{}, services.Wrap(services.ErrValidation, "submission", "open", "asset not readable", err)
	}
	metadata := map[string]string{
		"content_id":  id,
		"source_name": name,
	}
	if s.preset != "" {
		metadata["preset"] = s.preset
	}
	if err := s.attachSubtitleIntent(ctx, id, metadata); err != nil {
		_ = file.Close()
		return Result{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	putErr := s.objects.Put(callCtx, key, file, metadata)
	cancel()
	_ = file.Close()

	if putErr != nil {
		marker := services.ErrExternal
		if services.IsTransient(putErr) {
			marker = services.ErrTransient
		}
		wrapped := services.Wrap(marker, "submission", "upload", "input upload failed", putErr)
		if _, err := s.store.MarkUploadFailed(ctx, id, putErr.Error()); err != nil {
			return Result{}, err
		}
		logging.WarnWithContext(logger, "input upload failed", "upload_failed",
			logging.Error(putErr),
			logging.String(logging.FieldErrorHint, services.Hint(wrapped)),
			logging.String(logging.FieldImpact, "job left in UPLOAD_ERROR; resubmit to retry"),
		)
		refreshed, _ := s.store.GetJob(ctx, id)
		return Result{ContentID: id, Outcome: OutcomeError, Job: refreshed, Err: wrapped}, nil
	}

	applied, err := s.store.MarkUploaded(ctx, id, key)
	if err != nil {
		return Result{}, err
	}
	if !applied {
		logging.WarnWithContext(logger, "job changed during upload", "upload_race",
			logging.String(logging.FieldImpact, "upload kept; status left as recorded"),
		)
	}

	if release {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.WarnWithContext(logger, "failed to release local asset", "release_failed",
				logging.Error(err),
				logging.String("path", path),
				logging.String(logging.FieldImpact, "local copy remains on disk"),
			)
		}
	}

	refreshed, err := s.store.GetJob(ctx, id)
	if err != nil {
		return Result{}, err
	}
	logger.Info("content submitted",
		logging.String(logging.FieldEventType, "submit_accepted"),
		logging.String("input_key", key),
	)
	return Result{ContentID: id, Outcome: OutcomeAccepted, Job: refreshed}, nil
}

// attachSubtitleIntent tags the upload with a PENDING subtitle language so a
// transcoder that drives subtitle generation sees it.
func (s *Service) attachSubtitleIntent(ctx context.Context, id string, metadata map[string]string) error {
	requests, err := s.store.SubtitlesFor(ctx, id)
	if err != nil {
		return err
	}
	for _, req := range requests {
		if req.Status != jobstore.SubtitlePending {
			continue
		}
		metadata["subtitle_language"] = req.Language
		if req.Language != language.Original {
			metadata["subtitle_language_iso3"] = language.ToISO3(req.Language)
		}
		return nil
	}
	return nil
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// lock serializes submissions of the same content within this process.
// Entries are dropped once no caller holds or waits on them.
func (s *Service) lock(id string) func() {
	s.locksMu.Lock()
	if s.locks == nil {
		s.locks = make(map[string]*lockEntry)
	}
	entry, ok := s.locks[id]
	if !ok {
		entry = &lockEntry{}
		s.locks[id] = entry
	}
	entry.refs++
	s.locksMu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		s.locksMu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(s.locks, id)
		}
		s.locksMu.Unlock()
	}
}
