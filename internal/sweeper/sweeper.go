// Package sweeper forces a terminal decision for conversion jobs that have
// been in progress longer than the staleness window without any terminal
// signal. Output artifacts found in the object store count as completion;
// otherwise the job is failed.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mediarelay/internal/config"
	"mediarelay/internal/jobstore"
	"mediarelay/internal/logging"
	"mediarelay/internal/objectstore"
	"mediarelay/internal/reconcile"
)

const staleMessage = "no terminal status observed within the staleness window and no output artifacts found"

// Result summarizes one sweep.
type Result struct {
	Cutoff   time.Time
	Checked  int
	Finished int
	Failed   int
	Skipped  int
	Errors   int
}

// Sweeper resolves stale in-progress jobs.
type Sweeper struct {
	store         *jobstore.Store
	objects       objectstore.Store
	layout        objectstore.Layout
	window        time.Duration
	callTimeout   time.Duration
	requireSilent bool
	logger        *slog.Logger

	clockMu sync.RWMutex
	now     func() time.Time

	onFinished []reconcile.Hook
	onFailed   []reconcile.Hook
}

// New constructs a sweeper. In queue mode only jobs without a terminal entry
// in the channel event log are considered.
func New(cfg *config.Config, store *jobstore.Store, objects objectstore.Store, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:         store,
		objects:       objects,
		layout:        objectstore.LayoutFromConfig(cfg),
		window:        cfg.StalenessWindow(),
		callTimeout:   cfg.CallTimeout(),
		requireSilent: cfg.Hosting.StatusChannel == config.ChannelQueue,
		logger:        logging.NewComponentLogger(logger, "sweeper"),
		now:           time.Now,
	}
}

// SetClock replaces the time source. Intended for tests.
func (s *Sweeper) SetClock(now func() time.Time) {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	if now == nil {
		now = time.Now
	}
	s.now = now
}

// OnFinished registers a hook for jobs the sweep resolves as FINISHED.
func (s *Sweeper) OnFinished(hook reconcile.Hook) {
	if hook != nil {
		s.onFinished = append(s.onFinished, hook)
	}
}

// OnFailed registers a hook for jobs the sweep resolves as ERROR.
func (s *Sweeper) OnFailed(hook reconcile.Hook) {
	if hook != nil {
		s.onFailed = append(s.onFailed, hook)
	}
}

func (s *Sweeper) clock() time.Time {
	s.clockMu.RLock()
	defer s.clockMu.RUnlock()
	return s.now()
}

// Run sweeps once. A job whose output listing fails is skipped until the
// next sweep rather than failed.
func (s *Sweeper) Run(ctx context.Context) (Result, error) {
	logger := logging.WithContext(ctx, s.logger)
	result := Result{Cutoff: s.clock().Add(-s.window)}

	jobs, err := s.store.StaleJobs(ctx, result.Cutoff, s.requireSilent)
	if err != nil {
		return result, fmt.Errorf("load stale jobs: %w", err)
	}

	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Checked++
		jobLogger := logger.With(logging.String(logging.FieldContentID, job.ContentID))
		if err := s.resolve(ctx, jobLogger, job, &result); err != nil {
			result.Errors++
			logging.ErrorWithContext(jobLogger, "failed to resolve stale job", "sweep_resolve_failed", logging.Error(err))
		}
	}

	logger.Info("staleness sweep complete",
		logging.String(logging.FieldEventType, "sweep_complete"),
		logging.String("cutoff", result.Cutoff.UTC().Format(time.RFC3339)),
		logging.Int("checked", result.Checked),
		logging.Int("finished", result.Finished),
		logging.Int("failed", result.Failed),
		logging.Int("skipped", result.Skipped),
		logging.Int("errors", result.Errors),
	)
	return result, nil
}

func (s *Sweeper) resolve(ctx context.Context, logger *slog.Logger, job *jobstore.Job, result *Result) error {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	artifacts, err := s.objects.List(callCtx, s.layout.OutputPrefix(job.ContentID))
	cancel()
	if err != nil {
		result.Skipped++
		logging.WarnWithContext(logger, "output check failed; stale job left for next sweep", "sweep_output_check_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "job stays in progress until the next sweep"),
		)
		return nil
	}

	target := jobstore.TranscodeError
	outcome := jobstore.Outcome{Message: staleMessage}
	if len(artifacts) > 0 {
		target = jobstore.TranscodeFinished
		outcome = jobstore.Outcome{OutputSizeBytes: objectstore.TotalSize(artifacts)}
	}

	applied, err := s.store.AdvanceTranscode(ctx, job.ContentID, target, outcome)
	if err != nil {
		return err
	}
	if !applied {
		result.Skipped++
		return nil
	}

	updated, err := s.store.GetJob(ctx, job.ContentID)
	if err != nil {
		return err
	}
	if target == jobstore.TranscodeFinished {
		result.Finished++
		logger.Info("stale job resolved from output artifacts",
			logging.String(logging.FieldEventType, "sweep_forced_finished"),
			logging.Int("artifacts", len(artifacts)),
			logging.Int64("output_size_bytes", outcome.OutputSizeBytes),
		)
		for _, hook := range s.onFinished {
			hook(ctx, updated)
		}
		return nil
	}
	result.Failed++
	logging.WarnWithContext(logger, "stale job forced to ERROR", "sweep_forced_error",
		logging.String(logging.FieldErrorHint, "resubmit the asset if the transcoder lost the job"),
		logging.String(logging.FieldImpact, "job marked ERROR"),
	)
	for _, hook := range s.onFailed {
		hook(ctx, updated)
	}
	return nil
}
