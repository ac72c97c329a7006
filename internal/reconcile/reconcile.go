package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mediarelay/internal/config"
	"mediarelay/internal/jobstore"
	"mediarelay/internal/logging"
	"mediarelay/internal/objectstore"
	"mediarelay/internal/services"
	"mediarelay/internal/statuschannel"
)

// Hook runs after a job reaches a terminal status in this process.
type Hook func(ctx context.Context, job *jobstore.Job)

// Result summarizes one reconciliation run.
type Result struct {
	Channel   string
	Checked   int
	Applied   int
	Finished  int
	Failed    int
	Unmatched int
	Skipped   int
	Errors    int
	Purged    int
	NoOp      bool
	Reason    string
}

// Reconciler applies status channel signals to the job store.
type Reconciler struct {
	store       *jobstore.Store
	channel     statuschannel.Channel
	objects     objectstore.Store
	layout      objectstore.Layout
	callTimeout time.Duration
	logger      *slog.Logger

	onFinished []Hook
	onFailed   []Hook
}

// New constructs a reconciler. channel may be nil, in which case every run is
// a logged no-op.
func New(cfg *config.Config, store *jobstore.Store, channel statuschannel.Channel, objects objectstore.Store, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:       store,
		channel:     channel,
		objects:     objects,
		layout:      objectstore.LayoutFromConfig(cfg),
		callTimeout: cfg.CallTimeout(),
		logger:      logging.NewComponentLogger(logger, "reconcile"),
	}
}

// OnFinished registers a hook invoked when a job moves to FINISHED.
func (r *Reconciler) OnFinished(hook Hook) {
	if hook != nil {
		r.onFinished = append(r.onFinished, hook)
	}
}

// OnFailed registers a hook invoked when a job moves to ERROR or NOT_FOUND.
func (r *Reconciler) OnFailed(hook Hook) {
	if hook != nil {
		r.onFailed = append(r.onFailed, hook)
	}
}

// Run performs one reconciliation pass. The returned error is non-nil only
// when the job store cannot be read or ctx ends mid-run.
func (r *Reconciler) Run(ctx context.Context) (Result, error) {
	logger := logging.WithContext(ctx, r.logger)
	if r.channel == nil {
		logging.WarnWithContext(logger, "no status channel configured; reconciliation skipped", "reconcile_noop",
			logging.String(logging.FieldErrorHint, "set hosting.status_channel to queue or kv"),
			logging.String(logging.FieldImpact, "jobs remain in progress until the staleness sweep"),
		)
		return Result{NoOp: true, Reason: "no status channel configured"}, nil
	}

	result := Result{Channel: r.channel.Name()}
	logger = logger.With(logging.String(logging.FieldChannel, result.Channel))

	pending, err := r.store.PendingJobs(ctx)
	if err != nil {
		return result, fmt.Errorf("load pending jobs: %w", err)
	}

	stats, collectErr := r.channel.Collect(ctx, pending, func(ctx context.Context, sig statuschannel.Signal) {
		if err := r.apply(ctx, logger, sig, &result); err != nil {
			result.Errors++
			logging.ErrorWithContext(logger, "failed to apply status signal", "reconcile_apply_failed",
				logging.String(logging.FieldContentID, sig.ContentID),
				logging.Error(err),
			)
		}
	})
	if collectErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		result.Errors++
		logging.WarnWithContext(logger, "status channel collection failed", "channel_collect_failed",
			logging.Error(collectErr),
			logging.String(logging.FieldErrorHint, services.Hint(collectErr)),
			logging.String(logging.FieldImpact, "remaining signals will be read on the next run"),
		)
	}
	result.Errors += stats.AckFailures

	r.purgeInputs(ctx, logger, &result)

	logger.Info("reconciliation complete",
		logging.String(logging.FieldEventType, "reconcile_complete"),
		logging.Int("checked", result.Checked),
		logging.Int("applied", result.Applied),
		logging.Int("finished", result.Finished),
		logging.Int("failed", result.Failed),
		logging.Int("unmatched", result.Unmatched),
		logging.Int("skipped", result.Skipped),
		logging.Int("errors", result.Errors),
		logging.Int("purged", result.Purged),
	)
	return result, ctx.Err()
}

// apply handles one signal. Returned errors are job store failures; every
// other outcome is recorded in result.
func (r *Reconciler) apply(ctx context.Context, logger *slog.Logger, sig statuschannel.Signal, result *Result) error {
	result.Checked++
	if sig.ContentID != "" {
		ctx = services.WithContentID(ctx, sig.ContentID)
		logger = logger.With(logging.String(logging.FieldContentID, sig.ContentID))
	}

	if sig.Err != nil {
		result.Errors++
		logging.WarnWithContext(logger, "status lookup failed", "status_lookup_failed",
			logging.Error(sig.Err),
			logging.String(logging.FieldErrorHint, services.Hint(sig.Err)),
			logging.String(logging.FieldImpact, "job stays pending until the next run"),
		)
		return nil
	}
	if sig.Absent {
		result.Skipped++
		return nil
	}

	job, err := r.store.GetJob(ctx, sig.ContentID)
	if err != nil {
		return err
	}
	if job == nil {
		result.Unmatched++
		logger.Debug("status signal for unknown content", logging.String("raw_status", sig.Raw))
		return r.record(ctx, sig, false, false)
	}
	if sig.Status == "" {
		result.Skipped++
		logging.WarnWithContext(logger, "unrecognized status value", "status_unrecognized",
			logging.String("raw_status", sig.Raw),
			logging.String(logging.FieldImpact, "signal ignored"),
		)
		return r.record(ctx, sig, true, false)
	}
	if job.TranscodeStatus.IsTerminal() || sig.Status == jobstore.TranscodeAccepted {
		result.Skipped++
		return r.record(ctx, sig, true, false)
	}

	outcome := jobstore.Outcome{Message: sig.Message}
	switch sig.Status {
	case jobstore.TranscodeFinished:
		outcome.Message = ""
		outcome.OutputSizeBytes = sig.OutputSizeBytes
		if outcome.OutputSizeBytes <= 0 {
			outcome.OutputSizeBytes = r.outputSize(ctx, logger, job.ContentID)
		}
	case jobstore.TranscodeError, jobstore.TranscodeNotFound:
		if outcome.Message == "" {
			outcome.Message = fmt.Sprintf("%s channel reported %s", result.Channel, sig.Raw)
		}
	}

	applied, err := r.store.AdvanceTranscode(ctx, job.ContentID, sig.Status, outcome)
	if err != nil {
		return err
	}
	if err := r.record(ctx, sig, true, applied); err != nil {
		return err
	}
	if !applied {
		result.Skipped++
		return nil
	}
	result.Applied++

	updated, err := r.store.GetJob(ctx, job.ContentID)
	if err != nil {
		return err
	}
	logger.Info("transcode status advanced",
		logging.String(logging.FieldEventType, "transcode_status_applied"),
		logging.String("from", string(job.TranscodeStatus)),
		logging.String("to", string(sig.Status)),
	)
	switch {
	case sig.Status == jobstore.TranscodeFinished:
		result.Finished++
		runHooks(ctx, r.onFinished, updated)
	case sig.Status.IsFailure():
		result.Failed++
		runHooks(ctx, r.onFailed, updated)
	}
	return nil
}

func (r *Reconciler) record(ctx context.Context, sig statuschannel.Signal, matched, applied bool) error {
	if !r.channel.LogsEvents() || sig.ContentID == "" {
		return nil
	}
	status := string(sig.Status)
	if status == "" {
		status = sig.Raw
	}
	return r.store.RecordChannelEvent(ctx, jobstore.ChannelEvent{
		ContentID: sig.ContentID,
		Status:    status,
		Raw:       sig.Raw,
		Matched:   matched,
		Applied:   applied,
	})
}

// outputSize sums the transcoder's artifacts. A listing failure yields zero
// and never blocks the FINISHED transition.
func (r *Reconciler) outputSize(ctx context.Context, logger *slog.Logger, contentID string) int64 {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	objects, err := r.objects.List(callCtx, r.layout.OutputPrefix(contentID))
	if err != nil {
		logging.WarnWithContext(logger, "output listing failed", "output_list_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "output size recorded as zero"),
		)
		return 0
	}
	return objectstore.TotalSize(objects)
}

// purgeInputs deletes the remote input of every finished job not yet purged.
// Any per-key failure leaves the job unpurged for the next run.
func (r *Reconciler) purgeInputs(ctx context.Context, logger *slog.Logger, result *Result) {
	jobs, err := r.store.UnpurgedFinished(ctx)
	if err != nil {
		result.Errors++
		logging.ErrorWithContext(logger, "failed to load finished jobs for purge", "purge_load_failed", logging.Error(err))
		return
	}
	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		jobLogger := logger.With(logging.String(logging.FieldContentID, job.ContentID))
		if err := r.purgeOne(ctx, job); err != nil {
			result.Errors++
			logging.WarnWithContext(jobLogger, "input purge failed", "input_purge_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "purge retried on the next run"),
			)
			continue
		}
		result.Purged++
		jobLogger.Debug("input purged", logging.String(logging.FieldEventType, "input_purged"))
	}
}

func (r *Reconciler) purgeOne(ctx context.Context, job *jobstore.Job) error {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	objects, err := r.objects.List(callCtx, r.layout.InputPrefix(job.ContentID))
	if err != nil {
		return fmt.Errorf("list inputs: %w", err)
	}
	keys := make([]string, 0, len(objects))
	for _, obj := range objects {
		keys = append(keys, obj.Key)
	}
	if len(keys) > 0 {
		var errs []error
		for _, res := range r.objects.Delete(callCtx, keys...) {
			if res.Err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", res.Key, res.Err))
			}
		}
		if len(errs) > 0 {
			return errors.Join(errs...)
		}
	}
	if _, err := r.store.MarkInputPurged(ctx, job.ContentID); err != nil {
		return err
	}
	return nil
}

func runHooks(ctx context.Context, hooks []Hook, job *jobstore.Job) {
	for _, hook := range hooks {
		hook(ctx, job)
	}
}
