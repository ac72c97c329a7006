// Package engine is the facade over the conversion core. It owns the wiring
// between the job store, the external collaborators, and the components that
// advance job and subtitle state, and exposes the operations the CLI, the
// scheduler, and the HTTP API call.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mediarelay/internal/config"
	"mediarelay/internal/contentid"
	"mediarelay/internal/jobstore"
	"mediarelay/internal/logging"
	"mediarelay/internal/metrics"
	"mediarelay/internal/notifications"
	"mediarelay/internal/objectstore"
	"mediarelay/internal/probe"
	"mediarelay/internal/pubsub"
	"mediarelay/internal/reconcile"
	"mediarelay/internal/services"
	"mediarelay/internal/statuschannel"
	"mediarelay/internal/submission"
	"mediarelay/internal/subtitles"
	"mediarelay/internal/sweeper"
)

// Options supplies collaborators. Nil fields get noop or disabled defaults,
// except Objects which is required.
type Options struct {
	Objects     objectstore.Store
	Channel     statuschannel.Channel
	Publisher   pubsub.Publisher
	Prober      probe.Prober
	Invalidator Invalidator
	Notifier    notifications.Service
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
	// Clock overrides the time source of the sweeper and subtitle
	// orchestrator. The store keeps its own clock.
	Clock func() time.Time
}

// Engine wires the core components together.
type Engine struct {
	cfg         *config.Config
	store       *jobstore.Store
	channel     statuschannel.Channel
	submitter   *submission.Service
	reconciler  *reconcile.Reconciler
	sweeper     *sweeper.Sweeper
	subtitles   *subtitles.Orchestrator
	invalidator Invalidator
	notifier    notifications.Service
	metrics     *metrics.Metrics
	logger      *slog.Logger

	closers []func() error
}

// New builds an engine over store using opts.
func New(cfg *config.Config, store *jobstore.Store, opts Options) (*Engine, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("engine: config and store required")
	}
	if opts.Objects == nil {
		return nil, errors.New("engine: object store required")
	}
	if opts.Invalidator == nil {
		opts.Invalidator = noopInvalidator{}
	}
	if opts.Notifier == nil {
		opts.Notifier = notifications.Noop()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	e := &Engine{
		cfg:         cfg,
		store:       store,
		channel:     opts.Channel,
		submitter:   submission.New(cfg, store, opts.Objects, opts.Prober, logger),
		reconciler:  reconcile.New(cfg, store, opts.Channel, opts.Objects, logger),
		sweeper:     sweeper.New(cfg, store, opts.Objects, logger),
		subtitles:   subtitles.New(cfg, store, opts.Objects, opts.Publisher, logger),
		invalidator: opts.Invalidator,
		notifier:    opts.Notifier,
		metrics:     opts.Metrics,
		logger:      logging.NewComponentLogger(logger, "engine"),
	}
	e.reconciler.OnFinished(e.jobFinished)
	e.reconciler.OnFailed(e.jobFailed)
	e.sweeper.OnFinished(e.jobFinished)
	e.sweeper.OnFailed(e.jobFailed)
	e.subtitles.OnFailed(e.subtitleFailed)
	if opts.Clock != nil {
		e.sweeper.SetClock(opts.Clock)
		e.subtitles.SetClock(opts.Clock)
	}
	return e, nil
}

// Open builds an engine and every collaborator from configuration.
func Open(cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	store, err := jobstore.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	objects, err := objectstore.NewFilesystem(cfg.Paths.ObjectDir)
	if err != nil {
		_ = store.Close()
		return nil, services.Wrap(services.ErrConfiguration, "engine", "open", "object store", err)
	}
	channel, err := statuschannel.New(cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	opts := Options{
		Objects:     objects,
		Channel:     channel,
		Prober:      probe.New(cfg),
		Invalidator: NewInvalidator(cfg),
		Notifier:    notifications.NewService(cfg),
		Logger:      logger,
	}
	if cfg.API.MetricsEnabled {
		opts.Metrics = metrics.New()
	}
	if publisher := pubsub.New(cfg); publisher != nil {
		opts.Publisher = publisher
	}

	e, err := New(cfg, store, opts)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if channel != nil {
		e.closers = append(e.closers, channel.Close)
	}
	e.closers = append(e.closers, store.Close)
	return e, nil
}

// Close releases resources opened by Open.
func (e *Engine) Close() error {
	var errs []error
	for _, closer := range e.closers {
		if err := closer(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() *config.Config { return e.cfg }

// Store exposes the job store for read-only reporting.
func (e *Engine) Store() *jobstore.Store { return e.store }

// Metrics returns the metrics sink, or nil when disabled.
func (e *Engine) Metrics() *metrics.Metrics { return e.metrics }

// Notifier returns the operator alert service.
func (e *Engine) Notifier() notifications.Service { return e.notifier }

// ChannelName reports the configured status channel, or "none".
func (e *Engine) ChannelName() string {
	if e.channel == nil {
		return config.ChannelNone
	}
	return e.channel.Name()
}

// SubmitConversion submits one asset.
func (e *Engine) SubmitConversion(ctx context.Context, asset submission.Asset) (submission.Result, error) {
	result, err := e.submitter.Submit(ctx, asset)
	outcome := string(result.Outcome)
	if err != nil {
		outcome = "rejected"
	}
	e.metrics.ObserveSubmission(outcome)
	return result, err
}

// JobStatus returns the job for contentID.
func (e *Engine) JobStatus(ctx context.Context, contentID string) (*jobstore.Job, error) {
	id := contentid.Normalize(contentID)
	if !contentid.Valid(id) {
		return nil, services.Wrap(services.ErrValidation, "engine", "status", fmt.Sprintf("invalid content id %q", contentID), nil)
	}
	job, err := e.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, services.Wrap(services.ErrNotFound, "engine", "status", fmt.Sprintf("no conversion job for %s", id), nil)
	}
	return job, nil
}

// ChannelEvents returns the queue channel log for an existing job.
func (e *Engine) ChannelEvents(ctx context.Context, contentID string) ([]jobstore.ChannelEvent, error) {
	job, err := e.JobStatus(ctx, contentID)
	if err != nil {
		return nil, err
	}
	return e.store.ChannelEvents(ctx, job.ContentID)
}

// ListJobs lists jobs, optionally filtered by transcode status.
func (e *Engine) ListJobs(ctx context.Context, statuses ...jobstore.TranscodeStatus) ([]*jobstore.Job, error) {
	return e.store.ListJobs(ctx, statuses...)
}

// RequestSubtitles requests subtitle generation for languages.
func (e *Engine) RequestSubtitles(ctx context.Context, contentID string, languages []string) (subtitles.RequestResult, error) {
	result, err := e.subtitles.Request(ctx, contentID, languages)
	e.observeSubtitleRequest(result)
	return result, err
}

// RetrySubtitle reopens one FAILED subtitle request.
func (e *Engine) RetrySubtitle(ctx context.Context, contentID, language string) (subtitles.RequestResult, error) {
	result, err := e.subtitles.Retry(ctx, contentID, language)
	e.observeSubtitleRequest(result)
	return result, err
}

func (e *Engine) observeSubtitleRequest(result subtitles.RequestResult) {
	e.metrics.AddSubtitleLanguages("requested", len(result.Requested))
	e.metrics.AddSubtitleLanguages("skipped", len(result.Skipped))
	e.metrics.AddSubtitleLanguages("error", len(result.Errors))
}

// SubtitleStatus reports subtitle requests for contentID.
func (e *Engine) SubtitleStatus(ctx context.Context, contentID string) (subtitles.StatusReport, error) {
	return e.subtitles.Status(ctx, contentID)
}

// RunReconciliation applies the authoritative status channel once.
func (e *Engine) RunReconciliation(ctx context.Context) (reconcile.Result, error) {
	started := time.Now()
	result, err := e.reconciler.Run(ctx)
	e.metrics.ObserveRun(metrics.RunReconcile, started, err)
	e.metrics.AddTransitions("reconcile", string(jobstore.TranscodeFinished), result.Finished)
	e.metrics.AddTransitions("reconcile", "FAILED", result.Failed)
	e.refreshJobGauge(ctx)
	return result, err
}

// RunStalenessSweep forces terminal decisions for stale jobs.
func (e *Engine) RunStalenessSweep(ctx context.Context) (sweeper.Result, error) {
	started := time.Now()
	result, err := e.sweeper.Run(ctx)
	e.metrics.ObserveRun(metrics.RunSweep, started, err)
	e.metrics.AddTransitions("sweep", string(jobstore.TranscodeFinished), result.Finished)
	e.metrics.AddTransitions("sweep", string(jobstore.TranscodeError), result.Failed)
	if result.Finished+result.Failed > 0 {
		if notifyErr := e.notifier.NotifySweepForced(ctx, result.Finished, result.Failed); notifyErr != nil {
			e.warnNotify(ctx, notifyErr)
		}
	}
	e.refreshJobGauge(ctx)
	return result, err
}

// RunSubtitleReconciliation checks active subtitle requests for artifacts
// using the configured timeout.
func (e *Engine) RunSubtitleReconciliation(ctx context.Context) (subtitles.ReconcileResult, error) {
	started := time.Now()
	result, err := e.subtitles.ReconcilePending(ctx, e.cfg.SubtitleTimeout())
	e.metrics.ObserveRun(metrics.RunSubtitleReconcile, started, err)
	e.metrics.AddTransitions("subtitles", string(jobstore.SubtitleCompleted), result.Completed)
	e.metrics.AddTransitions("subtitles", string(jobstore.SubtitleFailed), result.Failed)
	return result, err
}

// CleanupStaleSubtitles recycles or fails subtitle requests older than
// timeout. A zero timeout uses subtitles.stale_minutes.
func (e *Engine) CleanupStaleSubtitles(ctx context.Context, timeout time.Duration) (subtitles.CleanupResult, error) {
	started := time.Now()
	result, err := e.subtitles.CleanupStale(ctx, timeout)
	e.metrics.ObserveRun(metrics.RunSubtitleCleanup, started, err)
	e.metrics.AddTransitions("subtitle_cleanup", string(jobstore.SubtitlePending), result.Recycled)
	e.metrics.AddTransitions("subtitle_cleanup", string(jobstore.SubtitleFailed), result.Failed)
	return result, err
}

func (e *Engine) refreshJobGauge(ctx context.Context) {
	if e.metrics == nil {
		return
	}
	stats, err := e.store.Stats(ctx)
	if err != nil {
		return
	}
	counts := make(map[string]int, len(stats))
	for status, count := range stats {
		counts[string(status)] = count
	}
	e.metrics.SetJobCounts(counts)
}

func (e *Engine) jobFinished(ctx context.Context, job *jobstore.Job) {
	logger := logging.WithContext(services.WithContentID(ctx, job.ContentID), e.logger)
	if err := e.invalidator.Invalidate(ctx, job.ContentID); err != nil {
		logging.WarnWithContext(logger, "listing cache invalidation failed", "invalidate_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.Hint(err)),
			logging.String(logging.FieldImpact, "listings may show the job as pending until their cache expires"),
		)
	}
	if err := e.notifier.NotifyJobFinished(ctx, job.ContentID, job.SourceName, job.OutputSizeBytes); err != nil {
		e.warnNotify(ctx, err)
	}

	auto := e.cfg.Subtitles.AutoLanguages
	if len(auto) == 0 {
		return
	}
	result, err := e.RequestSubtitles(ctx, job.ContentID, auto)
	if err != nil {
		logging.WarnWithContext(logger, "automatic subtitle request failed", "auto_subtitles_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.Hint(err)),
			logging.String(logging.FieldImpact, "request subtitles manually"),
		)
		return
	}
	logger.Info("automatic subtitles requested",
		logging.String(logging.FieldEventType, "auto_subtitles_requested"),
		logging.Int("requested", len(result.Requested)),
		logging.Int("errors", len(result.Errors)),
	)
}

func (e *Engine) jobFailed(ctx context.Context, job *jobstore.Job) {
	if err := e.notifier.NotifyJobFailed(ctx, job.ContentID, job.SourceName, string(job.TranscodeStatus), job.ErrorMessage); err != nil {
		e.warnNotify(ctx, err)
	}
}

func (e *Engine) subtitleFailed(ctx context.Context, req *jobstore.SubtitleRequest) {
	if err := e.notifier.NotifySubtitleFailed(ctx, req.ContentID, req.Language, req.ErrorMessage); err != nil {
		e.warnNotify(ctx, err)
	}
}

func (e *Engine) warnNotify(ctx context.Context, err error) {
	logging.WarnWithContext(logging.WithContext(ctx, e.logger), "operator notification failed", "notification_failed",
		logging.Error(err),
		logging.String(logging.FieldImpact, "alert not delivered"),
	)
}
