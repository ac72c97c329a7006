package subtitles

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mediarelay/internal/contentid"
	"mediarelay/internal/jobstore"
	"mediarelay/internal/logging"
	"mediarelay/internal/services"
)

// ReconcileResult summarizes one ReconcilePending pass.
type ReconcileResult struct {
	Checked      int
	Completed    int
	Failed       int
	StillPending int
}

// ReconcilePending checks every active request for its artifact. A request
// whose check fails is counted as still pending and never failed.
func (o *Orchestrator) ReconcilePending(ctx context.Context, timeout time.Duration) (ReconcileResult, error) {
	if timeout <= 0 {
		timeout = o.timeout
	}
	logger := logging.WithContext(ctx, o.logger)
	var result ReconcileResult

	active, err := o.store.ActiveSubtitles(ctx)
	if err != nil {
		return result, fmt.Errorf("load active subtitle requests: %w", err)
	}
	now := o.clock()
	for _, req := range active {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Checked++
		reqLogger := logger.With(
			logging.String(logging.FieldContentID, req.ContentID),
			logging.String(logging.FieldLanguage, req.Language),
		)
		if err := o.reconcileOne(ctx, reqLogger, req, now, timeout, &result); err != nil {
			result.StillPending++
			logging.ErrorWithContext(reqLogger, "failed to reconcile subtitle request", "subtitle_reconcile_failed", logging.Error(err))
		}
	}

	logger.Info("subtitle reconciliation complete",
		logging.String(logging.FieldEventType, "subtitle_reconcile_complete"),
		logging.Int("checked", result.Checked),
		logging.Int("completed", result.Completed),
		logging.Int("failed", result.Failed),
		logging.Int("still_pending", result.StillPending),
	)
	return result, nil
}

func (o *Orchestrator) reconcileOne(ctx context.Context, logger *slog.Logger, req *jobstore.SubtitleRequest, now time.Time, timeout time.Duration, result *ReconcileResult) error {
	key := o.layout.SubtitleKey(req.ContentID, req.Language)
	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	exists, err := o.objects.Exists(callCtx, key)
	cancel()
	if err != nil {
		result.StillPending++
		logging.WarnWithContext(logger, "subtitle artifact check failed", "subtitle_check_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.Hint(err)),
			logging.String(logging.FieldImpact, "request stays pending until the next run"),
		)
		return nil
	}

	if exists {
		applied, err := o.store.MarkSubtitleCompleted(ctx, req.ContentID, req.Language)
		if err != nil {
			return err
		}
		if !applied {
			return nil
		}
		result.Completed++
		logger.Info("subtitle completed", logging.String(logging.FieldEventType, "subtitle_completed"), logging.String("key", key))
		if err := o.refreshAggregate(ctx, req.ContentID); err != nil {
			logging.WarnWithContext(logger, "failed to refresh completed subtitle languages", "subtitle_aggregate_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "job subtitle_languages refreshed on the next completion"),
			)
		}
		return nil
	}

	if now.Sub(req.RequestedAt) <= timeout {
		result.StillPending++
		return nil
	}
	message := fmt.Sprintf("subtitle generation timed out after %s", timeout)
	applied, err := o.store.MarkSubtitleFailed(ctx, req.ContentID, req.Language, message)
	if err != nil {
		return err
	}
	if applied {
		result.Failed++
		logging.WarnWithContext(logger, "subtitle request timed out", "subtitle_timeout",
			logging.String(logging.FieldErrorHint, "retry the language once the generator is healthy"),
			logging.String(logging.FieldImpact, "request marked FAILED"),
		)
		o.failed(ctx, req.ContentID, req.Language)
	}
	return nil
}

// refreshAggregate rewrites the job's completed-language list for readers
// that predate per-language requests.
func (o *Orchestrator) refreshAggregate(ctx context.Context, contentID string) error {
	langs, err := o.store.CompletedSubtitleLanguages(ctx, contentID)
	if err != nil {
		return err
	}
	return o.store.SetSubtitleLanguages(ctx, contentID, langs)
}

// CleanupResult summarizes one CleanupStale pass.
type CleanupResult struct {
	Checked     int
	Recycled    int
	Failed      int
	Republished int
}

// Count is the number of requests the pass changed.
func (r CleanupResult) Count() int {
	return r.Recycled + r.Failed
}

// CleanupStale recycles active requests older than timeout while their retry
// budget lasts and fails them once it is spent. Recycled requests are
// republished on a best-effort basis.
func (o *Orchestrator) CleanupStale(ctx context.Context, timeout time.Duration) (CleanupResult, error) {
	if timeout <= 0 {
		timeout = o.staleAfter
	}
	logger := logging.WithContext(ctx, o.logger)
	var result CleanupResult

	active, err := o.store.ActiveSubtitles(ctx)
	if err != nil {
		return result, fmt.Errorf("load active subtitle requests: %w", err)
	}
	now := o.clock()
	for _, req := range active {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Checked++
		if now.Sub(req.RequestedAt) <= timeout {
			continue
		}
		reqLogger := logger.With(
			logging.String(logging.FieldContentID, req.ContentID),
			logging.String(logging.FieldLanguage, req.Language),
		)
		if err := o.cleanupOne(ctx, reqLogger, req, &result); err != nil {
			logging.ErrorWithContext(reqLogger, "failed to clean up stale subtitle request", "subtitle_cleanup_failed", logging.Error(err))
		}
	}

	logger.Info("stale subtitle cleanup complete",
		logging.String(logging.FieldEventType, "subtitle_cleanup_complete"),
		logging.Int("checked", result.Checked),
		logging.Int("recycled", result.Recycled),
		logging.Int("failed", result.Failed),
	)
	return result, nil
}

func (o *Orchestrator) cleanupOne(ctx context.Context, logger *slog.Logger, req *jobstore.SubtitleRequest, result *CleanupResult) error {
	if req.RetryCount >= o.maxRetries {
		message := fmt.Sprintf("retry budget exhausted after %d attempts", req.RetryCount)
		applied, err := o.store.MarkSubtitleFailed(ctx, req.ContentID, req.Language, message)
		if err != nil {
			return err
		}
		if applied {
			result.Failed++
			logging.WarnWithContext(logger, "subtitle retries exhausted", "subtitle_retries_exhausted",
				logging.Int("retry_count", req.RetryCount),
				logging.String(logging.FieldImpact, "request marked FAILED"),
			)
			o.failed(ctx, req.ContentID, req.Language)
		}
		return nil
	}

	applied, err := o.store.RecycleSubtitle(ctx, req.ContentID, req.Language, req.RetryCount)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}
	result.Recycled++
	logger.Info("stale subtitle request recycled",
		logging.String(logging.FieldEventType, "subtitle_recycled"),
		logging.Int("retry_count", req.RetryCount+1),
	)

	if o.publisher == nil {
		return nil
	}
	job, err := o.store.GetJob(ctx, req.ContentID)
	if err != nil || job == nil {
		return err
	}
	messageID, pubErr := o.publish(ctx, job, req.Language)
	if pubErr != nil {
		logging.WarnWithContext(logger, "republish after recycle failed", "subtitle_republish_failed",
			logging.Error(pubErr),
			logging.String(logging.FieldImpact, "request stays PENDING and is recycled again later"),
		)
		return nil
	}
	if ok, err := o.store.MarkSubtitleProcessing(ctx, req.ContentID, req.Language, messageID); err != nil {
		return err
	} else if ok {
		result.Republished++
	}
	return nil
}

// StatusReport is the subtitle state of one content identifier.
type StatusReport struct {
	ContentID       string
	TranscodeStatus jobstore.TranscodeStatus
	Requests        []*jobstore.SubtitleRequest
	Completed       []string
}

// Status returns every request recorded for contentID.
func (o *Orchestrator) Status(ctx context.Context, contentID string) (StatusReport, error) {
	id := contentid.Normalize(contentID)
	report := StatusReport{ContentID: id}
	job, err := o.store.GetJob(ctx, id)
	if err != nil {
		return report, err
	}
	requests, err := o.store.SubtitlesFor(ctx, id)
	if err != nil {
		return report, err
	}
	if job == nil && len(requests) == 0 {
		return report, services.Wrap(services.ErrNotFound, "subtitles", "status", fmt.Sprintf("no conversion job for %s", id), nil)
	}
	if job != nil {
		report.TranscodeStatus = job.TranscodeStatus
	}
	report.Requests = requests
	for _, req := range requests {
		if req.Status == jobstore.SubtitleCompleted {
			report.Completed = append(report.Completed, req.Language)
		}
	}
	return report, nil
}
