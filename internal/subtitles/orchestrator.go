package subtitles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"mediarelay/internal/config"
	"mediarelay/internal/contentid"
	"mediarelay/internal/jobstore"
	"mediarelay/internal/language"
	"mediarelay/internal/logging"
	"mediarelay/internal/objectstore"
	"mediarelay/internal/pubsub"
	"mediarelay/internal/services"
)

// FailureHook runs when a request becomes terminally FAILED.
type FailureHook func(ctx context.Context, req *jobstore.SubtitleRequest)

// Orchestrator drives subtitle requests.
type Orchestrator struct {
	store       *jobstore.Store
	objects     objectstore.Store
	publisher   pubsub.Publisher
	layout      objectstore.Layout
	topic       string
	timeout     time.Duration
	staleAfter  time.Duration
	maxRetries  int
	callTimeout time.Duration
	logger      *slog.Logger

	clockMu sync.RWMutex
	now     func() time.Time

	onFailed []FailureHook
}

// New constructs an orchestrator. publisher may be nil, in which case
// Request and Retry report a configuration error.
func New(cfg *config.Config, store *jobstore.Store, objects objectstore.Store, publisher pubsub.Publisher, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:       store,
		objects:     objects,
		publisher:   publisher,
		layout:      objectstore.LayoutFromConfig(cfg),
		topic:       cfg.PubSub.Topic,
		timeout:     cfg.SubtitleTimeout(),
		staleAfter:  cfg.SubtitleStaleAfter(),
		maxRetries:  cfg.Subtitles.MaxRetries,
		callTimeout: cfg.CallTimeout(),
		logger:      logging.NewComponentLogger(logger, "subtitles"),
		now:         time.Now,
	}
}

// SetClock replaces the time source. Intended for tests.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.clockMu.Lock()
	defer o.clockMu.Unlock()
	if now == nil {
		now = time.Now
	}
	o.now = now
}

func (o *Orchestrator) clock() time.Time {
	o.clockMu.RLock()
	defer o.clockMu.RUnlock()
	return o.now()
}

// OnFailed registers a hook for requests that end FAILED.
func (o *Orchestrator) OnFailed(hook FailureHook) {
	if hook != nil {
		o.onFailed = append(o.onFailed, hook)
	}
}

func (o *Orchestrator) failed(ctx context.Context, contentID, lang string) {
	if len(o.onFailed) == 0 {
		return
	}
	req, err := o.store.GetSubtitle(ctx, contentID, lang)
	if err != nil || req == nil {
		return
	}
	for _, hook := range o.onFailed {
		hook(ctx, req)
	}
}

// LanguageError reports a language that could not be requested.
type LanguageError struct {
	Language string
	Message  string
}

// RequestResult is the outcome of Request and Retry.
type RequestResult struct {
	ContentID string
	Requested []string
	Skipped   []string
	Errors    []LanguageError
}

// Success reports whether no language failed.
func (r RequestResult) Success() bool {
	return len(r.Errors) == 0
}

// Partial reports that some languages were requested and others failed.
func (r RequestResult) Partial() bool {
	return len(r.Requested) > 0 && len(r.Errors) > 0
}

// Request asks for subtitles in each language. Input errors are returned
// before any record is written; per-language publish and job store failures
// are reported in the result and the remaining languages are still processed.
func (o *Orchestrator) Request(ctx context.Context, contentID string, languages []string) (RequestResult, error) {
	id := contentid.Normalize(contentID)
	result := RequestResult{ContentID: id}

	langs, invalid := language.NormalizeList(languages)
	if len(invalid) > 0 {
		return result, services.Wrap(services.ErrValidation, "subtitles", "request",
			fmt.Sprintf("unsupported language codes: %s", strings.Join(invalid, ", ")), nil)
	}
	if len(langs) == 0 {
		return result, services.Wrap(services.ErrValidation, "subtitles", "request", "at least one language required", nil)
	}
	job, err := o.finishedJob(ctx, id)
	if err != nil {
		return result, err
	}

	existing, err := o.store.SubtitlesFor(ctx, id)
	if err != nil {
		return result, err
	}
	byLang := make(map[string]*jobstore.SubtitleRequest, len(existing))
	for _, req := range existing {
		byLang[req.Language] = req
	}

	ctx = services.WithContentID(ctx, id)
	logger := logging.WithContext(ctx, o.logger)
	for _, lang := range langs {
		if req, ok := byLang[lang]; ok && req.Status != jobstore.SubtitleFailed {
			result.Skipped = append(result.Skipped, lang)
			continue
		}
		var openErr error
		if _, ok := byLang[lang]; ok {
			_, openErr = o.store.ReopenSubtitle(ctx, id, lang)
		} else {
			_, openErr = o.store.CreateSubtitle(ctx, id, lang)
		}
		if errors.Is(openErr, jobstore.ErrConflict) {
			result.Skipped = append(result.Skipped, lang)
			continue
		}
		if openErr != nil {
			o.languageFailed(logger, &result, lang, "record request", openErr)
			continue
		}
		if err := o.trigger(ctx, logger, job, lang, &result); err != nil {
			o.languageFailed(logger, &result, lang, "record trigger outcome", err)
		}
	}

	logger.Info("subtitle request processed",
		logging.String(logging.FieldEventType, "subtitle_request"),
		logging.String("requested", strings.Join(result.Requested, ",")),
		logging.String("skipped", strings.Join(result.Skipped, ",")),
		logging.Int("errors", len(result.Errors)),
	)
	return result, nil
}

// Retry reopens one FAILED request and publishes its trigger again.
func (o *Orchestrator) Retry(ctx context.Context, contentID, lang string) (RequestResult, error) {
	id := contentid.Normalize(contentID)
	result := RequestResult{ContentID: id}
	normalized, ok := language.Normalize(lang)
	if !ok {
		return result, services.Wrap(services.ErrValidation, "subtitles", "retry", fmt.Sprintf("unsupported language code %q", lang), nil)
	}
	job, err := o.finishedJob(ctx, id)
	if err != nil {
		return result, err
	}
	req, err := o.store.GetSubtitle(ctx, id, normalized)
	if err != nil {
		return result, err
	}
	if req == nil {
		return result, services.Wrap(services.ErrNotFound, "subtitles", "retry", fmt.Sprintf("no %s request for %s", normalized, id), nil)
	}
	if req.Status != jobstore.SubtitleFailed {
		return result, services.Wrap(services.ErrPrecondition, "subtitles", "retry", fmt.Sprintf("request is %s, not FAILED", req.Status), nil)
	}
	if _, err := o.store.ReopenSubtitle(ctx, id, normalized); err != nil {
		if errors.Is(err, jobstore.ErrConflict) {
			return result, services.Wrap(services.ErrPrecondition, "subtitles", "retry", "request changed concurrently", err)
		}
		return result, err
	}

	ctx = services.WithContentID(ctx, id)
	logger := logging.WithContext(ctx, o.logger)
	if err := o.trigger(ctx, logger, job, normalized, &result); err != nil {
		return result, err
	}
	return result, nil
}

func (o *Orchestrator) languageFailed(logger *slog.Logger, result *RequestResult, lang, op string, err error) {
	result.Errors = append(result.Errors, LanguageError{Language: lang, Message: fmt.Sprintf("%s: %v", op, err)})
	logging.ErrorWithContext(logger, "subtitle request could not be recorded", "subtitle_request_failed",
		logging.String(logging.FieldLanguage, lang),
		logging.Error(err),
		logging.String(logging.FieldImpact, "language skipped; request it again"),
	)
}

func (o *Orchestrator) finishedJob(ctx context.Context, id string) (*jobstore.Job, error) {
	if !contentid.Valid(id) {
		return nil, services.Wrap(services.ErrValidation, "subtitles", "lookup", fmt.Sprintf("invalid content id %q", id), nil)
	}
	if o.publisher == nil {
		return nil, services.Wrap(services.ErrConfiguration, "subtitles", "lookup", "pubsub endpoint not configured", nil)
	}
	job, err := o.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, services.Wrap(services.ErrNotFound, "subtitles", "lookup", fmt.Sprintf("no conversion job for %s", id), nil)
	}
	if job.TranscodeStatus != jobstore.TranscodeFinished {
		return nil, services.Wrap(services.ErrPrecondition, "subtitles", "lookup",
			fmt.Sprintf("conversion is %s; subtitles require FINISHED", job.TranscodeStatus), nil)
	}
	return job, nil
}

// trigger publishes for a PENDING request and records the outcome in result.
// Only job store failures are returned.
func (o *Orchestrator) trigger(ctx context.Context, logger *slog.Logger, job *jobstore.Job, lang string, result *RequestResult) error {
	messageID, pubErr := o.publish(ctx, job, lang)
	if pubErr != nil {
		message := fmt.Sprintf("publish trigger: %v", pubErr)
		if _, err := o.store.MarkSubtitleFailed(ctx, job.ContentID, lang, message); err != nil {
			return err
		}
		result.Errors = append(result.Errors, LanguageError{Language: lang, Message: message})
		logging.WarnWithContext(logger, "subtitle trigger publish failed", "subtitle_publish_failed",
			logging.String(logging.FieldLanguage, lang),
			logging.Error(pubErr),
			logging.String(logging.FieldErrorHint, services.Hint(pubErr)),
			logging.String(logging.FieldImpact, "request marked FAILED; retry to publish again"),
		)
		o.failed(ctx, job.ContentID, lang)
		return nil
	}
	if _, err := o.store.MarkSubtitleProcessing(ctx, job.ContentID, lang, messageID); err != nil {
		return err
	}
	result.Requested = append(result.Requested, lang)
	return nil
}

func (o *Orchestrator) publish(ctx context.Context, job *jobstore.Job, lang string) (string, error) {
	key := o.layout.OutputPrefix(job.ContentID)
	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()
	res, err := o.publisher.Publish(callCtx, o.topic, pubsub.TriggerMessage{
		ObjectKey: key,
		Language:  lang,
		Filename:  job.SourceName,
		URI:       o.objects.URI(key),
	})
	if err != nil {
		return "", err
	}
	return res.MessageID, nil
}
