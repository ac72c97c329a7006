package api

import (
	"time"

	"mediarelay/internal/jobstore"
	"mediarelay/internal/reconcile"
	"mediarelay/internal/submission"
	"mediarelay/internal/subtitles"
	"mediarelay/internal/sweeper"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// ConversionJob describes a job in a transport-friendly format.
type ConversionJob struct {
	ContentID         string   `json:"contentId"`
	SourceName        string   `json:"sourceName"`
	UploadStatus      string   `json:"uploadStatus"`
	TranscodeStatus   string   `json:"transcodeStatus"`
	OutputSizeBytes   int64    `json:"outputSizeBytes"`
	InputPurged       bool     `json:"inputPurged"`
	DurationSeconds   float64  `json:"durationSeconds,omitempty"`
	Width             int      `json:"width,omitempty"`
	Height            int      `json:"height,omitempty"`
	SubtitleLanguages []string `json:"subtitleLanguages"`
	ErrorMessage      string   `json:"errorMessage,omitempty"`
	CreatedAt         string   `json:"createdAt,omitempty"`
	UpdatedAt         string   `json:"updatedAt,omitempty"`
	SubmittedAt       string   `json:"submittedAt,omitempty"`
	CompletedAt       string   `json:"completedAt,omitempty"`
}

// SubmissionResponse is the result of POST /v1/conversions.
type SubmissionResponse struct {
	ContentID string         `json:"contentId"`
	Outcome   string         `json:"outcome"`
	Error     string         `json:"error,omitempty"`
	Job       *ConversionJob `json:"job,omitempty"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []ConversionJob `json:"jobs"`
}

// SubtitleRequest is one (content, language) request.
type SubtitleRequest struct {
	Language     string `json:"language"`
	Status       string `json:"status"`
	RetryCount   int    `json:"retryCount"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	MessageID    string `json:"messageId,omitempty"`
	RequestedAt  string `json:"requestedAt,omitempty"`
	UpdatedAt    string `json:"updatedAt,omitempty"`
	CompletedAt  string `json:"completedAt,omitempty"`
}

// SubtitleRequestBody is the payload of POST /v1/conversions/{id}/subtitles.
type SubtitleRequestBody struct {
	Languages []string `json:"languages"`
}

// LanguageError reports one language that could not be requested.
type LanguageError struct {
	Language string `json:"language"`
	Message  string `json:"message"`
}

// SubtitleRequestResponse is the outcome of a subtitle request or retry.
type SubtitleRequestResponse struct {
	ContentID string          `json:"contentId"`
	Success   bool            `json:"success"`
	Partial   bool            `json:"partial"`
	Requested []string        `json:"requested"`
	Skipped   []string        `json:"skipped"`
	Errors    []LanguageError `json:"errors"`
}

// SubtitleStatusResponse reports every subtitle request for one job.
type SubtitleStatusResponse struct {
	ContentID       string            `json:"contentId"`
	TranscodeStatus string            `json:"transcodeStatus,omitempty"`
	Completed       []string          `json:"completed"`
	Requests        []SubtitleRequest `json:"requests"`
}

// RunResponse reports a manually triggered run.
type RunResponse struct {
	Kind   string         `json:"kind"`
	Counts map[string]int `json:"counts"`
	NoOp   bool           `json:"noOp,omitempty"`
	Reason string         `json:"reason,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status    string         `json:"status"`
	Channel   string         `json:"channel"`
	Timestamp string         `json:"timestamp"`
	Jobs      map[string]int `json:"jobs,omitempty"`
}

// FromJob converts a job record.
func FromJob(job *jobstore.Job) ConversionJob {
	if job == nil {
		return ConversionJob{}
	}
	langs := job.SubtitleLanguages
	if langs == nil {
		langs = []string{}
	}
	return ConversionJob{
		ContentID:         job.ContentID,
		SourceName:        job.SourceName,
		UploadStatus:      string(job.UploadStatus),
		TranscodeStatus:   string(job.TranscodeStatus),
		OutputSizeBytes:   job.OutputSizeBytes,
		InputPurged:       job.InputPurged,
		DurationSeconds:   job.DurationSeconds,
		Width:             job.Width,
		Height:            job.Height,
		SubtitleLanguages: langs,
		ErrorMessage:      job.ErrorMessage,
		CreatedAt:         formatTime(job.CreatedAt),
		UpdatedAt:         formatTime(job.UpdatedAt),
		SubmittedAt:       formatTimePtr(job.SubmittedAt),
		CompletedAt:       formatTimePtr(job.CompletedAt),
	}
}

// FromSubmission converts a submission result.
func FromSubmission(result submission.Result) SubmissionResponse {
	resp := SubmissionResponse{ContentID: result.ContentID, Outcome: string(result.Outcome)}
	if result.Err != nil {
		resp.Error = result.Err.Error()
	}
	if result.Job != nil {
		job := FromJob(result.Job)
		resp.Job = &job
	}
	return resp
}

// FromSubtitleRequest converts one subtitle request record.
func FromSubtitleRequest(req *jobstore.SubtitleRequest) SubtitleRequest {
	if req == nil {
		return SubtitleRequest{}
	}
	return SubtitleRequest{
		Language:     req.Language,
		Status:       string(req.Status),
		RetryCount:   req.RetryCount,
		ErrorMessage: req.ErrorMessage,
		MessageID:    req.MessageID,
		RequestedAt:  formatTime(req.RequestedAt),
		UpdatedAt:    formatTime(req.UpdatedAt),
		CompletedAt:  formatTimePtr(req.CompletedAt),
	}
}

// FromRequestResult converts a subtitle request outcome.
func FromRequestResult(result subtitles.RequestResult) SubtitleRequestResponse {
	resp := SubtitleRequestResponse{
		ContentID: result.ContentID,
		Success:   result.Success(),
		Partial:   result.Partial(),
		Requested: nonNil(result.Requested),
		Skipped:   nonNil(result.Skipped),
		Errors:    make([]LanguageError, 0, len(result.Errors)),
	}
	for _, e := range result.Errors {
		resp.Errors = append(resp.Errors, LanguageError{Language: e.Language, Message: e.Message})
	}
	return resp
}

// FromStatusReport converts a subtitle status report.
func FromStatusReport(report subtitles.StatusReport) SubtitleStatusResponse {
	resp := SubtitleStatusResponse{
		ContentID:       report.ContentID,
		TranscodeStatus: string(report.TranscodeStatus),
		Completed:       nonNil(report.Completed),
		Requests:        make([]SubtitleRequest, 0, len(report.Requests)),
	}
	for _, req := range report.Requests {
		resp.Requests = append(resp.Requests, FromSubtitleRequest(req))
	}
	return resp
}

// FromReconcileResult converts a reconciliation run.
func FromReconcileResult(result reconcile.Result) RunResponse {
	return RunResponse{
		Kind: "reconcile",
		Counts: map[string]int{
			"checked":   result.Checked,
			"applied":   result.Applied,
			"finished":  result.Finished,
			"failed":    result.Failed,
			"unmatched": result.Unmatched,
			"skipped":   result.Skipped,
			"errors":    result.Errors,
			"purged":    result.Purged,
		},
		NoOp:   result.NoOp,
		Reason: result.Reason,
	}
}

// FromSweepResult converts a staleness sweep.
func FromSweepResult(result sweeper.Result) RunResponse {
	return RunResponse{
		Kind: "sweep",
		Counts: map[string]int{
			"checked":  result.Checked,
			"finished": result.Finished,
			"failed":   result.Failed,
			"skipped":  result.Skipped,
			"errors":   result.Errors,
		},
	}
}

// FromSubtitleRuns converts a subtitle reconcile plus cleanup pass.
func FromSubtitleRuns(rec subtitles.ReconcileResult, clean subtitles.CleanupResult) RunResponse {
	return RunResponse{
		Kind: "subtitles",
		Counts: map[string]int{
			"checked":       rec.Checked,
			"completed":     rec.Completed,
			"failed":        rec.Failed + clean.Failed,
			"still_pending": rec.StillPending,
			"recycled":      clean.Recycled,
			"republished":   clean.Republished,
		},
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
