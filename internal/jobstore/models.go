package jobstore

import (
	"strings"
	"time"
)

// UploadStatus tracks whether the asset reached the external input location.
type UploadStatus string

const (
	UploadPending UploadStatus = "PENDING"
	UploadDone    UploadStatus = "UPLOADED"
	UploadError   UploadStatus = "UPLOAD_ERROR"
)

// TranscodeStatus is the lifecycle of the remote transcoding job.
type TranscodeStatus string

const (
	TranscodeAccepted   TranscodeStatus = "ACCEPTED"
	TranscodeInProgress TranscodeStatus = "IN_PROGRESS"
	TranscodeFinished   TranscodeStatus = "FINISHED"
	TranscodeNotFound   TranscodeStatus = "NOT_FOUND"
	TranscodeError      TranscodeStatus = "ERROR"
)

var transcodeStatuses = []TranscodeStatus{
	TranscodeAccepted,
	TranscodeInProgress,
	TranscodeFinished,
	TranscodeNotFound,
	TranscodeError,
}

// IsTerminal reports whether no further automatic transition may occur.
func (s TranscodeStatus) IsTerminal() bool {
	switch s {
	case TranscodeFinished, TranscodeNotFound, TranscodeError:
		return true
	default:
		return false
	}
}

// IsFailure reports whether the job ended without output.
func (s TranscodeStatus) IsFailure() bool {
	return s == TranscodeError || s == TranscodeNotFound
}

// ParseTranscodeStatus maps a case-insensitive name to a local status.
func ParseTranscodeStatus(value string) (TranscodeStatus, bool) {
	normalized := TranscodeStatus(strings.ToUpper(strings.TrimSpace(value)))
	for _, status := range transcodeStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// TranscodeStatuses returns every known transcode status in lifecycle order.
func TranscodeStatuses() []TranscodeStatus {
	out := make([]TranscodeStatus, len(transcodeStatuses))
	copy(out, transcodeStatuses)
	return out
}

// SubtitleStatus is the lifecycle of one per-language subtitle request.
type SubtitleStatus string

const (
	SubtitlePending    SubtitleStatus = "PENDING"
	SubtitleProcessing SubtitleStatus = "PROCESSING"
	SubtitleCompleted  SubtitleStatus = "COMPLETED"
	SubtitleFailed     SubtitleStatus = "FAILED"
)

// IsActive reports whether the request still awaits an artifact.
func (s SubtitleStatus) IsActive() bool {
	return s == SubtitlePending || s == SubtitleProcessing
}

// Job is one conversion job keyed by content identifier.
type Job struct {
	ContentID         string
	UploadStatus      UploadStatus
	TranscodeStatus   TranscodeStatus
	OutputSizeBytes   int64
	InputPurged       bool
	SourceName        string
	InputKey          string
	DurationSeconds   float64
	Width             int
	Height            int
	SubtitleLanguages []string
	ErrorMessage      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	SubmittedAt       *time.Time
	CompletedAt       *time.Time
}

// NewJob carries the fields recorded when content is first seen.
type NewJob struct {
	ContentID  string
	SourceName string
	InputKey   string
}

// Probe holds metadata recorded from the probing collaborator.
type Probe struct {
	DurationSeconds float64
	Width           int
	Height          int
}

// Outcome carries the data written alongside a terminal transcode status.
type Outcome struct {
	OutputSizeBytes int64
	Message         string
}

// SubtitleRequest is the subtitle state for one (content, language) pair.
type SubtitleRequest struct {
	ID           string
	ContentID    string
	Language     string
	Status       SubtitleStatus
	RetryCount   int
	ErrorMessage string
	MessageID    string
	RequestedAt  time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

// ChannelEvent is one message drained from the queue status channel.
type ChannelEvent struct {
	ID         int64
	ContentID  string
	Status     string
	Raw        string
	Matched    bool
	Applied    bool
	ReceivedAt time.Time
}
