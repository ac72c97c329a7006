package statuschannel

import (
	"strings"

	"mediarelay/internal/jobstore"
)

var vocabulary = map[string]jobstore.TranscodeStatus{
	"COMPLETE":    jobstore.TranscodeFinished,
	"COMPLETED":   jobstore.TranscodeFinished,
	"FINISHED":    jobstore.TranscodeFinished,
	"SUCCEEDED":   jobstore.TranscodeFinished,
	"SUCCESS":     jobstore.TranscodeFinished,
	"ERROR":       jobstore.TranscodeError,
	"FAILED":      jobstore.TranscodeError,
	"FAILURE":     jobstore.TranscodeError,
	"CANCELED":    jobstore.TranscodeError,
	"CANCELLED":   jobstore.TranscodeError,
	"NOT_FOUND":   jobstore.TranscodeNotFound,
	"NOTFOUND":    jobstore.TranscodeNotFound,
	"MISSING":     jobstore.TranscodeNotFound,
	"IN_PROGRESS": jobstore.TranscodeInProgress,
	"PROCESSING":  jobstore.TranscodeInProgress,
	"PROGRESSING": jobstore.TranscodeInProgress,
	"RUNNING":     jobstore.TranscodeInProgress,
	"STARTED":     jobstore.TranscodeInProgress,
	"ACCEPTED":    jobstore.TranscodeAccepted,
	"SUBMITTED":   jobstore.TranscodeAccepted,
	"QUEUED":      jobstore.TranscodeAccepted,
	"PENDING":     jobstore.TranscodeAccepted,
}

// Normalize maps an external status string to the local transcode status.
// Matching ignores case and treats spaces and dashes as underscores.
func Normalize(raw string) (jobstore.TranscodeStatus, bool) {
	key := strings.ToUpper(strings.TrimSpace(raw))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	status, ok := vocabulary[key]
	return status, ok
}
