// Package submission uploads new content to the external input location and
// records the conversion job.
//
// Submit is idempotent per content identifier: a job that is already in the
// remote input location (or already finished) is reported as
// already_submitted and nothing is uploaded. Failed uploads leave the job
// retryable, and the local copy is released only after the upload is confirmed.
package submission
