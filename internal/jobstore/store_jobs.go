package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CreateJob records content on first sight. When a job already exists for
// the content identifier the existing row is returned and created is false.
func (s *Store) CreateJob(ctx context.Context, job NewJob) (*Job, bool, error) {
	if strings.TrimSpace(job.ContentID) == "" {
		return nil, false, errors.New("create job: content id required")
	}
	timestamp := formatTime(s.timestamp())
	created, err := s.execCAS(
		ctx,
		`INSERT INTO conversion_jobs (
            content_id, upload_status, transcode_status, source_name, input_key, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(content_id) DO NOTHING`,
		job.ContentID,
		UploadPending,
		TranscodeAccepted,
		nullableString(job.SourceName),
		nullableString(job.InputKey),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert job: %w", err)
	}
	existing, err := s.GetJob(ctx, job.ContentID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("insert job: row for %s missing after insert", job.ContentID)
	}
	return existing, created, nil
}

// GetJob fetches a job by content identifier. It returns nil, nil when absent.
func (s *Store) GetJob(ctx context.Context, contentID string) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+jobColumns+` FROM conversion_jobs WHERE content_id = ?`, contentID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs filtered by transcode status, newest first.
func (s *Store) ListJobs(ctx context.Context, statuses ...TranscodeStatus) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM conversion_jobs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE transcode_status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY created_at DESC`
	return s.queryJobs(ctx, query, args...)
}

// PendingJobs returns uploaded jobs whose transcode has not reached a terminal state.
func (s *Store) PendingJobs(ctx context.Context) ([]*Job, error) {
	return s.queryJobs(ctx,
		`SELECT `+jobColumns+` FROM conversion_jobs
        WHERE upload_status = ? AND transcode_status IN (?, ?)
        ORDER BY created_at`,
		UploadDone, TranscodeAccepted, TranscodeInProgress,
	)
}

// StaleJobs returns IN_PROGRESS jobs submitted before cutoff. When
// requireSilentChannel is set, jobs with an applied terminal entry in the
// channel event log since their latest submission are excluded; events from an
// earlier submission or ones that never applied do not count.
func (s *Store) StaleJobs(ctx context.Context, cutoff time.Time, requireSilentChannel bool) ([]*Job, error) {
	return s.queryJobs(ctx,
		`SELECT `+jobColumns+` FROM conversion_jobs j
        WHERE j.transcode_status = ?
          AND COALESCE(j.submitted_at, j.created_at) < ?
          AND (? = 0 OR NOT EXISTS (
              SELECT 1 FROM channel_events e
              WHERE e.content_id = j.content_id
                AND e.status IN (?, ?, ?)
                AND e.applied = 1
                AND e.received_at >= COALESCE(j.submitted_at, j.created_at)
          ))
        ORDER BY j.created_at`,
		TranscodeInProgress,
		formatTime(cutoff),
		boolToInt(requireSilentChannel),
		TranscodeFinished, TranscodeError, TranscodeNotFound,
	)
}

// UnpurgedFinished returns finished jobs whose input copy still exists remotely.
func (s *Store) UnpurgedFinished(ctx context.Context) ([]*Job, error) {
	return s.queryJobs(ctx,
		`SELECT `+jobColumns+` FROM conversion_jobs
        WHERE transcode_status = ? AND input_purged = 0
        ORDER BY completed_at`,
		TranscodeFinished,
	)
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]*Job, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

// PrepareResubmit resets a failed job so submission can upload it again.
// Only UPLOAD_ERROR uploads and ERROR/NOT_FOUND transcodes qualify.
func (s *Store) PrepareResubmit(ctx context.Context, contentID string) (bool, error) {
	applied, err := s.execCAS(
		ctx,
		`UPDATE conversion_jobs
        SET upload_status = ?, transcode_status = ?, output_size_bytes = 0, input_purged = 0,
            error_message = NULL, submitted_at = NULL, completed_at = NULL, updated_at = ?
        WHERE content_id = ? AND (transcode_status IN (?, ?) OR (upload_status = ? AND transcode_status != ?))`,
		UploadPending,
		TranscodeAccepted,
		formatTime(s.timestamp()),
		contentID,
		TranscodeError, TranscodeNotFound,
		UploadError, TranscodeFinished,
	)
	if err != nil {
		return false, fmt.Errorf("prepare resubmit: %w", err)
	}
	return applied, nil
}

// MarkUploaded records a confirmed upload and moves an accepted job to IN_PROGRESS.
func (s *Store) MarkUploaded(ctx context.Context, contentID, inputKey string) (bool, error) {
	timestamp := formatTime(s.timestamp())
	applied, err := s.execCAS(
		ctx,
		`UPDATE conversion_jobs
        SET upload_status = ?,
            transcode_status = CASE WHEN transcode_status = ? THEN ? ELSE transcode_status END,
            input_key = COALESCE(?, input_key),
            error_message = NULL, submitted_at = ?, updated_at = ?
        WHERE content_id = ? AND transcode_status IN (?, ?)`,
		UploadDone,
		TranscodeAccepted, TranscodeInProgress,
		nullableString(inputKey),
		timestamp,
		timestamp,
		contentID,
		TranscodeAccepted, TranscodeInProgress,
	)
	if err != nil {
		return false, fmt.Errorf("mark uploaded: %w", err)
	}
	return applied, nil
}

// MarkUploadFailed records a failed upload so the job stays retryable.
func (s *Store) MarkUploadFailed(ctx context.Context, contentID, message string) (bool, error) {
	applied, err := s.execCAS(
		ctx,
		`UPDATE conversion_jobs
        SET upload_status = ?, error_message = ?, updated_at = ?
        WHERE content_id = ? AND transcode_status IN (?, ?) AND upload_status != ?`,
		UploadError,
		nullableString(message),
		formatTime(s.timestamp()),
		contentID,
		TranscodeAccepted, TranscodeInProgress,
		UploadDone,
	)
	if err != nil {
		return false, fmt.Errorf("mark upload failed: %w", err)
	}
	return applied, nil
}

// ClaimUpload takes the upload claim for a job on behalf of token. It fails
// while another token holds an unexpired claim, so only one submitter across
// processes sharing the database uploads a given content at a time.
func (s *Store) ClaimUpload(ctx context.Context, contentID, token string, ttl time.Duration) (bool, error) {
	now := s.timestamp()
	applied, err := s.execCAS(
		ctx,
		`UPDATE conversion_jobs SET upload_claim = ?, upload_claim_expires = ?
        WHERE content_id = ? AND (upload_claim IS NULL OR upload_claim = ? OR upload_claim_expires < ?)`,
		token,
		formatTime(now.Add(ttl)),
		contentID,
		token,
		formatTime(now),
	)
	if err != nil {
		return false, fmt.Errorf("claim upload: %w", err)
	}
	return applied, nil
}

// ReleaseUpload drops the upload claim if token still holds it.
func (s *Store) ReleaseUpload(ctx context.Context, contentID, token string) error {
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE conversion_jobs SET upload_claim = NULL, upload_claim_expires = NULL
        WHERE content_id = ? AND upload_claim = ?`,
		contentID,
		token,
	); err != nil {
		return fmt.Errorf("release upload: %w", err)
	}
	return nil
}

// AdvanceTranscode applies a transcode status if the job is uploaded and still
// non-terminal. It never regresses a job: moving to ACCEPTED is rejected and
// IN_PROGRESS only applies from ACCEPTED. The returned flag reports whether the
// row changed.
func (s *Store) AdvanceTranscode(ctx context.Context, contentID string, to TranscodeStatus, outcome Outcome) (bool, error) {
	now := s.timestamp()
	var (
		applied bool
		err     error
	)
	switch to {
	case TranscodeInProgress:
		applied, err = s.execCAS(
			ctx,
			`UPDATE conversion_jobs SET transcode_status = ?, updated_at = ?
            WHERE content_id = ? AND upload_status = ? AND transcode_status = ?`,
			TranscodeInProgress,
			formatTime(now),
			contentID,
			UploadDone,
			TranscodeAccepted,
		)
	case TranscodeFinished, TranscodeError, TranscodeNotFound:
		var size int64
		if to == TranscodeFinished {
			size = outcome.OutputSizeBytes
		}
		applied, err = s.execCAS(
			ctx,
			`UPDATE conversion_jobs
            SET transcode_status = ?, output_size_bytes = ?, error_message = ?, completed_at = ?, updated_at = ?
            WHERE content_id = ? AND upload_status = ? AND transcode_status IN (?, ?)`,
			to,
			size,
			nullableString(outcome.Message),
			formatTime(now),
			formatTime(now),
			contentID,
			UploadDone,
			TranscodeAccepted, TranscodeInProgress,
		)
	default:
		return false, fmt.Errorf("advance transcode: unsupported target status %q", to)
	}
	if err != nil {
		return false, fmt.Errorf("advance transcode: %w", err)
	}
	return applied, nil
}

// MarkInputPurged records that the remote input copy was deleted.
func (s *Store) MarkInputPurged(ctx context.Context, contentID string) (bool, error) {
	applied, err := s.execCAS(
		ctx,
		`UPDATE conversion_jobs SET input_purged = 1, updated_at = ?
        WHERE content_id = ? AND transcode_status = ? AND input_purged = 0`,
		formatTime(s.timestamp()),
		contentID,
		TranscodeFinished,
	)
	if err != nil {
		return false, fmt.Errorf("mark input purged: %w", err)
	}
	return applied, nil
}

// UpdateProbe stores probed media metadata.
func (s *Store) UpdateProbe(ctx context.Context, contentID string, probe Probe) error {
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE conversion_jobs SET duration_seconds = ?, width = ?, height = ?, updated_at = ?
        WHERE content_id = ?`,
		probe.DurationSeconds,
		probe.Width,
		probe.Height,
		formatTime(s.timestamp()),
		contentID,
	); err != nil {
		return fmt.Errorf("update probe: %w", err)
	}
	return nil
}

// SetSubtitleLanguages refreshes the legacy aggregate of completed subtitle languages.
func (s *Store) SetSubtitleLanguages(ctx context.Context, contentID string, languages []string) error {
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE conversion_jobs SET subtitle_languages = ?, updated_at = ? WHERE content_id = ?`,
		joinList(languages),
		formatTime(s.timestamp()),
		contentID,
	); err != nil {
		return fmt.Errorf("set subtitle languages: %w", err)
	}
	return nil
}

// Stats returns the number of jobs per transcode status.
func (s *Store) Stats(ctx context.Context) (map[TranscodeStatus]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT transcode_status, COUNT(*) FROM conversion_jobs GROUP BY transcode_status`)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[TranscodeStatus]int, len(transcodeStatuses))
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats[TranscodeStatus(status)] = count
	}
	return stats, rows.Err()
}
