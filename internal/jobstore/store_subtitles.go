package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// CreateSubtitle inserts a PENDING request. ErrConflict is returned when a
// record already exists for the pair; callers reopen FAILED records instead.
func (s *Store) CreateSubtitle(ctx context.Context, contentID, language string) (*SubtitleRequest, error) {
	timestamp := formatTime(s.timestamp())
	inserted, err := s.execCAS(
		ctx,
		`INSERT INTO subtitle_requests (
            id, content_id, language, status, retry_count, requested_at, updated_at
        ) VALUES (?, ?, ?, ?, 0, ?, ?)
        ON CONFLICT(content_id, language) DO NOTHING`,
		uuid.NewString(),
		contentID,
		language,
		SubtitlePending,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert subtitle request: %w", err)
	}
	if !inserted {
		return nil, fmt.Errorf("%w: subtitle request %s/%s already exists", ErrConflict, contentID, language)
	}
	return s.GetSubtitle(ctx, contentID, language)
}

// GetSubtitle fetches one request. It returns nil, nil when absent.
func (s *Store) GetSubtitle(ctx context.Context, contentID, language string) (*SubtitleRequest, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+subtitleColumns+` FROM subtitle_requests WHERE content_id = ? AND language = ?`,
		contentID, language)
	req, err := scanSubtitle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subtitle request: %w", err)
	}
	return req, nil
}

// SubtitlesFor lists every request recorded for a content identifier.
func (s *Store) SubtitlesFor(ctx context.Context, contentID string) ([]*SubtitleRequest, error) {
	return s.querySubtitles(ctx,
		`SELECT `+subtitleColumns+` FROM subtitle_requests WHERE content_id = ? ORDER BY language`,
		contentID)
}

// ActiveSubtitles lists every PENDING or PROCESSING request, oldest first.
func (s *Store) ActiveSubtitles(ctx context.Context) ([]*SubtitleRequest, error) {
	return s.querySubtitles(ctx,
		`SELECT `+subtitleColumns+` FROM subtitle_requests WHERE status IN (?, ?) ORDER BY requested_at`,
		SubtitlePending, SubtitleProcessing)
}

// CompletedSubtitleLanguages returns the sorted languages with COMPLETED requests.
func (s *Store) CompletedSubtitleLanguages(ctx context.Context, contentID string) ([]string, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT language FROM subtitle_requests WHERE content_id = ? AND status = ? ORDER BY language`,
		contentID, SubtitleCompleted)
	if err != nil {
		return nil, fmt.Errorf("query completed languages: %w", err)
	}
	defer rows.Close()

	var languages []string
	for rows.Next() {
		var lang string
		if err := rows.Scan(&lang); err != nil {
			return nil, fmt.Errorf("scan language: %w", err)
		}
		languages = append(languages, lang)
	}
	return languages, rows.Err()
}

func (s *Store) querySubtitles(ctx context.Context, query string, args ...any) ([]*SubtitleRequest, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query subtitle requests: %w", err)
	}
	defer rows.Close()

	var out []*SubtitleRequest
	for rows.Next() {
		req, err := scanSubtitle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subtitle request: %w", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subtitle requests: %w", err)
	}
	return out, nil
}

// ReopenSubtitle moves a FAILED request back to PENDING, keeping its identity
// and incrementing retry_count. ErrConflict is returned when the request is not FAILED.
func (s *Store) ReopenSubtitle(ctx context.Context, contentID, language string) (*SubtitleRequest, error) {
	timestamp := formatTime(s.timestamp())
	applied, err := s.execCAS(
		ctx,
		`UPDATE subtitle_requests
        SET status = ?, retry_count = retry_count + 1, error_message = NULL, message_id = NULL,
            completed_at = NULL, requested_at = ?, updated_at = ?
        WHERE content_id = ? AND language = ? AND status = ?`,
		SubtitlePending,
		timestamp,
		timestamp,
		contentID,
		language,
		SubtitleFailed,
	)
	if err != nil {
		return nil, fmt.Errorf("reopen subtitle request: %w", err)
	}
	if !applied {
		return nil, fmt.Errorf("%w: subtitle request %s/%s is not failed", ErrConflict, contentID, language)
	}
	return s.GetSubtitle(ctx, contentID, language)
}

// MarkSubtitleProcessing records a successful trigger publish.
func (s *Store) MarkSubtitleProcessing(ctx context.Context, contentID, language, messageID string) (bool, error) {
	applied, err := s.execCAS(
		ctx,
		`UPDATE subtitle_requests SET status = ?, message_id = ?, updated_at = ?
        WHERE content_id = ? AND language = ? AND status = ?`,
		SubtitleProcessing,
		nullableString(messageID),
		formatTime(s.timestamp()),
		contentID,
		language,
		SubtitlePending,
	)
	if err != nil {
		return false, fmt.Errorf("mark subtitle processing: %w", err)
	}
	return applied, nil
}

// MarkSubtitleCompleted records that the subtitle artifact exists.
func (s *Store) MarkSubtitleCompleted(ctx context.Context, contentID, language string) (bool, error) {
	timestamp := formatTime(s.timestamp())
	applied, err := s.execCAS(
		ctx,
		`UPDATE subtitle_requests SET status = ?, error_message = NULL, completed_at = ?, updated_at = ?
        WHERE content_id = ? AND language = ? AND status IN (?, ?)`,
		SubtitleCompleted,
		timestamp,
		timestamp,
		contentID,
		language,
		SubtitlePending, SubtitleProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("mark subtitle completed: %w", err)
	}
	return applied, nil
}

// MarkSubtitleFailed terminally fails an active request.
func (s *Store) MarkSubtitleFailed(ctx context.Context, contentID, language, message string) (bool, error) {
	timestamp := formatTime(s.timestamp())
	applied, err := s.execCAS(
		ctx,
		`UPDATE subtitle_requests SET status = ?, error_message = ?, completed_at = ?, updated_at = ?
        WHERE content_id = ? AND language = ? AND status IN (?, ?)`,
		SubtitleFailed,
		message,
		timestamp,
		timestamp,
		contentID,
		language,
		SubtitlePending, SubtitleProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("mark subtitle failed: %w", err)
	}
	return applied, nil
}

// RecycleSubtitle resets a stale active request to PENDING with retry_count+1
// and a fresh requested_at. expectedRetry guards against a concurrent recycle.
func (s *Store) RecycleSubtitle(ctx context.Context, contentID, language string, expectedRetry int) (bool, error) {
	timestamp := formatTime(s.timestamp())
	applied, err := s.execCAS(
		ctx,
		`UPDATE subtitle_requests
        SET status = ?, retry_count = retry_count + 1, message_id = NULL, requested_at = ?, updated_at = ?
        WHERE content_id = ? AND language = ? AND status IN (?, ?) AND retry_count = ?`,
		SubtitlePending,
		timestamp,
		timestamp,
		contentID,
		language,
		SubtitlePending, SubtitleProcessing,
		expectedRetry,
	)
	if err != nil {
		return false, fmt.Errorf("recycle subtitle request: %w", err)
	}
	return applied, nil
}
