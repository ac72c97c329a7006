package jobstore

import (
	"database/sql"
	"errors"
	"strings"
	"time"
)

// timeLayout is fixed width so stored timestamps order correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const jobColumns = "content_id, upload_status, transcode_status, output_size_bytes, input_purged, source_name, input_key, duration_seconds, width, height, subtitle_languages, error_message, created_at, updated_at, submitted_at, completed_at"

const subtitleColumns = "id, content_id, language, status, retry_count, error_message, message_id, requested_at, updated_at, completed_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(scanner rowScanner) (*Job, error) {
	var (
		contentID     string
		uploadStr     string
		transcodeStr  string
		outputSize    sql.NullInt64
		inputPurged   sql.NullInt64
		sourceName    sql.NullString
		inputKey      sql.NullString
		duration      sql.NullFloat64
		width         sql.NullInt64
		height        sql.NullInt64
		subtitleLangs sql.NullString
		errorMessage  sql.NullString
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
		submittedRaw  sql.NullString
		completedRaw  sql.NullString
	)
	if err := scanner.Scan(
		&contentID,
		&uploadStr,
		&transcodeStr,
		&outputSize,
		&inputPurged,
		&sourceName,
		&inputKey,
		&duration,
		&width,
		&height,
		&subtitleLangs,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&submittedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ContentID:         contentID,
		UploadStatus:      UploadStatus(uploadStr),
		TranscodeStatus:   TranscodeStatus(transcodeStr),
		OutputSizeBytes:   outputSize.Int64,
		InputPurged:       inputPurged.Int64 != 0,
		SourceName:        sourceName.String,
		InputKey:          inputKey.String,
		DurationSeconds:   duration.Float64,
		Width:             int(width.Int64),
		Height:            int(height.Int64),
		SubtitleLanguages: splitList(subtitleLangs.String),
		ErrorMessage:      errorMessage.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	job.SubmittedAt = parseNullableTime(submittedRaw)
	job.CompletedAt = parseNullableTime(completedRaw)
	return job, nil
}

func scanSubtitle(scanner rowScanner) (*SubtitleRequest, error) {
	var (
		id           string
		contentID    string
		language     string
		statusStr    string
		retryCount   sql.NullInt64
		errorMessage sql.NullString
		messageID    sql.NullString
		requestedRaw sql.NullString
		updatedRaw   sql.NullString
		completedRaw sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&contentID,
		&language,
		&statusStr,
		&retryCount,
		&errorMessage,
		&messageID,
		&requestedRaw,
		&updatedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	req := &SubtitleRequest{
		ID:           id,
		ContentID:    contentID,
		Language:     language,
		Status:       SubtitleStatus(statusStr),
		RetryCount:   int(retryCount.Int64),
		ErrorMessage: errorMessage.String,
		MessageID:    messageID.String,
	}
	if requested, err := parseTimeString(requestedRaw.String); err == nil {
		req.RequestedAt = requested
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		req.UpdatedAt = updated
	}
	req.CompletedAt = parseNullableTime(completedRaw)
	return req, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(timeLayout, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

func parseNullableTime(raw sql.NullString) *time.Time {
	if !raw.Valid {
		return nil
	}
	parsed, err := parseTimeString(raw.String)
	if err != nil {
		return nil
	}
	return &parsed
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func joinList(values []string) any {
	if len(values) == 0 {
		return nil
	}
	return strings.Join(values, ",")
}

func splitList(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
