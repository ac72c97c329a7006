package jobstore

import (
	"context"
	"database/sql"
	"fmt"
)

// RecordChannelEvent appends one drained queue message to the channel log.
func (s *Store) RecordChannelEvent(ctx context.Context, event ChannelEvent) error {
	received := event.ReceivedAt
	if received.IsZero() {
		received = s.timestamp()
	}
	if _, err := s.execWithRetry(
		ctx,
		`INSERT INTO channel_events (content_id, status, raw, matched, applied, received_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		event.ContentID,
		event.Status,
		nullableString(event.Raw),
		boolToInt(event.Matched),
		boolToInt(event.Applied),
		formatTime(received),
	); err != nil {
		return fmt.Errorf("record channel event: %w", err)
	}
	return nil
}

// ChannelEvents lists logged events for a content identifier, oldest first.
func (s *Store) ChannelEvents(ctx context.Context, contentID string) ([]ChannelEvent, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT id, content_id, status, raw, matched, applied, received_at
        FROM channel_events WHERE content_id = ? ORDER BY id`, contentID)
	if err != nil {
		return nil, fmt.Errorf("query channel events: %w", err)
	}
	defer rows.Close()

	var events []ChannelEvent
	for rows.Next() {
		var (
			event    ChannelEvent
			raw      sql.NullString
			matched  int
			applied  int
			received string
		)
		if err := rows.Scan(&event.ID, &event.ContentID, &event.Status, &raw, &matched, &applied, &received); err != nil {
			return nil, fmt.Errorf("scan channel event: %w", err)
		}
		event.Raw = raw.String
		event.Matched = matched != 0
		event.Applied = applied != 0
		if ts, err := parseTimeString(received); err == nil {
			event.ReceivedAt = ts
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
