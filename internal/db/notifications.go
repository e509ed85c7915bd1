package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"reminder-service/internal/delivery"
	"reminder-service/internal/models"
)

// Append records a delivered notification.
func (d *DB) Append(ctx context.Context, e models.HistoryEntry) error {
	query := `
        INSERT INTO notification_history (
            notification_id, issue_key, recipient_id, channel, type, urgency, sent_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := d.Pool.Exec(ctx, query,
		e.NotificationID, e.IssueKey, e.RecipientID, string(e.Channel),
		string(e.Type), string(e.Urgency), e.SentAt)
	if err != nil {
		return fmt.Errorf("failed to append notification history: %w", err)
	}
	return nil
}

// RecordResponse marks the latest delivery of a notification.
func (d *DB) RecordResponse(ctx context.Context, notificationID string, r models.UserResponse, at time.Time) error {
	query := `
        UPDATE notification_history
        SET response = $1, responded_at = $2
        WHERE id = (
            SELECT id FROM notification_history
            WHERE notification_id = $3
            ORDER BY sent_at DESC
            LIMIT 1
        )`
	tag, err := d.Pool.Exec(ctx, query, string(r), at, notificationID)
	if err != nil {
		return fmt.Errorf("failed to record response: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", delivery.ErrUnknownNotification, notificationID)
	}
	return nil
}

// RecordFailure counts an exhausted delivery against the item.
func (d *DB) RecordFailure(ctx context.Context, issueKey string) error {
	query := `
        INSERT INTO notification_failures (issue_key, failures, updated_at)
        VALUES ($1, 1, NOW())
        ON CONFLICT (issue_key) DO UPDATE
        SET failures = notification_failures.failures + 1, updated_at = NOW()`
	if _, err := d.Pool.Exec(ctx, query, issueKey); err != nil {
		return fmt.Errorf("failed to record failure for %s: %w", issueKey, err)
	}
	return nil
}

// History returns every delivery for an item with derived counters.
func (d *DB) History(ctx context.Context, issueKey string) (models.NotificationHistory, error) {
	hist := models.NotificationHistory{IssueKey: issueKey, Notifications: []models.HistoryEntry{}}

	rows, err := d.Pool.Query(ctx, `
        SELECT notification_id, issue_key, recipient_id, channel, type, urgency, sent_at, response, responded_at
        FROM notification_history
        WHERE issue_key = $1
        ORDER BY sent_at`, issueKey)
	if err != nil {
		return hist, fmt.Errorf("failed to get history for %s: %w", issueKey, err)
	}
	defer rows.Close()

	for rows.Next() {
		var e models.HistoryEntry
		var channel, typ, urgency, response string
		if err := rows.Scan(&e.NotificationID, &e.IssueKey, &e.RecipientID, &channel, &typ, &urgency,
			&e.SentAt, &response, &e.RespondedAt); err != nil {
			return hist, fmt.Errorf("failed to scan history entry: %w", err)
		}
		e.Channel = models.Channel(channel)
		e.Type = models.ActionType(typ)
		e.Urgency = models.Urgency(urgency)
		e.Response = models.UserResponse(response)
		hist.Notifications = append(hist.Notifications, e)
	}
	if err := rows.Err(); err != nil {
		return hist, fmt.Errorf("failed to read history for %s: %w", issueKey, err)
	}

	err = d.Pool.QueryRow(ctx, `SELECT failures FROM notification_failures WHERE issue_key = $1`, issueKey).
		Scan(&hist.Failures)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return hist, fmt.Errorf("failed to get failures for %s: %w", issueKey, err)
	}
	hist.Recompute()
	return hist, nil
}

// SentSince lists delivery times for a recipient, feeding the frequency budget.
func (d *DB) SentSince(ctx context.Context, recipientID string, since time.Time) ([]time.Time, error) {
	rows, err := d.Pool.Query(ctx, `
        SELECT sent_at FROM notification_history
        WHERE recipient_id = $1 AND sent_at >= $2
        ORDER BY sent_at`, recipientID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get sent notifications for %s: %w", recipientID, err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan sent_at: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
