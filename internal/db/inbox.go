package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"reminder-service/internal/models"
)

// AddInboxItem stores a notification in the recipient's inbox.
func (d *DB) AddInboxItem(ctx context.Context, item models.InboxItem) (string, error) {
	id := uuid.New()
	if item.ID != "" {
		parsed, err := uuid.Parse(item.ID)
		if err != nil {
			return "", fmt.Errorf("invalid UUID format: %w", err)
		}
		id = parsed
	}
	query := `
	INSERT INTO inbox_items (id, user_id, notification_id, issue_key, title, body, urgency, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := d.Pool.Exec(ctx, query, id, item.UserID, item.NotificationID, item.IssueKey,
		item.Title, item.Body, string(item.Urgency), item.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("failed to insert inbox item: %w", err)
	}
	return id.String(), nil
}

// InboxItems returns the newest inbox items of a user.
func (d *DB) InboxItems(ctx context.Context, userID string, limit int) ([]models.InboxItem, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.Pool.Query(ctx, `
	SELECT id, user_id, notification_id, issue_key, title, body, urgency, created_at, read_at
	FROM inbox_items
	WHERE user_id = $1
	ORDER BY created_at DESC
	LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get inbox for %s: %w", userID, err)
	}
	defer rows.Close()

	items := []models.InboxItem{}
	for rows.Next() {
		var it models.InboxItem
		var id uuid.UUID
		var urgency string
		if err := rows.Scan(&id, &it.UserID, &it.NotificationID, &it.IssueKey, &it.Title, &it.Body,
			&urgency, &it.CreatedAt, &it.ReadAt); err != nil {
			return nil, fmt.Errorf("failed to scan inbox item: %w", err)
		}
		it.ID = id.String()
		it.Urgency = models.Urgency(urgency)
		items = append(items, it)
	}
	return items, rows.Err()
}
