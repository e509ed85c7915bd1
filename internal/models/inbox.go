package models

import "time"

// InboxItem is a notification parked in the recipient's inbox.
type InboxItem struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	NotificationID string     `json:"notification_id"`
	IssueKey       string     `json:"issue_key"`
	Title          string     `json:"title"`
	Body           string     `json:"body"`
	Urgency        Urgency    `json:"urgency"`
	CreatedAt      time.Time  `json:"created_at"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
}
