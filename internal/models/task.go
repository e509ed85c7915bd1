package models

import "time"

// Task asks the worker pool to evaluate one item and act on the verdict.
type Task struct {
	RequestID   string    `json:"request_id"`
	IssueKey    string    `json:"issue_key"`
	RecipientID string    `json:"recipient_id,omitempty"`
	Source      string    `json:"source"`
	Timestamp   time.Time `json:"timestamp"`
}
