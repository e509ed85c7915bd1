package models

import "time"

// Notification is a decided reminder ready for delivery. Title and Body are
// filled by the external content generator; Message carries the seed.
type Notification struct {
	ID          string            `json:"id"`
	IssueKey    string            `json:"issue_key"`
	RecipientID string            `json:"recipient_id"`
	Type        ActionType        `json:"type"`
	Urgency     Urgency           `json:"urgency"`
	Title       string            `json:"title,omitempty"`
	Body        string            `json:"body,omitempty"`
	Message     string            `json:"message"`
	NextSteps   []string          `json:"next_steps,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// NotificationStatus tracks a notification through delivery.
type NotificationStatus string

const (
	StatusPending     NotificationStatus = "pending"
	StatusScheduled   NotificationStatus = "scheduled"
	StatusDelivered   NotificationStatus = "delivered"
	StatusRetryQueued NotificationStatus = "retry_queued"
	StatusExhausted   NotificationStatus = "exhausted"
	StatusCancelled   NotificationStatus = "cancelled"
)

// Final reports whether no further delivery will be attempted.
func (s NotificationStatus) Final() bool {
	return s == StatusDelivered || s == StatusExhausted || s == StatusCancelled
}

// UserResponse is how a recipient reacted to a delivered notification.
type UserResponse string

const (
	ResponseAcknowledged UserResponse = "acknowledged"
	ResponseDismissed    UserResponse = "dismissed"
	ResponseActioned     UserResponse = "actioned"
	ResponseSnoozed      UserResponse = "snoozed"
)

// Positive reports whether the response counts towards effectiveness.
func (r UserResponse) Positive() bool {
	return r == ResponseAcknowledged || r == ResponseActioned
}

// Valid reports whether r is a known response.
func (r UserResponse) Valid() bool {
	switch r {
	case ResponseAcknowledged, ResponseDismissed, ResponseActioned, ResponseSnoozed:
		return true
	}
	return false
}

// DeliveryResult is what a channel adapter returns for one delivery.
type DeliveryResult struct {
	Success    bool      `json:"success"`
	Channel    Channel   `json:"channel"`
	DeliveryID string    `json:"delivery_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Error      string    `json:"error,omitempty"`
}

// AttemptKind says why a queued attempt exists.
type AttemptKind string

const (
	AttemptRetry     AttemptKind = "retry"
	AttemptSnooze    AttemptKind = "snooze"
	AttemptScheduled AttemptKind = "scheduled"
)

// AttemptOutcome is pending until the driver runs the attempt.
type AttemptOutcome string

const (
	OutcomePending AttemptOutcome = "pending"
	OutcomeSuccess AttemptOutcome = "success"
	OutcomeError   AttemptOutcome = "error"
)

// DeliveryAttempt is one time-based delivery try evaluated by the driver.
type DeliveryAttempt struct {
	NotificationID string         `json:"notification_id"`
	Channel        Channel        `json:"channel"`
	AttemptNumber  int            `json:"attempt_number"`
	Kind           AttemptKind    `json:"kind"`
	ScheduledAt    time.Time      `json:"scheduled_at"`
	Outcome        AttemptOutcome `json:"outcome"`
	Error          string         `json:"error,omitempty"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
}

// DeliveryQueue holds a recipient's time-based attempts.
type DeliveryQueue struct {
	UserID       string            `json:"user_id"`
	Attempts     []DeliveryAttempt `json:"attempts"`
	Processing   bool              `json:"processing"`
	SuccessCount int               `json:"success_count"`
	ErrorCount   int               `json:"error_count"`
}

// NotificationRecord is the delivery-side state of a notification.
type NotificationRecord struct {
	Notification   Notification       `json:"notification"`
	Status         NotificationStatus `json:"status"`
	Channel        Channel            `json:"channel,omitempty"`
	DeliveryID     string             `json:"delivery_id,omitempty"`
	DeliveredAt    *time.Time         `json:"delivered_at,omitempty"`
	Attempts       int                `json:"attempts"`
	LastError      string             `json:"last_error,omitempty"`
	Response       UserResponse       `json:"response,omitempty"`
	AcknowledgedAt *time.Time         `json:"acknowledged_at,omitempty"`
	DismissedAt    *time.Time         `json:"dismissed_at,omitempty"`
	ActionedAt     *time.Time         `json:"actioned_at,omitempty"`
	SnoozedUntil   *time.Time         `json:"snoozed_until,omitempty"`
}

// DeliveryOutcome is returned to callers of DeliverNotification.
type DeliveryOutcome struct {
	NotificationID string             `json:"notification_id"`
	Status         NotificationStatus `json:"status"`
	Channel        Channel            `json:"channel,omitempty"`
	Results        []DeliveryResult   `json:"results"`
	QueuedAttempts []DeliveryAttempt  `json:"queued_attempts,omitempty"`
	Error          string             `json:"error,omitempty"`
}

// Delivered reports whether a channel accepted the notification.
func (o DeliveryOutcome) Delivered() bool {
	return o.Status == StatusDelivered
}

// HistoryEntry is one delivered notification for an item.
type HistoryEntry struct {
	NotificationID string       `json:"notification_id"`
	IssueKey       string       `json:"issue_key"`
	RecipientID    string       `json:"recipient_id"`
	Channel        Channel      `json:"channel"`
	Type           ActionType   `json:"type"`
	Urgency        Urgency      `json:"urgency"`
	SentAt         time.Time    `json:"sent_at"`
	Response       UserResponse `json:"response,omitempty"`
	RespondedAt    *time.Time   `json:"responded_at,omitempty"`
}

// NotificationHistory accumulates for the life of an item.
type NotificationHistory struct {
	IssueKey           string         `json:"issue_key"`
	Notifications      []HistoryEntry `json:"notifications"`
	LastSent           *time.Time     `json:"last_sent,omitempty"`
	TotalCount         int            `json:"total_count"`
	Failures           int            `json:"failures"`
	EffectivenessScore float64        `json:"effectiveness_score"`
}

// Recompute refreshes the derived fields from Notifications.
func (h *NotificationHistory) Recompute() {
	h.TotalCount = len(h.Notifications)
	h.LastSent = nil
	responses, positive := 0, 0
	for i := range h.Notifications {
		n := &h.Notifications[i]
		if h.LastSent == nil || n.SentAt.After(*h.LastSent) {
			t := n.SentAt
			h.LastSent = &t
		}
		if n.Response == "" {
			continue
		}
		responses++
		if n.Response.Positive() {
			positive++
		}
	}
	h.EffectivenessScore = 0
	if responses > 0 {
		h.EffectivenessScore = float64(positive) / float64(responses)
	}
}

// DeliveryEvent is published for every delivery state change.
type DeliveryEvent struct {
	Kind           string             `json:"kind"`
	NotificationID string             `json:"notification_id"`
	IssueKey       string             `json:"issue_key"`
	RecipientID    string             `json:"recipient_id"`
	Status         NotificationStatus `json:"status"`
	Channel        Channel            `json:"channel,omitempty"`
	Response       UserResponse       `json:"response,omitempty"`
	Error          string             `json:"error,omitempty"`
	At             time.Time          `json:"at"`
}
