package delivery

import (
	"context"
	"sync"
	"time"

	"reminder-service/internal/models"
)

// HistoryStore keeps per-item notification history. SentSince feeds the
// workload analyzer's frequency budget.
type HistoryStore interface {
	Append(ctx context.Context, e models.HistoryEntry) error
	RecordResponse(ctx context.Context, notificationID string, r models.UserResponse, at time.Time) error
	RecordFailure(ctx context.Context, issueKey string) error
	History(ctx context.Context, issueKey string) (models.NotificationHistory, error)
	SentSince(ctx context.Context, recipientID string, since time.Time) ([]time.Time, error)
}

// MemoryHistory is an in-process HistoryStore.
type MemoryHistory struct {
	mu       sync.RWMutex
	byIssue  map[string]*models.NotificationHistory
	byNotifs map[string]string // notification id -> issue key
}

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{
		byIssue:  make(map[string]*models.NotificationHistory),
		byNotifs: make(map[string]string),
	}
}

func (h *MemoryHistory) get(issueKey string) *models.NotificationHistory {
	hist, ok := h.byIssue[issueKey]
	if !ok {
		hist = &models.NotificationHistory{IssueKey: issueKey}
		h.byIssue[issueKey] = hist
	}
	return hist
}

func (h *MemoryHistory) Append(_ context.Context, e models.HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	hist := h.get(e.IssueKey)
	hist.Notifications = append(hist.Notifications, e)
	hist.Recompute()
	h.byNotifs[e.NotificationID] = e.IssueKey
	return nil
}

// RecordResponse marks the latest delivery of a notification.
func (h *MemoryHistory) RecordResponse(_ context.Context, notificationID string, r models.UserResponse, at time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	key, ok := h.byNotifs[notificationID]
	if !ok {
		return ErrUnknownNotification
	}
	hist := h.byIssue[key]
	for i := len(hist.Notifications) - 1; i >= 0; i-- {
		if hist.Notifications[i].NotificationID == notificationID {
			hist.Notifications[i].Response = r
			t := at
			hist.Notifications[i].RespondedAt = &t
			break
		}
	}
	hist.Recompute()
	return nil
}

func (h *MemoryHistory) RecordFailure(_ context.Context, issueKey string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.get(issueKey).Failures++
	return nil
}

func (h *MemoryHistory) History(_ context.Context, issueKey string) (models.NotificationHistory, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	hist, ok := h.byIssue[issueKey]
	if !ok {
		return models.NotificationHistory{IssueKey: issueKey, Notifications: []models.HistoryEntry{}}, nil
	}
	out := *hist
	out.Notifications = append([]models.HistoryEntry(nil), hist.Notifications...)
	return out, nil
}

func (h *MemoryHistory) SentSince(_ context.Context, recipientID string, since time.Time) ([]time.Time, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []time.Time
	for _, hist := range h.byIssue {
		for _, e := range hist.Notifications {
			if e.RecipientID == recipientID && !e.SentAt.Before(since) {
				out = append(out, e.SentAt)
			}
		}
	}
	return out, nil
}
