package providers

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"reminder-service/internal/delivery"
	"reminder-service/internal/models"
)

// InboxStore persists inbox items.
type InboxStore interface {
	AddInboxItem(ctx context.Context, item models.InboxItem) (string, error)
	InboxItems(ctx context.Context, userID string, limit int) ([]models.InboxItem, error)
}

// Inbox is the message-style default channel. It is always available.
type Inbox struct {
	store InboxStore
}

func NewInbox(store InboxStore) *Inbox {
	return &Inbox{store: store}
}

func (i *Inbox) Name() models.Channel  { return models.ChannelInbox }
func (i *Inbox) Style() delivery.Style { return delivery.StyleMessage }
func (i *Inbox) IsAvailable() bool     { return true }

func (i *Inbox) Validate(n models.Notification, prefs models.UserPreferences) bool {
	return n.RecipientID != "" || prefs.UserID != ""
}

func (i *Inbox) Deliver(ctx context.Context, n models.Notification, prefs models.UserPreferences) models.DeliveryResult {
	now := time.Now()
	user := n.RecipientID
	if user == "" {
		user = prefs.UserID
	}
	id, err := i.store.AddInboxItem(ctx, models.InboxItem{
		UserID:         user,
		NotificationID: n.ID,
		IssueKey:       n.IssueKey,
		Title:          Title(n),
		Body:           Body(n),
		Urgency:        n.Urgency,
		CreatedAt:      now,
	})
	if err != nil {
		return models.DeliveryResult{Channel: models.ChannelInbox, Timestamp: now, Error: err.Error()}
	}
	return models.DeliveryResult{Success: true, Channel: models.ChannelInbox, DeliveryID: id, Timestamp: now}
}

// MemoryInbox is an in-process InboxStore.
type MemoryInbox struct {
	mu    sync.Mutex
	items map[string][]models.InboxItem
}

func NewMemoryInbox() *MemoryInbox {
	return &MemoryInbox{items: make(map[string][]models.InboxItem)}
}

func (m *MemoryInbox) AddInboxItem(_ context.Context, item models.InboxItem) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	m.items[item.UserID] = append(m.items[item.UserID], item)
	return item.ID, nil
}

// InboxItems returns the newest items first.
func (m *MemoryInbox) InboxItems(_ context.Context, userID string, limit int) ([]models.InboxItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := slices.Clone(m.items[userID])
	slices.Reverse(items)
	if items == nil {
		items = []models.InboxItem{}
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}
