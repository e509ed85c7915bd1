// Package delivery selects channels, delivers notifications, queues retries
// and tracks recipient responses.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"reminder-service/internal/config"
	"reminder-service/internal/logging"
	"reminder-service/internal/models"
)

var (
	ErrUnknownNotification = errors.New("unknown notification")
	ErrInvalidResponse     = errors.New("invalid user response")
	ErrQueueBusy           = errors.New("delivery queue is already being processed")
	ErrAlreadyFinal        = errors.New("notification is already final")
)

// EventSink receives delivery state changes.
type EventSink interface {
	Publish(ctx context.Context, e models.DeliveryEvent) error
}

type record struct {
	models.NotificationRecord
	prefs models.UserPreferences
	// finishedAt is when the record reached a final status; zero while live.
	finishedAt time.Time
}

type recipientQueue struct {
	guard sync.Mutex // held by the single active processor
	state models.DeliveryQueue
}

// Manager runs the per-notification delivery state machine:
// pending -> delivered | retry_queued -> ... -> delivered | exhausted.
type Manager struct {
	store   *config.EngineStore
	history HistoryStore
	events  EventSink
	logger  *logging.Logger
	now     func() time.Time

	chMu     sync.RWMutex
	channels map[models.Channel]Channel

	mu      sync.Mutex
	records map[string]*record
	queues  map[string]*recipientQueue

	onDelivered func(models.Notification)
}

type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithEvents publishes every state change to sink.
func WithEvents(sink EventSink) Option {
	return func(m *Manager) { m.events = sink }
}

// OnDelivered registers a hook run after each successful delivery.
func OnDelivered(fn func(models.Notification)) Option {
	return func(m *Manager) { m.onDelivered = fn }
}

func NewManager(store *config.EngineStore, history HistoryStore, logger *logging.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		history:  history,
		logger:   logger,
		now:      time.Now,
		channels: make(map[models.Channel]Channel),
		records:  make(map[string]*record),
		queues:   make(map[string]*recipientQueue),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds or replaces a channel adapter.
func (m *Manager) Register(ch Channel) {
	m.chMu.Lock()
	defer m.chMu.Unlock()
	m.channels[ch.Name()] = ch
	m.logger.Infof("Registered delivery channel %s (%s)", ch.Name(), ch.Style())
}

func (m *Manager) channel(name models.Channel) (Channel, bool) {
	m.chMu.RLock()
	defer m.chMu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

// DeliverNotification tries the ranked channels in order and queues timed
// retries when every channel fails.
func (m *Manager) DeliverNotification(ctx context.Context, n models.Notification, prefs models.UserPreferences) models.DeliveryOutcome {
	rec := m.track(n, prefs, models.StatusPending)
	return m.attemptAll(ctx, rec.Notification.ID)
}

// ScheduleNotification defers delivery until at; the driver picks it up.
func (m *Manager) ScheduleNotification(ctx context.Context, n models.Notification, prefs models.UserPreferences, at time.Time) models.DeliveryOutcome {
	cfg := m.store.Current().Delivery
	rec := m.track(n, prefs, models.StatusScheduled)
	ranked := m.rankChannels(cfg, rec.Notification, prefs)
	ch := models.Channel(cfg.DefaultChannel)
	if len(ranked) > 0 {
		ch = ranked[0]
	}
	attempt := models.DeliveryAttempt{
		NotificationID: rec.Notification.ID,
		Channel:        ch,
		Kind:           models.AttemptScheduled,
		ScheduledAt:    at,
		Outcome:        models.OutcomePending,
	}
	m.mu.Lock()
	m.enqueueLocked(rec.Notification.RecipientID, attempt)
	m.mu.Unlock()

	m.publish(ctx, "scheduled", rec.Notification, models.StatusScheduled, ch, "", "")
	return models.DeliveryOutcome{
		NotificationID: rec.Notification.ID,
		Status:         models.StatusScheduled,
		Channel:        ch,
		Results:        []models.DeliveryResult{},
		QueuedAttempts: []models.DeliveryAttempt{attempt},
	}
}

// track registers a notification, assigning an id when missing.
func (m *Manager) track(n models.Notification, prefs models.UserPreferences, status models.NotificationStatus) *record {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = m.now()
	}
	if n.RecipientID == "" {
		n.RecipientID = prefs.UserID
	}
	rec := &record{
		NotificationRecord: models.NotificationRecord{Notification: n, Status: status},
		prefs:              prefs,
	}
	m.mu.Lock()
	m.records[n.ID] = rec
	m.mu.Unlock()
	return rec
}

// attemptAll is the synchronous pass over every ranked channel.
func (m *Manager) attemptAll(ctx context.Context, id string) models.DeliveryOutcome {
	cfg := m.store.Current().Delivery
	m.mu.Lock()
	rec, ok := m.records[id]
	if !ok {
		m.mu.Unlock()
		return models.DeliveryOutcome{NotificationID: id, Error: ErrUnknownNotification.Error()}
	}
	n, prefs := rec.Notification, rec.prefs
	m.mu.Unlock()

	out := models.DeliveryOutcome{NotificationID: n.ID, Results: []models.DeliveryResult{}}
	ranked := m.rankChannels(cfg, n, prefs)
	for _, name := range ranked {
		res := m.deliverVia(ctx, name, n, prefs)
		out.Results = append(out.Results, res)
		if res.Success {
			m.markDelivered(ctx, id, res)
			out.Status = models.StatusDelivered
			out.Channel = name
			return out
		}
		m.logger.Warnf("Delivery of %s via %s failed: %s", n.ID, name, res.Error)
	}

	if len(ranked) == 0 {
		ranked = []models.Channel{models.Channel(cfg.DefaultChannel)}
		out.Error = "no available channel"
	} else {
		out.Error = "all channels failed"
	}
	out.QueuedAttempts = m.queueRetries(ctx, id, ranked, cfg)
	if len(out.QueuedAttempts) == 0 {
		m.exhaust(ctx, id, out.Error)
		out.Status = models.StatusExhausted
		return out
	}
	out.Status = models.StatusRetryQueued
	return out
}

// queueRetries schedules the bounded retry series, cycling channels in rank order.
func (m *Manager) queueRetries(ctx context.Context, id string, ranked []models.Channel, cfg config.DeliveryConfig) []models.DeliveryAttempt {
	now := m.now()
	m.mu.Lock()
	rec, ok := m.records[id]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	attempts := make([]models.DeliveryAttempt, 0, cfg.MaxRetryAttempts)
	for i := 1; i <= cfg.MaxRetryAttempts; i++ {
		a := models.DeliveryAttempt{
			NotificationID: id,
			Channel:        ranked[(i-1)%len(ranked)],
			AttemptNumber:  i,
			Kind:           models.AttemptRetry,
			ScheduledAt:    now.Add(cfg.Backoff(i)),
			Outcome:        models.OutcomePending,
		}
		m.enqueueLocked(rec.Notification.RecipientID, a)
		attempts = append(attempts, a)
	}
	if len(attempts) > 0 {
		rec.Status = models.StatusRetryQueued
	}
	n := rec.Notification
	m.mu.Unlock()

	if len(attempts) > 0 {
		m.logger.Infof("Queued %d retries for notification %s", len(attempts), id)
		m.publish(ctx, "retry_queued", n, models.StatusRetryQueued, "", "", "")
	}
	return attempts
}

func (m *Manager) deliverVia(ctx context.Context, name models.Channel, n models.Notification, prefs models.UserPreferences) models.DeliveryResult {
	ch, ok := m.channel(name)
	switch {
	case !ok:
		return models.DeliveryResult{Channel: name, Timestamp: m.now(), Error: "channel not registered"}
	case !ch.IsAvailable():
		return models.DeliveryResult{Channel: name, Timestamp: m.now(), Error: "channel unavailable"}
	case !ch.Validate(n, prefs):
		return models.DeliveryResult{Channel: name, Timestamp: m.now(), Error: "notification rejected by channel"}
	}
	res := ch.Deliver(ctx, n, prefs)
	res.Channel = name
	if res.Timestamp.IsZero() {
		res.Timestamp = m.now()
	}
	if !res.Success && res.Error == "" {
		res.Error = "delivery failed"
	}
	return res
}

// markDelivered records success, drops remaining attempts and appends history.
func (m *Manager) markDelivered(ctx context.Context, id string, res models.DeliveryResult) {
	m.mu.Lock()
	rec, ok := m.records[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	at := res.Timestamp
	rec.Status = models.StatusDelivered
	rec.Channel = res.Channel
	rec.DeliveryID = res.DeliveryID
	rec.DeliveredAt = &at
	rec.Attempts++
	rec.LastError = ""
	rec.SnoozedUntil = nil
	rec.finishedAt = at
	n := rec.Notification
	m.dropAttemptsLocked(n.RecipientID, id)
	if q, ok := m.queues[n.RecipientID]; ok {
		q.state.SuccessCount++
	}
	m.mu.Unlock()

	entry := models.HistoryEntry{
		NotificationID: id,
		IssueKey:       n.IssueKey,
		RecipientID:    n.RecipientID,
		Channel:        res.Channel,
		Type:           n.Type,
		Urgency:        n.Urgency,
		SentAt:         at,
	}
	if err := m.history.Append(ctx, entry); err != nil {
		m.logger.Errorf("Append history for %s failed: %v", id, err)
	}
	m.logger.Infof("Notification %s delivered via %s", id, res.Channel)
	m.publish(ctx, "delivered", n, models.StatusDelivered, res.Channel, "", "")
	if m.onDelivered != nil {
		m.onDelivered(n)
	}
}

// exhaust marks permanent failure; the notification is surfaced, not dropped.
func (m *Manager) exhaust(ctx context.Context, id, reason string) {
	m.mu.Lock()
	rec, ok := m.records[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	rec.Status = models.StatusExhausted
	rec.LastError = reason
	rec.finishedAt = m.now()
	n := rec.Notification
	m.dropAttemptsLocked(n.RecipientID, id)
	m.mu.Unlock()

	if err := m.history.RecordFailure(ctx, n.IssueKey); err != nil {
		m.logger.Errorf("Record failure for %s failed: %v", n.IssueKey, err)
	}
	m.logger.Errorf("Notification %s exhausted: %s", id, reason)
	m.publish(ctx, "exhausted", n, models.StatusExhausted, "", "", reason)
}

// RecordUserResponse stores how the recipient reacted. Snoozing reschedules
// the same notification instead of creating retries.
func (m *Manager) RecordUserResponse(ctx context.Context, id string, response models.UserResponse, at time.Time) (models.NotificationRecord, error) {
	if !response.Valid() {
		return models.NotificationRecord{}, fmt.Errorf("%w: %q", ErrInvalidResponse, response)
	}
	if at.IsZero() {
		at = m.now()
	}
	cfg := m.store.Current().Delivery

	m.mu.Lock()
	rec, ok := m.records[id]
	if !ok {
		m.mu.Unlock()
		return models.NotificationRecord{}, fmt.Errorf("%w: %s", ErrUnknownNotification, id)
	}
	// Cancelled and exhausted notifications must never be sent again.
	if response == models.ResponseSnoozed && (rec.Status == models.StatusCancelled || rec.Status == models.StatusExhausted) {
		snapshot := rec.NotificationRecord
		m.mu.Unlock()
		return snapshot, fmt.Errorf("%w: cannot snooze %s notification", ErrAlreadyFinal, snapshot.Status)
	}
	t := at
	rec.Response = response
	switch response {
	case models.ResponseAcknowledged:
		rec.AcknowledgedAt = &t
	case models.ResponseDismissed:
		rec.DismissedAt = &t
	case models.ResponseActioned:
		rec.ActionedAt = &t
	case models.ResponseSnoozed:
		until := at.Add(time.Duration(cfg.SnoozeMinutes) * time.Minute)
		rec.SnoozedUntil = &until
		rec.Status = models.StatusScheduled
		rec.finishedAt = time.Time{}
		ch := rec.Channel
		if ch == "" {
			ch = models.Channel(cfg.DefaultChannel)
		}
		m.dropAttemptsLocked(rec.Notification.RecipientID, id)
		m.enqueueLocked(rec.Notification.RecipientID, models.DeliveryAttempt{
			NotificationID: id,
			Channel:        ch,
			Kind:           models.AttemptSnooze,
			ScheduledAt:    until,
			Outcome:        models.OutcomePending,
		})
	}
	snapshot := rec.NotificationRecord
	m.mu.Unlock()

	if snapshot.DeliveredAt != nil {
		if err := m.history.RecordResponse(ctx, id, response, at); err != nil && !errors.Is(err, ErrUnknownNotification) {
			m.logger.Errorf("Record response for %s failed: %v", id, err)
		}
	}
	m.publish(ctx, "response", snapshot.Notification, snapshot.Status, snapshot.Channel, response, "")
	return snapshot, nil
}

// CancelNotification drops pending attempts and marks the record cancelled.
func (m *Manager) CancelNotification(ctx context.Context, id string) (models.NotificationRecord, error) {
	m.mu.Lock()
	rec, ok := m.records[id]
	if !ok {
		m.mu.Unlock()
		return models.NotificationRecord{}, fmt.Errorf("%w: %s", ErrUnknownNotification, id)
	}
	if rec.Status == models.StatusDelivered || rec.Status == models.StatusExhausted {
		snapshot := rec.NotificationRecord
		m.mu.Unlock()
		return snapshot, ErrAlreadyFinal
	}
	rec.Status = models.StatusCancelled
	rec.finishedAt = m.now()
	m.dropAttemptsLocked(rec.Notification.RecipientID, id)
	snapshot := rec.NotificationRecord
	m.mu.Unlock()

	m.publish(ctx, "cancelled", snapshot.Notification, models.StatusCancelled, "", "", "")
	return snapshot, nil
}

// Record returns the delivery state of a notification.
func (m *Manager) Record(id string) (models.NotificationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return models.NotificationRecord{}, fmt.Errorf("%w: %s", ErrUnknownNotification, id)
	}
	return rec.NotificationRecord, nil
}

// PruneRecords forgets records that finished longer ago than the configured
// retention and reports how many went. History is unaffected.
func (m *Manager) PruneRecords() int {
	cutoff := m.now().Add(-m.store.Current().Delivery.Retention())
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, rec := range m.records {
		if rec.finishedAt.IsZero() || rec.finishedAt.After(cutoff) {
			continue
		}
		m.dropAttemptsLocked(rec.Notification.RecipientID, id)
		delete(m.records, id)
		n++
	}
	return n
}

// History returns the per-item notification history.
func (m *Manager) History(ctx context.Context, issueKey string) (models.NotificationHistory, error) {
	return m.history.History(ctx, issueKey)
}

func (m *Manager) publish(ctx context.Context, kind string, n models.Notification, status models.NotificationStatus,
	ch models.Channel, resp models.UserResponse, errMsg string) {
	if m.events == nil {
		return
	}
	e := models.DeliveryEvent{
		Kind:           kind,
		NotificationID: n.ID,
		IssueKey:       n.IssueKey,
		RecipientID:    n.RecipientID,
		Status:         status,
		Channel:        ch,
		Response:       resp,
		Error:          errMsg,
		At:             m.now(),
	}
	if err := m.events.Publish(ctx, e); err != nil {
		m.logger.Warnf("Publish %s event for %s failed: %v", kind, n.ID, err)
	}
}
