package delivery

import (
	"context"
	"errors"
	"slices"
	"sort"

	"reminder-service/internal/models"
)

// enqueueLocked requires m.mu.
func (m *Manager) enqueueLocked(userID string, a models.DeliveryAttempt) {
	q := m.queueLocked(userID)
	q.state.Attempts = append(q.state.Attempts, a)
}

func (m *Manager) queueLocked(userID string) *recipientQueue {
	q, ok := m.queues[userID]
	if !ok {
		q = &recipientQueue{state: models.DeliveryQueue{UserID: userID}}
		m.queues[userID] = q
	}
	return q
}

// dropAttemptsLocked removes every attempt of a notification. Requires m.mu.
func (m *Manager) dropAttemptsLocked(userID, id string) {
	q, ok := m.queues[userID]
	if !ok {
		return
	}
	q.state.Attempts = slices.DeleteFunc(q.state.Attempts, func(a models.DeliveryAttempt) bool {
		return a.NotificationID == id
	})
}

func sameAttempt(a, b models.DeliveryAttempt) bool {
	return a.NotificationID == b.NotificationID && a.Kind == b.Kind &&
		a.AttemptNumber == b.AttemptNumber && a.ScheduledAt.Equal(b.ScheduledAt)
}

// ProcessDeliveryQueue runs every due attempt of one recipient. Only one
// processor per recipient runs at a time; a concurrent call gets ErrQueueBusy.
func (m *Manager) ProcessDeliveryQueue(ctx context.Context, userID string) (int, error) {
	m.mu.Lock()
	q := m.queueLocked(userID)
	m.mu.Unlock()

	if !q.guard.TryLock() {
		return 0, ErrQueueBusy
	}
	defer q.guard.Unlock()

	now := m.now()
	m.mu.Lock()
	q.state.Processing = true
	var due []models.DeliveryAttempt
	for _, a := range q.state.Attempts {
		if a.Outcome == models.OutcomePending && !a.ScheduledAt.After(now) {
			due = append(due, a)
		}
	}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		q.state.Processing = false
		m.mu.Unlock()
	}()

	sort.SliceStable(due, func(i, j int) bool { return due[i].ScheduledAt.Before(due[j].ScheduledAt) })

	processed := 0
	for _, a := range due {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		if !m.claim(q, a) {
			continue
		}
		processed++
		switch a.Kind {
		case models.AttemptRetry:
			m.runRetry(ctx, q, a)
		default:
			// Scheduled and snoozed attempts get the full ranked pass.
			m.attemptAll(ctx, a.NotificationID)
		}
	}
	if processed > 0 {
		m.logger.Infof("Processed %d due attempts for %s", processed, userID)
	}
	return processed, nil
}

// claim checks the attempt is still pending for a live record. Scheduled and
// snooze attempts are removed on claim since attemptAll requeues as needed.
func (m *Manager) claim(q *recipientQueue, a models.DeliveryAttempt) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[a.NotificationID]
	if !ok || rec.Status.Final() {
		m.dropAttemptsLocked(q.state.UserID, a.NotificationID)
		return false
	}
	idx := slices.IndexFunc(q.state.Attempts, func(b models.DeliveryAttempt) bool { return sameAttempt(a, b) })
	if idx < 0 || q.state.Attempts[idx].Outcome != models.OutcomePending {
		return false
	}
	if a.Kind != models.AttemptRetry {
		q.state.Attempts = slices.Delete(q.state.Attempts, idx, idx+1)
		rec.Status = models.StatusPending
	}
	return true
}

func (m *Manager) runRetry(ctx context.Context, q *recipientQueue, a models.DeliveryAttempt) {
	m.mu.Lock()
	rec := m.records[a.NotificationID]
	n, prefs := rec.Notification, rec.prefs
	m.mu.Unlock()

	res := m.deliverVia(ctx, a.Channel, n, prefs)
	if res.Success {
		m.markDelivered(ctx, a.NotificationID, res)
		return
	}

	m.logger.Warnf("Retry %d of %s via %s failed: %s", a.AttemptNumber, a.NotificationID, a.Channel, res.Error)
	completed := m.now()
	m.mu.Lock()
	remaining := 0
	for i := range q.state.Attempts {
		b := &q.state.Attempts[i]
		if sameAttempt(a, *b) {
			b.Outcome = models.OutcomeError
			b.Error = res.Error
			b.CompletedAt = &completed
		}
		if b.NotificationID == a.NotificationID && b.Outcome == models.OutcomePending {
			remaining++
		}
	}
	q.state.ErrorCount++
	rec.Attempts++
	rec.LastError = res.Error
	m.mu.Unlock()

	if remaining == 0 {
		m.exhaust(ctx, a.NotificationID, res.Error)
	}
}

// ProcessAllQueues drains every recipient queue; busy queues are skipped.
func (m *Manager) ProcessAllQueues(ctx context.Context) (int, error) {
	m.mu.Lock()
	users := make([]string, 0, len(m.queues))
	for id, q := range m.queues {
		if len(q.state.Attempts) > 0 {
			users = append(users, id)
		}
	}
	m.mu.Unlock()
	sort.Strings(users)

	total := 0
	var errs []error
	for _, u := range users {
		n, err := m.ProcessDeliveryQueue(ctx, u)
		total += n
		if errors.Is(err, ErrQueueBusy) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

// Queue returns a snapshot of a recipient's queue.
func (m *Manager) Queue(userID string) models.DeliveryQueue {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[userID]
	if !ok {
		return models.DeliveryQueue{UserID: userID, Attempts: []models.DeliveryAttempt{}}
	}
	out := q.state
	out.Attempts = slices.Clone(q.state.Attempts)
	if out.Attempts == nil {
		out.Attempts = []models.DeliveryAttempt{}
	}
	return out
}

// DeliverBatch delivers several notifications. For recipients that want
// batching, same-type notifications are merged when the top-ranked channel
// can present a batch. Outcomes follow the input order.
func (m *Manager) DeliverBatch(ctx context.Context, ns []models.Notification, prefs map[string]models.UserPreferences) []models.DeliveryOutcome {
	ns = slices.Clone(ns)
	outcomes := make([]models.DeliveryOutcome, len(ns))

	type group struct {
		idx   []int
		prefs models.UserPreferences
	}
	groups := make(map[string]*group)
	var order []string
	for i, n := range ns {
		p, ok := prefs[n.RecipientID]
		if !ok {
			p = models.DefaultPreferences(n.RecipientID)
		}
		rec := m.track(n, p, models.StatusPending)
		ns[i] = rec.Notification
		key := ns[i].RecipientID + "\x00" + string(n.Type)
		g, ok := groups[key]
		if !ok {
			g = &group{prefs: p}
			groups[key] = g
			order = append(order, key)
		}
		g.idx = append(g.idx, i)
	}

	for _, key := range order {
		g := groups[key]
		if g.prefs.BatchNotifications && len(g.idx) > 1 {
			if m.deliverMerged(ctx, ns, g.idx, g.prefs, outcomes) {
				continue
			}
		}
		for _, i := range g.idx {
			outcomes[i] = m.attemptAll(ctx, ns[i].ID)
		}
	}
	return outcomes
}

// deliverMerged reports whether the group was delivered as one message.
func (m *Manager) deliverMerged(ctx context.Context, ns []models.Notification, idx []int,
	prefs models.UserPreferences, outcomes []models.DeliveryOutcome) bool {
	cfg := m.store.Current().Delivery
	first := ns[idx[0]]
	ranked := m.rankChannels(cfg, first, prefs)
	if len(ranked) == 0 {
		return false
	}
	ch, ok := m.channel(ranked[0])
	if !ok {
		return false
	}
	bc, ok := ch.(BatchChannel)
	if !ok {
		return false
	}
	batch := make([]models.Notification, len(idx))
	for j, i := range idx {
		batch[j] = ns[i]
	}
	res := bc.DeliverBatch(ctx, batch, prefs)
	res.Channel = ranked[0]
	if res.Timestamp.IsZero() {
		res.Timestamp = m.now()
	}
	if !res.Success {
		m.logger.Warnf("Batch delivery of %d notifications via %s failed: %s", len(idx), ranked[0], res.Error)
		return false
	}
	for _, i := range idx {
		m.markDelivered(ctx, ns[i].ID, res)
		outcomes[i] = models.DeliveryOutcome{
			NotificationID: ns[i].ID,
			Status:         models.StatusDelivered,
			Channel:        ranked[0],
			Results:        []models.DeliveryResult{res},
		}
	}
	return true
}
