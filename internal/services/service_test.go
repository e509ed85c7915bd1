package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"reminder-service/internal/analysis"
	"reminder-service/internal/config"
	"reminder-service/internal/delivery"
	"reminder-service/internal/gate"
	"reminder-service/internal/logging"
	"reminder-service/internal/models"
	"reminder-service/internal/providers"
)

var wednesday = time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC)

type fakeItems map[string]*models.Item

func (f fakeItems) GetItem(_ context.Context, key string) (*models.Item, error) {
	it, ok := f[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return it, nil
}

func (f fakeItems) SearchItems(context.Context, string, int) ([]*models.Item, error) {
	var out []*models.Item
	for _, it := range f {
		out = append(out, it)
	}
	return out, nil
}

func (f fakeItems) GetItemsByIDs(_ context.Context, keys []string) (map[string]*models.Item, error) {
	out := map[string]*models.Item{}
	for _, k := range keys {
		if it, ok := f[k]; ok {
			out[k] = it
		}
	}
	return out, nil
}

type fakeActivity struct{}

func (fakeActivity) UserActivity(_ context.Context, userID string) (models.UserActivity, error) {
	return models.UserActivity{UserID: userID, OpenIssues: 6, AvgResolutionHours: 80, CompletedLast7Days: 3}, nil
}

func (fakeActivity) TeamActivity(_ context.Context, project string) (models.TeamActivity, error) {
	return models.TeamActivity{Project: project, ActiveIssues: 6, IssuesByMember: map[string]int{"alice": 3, "bob": 3}}, nil
}

type memoryStore struct {
	*providers.MemoryInbox
	mu       sync.Mutex
	prefs    map[string]models.UserPreferences
	contacts map[string]models.ContactPoint
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		MemoryInbox: providers.NewMemoryInbox(),
		prefs:       map[string]models.UserPreferences{},
		contacts:    map[string]models.ContactPoint{},
	}
}

func (s *memoryStore) GetPreferences(_ context.Context, userID string) (models.UserPreferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.prefs[userID]; ok {
		return p, nil
	}
	return models.DefaultPreferences(userID), nil
}

func (s *memoryStore) SavePreferences(_ context.Context, prefs models.UserPreferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[prefs.UserID] = prefs
	return nil
}

func (s *memoryStore) UpsertContactPoint(_ context.Context, cp models.ContactPoint) (models.ContactPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp.ID = uuid.New()
	cp.Status = "active"
	s.contacts[uuid.UUID(cp.ID).String()] = cp
	return cp, nil
}

func (s *memoryStore) GetContactPointsByUserID(_ context.Context, userID string) ([]models.ContactPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ContactPoint
	for _, cp := range s.contacts {
		if cp.UserID == userID {
			out = append(out, cp)
		}
	}
	return out, nil
}

func (s *memoryStore) DeleteContactPoint(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contacts[id]; !ok {
		return errors.New("not found")
	}
	delete(s.contacts, id)
	return nil
}

type fixture struct {
	svc     *Service
	store   *memoryStore
	items   fakeItems
	history *delivery.MemoryHistory
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	engine, err := config.NewEngineStore(config.DefaultEngine())
	if err != nil {
		t.Fatalf("engine config: %v", err)
	}
	now := func() time.Time { return wednesday }
	store := newMemoryStore()
	history := delivery.NewMemoryHistory()
	items := fakeItems{}
	logger := logging.NewNop()

	orch := analysis.NewOrchestrator(engine, analysis.Collaborators{
		Items:       items,
		Activity:    fakeActivity{},
		Preferences: store,
		Sent:        history,
	}, logger, analysis.WithClock(now))
	mgr := delivery.NewManager(engine, history, logger, delivery.WithClock(now),
		delivery.OnDelivered(func(n models.Notification) {
			orch.Invalidate(n.IssueKey)
			orch.InvalidateRecipient(n.RecipientID)
		}))
	mgr.Register(providers.NewInbox(store))

	svc := New(engine, orch, mgr, store, logger, opts)
	svc.now = now
	return &fixture{svc: svc, store: store, items: items, history: history}
}

func TestNotifyDeliversOverdueBlocker(t *testing.T) {
	f := newFixture(t, Options{})
	f.items["OPS-100"] = &models.Item{
		Key: "OPS-100", Priority: "Blocker", Type: "Bug", Assignee: "alice", Project: "OPS",
		Created: wednesday.AddDate(0, 0, -30),
		Updated: wednesday.AddDate(0, 0, -20),
		DueDate: ptrTime(wednesday.AddDate(0, 0, -1)),
	}

	res, err := f.svc.Notify(context.Background(), "OPS-100")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Decision.Verdict != gate.SendNow {
		t.Fatalf("expected send_now, got %s (%s)", res.Decision.Verdict, res.Decision.Reason)
	}
	if res.Delivery == nil || !res.Delivery.Delivered() || res.Delivery.Channel != models.ChannelInbox {
		t.Fatalf("expected inbox delivery, got %+v", res.Delivery)
	}

	inbox, _ := f.svc.Inbox(context.Background(), "alice", 10)
	if len(inbox) != 1 || inbox[0].IssueKey != "OPS-100" {
		t.Errorf("expected one inbox item for OPS-100, got %+v", inbox)
	}
	h, _ := f.svc.History(context.Background(), "OPS-100")
	if h.TotalCount != 1 {
		t.Errorf("expected 1 sent in history, got %d", h.TotalCount)
	}
}

func TestNotifySuppressesWhenCooldownActive(t *testing.T) {
	f := newFixture(t, Options{})
	f.items["OPS-100"] = &models.Item{
		Key: "OPS-100", Priority: "Blocker", Type: "Bug", Assignee: "alice", Project: "OPS",
		Updated: wednesday.AddDate(0, 0, -20),
		DueDate: ptrTime(wednesday.AddDate(0, 0, -1)),
	}
	ctx := context.Background()
	if _, err := f.svc.Notify(ctx, "OPS-100"); err != nil {
		t.Fatalf("first notify: %v", err)
	}

	// Delivery invalidated the cached verdict, so the second pass sees the send.
	res, err := f.svc.Notify(ctx, "OPS-100")
	if err != nil {
		t.Fatalf("second notify: %v", err)
	}
	if res.Decision.Verdict != gate.Suppress || res.Delivery != nil {
		t.Errorf("expected suppression after a fresh send, got %+v", res.Decision)
	}
}

func overdueBlocker(key, assignee string) *models.Item {
	return &models.Item{
		Key: key, Priority: "Blocker", Type: "Bug", Assignee: assignee, Project: "OPS",
		Updated: wednesday.AddDate(0, 0, -20),
		DueDate: ptrTime(wednesday.AddDate(0, 0, -1)),
	}
}

func TestNotifyHonoursCooldownAcrossItems(t *testing.T) {
	f := newFixture(t, Options{})
	f.items["OPS-1"] = overdueBlocker("OPS-1", "alice")
	f.items["OPS-2"] = overdueBlocker("OPS-2", "alice")
	ctx := context.Background()

	// Warm the cache so both items hold a send verdict computed before any send.
	if _, err := f.svc.FindIssuesNeedingAttention(ctx, models.AttentionFilter{}); err != nil {
		t.Fatalf("attention scan: %v", err)
	}

	first, err := f.svc.Notify(ctx, "OPS-1")
	if err != nil {
		t.Fatalf("notify OPS-1: %v", err)
	}
	if first.Delivery == nil || !first.Delivery.Delivered() {
		t.Fatalf("expected OPS-1 delivered, got %+v", first.Decision)
	}
	second, err := f.svc.Notify(ctx, "OPS-2")
	if err != nil {
		t.Fatalf("notify OPS-2: %v", err)
	}
	if second.Decision.Verdict != gate.Suppress || second.Delivery != nil {
		t.Errorf("expected OPS-2 suppressed by cooldown, got %s", second.Decision.Verdict)
	}
	if inbox, _ := f.svc.Inbox(ctx, "alice", 10); len(inbox) != 1 {
		t.Errorf("expected 1 reminder for alice, got %d", len(inbox))
	}
}

func TestNotifyConcurrentSameRecipient(t *testing.T) {
	f := newFixture(t, Options{})
	keys := []string{"OPS-1", "OPS-2", "OPS-3", "OPS-4"}
	for _, k := range keys {
		f.items[k] = overdueBlocker(k, "alice")
	}

	var wg sync.WaitGroup
	for _, k := range keys {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			if _, err := f.svc.Notify(context.Background(), key); err != nil {
				t.Errorf("notify %s: %v", key, err)
			}
		}(k)
	}
	wg.Wait()

	if inbox, _ := f.svc.Inbox(context.Background(), "alice", 10); len(inbox) != 1 {
		t.Errorf("expected exactly 1 reminder for alice, got %d", len(inbox))
	}
	if n := len(f.svc.recipients.locks); n != 0 {
		t.Errorf("expected idle recipient locks released, got %d", n)
	}
}

func TestScheduledWithinCooldown(t *testing.T) {
	f := newFixture(t, Options{})
	prefs := models.DefaultPreferences("alice")
	n := models.Notification{ID: "n-1", IssueKey: "OPS-1", RecipientID: "alice", Type: models.ActionGentleReminder, Urgency: models.UrgencyLow}
	f.svc.delivery.ScheduleNotification(context.Background(), n, prefs, wednesday.Add(2*time.Hour))

	r := &models.AnalysisResult{RecipientID: "alice"}
	r.Workload.Frequency.CooldownHours = 4

	tests := []struct {
		name    string
		at      time.Time
		blocked bool
	}{
		{"same slot", wednesday.Add(2 * time.Hour), true},
		{"before inside cooldown", wednesday, true},
		{"after inside cooldown", wednesday.Add(5 * time.Hour), true},
		{"outside cooldown", wednesday.Add(7 * time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason := f.svc.scheduledWithinCooldown(r, tt.at)
			if (reason != "") != tt.blocked {
				t.Errorf("expected blocked=%v, got reason %q", tt.blocked, reason)
			}
		})
	}

	if reason := f.svc.scheduledWithinCooldown(&models.AnalysisResult{RecipientID: "bob"}, wednesday); reason != "" {
		t.Errorf("expected no block for another recipient, got %q", reason)
	}
}

func TestNotifyWithoutAssignee(t *testing.T) {
	f := newFixture(t, Options{})
	f.items["OPS-7"] = &models.Item{
		Key: "OPS-7", Priority: "Blocker", Type: "Bug", Project: "OPS",
		Updated: wednesday.AddDate(0, 0, -20),
		DueDate: ptrTime(wednesday.AddDate(0, 0, -1)),
	}
	res, err := f.svc.Notify(context.Background(), "OPS-7")
	if res == nil {
		t.Fatalf("expected analysis even without assignee, got err %v", err)
	}
	if res.Delivery != nil {
		t.Errorf("expected nothing delivered, got %+v", res.Delivery)
	}
	if res.Decision.Verdict != gate.Suppress && !errors.Is(err, ErrNoRecipient) {
		t.Errorf("expected suppression or ErrNoRecipient, got %s / %v", res.Decision.Verdict, err)
	}
}

func TestNotifyUnknownIssue(t *testing.T) {
	f := newFixture(t, Options{})
	if _, err := f.svc.Notify(context.Background(), "NOPE-1"); err == nil {
		t.Errorf("expected error for unknown issue")
	}
}

func TestDeliverNotificationUsesStoredPreferences(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	if _, err := f.svc.DeliverNotification(ctx, models.Notification{IssueKey: "OPS-1"}); !errors.Is(err, ErrNoRecipient) {
		t.Errorf("expected ErrNoRecipient, got %v", err)
	}

	prefs := models.DefaultPreferences("bob")
	prefs.PreferredChannels = []models.Channel{models.ChannelInbox}
	if err := f.svc.SavePreferences(ctx, prefs); err != nil {
		t.Fatalf("save preferences: %v", err)
	}
	out, err := f.svc.DeliverNotification(ctx, models.Notification{
		IssueKey: "OPS-1", RecipientID: "bob", Type: models.ActionGentleReminder, Urgency: models.UrgencyLow, Message: "Still open",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !out.Delivered() {
		t.Fatalf("expected delivered, got %+v", out)
	}
	rec, err := f.svc.GetNotification(out.NotificationID)
	if err != nil || rec.Status != models.StatusDelivered {
		t.Errorf("expected delivered record, got %+v / %v", rec, err)
	}
}

func TestDeliverBatch(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	ns := []models.Notification{
		{IssueKey: "OPS-1", RecipientID: "bob", Type: models.ActionGentleReminder, Urgency: models.UrgencyLow, Message: "one"},
		{IssueKey: "OPS-2", RecipientID: "bob", Type: models.ActionGentleReminder, Urgency: models.UrgencyLow, Message: "two"},
	}
	outs, err := f.svc.DeliverBatch(ctx, ns)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(outs) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outs))
	}
	for i, out := range outs {
		if !out.Delivered() {
			t.Errorf("outcome %d: expected delivered, got %+v", i, out)
		}
	}

	if _, err := f.svc.DeliverBatch(ctx, []models.Notification{{IssueKey: "OPS-3"}}); !errors.Is(err, ErrNoRecipient) {
		t.Errorf("expected ErrNoRecipient, got %v", err)
	}
}

func TestUpdateConfiguration(t *testing.T) {
	f := newFixture(t, Options{})

	eng, err := f.svc.UpdateConfiguration([]byte(`{"delivery":{"max_retry_attempts":2}}`))
	if err != nil {
		t.Fatalf("expected valid update, got %v", err)
	}
	if eng.Delivery.MaxRetryAttempts != 2 || f.svc.Config().Delivery.MaxRetryAttempts != 2 {
		t.Errorf("expected retry attempts 2, got %d", f.svc.Config().Delivery.MaxRetryAttempts)
	}

	before := f.svc.Config()
	if _, err := f.svc.UpdateConfiguration([]byte(`{"staleness":{"thresholds":{"fresh":50}}}`)); !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if f.svc.Config().Staleness.Thresholds != before.Staleness.Thresholds {
		t.Errorf("expected rejected update to leave configuration untouched")
	}
}

func TestAddContactPoint(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	if _, err := f.svc.AddContactPoint(ctx, "alice", models.ContactPointCreate{Type: "sms", Address: "+100"}); err == nil ||
		!strings.Contains(err.Error(), "unsupported") {
		t.Errorf("expected unsupported type error, got %v", err)
	}
	cp, err := f.svc.AddContactPoint(ctx, "alice", models.ContactPointCreate{Type: models.ChannelTelegram, Address: "12345"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cp.UserID != "alice" || cp.Address != "12345" {
		t.Errorf("unexpected contact point %+v", cp)
	}
	list, _ := f.svc.ContactPoints(ctx, "alice")
	if len(list) != 1 {
		t.Errorf("expected 1 contact point, got %d", len(list))
	}
}

func TestQueueTaskDropsWhenFull(t *testing.T) {
	f := newFixture(t, Options{QueueSize: 1, MaxWorkers: 1})
	f.svc.QueueTask(models.Task{IssueKey: "OPS-1"})
	f.svc.QueueTask(models.Task{IssueKey: "OPS-2"})
	if got := len(f.svc.tasks); got != 1 {
		t.Fatalf("expected 1 queued task, got %d", got)
	}
	task := <-f.svc.tasks
	if task.IssueKey != "OPS-1" || task.RequestID == "" {
		t.Errorf("expected first task with generated request id, got %+v", task)
	}
}

func TestWorkersProcessTasksUntilStopped(t *testing.T) {
	f := newFixture(t, Options{QueueSize: 4, MaxWorkers: 2})
	f.items["OPS-100"] = &models.Item{
		Key: "OPS-100", Priority: "Blocker", Type: "Bug", Assignee: "alice", Project: "OPS",
		Updated: wednesday.AddDate(0, 0, -20),
		DueDate: ptrTime(wednesday.AddDate(0, 0, -1)),
	}
	var wg sync.WaitGroup
	f.svc.Start(&wg)
	f.svc.QueueTask(models.Task{IssueKey: "OPS-100", Source: "kafka:updated"})

	deadline := time.After(2 * time.Second)
	for {
		items, _ := f.store.InboxItems(context.Background(), "alice", 10)
		if len(items) == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("expected the task to produce an inbox item")
		case <-time.After(10 * time.Millisecond):
		}
	}
	f.svc.Stop()
	wg.Wait()
}

func ptrTime(t time.Time) *time.Time { return &t }
