package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
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

var (
	// ErrNoRecipient is returned when an item has nobody to notify.
	ErrNoRecipient = errors.New("item has no assignee")

	ErrUnsupportedContact = errors.New("unsupported contact point type")
)

// Store is the persistence the service needs beyond the analyzers.
type Store interface {
	analysis.PreferenceStore
	providers.InboxStore
	SavePreferences(ctx context.Context, prefs models.UserPreferences) error
	UpsertContactPoint(ctx context.Context, cp models.ContactPoint) (models.ContactPoint, error)
	GetContactPointsByUserID(ctx context.Context, userID string) ([]models.ContactPoint, error)
	DeleteContactPoint(ctx context.Context, id string) error
}

// Options sizes the worker pool.
type Options struct {
	QueueSize  int
	MaxWorkers int
}

// NotifyResult is the full path of one item through analysis, gate and
// delivery.
type NotifyResult struct {
	Analysis *models.AnalysisResult `json:"analysis"`
	Decision gate.Decision          `json:"decision"`
	Delivery *models.DeliveryOutcome `json:"delivery,omitempty"`
}

// Service ties the orchestrator, gate and delivery manager together and
// processes item tasks on a worker pool.
type Service struct {
	engine   *config.EngineStore
	orch     *analysis.Orchestrator
	delivery *delivery.Manager
	store    Store
	logger   *logging.Logger
	opts     Options
	now      func() time.Time

	recipients recipientLocks

	tasks  chan models.Task
	ctx    context.Context
	cancel context.CancelFunc
	wg     *sync.WaitGroup
}

// New constructs a Service
func New(engine *config.EngineStore, orch *analysis.Orchestrator, mgr *delivery.Manager, store Store,
	logger *logging.Logger, opts Options) *Service {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 500
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 10
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		engine:     engine,
		orch:       orch,
		delivery:   mgr,
		store:      store,
		logger:     logger,
		opts:       opts,
		now:        time.Now,
		recipients: recipientLocks{locks: make(map[string]*recipientLock)},
		tasks:      make(chan models.Task, opts.QueueSize),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Logger exposes the Service's logger
func (s *Service) Logger() *logging.Logger {
	return s.logger
}

// Start launches the worker pool
func (s *Service) Start(wg *sync.WaitGroup) {
	s.wg = wg
	for i := range s.opts.MaxWorkers {
		s.wg.Add(1)
		go s.worker(i)
	}
}

// Stop cancels the workers; Start's WaitGroup reports when they are done.
func (s *Service) Stop() {
	s.cancel()
}

// QueueTask enqueues a Task for processing
func (s *Service) QueueTask(task models.Task) {
	if task.RequestID == "" {
		task.RequestID = uuid.NewString()
	}
	select {
	case s.tasks <- task:
		s.logger.Debugf("Queued task: request_id=%s issue=%s", task.RequestID, task.IssueKey)
	default:
		s.logger.Errorf("Queue full, dropping task: request_id=%s issue=%s", task.RequestID, task.IssueKey)
	}
}

// worker processes Tasks until context is cancelled
func (s *Service) worker(id int) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			s.logger.Infof("Worker %d stopped", id)
			return
		case task := <-s.tasks:
			s.handleTask(task)
		}
	}
}

// handleTask re-evaluates an item after a tracker event.
func (s *Service) handleTask(task models.Task) {
	ctx, cancel := context.WithTimeout(s.ctx, time.Minute)
	defer cancel()

	// Tracker events change the item, so cached analysis is stale.
	s.orch.Invalidate(task.IssueKey)
	res, err := s.Notify(ctx, task.IssueKey)
	switch {
	case errors.Is(err, ErrNoRecipient):
		s.logger.Debugf("Task %s: %s has no assignee", task.RequestID, task.IssueKey)
	case err != nil:
		s.logger.Errorf("Task %s for %s failed: %v", task.RequestID, task.IssueKey, err)
	default:
		s.logger.Infof("Task %s for %s: %s %s", task.RequestID, task.IssueKey, res.Decision.Verdict, res.Decision.Reason)
	}
}

// Notify analyzes an item, asks the gate, and delivers or schedules the
// resulting notification. Decisions for one recipient are serialized and
// re-analyzed under the lock so every send sees the sends before it.
func (s *Service) Notify(ctx context.Context, issueKey string) (*NotifyResult, error) {
	r, err := s.orch.AnalyzeIssueKey(ctx, issueKey, nil, false)
	if err != nil {
		return nil, err
	}
	if r.RecipientID != "" {
		unlock := s.recipients.lock(r.RecipientID)
		defer unlock()
		if r, err = s.orch.AnalyzeIssueKey(ctx, issueKey, nil, true); err != nil {
			return nil, err
		}
	}

	out := &NotifyResult{Analysis: r, Decision: gate.Decide(r)}
	if out.Decision.Verdict == gate.Suppress {
		return out, nil
	}
	if r.RecipientID == "" {
		return out, ErrNoRecipient
	}

	at := s.now()
	if out.Decision.Verdict == gate.Schedule {
		at = *out.Decision.At
	}
	if reason := s.scheduledWithinCooldown(r, at); reason != "" {
		out.Decision = gate.Decision{Verdict: gate.Suppress, Reason: reason}
		return out, nil
	}

	prefs := s.preferences(ctx, r.RecipientID)
	n := gate.Notification(uuid.NewString(), r, s.now())
	var outcome models.DeliveryOutcome
	if out.Decision.Verdict == gate.Schedule {
		outcome = s.delivery.ScheduleNotification(ctx, n, prefs, at)
	} else {
		outcome = s.delivery.DeliverNotification(ctx, n, prefs)
	}
	out.Delivery = &outcome
	return out, nil
}

// scheduledWithinCooldown reports a reason when a reminder already waiting in
// the recipient's queue would land within the cooldown of at. Those sends are
// not in the history yet, so the workload verdict cannot see them.
func (s *Service) scheduledWithinCooldown(r *models.AnalysisResult, at time.Time) string {
	cooldown := time.Duration(r.Workload.Frequency.CooldownHours * float64(time.Hour))
	if cooldown <= 0 {
		return ""
	}
	for _, a := range s.delivery.Queue(r.RecipientID).Attempts {
		if a.Kind != models.AttemptScheduled || a.Outcome != models.OutcomePending {
			continue
		}
		gap := a.ScheduledAt.Sub(at)
		if gap < 0 {
			gap = -gap
		}
		if gap < cooldown {
			return fmt.Sprintf("reminder %s already scheduled for %s within %.0fh cooldown",
				a.NotificationID, a.ScheduledAt.Format(time.RFC3339), r.Workload.Frequency.CooldownHours)
		}
	}
	return ""
}

func (s *Service) preferences(ctx context.Context, userID string) models.UserPreferences {
	p, err := s.store.GetPreferences(ctx, userID)
	if err != nil {
		s.logger.Warnf("Preferences for %s unavailable, using defaults: %v", userID, err)
		return models.DefaultPreferences(userID)
	}
	return p
}

// SweepCache drops expired analyses and reports how many went.
func (s *Service) SweepCache() int {
	return s.orch.SweepCache()
}

// PruneRecords forgets delivery records past their retention.
func (s *Service) PruneRecords() int {
	return s.delivery.PruneRecords()
}

// AnalyzeIssue returns the (possibly cached) verdict for one item.
func (s *Service) AnalyzeIssue(ctx context.Context, issueKey string, force bool) (*models.AnalysisResult, error) {
	return s.orch.AnalyzeIssueKey(ctx, issueKey, nil, force)
}

func (s *Service) BatchAnalyze(ctx context.Context, req models.BatchRequest) (*models.BatchResult, error) {
	return s.orch.BatchAnalyze(ctx, req)
}

func (s *Service) FindIssuesNeedingAttention(ctx context.Context, f models.AttentionFilter) (*models.AttentionReport, error) {
	return s.orch.FindIssuesNeedingAttention(ctx, f)
}

// DeliverNotification delivers a caller-built notification to its recipient.
func (s *Service) DeliverNotification(ctx context.Context, n models.Notification) (models.DeliveryOutcome, error) {
	if n.RecipientID == "" {
		return models.DeliveryOutcome{}, ErrNoRecipient
	}
	return s.delivery.DeliverNotification(ctx, n, s.preferences(ctx, n.RecipientID)), nil
}

// DeliverBatch delivers several notifications, merging same-type ones for
// recipients that asked for batching.
func (s *Service) DeliverBatch(ctx context.Context, ns []models.Notification) ([]models.DeliveryOutcome, error) {
	prefs := make(map[string]models.UserPreferences)
	for _, n := range ns {
		if n.RecipientID == "" {
			return nil, ErrNoRecipient
		}
		if _, ok := prefs[n.RecipientID]; !ok {
			prefs[n.RecipientID] = s.preferences(ctx, n.RecipientID)
		}
	}
	return s.delivery.DeliverBatch(ctx, ns, prefs), nil
}

func (s *Service) ProcessDeliveryQueue(ctx context.Context, userID string) (int, error) {
	return s.delivery.ProcessDeliveryQueue(ctx, userID)
}

func (s *Service) ProcessAllQueues(ctx context.Context) (int, error) {
	return s.delivery.ProcessAllQueues(ctx)
}

func (s *Service) Queue(userID string) models.DeliveryQueue {
	return s.delivery.Queue(userID)
}

func (s *Service) RecordUserResponse(ctx context.Context, id string, r models.UserResponse, at time.Time) (models.NotificationRecord, error) {
	return s.delivery.RecordUserResponse(ctx, id, r, at)
}

func (s *Service) CancelNotification(ctx context.Context, id string) (models.NotificationRecord, error) {
	return s.delivery.CancelNotification(ctx, id)
}

func (s *Service) GetNotification(id string) (models.NotificationRecord, error) {
	return s.delivery.Record(id)
}

func (s *Service) History(ctx context.Context, issueKey string) (models.NotificationHistory, error) {
	return s.delivery.History(ctx, issueKey)
}

// Config returns the active engine configuration.
func (s *Service) Config() config.Engine {
	return s.engine.Current()
}

// UpdateConfiguration validates a partial JSON document against the current
// configuration and swaps it in atomically. Cached analyses are dropped.
func (s *Service) UpdateConfiguration(partial []byte) (config.Engine, error) {
	eng, err := s.engine.Update(partial)
	if err != nil {
		return config.Engine{}, err
	}
	s.orch.Reconfigure()
	s.logger.Infof("Engine configuration updated")
	return eng, nil
}

func (s *Service) GetPreferences(ctx context.Context, userID string) (models.UserPreferences, error) {
	return s.store.GetPreferences(ctx, userID)
}

func (s *Service) SavePreferences(ctx context.Context, prefs models.UserPreferences) error {
	if err := s.store.SavePreferences(ctx, prefs); err != nil {
		return err
	}
	// Preferences feed the workload verdict of every item the user owns.
	s.orch.Reconfigure()
	return nil
}

func (s *Service) AddContactPoint(ctx context.Context, userID string, in models.ContactPointCreate) (models.ContactPoint, error) {
	switch in.Type {
	case models.ChannelTelegram, models.ChannelEmail:
	default:
		return models.ContactPoint{}, fmt.Errorf("%w %q", ErrUnsupportedContact, in.Type)
	}
	return s.store.UpsertContactPoint(ctx, models.ContactPoint{UserID: userID, Type: in.Type, Address: in.Address})
}

func (s *Service) ContactPoints(ctx context.Context, userID string) ([]models.ContactPoint, error) {
	return s.store.GetContactPointsByUserID(ctx, userID)
}

func (s *Service) DeleteContactPoint(ctx context.Context, id string) error {
	return s.store.DeleteContactPoint(ctx, id)
}

func (s *Service) Inbox(ctx context.Context, userID string, limit int) ([]models.InboxItem, error) {
	return s.store.InboxItems(ctx, userID, limit)
}

type recipientLock struct {
	sync.Mutex
	refs int
}

// recipientLocks hands out one mutex per recipient and forgets it once idle.
type recipientLocks struct {
	mu    sync.Mutex
	locks map[string]*recipientLock
}

func (l *recipientLocks) lock(id string) func() {
	l.mu.Lock()
	rl, ok := l.locks[id]
	if !ok {
		rl = &recipientLock{}
		l.locks[id] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.Lock()
	return func() {
		rl.Unlock()
		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
