package analysis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"reminder-service/internal/cache"
	"reminder-service/internal/config"
	"reminder-service/internal/logging"
	"reminder-service/internal/models"
)

var (
	ErrNilItem    = errors.New("item is nil")
	ErrMissingKey = errors.New("item key is required")
)

// ItemSource fetches item snapshots from the tracker.
type ItemSource interface {
	GetItem(ctx context.Context, key string) (*models.Item, error)
	SearchItems(ctx context.Context, jql string, maxResults int) ([]*models.Item, error)
	GetItemsByIDs(ctx context.Context, keys []string) (map[string]*models.Item, error)
}

// ActivitySource supplies the raw workload signals.
type ActivitySource interface {
	UserActivity(ctx context.Context, userID string) (models.UserActivity, error)
	TeamActivity(ctx context.Context, project string) (models.TeamActivity, error)
}

// PreferenceStore returns a recipient's notification preferences.
type PreferenceStore interface {
	GetPreferences(ctx context.Context, userID string) (models.UserPreferences, error)
}

// SentLog lists when a recipient was last notified.
type SentLog interface {
	SentSince(ctx context.Context, recipientID string, since time.Time) ([]time.Time, error)
}

// Collaborators are the external boundaries of the orchestrator. Activity,
// Preferences and Sent are optional; missing ones degrade to defaults.
type Collaborators struct {
	Items       ItemSource
	Activity    ActivitySource
	Preferences PreferenceStore
	Sent        SentLog
}

// Orchestrator runs the four analyzers per item, merges them into one verdict
// and caches the result.
type Orchestrator struct {
	store      *config.EngineStore
	deps       Collaborators
	cache      *cache.Cache[*models.AnalysisResult]
	logger     *logging.Logger
	now        func() time.Time
	defaultJQL string
}

type Option func(*Orchestrator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithDefaultJQL sets the query used when an attention scan has no filter.
func WithDefaultJQL(jql string) Option {
	return func(o *Orchestrator) { o.defaultJQL = jql }
}

func NewOrchestrator(store *config.EngineStore, deps Collaborators, logger *logging.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:      store,
		deps:       deps,
		logger:     logger,
		now:        time.Now,
		defaultJQL: "resolution = Unresolved ORDER BY updated ASC",
	}
	for _, opt := range opts {
		opt(o)
	}
	o.cache = cache.New[*models.AnalysisResult](store.Current().Orchestrator.CacheTTL(), o.now)
	return o
}

// Reconfigure applies cache settings after a configuration swap and drops
// results computed under the old settings.
func (o *Orchestrator) Reconfigure() {
	o.cache.SetTTL(o.store.Current().Orchestrator.CacheTTL())
	o.cache.Purge()
}

// Invalidate drops the cached result for an item.
func (o *Orchestrator) Invalidate(issueKey string) {
	o.cache.Delete(issueKey)
}

// InvalidateRecipient drops every cached result addressed to a recipient.
// A send changes the frequency budget behind all of them.
func (o *Orchestrator) InvalidateRecipient(recipientID string) int {
	if recipientID == "" {
		return 0
	}
	return o.cache.DeleteFunc(func(_ string, r *models.AnalysisResult) bool {
		return r.RecipientID == recipientID
	})
}

// SweepCache removes expired results.
func (o *Orchestrator) SweepCache() int {
	return o.cache.Sweep()
}

// AnalyzeIssue returns the merged verdict for one item. prefs may be nil, in
// which case the assignee's stored preferences are used. Explicit prefs
// bypass the cache in both directions.
func (o *Orchestrator) AnalyzeIssue(ctx context.Context, item *models.Item, prefs *models.UserPreferences) (*models.AnalysisResult, error) {
	return o.analyze(ctx, item, prefs, false)
}

// AnalyzeIssueKey fetches the item and analyzes it.
func (o *Orchestrator) AnalyzeIssueKey(ctx context.Context, key string, prefs *models.UserPreferences, force bool) (*models.AnalysisResult, error) {
	if key == "" {
		return nil, ErrMissingKey
	}
	if !force && prefs == nil {
		if r, ok := o.cache.Get(key); ok {
			return r, nil
		}
	}
	item, err := o.deps.Items.GetItem(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", key, err)
	}
	return o.analyze(ctx, item, prefs, force)
}

func (o *Orchestrator) analyze(ctx context.Context, item *models.Item, prefs *models.UserPreferences, force bool) (*models.AnalysisResult, error) {
	if item == nil {
		return nil, ErrNilItem
	}
	if item.Key == "" {
		return nil, ErrMissingKey
	}
	if !force && prefs == nil {
		if r, ok := o.cache.Get(item.Key); ok {
			return r, nil
		}
	}

	cfg := o.store.Current()
	now := o.now()
	p := o.preferences(ctx, item, prefs)

	staleness := NewStalenessAnalyzer(cfg.Staleness)
	deadline := NewDeadlineAnalyzer(cfg.Deadline)
	contextual := NewContextAnalyzer(cfg.Context)
	workload := NewWorkloadAnalyzer(cfg.Workload)

	res := &models.AnalysisResult{
		IssueKey:     item.Key,
		RecipientID:  p.UserID,
		LastAnalyzed: now,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if cfg.Staleness.Enabled {
			res.Staleness = staleness.Analyze(item, now)
		} else {
			res.Staleness = staleness.Neutral()
		}
		return nil
	})
	g.Go(func() error {
		if cfg.Deadline.Enabled {
			res.Deadline = deadline.Analyze(item, now)
		} else {
			res.Deadline = deadline.Neutral()
		}
		return nil
	})
	g.Go(func() error {
		if cfg.Context.Enabled {
			res.Context = contextual.Analyze(item)
		} else {
			res.Context = contextual.Neutral()
		}
		return nil
	})
	g.Go(func() error {
		if !cfg.Workload.Enabled {
			res.Workload = workload.Neutral(p, now)
			return nil
		}
		res.Workload = workload.Analyze(o.workloadInput(gctx, item, p, now))
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res.OverallScore = mergeScores([]weightedScore{
		{Enabled: cfg.Staleness.Enabled, Weight: cfg.Orchestrator.Weights.Staleness, Score: res.Staleness.Score},
		{Enabled: cfg.Deadline.Enabled, Weight: cfg.Orchestrator.Weights.Deadline, Score: res.Deadline.Score},
		{Enabled: cfg.Context.Enabled, Weight: cfg.Orchestrator.Weights.Context, Score: res.Context.Score},
		{Enabled: cfg.Workload.Enabled, Weight: cfg.Orchestrator.Weights.Workload, Score: res.Workload.Score},
	})
	res.RecommendedAction = recommend(cfg, item, res, p, now)

	if prefs == nil {
		o.cache.Set(item.Key, res)
	}
	o.logger.WithFields(map[string]interface{}{
		"issue":   item.Key,
		"score":   fmt.Sprintf("%.3f", res.OverallScore),
		"action":  res.RecommendedAction.Type,
		"urgency": res.RecommendedAction.Urgency,
	}).Debug("Analyzed issue")
	return res, nil
}

func (o *Orchestrator) preferences(ctx context.Context, item *models.Item, prefs *models.UserPreferences) models.UserPreferences {
	if prefs != nil {
		p := *prefs
		if p.UserID == "" {
			p.UserID = item.Assignee
		}
		return p
	}
	if item.Assignee == "" || o.deps.Preferences == nil {
		return models.DefaultPreferences(item.Assignee)
	}
	p, err := o.deps.Preferences.GetPreferences(ctx, item.Assignee)
	if err != nil {
		o.logger.Warnf("Preferences for %s unavailable, using defaults: %v", item.Assignee, err)
		return models.DefaultPreferences(item.Assignee)
	}
	return p
}

func (o *Orchestrator) workloadInput(ctx context.Context, item *models.Item, p models.UserPreferences, now time.Time) WorkloadInput {
	in := WorkloadInput{Item: item, Prefs: p, Now: now}
	in.User.UserID = p.UserID
	in.Team.Project = item.Project

	if o.deps.Activity != nil {
		if p.UserID != "" {
			if u, err := o.deps.Activity.UserActivity(ctx, p.UserID); err != nil {
				o.logger.Warnf("User activity for %s unavailable: %v", p.UserID, err)
			} else {
				in.User = u
			}
		}
		if item.Project != "" {
			if t, err := o.deps.Activity.TeamActivity(ctx, item.Project); err != nil {
				o.logger.Warnf("Team activity for %s unavailable: %v", item.Project, err)
			} else {
				in.Team = t
			}
		}
	}
	if o.deps.Sent != nil && p.UserID != "" {
		sent, err := o.deps.Sent.SentSince(ctx, p.UserID, now.Add(-7*24*time.Hour))
		if err != nil {
			o.logger.Warnf("Notification log for %s unavailable: %v", p.UserID, err)
		} else {
			in.Sent = sent
		}
	}
	return in
}

// BatchAnalyze analyzes items in fixed-size chunks with bounded concurrency.
// Per-item failures are collected; the batch never aborts.
func (o *Orchestrator) BatchAnalyze(ctx context.Context, req models.BatchRequest) (*models.BatchResult, error) {
	start := time.Now()
	cfg := o.store.Current().Orchestrator
	out := &models.BatchResult{Results: []*models.AnalysisResult{}, Errors: []models.AnalysisError{}}

	items, fetchErrs := o.collect(ctx, req)
	out.Errors = append(out.Errors, fetchErrs...)

	for lo := 0; lo < len(items); lo += cfg.ChunkSize {
		chunk := items[lo:min(lo+cfg.ChunkSize, len(items))]
		results := make([]*models.AnalysisResult, len(chunk))
		var mu sync.Mutex

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.MaxConcurrency)
		for i, item := range chunk {
			g.Go(func() error {
				defer func() {
					if r := recover(); r != nil {
						mu.Lock()
						out.Errors = append(out.Errors, models.AnalysisError{
							IssueKey: item.Key, Component: "orchestrator",
							Message: fmt.Sprintf("analyzer panic: %v", r), Severity: models.SeverityHigh,
						})
						mu.Unlock()
					}
				}()
				r, err := o.analyze(gctx, item, nil, req.ForceRefresh)
				if err != nil {
					mu.Lock()
					out.Errors = append(out.Errors, models.AnalysisError{
						IssueKey: item.Key, Component: "orchestrator",
						Message: err.Error(), Severity: models.SeverityMedium,
					})
					mu.Unlock()
					return nil
				}
				results[i] = r
				return nil
			})
		}
		_ = g.Wait()

		for _, r := range results {
			if r != nil {
				out.Results = append(out.Results, r)
			}
		}
		if ctx.Err() != nil {
			out.Errors = append(out.Errors, models.AnalysisError{
				Component: "orchestrator", Message: ctx.Err().Error(), Severity: models.SeverityHigh,
			})
			break
		}
	}

	out.ProcessingTime = time.Since(start)
	o.logger.Infof("Batch analyzed %d items with %d errors in %v", len(out.Results), len(out.Errors), out.ProcessingTime)
	return out, nil
}

// collect resolves the request into unique items, turning fetch failures into
// per-item errors.
func (o *Orchestrator) collect(ctx context.Context, req models.BatchRequest) ([]*models.Item, []models.AnalysisError) {
	var items []*models.Item
	var errs []models.AnalysisError
	seen := make(map[string]bool)
	add := func(it *models.Item) {
		if it == nil || it.Key == "" || seen[it.Key] {
			return
		}
		seen[it.Key] = true
		items = append(items, it)
	}

	if len(req.IssueKeys) > 0 {
		found, err := o.deps.Items.GetItemsByIDs(ctx, req.IssueKeys)
		if err != nil {
			for _, k := range req.IssueKeys {
				errs = append(errs, models.AnalysisError{IssueKey: k, Component: "item_source", Message: err.Error(), Severity: models.SeverityHigh})
			}
		}
		for _, k := range req.IssueKeys {
			if err != nil {
				break
			}
			it, ok := found[k]
			if !ok {
				errs = append(errs, models.AnalysisError{IssueKey: k, Component: "item_source", Message: "item not found", Severity: models.SeverityMedium})
				continue
			}
			add(it)
		}
	}
	if req.JQL != "" {
		maxResults := req.MaxResults
		if maxResults <= 0 {
			maxResults = 100
		}
		found, err := o.deps.Items.SearchItems(ctx, req.JQL, maxResults)
		if err != nil {
			errs = append(errs, models.AnalysisError{Component: "item_source", Message: err.Error(), Severity: models.SeverityHigh})
		}
		for _, it := range found {
			add(it)
		}
	}
	return items, errs
}

// FindIssuesNeedingAttention scans the tracker and groups results by urgency.
func (o *Orchestrator) FindIssuesNeedingAttention(ctx context.Context, f models.AttentionFilter) (*models.AttentionReport, error) {
	batch, err := o.BatchAnalyze(ctx, models.BatchRequest{JQL: o.buildJQL(f), MaxResults: f.MaxResults})
	if err != nil {
		return nil, err
	}
	upcomingDays := f.UpcomingDays
	if upcomingDays <= 0 {
		upcomingDays = 7
	}

	report := &models.AttentionReport{
		HighPriority: []*models.AnalysisResult{},
		Medium:       []*models.AnalysisResult{},
		Upcoming:     []*models.AnalysisResult{},
		Errors:       batch.Errors,
	}
	for _, r := range batch.Results {
		switch r.RecommendedAction.Urgency {
		case models.UrgencyCritical, models.UrgencyHigh:
			report.HighPriority = append(report.HighPriority, r)
		case models.UrgencyMedium:
			report.Medium = append(report.Medium, r)
		default:
			if dueWithin(r.Deadline.DaysUntilDue, upcomingDays) || dueWithin(r.Deadline.DaysUntilRelease, upcomingDays) {
				report.Upcoming = append(report.Upcoming, r)
			}
		}
	}
	for _, list := range [][]*models.AnalysisResult{report.HighPriority, report.Medium, report.Upcoming} {
		sort.SliceStable(list, func(i, j int) bool { return list[i].OverallScore > list[j].OverallScore })
	}
	report.Insights = insights(batch)
	return report, nil
}

func (o *Orchestrator) buildJQL(f models.AttentionFilter) string {
	if f.JQL != "" {
		return f.JQL
	}
	var clauses []string
	if len(f.Projects) > 0 {
		quoted := make([]string, len(f.Projects))
		for i, p := range f.Projects {
			quoted[i] = fmt.Sprintf("%q", p)
		}
		clauses = append(clauses, "project in ("+strings.Join(quoted, ", ")+")")
	}
	if f.Assignee != "" {
		clauses = append(clauses, fmt.Sprintf("assignee = %q", f.Assignee))
	}
	if len(clauses) == 0 {
		return o.defaultJQL
	}
	return strings.Join(clauses, " AND ") + " AND resolution = Unresolved ORDER BY updated ASC"
}

func dueWithin(days *int, limit int) bool {
	return days != nil && *days >= 0 && *days <= limit
}

func insights(batch *models.BatchResult) models.AttentionInsights {
	in := models.AttentionInsights{
		TotalAnalyzed: len(batch.Results),
		Failed:        len(batch.Errors),
		ByUrgency:     map[models.Urgency]int{},
		ByAction:      map[models.ActionType]int{},
	}
	total := 0.0
	for _, r := range batch.Results {
		in.ByUrgency[r.RecommendedAction.Urgency]++
		in.ByAction[r.RecommendedAction.Type]++
		total += r.OverallScore
		if r.Staleness.IsStale {
			in.StaleCount++
		}
		if r.Deadline.DaysUntilDue != nil && *r.Deadline.DaysUntilDue < 0 {
			in.OverdueCount++
		}
	}
	if len(batch.Results) > 0 {
		in.AverageScore = total / float64(len(batch.Results))
	}
	best := 0
	for t, n := range in.ByAction {
		if n > best || (n == best && t < in.MostCommonAction) {
			best, in.MostCommonAction = n, t
		}
	}
	return in
}
