package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrInvalidConfig is returned when engine settings fail validation.
var ErrInvalidConfig = errors.New("invalid engine configuration")

// Engine holds every tunable of the decision engine and the delivery subsystem.
type Engine struct {
	Staleness    StalenessConfig    `json:"staleness"`
	Deadline     DeadlineConfig     `json:"deadline"`
	Context      ContextConfig      `json:"context"`
	Workload     WorkloadConfig     `json:"workload"`
	Orchestrator OrchestratorConfig `json:"orchestrator"`
	Delivery     DeliveryConfig     `json:"delivery"`
}

// StalenessConfig tunes the inactivity ladder.
type StalenessConfig struct {
	Enabled      bool    `json:"enabled"`
	NeutralScore float64 `json:"neutral_score"`
	// Thresholds are upper bounds in effective inactivity days: below Fresh is
	// fresh, below Aging is aging and so on; at or above VeryStale is abandoned.
	Thresholds          StalenessThresholds `json:"thresholds"`
	SignalWeights       SignalWeights       `json:"signal_weights"`
	TypeMultipliers     map[string]float64  `json:"type_multipliers"`
	PriorityMultipliers map[string]float64  `json:"priority_multipliers"`
}

type StalenessThresholds struct {
	Fresh     float64 `json:"fresh"`
	Aging     float64 `json:"aging"`
	Stale     float64 `json:"stale"`
	VeryStale float64 `json:"very_stale"`
}

type SignalWeights struct {
	Update  float64 `json:"update"`
	Comment float64 `json:"comment"`
	Worklog float64 `json:"worklog"`
}

// DeadlineConfig tunes due date, release and SLA proximity scoring.
type DeadlineConfig struct {
	Enabled             bool               `json:"enabled"`
	NeutralScore        float64            `json:"neutral_score"`
	BusinessDaysOnly    bool               `json:"business_days_only"`
	BusinessHours       BusinessHours      `json:"business_hours"`
	Holidays            []string           `json:"holidays"`
	SLAs                []SLAConfig        `json:"slas"`
	DuePoints           ProximityPoints    `json:"due_points"`
	ReleasePoints       ProximityPoints    `json:"release_points"`
	SLAPoints           SLAPoints          `json:"sla_points"`
	UrgencyThresholds   UrgencyThresholds  `json:"urgency_thresholds"`
	PriorityMultipliers map[string]float64 `json:"priority_multipliers"`
	// ScoreScale maps the integer urgency score onto [0,1].
	ScoreScale float64 `json:"score_scale"`
}

type BusinessHours struct {
	StartHour int            `json:"start_hour"`
	EndHour   int            `json:"end_hour"`
	Weekdays  []time.Weekday `json:"weekdays"`
	Timezone  string         `json:"timezone"`
}

// SLAConfig is one response or resolution time limit.
type SLAConfig struct {
	Name              string   `json:"name"`
	Type              string   `json:"type"`
	Priorities        []string `json:"priorities"`
	IssueTypes        []string `json:"issue_types"`
	TimeLimitHours    float64  `json:"time_limit_hours"`
	BusinessHoursOnly bool     `json:"business_hours_only"`
}

// ProximityPoints is a step function over days remaining. Steps are checked in
// order and the first step whose WithinDays covers the remaining days wins.
type ProximityPoints struct {
	Overdue int             `json:"overdue"`
	Steps   []ProximityStep `json:"steps"`
}

type ProximityStep struct {
	WithinDays int `json:"within_days"`
	Points     int `json:"points"`
}

type SLAPoints struct {
	Warning  int `json:"warning"`
	Critical int `json:"critical"`
	Breached int `json:"breached"`
}

type UrgencyThresholds struct {
	Medium   int `json:"medium"`
	High     int `json:"high"`
	Critical int `json:"critical"`
}

// ContextConfig tunes business and technical importance scoring.
type ContextConfig struct {
	Enabled               bool               `json:"enabled"`
	NeutralScore          float64            `json:"neutral_score"`
	PriorityWeights       map[string]float64 `json:"priority_weights"`
	DefaultPriorityWeight float64            `json:"default_priority_weight"`
	TypeWeights           map[string]float64 `json:"type_weights"`
	DefaultTypeWeight     float64            `json:"default_type_weight"`
	ProjectWeights        map[string]float64 `json:"project_weights"`
	DefaultProjectWeight  float64            `json:"default_project_weight"`
	Modifiers             ContextModifiers   `json:"modifiers"`
	ScoreWeights          ContextWeights     `json:"score_weights"`
	Keywords              KeywordTables      `json:"keywords"`
}

type ContextModifiers struct {
	Security         float64 `json:"security"`
	CustomerFacing   float64 `json:"customer_facing"`
	Blocking         float64 `json:"blocking"`
	CrashBoost       float64 `json:"crash_boost"`
	CosmeticDampen   float64 `json:"cosmetic_dampen"`
	LargeStoryPoints float64 `json:"large_story_points"`
	LargeStoryBoost  float64 `json:"large_story_boost"`
	EpicBoost        float64 `json:"epic_boost"`
	ProjectBoost     float64 `json:"project_boost"`
	ProjectDampen    float64 `json:"project_dampen"`
}

type ContextWeights struct {
	Priority   float64 `json:"priority"`
	Type       float64 `json:"type"`
	Project    float64 `json:"project"`
	Business   float64 `json:"business"`
	Visibility float64 `json:"visibility"`
}

// KeywordTable matches an item when any term occurs in its summary or
// description, or any label is attached to it. Matching is case-insensitive.
type KeywordTable struct {
	Terms  []string `json:"terms"`
	Labels []string `json:"labels"`
}

// KeywordTables are the swappable heuristics behind the context analyzer.
type KeywordTables struct {
	Security           KeywordTable            `json:"security"`
	CustomerFacing     KeywordTable            `json:"customer_facing"`
	Blocking           KeywordTable            `json:"blocking"`
	Crash              KeywordTable            `json:"crash"`
	Cosmetic           KeywordTable            `json:"cosmetic"`
	RevenueHigh        KeywordTable            `json:"revenue_high"`
	RevenueMedium      KeywordTable            `json:"revenue_medium"`
	Architecture       KeywordTable            `json:"architecture"`
	Integration        KeywordTable            `json:"integration"`
	Performance        KeywordTable            `json:"performance"`
	ExternalDependency KeywordTable            `json:"external_dependency"`
	Executive          KeywordTable            `json:"executive"`
	Testing            KeywordTable            `json:"testing"`
	ProjectBoost       KeywordTable            `json:"project_boost"`
	ProjectDampen      KeywordTable            `json:"project_dampen"`
	Skills             map[string]KeywordTable `json:"skills"`
}

// WorkloadConfig tunes recipient capacity, stress and notification budgets.
type WorkloadConfig struct {
	Enabled            bool               `json:"enabled"`
	NeutralScore       float64            `json:"neutral_score"`
	Capacity           CapacityRules      `json:"capacity"`
	Stress             StressRules        `json:"stress"`
	Team               TeamRules          `json:"team"`
	Limits             FrequencyLimits    `json:"limits"`
	CapacityScores     map[string]float64 `json:"capacity_scores"`
	StressDelayMinutes int                `json:"stress_delay_minutes"`
}

// CapacityRules is the point table for the capacity tier. Points at or above
// OverPoints mean over capacity, at or above NearPoints near capacity, zero or
// below under capacity.
type CapacityRules struct {
	OpenHeavy               int     `json:"open_heavy"`
	OpenBusy                int     `json:"open_busy"`
	OpenModerate            int     `json:"open_moderate"`
	OpenLight               int     `json:"open_light"`
	SlowResolutionHours     float64 `json:"slow_resolution_hours"`
	ModerateResolutionHours float64 `json:"moderate_resolution_hours"`
	LowCompletions          int     `json:"low_completions"`
	HighCompletions         int     `json:"high_completions"`
	NearPoints              int     `json:"near_points"`
	OverPoints              int     `json:"over_points"`
}

type StressRules struct {
	RapidChangesHigh      int     `json:"rapid_changes_high"`
	RapidChangesModerate  int     `json:"rapid_changes_moderate"`
	AfterHoursHigh        int     `json:"after_hours_high"`
	AfterHoursModerate    int     `json:"after_hours_moderate"`
	WeekendHigh           int     `json:"weekend_high"`
	WeekendModerate       int     `json:"weekend_moderate"`
	ResponseHoursHigh     float64 `json:"response_hours_high"`
	ResponseHoursModerate float64 `json:"response_hours_moderate"`
	ModerateBand          int     `json:"moderate_band"`
	HighBand              int     `json:"high_band"`
	CriticalBand          int     `json:"critical_band"`
}

// TeamRules classify a project by active issues per member.
type TeamRules struct {
	BusyPerMember       float64 `json:"busy_per_member"`
	OverloadedPerMember float64 `json:"overloaded_per_member"`
	CriticalPerMember   float64 `json:"critical_per_member"`
}

type FrequencyLimits struct {
	MaxDaily             int                `json:"max_daily"`
	MaxWeekly            int                `json:"max_weekly"`
	CooldownHours        map[string]float64 `json:"cooldown_hours"`
	DefaultCooldownHours float64            `json:"default_cooldown_hours"`
}

// OrchestratorConfig tunes merging, caching and batching.
type OrchestratorConfig struct {
	Weights         AnalyzerWeights `json:"weights"`
	CacheTTLMinutes int             `json:"cache_ttl_minutes"`
	ChunkSize       int             `json:"chunk_size"`
	MaxConcurrency  int             `json:"max_concurrency"`
	CriticalScore   float64         `json:"critical_score"`
	HighScore       float64         `json:"high_score"`
	SuggestionScore float64         `json:"suggestion_score"`
}

type AnalyzerWeights struct {
	Staleness float64 `json:"staleness"`
	Deadline  float64 `json:"deadline"`
	Context   float64 `json:"context"`
	Workload  float64 `json:"workload"`
}

// DeliveryConfig tunes channel ranking and the retry queue.
type DeliveryConfig struct {
	MaxRetryAttempts int    `json:"max_retry_attempts"`
	BackoffMinutes   []int  `json:"backoff_minutes"`
	SnoozeMinutes    int    `json:"snooze_minutes"`
	DefaultChannel   string `json:"default_channel"`
	PreferenceStep   int    `json:"preference_step"`
	RetentionHours   int    `json:"record_retention_hours"`
	// StyleBonus rewards channels whose presentation fits the urgency:
	// urgency -> presentation style -> bonus points.
	StyleBonus map[string]map[string]int `json:"style_bonus"`
}

// CacheTTL returns the analysis cache lifetime.
func (o OrchestratorConfig) CacheTTL() time.Duration {
	return time.Duration(o.CacheTTLMinutes) * time.Minute
}

// Retention returns how long finished notification records stay queryable.
func (d DeliveryConfig) Retention() time.Duration {
	return time.Duration(d.RetentionHours) * time.Hour
}

// Backoff returns the delay before retry attempt n (1-based). Attempts past
// the end of the schedule reuse the last interval.
func (d DeliveryConfig) Backoff(n int) time.Duration {
	if len(d.BackoffMinutes) == 0 {
		return 0
	}
	idx := n - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(d.BackoffMinutes) {
		idx = len(d.BackoffMinutes) - 1
	}
	return time.Duration(d.BackoffMinutes[idx]) * time.Minute
}

// HolidaySet returns holiday dates keyed by YYYY-MM-DD.
func (d DeadlineConfig) HolidaySet() map[string]bool {
	set := make(map[string]bool, len(d.Holidays))
	for _, h := range d.Holidays {
		set[h] = true
	}
	return set
}

// Location resolves the business-hours timezone, falling back to UTC.
func (b BusinessHours) Location() *time.Location {
	if b.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Clone returns a deep copy.
func (e Engine) Clone() Engine {
	data, err := json.Marshal(e)
	if err != nil {
		panic(fmt.Sprintf("engine config is not serializable: %v", err))
	}
	var out Engine
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("engine config does not round-trip: %v", err))
	}
	return out
}

// Apply decodes a partial JSON document over a copy of e and validates the
// result. Objects merge field by field, maps merge by key, arrays replace.
func (e Engine) Apply(partial []byte) (Engine, error) {
	next := e.Clone()
	if err := json.Unmarshal(partial, &next); err != nil {
		return Engine{}, fmt.Errorf("%w: decode: %v", ErrInvalidConfig, err)
	}
	if err := next.Validate(); err != nil {
		return Engine{}, err
	}
	return next, nil
}

// Validate rejects settings that would make the engine misbehave silently.
func (e Engine) Validate() error {
	var errs []error
	bad := func(path, format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s: %s", ErrInvalidConfig, path, fmt.Sprintf(format, args...)))
	}

	t := e.Staleness.Thresholds
	if !(t.Fresh > 0 && t.Fresh < t.Aging && t.Aging < t.Stale && t.Stale < t.VeryStale) {
		bad("staleness.thresholds", "must satisfy 0 < fresh < aging < stale < very_stale, got %v/%v/%v/%v",
			t.Fresh, t.Aging, t.Stale, t.VeryStale)
	}
	sw := e.Staleness.SignalWeights
	if sw.Update <= 0 || sw.Comment < 0 || sw.Worklog < 0 {
		bad("staleness.signal_weights", "update must be positive and others non-negative")
	}
	checkMultipliers(bad, "staleness.type_multipliers", e.Staleness.TypeMultipliers)
	checkMultipliers(bad, "staleness.priority_multipliers", e.Staleness.PriorityMultipliers)

	d := e.Deadline
	bh := d.BusinessHours
	if bh.StartHour < 0 || bh.EndHour > 24 || bh.StartHour >= bh.EndHour {
		bad("deadline.business_hours", "start %d must be before end %d within 0..24", bh.StartHour, bh.EndHour)
	}
	if len(bh.Weekdays) == 0 {
		bad("deadline.business_hours.weekdays", "at least one business day is required")
	}
	if bh.Timezone != "" {
		if _, err := time.LoadLocation(bh.Timezone); err != nil {
			bad("deadline.business_hours.timezone", "%v", err)
		}
	}
	for _, h := range d.Holidays {
		if _, err := time.Parse(time.DateOnly, h); err != nil {
			bad("deadline.holidays", "%q is not a YYYY-MM-DD date", h)
		}
	}
	for i, s := range d.SLAs {
		if s.TimeLimitHours <= 0 {
			bad(fmt.Sprintf("deadline.slas[%d]", i), "time limit must be positive")
		}
	}
	checkSteps(bad, "deadline.due_points", d.DuePoints)
	checkSteps(bad, "deadline.release_points", d.ReleasePoints)
	u := d.UrgencyThresholds
	if !(u.Medium > 0 && u.Medium < u.High && u.High < u.Critical) {
		bad("deadline.urgency_thresholds", "must satisfy 0 < medium < high < critical")
	}
	if d.ScoreScale <= 0 {
		bad("deadline.score_scale", "must be positive")
	}
	checkMultipliers(bad, "deadline.priority_multipliers", d.PriorityMultipliers)

	c := e.Context
	cw := c.ScoreWeights
	if cw.Priority < 0 || cw.Type < 0 || cw.Project < 0 || cw.Business < 0 || cw.Visibility < 0 ||
		cw.Priority+cw.Type+cw.Project+cw.Business+cw.Visibility <= 0 {
		bad("context.score_weights", "must be non-negative with a positive sum")
	}
	for _, w := range []map[string]float64{c.PriorityWeights, c.TypeWeights, c.ProjectWeights} {
		for k, v := range w {
			if v < 0 || v > 1 {
				bad("context.weights", "%s=%v outside [0,1]", k, v)
			}
		}
	}

	w := e.Workload
	if !(w.Capacity.NearPoints > 0 && w.Capacity.NearPoints < w.Capacity.OverPoints) {
		bad("workload.capacity", "must satisfy 0 < near_points < over_points")
	}
	if !(w.Capacity.OpenLight < w.Capacity.OpenModerate && w.Capacity.OpenModerate < w.Capacity.OpenBusy &&
		w.Capacity.OpenBusy < w.Capacity.OpenHeavy) {
		bad("workload.capacity", "open issue bands must be increasing")
	}
	s := w.Stress
	if !(s.ModerateBand > 0 && s.ModerateBand < s.HighBand && s.HighBand < s.CriticalBand) {
		bad("workload.stress", "bands must satisfy 0 < moderate < high < critical")
	}
	tr := w.Team
	if !(tr.BusyPerMember > 0 && tr.BusyPerMember < tr.OverloadedPerMember && tr.OverloadedPerMember < tr.CriticalPerMember) {
		bad("workload.team", "per-member bands must be increasing")
	}
	if w.Limits.MaxDaily < 0 || w.Limits.MaxWeekly < 0 {
		bad("workload.limits", "caps must not be negative")
	}
	if w.Limits.MaxDaily > 0 && w.Limits.MaxWeekly > 0 && w.Limits.MaxWeekly < w.Limits.MaxDaily {
		bad("workload.limits", "weekly cap %d is below daily cap %d", w.Limits.MaxWeekly, w.Limits.MaxDaily)
	}
	for k, v := range w.Limits.CooldownHours {
		if v < 0 {
			bad("workload.limits.cooldown_hours", "%s must not be negative", k)
		}
	}
	if w.StressDelayMinutes < 0 {
		bad("workload.stress_delay_minutes", "must not be negative")
	}

	o := e.Orchestrator
	ow := o.Weights
	if ow.Staleness < 0 || ow.Deadline < 0 || ow.Context < 0 || ow.Workload < 0 {
		bad("orchestrator.weights", "must not be negative")
	}
	enabledWeight := 0.0
	if e.Staleness.Enabled {
		enabledWeight += ow.Staleness
	}
	if e.Deadline.Enabled {
		enabledWeight += ow.Deadline
	}
	if e.Context.Enabled {
		enabledWeight += ow.Context
	}
	if e.Workload.Enabled {
		enabledWeight += ow.Workload
	}
	if enabledWeight <= 0 {
		bad("orchestrator.weights", "enabled analyzers must carry a positive total weight")
	}
	if o.ChunkSize <= 0 || o.MaxConcurrency <= 0 {
		bad("orchestrator", "chunk_size and max_concurrency must be positive")
	}
	if o.CacheTTLMinutes < 0 {
		bad("orchestrator.cache_ttl_minutes", "must not be negative")
	}
	if !(o.SuggestionScore < o.HighScore && o.HighScore < o.CriticalScore && o.CriticalScore <= 1) {
		bad("orchestrator", "score cut-offs must satisfy suggestion < high < critical <= 1")
	}

	dl := e.Delivery
	if dl.MaxRetryAttempts < 0 {
		bad("delivery.max_retry_attempts", "must not be negative")
	}
	if dl.MaxRetryAttempts > 0 && len(dl.BackoffMinutes) == 0 {
		bad("delivery.backoff_minutes", "a backoff schedule is required when retries are enabled")
	}
	for i, m := range dl.BackoffMinutes {
		if m <= 0 || (i > 0 && m < dl.BackoffMinutes[i-1]) {
			bad("delivery.backoff_minutes", "must be positive and non-decreasing")
			break
		}
	}
	if dl.SnoozeMinutes <= 0 {
		bad("delivery.snooze_minutes", "must be positive")
	}
	if dl.DefaultChannel == "" {
		bad("delivery.default_channel", "is required")
	}
	if dl.RetentionHours <= 0 {
		bad("delivery.record_retention_hours", "must be positive")
	}

	return errors.Join(errs...)
}

func checkMultipliers(bad func(string, string, ...any), path string, m map[string]float64) {
	for k, v := range m {
		if v <= 0 {
			bad(path, "%s must be positive", k)
		}
	}
}

func checkSteps(bad func(string, string, ...any), path string, p ProximityPoints) {
	for i := 1; i < len(p.Steps); i++ {
		if p.Steps[i].WithinDays <= p.Steps[i-1].WithinDays {
			bad(path, "steps must have increasing within_days")
			return
		}
	}
}

// EngineStore holds the live engine configuration and swaps it atomically.
type EngineStore struct {
	mu  sync.RWMutex
	cur Engine
}

// NewEngineStore validates eng and wraps it for hot swapping.
func NewEngineStore(eng Engine) (*EngineStore, error) {
	if err := eng.Validate(); err != nil {
		return nil, err
	}
	return &EngineStore{cur: eng}, nil
}

// Current returns the active configuration. Callers must not mutate it.
func (s *EngineStore) Current() Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Update applies a partial JSON document and swaps the configuration in only
// when the result validates.
func (s *EngineStore) Update(partial []byte) (Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := s.cur.Apply(partial)
	if err != nil {
		return Engine{}, err
	}
	s.cur = next
	return next, nil
}
