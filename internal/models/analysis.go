package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// StalenessLevel buckets inactivity from fresh to abandoned.
type StalenessLevel string

const (
	StalenessFresh     StalenessLevel = "fresh"
	StalenessAging     StalenessLevel = "aging"
	StalenessStale     StalenessLevel = "stale"
	StalenessVeryStale StalenessLevel = "very_stale"
	StalenessAbandoned StalenessLevel = "abandoned"
)

// Rank orders staleness levels, fresh being 0.
func (s StalenessLevel) Rank() int {
	switch s {
	case StalenessAging:
		return 1
	case StalenessStale:
		return 2
	case StalenessVeryStale:
		return 3
	case StalenessAbandoned:
		return 4
	default:
		return 0
	}
}

// Urgency is the four-level attention tier.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// Rank orders urgencies, low being 0.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyMedium:
		return 1
	case UrgencyHigh:
		return 2
	case UrgencyCritical:
		return 3
	default:
		return 0
	}
}

// SLAStatus is the health of the most restrictive matching SLA.
type SLAStatus string

const (
	SLANone     SLAStatus = "none"
	SLASafe     SLAStatus = "safe"
	SLAWarning  SLAStatus = "warning"
	SLACritical SLAStatus = "critical"
	SLABreached SLAStatus = "breached"
)

// CapacityTier classifies a recipient's load.
type CapacityTier string

const (
	CapacityUnder   CapacityTier = "under_capacity"
	CapacityOptimal CapacityTier = "optimal"
	CapacityNear    CapacityTier = "near_capacity"
	CapacityOver    CapacityTier = "over_capacity"
)

// StressLevel summarizes stress indicators.
type StressLevel string

const (
	StressLow      StressLevel = "low"
	StressModerate StressLevel = "moderate"
	StressHigh     StressLevel = "high"
	StressCritical StressLevel = "critical"
)

// TeamCapacity classifies a project's load.
type TeamCapacity string

const (
	TeamHealthy    TeamCapacity = "healthy"
	TeamBusy       TeamCapacity = "busy"
	TeamOverloaded TeamCapacity = "overloaded"
	TeamCritical   TeamCapacity = "critical"
)

// Tier is a generic none/low/medium/high grade used by context sub-analyses.
type Tier string

const (
	TierNone   Tier = "none"
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// ActionType is what the engine recommends doing about an item.
type ActionType string

const (
	ActionPriorityAlert        ActionType = "priority_alert"
	ActionDeadlineNotification ActionType = "deadline_notification"
	ActionGentleReminder       ActionType = "gentle_reminder"
	ActionWorkloadSuggestion   ActionType = "workload_suggestion"
	ActionNone                 ActionType = "no_action"
)

type StalenessFactors struct {
	RecentComments      int     `json:"recent_comments"`
	RecentWorklogs      int     `json:"recent_worklogs"`
	RecentStatusChanges int     `json:"recent_status_changes"`
	AssigneeActivity    float64 `json:"assignee_activity"`
	ProjectActivity     float64 `json:"project_activity"`
}

type StalenessResult struct {
	DaysSinceUpdate  float64          `json:"days_since_update"`
	DaysSinceComment *float64         `json:"days_since_comment,omitempty"`
	DaysSinceWorklog *float64         `json:"days_since_worklog,omitempty"`
	InactivityDays   float64          `json:"inactivity_days"`
	Level            StalenessLevel   `json:"level"`
	IsStale          bool             `json:"is_stale"`
	Score            float64          `json:"score"`
	Confidence       float64          `json:"confidence"`
	Factors          StalenessFactors `json:"factors"`
}

type SLAResult struct {
	Name                 string     `json:"name,omitempty"`
	Status               SLAStatus  `json:"status"`
	Deadline             *time.Time `json:"deadline,omitempty"`
	HoursToBreach        float64    `json:"hours_to_breach"`
	PercentTimeRemaining float64    `json:"percent_time_remaining"`
}

type DeadlineResult struct {
	HasDueDate       bool       `json:"has_due_date"`
	DueDate          *time.Time `json:"due_date,omitempty"`
	DaysUntilDue     *int       `json:"days_until_due,omitempty"`
	HasRelease       bool       `json:"has_release"`
	ReleaseDate      *time.Time `json:"release_date,omitempty"`
	DaysUntilRelease *int       `json:"days_until_release,omitempty"`
	SLA              SLAResult  `json:"sla"`
	UrgencyScore     int        `json:"urgency_score"`
	Urgency          Urgency    `json:"urgency"`
	Score            float64    `json:"score"`
}

type BusinessImpact struct {
	CustomerFacing  bool `json:"customer_facing"`
	RevenueImpact   Tier `json:"revenue_impact"`
	Blocking        bool `json:"blocking"`
	DependentIssues int  `json:"dependent_issues"`
}

type TechnicalComplexity struct {
	EstimatedEffort     float64  `json:"estimated_effort"`
	RequiredSkills      []string `json:"required_skills,omitempty"`
	ComponentComplexity Tier     `json:"component_complexity"`
	TestingComplexity   Tier     `json:"testing_complexity"`
}

type StakeholderVisibility struct {
	Level    string  `json:"level"` // team, department, executive
	Watchers int     `json:"watchers"`
	Score    float64 `json:"score"`
}

type ContextualFactors struct {
	Blocking           bool   `json:"blocking"`
	Security           bool   `json:"security"`
	PerformanceCritical bool  `json:"performance_critical"`
	ExternalDependency bool   `json:"external_dependency"`
	SpecializedSkill   bool   `json:"specialized_skill"`
	InEpic             bool   `json:"in_epic"`
	EpicPriority       string `json:"epic_priority,omitempty"`
}

type ContextResult struct {
	PriorityScore          float64               `json:"priority_score"`
	TypeScore              float64               `json:"type_score"`
	ProjectImportanceScore float64               `json:"project_importance_score"`
	BusinessImpact         BusinessImpact        `json:"business_impact"`
	TechnicalComplexity    TechnicalComplexity   `json:"technical_complexity"`
	Visibility             StakeholderVisibility `json:"visibility"`
	Factors                ContextualFactors     `json:"factors"`
	Score                  float64               `json:"score"`
}

type StressIndicators struct {
	RapidStatusChanges int         `json:"rapid_status_changes"`
	AfterHoursActivity int         `json:"after_hours_activity"`
	WeekendActivity    int         `json:"weekend_activity"`
	DelayedResponses   bool        `json:"delayed_responses"`
	Points             int         `json:"points"`
	Overall            StressLevel `json:"overall"`
}

type UserWorkload struct {
	UserID             string           `json:"user_id"`
	OpenIssues         int              `json:"open_issues"`
	RecentlyCompleted  int              `json:"recently_completed"`
	AvgResolutionHours float64          `json:"avg_resolution_hours"`
	CapacityPoints     int              `json:"capacity_points"`
	Capacity           CapacityTier     `json:"capacity"`
	Stress             StressIndicators `json:"stress"`
	WorkingHours       WorkingHours     `json:"working_hours"`
}

type TeamWorkload struct {
	Project              string       `json:"project"`
	ActiveIssues         int          `json:"active_issues"`
	AverageAgeDays       float64      `json:"average_age_days"`
	Capacity             TeamCapacity `json:"capacity"`
	DistributionBalance  float64      `json:"distribution_balance"`
	CollaborationScore   float64      `json:"collaboration_score"`
}

type NotificationFrequency struct {
	RecentCount    int           `json:"recent_count"`
	WeeklyCount    int           `json:"weekly_count"`
	LastSent       *time.Time    `json:"last_sent,omitempty"`
	UserPreference FrequencyTier `json:"user_preference"`
	Score          float64       `json:"score"`
	CooldownHours  float64       `json:"cooldown_hours"`
}

type WorkloadImpact struct {
	User                    UserWorkload          `json:"user"`
	Team                    TeamWorkload          `json:"team"`
	Frequency               NotificationFrequency `json:"frequency"`
	OptimalNotificationTime time.Time             `json:"optimal_notification_time"`
	ShouldNotify            bool                  `json:"should_notify"`
	Reason                  string                `json:"reason"`
	Score                   float64               `json:"score"`
}

type ActionTiming struct {
	Immediate    bool       `json:"immediate"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	DelayReason  string     `json:"delay_reason,omitempty"`
	Suppressed   bool       `json:"suppressed"`
}

type RecommendedAction struct {
	Type      ActionType   `json:"type"`
	Urgency   Urgency      `json:"urgency"`
	Message   string       `json:"message"`
	NextSteps []string     `json:"next_steps,omitempty"`
	Timing    ActionTiming `json:"timing"`
}

// AnalysisResult is the merged verdict for one item.
type AnalysisResult struct {
	IssueKey          string            `json:"issue_key"`
	RecipientID       string            `json:"recipient_id,omitempty"`
	Staleness         StalenessResult   `json:"staleness"`
	Deadline          DeadlineResult    `json:"deadline"`
	Context           ContextResult     `json:"context"`
	Workload          WorkloadImpact    `json:"workload"`
	OverallScore      float64           `json:"overall_score"`
	RecommendedAction RecommendedAction `json:"recommended_action"`
	LastAnalyzed      time.Time         `json:"last_analyzed"`
}

// Severity grades an AnalysisError.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// AnalysisError is a per-item failure collected during batch analysis.
type AnalysisError struct {
	IssueKey  string   `json:"issue_key,omitempty"`
	Component string   `json:"component"`
	Message   string   `json:"message"`
	Severity  Severity `json:"severity"`
}

func (e AnalysisError) Error() string {
	if e.IssueKey == "" {
		return fmt.Sprintf("%s: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.IssueKey, e.Component, e.Message)
}

// BatchRequest selects items by key, by query, or both.
type BatchRequest struct {
	IssueKeys    []string `json:"issue_keys,omitempty"`
	JQL          string   `json:"jql,omitempty"`
	MaxResults   int      `json:"max_results,omitempty"`
	ForceRefresh bool     `json:"force_refresh,omitempty"`
}

type BatchResult struct {
	Results        []*AnalysisResult `json:"results"`
	Errors         []AnalysisError   `json:"errors"`
	ProcessingTime time.Duration     `json:"-"`
}

// MarshalJSON reports processing time in milliseconds.
func (b BatchResult) MarshalJSON() ([]byte, error) {
	type Alias BatchResult
	return json.Marshal(&struct {
		ProcessingTimeMS int64 `json:"processing_time_ms"`
		Alias
	}{
		ProcessingTimeMS: b.ProcessingTime.Milliseconds(),
		Alias:            Alias(b),
	})
}

// AttentionFilter narrows the attention scan.
type AttentionFilter struct {
	JQL          string   `json:"jql,omitempty"`
	Assignee     string   `json:"assignee,omitempty"`
	Projects     []string `json:"projects,omitempty"`
	MaxResults   int      `json:"max_results,omitempty"`
	UpcomingDays int      `json:"upcoming_days,omitempty"`
}

type AttentionInsights struct {
	TotalAnalyzed    int                `json:"total_analyzed"`
	Failed           int                `json:"failed"`
	StaleCount       int                `json:"stale_count"`
	OverdueCount     int                `json:"overdue_count"`
	ByUrgency        map[Urgency]int    `json:"by_urgency"`
	ByAction         map[ActionType]int `json:"by_action"`
	AverageScore     float64            `json:"average_score"`
	MostCommonAction ActionType         `json:"most_common_action,omitempty"`
}

type AttentionReport struct {
	HighPriority []*AnalysisResult `json:"high_priority"`
	Medium       []*AnalysisResult `json:"medium"`
	Upcoming     []*AnalysisResult `json:"upcoming"`
	Insights     AttentionInsights `json:"insights"`
	Errors       []AnalysisError   `json:"errors,omitempty"`
}
