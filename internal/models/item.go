package models

import "time"

// Item is a read-only snapshot of a tracker issue taken for one analysis pass.
type Item struct {
	Key         string     `json:"key"`
	Summary     string     `json:"summary"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	Type        string     `json:"type"`
	Assignee    string     `json:"assignee,omitempty"`
	Reporter    string     `json:"reporter,omitempty"`
	Project     string     `json:"project"`
	ProjectName string     `json:"project_name,omitempty"`
	Created     time.Time  `json:"created"`
	Updated     time.Time  `json:"updated"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	FixVersions []Version  `json:"fix_versions,omitempty"`
	Labels      []string   `json:"labels,omitempty"`
	Components  []string   `json:"components,omitempty"`
	StoryPoints *float64   `json:"story_points,omitempty"`
	EpicKey     string     `json:"epic_key,omitempty"`

	// EpicPriority is set when the data source resolved the parent epic.
	EpicPriority string `json:"epic_priority,omitempty"`

	// Activity signals. Nil timestamps mean the source had no data, which is
	// not the same as recent activity.
	LastCommentAt       *time.Time `json:"last_comment_at,omitempty"`
	LastWorklogAt       *time.Time `json:"last_worklog_at,omitempty"`
	RecentComments      int        `json:"recent_comments,omitempty"`
	RecentWorklogs      int        `json:"recent_worklogs,omitempty"`
	RecentStatusChanges int        `json:"recent_status_changes,omitempty"`

	// BlockedIssues counts issues that depend on this one.
	BlockedIssues int `json:"blocked_issues,omitempty"`
	Watchers      int `json:"watchers,omitempty"`
}

// Version is a fix version with an optional release date.
type Version struct {
	Name        string     `json:"name"`
	ReleaseDate *time.Time `json:"release_date,omitempty"`
	Released    bool       `json:"released"`
}

// UserActivity is the raw workload signal for one person.
type UserActivity struct {
	UserID             string  `json:"user_id"`
	OpenIssues         int     `json:"open_issues"`
	CompletedLast7Days int     `json:"completed_last_7_days"`
	AvgResolutionHours float64 `json:"avg_resolution_hours"`
	RapidStatusChanges int     `json:"rapid_status_changes"`
	AfterHoursUpdates  int     `json:"after_hours_updates"`
	WeekendUpdates     int     `json:"weekend_updates"`
	AvgResponseHours   float64 `json:"avg_response_hours"`
}

// TeamActivity is the raw workload signal for one project.
type TeamActivity struct {
	Project        string         `json:"project"`
	ActiveIssues   int            `json:"active_issues"`
	AverageAgeDays float64        `json:"average_age_days"`
	IssuesByMember map[string]int `json:"issues_by_member,omitempty"`
	RecentComments int            `json:"recent_comments"`
}
