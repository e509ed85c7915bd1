package analysis

import (
	"testing"
	"time"

	"reminder-service/internal/config"
	"reminder-service/internal/models"
)

func TestSLAHealthBoundaries(t *testing.T) {
	tests := []struct {
		pct  float64
		want models.SLAStatus
	}{
		{100, models.SLASafe},
		{25.01, models.SLASafe},
		{25, models.SLAWarning},
		{10.5, models.SLAWarning},
		{10, models.SLACritical},
		{0.01, models.SLACritical},
		{0, models.SLABreached},
		{-20, models.SLABreached},
	}
	for _, tt := range tests {
		if got := SLAHealth(tt.pct); got != tt.want {
			t.Errorf("SLAHealth(%v): expected %s, got %s", tt.pct, tt.want, got)
		}
	}
}

func noSLADeadline() config.DeadlineConfig {
	cfg := config.DefaultEngine().Deadline
	cfg.SLAs = nil
	return cfg
}

func TestDeadlineUrgencyFromDueDate(t *testing.T) {
	a := NewDeadlineAnalyzer(noSLADeadline())
	tests := []struct {
		name     string
		priority string
		due      *time.Time
		urgency  models.Urgency
		score    int
	}{
		{"no due date", "Medium", nil, models.UrgencyLow, 0},
		{"due in two weeks", "Medium", ptrTime(wednesday.AddDate(0, 0, 14)), models.UrgencyLow, 0},
		{"due tomorrow", "Medium", ptrTime(wednesday.AddDate(0, 0, 1)), models.UrgencyMedium, 30},
		{"overdue", "Medium", ptrTime(wednesday.AddDate(0, 0, -2)), models.UrgencyHigh, 40},
		{"overdue blocker", "Blocker", ptrTime(wednesday.AddDate(0, 0, -2)), models.UrgencyCritical, 80},
		{"overdue lowest", "Lowest", ptrTime(wednesday.AddDate(0, 0, -2)), models.UrgencyMedium, 24},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := a.Analyze(&models.Item{Key: "D-1", Priority: tt.priority, Type: "Task", Created: wednesday.AddDate(0, -1, 0), DueDate: tt.due}, wednesday)
			if res.Urgency != tt.urgency {
				t.Errorf("expected urgency %s, got %s", tt.urgency, res.Urgency)
			}
			if res.UrgencyScore != tt.score {
				t.Errorf("expected urgency score %d, got %d", tt.score, res.UrgencyScore)
			}
			if res.HasDueDate != (tt.due != nil) {
				t.Errorf("expected HasDueDate %v, got %v", tt.due != nil, res.HasDueDate)
			}
			if res.SLA.Status != models.SLANone {
				t.Errorf("expected no SLA, got %s", res.SLA.Status)
			}
		})
	}
}

func TestDeadlineWeekendDueDateUsesBusinessDays(t *testing.T) {
	cfg := noSLADeadline()
	cfg.Holidays = []string{"2024-03-07"}
	a := NewDeadlineAnalyzer(cfg)
	due := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC) // Sunday

	res := a.Analyze(&models.Item{Key: "D-2", Priority: "Medium", DueDate: &due}, wednesday)
	if res.DaysUntilDue == nil || *res.DaysUntilDue != 1 {
		t.Fatalf("expected 1 business day (Friday only), got %v", res.DaysUntilDue)
	}

	cfg.BusinessDaysOnly = false
	cal := NewDeadlineAnalyzer(cfg).Analyze(&models.Item{Key: "D-2", Priority: "Medium", DueDate: &due}, wednesday)
	if *cal.DaysUntilDue != 4 {
		t.Errorf("expected 4 calendar days, got %d", *cal.DaysUntilDue)
	}
	if *res.DaysUntilDue > *cal.DaysUntilDue {
		t.Errorf("business days %d exceed calendar days %d", *res.DaysUntilDue, *cal.DaysUntilDue)
	}
}

func TestDeadlineEarliestUnreleasedVersion(t *testing.T) {
	a := NewDeadlineAnalyzer(noSLADeadline())
	item := &models.Item{
		Key: "D-3", Priority: "Medium",
		FixVersions: []models.Version{
			{Name: "1.0", ReleaseDate: ptrTime(wednesday.AddDate(0, 0, -30)), Released: true},
			{Name: "1.2", ReleaseDate: ptrTime(wednesday.AddDate(0, 0, 20))},
			{Name: "1.1", ReleaseDate: ptrTime(wednesday.AddDate(0, 0, 2))},
			{Name: "2.0"},
		},
	}
	res := a.Analyze(item, wednesday)
	if !res.HasRelease || res.ReleaseDate == nil {
		t.Fatalf("expected a release date")
	}
	if want := wednesday.AddDate(0, 0, 2); !res.ReleaseDate.Equal(want) {
		t.Errorf("expected release %s, got %s", want, res.ReleaseDate)
	}
	if res.UrgencyScore != 20 {
		t.Errorf("expected 20 release points, got %d", res.UrgencyScore)
	}
}

func TestDeadlineSLA(t *testing.T) {
	a := NewDeadlineAnalyzer(config.DefaultEngine().Deadline)
	tests := []struct {
		name    string
		created time.Duration
		status  models.SLAStatus
	}{
		{"half the window left", 2 * time.Hour, models.SLASafe},
		{"inside warning band", 3*time.Hour + 30*time.Minute, models.SLAWarning},
		{"past the limit", 5 * time.Hour, models.SLABreached},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := &models.Item{Key: "D-4", Priority: "Blocker", Type: "Bug", Created: wednesday.Add(-tt.created)}
			res := a.Analyze(item, wednesday)
			if res.SLA.Name != "blocker-response" {
				t.Fatalf("expected blocker-response SLA, got %q", res.SLA.Name)
			}
			if res.SLA.Status != tt.status {
				t.Errorf("expected %s, got %s (%.1f%%)", tt.status, res.SLA.Status, res.SLA.PercentTimeRemaining)
			}
			if want := item.Created.Add(4 * time.Hour); !res.SLA.Deadline.Equal(want) {
				t.Errorf("expected deadline %s, got %s", want, res.SLA.Deadline)
			}
		})
	}
}

func TestDeadlineSLAMostRestrictiveWins(t *testing.T) {
	cfg := noSLADeadline()
	cfg.SLAs = []config.SLAConfig{
		{Name: "loose", TimeLimitHours: 48},
		{Name: "tight", TimeLimitHours: 8},
		{Name: "bugs-only", IssueTypes: []string{"Bug"}, TimeLimitHours: 1},
	}
	res := NewDeadlineAnalyzer(cfg).Analyze(&models.Item{Key: "D-5", Priority: "Low", Type: "Story", Created: wednesday}, wednesday)
	if res.SLA.Name != "tight" {
		t.Errorf("expected tight SLA, got %q", res.SLA.Name)
	}
}

func TestDeadlineBusinessHoursSLA(t *testing.T) {
	cfg := noSLADeadline()
	cfg.SLAs = []config.SLAConfig{{Name: "critical", Priorities: []string{"Critical"}, TimeLimitHours: 16, BusinessHoursOnly: true}}
	a := NewDeadlineAnalyzer(cfg)

	created := time.Date(2024, 3, 8, 9, 0, 0, 0, time.UTC) // Friday
	now := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)    // Monday, 8 business hours later
	res := a.Analyze(&models.Item{Key: "D-6", Priority: "Critical", Created: created}, now)

	if want := time.Date(2024, 3, 11, 17, 0, 0, 0, time.UTC); !res.SLA.Deadline.Equal(want) {
		t.Errorf("expected deadline %s, got %s", want, res.SLA.Deadline)
	}
	if res.SLA.HoursToBreach != 8 {
		t.Errorf("expected 8 business hours to breach, got %v", res.SLA.HoursToBreach)
	}
	if res.SLA.Status != models.SLASafe {
		t.Errorf("expected safe at 50%%, got %s", res.SLA.Status)
	}
}

func TestDeadlineBusinessHoursSLAStartingMidHour(t *testing.T) {
	cfg := noSLADeadline()
	cfg.SLAs = []config.SLAConfig{{Name: "urgent", Priorities: []string{"Critical"}, TimeLimitHours: 1, BusinessHoursOnly: true}}
	a := NewDeadlineAnalyzer(cfg)

	created := time.Date(2024, 3, 6, 16, 30, 0, 0, time.UTC) // half an hour before close
	res := a.Analyze(&models.Item{Key: "D-7", Priority: "Critical", Created: created}, created)

	if want := time.Date(2024, 3, 7, 9, 30, 0, 0, time.UTC); !res.SLA.Deadline.Equal(want) {
		t.Errorf("expected deadline %s, got %s", want, res.SLA.Deadline)
	}
}
