package analysis

import (
	"strings"
	"testing"
	"time"

	"reminder-service/internal/config"
	"reminder-service/internal/models"
)

var (
	optimalUser  = models.UserActivity{UserID: "alice", OpenIssues: 6, AvgResolutionHours: 80, CompletedLast7Days: 3}
	overworked   = models.UserActivity{UserID: "alice", OpenIssues: 15, AvgResolutionHours: 150, CompletedLast7Days: 0, RapidStatusChanges: 12, AfterHoursUpdates: 6, WeekendUpdates: 4, AvgResponseHours: 50}
	healthyTeam  = models.TeamActivity{Project: "OPS", ActiveIssues: 6, IssuesByMember: map[string]int{"alice": 3, "bob": 3}}
	criticalTeam = models.TeamActivity{Project: "OPS", ActiveIssues: 30, IssuesByMember: map[string]int{"alice": 20, "bob": 10}}
)

func workloadInput(prefs models.UserPreferences, user models.UserActivity, team models.TeamActivity, sent ...time.Time) WorkloadInput {
	return WorkloadInput{
		Item:  &models.Item{Key: "OPS-1", Priority: "Medium", Project: "OPS"},
		Prefs: prefs,
		User:  user,
		Team:  team,
		Sent:  sent,
		Now:   wednesday,
	}
}

func TestCapacityTiers(t *testing.T) {
	a := NewWorkloadAnalyzer(config.DefaultEngine().Workload)
	tests := []struct {
		name string
		act  models.UserActivity
		want models.CapacityTier
	}{
		{"light load", models.UserActivity{OpenIssues: 1, CompletedLast7Days: 6}, models.CapacityUnder},
		{"steady", optimalUser, models.CapacityOptimal},
		{"busy and slow", models.UserActivity{OpenIssues: 9, AvgResolutionHours: 100, CompletedLast7Days: 3}, models.CapacityNear},
		{"overloaded", overworked, models.CapacityOver},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.Analyze(workloadInput(models.DefaultPreferences("alice"), tt.act, healthyTeam)).User.Capacity
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestStressLevels(t *testing.T) {
	a := NewWorkloadAnalyzer(config.DefaultEngine().Workload)
	tests := []struct {
		name string
		act  models.UserActivity
		want models.StressLevel
	}{
		{"calm", models.UserActivity{}, models.StressLow},
		{"some late nights", models.UserActivity{AfterHoursUpdates: 2, WeekendUpdates: 1}, models.StressModerate},
		{"thrashing", models.UserActivity{RapidStatusChanges: 10, AfterHoursUpdates: 5}, models.StressHigh},
		{"burning out", overworked, models.StressCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.Analyze(workloadInput(models.DefaultPreferences("alice"), tt.act, healthyTeam)).User.Stress.Overall
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestShouldNotifyDisabledAlwaysWins(t *testing.T) {
	a := NewWorkloadAnalyzer(config.DefaultEngine().Workload)
	prefs := models.DefaultPreferences("alice")
	prefs.NotificationFrequency = models.FrequencyDisabled

	for _, user := range []models.UserActivity{{}, optimalUser, overworked} {
		for _, team := range []models.TeamActivity{{}, healthyTeam, criticalTeam} {
			for _, prio := range []string{"Blocker", "Medium", "Lowest"} {
				in := workloadInput(prefs, user, team)
				in.Item.Priority = prio
				if got := a.Analyze(in); got.ShouldNotify {
					t.Fatalf("expected disabled preference to suppress (%s, %+v)", prio, user)
				}
			}
		}
	}
	if NewWorkloadAnalyzer(config.DefaultEngine().Workload).Neutral(prefs, wednesday).ShouldNotify {
		t.Errorf("expected neutral workload to honour the disable switch")
	}
}

func TestShouldNotifyChecks(t *testing.T) {
	a := NewWorkloadAnalyzer(config.DefaultEngine().Workload)
	hoursAgo := func(h float64) time.Time { return wednesday.Add(-time.Duration(h * float64(time.Hour))) }
	withTier := func(tier models.FrequencyTier) models.UserPreferences {
		p := models.DefaultPreferences("alice")
		p.NotificationFrequency = tier
		return p
	}
	gentleOver := models.UserActivity{OpenIssues: 15, AvgResolutionHours: 150}

	tests := []struct {
		name   string
		in     WorkloadInput
		want   bool
		reason string
	}{
		{"clear", workloadInput(withTier(models.FrequencyModerate), optimalUser, healthyTeam), true, ""},
		{"over capacity and critical stress", workloadInput(withTier(models.FrequencyFrequent), overworked, healthyTeam), false, "capacity"},
		{"daily cap", workloadInput(withTier(models.FrequencyFrequent), optimalUser, healthyTeam,
			hoursAgo(1.5), hoursAgo(2), hoursAgo(3), hoursAgo(4), hoursAgo(5), hoursAgo(6), hoursAgo(7), hoursAgo(8)), false, "daily"},
		{"inside cooldown", workloadInput(withTier(models.FrequencyModerate), optimalUser, healthyTeam, hoursAgo(1)), false, "cooldown"},
		{"after cooldown", workloadInput(withTier(models.FrequencyModerate), optimalUser, healthyTeam, hoursAgo(5)), true, ""},
		{"team critical", workloadInput(withTier(models.FrequencyModerate), optimalUser, criticalTeam), false, "team"},
		{"minimal medium", workloadInput(withTier(models.FrequencyMinimal), optimalUser, healthyTeam), false, "minimal"},
		{"gentle over capacity", workloadInput(withTier(models.FrequencyGentle), gentleOver, healthyTeam), false, "gentle"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.Analyze(tt.in)
			if got.ShouldNotify != tt.want {
				t.Fatalf("expected shouldNotify %v, got %v (%s)", tt.want, got.ShouldNotify, got.Reason)
			}
			if tt.reason != "" && !strings.Contains(got.Reason, tt.reason) {
				t.Errorf("expected reason to mention %q, got %q", tt.reason, got.Reason)
			}
			if got.Reason == "" {
				t.Errorf("expected a reason")
			}
		})
	}

	t.Run("urgent items pass critical team and minimal tier", func(t *testing.T) {
		for _, in := range []WorkloadInput{
			workloadInput(withTier(models.FrequencyModerate), optimalUser, criticalTeam),
			workloadInput(withTier(models.FrequencyMinimal), optimalUser, healthyTeam),
		} {
			in.Item.Priority = "Critical"
			if got := a.Analyze(in); !got.ShouldNotify {
				t.Errorf("expected critical item to pass, got %q", got.Reason)
			}
		}
	})
}

func TestCooldownPreventsBackToBackNotifications(t *testing.T) {
	a := NewWorkloadAnalyzer(config.DefaultEngine().Workload)
	prefs := models.DefaultPreferences("alice")
	cooldown := time.Duration(config.DefaultEngine().Workload.Limits.CooldownHours["moderate"] * float64(time.Hour))

	for _, gap := range []time.Duration{0, time.Minute, time.Hour, cooldown - time.Second} {
		in := workloadInput(prefs, optimalUser, healthyTeam, wednesday)
		in.Now = wednesday.Add(gap)
		if a.Analyze(in).ShouldNotify {
			t.Errorf("expected second notification %v after the first to be refused", gap)
		}
	}
}

func TestOptimalTime(t *testing.T) {
	cfg := config.DefaultEngine().Workload
	a := NewWorkloadAnalyzer(cfg)
	prefs := models.DefaultPreferences("alice")
	lunchQuiet := prefs
	lunchQuiet.QuietHours = models.QuietHours{Enabled: true, Start: "12:00", End: "13:00"}
	stressed := models.UserActivity{RapidStatusChanges: 10, AfterHoursUpdates: 5}

	tests := []struct {
		name  string
		prefs models.UserPreferences
		user  models.UserActivity
		now   time.Time
		sent  []time.Time
		want  time.Time
	}{
		{"inside working hours", prefs, optimalUser, wednesday, nil, wednesday},
		{"evening rolls to next morning", prefs, optimalUser, day(2024, 3, 6, 20, 0), nil, day(2024, 3, 7, 9, 0)},
		{"saturday rolls to monday", prefs, optimalUser, day(2024, 3, 9, 11, 0), nil, day(2024, 3, 11, 9, 0)},
		{"friday evening rolls to monday", prefs, optimalUser, day(2024, 3, 8, 18, 0), nil, day(2024, 3, 11, 9, 0)},
		{"quiet lunch", lunchQuiet, optimalUser, day(2024, 3, 6, 12, 30), nil, day(2024, 3, 6, 13, 0)},
		{"cooldown pushes later", prefs, optimalUser, wednesday, []time.Time{wednesday.Add(-time.Hour)}, wednesday.Add(3 * time.Hour)},
		{"high stress delays", prefs, stressed, day(2024, 3, 6, 20, 0), nil, day(2024, 3, 7, 11, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := workloadInput(tt.prefs, tt.user, healthyTeam, tt.sent...)
			in.Now = tt.now
			got := a.Analyze(in).OptimalNotificationTime
			if !got.Equal(tt.want) {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestFrequencyScoreDecaysWithVolume(t *testing.T) {
	a := NewWorkloadAnalyzer(config.DefaultEngine().Workload)
	prefs := models.DefaultPreferences("alice")

	idle := a.Analyze(workloadInput(prefs, optimalUser, healthyTeam)).Frequency
	busy := a.Analyze(workloadInput(prefs, optimalUser, healthyTeam,
		wednesday.Add(-10*time.Hour), wednesday.Add(-12*time.Hour), wednesday.Add(-20*time.Hour))).Frequency

	if idle.Score != 1 {
		t.Errorf("expected full frequency score without history, got %v", idle.Score)
	}
	if busy.Score >= idle.Score {
		t.Errorf("expected recent volume to lower the score, got %v", busy.Score)
	}
	if busy.RecentCount != 3 || busy.LastSent == nil || !busy.LastSent.Equal(wednesday.Add(-10*time.Hour)) {
		t.Errorf("unexpected frequency record %+v", busy)
	}
}

func TestTeamWorkload(t *testing.T) {
	a := NewWorkloadAnalyzer(config.DefaultEngine().Workload)
	team := a.Analyze(workloadInput(models.DefaultPreferences("alice"), optimalUser, criticalTeam)).Team
	if team.Capacity != models.TeamCritical {
		t.Errorf("expected critical team, got %s", team.Capacity)
	}
	if !approx(team.DistributionBalance, 0.5) {
		t.Errorf("expected balance 0.5, got %v", team.DistributionBalance)
	}
}
