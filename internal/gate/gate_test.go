package gate

import (
	"testing"
	"time"

	"reminder-service/internal/models"
)

func TestDecide(t *testing.T) {
	at := time.Date(2024, 3, 7, 9, 0, 0, 0, time.UTC)
	result := func(should bool, reason string, action models.ActionType, timing models.ActionTiming) *models.AnalysisResult {
		return &models.AnalysisResult{
			IssueKey:          "OPS-1",
			Workload:          models.WorkloadImpact{ShouldNotify: should, Reason: reason},
			RecommendedAction: models.RecommendedAction{Type: action, Timing: timing},
		}
	}

	tests := []struct {
		name    string
		in      *models.AnalysisResult
		verdict Verdict
		reason  string
	}{
		{"nil", nil, Suppress, "no analysis result"},
		{"workload refuses", result(false, "within 4h cooldown", models.ActionPriorityAlert, models.ActionTiming{Immediate: true}), Suppress, "within 4h cooldown"},
		{"timing suppressed", result(true, "", models.ActionGentleReminder, models.ActionTiming{Suppressed: true, DelayReason: "type disabled"}), Suppress, "type disabled"},
		{"no action", result(true, "", models.ActionNone, models.ActionTiming{}), Suppress, "no action needed"},
		{"immediate", result(true, "", models.ActionPriorityAlert, models.ActionTiming{Immediate: true}), SendNow, ""},
		{"scheduled", result(true, "", models.ActionGentleReminder, models.ActionTiming{ScheduledFor: &at, DelayReason: "later"}), Schedule, "later"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.in)
			if d.Verdict != tt.verdict {
				t.Fatalf("expected %s, got %s", tt.verdict, d.Verdict)
			}
			if d.Reason != tt.reason {
				t.Errorf("expected reason %q, got %q", tt.reason, d.Reason)
			}
			if tt.verdict == Schedule && (d.At == nil || !d.At.Equal(at)) {
				t.Errorf("expected schedule at %s, got %v", at, d.At)
			}
		})
	}
}

func TestNotificationCarriesActionSeed(t *testing.T) {
	now := time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC)
	r := &models.AnalysisResult{
		IssueKey:    "OPS-2",
		RecipientID: "alice",
		RecommendedAction: models.RecommendedAction{
			Type: models.ActionDeadlineNotification, Urgency: models.UrgencyHigh,
			Message: "OPS-2 is approaching a deadline", NextSteps: []string{"Review"},
		},
	}
	n := Notification("n-1", r, now)
	if n.ID != "n-1" || n.RecipientID != "alice" || n.Type != models.ActionDeadlineNotification || n.Urgency != models.UrgencyHigh {
		t.Errorf("unexpected notification %+v", n)
	}
	if !n.CreatedAt.Equal(now) || n.Message == "" {
		t.Errorf("expected seed message and creation time, got %+v", n)
	}
}
