package analysis

import (
	"fmt"
	"time"

	"reminder-service/internal/config"
	"reminder-service/internal/models"
)

// weightedScore is one analyzer's contribution to the merged score.
type weightedScore struct {
	Enabled bool
	Weight  float64
	Score   float64
}

// mergeScores is the weighted mean over enabled analyzers only.
func mergeScores(parts []weightedScore) float64 {
	var num, den float64
	for _, p := range parts {
		if !p.Enabled || p.Weight <= 0 {
			continue
		}
		num += clamp01(p.Score) * p.Weight
		den += p.Weight
	}
	if den == 0 {
		return 0
	}
	return clamp01(num / den)
}

// recommend walks the decision list; the first matching rule wins.
func recommend(cfg config.Engine, item *models.Item, r *models.AnalysisResult, prefs models.UserPreferences, now time.Time) models.RecommendedAction {
	o := cfg.Orchestrator
	d := r.Deadline
	w := r.Workload
	stale := r.Staleness.IsStale ||
		(cfg.Staleness.Enabled && prefs.StaleDaysThreshold > 0 && r.Staleness.DaysSinceUpdate >= float64(prefs.StaleDaysThreshold))

	var a models.RecommendedAction
	switch {
	case d.Urgency == models.UrgencyCritical || r.OverallScore >= o.CriticalScore:
		a = models.RecommendedAction{
			Type:    models.ActionPriorityAlert,
			Urgency: models.UrgencyCritical,
			Message: fmt.Sprintf("%s needs immediate attention: %s", item.Key, deadlineSummary(d)),
			NextSteps: []string{
				"Confirm the current owner is actively working on it",
				"Escalate or re-plan if the date cannot be met",
			},
		}
	case d.Urgency == models.UrgencyHigh || r.OverallScore >= o.HighScore:
		a = models.RecommendedAction{
			Type:    models.ActionDeadlineNotification,
			Urgency: models.UrgencyHigh,
			Message: fmt.Sprintf("%s is approaching a deadline: %s", item.Key, deadlineSummary(d)),
			NextSteps: []string{
				"Review remaining work against the due date",
				"Flag blockers early",
			},
		}
	case stale && w.ShouldNotify:
		a = models.RecommendedAction{
			Type:    models.ActionGentleReminder,
			Urgency: models.UrgencyMedium,
			Message: fmt.Sprintf("%s has had no activity for %.0f days", item.Key, r.Staleness.DaysSinceUpdate),
			NextSteps: []string{
				"Post a status update",
				"Close or reassign it if it is no longer relevant",
			},
		}
	case w.ShouldNotify && r.OverallScore >= o.SuggestionScore:
		a = models.RecommendedAction{
			Type:      models.ActionWorkloadSuggestion,
			Urgency:   models.UrgencyLow,
			Message:   fmt.Sprintf("%s may be worth picking up next", item.Key),
			NextSteps: []string{"Consider it when planning your next task"},
		}
	default:
		a = models.RecommendedAction{
			Type:    models.ActionNone,
			Urgency: models.UrgencyLow,
			Message: fmt.Sprintf("%s needs no reminder right now", item.Key),
		}
	}
	a.Timing = timing(a, w, prefs, now)
	return a
}

func timing(a models.RecommendedAction, w models.WorkloadImpact, prefs models.UserPreferences, now time.Time) models.ActionTiming {
	switch {
	case !w.ShouldNotify:
		return models.ActionTiming{Suppressed: true, DelayReason: w.Reason}
	case a.Type == models.ActionNone:
		return models.ActionTiming{Suppressed: true, DelayReason: "no action needed"}
	case !prefs.AllowsAction(a.Type):
		return models.ActionTiming{Suppressed: true, DelayReason: fmt.Sprintf("%s notifications disabled by recipient", a.Type)}
	case a.Urgency == models.UrgencyCritical || a.Urgency == models.UrgencyHigh:
		return models.ActionTiming{Immediate: true}
	}
	at := w.OptimalNotificationTime
	if at.IsZero() || !at.After(now) {
		return models.ActionTiming{Immediate: true}
	}
	return models.ActionTiming{ScheduledFor: &at, DelayReason: "deferred to the recipient's next working window"}
}

func deadlineSummary(d models.DeadlineResult) string {
	switch {
	case d.DaysUntilDue != nil && *d.DaysUntilDue < 0:
		return fmt.Sprintf("overdue by %d days", -*d.DaysUntilDue)
	case d.SLA.Status == models.SLABreached:
		return fmt.Sprintf("SLA %s breached", d.SLA.Name)
	case d.DaysUntilDue != nil:
		return fmt.Sprintf("due in %d days", *d.DaysUntilDue)
	case d.DaysUntilRelease != nil && *d.DaysUntilRelease < 0:
		return fmt.Sprintf("release overdue by %d days", -*d.DaysUntilRelease)
	case d.DaysUntilRelease != nil:
		return fmt.Sprintf("release in %d days", *d.DaysUntilRelease)
	case d.SLA.Status != models.SLANone:
		return fmt.Sprintf("SLA %s is %s", d.SLA.Name, d.SLA.Status)
	default:
		return "high composite urgency"
	}
}
