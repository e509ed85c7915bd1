// Package gate turns an analysis verdict into a send, schedule or suppress
// decision for the delivery subsystem.
package gate

import (
	"time"

	"reminder-service/internal/models"
)

// Verdict is the gate outcome.
type Verdict string

const (
	SendNow  Verdict = "send_now"
	Schedule Verdict = "schedule"
	Suppress Verdict = "suppress"
)

// Decision carries the verdict with its time or reason.
type Decision struct {
	Verdict Verdict    `json:"verdict"`
	At      *time.Time `json:"at,omitempty"`
	Reason  string     `json:"reason,omitempty"`
}

// Decide reads only the recommended action timing and the workload verdict.
func Decide(r *models.AnalysisResult) Decision {
	if r == nil {
		return Decision{Verdict: Suppress, Reason: "no analysis result"}
	}
	a := r.RecommendedAction
	switch {
	case !r.Workload.ShouldNotify:
		return Decision{Verdict: Suppress, Reason: reason(a.Timing.DelayReason, r.Workload.Reason)}
	case a.Timing.Suppressed:
		return Decision{Verdict: Suppress, Reason: reason(a.Timing.DelayReason, "suppressed")}
	case a.Type == models.ActionNone:
		return Decision{Verdict: Suppress, Reason: "no action needed"}
	case a.Timing.Immediate:
		return Decision{Verdict: SendNow}
	case a.Timing.ScheduledFor != nil:
		at := *a.Timing.ScheduledFor
		return Decision{Verdict: Schedule, At: &at, Reason: a.Timing.DelayReason}
	default:
		return Decision{Verdict: SendNow}
	}
}

func reason(primary, fallback string) string {
	if primary != "" {
		return primary
	}
	return fallback
}

// Notification builds the delivery payload for a non-suppressed decision.
func Notification(id string, r *models.AnalysisResult, now time.Time) models.Notification {
	a := r.RecommendedAction
	return models.Notification{
		ID:          id,
		IssueKey:    r.IssueKey,
		RecipientID: r.RecipientID,
		Type:        a.Type,
		Urgency:     a.Urgency,
		Message:     a.Message,
		NextSteps:   a.NextSteps,
		CreatedAt:   now,
	}
}
