// Package providers holds the delivery channel adapters.
package providers

import (
	"fmt"
	"strings"

	"reminder-service/internal/models"
)

var typeLabels = map[models.ActionType]string{
	models.ActionPriorityAlert:        "Priority alert",
	models.ActionDeadlineNotification: "Deadline approaching",
	models.ActionGentleReminder:       "Reminder",
	models.ActionWorkloadSuggestion:   "Workload suggestion",
}

// Title returns the generated title, or a plain fallback built from the type.
func Title(n models.Notification) string {
	if n.Title != "" {
		return n.Title
	}
	label, ok := typeLabels[n.Type]
	if !ok {
		label = "Notification"
	}
	return fmt.Sprintf("%s: %s", label, n.IssueKey)
}

// Body returns the generated body, or the seed message with next steps.
func Body(n models.Notification) string {
	if n.Body != "" {
		return n.Body
	}
	var b strings.Builder
	b.WriteString(n.Message)
	if len(n.NextSteps) > 0 {
		b.WriteString("\n")
		for _, s := range n.NextSteps {
			b.WriteString("\n- ")
			b.WriteString(s)
		}
	}
	return b.String()
}

// Digest merges several notifications into one title and body.
func Digest(ns []models.Notification) (string, string) {
	if len(ns) == 1 {
		return Title(ns[0]), Body(ns[0])
	}
	label, ok := typeLabels[ns[0].Type]
	if !ok {
		label = "Notifications"
	}
	title := fmt.Sprintf("%s: %d items", label, len(ns))
	var b strings.Builder
	for i, n := range ns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%s\n%s", Title(n), Body(n))
	}
	return title, b.String()
}
