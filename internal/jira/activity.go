package jira

import (
	"context"
	"fmt"
	"time"

	jira "github.com/andygrunwald/go-jira"
	"reminder-service/internal/models"
)

// activitySample caps how many issues are fetched to derive averages.
const activitySample = 200

// UserActivity derives workload signals for one assignee from the last week.
func (c *Client) UserActivity(ctx context.Context, userID string) (models.UserActivity, error) {
	act := models.UserActivity{UserID: userID}
	who := quote(userID)

	open, err := c.count(ctx, fmt.Sprintf("assignee = %s AND resolution = Unresolved", who))
	if err != nil {
		return act, err
	}
	act.OpenIssues = open

	rapid, err := c.count(ctx, fmt.Sprintf("assignee = %s AND status CHANGED AFTER -1d", who))
	if err != nil {
		return act, err
	}
	act.RapidStatusChanges = rapid

	resolved, err := c.search(ctx, fmt.Sprintf("assignee = %s AND resolved >= -7d", who), activitySample,
		[]string{"created", "resolutiondate"}, "")
	if err != nil {
		return act, err
	}
	act.CompletedLast7Days = len(resolved)
	act.AvgResolutionHours = avgResolutionHours(resolved)

	updated, err := c.search(ctx, fmt.Sprintf("assignee = %s AND updated >= -7d", who), activitySample,
		[]string{"updated", "comment"}, "")
	if err != nil {
		return act, err
	}
	act.AfterHoursUpdates, act.WeekendUpdates = offHours(updated)
	act.AvgResponseHours = avgResponseHours(updated)
	return act, nil
}

// TeamActivity derives project-level workload from open issues.
func (c *Client) TeamActivity(ctx context.Context, project string) (models.TeamActivity, error) {
	team := models.TeamActivity{Project: project, IssuesByMember: map[string]int{}}

	issues, err := c.search(ctx, fmt.Sprintf("project = %s AND resolution = Unresolved", quote(project)), activitySample,
		[]string{"assignee", "created"}, "")
	if err != nil {
		return team, err
	}
	now := c.now()
	var ageDays float64
	for _, is := range issues {
		if is.Fields == nil {
			continue
		}
		team.ActiveIssues++
		if id := userID(is.Fields.Assignee); id != "" {
			team.IssuesByMember[id]++
		}
		ageDays += now.Sub(time.Time(is.Fields.Created)).Hours() / 24
	}
	if team.ActiveIssues > 0 {
		team.AverageAgeDays = ageDays / float64(team.ActiveIssues)
	}

	recent, err := c.count(ctx, fmt.Sprintf("project = %s AND updated >= -1d", quote(project)))
	if err != nil {
		return team, err
	}
	team.RecentComments = recent
	return team, nil
}

func avgResolutionHours(issues []jira.Issue) float64 {
	var total float64
	n := 0
	for _, is := range issues {
		if is.Fields == nil {
			continue
		}
		created, resolved := time.Time(is.Fields.Created), time.Time(is.Fields.Resolutiondate)
		if created.IsZero() || resolved.IsZero() || resolved.Before(created) {
			continue
		}
		total += resolved.Sub(created).Hours()
		n++
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

// offHours counts updates outside 09:00-18:00 on weekdays, and on weekends.
func offHours(issues []jira.Issue) (afterHours, weekend int) {
	for _, is := range issues {
		if is.Fields == nil {
			continue
		}
		t := time.Time(is.Fields.Updated)
		if t.IsZero() {
			continue
		}
		switch {
		case t.Weekday() == time.Saturday || t.Weekday() == time.Sunday:
			weekend++
		case t.Hour() < 9 || t.Hour() >= 18:
			afterHours++
		}
	}
	return afterHours, weekend
}

// avgResponseHours averages the gap between consecutive comments.
func avgResponseHours(issues []jira.Issue) float64 {
	var total float64
	n := 0
	for _, is := range issues {
		if is.Fields == nil || is.Fields.Comments == nil {
			continue
		}
		var prev time.Time
		for _, cm := range is.Fields.Comments.Comments {
			if cm == nil {
				continue
			}
			t, err := time.Parse(jiraTimeLayout, cm.Created)
			if err != nil {
				continue
			}
			if !prev.IsZero() && t.After(prev) {
				total += t.Sub(prev).Hours()
				n++
			}
			prev = t
		}
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}
