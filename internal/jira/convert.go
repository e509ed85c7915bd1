package jira

import (
	"strings"
	"time"

	jira "github.com/andygrunwald/go-jira"
	"reminder-service/internal/models"
)

// jiraTimeLayout is the format of comment and changelog timestamps.
const jiraTimeLayout = "2006-01-02T15:04:05.000-0700"

// recentWindow bounds the "recent" activity counters.
const recentWindow = 7 * 24 * time.Hour

// issueToItem converts a Jira issue to an Item snapshot.
func issueToItem(issue *jira.Issue, storyPointsField string, now time.Time) *models.Item {
	item := &models.Item{Key: issue.Key}
	f := issue.Fields
	if f == nil {
		return item
	}

	item.Summary = f.Summary
	item.Description = f.Description
	item.Type = f.Type.Name
	item.Project = f.Project.Key
	item.ProjectName = f.Project.Name
	item.Labels = f.Labels
	item.Created = time.Time(f.Created)
	item.Updated = time.Time(f.Updated)

	if f.Status != nil {
		item.Status = f.Status.Name
	}
	if f.Priority != nil {
		item.Priority = f.Priority.Name
	}
	item.Assignee = userID(f.Assignee)
	item.Reporter = userID(f.Reporter)

	if due := time.Time(f.Duedate); !due.IsZero() {
		item.DueDate = &due
	}
	for _, v := range f.FixVersions {
		if v == nil {
			continue
		}
		ver := models.Version{Name: v.Name, Released: v.Released != nil && *v.Released}
		if d, err := time.Parse(time.DateOnly, v.ReleaseDate); err == nil {
			ver.ReleaseDate = &d
		}
		item.FixVersions = append(item.FixVersions, ver)
	}
	for _, comp := range f.Components {
		if comp != nil {
			item.Components = append(item.Components, comp.Name)
		}
	}

	if f.Epic != nil {
		item.EpicKey = f.Epic.Key
	} else if f.Parent != nil {
		item.EpicKey = f.Parent.Key
	}
	if f.Watches != nil {
		item.Watchers = f.Watches.WatchCount
	}
	if storyPointsField != "" {
		if sp, ok := f.Unknowns[storyPointsField].(float64); ok {
			item.StoryPoints = &sp
		}
	}

	for _, link := range f.IssueLinks {
		if link != nil && link.OutwardIssue != nil && strings.EqualFold(link.Type.Name, "blocks") {
			item.BlockedIssues++
		}
	}

	since := now.Add(-recentWindow)
	if f.Comments != nil {
		for _, cm := range f.Comments.Comments {
			if cm == nil {
				continue
			}
			t, err := time.Parse(jiraTimeLayout, cm.Created)
			if err != nil {
				continue
			}
			item.LastCommentAt = latest(item.LastCommentAt, t)
			if t.After(since) {
				item.RecentComments++
			}
		}
	}
	if f.Worklog != nil {
		for _, wl := range f.Worklog.Worklogs {
			if wl.Started == nil {
				continue
			}
			t := time.Time(*wl.Started)
			item.LastWorklogAt = latest(item.LastWorklogAt, t)
			if t.After(since) {
				item.RecentWorklogs++
			}
		}
	}
	if issue.Changelog != nil {
		for _, h := range issue.Changelog.Histories {
			t, err := time.Parse(jiraTimeLayout, h.Created)
			if err != nil || !t.After(since) {
				continue
			}
			for _, ch := range h.Items {
				if ch.Field == "status" {
					item.RecentStatusChanges++
				}
			}
		}
	}
	return item
}

// userID prefers the cloud account id, then the server user name.
func userID(u *jira.User) string {
	switch {
	case u == nil:
		return ""
	case u.AccountID != "":
		return u.AccountID
	default:
		return u.Name
	}
}

func latest(cur *time.Time, t time.Time) *time.Time {
	if cur == nil || t.After(*cur) {
		return &t
	}
	return cur
}
