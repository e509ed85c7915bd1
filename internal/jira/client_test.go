package jira

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jira "github.com/andygrunwald/go-jira"
	"reminder-service/internal/logging"
)

func TestIssueToItem(t *testing.T) {
	now := time.Date(2024, 3, 8, 12, 0, 0, 0, time.UTC)
	released := false
	started := jira.Time(now.Add(-48 * time.Hour))
	issue := &jira.Issue{
		Key: "OPS-7",
		Fields: &jira.IssueFields{
			Summary:     "Checkout crashes",
			Description: "Customer reports",
			Type:        jira.IssueType{Name: "Bug"},
			Project:     jira.Project{Key: "OPS", Name: "Operations"},
			Status:      &jira.Status{Name: "In Progress"},
			Priority:    &jira.Priority{Name: "High"},
			Assignee:    &jira.User{AccountID: "acc-1", Name: "alice"},
			Reporter:    &jira.User{Name: "bob"},
			Created:     jira.Time(now.Add(-10 * 24 * time.Hour)),
			Updated:     jira.Time(now.Add(-3 * 24 * time.Hour)),
			Duedate:     jira.Date(time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)),
			Labels:      []string{"customer"},
			Components:  []*jira.Component{{Name: "api"}, {Name: "web"}},
			FixVersions: []*jira.FixVersion{{Name: "1.2", ReleaseDate: "2024-03-20", Released: &released}},
			Epic:        &jira.Epic{Key: "OPS-1"},
			Watches:     &jira.Watches{WatchCount: 6},
			Unknowns:    map[string]interface{}{"customfield_10016": float64(8)},
			IssueLinks: []*jira.IssueLink{
				{Type: jira.IssueLinkType{Name: "Blocks"}, OutwardIssue: &jira.Issue{Key: "OPS-9"}},
				{Type: jira.IssueLinkType{Name: "Blocks"}, InwardIssue: &jira.Issue{Key: "OPS-2"}},
				{Type: jira.IssueLinkType{Name: "Relates"}, OutwardIssue: &jira.Issue{Key: "OPS-3"}},
			},
			Comments: &jira.Comments{Comments: []*jira.Comment{
				{Created: "2024-02-20T09:00:00.000+0000"},
				{Created: "2024-03-07T09:00:00.000+0000"},
			}},
			Worklog: &jira.Worklog{Worklogs: []jira.WorklogRecord{{Started: &started}}},
		},
		Changelog: &jira.Changelog{Histories: []jira.ChangelogHistory{
			{Created: "2024-03-06T09:00:00.000+0000", Items: []jira.ChangelogItems{{Field: "status"}, {Field: "assignee"}}},
			{Created: "2024-01-06T09:00:00.000+0000", Items: []jira.ChangelogItems{{Field: "status"}}},
		}},
	}

	item := issueToItem(issue, "customfield_10016", now)

	if item.Key != "OPS-7" || item.Type != "Bug" || item.Priority != "High" || item.Status != "In Progress" {
		t.Errorf("unexpected basics %+v", item)
	}
	if item.Assignee != "acc-1" || item.Reporter != "bob" {
		t.Errorf("expected account id then name, got %q %q", item.Assignee, item.Reporter)
	}
	if item.DueDate == nil || item.DueDate.Day() != 12 {
		t.Errorf("expected due date, got %v", item.DueDate)
	}
	if len(item.FixVersions) != 1 || item.FixVersions[0].ReleaseDate == nil || item.FixVersions[0].Released {
		t.Errorf("unexpected fix versions %+v", item.FixVersions)
	}
	if item.StoryPoints == nil || *item.StoryPoints != 8 {
		t.Errorf("expected 8 story points, got %v", item.StoryPoints)
	}
	if item.EpicKey != "OPS-1" || item.Watchers != 6 || len(item.Components) != 2 {
		t.Errorf("unexpected epic/watchers/components %+v", item)
	}
	if item.BlockedIssues != 1 {
		t.Errorf("expected 1 blocked issue, got %d", item.BlockedIssues)
	}
	if item.LastCommentAt == nil || item.LastCommentAt.Day() != 7 || item.RecentComments != 1 {
		t.Errorf("unexpected comment signals %v %d", item.LastCommentAt, item.RecentComments)
	}
	if item.LastWorklogAt == nil || item.RecentWorklogs != 1 {
		t.Errorf("unexpected worklog signals %v %d", item.LastWorklogAt, item.RecentWorklogs)
	}
	if item.RecentStatusChanges != 1 {
		t.Errorf("expected 1 recent status change, got %d", item.RecentStatusChanges)
	}
}

func TestIssueToItemWithoutSignals(t *testing.T) {
	item := issueToItem(&jira.Issue{Key: "OPS-8", Fields: &jira.IssueFields{}}, "customfield_10016", time.Now())
	if item.DueDate != nil || item.LastCommentAt != nil || item.LastWorklogAt != nil || item.StoryPoints != nil {
		t.Errorf("expected absent signals to stay nil, got %+v", item)
	}
	if item := issueToItem(&jira.Issue{Key: "OPS-9"}, "", time.Now()); item.Key != "OPS-9" {
		t.Errorf("expected key kept for issue without fields, got %+v", item)
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL, "user", "token", "customfield_10016", logging.NewNop())
	if err != nil {
		t.Fatalf("expected client, got %v", err)
	}
	return c
}

type searchPayload struct {
	StartAt    int              `json:"startAt"`
	MaxResults int              `json:"maxResults"`
	Total      int              `json:"total"`
	Issues     []map[string]any `json:"issues"`
}

func issueJSON(key, priority string) map[string]any {
	return map[string]any{
		"key": key,
		"fields": map[string]any{
			"summary":           key + " summary",
			"issuetype":         map[string]any{"name": "Task"},
			"project":           map[string]any{"key": "OPS"},
			"priority":          map[string]any{"name": priority},
			"created":           "2024-03-01T10:00:00.000+0000",
			"updated":           "2024-03-02T10:00:00.000+0000",
			"customfield_10016": 3,
		},
	}
}

func TestGetItemsByIDs(t *testing.T) {
	var gotJQL string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/rest/api/2/search") {
			http.NotFound(w, r)
			return
		}
		gotJQL = r.URL.Query().Get("jql")
		_ = json.NewEncoder(w).Encode(searchPayload{
			Total:  1,
			Issues: []map[string]any{issueJSON("OPS-1", "High")},
		})
	})

	items, err := c.GetItemsByIDs(context.Background(), []string{"OPS-1", "OPS-404"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if gotJQL != `key in ("OPS-1", "OPS-404")` {
		t.Errorf("unexpected jql %q", gotJQL)
	}
	if len(items) != 1 || items["OPS-1"] == nil {
		t.Fatalf("expected only OPS-1, got %v", items)
	}
	if sp := items["OPS-1"].StoryPoints; sp == nil || *sp != 3 {
		t.Errorf("expected story points from custom field, got %v", sp)
	}
}

func TestSearchItemsPages(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		start := r.URL.Query().Get("startAt")
		var issues []map[string]any
		if start == "" || start == "0" {
			issues = []map[string]any{issueJSON("OPS-1", "High"), issueJSON("OPS-2", "Low")}
		} else {
			issues = []map[string]any{issueJSON("OPS-3", "Medium")}
		}
		_ = json.NewEncoder(w).Encode(searchPayload{Total: 3, Issues: issues})
	})

	items, err := c.SearchItems(context.Background(), "project = OPS", 10)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(items) != 3 || calls != 2 {
		t.Errorf("expected 3 items over 2 pages, got %d items in %d calls", len(items), calls)
	}
}

func TestGetItemResolvesEpicPriority(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/issue/OPS-5"):
			body := issueJSON("OPS-5", "Low")
			body["fields"].(map[string]any)["parent"] = map[string]any{"key": "OPS-100"}
			_ = json.NewEncoder(w).Encode(body)
		case strings.HasSuffix(r.URL.Path, "/issue/OPS-100"):
			_ = json.NewEncoder(w).Encode(issueJSON("OPS-100", "Highest"))
		default:
			http.NotFound(w, r)
		}
	})

	item, err := c.GetItem(context.Background(), "OPS-5")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if item.EpicKey != "OPS-100" || item.EpicPriority != "Highest" {
		t.Errorf("expected epic priority resolved, got %q %q", item.EpicKey, item.EpicPriority)
	}
}

func TestOffHours(t *testing.T) {
	at := func(day, hour int) jira.Issue {
		return jira.Issue{Fields: &jira.IssueFields{Updated: jira.Time(time.Date(2024, 3, day, hour, 0, 0, 0, time.UTC))}}
	}
	// 2024-03-06 is a Wednesday, 2024-03-09 a Saturday.
	after, weekend := offHours([]jira.Issue{at(6, 10), at(6, 20), at(6, 7), at(9, 12)})
	if after != 2 || weekend != 1 {
		t.Errorf("expected 2 after-hours and 1 weekend update, got %d and %d", after, weekend)
	}
}
