// Package jira reads items and workload signals from a Jira instance.
package jira

import (
	"context"
	"fmt"
	"strings"
	"time"

	jira "github.com/andygrunwald/go-jira"
	"reminder-service/internal/logging"
	"reminder-service/internal/models"
)

const searchPageSize = 100

var searchFields = []string{"*all"}

// Client wraps Jira API client functionality
type Client struct {
	client           *jira.Client
	logger           *logging.Logger
	storyPointsField string
	now              func() time.Time
}

// NewClient creates a new Jira client
func NewClient(baseURL, username, apiToken, storyPointsField string, logger *logging.Logger) (*Client, error) {
	tp := jira.BasicAuthTransport{
		Username: username,
		Password: apiToken,
	}

	client, err := jira.NewClient(tp.Client(), baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create jira client: %w", err)
	}

	return &Client{
		client:           client,
		logger:           logger,
		storyPointsField: storyPointsField,
		now:              time.Now,
	}, nil
}

// GetItem fetches one issue with its changelog. A resolvable parent epic
// contributes its priority.
func (c *Client) GetItem(ctx context.Context, key string) (*models.Item, error) {
	issue, _, err := c.client.Issue.GetWithContext(ctx, key, &jira.GetQueryOptions{Expand: "changelog"})
	if err != nil {
		return nil, fmt.Errorf("failed to get issue %s: %w", key, err)
	}
	item := issueToItem(issue, c.storyPointsField, c.now())
	c.resolveEpic(ctx, item)
	return item, nil
}

func (c *Client) resolveEpic(ctx context.Context, item *models.Item) {
	if item.EpicKey == "" {
		return
	}
	epic, _, err := c.client.Issue.GetWithContext(ctx, item.EpicKey, &jira.GetQueryOptions{Fields: "priority"})
	if err != nil {
		c.logger.Warnf("Failed to resolve epic %s of %s: %v", item.EpicKey, item.Key, err)
		return
	}
	if epic.Fields != nil && epic.Fields.Priority != nil {
		item.EpicPriority = epic.Fields.Priority.Name
	}
}

// SearchItems runs jql and converts up to maxResults issues.
func (c *Client) SearchItems(ctx context.Context, jql string, maxResults int) ([]*models.Item, error) {
	issues, err := c.search(ctx, jql, maxResults, searchFields, "changelog")
	if err != nil {
		return nil, err
	}
	now := c.now()
	items := make([]*models.Item, 0, len(issues))
	for i := range issues {
		items = append(items, issueToItem(&issues[i], c.storyPointsField, now))
	}
	return items, nil
}

// GetItemsByIDs fetches several issues in one search. Unknown keys are absent
// from the result.
func (c *Client) GetItemsByIDs(ctx context.Context, keys []string) (map[string]*models.Item, error) {
	out := make(map[string]*models.Item, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = quote(k)
	}
	items, err := c.SearchItems(ctx, fmt.Sprintf("key in (%s)", strings.Join(quoted, ", ")), len(keys))
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		out[it.Key] = it
	}
	return out, nil
}

// search pages through results until maxResults issues are collected.
func (c *Client) search(ctx context.Context, jql string, maxResults int, fields []string, expand string) ([]jira.Issue, error) {
	var out []jira.Issue
	for start := 0; maxResults <= 0 || len(out) < maxResults; {
		page := searchPageSize
		if maxResults > 0 {
			page = min(page, maxResults-len(out))
		}
		issues, resp, err := c.client.Issue.SearchWithContext(ctx, jql, &jira.SearchOptions{
			StartAt:    start,
			MaxResults: page,
			Fields:     fields,
			Expand:     expand,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to search issues: %w", err)
		}
		out = append(out, issues...)
		start += len(issues)
		if len(issues) == 0 || resp == nil || start >= resp.Total {
			break
		}
	}
	return out, nil
}

// count returns the total number of issues matching jql.
func (c *Client) count(ctx context.Context, jql string) (int, error) {
	_, resp, err := c.client.Issue.SearchWithContext(ctx, jql, &jira.SearchOptions{MaxResults: 1, Fields: []string{"key"}})
	if err != nil {
		return 0, fmt.Errorf("failed to count issues: %w", err)
	}
	if resp == nil {
		return 0, nil
	}
	return resp.Total, nil
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
