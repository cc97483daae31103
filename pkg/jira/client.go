// Package jira provides the cached issue tracker client used by the worklog
// pipeline: issue search with sequential pagination, single issue, worklog,
// user, project and sprint lookups.
package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/jira-worklog/pkg/cache"
	"github.com/Sternrassler/jira-worklog/pkg/logging"
	"github.com/Sternrassler/jira-worklog/pkg/pagination"
)

// Config holds the client configuration.
type Config struct {
	// BaseURL of the tracker, e.g. https://jira.example.com
	BaseURL string

	// Basic auth credentials
	Username string
	Password string

	// Timeout per HTTP request
	Timeout time.Duration

	// RateLimit paces requests (requests per second, <= 0 disables pacing)
	RateLimit float64
	RateBurst int

	// Search pagination
	PageSize int
	MaxTotal int

	// UserParam is the query parameter used for user lookups
	// ("key" on Server/Data Center installations, "username" on older ones)
	UserParam string
}

// DefaultConfig returns the default configuration for the tracker at baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:   baseURL,
		Timeout:   30 * time.Second,
		RateLimit: 0,
		RateBurst: 1,
		PageSize:  pagination.DefaultPageSize,
		MaxTotal:  pagination.DefaultMaxTotal,
		UserParam: "key",
	}
}

// Client is the cached tracker client.
type Client struct {
	caller     Caller
	cache      *cache.Manager
	pagination pagination.Config
	userParam  string
	logger     zerolog.Logger
}

// New creates a client talking REST to cfg.BaseURL.
func New(cfg Config, cacheManager *cache.Manager) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive (got %s)", cfg.Timeout)
	}

	logger := logging.NewLogger(logging.ComponentTracker)

	caller := NewRESTCaller(cfg, logger)
	registerDefaults(caller)

	c, err := NewWithCaller(caller, cacheManager, pagination.Config{
		PageSize: cfg.PageSize,
		MaxTotal: cfg.MaxTotal,
	})
	if err != nil {
		return nil, err
	}
	if cfg.UserParam != "" {
		c.userParam = cfg.UserParam
	}
	return c, nil
}

// NewWithCaller creates a client on top of an existing caller.
func NewWithCaller(caller Caller, cacheManager *cache.Manager, pageCfg pagination.Config) (*Client, error) {
	if caller == nil {
		return nil, fmt.Errorf("caller is required")
	}
	if cacheManager == nil {
		return nil, fmt.Errorf("cache manager is required")
	}
	if pageCfg.PageSize <= 0 {
		pageCfg.PageSize = pagination.DefaultPageSize
	}
	if pageCfg.MaxTotal <= 0 {
		pageCfg.MaxTotal = pagination.DefaultMaxTotal
	}

	return &Client{
		caller:     caller,
		cache:      cacheManager,
		pagination: pageCfg,
		userParam:  "key",
		logger:     logging.NewLogger(logging.ComponentTracker),
	}, nil
}

// Projects returns the visible projects.
func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	key := cache.ProjectsKey()

	var projects []Project
	if c.cached(ctx, cache.TierMedium, key, &projects) {
		return projects, nil
	}

	raw, err := c.caller.Call(ctx, OpProjects, Args{})
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &projects); err != nil {
		return nil, &DataShapeError{Operation: OpProjects, Key: "projects", Reason: err.Error()}
	}

	c.store(ctx, cache.TierMedium, key, projects)
	return projects, nil
}

// SearchIssues returns every issue matching jql, paging sequentially.
// pageSize <= 0 uses the configured page size.
func (c *Client) SearchIssues(ctx context.Context, jql string, fields []string, pageSize int) ([]Issue, error) {
	cfg := c.pagination
	if pageSize > 0 {
		cfg.PageSize = pageSize
	}

	return pagination.FetchAll(ctx, cfg, jql, func(ctx context.Context, startAt, maxResults int) (pagination.Page[Issue], error) {
		q := url.Values{}
		q.Set("jql", jql)
		q.Set("startAt", strconv.Itoa(startAt))
		q.Set("maxResults", strconv.Itoa(maxResults))
		if len(fields) > 0 {
			q.Set("fields", strings.Join(fields, ","))
		}

		raw, err := c.caller.Call(ctx, OpSearch, Args{Query: q, Label: jql})
		if err != nil {
			return pagination.Page[Issue]{}, err
		}

		var res searchResult
		if err := json.Unmarshal(raw, &res); err != nil {
			return pagination.Page[Issue]{}, &DataShapeError{Operation: OpSearch, Key: jql, Reason: err.Error()}
		}
		if res.StartAt == 0 {
			res.StartAt = startAt
		}

		return pagination.Page[Issue]{
			Items:      res.Issues,
			StartAt:    res.StartAt,
			MaxResults: res.MaxResults,
			Total:      res.Total,
		}, nil
	})
}

// Issues returns the issues of a project that have logged time.
// The result list is kept in the short tier; each issue also lands in the
// long tier so later Issue lookups are served locally.
func (c *Client) Issues(ctx context.Context, query IssueQuery) ([]Issue, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	jql := query.JQL()
	key := cache.IssuesKey(jql)

	var issues []Issue
	if c.cached(ctx, cache.TierShort, key, &issues) {
		return issues, nil
	}

	issues, err := c.SearchIssues(ctx, jql, IssueFields, 0)
	if err != nil {
		c.logger.Error().Err(err).Str("operation", OpSearch).Str("key", jql).Msg("Issue search failed")
		return nil, err
	}

	for i := range issues {
		issues[i].attachDate()
		c.store(ctx, cache.TierLong, cache.IssueKey(issues[i].Key), issues[i])
	}
	c.store(ctx, cache.TierShort, key, issues)

	return issues, nil
}

// Issue returns a single issue with the reporting fields.
func (c *Client) Issue(ctx context.Context, issueKey string) (*Issue, error) {
	key := cache.IssueKey(issueKey)

	var issue Issue
	if c.cached(ctx, cache.TierLong, key, &issue) {
		return &issue, nil
	}

	q := url.Values{}
	q.Set("fields", strings.Join(IssueFields, ","))
	raw, err := c.caller.Call(ctx, OpIssue, Args{
		Path:  map[string]string{"issue": issueKey},
		Query: q,
		Label: issueKey,
	})
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &issue); err != nil {
		return nil, &DataShapeError{Operation: OpIssue, Key: issueKey, Reason: err.Error()}
	}
	if issue.Key == "" {
		return nil, &DataShapeError{Operation: OpIssue, Key: issueKey, Reason: "missing key"}
	}
	issue.attachDate()

	c.store(ctx, cache.TierLong, key, issue)
	return &issue, nil
}

// Worklogs returns the work logs of issue. A cached list older than the
// issue's last update is refetched.
func (c *Client) Worklogs(ctx context.Context, issue *Issue) ([]Worklog, error) {
	key := cache.WorklogsKey(issue.Key)

	entry, err := c.cache.Entry(ctx, cache.TierLong, key)
	switch {
	case err == nil && entry.FreshSince(issue.Date):
		var worklogs []Worklog
		if err := entry.Decode(&worklogs); err == nil {
			return worklogs, nil
		}
		c.logger.Warn().Str("key", key.String()).Msg("Discarding undecodable cache entry")
	case err == nil:
		c.logger.Debug().
			Str("key", key.String()).
			Time("cached_at", entry.CachedAt).
			Time("updated", issue.Date).
			Msg("Cached worklogs are stale")
	case !errors.Is(err, cache.ErrCacheMiss):
		c.logger.Warn().Err(err).Str("key", key.String()).Msg("Cache get error")
	}

	raw, err := c.caller.Call(ctx, OpWorklog, Args{
		Path:  map[string]string{"issue": issue.Key},
		Label: issue.Key,
	})
	if err != nil {
		return nil, err
	}

	var res worklogResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, &DataShapeError{Operation: OpWorklog, Key: issue.Key, Reason: err.Error()}
	}
	if res.Worklogs == nil {
		return nil, &DataShapeError{Operation: OpWorklog, Key: issue.Key, Reason: "missing worklogs list"}
	}

	c.store(ctx, cache.TierLong, key, res.Worklogs)
	return res.Worklogs, nil
}

// User returns the user identified by userKey.
func (c *Client) User(ctx context.Context, userKey string) (*User, error) {
	key := cache.UserKey(userKey)

	var user User
	if c.cached(ctx, cache.TierLong, key, &user) {
		return &user, nil
	}

	q := url.Values{}
	q.Set(c.userParam, userKey)
	raw, err := c.caller.Call(ctx, OpUser, Args{Query: q, Label: userKey})
	if err != nil {
		var te *TransportError
		if errors.As(err, &te) && te.ErrorClass == ErrorClassClient {
			if msgs := errorMessages(te.Body); len(msgs) > 0 {
				return nil, &TrackerError{Operation: OpUser, Key: userKey, Messages: msgs, Err: err}
			}
		}
		return nil, err
	}

	var res userResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, &DataShapeError{Operation: OpUser, Key: userKey, Reason: err.Error()}
	}
	if res.Key == "" {
		return nil, &TrackerError{Operation: OpUser, Key: userKey, Messages: res.messages()}
	}

	user = res.User
	c.store(ctx, cache.TierLong, key, user)
	return &user, nil
}

// Sprints returns the active and closed sprints of an agile board.
func (c *Client) Sprints(ctx context.Context, boardID int) ([]Sprint, error) {
	board := strconv.Itoa(boardID)
	key := cache.SprintsKey(board)

	var sprints []Sprint
	if c.cached(ctx, cache.TierMedium, key, &sprints) {
		return sprints, nil
	}

	q := url.Values{}
	q.Set("maxResults", "1000")
	q.Set("state", "active,closed")
	raw, err := c.caller.Call(ctx, OpSprints, Args{
		Path:  map[string]string{"board": board},
		Query: q,
		Label: "board " + board,
	})
	if err != nil {
		return nil, err
	}

	var res sprintPage
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, &DataShapeError{Operation: OpSprints, Key: board, Reason: err.Error()}
	}
	sprints = res.Values
	if sprints == nil {
		sprints = []Sprint{}
	}

	c.store(ctx, cache.TierMedium, key, sprints)
	return sprints, nil
}

// cached decodes the entry under key into dst and reports whether it was found.
// Store failures are logged and treated as misses.
func (c *Client) cached(ctx context.Context, tier cache.Tier, key cache.Key, dst any) bool {
	err := c.cache.Get(ctx, tier, key, dst)
	if err == nil {
		return true
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Warn().Err(err).Str("tier", string(tier)).Str("key", key.String()).Msg("Cache get error")
	}
	return false
}

// store writes v under key. Failures are logged; the caller keeps the fetched value.
func (c *Client) store(ctx context.Context, tier cache.Tier, key cache.Key, v any) {
	if err := c.cache.Set(ctx, tier, key, v); err != nil {
		c.logger.Warn().Err(err).Str("tier", string(tier)).Str("key", key.String()).Msg("Cache set error")
	}
}

// messages flattens the error payload of a user response.
func (r *userResult) messages() []string {
	msgs := append([]string(nil), r.ErrorMessages...)
	for field, msg := range r.Errors {
		msgs = append(msgs, field+": "+msg)
	}
	return msgs
}

// errorMessages extracts errorMessages from an error response body.
func errorMessages(body []byte) []string {
	var res userResult
	if err := json.Unmarshal(body, &res); err != nil {
		return nil
	}
	return res.messages()
}
