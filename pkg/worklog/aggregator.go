package worklog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/jira-worklog/pkg/grouping"
	"github.com/Sternrassler/jira-worklog/pkg/jira"
	"github.com/Sternrassler/jira-worklog/pkg/logging"
)

// Pipeline stage names, used as metric labels.
const (
	StageIssues    = "issues"
	StageWorklogs  = "worklogs"
	StageUsers     = "users"
	StageFilter    = "filter"
	StageHierarchy = "hierarchy"
)

// UnknownUser stands in for a worklog author that carries no identity.
// It is never looked up.
const UnknownUser = "(unknown)"

var (
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "worklog_stage_duration_seconds",
		Help:    "Duration of each worklog pipeline stage",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"stage"})

	pipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worklog_pipeline_runs_total",
		Help: "Total worklog pipeline runs by result",
	}, []string{"result"})

	degradedUsers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worklog_degraded_users_total",
		Help: "User lookups that fell back to the username and UTC",
	})
)

// Tracker is the subset of the tracker client used by the pipeline.
type Tracker interface {
	Issues(ctx context.Context, query jira.IssueQuery) ([]jira.Issue, error)
	Issue(ctx context.Context, key string) (*jira.Issue, error)
	Worklogs(ctx context.Context, issue *jira.Issue) ([]jira.Worklog, error)
	User(ctx context.Context, key string) (*jira.User, error)
}

// Aggregator runs the worklog pipeline against a tracker.
type Aggregator struct {
	tracker Tracker
	logger  zerolog.Logger
}

// NewAggregator creates an aggregator.
func NewAggregator(tracker Tracker) *Aggregator {
	return &Aggregator{
		tracker: tracker,
		logger:  logging.NewLogger(logging.ComponentWorklog),
	}
}

// Worklog returns the entries logged on q.ProjectKey whose local start date
// lies within [q.MinDate, q.MaxDate]. Entries are unordered.
//
// The stages run in order, each waiting for the previous one:
// issue search, worklog retrieval, user resolution, local date filtering,
// then hierarchy resolution and change request tagging.
func (a *Aggregator) Worklog(ctx context.Context, q Query) ([]*Entry, error) {
	if err := q.Validate(); err != nil {
		pipelineRuns.WithLabelValues("invalid").Inc()
		return nil, err
	}

	logger := a.logger.With().
		Str("project", q.ProjectKey).
		Str("min_date", q.MinDate).
		Str("max_date", q.MaxDate).
		Logger()

	entries, err := a.run(ctx, q, logger)
	if err != nil {
		pipelineRuns.WithLabelValues("error").Inc()
		logger.Error().Err(err).Msg("Worklog pipeline aborted")
		return nil, err
	}

	pipelineRuns.WithLabelValues("success").Inc()
	return entries, nil
}

func (a *Aggregator) run(ctx context.Context, q Query, logger zerolog.Logger) ([]*Entry, error) {
	var issues []jira.Issue
	err := a.stage(logger, StageIssues, func() (int, error) {
		var err error
		issues, err = a.tracker.Issues(ctx, q.issueQuery())
		return len(issues), err
	})
	if err != nil {
		return nil, err
	}

	var entries []*Entry
	err = a.stage(logger, StageWorklogs, func() (int, error) {
		var err error
		entries, err = a.fetchWorklogs(ctx, issues)
		return len(entries), err
	})
	if err != nil {
		return nil, err
	}

	err = a.stage(logger, StageUsers, func() (int, error) {
		return len(entries), a.resolveUsers(ctx, entries, logger)
	})
	if err != nil {
		return nil, err
	}

	err = a.stage(logger, StageFilter, func() (int, error) {
		var err error
		entries, err = filterByLocalDate(q, entries)
		return len(entries), err
	})
	if err != nil {
		return nil, err
	}

	err = a.stage(logger, StageHierarchy, func() (int, error) {
		if err := a.resolveHierarchy(ctx, entries); err != nil {
			return 0, err
		}
		for _, e := range entries {
			e.CR = ExtractCR(e)
		}
		return len(entries), nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// stage times fn and logs its completion.
func (a *Aggregator) stage(logger zerolog.Logger, name string, fn func() (int, error)) error {
	start := time.Now()
	n, err := fn()
	duration := time.Since(start)
	stageDuration.WithLabelValues(name).Observe(duration.Seconds())
	if err != nil {
		return fmt.Errorf("%s stage: %w", name, err)
	}

	logger.Info().
		Str("stage", name).
		Int("count", n).
		Dur("duration", duration).
		Msg("Stage completed")
	return nil
}

// fetchWorklogs retrieves the worklogs of every issue in parallel.
// Any failure fails the whole stage.
func (a *Aggregator) fetchWorklogs(ctx context.Context, issues []jira.Issue) ([]*Entry, error) {
	perIssue := make([][]*Entry, len(issues))

	g, gctx := errgroup.WithContext(ctx)
	for i := range issues {
		issue := &issues[i]
		g.Go(func() error {
			worklogs, err := a.tracker.Worklogs(gctx, issue)
			if err != nil {
				return fmt.Errorf("worklogs of %s: %w", issue.Key, err)
			}

			entries := make([]*Entry, 0, len(worklogs))
			for _, w := range worklogs {
				start, err := jira.ParseTime(w.Started)
				if err != nil {
					return &jira.DataShapeError{
						Operation: jira.OpWorklog,
						Key:       issue.Key,
						Reason:    fmt.Sprintf("worklog %s: bad start %q", w.ID, w.Started),
					}
				}
				entries = append(entries, &Entry{
					Issue:            issue.Key,
					User:             authorName(w.Author),
					TimeSpentSeconds: w.TimeSpentSeconds,
					TimeSpent:        w.TimeSpent,
					Start:            start,
				})
			}
			perIssue[i] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []*Entry
	for _, entries := range perIssue {
		all = append(all, entries...)
	}
	return all, nil
}

// resolveUsers looks up each distinct user once and localizes their entries.
// Lookup failures degrade to the username and UTC.
func (a *Aggregator) resolveUsers(ctx context.Context, entries []*Entry, logger zerolog.Logger) error {
	byUser := grouping.By(entries, func(e *Entry) string { return e.User })

	var wg sync.WaitGroup
	for username, group := range byUser {
		if username == UnknownUser {
			applyUser(logger, username, nil, group)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			user, err := a.tracker.User(ctx, username)
			if err != nil {
				degradedUsers.Inc()
				logger.Warn().Err(err).Str("user", username).Msg("User lookup failed, using defaults")
			}
			applyUser(logger, username, user, group)
		}()
	}
	wg.Wait()

	return ctx.Err()
}

// authorName identifies the author of a worklog. Authors without name or
// key (deleted accounts) fall back to their display name, then UnknownUser.
func authorName(a jira.Author) string {
	if name := a.Username(); name != "" {
		return name
	}
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return UnknownUser
}

// applyUser writes the display data and local start of user onto entries.
// user may be nil.
func applyUser(logger zerolog.Logger, username string, user *jira.User, entries []*Entry) {
	displayName := username
	zone := "UTC"
	if user != nil {
		if user.DisplayName != "" {
			displayName = user.DisplayName
		}
		if user.TimeZone != "" {
			zone = user.TimeZone
		}
	}

	loc, err := time.LoadLocation(zone)
	if err != nil {
		logger.Warn().Err(err).Str("user", username).Str("time_zone", zone).Msg("Unknown time zone, using UTC")
		loc = time.UTC
	}

	for _, e := range entries {
		e.UserDisplayName = displayName
		e.UserAvatar = user.Avatar()
		e.LocalStart = e.Start.In(loc)
	}
}

// filterByLocalDate keeps the entries whose local wall-clock start, read as
// UTC, lies within the query bounds.
func filterByLocalDate(q Query, entries []*Entry) ([]*Entry, error) {
	from, to, err := q.bounds()
	if err != nil {
		return nil, err
	}

	kept := entries[:0]
	for _, e := range entries {
		wall := wallClock(e.LocalStart)
		if !wall.Before(from) && !wall.After(to) {
			kept = append(kept, e)
		}
	}
	return kept, nil
}

// resolveHierarchy classifies entries and propagates story, epic and change
// request data. Each distinct issue, story and epic is fetched once.
func (a *Aggregator) resolveHierarchy(ctx context.Context, entries []*Entry) error {
	// Issues
	err := a.forEachGroup(ctx, entries, func(e *Entry) string { return e.Issue },
		func(issue *jira.Issue, group []*Entry) {
			for _, e := range group {
				classify(e, issue)
			}
		})
	if err != nil {
		return err
	}

	// Stories
	err = a.forEachGroup(ctx, entries, func(e *Entry) string { return e.Story },
		func(story *jira.Issue, group []*Entry) {
			epic := story.Fields.EpicLink.String()
			if epic == "" {
				return
			}
			for _, e := range group {
				e.Epic = epic
			}
		})
	if err != nil {
		return err
	}

	// Epics
	return a.forEachGroup(ctx, entries, func(e *Entry) string { return e.Epic },
		func(epic *jira.Issue, group []*Entry) {
			for _, e := range group {
				e.EpicSummary = epic.Fields.Summary
				e.EpicName = epic.Fields.EpicName.String()
				e.ChangeRequest = epic.Fields.ChangeRequest.String()
			}
		})
}

// forEachGroup groups entries by key, fetches the issue of every non-empty
// key in parallel and calls apply with it. The first failure cancels the rest.
func (a *Aggregator) forEachGroup(ctx context.Context, entries []*Entry, key func(*Entry) string, apply func(*jira.Issue, []*Entry)) error {
	groups := grouping.By(entries, key)

	g, gctx := errgroup.WithContext(ctx)
	for issueKey, group := range groups {
		if issueKey == "" {
			continue
		}
		g.Go(func() error {
			issue, err := a.tracker.Issue(gctx, issueKey)
			if err != nil {
				return fmt.Errorf("issue %s: %w", issueKey, err)
			}
			apply(issue, group)
			return nil
		})
	}
	return g.Wait()
}

// classify sets the type, task and story of e from its issue.
func classify(e *Entry, issue *jira.Issue) {
	e.Type = issue.Kind()
	switch e.Type {
	case jira.KindSubtask:
		e.Task = issue.Key
		e.TaskName = issue.Fields.Summary
		if p := issue.Fields.Parent; p != nil {
			e.Story = p.Key
			e.StoryName = p.Fields.Summary
		}
	case jira.KindEpic:
		// Work logged on an epic itself is booked on that epic.
		e.Epic = issue.Key
	default:
		e.Story = issue.Key
		e.StoryName = issue.Fields.Summary
	}
}
