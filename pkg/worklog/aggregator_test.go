package worklog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/jira-worklog/pkg/jira"
)

// fakeTracker serves issues, worklogs and users from memory and counts calls.
type fakeTracker struct {
	mu sync.Mutex

	issues      map[string]*jira.Issue
	worklogs    map[string][]jira.Worklog
	users       map[string]*jira.User
	worklogErrs map[string]error
	issueErrs   map[string]error

	searched    []jira.IssueQuery
	issueCalls  map[string]int
	userCalls   map[string]int
	searchOrder []string
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{
		issues:      make(map[string]*jira.Issue),
		worklogs:    make(map[string][]jira.Worklog),
		users:       make(map[string]*jira.User),
		worklogErrs: make(map[string]error),
		issueErrs:   make(map[string]error),
		issueCalls:  make(map[string]int),
		userCalls:   make(map[string]int),
	}
}

func (f *fakeTracker) addIssue(key, kind, summary string, opts ...func(*jira.Issue)) {
	issue := &jira.Issue{
		Key: key,
		Fields: jira.Fields{
			Summary:   summary,
			IssueType: jira.IssueType{Name: kind, Subtask: kind == string(jira.KindSubtask)},
		},
	}
	for _, opt := range opts {
		opt(issue)
	}
	f.issues[key] = issue
	f.searchOrder = append(f.searchOrder, key)
}

func (f *fakeTracker) addWorklog(issueKey, author string, started time.Time, seconds int) {
	f.worklogs[issueKey] = append(f.worklogs[issueKey], jira.Worklog{
		ID:               fmt.Sprintf("%s-%d", issueKey, len(f.worklogs[issueKey])+1),
		Author:           jira.Author{Name: author, Key: author},
		Started:          started.Format("2006-01-02T15:04:05.000-0700"),
		TimeSpent:        fmt.Sprintf("%dh", seconds/3600),
		TimeSpentSeconds: seconds,
	})
}

func (f *fakeTracker) addUser(key, displayName, zone string) {
	f.users[key] = &jira.User{
		Key:         key,
		Name:        key,
		DisplayName: displayName,
		TimeZone:    zone,
		AvatarURLs:  map[string]string{"32x32": "avatar/" + key},
	}
}

func parent(key, summary string) func(*jira.Issue) {
	return func(i *jira.Issue) {
		i.Fields.Parent = &jira.ParentIssue{Key: key}
		i.Fields.Parent.Fields.Summary = summary
	}
}

func epicLink(key string) func(*jira.Issue) {
	return func(i *jira.Issue) { i.Fields.EpicLink = jira.FieldValue(key) }
}

func epicFields(name, cr string) func(*jira.Issue) {
	return func(i *jira.Issue) {
		i.Fields.EpicName = jira.FieldValue(name)
		i.Fields.ChangeRequest = jira.FieldValue(cr)
	}
}

func (f *fakeTracker) Issues(ctx context.Context, query jira.IssueQuery) ([]jira.Issue, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searched = append(f.searched, query)

	var issues []jira.Issue
	for _, key := range f.searchOrder {
		if _, ok := f.worklogs[key]; ok {
			issues = append(issues, *f.issues[key])
		}
	}
	return issues, nil
}

func (f *fakeTracker) Issue(ctx context.Context, key string) (*jira.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issueCalls[key]++
	if err := f.issueErrs[key]; err != nil {
		return nil, err
	}
	issue, ok := f.issues[key]
	if !ok {
		return nil, &jira.TransportError{Operation: jira.OpIssue, Label: key, StatusCode: 404, ErrorClass: jira.ErrorClassClient}
	}
	return issue, nil
}

func (f *fakeTracker) Worklogs(ctx context.Context, issue *jira.Issue) ([]jira.Worklog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.worklogErrs[issue.Key]; err != nil {
		return nil, err
	}
	return f.worklogs[issue.Key], nil
}

func (f *fakeTracker) User(ctx context.Context, key string) (*jira.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userCalls[key]++
	user, ok := f.users[key]
	if !ok {
		return nil, &jira.TrackerError{Operation: jira.OpUser, Key: key, Messages: []string{"no such user"}}
	}
	return user, nil
}

func march2021() Query {
	return Query{ProjectKey: "ABC", MinDate: "2021-03-01", MaxDate: "2021-03-31"}
}

func byIssue(entries []*Entry) map[string]*Entry {
	m := make(map[string]*Entry, len(entries))
	for _, e := range entries {
		m[e.Issue] = e
	}
	return m
}

func TestAggregator_EndToEnd(t *testing.T) {
	tracker := newFakeTracker()
	tracker.addIssue("ABC-10", "Epic", "Billing rework", epicFields("CR 1234567 Billing", ""))
	tracker.addIssue("ABC-1", "Story", "Invoice export", epicLink("ABC-10"))
	tracker.addIssue("ABC-2", "Sub-task", "Write CSV writer", parent("ABC-1", "Invoice export"))
	tracker.addWorklog("ABC-1", "alice", time.Date(2021, 3, 15, 9, 0, 0, 0, time.UTC), 3600)
	tracker.addWorklog("ABC-2", "bob", time.Date(2021, 3, 20, 15, 0, 0, 0, time.UTC), 7200)
	tracker.addUser("alice", "Alice Liddell", "Europe/Berlin")
	tracker.addUser("bob", "Bob Builder", "America/New_York")

	entries, err := NewAggregator(tracker).Worklog(context.Background(), march2021())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	got := byIssue(entries)

	alice := got["ABC-1"]
	require.NotNil(t, alice)
	assert.Equal(t, "alice", alice.User)
	assert.Equal(t, "Alice Liddell", alice.UserDisplayName)
	assert.Equal(t, "avatar/alice", alice.UserAvatar)
	assert.Equal(t, 10, alice.LocalStart.Hour(), "09:00Z is 10:00 in Berlin")
	assert.Equal(t, jira.KindStory, alice.Type)
	assert.Equal(t, "ABC-1", alice.Story)
	assert.Equal(t, "Invoice export", alice.StoryName)
	assert.Empty(t, alice.Task)
	assert.Equal(t, "ABC-10", alice.Epic)
	assert.Equal(t, "Billing rework", alice.EpicSummary)
	assert.Equal(t, "1234567", alice.CR)

	bob := got["ABC-2"]
	require.NotNil(t, bob)
	assert.Equal(t, "Bob Builder", bob.UserDisplayName)
	assert.Equal(t, 11, bob.LocalStart.Hour(), "15:00Z is 11:00 in New York (EDT)")
	assert.Equal(t, jira.KindSubtask, bob.Type)
	assert.Equal(t, "ABC-2", bob.Task)
	assert.Equal(t, "Write CSV writer", bob.TaskName)
	assert.Equal(t, "ABC-1", bob.Story)
	assert.Equal(t, "ABC-10", bob.Epic)
	assert.Equal(t, "CR 1234567 Billing", bob.EpicName)
	assert.Equal(t, "1234567", bob.CR)
	assert.Equal(t, 7200, bob.TimeSpentSeconds)

	for _, e := range entries {
		assert.False(t, e.LocalStart.IsZero())
		assert.Equal(t, time.March, e.LocalStart.Month())
		assert.True(t, e.LocalStart.Equal(e.Start), "localization must not move the instant")
	}

	require.Len(t, tracker.searched, 1)
	assert.Equal(t, jira.IssueQuery{ProjectKey: "ABC", MinLogDate: "2021-03-01", MaxLogDate: "2021-03-31"}, tracker.searched[0])
}

func TestAggregator_FiltersOnLocalWallClock(t *testing.T) {
	tracker := newFakeTracker()
	tracker.addIssue("ABC-1", "Story", "Story")
	tracker.addUser("ny", "New York", "America/New_York")
	tracker.addUser("tokyo", "Tokyo", "Asia/Tokyo")
	tracker.addUser("utc", "Greenwich", "UTC")

	// 2021-04-01 03:30Z is still March 31 in New York: kept.
	tracker.addWorklog("ABC-1", "ny", time.Date(2021, 4, 1, 3, 30, 0, 0, time.UTC), 60)
	// 2021-03-01 01:00Z is February 28 in New York: dropped.
	tracker.addWorklog("ABC-1", "ny", time.Date(2021, 3, 1, 1, 0, 0, 0, time.UTC), 60)
	// 2021-03-31 16:00Z is April 1 in Tokyo: dropped.
	tracker.addWorklog("ABC-1", "tokyo", time.Date(2021, 3, 31, 16, 0, 0, 0, time.UTC), 60)
	// 2021-02-28 15:30Z is March 1 in Tokyo: kept.
	tracker.addWorklog("ABC-1", "tokyo", time.Date(2021, 2, 28, 15, 30, 0, 0, time.UTC), 60)
	// Exact boundaries in UTC: both kept.
	tracker.addWorklog("ABC-1", "utc", time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC), 60)
	tracker.addWorklog("ABC-1", "utc", time.Date(2021, 3, 31, 23, 59, 59, 999e6, time.UTC), 60)
	// One millisecond past the end: dropped.
	tracker.addWorklog("ABC-1", "utc", time.Date(2021, 4, 1, 0, 0, 0, 0, time.UTC), 60)

	entries, err := NewAggregator(tracker).Worklog(context.Background(), march2021())
	require.NoError(t, err)
	assert.Len(t, entries, 4)

	from := time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2021, 3, 31, 23, 59, 59, 999e6, time.UTC)
	for _, e := range entries {
		wall := wallClock(e.LocalStart)
		assert.False(t, wall.Before(from), "entry %s/%s at %v before window", e.User, e.Issue, e.LocalStart)
		assert.False(t, wall.After(to), "entry %s/%s at %v after window", e.User, e.Issue, e.LocalStart)
	}
}

func TestAggregator_UserLookupDegrades(t *testing.T) {
	tracker := newFakeTracker()
	tracker.addIssue("ABC-1", "Story", "Story")
	tracker.addWorklog("ABC-1", "ghost", time.Date(2021, 3, 10, 23, 30, 0, 0, time.UTC), 60)
	tracker.addWorklog("ABC-1", "ghost", time.Date(2021, 3, 11, 8, 0, 0, 0, time.UTC), 60)
	tracker.addWorklog("ABC-1", "zoneless", time.Date(2021, 3, 12, 8, 0, 0, 0, time.UTC), 60)
	tracker.addUser("zoneless", "", "Mars/Olympus_Mons")

	entries, err := NewAggregator(tracker).Worklog(context.Background(), march2021())
	require.NoError(t, err)
	require.Len(t, entries, 3)

	for _, e := range entries {
		assert.Equal(t, e.User, e.UserDisplayName, "display name falls back to the username")
		assert.Equal(t, time.UTC, e.LocalStart.Location())
	}
	assert.Equal(t, 1, tracker.userCalls["ghost"], "one lookup per distinct user")
}

func TestAggregator_DegradedUserLogCarriesQuery(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	tracker := newFakeTracker()
	tracker.addIssue("ABC-1", "Story", "Story")
	tracker.addWorklog("ABC-1", "ghost", time.Date(2021, 3, 10, 8, 0, 0, 0, time.UTC), 60)

	_, err := NewAggregator(tracker).Worklog(context.Background(), march2021())
	require.NoError(t, err)

	var warning map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		if m["message"] == "User lookup failed, using defaults" {
			warning = m
		}
	}
	require.NotNil(t, warning, "no degraded user warning in %s", buf.String())
	assert.Equal(t, "ghost", warning["user"])
	assert.Equal(t, "ABC", warning["project"])
	assert.Equal(t, "2021-03-01", warning["min_date"])
	assert.Equal(t, "2021-03-31", warning["max_date"])
	assert.Equal(t, "worklog", warning["component"])
}

func TestAggregator_AnonymousAuthors(t *testing.T) {
	tracker := newFakeTracker()
	tracker.addIssue("ABC-1", "Story", "Story")
	tracker.addWorklog("ABC-1", "alice", time.Date(2021, 3, 10, 8, 0, 0, 0, time.UTC), 60)
	tracker.worklogs["ABC-1"] = append(tracker.worklogs["ABC-1"],
		jira.Worklog{ID: "2", Author: jira.Author{DisplayName: "Former Employee"}, Started: "2021-03-11T08:00:00.000+0000", TimeSpentSeconds: 60},
		jira.Worklog{ID: "3", Author: jira.Author{}, Started: "2021-03-12T08:00:00.000+0000", TimeSpentSeconds: 60},
	)
	tracker.addUser("alice", "Alice", "Europe/Berlin")

	entries, err := NewAggregator(tracker).Worklog(context.Background(), march2021())
	require.NoError(t, err)
	require.Len(t, entries, 3)

	users := map[string]string{}
	for _, e := range entries {
		assert.NotEmpty(t, e.UserDisplayName, "entry %s has no display name", e.User)
		assert.False(t, e.LocalStart.IsZero())
		users[e.User] = e.UserDisplayName
	}
	assert.Equal(t, map[string]string{
		"alice":           "Alice",
		"Former Employee": "Former Employee",
		UnknownUser:       UnknownUser,
	}, users)
	assert.Zero(t, tracker.userCalls[UnknownUser], "placeholder author is never looked up")
	assert.Zero(t, tracker.userCalls[""])
}

func TestAggregator_WorklogFailureAborts(t *testing.T) {
	tracker := newFakeTracker()
	tracker.addIssue("ABC-1", "Story", "Story")
	tracker.addIssue("ABC-2", "Story", "Other")
	tracker.addWorklog("ABC-1", "alice", time.Date(2021, 3, 10, 8, 0, 0, 0, time.UTC), 60)
	tracker.addWorklog("ABC-2", "alice", time.Date(2021, 3, 10, 9, 0, 0, 0, time.UTC), 60)
	tracker.worklogErrs["ABC-2"] = &jira.TransportError{Operation: jira.OpWorklog, Label: "ABC-2", StatusCode: 500, ErrorClass: jira.ErrorClassServer}

	entries, err := NewAggregator(tracker).Worklog(context.Background(), march2021())
	assert.Nil(t, entries)

	var te *jira.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "ABC-2", te.Label)
	assert.Empty(t, tracker.userCalls, "no later stage may run")
}

func TestAggregator_BadStartIsDataShapeError(t *testing.T) {
	tracker := newFakeTracker()
	tracker.addIssue("ABC-1", "Story", "Story")
	tracker.worklogs["ABC-1"] = []jira.Worklog{{ID: "1", Author: jira.Author{Name: "alice"}, Started: "yesterday"}}

	_, err := NewAggregator(tracker).Worklog(context.Background(), march2021())
	var dse *jira.DataShapeError
	assert.ErrorAs(t, err, &dse)
}

func TestAggregator_IssueFailureAborts(t *testing.T) {
	tracker := newFakeTracker()
	tracker.addIssue("ABC-1", "Story", "Story", epicLink("ABC-99"))
	tracker.addWorklog("ABC-1", "alice", time.Date(2021, 3, 10, 8, 0, 0, 0, time.UTC), 60)
	tracker.issueErrs["ABC-99"] = errors.New("connection reset")

	_, err := NewAggregator(tracker).Worklog(context.Background(), march2021())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ABC-99")
}

func TestAggregator_Validation(t *testing.T) {
	tests := []struct {
		name  string
		query Query
	}{
		{name: "numeric project", query: Query{ProjectKey: "123", MinDate: "2021-03-01", MaxDate: "2021-03-31"}},
		{name: "bad min date", query: Query{ProjectKey: "ABC", MinDate: "2020-13-40", MaxDate: "2021-03-31"}},
		{name: "missing max date", query: Query{ProjectKey: "ABC", MinDate: "2021-03-01"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := newFakeTracker()
			_, err := NewAggregator(tracker).Worklog(context.Background(), tt.query)
			assert.True(t, jira.IsValidation(err), "error = %v, want ValidationError", err)
			assert.Empty(t, tracker.searched)
		})
	}
}

func TestAggregator_HierarchyPropagation(t *testing.T) {
	tracker := newFakeTracker()
	tracker.addIssue("ABC-100", "Epic", "Platform", epicFields("[PLAT] Platform", "0998877"))
	tracker.addIssue("ABC-200", "Epic", "Reporting", epicFields("Reporting", ""))
	tracker.addIssue("ABC-1", "Story", "Login 12345678", epicLink("ABC-100"))
	tracker.addIssue("ABC-2", "Sub-task", "Backend", parent("ABC-1", "Login 12345678"))
	tracker.addIssue("ABC-3", "Sub-task", "Frontend", parent("ABC-1", "Login 12345678"))
	tracker.addIssue("ABC-4", "Bug", "Crash on export", epicLink("ABC-200"))
	tracker.addIssue("ABC-5", "Story", "Orphan")

	day := time.Date(2021, 3, 10, 8, 0, 0, 0, time.UTC)
	for _, key := range []string{"ABC-100", "ABC-1", "ABC-2", "ABC-3", "ABC-4", "ABC-5"} {
		tracker.addWorklog(key, "alice", day, 60)
		tracker.addWorklog(key, "bob", day.Add(time.Hour), 60)
	}
	tracker.addUser("alice", "Alice", "UTC")
	tracker.addUser("bob", "Bob", "UTC")

	entries, err := NewAggregator(tracker).Worklog(context.Background(), march2021())
	require.NoError(t, err)
	require.Len(t, entries, 12)

	// Entries sharing a story share its epic.
	epicByStory := map[string]string{}
	for _, e := range entries {
		if e.Story == "" {
			continue
		}
		if epic, ok := epicByStory[e.Story]; ok {
			assert.Equal(t, epic, e.Epic, "story %s", e.Story)
		}
		epicByStory[e.Story] = e.Epic
	}

	// Entries sharing an epic share its name and summary.
	type epicData struct{ name, summary string }
	dataByEpic := map[string]epicData{}
	for _, e := range entries {
		if e.Epic == "" {
			continue
		}
		d := epicData{e.EpicName, e.EpicSummary}
		if prev, ok := dataByEpic[e.Epic]; ok {
			assert.Equal(t, prev, d, "epic %s", e.Epic)
		}
		dataByEpic[e.Epic] = d
	}

	for _, e := range entries {
		switch e.Issue {
		case "ABC-100":
			// Time logged on the epic itself counts towards the epic's CR.
			assert.Equal(t, jira.KindEpic, e.Type)
			assert.Equal(t, "ABC-100", e.Epic)
			assert.Empty(t, e.Story)
			assert.Equal(t, "0998877", e.CR, "explicit change request wins")
		case "ABC-1", "ABC-2", "ABC-3":
			assert.Equal(t, "ABC-100", e.Epic)
			assert.Equal(t, "0998877", e.CR)
		case "ABC-4":
			assert.Equal(t, jira.KindStory, e.Type)
			assert.Equal(t, "ABC-200", e.Epic)
			assert.Equal(t, "Reporting", e.EpicName)
			assert.Empty(t, e.CR)
		case "ABC-5":
			assert.Empty(t, e.Epic)
			assert.Empty(t, e.EpicName)
			assert.Empty(t, e.CR)
		}
	}

	// One lookup per distinct user, one per distinct issue in each step.
	assert.Equal(t, 1, tracker.userCalls["alice"])
	assert.Equal(t, 1, tracker.userCalls["bob"])
	assert.Equal(t, 1, tracker.issueCalls["ABC-2"])
	assert.Equal(t, 2, tracker.issueCalls["ABC-1"], "once as issue, once as story")
	assert.Equal(t, 2, tracker.issueCalls["ABC-100"], "once as issue, once as epic")
}

func TestAggregator_NoIssues(t *testing.T) {
	entries, err := NewAggregator(newFakeTracker()).Worklog(context.Background(), march2021())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAggregator_CancelledContext(t *testing.T) {
	tracker := newFakeTracker()
	tracker.addIssue("ABC-1", "Story", "Story")
	tracker.addWorklog("ABC-1", "alice", time.Date(2021, 3, 10, 8, 0, 0, 0, time.UTC), 60)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewAggregator(tracker).Worklog(ctx, march2021())
	assert.ErrorIs(t, err, context.Canceled)
}
