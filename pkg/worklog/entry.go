// Package worklog turns the issues of a project into a flat list of resolved,
// localized and classified work-log entries.
package worklog

import (
	"fmt"
	"time"

	"github.com/Sternrassler/jira-worklog/pkg/jira"
)

// Entry is a work-log record enriched by the pipeline stages.
type Entry struct {
	Issue            string    `json:"issue"`
	User             string    `json:"user"`
	TimeSpentSeconds int       `json:"timeSpentSeconds"`
	TimeSpent        string    `json:"timeSpent"`
	Start            time.Time `json:"start"`

	// Set by user resolution
	LocalStart      time.Time `json:"localStart"`
	UserDisplayName string    `json:"userDisplayName"`
	UserAvatar      string    `json:"userAvatar,omitempty"`

	// Set by hierarchy resolution
	Type          jira.IssueKind `json:"type,omitempty"`
	Task          string         `json:"task,omitempty"`
	TaskName      string         `json:"taskName,omitempty"`
	Story         string         `json:"story,omitempty"`
	StoryName     string         `json:"storyName,omitempty"`
	Epic          string         `json:"epic,omitempty"`
	EpicName      string         `json:"epicName,omitempty"`
	EpicSummary   string         `json:"epicSummary,omitempty"`
	ChangeRequest string         `json:"changeRequest,omitempty"`

	// CR is the change request tag, empty when none could be found
	CR string `json:"CR,omitempty"`
}

// Query selects the work logged on a project between two calendar dates.
type Query struct {
	ProjectKey string

	// MinDate and MaxDate (yyyy-mm-dd) bound the range, both inclusive
	MinDate string
	MaxDate string
}

// Validate checks the project key and both dates.
func (q Query) Validate() error {
	if q.MinDate == "" {
		return &jira.ValidationError{Field: "min date", Value: q.MinDate}
	}
	if q.MaxDate == "" {
		return &jira.ValidationError{Field: "max date", Value: q.MaxDate}
	}
	return q.issueQuery().Validate()
}

func (q Query) issueQuery() jira.IssueQuery {
	return jira.IssueQuery{
		ProjectKey: q.ProjectKey,
		MinLogDate: q.MinDate,
		MaxLogDate: q.MaxDate,
	}
}

// bounds returns the filter window: MinDate 00:00:00.000 to MaxDate
// 23:59:59.999, both as UTC instants.
func (q Query) bounds() (time.Time, time.Time, error) {
	from, err := time.ParseInLocation(jira.DateLayout, q.MinDate, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse min date: %w", err)
	}
	to, err := time.ParseInLocation(jira.DateLayout, q.MaxDate, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse max date: %w", err)
	}
	return from, to.Add(24*time.Hour - time.Millisecond), nil
}

// MonthRange returns the first and last calendar day of month (yyyy-mm).
func MonthRange(month string) (string, string, error) {
	first, err := time.Parse("2006-01", month)
	if err != nil {
		return "", "", &jira.ValidationError{Field: "month", Value: month}
	}
	last := first.AddDate(0, 1, -1)
	return first.Format(jira.DateLayout), last.Format(jira.DateLayout), nil
}

// wallClock reads the local wall-clock time of t as UTC components,
// at millisecond precision.
func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(),
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC).Truncate(time.Millisecond)
}
