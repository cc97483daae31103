package jira

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	projectKeyPattern = regexp.MustCompile(`^[A-Za-z]+$`)
	datePattern       = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// DateLayout is the yyyy-mm-dd layout of query dates.
const DateLayout = "2006-01-02"

// IssueQuery selects the issues of a project with logged time.
type IssueQuery struct {
	ProjectKey string

	// MinLogDate and MaxLogDate (yyyy-mm-dd) restrict the search to issues
	// that may carry work logged in the range. Both or neither must be set.
	MinLogDate string
	MaxLogDate string
}

// ValidProjectKey reports whether key is a purely alphabetic project key.
func ValidProjectKey(key string) bool {
	return projectKeyPattern.MatchString(key)
}

// ValidDate reports whether date is a yyyy-mm-dd calendar date.
func ValidDate(date string) bool {
	if !datePattern.MatchString(date) {
		return false
	}
	_, err := time.Parse(DateLayout, date)
	return err == nil
}

// Validate checks the project key and the date range format.
func (q IssueQuery) Validate() error {
	if !ValidProjectKey(q.ProjectKey) {
		return &ValidationError{Field: "project key", Value: q.ProjectKey}
	}
	if q.MinLogDate != "" || q.MaxLogDate != "" {
		if !ValidDate(q.MinLogDate) {
			return &ValidationError{Field: "min log date", Value: q.MinLogDate}
		}
		if !ValidDate(q.MaxLogDate) {
			return &ValidationError{Field: "max log date", Value: q.MaxLogDate}
		}
	}
	return nil
}

// JQL builds the search predicate. The query must be valid.
func (q IssueQuery) JQL() string {
	parts := []string{
		fmt.Sprintf("project = %s", q.ProjectKey),
		"timespent > 0",
	}
	if q.MinLogDate != "" || q.MaxLogDate != "" {
		parts = append(parts, fmt.Sprintf(`created <= "%s 23:59" AND updated >= "%s"`, q.MaxLogDate, q.MinLogDate))
	}
	return strings.Join(parts, " AND ")
}
