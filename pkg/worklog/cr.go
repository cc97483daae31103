package worklog

import (
	"regexp"
)

var (
	crTokenPattern = regexp.MustCompile(`\b[01]?\d{7}\b`)
	crTagPattern   = regexp.MustCompile(`^\[\w+\]`)
)

// Extractor derives a change request tag from an entry, or "".
type Extractor struct {
	Name    string
	Extract func(e *Entry) string
}

// CRExtractors is the ordered fallback chain used to tag entries.
// The first non-empty result wins.
var CRExtractors = []Extractor{
	{Name: "changeRequest", Extract: func(e *Entry) string { return e.ChangeRequest }},
	{Name: "epicName", Extract: token(func(e *Entry) string { return e.EpicName })},
	{Name: "epicSummary", Extract: token(func(e *Entry) string { return e.EpicSummary })},
	{Name: "storyName", Extract: token(func(e *Entry) string { return e.StoryName })},
	{Name: "taskName", Extract: token(func(e *Entry) string { return e.TaskName })},
	{Name: "epicTag", Extract: tag(func(e *Entry) string { return e.EpicName })},
}

// ExtractCR runs the chain on e.
func ExtractCR(e *Entry) string {
	for _, x := range CRExtractors {
		if cr := x.Extract(e); cr != "" {
			return cr
		}
	}
	return ""
}

// token matches a 7 or 8 digit change request number.
func token(field func(*Entry) string) func(*Entry) string {
	return func(e *Entry) string {
		return crTokenPattern.FindString(field(e))
	}
}

// tag matches a leading [TAG].
func tag(field func(*Entry) string) func(*Entry) string {
	return func(e *Entry) string {
		return crTagPattern.FindString(field(e))
	}
}
