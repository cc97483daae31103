package jira

import (
	"bytes"
	"encoding/json"
	"time"
)

// Custom fields carrying the issue hierarchy and change request.
const (
	FieldEpicLink      = "customfield_10006"
	FieldEpicName      = "customfield_10007"
	FieldChangeRequest = "customfield_11100"
)

// IssueFields is the field list requested for every issue.
var IssueFields = []string{
	"summary",
	"updated",
	"parent",
	"issuetype",
	FieldEpicLink,
	FieldEpicName,
	FieldChangeRequest,
}

// timeLayout is the tracker's timestamp format, e.g. 2021-03-15T10:20:30.000+0000.
const timeLayout = "2006-01-02T15:04:05.000-0700"

// ParseTime parses a tracker timestamp. RFC 3339 is accepted as well.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err == nil {
		return t, nil
	}
	if t2, err2 := time.Parse(time.RFC3339Nano, s); err2 == nil {
		return t2, nil
	}
	return time.Time{}, err
}

// IssueKind is the position of an issue in the epic/story/sub-task hierarchy.
type IssueKind string

const (
	KindSubtask IssueKind = "Sub-task"
	KindEpic    IssueKind = "Epic"
	KindStory   IssueKind = "Story"
)

// Project is a tracker project.
type Project struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

// IssueType is the issue type metadata.
type IssueType struct {
	Name    string `json:"name"`
	Subtask bool   `json:"subtask"`
}

// ParentIssue is the parent reference embedded in a sub-task.
type ParentIssue struct {
	Key    string `json:"key"`
	Fields struct {
		Summary string `json:"summary"`
	} `json:"fields"`
}

// Fields holds the issue fields used for reporting.
type Fields struct {
	Summary       string       `json:"summary"`
	Updated       string       `json:"updated"`
	IssueType     IssueType    `json:"issuetype"`
	Parent        *ParentIssue `json:"parent,omitempty"`
	EpicLink      FieldValue   `json:"customfield_10006,omitempty"`
	EpicName      FieldValue   `json:"customfield_10007,omitempty"`
	ChangeRequest FieldValue   `json:"customfield_11100,omitempty"`
}

// Issue is a unit of work in the tracker.
type Issue struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Fields Fields `json:"fields"`

	// Date is the parsed Fields.Updated, attached when the issue is cached
	Date time.Time `json:"date"`
}

// Kind classifies the issue.
func (i *Issue) Kind() IssueKind {
	switch {
	case i.Fields.IssueType.Subtask:
		return KindSubtask
	case i.Fields.IssueType.Name == string(KindEpic):
		return KindEpic
	default:
		return KindStory
	}
}

// attachDate derives Date from Fields.Updated. Unparseable values leave Date untouched.
func (i *Issue) attachDate() {
	if i.Fields.Updated == "" {
		return
	}
	if t, err := ParseTime(i.Fields.Updated); err == nil {
		i.Date = t
	}
}

// FieldValue is a custom field normalized to a string. The tracker sends
// custom fields as strings, numbers or option objects ({"value": "..."}).
type FieldValue string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FieldValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}

	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FieldValue(s)
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		for _, name := range []string{"value", "name", "key"} {
			if raw, ok := obj[name]; ok {
				return f.UnmarshalJSON(raw)
			}
		}
		*f = ""
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
		if len(items) == 0 {
			*f = ""
			return nil
		}
		return f.UnmarshalJSON(items[0])
	default:
		// numbers and booleans keep their literal text
		*f = FieldValue(b)
	}
	return nil
}

// String returns the normalized value.
func (f FieldValue) String() string {
	return string(f)
}

// Author identifies the user who logged work.
type Author struct {
	Name        string `json:"name"`
	Key         string `json:"key"`
	DisplayName string `json:"displayName"`
}

// Username returns the login name, falling back to the user key.
func (a Author) Username() string {
	if a.Name != "" {
		return a.Name
	}
	return a.Key
}

// Worklog is a raw work-log record.
type Worklog struct {
	ID               string `json:"id"`
	Author           Author `json:"author"`
	Started          string `json:"started"`
	TimeSpent        string `json:"timeSpent"`
	TimeSpentSeconds int    `json:"timeSpentSeconds"`
	Comment          string `json:"comment,omitempty"`
}

// User is a tracker user.
type User struct {
	Key         string            `json:"key"`
	Name        string            `json:"name"`
	DisplayName string            `json:"displayName"`
	TimeZone    string            `json:"timeZone"`
	AvatarURLs  map[string]string `json:"avatarUrls,omitempty"`
}

// Avatar returns the 32x32 avatar URL, or "".
func (u *User) Avatar() string {
	if u == nil {
		return ""
	}
	return u.AvatarURLs["32x32"]
}

// Sprint is an agile board sprint.
type Sprint struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	State         string `json:"state"`
	StartDate     string `json:"startDate,omitempty"`
	EndDate       string `json:"endDate,omitempty"`
	OriginBoardID int    `json:"originBoardId"`
}

// searchResult is a page of the search endpoint.
type searchResult struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []Issue `json:"issues"`
}

// worklogResult is the response of the worklog endpoint.
// Worklogs is nil when the list is missing from the payload.
type worklogResult struct {
	StartAt    int       `json:"startAt"`
	MaxResults int       `json:"maxResults"`
	Total      int       `json:"total"`
	Worklogs   []Worklog `json:"worklogs"`
}

// sprintPage is the response of the board sprint endpoint.
type sprintPage struct {
	MaxResults int      `json:"maxResults"`
	StartAt    int      `json:"startAt"`
	IsLast     bool     `json:"isLast"`
	Values     []Sprint `json:"values"`
}

// userResult decodes either a user or an error payload.
type userResult struct {
	User
	ErrorMessages []string          `json:"errorMessages,omitempty"`
	Errors        map[string]string `json:"errors,omitempty"`
}
