// Package testutil provides testing utilities for the worklog service.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock tracker endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockJira is a configurable mock issue tracker for testing.
type MockJira struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount int
	PathCount    map[string]int
	LastRequest  *http.Request
}

// NewMockJira creates a new mock tracker server.
func NewMockJira() *MockJira {
	mock := &MockJira{
		handlers:  make(map[string]func(w http.ResponseWriter, r *http.Request)),
		PathCount: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.PathCount[r.URL.Path]++
		mock.LastRequest = r.Clone(r.Context())
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		notFound(w, fmt.Sprintf("no mock for %s", r.URL.Path))
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockJira) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockJira) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockJira) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.PathCount = make(map[string]int)
	m.LastRequest = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockJira) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockJira) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetJSON serves v as a 200 JSON response on path.
func (m *MockJira) SetJSON(path string, v any) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, v)
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockJira) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// Requests returns the number of requests made to path.
func (m *MockJira) Requests(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PathCount[path]
}

// GetLastRequest returns a copy of the most recent request.
func (m *MockJira) GetLastRequest() *http.Request {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequest
}

// SetProjects configures the project list endpoint.
func (m *MockJira) SetProjects(projects ...map[string]any) {
	m.SetJSON("/rest/api/2/project", projects)
}

// SetIssue configures the single issue endpoint for issue["key"].
func (m *MockJira) SetIssue(issue map[string]any) {
	m.SetJSON(IssuePath(issue["key"].(string)), issue)
}

// SetIssues configures the search endpoint to page through issues,
// serving at most pageSize issues per request.
func (m *MockJira) SetIssues(pageSize int, issues ...map[string]any) {
	m.SetHandler("/rest/api/2/search", func(w http.ResponseWriter, r *http.Request) {
		startAt, _ := strconv.Atoi(r.URL.Query().Get("startAt"))
		maxResults, _ := strconv.Atoi(r.URL.Query().Get("maxResults"))
		if maxResults <= 0 || maxResults > pageSize {
			maxResults = pageSize
		}

		end := startAt + maxResults
		if end > len(issues) {
			end = len(issues)
		}
		page := []map[string]any{}
		if startAt < len(issues) {
			page = issues[startAt:end]
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"startAt":    startAt,
			"maxResults": maxResults,
			"total":      len(issues),
			"issues":     page,
		})
	})
}

// SetWorklogs configures the worklog endpoint of issueKey.
func (m *MockJira) SetWorklogs(issueKey string, worklogs ...map[string]any) {
	if worklogs == nil {
		worklogs = []map[string]any{}
	}
	m.SetJSON(IssuePath(issueKey)+"/worklog", map[string]any{
		"startAt":    0,
		"maxResults": len(worklogs),
		"total":      len(worklogs),
		"worklogs":   worklogs,
	})
}

// SetUsers configures the user endpoint for the given users, looked up by
// the "key" or "username" query parameter. Unknown users get a 404 payload.
func (m *MockJira) SetUsers(users ...map[string]any) {
	byKey := make(map[string]map[string]any, len(users))
	for _, u := range users {
		byKey[u["key"].(string)] = u
	}
	m.SetHandler("/rest/api/2/user", func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("key")
		if key == "" {
			key = r.URL.Query().Get("username")
		}
		u, ok := byKey[key]
		if !ok {
			notFound(w, fmt.Sprintf("The user with the key '%s' does not exist", key))
			return
		}
		writeJSON(w, http.StatusOK, u)
	})
}

// SetSprints configures the sprint endpoint of a board.
func (m *MockJira) SetSprints(boardID int, sprints ...map[string]any) {
	m.SetJSON(fmt.Sprintf("/rest/agile/1.0/board/%d/sprint", boardID), map[string]any{
		"maxResults": 1000,
		"startAt":    0,
		"isLast":     true,
		"values":     sprints,
	})
}

// IssuePath returns the single issue path of key.
func IssuePath(key string) string {
	return "/rest/api/2/issue/" + key
}

// Issue builds an issue payload. kind is "Sub-task", "Story", "Epic" or any
// other type name; extra fields (parent, custom fields) are merged in.
func Issue(key, kind, summary string, updated time.Time, extra map[string]any) map[string]any {
	fields := map[string]any{
		"summary": summary,
		"updated": updated.Format("2006-01-02T15:04:05.000-0700"),
		"issuetype": map[string]any{
			"name":    kind,
			"subtask": kind == "Sub-task",
		},
	}
	for k, v := range extra {
		fields[k] = v
	}
	return map[string]any{
		"id":     strconv.Itoa(len(key)),
		"key":    key,
		"fields": fields,
	}
}

// Parent builds the parent reference of a sub-task.
func Parent(key, summary string) map[string]any {
	return map[string]any{
		"key":    key,
		"fields": map[string]any{"summary": summary},
	}
}

// Worklog builds a work-log payload.
func Worklog(id, author string, started time.Time, seconds int) map[string]any {
	return map[string]any{
		"id": id,
		"author": map[string]any{
			"name":        author,
			"key":         author,
			"displayName": author,
		},
		"started":          started.Format("2006-01-02T15:04:05.000-0700"),
		"timeSpent":        fmt.Sprintf("%dm", seconds/60),
		"timeSpentSeconds": seconds,
	}
}

// User builds a user payload.
func User(key, displayName, timeZone string) map[string]any {
	return map[string]any{
		"key":         key,
		"name":        key,
		"displayName": displayName,
		"timeZone":    timeZone,
		"avatarUrls": map[string]string{
			"16x16": "https://avatars.example.com/" + key + "?s=16",
			"32x32": "https://avatars.example.com/" + key + "?s=32",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"errorMessages": ["Internal server error"]}`,
		Headers: map[string]string{
			"Content-Type": "application/json;charset=UTF-8",
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json;charset=UTF-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"errorMessages": []string{msg},
		"errors":        map[string]string{},
	})
}
