package cache

import (
	"strings"
)

// Key namespaces used by the tracker client.
const (
	NamespaceProjects = "projects"
	NamespaceIssues   = "issues"
	NamespaceIssue    = "issue"
	NamespaceWorklogs = "worklogs"
	NamespaceUser     = "user"
	NamespaceSprints  = "sprints"
)

// Key identifies a cached value.
type Key struct {
	// Namespace is the kind of value (e.g., "issue", "worklogs")
	Namespace string

	// ID is the value identifier within the namespace (e.g., "ABC-123").
	// Empty for singleton values such as the project list.
	ID string
}

// String generates the cache key string.
// Format: namespace:id, or namespace alone when ID is empty.
//
// Example:
//
//	issue:ABC-123
func (k Key) String() string {
	ns := strings.TrimSpace(k.Namespace)
	if k.ID == "" {
		return ns
	}
	return ns + ":" + k.ID
}

// IssueKey is the key of a single issue.
func IssueKey(issueKey string) Key {
	return Key{Namespace: NamespaceIssue, ID: issueKey}
}

// IssuesKey is the key of a search result list, identified by its JQL.
func IssuesKey(jql string) Key {
	return Key{Namespace: NamespaceIssues, ID: jql}
}

// WorklogsKey is the key of the worklog list of an issue.
func WorklogsKey(issueKey string) Key {
	return Key{Namespace: NamespaceWorklogs, ID: issueKey}
}

// UserKey is the key of a user.
func UserKey(userKey string) Key {
	return Key{Namespace: NamespaceUser, ID: userKey}
}

// SprintsKey is the key of the sprint list of a board.
func SprintsKey(boardID string) Key {
	return Key{Namespace: NamespaceSprints, ID: boardID}
}

// ProjectsKey is the key of the project list.
func ProjectsKey() Key {
	return Key{Namespace: NamespaceProjects}
}
