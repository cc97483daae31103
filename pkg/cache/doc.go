// Package cache provides the tiered cache used by the tracker client.
//
// Three independent tiers differ by retention and volume:
//
//   - short:  1,000 entries, 5 minutes - search result lists (keyed by JQL)
//   - medium: 10,000 entries, 1 hour  - projects, sprints
//   - long:   50,000 entries, 7 days  - issues, users, per-issue worklogs
//
// An entry disappears when it is older than its tier TTL or when it is the
// least recently used entry of a full tier. There is no invalidation API;
// callers that need business-driven staleness compare Entry.CachedAt with
// their own timestamps (the worklog lookup does this against the issue's
// last update).
//
// # Basic Usage
//
//	manager, err := cache.NewManager(cache.DefaultConfig())
//	if err != nil {
//		return err
//	}
//
//	var issue jira.Issue
//	err = manager.Get(ctx, cache.TierLong, cache.IssueKey("ABC-1"), &issue)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the tracker, then:
//		_ = manager.Set(ctx, cache.TierLong, cache.IssueKey("ABC-1"), issue)
//	}
//
// # Shared tiers
//
// NewRedisManager stores every tier in Redis under worklog:<tier>:<key>,
// letting several server processes share one cache.
//
// # Metrics
//
//   - worklog_cache_hits_total{tier}
//   - worklog_cache_misses_total{tier}
//   - worklog_cache_writes_total{tier}
//   - worklog_cache_errors_total{operation}
package cache
