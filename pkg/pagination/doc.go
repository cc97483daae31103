// Package pagination provides sequential offset pagination for search-style
// tracker endpoints.
//
// The tracker reports startAt, maxResults and total on every page. The next
// offset depends on the previous response, so pages are fetched one after the
// other; this is the only inherently serial remote-call sequence of the
// worklog pipeline.
//
// Example usage:
//
//	issues, err := pagination.FetchAll(ctx, pagination.DefaultConfig(), jql,
//		func(ctx context.Context, startAt, maxResults int) (pagination.Page[jira.Issue], error) {
//			return client.searchPage(ctx, jql, startAt, maxResults)
//		})
//
// The fetcher:
//   - Requests pages of DefaultPageSize (1000, the tracker maximum)
//   - Advances the offset by the page size the server reports
//   - Refuses result sets reaching MaxTotal (10,000) with ErrTooManyResults
//   - Logs progress per page
package pagination
