package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultPageSize is the largest page the tracker serves
	DefaultPageSize = 1000

	// DefaultMaxTotal is the result count at which pagination is refused
	DefaultMaxTotal = 10000
)

// ErrTooManyResults is returned when the remote total reaches the ceiling.
var ErrTooManyResults = errors.New("too many results - not even trying")

var searchPagesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "worklog_search_pages_total",
	Help: "Total number of search result pages fetched",
})

// Config holds paginator configuration
type Config struct {
	// PageSize is the requested maxResults per page
	PageSize int
	// MaxTotal aborts pagination when the reported total reaches it
	MaxTotal int
}

// DefaultConfig returns the tracker defaults
func DefaultConfig() Config {
	return Config{
		PageSize: DefaultPageSize,
		MaxTotal: DefaultMaxTotal,
	}
}

// Page is a single page of a startAt/maxResults paginated response
type Page[T any] struct {
	Items      []T
	StartAt    int
	MaxResults int
	Total      int
}

// FetchFunc fetches the page starting at startAt
type FetchFunc[T any] func(ctx context.Context, startAt, maxResults int) (Page[T], error)

// FetchAll fetches every page sequentially and concatenates the items.
// label identifies the query in logs.
func FetchAll[T any](ctx context.Context, cfg Config, label string, fetch FetchFunc[T]) ([]T, error) {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.MaxTotal <= 0 {
		cfg.MaxTotal = DefaultMaxTotal
	}

	start := time.Now()
	var all []T
	startAt := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := fetch(ctx, startAt, cfg.PageSize)
		if err != nil {
			return nil, fmt.Errorf("fetch page at %d: %w", startAt, err)
		}
		searchPagesTotal.Inc()
		all = append(all, page.Items...)

		if page.Total >= cfg.MaxTotal {
			log.Warn().
				Str("query", label).
				Int("total", page.Total).
				Int("max_total", cfg.MaxTotal).
				Msg("Search aborted: too many results")
			return nil, fmt.Errorf("%w (%d results)", ErrTooManyResults, page.Total)
		}

		step := page.MaxResults
		if step <= 0 {
			step = cfg.PageSize
		}

		if page.StartAt+step < page.Total {
			log.Info().
				Str("query", label).
				Int("received", len(page.Items)).
				Int("start_at", page.StartAt).
				Int("total", page.Total).
				Msg("Grabbing next batch")
			startAt = page.StartAt + step
			continue
		}

		log.Info().
			Str("query", label).
			Int("total", page.Total).
			Int("received", len(all)).
			Dur("duration", time.Since(start)).
			Msg("All results received")
		return all, nil
	}
}
