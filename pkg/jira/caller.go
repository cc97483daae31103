package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/jira-worklog/pkg/ratelimit"
)

// Prometheus metrics for tracker operations.
var (
	trackerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_requests_total",
		Help: "Total tracker requests by operation and status",
	}, []string{"operation", "status"})

	trackerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tracker_request_duration_seconds",
		Help:    "Tracker request duration in seconds by operation",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"operation"})

	trackerErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_errors_total",
		Help: "Total tracker errors by class",
	}, []string{"class"})
)

// Registered operation names.
const (
	OpProjects = "projects"
	OpSearch   = "search"
	OpWorklog  = "worklog"
	OpIssue    = "issue"
	OpUser     = "user"
	OpSprints  = "sprints"
)

// maxErrorBody bounds the response body kept on a TransportError.
const maxErrorBody = 512

// Args are the parameters of a remote call.
type Args struct {
	// Path fills {placeholders} of the operation URL template
	Path map[string]string

	// Query is the query string
	Query url.Values

	// Label identifies the call in logs (defaults to the operation name)
	Label string
}

// Caller executes named remote operations and returns the raw JSON body.
type Caller interface {
	Call(ctx context.Context, op string, args Args) (json.RawMessage, error)
}

// RESTCaller performs GET requests against registered URL templates.
type RESTCaller struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	logger     zerolog.Logger

	mu  sync.RWMutex
	ops map[string]string
}

// NewRESTCaller creates a caller for the tracker at baseURL.
func NewRESTCaller(cfg Config, logger zerolog.Logger) *RESTCaller {
	return &RESTCaller{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: ratelimit.NewLimiter(cfg.RateLimit, cfg.RateBurst, logger),
		logger:  logger,
		ops:     make(map[string]string),
	}
}

// Register binds name to a GET on urlTemplate, relative to the base URL.
// Placeholders are written {name} and filled from Args.Path.
func (c *RESTCaller) Register(name, urlTemplate string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops[name] = strings.TrimLeft(urlTemplate, "/")
}

// Operations returns the registered operation names.
func (c *RESTCaller) Operations() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.ops))
	for name := range c.ops {
		names = append(names, name)
	}
	return names
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *RESTCaller) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// Call performs the registered operation. It resolves with the response body
// or fails with a *TransportError; it never retries.
func (c *RESTCaller) Call(ctx context.Context, op string, args Args) (json.RawMessage, error) {
	c.mu.RLock()
	tmpl, ok := c.ops[op]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, op)
	}

	label := args.Label
	if label == "" {
		label = op
	}

	u, err := c.buildURL(tmpl, args)
	if err != nil {
		return nil, fmt.Errorf("build %s url: %w", op, err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	trackerRequestDuration.WithLabelValues(op).Observe(duration.Seconds())

	if err != nil {
		trackerErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		trackerRequestsTotal.WithLabelValues(op, "network_error").Inc()
		c.logger.Error().Err(err).Str("operation", op).Str("key", label).Dur("duration", duration).Msg("Tracker request failed")
		return nil, &TransportError{
			Operation:  op,
			Label:      label,
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		trackerErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &TransportError{
			Operation:  op,
			Label:      label,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read response body",
			Err:        err,
		}
	}

	trackerRequestsTotal.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		class := classifyStatus(resp.StatusCode)
		trackerErrorsTotal.WithLabelValues(string(class)).Inc()
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		c.logger.Warn().
			Str("operation", op).
			Str("key", label).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Dur("duration", duration).
			Msg("Tracker request error")
		return nil, &TransportError{
			Operation:  op,
			Label:      label,
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Message:    resp.Status,
			Body:       body,
		}
	}

	c.logger.Info().
		Str("operation", op).
		Str("key", label).
		Dur("duration", duration).
		Msg("Tracker request")

	return json.RawMessage(body), nil
}

// buildURL expands the template and appends the query string.
func (c *RESTCaller) buildURL(tmpl string, args Args) (string, error) {
	path := tmpl
	for name, value := range args.Path {
		path = strings.ReplaceAll(path, "{"+name+"}", url.PathEscape(value))
	}
	if i := strings.Index(path, "{"); i >= 0 {
		return "", fmt.Errorf("unfilled placeholder in %q", path)
	}

	u := c.baseURL + "/" + path
	if len(args.Query) > 0 {
		u += "?" + args.Query.Encode()
	}
	return u, nil
}

// registerDefaults binds the tracker operations used by the client.
func registerDefaults(c *RESTCaller) {
	c.Register(OpProjects, "rest/api/2/project")
	c.Register(OpSearch, "rest/api/2/search")
	c.Register(OpWorklog, "rest/api/2/issue/{issue}/worklog")
	c.Register(OpIssue, "rest/api/2/issue/{issue}")
	c.Register(OpUser, "rest/api/2/user")
	c.Register(OpSprints, "rest/agile/1.0/board/{board}/sprint")
}
