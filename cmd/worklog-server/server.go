package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/jira-worklog/pkg/jira"
	"github.com/Sternrassler/jira-worklog/pkg/logging"
	"github.com/Sternrassler/jira-worklog/pkg/metrics"
	"github.com/Sternrassler/jira-worklog/pkg/worklog"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the worklog HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		h := &handlers{
			tracker:    a.tracker,
			aggregator: a.aggregator,
			jiraURL:    cfg.JiraURL,
		}
		return serve(":"+cfg.Port, newRouter(h))
	},
}

func init() {
	serveCmd.Flags().StringVarP(&cfg.Port, "port", "p", cfg.Port, "HTTP port (PORT)")
}

// serve runs srv until SIGINT/SIGTERM, then shuts down gracefully.
func serve(addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return err
	}

	log.Info().Msg("Server exited")
	return nil
}

// projectSource lists projects and board sprints.
type projectSource interface {
	Projects(ctx context.Context) ([]jira.Project, error)
	Sprints(ctx context.Context, boardID int) ([]jira.Sprint, error)
}

// worklogSource runs the worklog pipeline.
type worklogSource interface {
	Worklog(ctx context.Context, q worklog.Query) ([]*worklog.Entry, error)
}

type handlers struct {
	tracker    projectSource
	aggregator worklogSource
	jiraURL    string
}

func newRouter(h *handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logging.NewLogger(logging.ComponentServer)))

	r.Get("/health", h.health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/projects", h.projects)
		r.Get("/config", h.config)
		r.Get("/worklog/{project}/{month}", h.worklogMonth)
		r.Get("/worklog/{project}/{minDate}/{maxDate}", h.worklogRange)
		r.Get("/boards/{board}/sprints", h.sprints)
	})

	return r
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *handlers) projects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.tracker.Projects(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (h *handlers) config(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"jiraUrl": h.jiraURL})
}

func (h *handlers) worklogMonth(w http.ResponseWriter, r *http.Request) {
	minDate, maxDate, err := worklog.MonthRange(chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, err)
		return
	}
	h.worklog(w, r, worklog.Query{
		ProjectKey: chi.URLParam(r, "project"),
		MinDate:    minDate,
		MaxDate:    maxDate,
	})
}

func (h *handlers) worklogRange(w http.ResponseWriter, r *http.Request) {
	h.worklog(w, r, worklog.Query{
		ProjectKey: chi.URLParam(r, "project"),
		MinDate:    chi.URLParam(r, "minDate"),
		MaxDate:    chi.URLParam(r, "maxDate"),
	})
}

func (h *handlers) worklog(w http.ResponseWriter, r *http.Request, q worklog.Query) {
	entries, err := h.aggregator.Worklog(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []*worklog.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *handlers) sprints(w http.ResponseWriter, r *http.Request) {
	board, err := strconv.Atoi(chi.URLParam(r, "board"))
	if err != nil || board <= 0 {
		writeError(w, &jira.ValidationError{Field: "board", Value: chi.URLParam(r, "board")})
		return
	}
	sprints, err := h.tracker.Sprints(r.Context(), board)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sprints)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps validation errors to 400 and everything else to 502.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusBadGateway
	if jira.IsValidation(err) {
		code = http.StatusBadRequest
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			event := logger.Info()
			if ww.Status() >= 500 {
				event = logger.Warn()
			}
			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("HTTP request")
		})
	}
}
