package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/voyagen/tvguide/api"
	"github.com/voyagen/tvguide/guide"
	"github.com/voyagen/tvguide/internal/config"
	"github.com/voyagen/tvguide/internal/service"
	"github.com/voyagen/tvguide/internal/store"
)

// Guide is the part of *guide.Client the API serves.
type Guide interface {
	GetChannels(ctx context.Context) ([]guide.Channel, error)
	GetSchedules(ctx context.Context, chs []guide.ChannelRef, date time.Time) (map[string]*guide.Schedule, error)
}

// SyncLocks reports whether a sync of a date is running. *cache.Redis
// implements it.
type SyncLocks interface {
	Syncing(ctx context.Context, date string) (bool, error)
}

// Server holds dependencies for the HTTP API.
type Server struct {
	guide Guide
	store store.Store // nil when DATABASE_URL is not set
	locks SyncLocks   // nil when REDIS_URL is not set
	cfg   *config.Config
	mux   *http.ServeMux
}

// New creates a Server and registers routes.
// st and locks may be nil; sync status is then unavailable or reported
// without the in-progress flag.
func New(g Guide, st store.Store, locks SyncLocks, cfg *config.Config) *Server {
	srv := &Server{guide: g, store: st, locks: locks, cfg: cfg, mux: http.NewServeMux()}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	s.mux.HandleFunc("GET /api/channels", s.handleListChannels)
	s.mux.HandleFunc("GET /api/schedules/{date}", s.handleGetSchedules)
	s.mux.HandleFunc("GET /api/syncs/{date}", s.handleLastSync)

	// Docs
	s.mux.HandleFunc("GET /api/docs", handleSwaggerUI)
	s.mux.HandleFunc("GET /api/docs/openapi.yaml", handleOpenAPISpec)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the HTTP server on the configured port.
// It blocks until the server is shut down or ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := ":" + s.cfg.ServerPort
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      withCORS(withLogging(s)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("server shutdown: %v", err)
		}
	}()

	log.Printf("listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ListenAndServe: %w", err)
	}
	return nil
}

// --- handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.guide.GetChannels(r.Context())
	if err != nil {
		writeUpstreamErr(w, err)
		return
	}
	if channels == nil {
		channels = []guide.Channel{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": channels})
}

// scheduleResponse is the JSON form of one guide.Schedule.
type scheduleResponse struct {
	ID       string          `json:"id"`
	Date     string          `json:"date"`
	Programs []guide.Program `json:"programs"`
}

// handleGetSchedules serves the schedules of the channels named by ch
// (repeated or comma separated). Without ch, every channel is requested.
func (s *Server) handleGetSchedules(w http.ResponseWriter, r *http.Request) {
	date, err := service.ParseDate(r.PathValue("date"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	refs := parseChannelIDs(r.URL.Query()["ch"])
	if len(refs) == 0 {
		channels, err := s.guide.GetChannels(r.Context())
		if err != nil {
			writeUpstreamErr(w, err)
			return
		}
		refs = guide.Refs(channels)
	}

	schedules, err := s.guide.GetSchedules(r.Context(), refs, date)
	if err != nil {
		writeUpstreamErr(w, err)
		return
	}

	out := make([]scheduleResponse, 0, len(schedules))
	for _, ref := range refs {
		sch, ok := schedules[ref.ChannelID()]
		if !ok {
			continue
		}
		out = append(out, scheduleResponse{
			ID:       sch.ChannelID(),
			Date:     sch.Date().Format(guide.DateLayout),
			Programs: sch.Programs(),
		})
		// Requests may name a channel twice.
		delete(schedules, ref.ChannelID())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":      date.Format(guide.DateLayout),
		"schedules": out,
	})
}

// syncStatus is the last recorded run of a date plus whether a worker is
// syncing it right now. Run fields are absent when no run was recorded.
type syncStatus struct {
	*store.SyncRun
	Syncing bool `json:"syncing"`
}

func (s *Server) handleLastSync(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeErr(w, http.StatusServiceUnavailable, fmt.Errorf("sync archive is not configured (DATABASE_URL not set)"))
		return
	}
	date, err := service.ParseDate(r.PathValue("date"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	day := date.Format(guide.DateLayout)

	var status syncStatus
	if s.locks != nil {
		status.Syncing, err = s.locks.Syncing(r.Context(), day)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
	}

	status.SyncRun, err = s.store.LastSyncRun(r.Context(), date)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		if !status.Syncing {
			writeErr(w, http.StatusNotFound, fmt.Errorf("no sync recorded for %s", day))
			return
		}
	}
	writeJSON(w, http.StatusOK, status)
}

// --- middleware ---

// withCORS adds CORS headers to every response and handles preflight OPTIONS requests.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// withLogging logs each request with method, status, duration and path.
func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		path := r.URL.Path
		if r.URL.RawQuery != "" {
			path += "?" + r.URL.RawQuery
		}
		log.Printf("%s%-7s\x1b[0m %s%3d\x1b[0m %6s  %s",
			colorForMethod(r.Method), r.Method,
			colorForStatus(sw.status), sw.status,
			formatDuration(time.Since(start)), path,
		)
	})
}

func colorForStatus(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "\x1b[32m" // green
	case code >= 300 && code < 400:
		return "\x1b[36m" // cyan
	case code >= 400 && code < 500:
		return "\x1b[33m" // yellow
	default:
		return "\x1b[31m" // red
	}
}

func colorForMethod(method string) string {
	switch method {
	case http.MethodGet:
		return "\x1b[36m"
	case http.MethodOptions:
		return "\x1b[37m"
	default:
		return "\x1b[33m"
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dus", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}

// --- helpers ---

// APIError is the standard error envelope for all error responses.
type APIError struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
	Kind   string `json:"kind,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// parseChannelIDs accepts both ch=1&ch=2 and ch=1,2.
func parseChannelIDs(values []string) []guide.ChannelRef {
	var refs []guide.ChannelRef
	for _, v := range values {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				refs = append(refs, guide.ID(id))
			}
		}
	}
	return refs
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writeJSON: %v", err)
	}
}

func writeErr(w http.ResponseWriter, status int, err error) {
	if status >= 500 {
		log.Printf("ERROR %d: %v", status, err)
	}
	writeJSON(w, status, APIError{
		Status: status,
		Error:  http.StatusText(status),
		Detail: err.Error(),
	})
}

// writeUpstreamErr reports a failed guide call as 502 with the error kind.
func writeUpstreamErr(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	log.Printf("ERROR %d: %v", status, err)
	apiErr := APIError{
		Status: status,
		Error:  http.StatusText(status),
		Detail: err.Error(),
	}
	var ge *guide.Error
	if errors.As(err, &ge) {
		apiErr.Kind = ge.Kind.String()
	}
	writeJSON(w, status, apiErr)
}

// --- docs handlers ---

func handleOpenAPISpec(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(api.OpenAPISpec)
}

func handleSwaggerUI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, swaggerUIHTML)
}

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>tvguide API</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({url: "/api/docs/openapi.yaml", dom_id: "#swagger-ui"});
  </script>
</body>
</html>`
