package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"frabcal/internal/config"
	appLog "frabcal/internal/log"
	"frabcal/internal/model"
	"frabcal/internal/pipeline"
	"frabcal/internal/schedule"
)

// Server exposes the state of a watching Runner over HTTP.
type Server struct {
	cfg    *config.Config
	runner *pipeline.Runner
	mux    *http.ServeMux

	// In-memory cache for /api/occurrences so that repeated requests do not
	// re-read and re-expand the feed.
	indexMu    sync.RWMutex
	indexCache *indexCache
}

type indexCache struct {
	idx       *schedule.Index
	updatedAt time.Time
}

const indexCacheTTL = 30 * time.Second

// NewServer constructs a new Server. registry may be nil, in which case
// /metrics is not served.
func NewServer(cfg *config.Config, runner *pipeline.Runner, registry *prometheus.Registry) *Server {
	s := &Server{
		cfg:    cfg,
		runner: runner,
		mux:    http.NewServeMux(),
	}
	s.registerRoutes(registry)
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials leave the API open.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="frabcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ListenAndServe serves on cfg.Listen until ctx is cancelled, then shuts the
// server down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes(registry *prometheus.Registry) {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/schedule.xml", s.handleSchedule)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/occurrences", s.handleOccurrences)
	if registry != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleSchedule serves the last written schedule from disk.
func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	// http.ServeFile answers 404 for a schedule that was never written.
	http.ServeFile(w, r, s.cfg.Output)
}

// statusResponse is the JSON response shape for /api/status.
type statusResponse struct {
	Ran         bool           `json:"ran"`
	OK          bool           `json:"ok"`
	Error       string         `json:"error,omitempty"`
	Finished    time.Time      `json:"finished,omitzero"`
	DurationMs  int64          `json:"duration_ms"`
	RangeStart  string         `json:"range_start,omitempty"`
	RangeEnd    string         `json:"range_end,omitempty"`
	Records     int            `json:"records"`
	Occurrences int            `json:"occurrences"`
	Suppressed  int            `json:"suppressed"`
	Days        int            `json:"days"`
	Events      int            `json:"events"`
	Hidden      int            `json:"hidden"`
	FromCache   bool           `json:"from_cache"`
	Warnings    map[string]int `json:"warnings,omitempty"`
}

// handleStatus reports the outcome of the most recent conversion run.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st, ok := s.runner.Last()
	if !ok {
		writeJSON(w, http.StatusOK, statusResponse{})
		return
	}

	res := st.Result
	resp := statusResponse{
		Ran:         true,
		OK:          st.Err == nil,
		Finished:    st.Finished,
		DurationMs:  res.Duration.Milliseconds(),
		Records:     res.Records,
		Occurrences: res.Occurrences,
		Suppressed:  res.Suppressed,
		Days:        res.Days,
		Events:      res.Events,
		Hidden:      res.Hidden,
		FromCache:   res.FromCache,
	}
	if st.Err != nil {
		resp.Error = st.Err.Error()
	}
	if !res.Range.Start.IsZero() {
		resp.RangeStart = res.Range.Start.String()
		resp.RangeEnd = res.Range.End.String()
	}
	if len(res.Warnings) > 0 {
		resp.Warnings = make(map[string]int, len(res.Warnings))
		for k, n := range res.Warnings {
			resp.Warnings[string(k)] = n
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// occurrencesResponse is the JSON response shape for /api/occurrences.
type occurrencesResponse struct {
	Occurrences     []occurrenceDTO `json:"occurrences"`
	From            string          `json:"from"`
	To              string          `json:"to"`
	DisplayTimeZone string          `json:"display_timezone"`
}

// occurrenceDTO is a JSON-friendly view of occurrences.
type occurrenceDTO struct {
	UID         string    `json:"uid"`
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	AllDay      bool      `json:"all_day"`
	Exception   bool      `json:"exception"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// handleOccurrences returns indexed occurrences within a window of days.
//
// GET /api/occurrences?from=2024-01-01&days=7
//   - from: first day (default: today in the configured timezone)
//   - days: number of days (default 7)
func (s *Server) handleOccurrences(w http.ResponseWriter, r *http.Request) {
	idx, err := s.index(r.Context())
	if err != nil {
		appLog.Error("api occurrences: load failed", err)
		writeError(w, http.StatusInternalServerError, "failed to load feed")
		return
	}
	loc := idx.Range().Loc

	q := r.URL.Query()
	from := model.DateOf(time.Now(), loc)
	if v := q.Get("from"); v != "" {
		d, err := model.ParseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from date")
			return
		}
		from = d
	}
	days := parseIntDefault(q.Get("days"), 7)
	if days <= 0 {
		days = 7
	}
	to := from.AddDays(days - 1)

	dtos := make([]occurrenceDTO, 0)
	for _, d := range idx.Dates() {
		if d.Before(from) || d.After(to) {
			continue
		}
		for _, occ := range idx.OccurrencesOn(d) {
			src := occ.Source
			dtos = append(dtos, occurrenceDTO{
				UID:         src.UID,
				Summary:     src.Summary,
				Description: src.Description,
				AllDay:      src.AllDay,
				Exception:   src.IsRecurrenceException(),
				Start:       occ.Start,
				End:         occ.Start.Add(src.Duration()),
			})
		}
	}

	writeJSON(w, http.StatusOK, occurrencesResponse{
		Occurrences:     dtos,
		From:            from.String(),
		To:              to.String(),
		DisplayTimeZone: loc.String(),
	})
}

// index returns the cached occurrence index, reloading it once the cache is
// older than indexCacheTTL.
func (s *Server) index(ctx context.Context) (*schedule.Index, error) {
	s.indexMu.RLock()
	ic := s.indexCache
	s.indexMu.RUnlock()
	if ic != nil && time.Since(ic.updatedAt) < indexCacheTTL {
		return ic.idx, nil
	}

	idx, err := s.runner.Index(ctx)
	if err != nil {
		return nil, err
	}

	s.indexMu.Lock()
	s.indexCache = &indexCache{idx: idx, updatedAt: time.Now()}
	s.indexMu.Unlock()
	return idx, nil
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
