// Package server exposes the cached APOD API over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/apex/log"

	apicache "github.com/krisalay/apod-cache/api"
	"github.com/krisalay/apod-cache/apod"
	"github.com/krisalay/apod-cache/metrics"
	"github.com/krisalay/apod-cache/types"
)

// Fetcher is the upstream capability the server falls back to on a miss.
type Fetcher interface {
	Fetch(ctx context.Context, q apod.Query) (json.RawMessage, error)
}

// Server routes APOD requests through the cache to the upstream fetcher.
type Server struct {
	cache   apicache.Cache
	fetcher Fetcher
	metrics *metrics.Metrics
	now     func() time.Time
	mux     *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records per-route request metrics and serves them on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithClock overrides the clock used to resolve "today".
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// New wires the routes. The cache is owned by the caller.
func New(c apicache.Cache, f Fetcher, opts ...Option) *Server {
	s := &Server{
		cache:   c,
		fetcher: f,
		now:     time.Now,
		mux:     http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/apod", s.handleByDate)
	s.mux.HandleFunc("GET /api/apod/{$}", s.handleByDate)
	s.mux.HandleFunc("GET /api/apod/range", s.handleRange)
	s.mux.HandleFunc("GET /api/apod/recent", s.handleRecent)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}

	return s
}

// Handler returns the routes wrapped in CORS and request logging.
func (s *Server) Handler() http.Handler {
	return s.logRequests(cors(s.mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleByDate serves /api/apod?date=YYYY-MM-DD, defaulting to today (UTC).
func (s *Server) handleByDate(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = apod.Today(s.now())
	}

	s.serveCached(w, r, apod.KeyForDate(date), apod.Query{Date: date}, "Failed to fetch APOD")
}

// handleRange serves /api/apod/range?start=...&end=...
func (s *Server) handleRange(w http.ResponseWriter, r *http.Request) {
	start := r.URL.Query().Get("start")
	end := r.URL.Query().Get("end")
	if start == "" || end == "" {
		writeError(w, http.StatusBadRequest, "start and end are required")
		return
	}

	s.serveCached(w, r, apod.KeyForRange(start, end), apod.Query{StartDate: start, EndDate: end}, "Failed to fetch APOD range")
}

// handleRecent serves /api/apod/recent?count=N, the last N days ending today.
func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	count, err := apod.ParseCount(r.URL.Query().Get("count"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start, end := apod.RecentWindow(s.now(), count)
	s.serveCached(w, r, apod.KeyForRecent(count), apod.Query{StartDate: start, EndDate: end}, "Failed to fetch recent APODs")
}

// serveCached answers from the cache, fetching and storing on a miss. A
// failed fetch leaves the cache untouched and answers 502.
func (s *Server) serveCached(w http.ResponseWriter, r *http.Request, key string, q apod.Query, failure string) {
	loader := types.LoaderFunc(func(ctx context.Context, _ string) (any, error) {
		return s.fetcher.Fetch(ctx, q)
	})

	value, cached, err := s.cache.Load(r.Context(), key, loader)
	if err != nil {
		entry := log.WithError(err).WithField("key", key)
		var uerr *apod.UpstreamError
		if errors.As(err, &uerr) {
			entry = entry.WithField("upstream_status", uerr.StatusCode)
		}
		entry.Error("upstream fetch failed")

		writeError(w, http.StatusBadGateway, failure)
		return
	}

	if cached {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	writeJSON(w, http.StatusOK, value)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeJSON writes v as the response body. Raw upstream payloads are passed
// through byte for byte.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	if raw, ok := v.(json.RawMessage); ok {
		w.WriteHeader(status)
		_, _ = w.Write(raw)
		return
	}

	body, err := json.Marshal(v)
	if err != nil {
		log.WithError(err).Error("failed to encode response")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Internal Server Error"}`))
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
