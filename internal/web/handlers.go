package web

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"

	"github.com/JonMunkholm/aggrada/internal/config"
	"github.com/JonMunkholm/aggrada/internal/ingest"
	"github.com/JonMunkholm/aggrada/internal/logging"
	"github.com/JonMunkholm/aggrada/internal/period"
)

const healthTimeout = 2 * time.Second

// IngestResponse is returned by POST /api/ingest. Metrics are present even
// when the run failed part way.
type IngestResponse struct {
	Metrics *ingest.Metrics `json:"metrics,omitempty"`
	Error   *ErrorResponse  `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		logging.FromContext(ctx).Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handlePeriod parses ?input= in ?tz=.
func (s *Server) handlePeriod(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tz := q.Get("tz")
	if tz == "" {
		tz = s.cfg.Ingest.Timezone
	}

	tr, err := period.Parse(q.Get("input"), tz)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

// handleIntervals tiles ?from=..?to= by ?granularity=.
func (s *Server) handleIntervals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tz := q.Get("tz")
	if tz == "" {
		tz = s.cfg.Ingest.Timezone
	}

	g, err := period.ParseGranularity(q.Get("granularity"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	intervals, err := period.Between(q.Get("from"), q.Get("to"), tz, g)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"granularity": g.String(),
		"intervals":   intervals,
	})
}

func (s *Server) handleIngestStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.limiter.Status())
}

// handleIngest runs a YAML or JSON job posted in the body.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.Ingest.MaxJobSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{
				Error:   "job body too large",
				Message: "The job definition is too large",
				Code:    "JOB001",
			})
			return
		}
		respondError(w, r, errors.Wrap(ingest.ErrInvalidJob, err.Error()))
		return
	}

	job, err := config.ParseJob(body, &s.cfg.Ingest)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.cfg.Ingest.Restrict(&job); err != nil {
		respondError(w, r, err)
		return
	}

	if err := s.limiter.Acquire(r.Context()); err != nil {
		respondError(w, r, err)
		return
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Ingest.Timeout)
	defer cancel()

	logging.FromContext(ctx).Info("ingest requested",
		"file", job.File,
		"source", job.Scope.Source,
		"admin_level", job.Scope.AdminLevel,
	)

	m, err := s.runner.RunFile(ctx, job)
	if err != nil {
		msg := ingest.MapError(err)
		status := statusFor(msg.Code)
		logging.FromContext(ctx).Error("ingest failed", "file", job.File, "error", err, "code", msg.Code)

		er := newErrorResponse(msg)
		resp := IngestResponse{Error: &er}
		if m.RunID != "" {
			resp.Metrics = &m
		}
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusOK, IngestResponse{Metrics: &m})
}
