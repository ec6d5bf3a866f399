package web

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/credsync/internal/core"
)

const (
	defaultRefreshLimit = 20
	defaultFailureLimit = 50
	maxLimit            = 1000
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// GET /api/refresh-log?limit=N
func (s *Server) handleRefreshLog(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, defaultRefreshLimit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	records, err := s.deps.Refreshes.RecentRefreshes(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if records == nil {
		records = []core.RefreshLogRecord{}
	}
	writeJSON(w, map[string]any{"refreshes": records})
}

// GET /api/validation/summary?run_id=N
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	runID, err := queryRunID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var summary core.Summary
	err = s.withValidator(r.Context(), func(v *core.Validator) error {
		summary, err = v.Summary(r.Context(), runID)
		return err
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"runId": runID, "summary": summary})
}

// GET /api/validation/failures?run_id=N&limit=N
func (s *Server) handleFailures(w http.ResponseWriter, r *http.Request) {
	runID, err := queryRunID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	limit, err := queryLimit(r, defaultFailureLimit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var failures []core.ValidationResultRecord
	err = s.withValidator(r.Context(), func(v *core.Validator) error {
		failures, err = v.FailureDetails(r.Context(), runID, limit)
		return err
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if failures == nil {
		failures = []core.ValidationResultRecord{}
	}
	writeJSON(w, map[string]any{"runId": runID, "failures": failures})
}

// POST /api/validation/runs?run_type=OnDemand
//
// Responds 201 with the run, or 204 when the engine produced none.
func (s *Server) handleRunValidation(w http.ResponseWriter, r *http.Request) {
	runType := core.RunOnDemand
	if raw := r.URL.Query().Get("run_type"); raw != "" {
		rt, err := core.ParseRunType(raw)
		if err != nil {
			s.respondError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
		runType = rt
	}

	var run *core.RunResult
	err := s.withValidator(r.Context(), func(v *core.Validator) error {
		var err error
		run, err = v.RunAll(r.Context(), runType)
		return err
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if run == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSONStatus(w, http.StatusCreated, run)
}

// withValidator opens a Validator for the duration of fn.
func (s *Server) withValidator(ctx context.Context, fn func(*core.Validator) error) error {
	if err := s.sessions.acquire(ctx); err != nil {
		return err
	}
	defer s.sessions.release()

	v, err := s.deps.OpenValidator(ctx)
	if err != nil {
		return err
	}
	defer v.Close()
	return fn(v)
}

func queryRunID(r *http.Request) (*int64, error) {
	raw := r.URL.Query().Get("run_id")
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("%w: run_id must be a positive integer", errBadRequest)
	}
	return &id, nil
}

func queryLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > maxLimit {
		return 0, fmt.Errorf("%w: limit must be between 0 and %d", errBadRequest, maxLimit)
	}
	return n, nil
}
