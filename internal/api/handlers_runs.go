package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if _, ok := s.deps.Scheduler.Task(taskID); !ok {
		writeError(w, http.StatusNotFound, "not_found", "task not found")
		return
	}
	if s.deps.Runs == nil {
		writeError(w, http.StatusNotImplemented, "not_supported", "run history requires the sqlite store")
		return
	}
	limit := parseIntDefault(r.URL.Query().Get("limit"), 20)
	offset := parseIntDefault(r.URL.Query().Get("offset"), 0)
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	runs, err := s.deps.Runs.ListRuns(r.Context(), taskID, limit, offset)
	if err != nil {
		s.writeFailure(w, "list runs", err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}
