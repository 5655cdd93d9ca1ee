package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"agentdesk/internal/core"
	"agentdesk/internal/kernel"
	"agentdesk/internal/scheduler"
	"agentdesk/internal/vfs"
	"agentdesk/internal/windows"
)

func parseIntDefault(value string, def int) int {
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	payload := map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	}
	writeJSON(w, status, payload)
}

// writeFailure maps an operation error to a status code. Unexpected errors are
// logged and reported as internal errors.
func (s *Server) writeFailure(w http.ResponseWriter, op string, err error) {
	switch {
	case kernel.IsCapabilityDenied(err):
		writeError(w, http.StatusForbidden, "capability_denied", err.Error())
	case errors.Is(err, core.ErrInvalidTask):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, scheduler.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, "not_found", "task not found")
	case errors.Is(err, windows.ErrWindowNotFound):
		writeError(w, http.StatusNotFound, "not_found", "window not found")
	case vfs.IsNotExist(err):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, scheduler.ErrTaskCompleted):
		writeError(w, http.StatusConflict, "task_completed", err.Error())
	case errors.Is(err, kernel.ErrSchedulerUnavailable):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
	default:
		s.logger.Error(op, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", op+" failed")
	}
}
