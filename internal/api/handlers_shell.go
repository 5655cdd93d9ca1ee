package api

import (
	"net/http"
	"strings"
)

type shellExecRequest struct {
	Command string `json:"command"`
}

func (s *Server) handleShellExec(w http.ResponseWriter, r *http.Request) {
	var req shellExecRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Command) == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "command is required")
		return
	}
	res, err := s.deps.Kernel.Facade().Shell().Exec(r.Context(), req.Command)
	if err != nil {
		s.writeFailure(w, "exec", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
