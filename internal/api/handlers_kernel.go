package api

import (
	"net/http"

	"agentdesk/internal/kernel"
)

type permissionsResponse struct {
	Permissions kernel.PermissionSet `json:"permissions"`
	Changed     bool                 `json:"changed"`
}

func (s *Server) handleGetPermissions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, permissionsResponse{Permissions: s.deps.Kernel.Permissions()})
}

// handlePutPermissions replaces the whole permission set; omitted fields take
// their default values.
func (s *Server) handlePutPermissions(w http.ResponseWriter, r *http.Request) {
	perms := kernel.DefaultPermissions()
	if err := decodeJSON(r, &perms); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	changed, err := s.deps.Kernel.SetPermissions(perms)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, permissionsResponse{Permissions: s.deps.Kernel.Permissions(), Changed: changed})
}
