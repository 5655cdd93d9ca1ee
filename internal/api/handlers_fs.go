package api

import (
	"net/http"
	"strings"
)

type fsWriteRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type fsPathRequest struct {
	Path string `json:"path"`
}

type fsMoveRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func queryPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	p := strings.TrimSpace(r.URL.Query().Get("path"))
	if p == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "path is required")
		return "", false
	}
	return p, true
}

func (s *Server) handleFSList(w http.ResponseWriter, r *http.Request) {
	p, ok := queryPath(w, r)
	if !ok {
		return
	}
	entries, err := s.deps.Kernel.Facade().FS().List(p)
	if err != nil {
		s.writeFailure(w, "list directory", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleFSRead(w http.ResponseWriter, r *http.Request) {
	p, ok := queryPath(w, r)
	if !ok {
		return
	}
	data, err := s.deps.Kernel.Facade().FS().Read(p)
	if err != nil {
		s.writeFailure(w, "read file", err)
		return
	}
	writeJSON(w, http.StatusOK, fsWriteRequest{Path: p, Content: string(data)})
}

func (s *Server) handleFSStat(w http.ResponseWriter, r *http.Request) {
	p, ok := queryPath(w, r)
	if !ok {
		return
	}
	entry, err := s.deps.Kernel.Facade().FS().Stat(p)
	if err != nil {
		s.writeFailure(w, "stat", err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleFSWrite(w http.ResponseWriter, r *http.Request) {
	var req fsWriteRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Path) == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "path and content are required")
		return
	}
	if err := s.deps.Kernel.Facade().FS().Write(req.Path, []byte(req.Content)); err != nil {
		s.writeFailure(w, "write file", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFSMkdir(w http.ResponseWriter, r *http.Request) {
	var req fsPathRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Path) == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "path is required")
		return
	}
	if err := s.deps.Kernel.Facade().FS().Mkdir(req.Path); err != nil {
		s.writeFailure(w, "create directory", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFSMove(w http.ResponseWriter, r *http.Request) {
	var req fsMoveRequest
	if err := decodeJSON(r, &req); err != nil || req.From == "" || req.To == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "from and to are required")
		return
	}
	if err := s.deps.Kernel.Facade().FS().Move(req.From, req.To); err != nil {
		s.writeFailure(w, "move", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFSDelete(w http.ResponseWriter, r *http.Request) {
	p, ok := queryPath(w, r)
	if !ok {
		return
	}
	if err := s.deps.Kernel.Facade().FS().Delete(p); err != nil {
		s.writeFailure(w, "delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
