package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"agentdesk/internal/windows"
)

type windowMoveRequest struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type windowResizeRequest struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s *Server) handleListWindows(w http.ResponseWriter, r *http.Request) {
	list := s.deps.Kernel.Facade().Windows().List()
	if list == nil {
		list = []windows.Window{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleOpenWindow(w http.ResponseWriter, r *http.Request) {
	var req windows.OpenOptions
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	win, err := s.deps.Kernel.Facade().Windows().Open(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, win)
}

func (s *Server) handleCloseWindow(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Kernel.Facade().Windows().Close(chi.URLParam(r, "windowID")); err != nil {
		s.writeFailure(w, "close window", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFocusWindow(w http.ResponseWriter, r *http.Request) {
	win, err := s.deps.Kernel.Facade().Windows().Focus(chi.URLParam(r, "windowID"))
	if err != nil {
		s.writeFailure(w, "focus window", err)
		return
	}
	writeJSON(w, http.StatusOK, win)
}

func (s *Server) handleMoveWindow(w http.ResponseWriter, r *http.Request) {
	var req windowMoveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	win, err := s.deps.Kernel.Facade().Windows().Move(chi.URLParam(r, "windowID"), req.X, req.Y)
	if err != nil {
		s.writeFailure(w, "move window", err)
		return
	}
	writeJSON(w, http.StatusOK, win)
}

func (s *Server) handleResizeWindow(w http.ResponseWriter, r *http.Request) {
	var req windowResizeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	win, err := s.deps.Kernel.Facade().Windows().Resize(chi.URLParam(r, "windowID"), req.Width, req.Height)
	if errors.Is(err, windows.ErrWindowNotFound) {
		s.writeFailure(w, "resize window", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, win)
}
