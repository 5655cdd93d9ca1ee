package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"agentdesk/internal/core"
)

type createTaskRequest struct {
	Name            string          `json:"name"`
	Type            core.TaskType   `json:"type"`
	Action          json.RawMessage `json:"action"`
	Schedule        core.Schedule   `json:"schedule"`
	IntervalSeconds *int            `json:"intervalSeconds"`
	NextRun         int64           `json:"nextRun"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.Type = core.TaskType(strings.TrimSpace(string(req.Type)))
	if !req.Type.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_input", "type must be command, swarm, flow or jules")
		return
	}
	action, err := core.DecodeAction(req.Type, req.Action)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid action: "+err.Error())
		return
	}

	task, err := s.deps.Kernel.Facade().Scheduler().Add(r.Context(), core.TaskSpec{
		Name:            req.Name,
		Action:          action,
		Schedule:        req.Schedule,
		IntervalSeconds: req.IntervalSeconds,
		NextRun:         req.NextRun,
	})
	if err != nil {
		s.writeFailure(w, "create task", err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	status := core.TaskStatus(strings.TrimSpace(r.URL.Query().Get("status")))
	switch status {
	case "", core.TaskStatusActive, core.TaskStatusCompleted:
	default:
		writeError(w, http.StatusBadRequest, "invalid_input", "status must be active or completed")
		return
	}
	tasks := s.deps.Kernel.Facade().Scheduler().List()
	res := make([]core.ScheduledTask, 0, len(tasks))
	for _, t := range tasks {
		if status == "" || t.Status == status {
			res = append(res, t)
		}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.deps.Scheduler.Task(chi.URLParam(r, "taskID"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "task not found")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if err := s.deps.Kernel.Facade().Scheduler().Remove(r.Context(), taskID); err != nil {
		s.writeFailure(w, "delete task", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRunTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.deps.Scheduler.RunNow(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		s.writeFailure(w, "run task", err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}
