package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// verifyRequest is the JSON body for POST /v1/instances/{id}/tasks/{taskID}/verify.
type verifyRequest struct {
	Solution string `json:"solution"`
}

func (s *Server) handleVerifyTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	taskID := chi.URLParam(r, "taskID")

	var req verifyRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Solution == "" {
		s.writeError(w, http.StatusBadRequest, "solution is required")
		return
	}

	// A wrong answer or an unavailable verifier is a normal result, not an
	// error; only state conflicts and lookups fail here.
	result, err := s.engine.SubmitSolution(r.Context(), id, taskID, req.Solution)
	if err != nil {
		s.writeEngineError(w, "verify task", err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	progress, err := s.engine.GetProgress(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, "get progress", err)
		return
	}

	s.writeJSON(w, http.StatusOK, progress)
}

// nextTaskResponse is the JSON response for GET /v1/instances/{id}/next-task.
type nextTaskResponse struct {
	Task *taskSummary `json:"task"`
}

type taskSummary struct {
	ID       string `json:"id"`
	Order    int    `json:"order"`
	Title    string `json:"title"`
	Points   int    `json:"points"`
	HintText string `json:"hint_text,omitempty"`
}

func (s *Server) handleNextTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	task, err := s.engine.NextTask(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, "next task", err)
		return
	}

	resp := nextTaskResponse{}
	if task != nil {
		resp.Task = &taskSummary{
			ID:       task.ID,
			Order:    task.Order,
			Title:    task.Title,
			Points:   task.Points,
			HintText: task.HintText,
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	views, err := s.engine.InstanceTasks(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, "list tasks", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"tasks": views})
}
