package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"labengine/internal/model"
)

// environmentSummary is a catalog listing entry.
type environmentSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	TaskCount   int    `json:"task_count"`
	TotalPoints int    `json:"total_points"`
}

// environmentResponse is the detail view of one environment. Verifier specs
// and solution texts are never exposed here; solutions are disclosed per
// instance through the task listing once a task is completed.
type environmentResponse struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Tasks       []taskSummary `json:"tasks"`
	TotalPoints int           `json:"total_points"`
}

func (s *Server) handleListEnvironments(w http.ResponseWriter, r *http.Request) {
	envs := s.catalog.Environments()

	summaries := make([]environmentSummary, 0, len(envs))
	for _, env := range envs {
		summaries = append(summaries, environmentSummary{
			ID:          env.ID,
			Name:        env.Name,
			TaskCount:   len(env.Tasks),
			TotalPoints: env.TotalPoints(),
		})
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"environments": summaries})
}

func (s *Server) handleGetEnvironment(w http.ResponseWriter, r *http.Request) {
	environmentID := chi.URLParam(r, "environmentID")

	env, err := s.catalog.Environment(environmentID)
	if err != nil {
		s.writeEngineError(w, "get environment", err)
		return
	}

	s.writeJSON(w, http.StatusOK, environmentView(env))
}

func environmentView(env *model.LabEnvironment) environmentResponse {
	resp := environmentResponse{
		ID:          env.ID,
		Name:        env.Name,
		Tasks:       make([]taskSummary, 0, len(env.Tasks)),
		TotalPoints: env.TotalPoints(),
	}
	for i := range env.Tasks {
		task := &env.Tasks[i]
		resp.Tasks = append(resp.Tasks, taskSummary{
			ID:       task.ID,
			Order:    task.Order,
			Title:    task.Title,
			Points:   task.Points,
			HintText: task.HintText,
		})
	}
	return resp
}
