package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"labengine/internal/catalog"
	"labengine/internal/engine"
	"labengine/internal/model"
	"labengine/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBodySize      = 1 << 20 // 1 MB

	userIDHeader = "X-User-ID"
)

// listInstancesResponse wraps the paginated list response.
type listInstancesResponse struct {
	Instances []*model.LabInstance `json:"instances"`
	Total     int                  `json:"total"`
	Limit     int                  `json:"limit"`
	Offset    int                  `json:"offset"`
}

func (s *Server) handleStartInstance(w http.ResponseWriter, r *http.Request) {
	environmentID := chi.URLParam(r, "environmentID")
	userID := r.Header.Get(userIDHeader)
	if userID == "" {
		s.writeError(w, http.StatusBadRequest, "X-User-ID header is required")
		return
	}

	inst, err := s.engine.StartInstance(r.Context(), userID, environmentID)
	if err != nil {
		s.writeEngineError(w, "start instance", err)
		return
	}

	// A fresh instance is 202: provisioning continues in the background and
	// the caller polls GET /v1/instances/{id}. An existing live instance is
	// returned as-is with 200.
	status := http.StatusOK
	if inst.State == model.StateProvisioning {
		status = http.StatusAccepted
	}
	s.writeJSON(w, status, inst)
}

func (s *Server) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	inst, err := s.engine.GetInstance(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, "get instance", err)
		return
	}

	s.writeJSON(w, http.StatusOK, inst)
}

func (s *Server) handleListInstances(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		s.writeError(w, http.StatusBadRequest, "user_id query parameter is required")
		return
	}

	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	instances, total, err := s.engine.ListUserInstances(r.Context(), userID, limit, offset)
	if err != nil {
		s.logger.Error("list instances", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list instances")
		return
	}

	if instances == nil {
		instances = []*model.LabInstance{}
	}

	s.writeJSON(w, http.StatusOK, listInstancesResponse{
		Instances: instances,
		Total:     total,
		Limit:     limit,
		Offset:    offset,
	})
}

func (s *Server) handleTerminateInstance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	inst, err := s.engine.TerminateInstance(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, "terminate instance", err)
		return
	}

	s.writeJSON(w, http.StatusOK, inst)
}

func (s *Server) handleRetryProvisioning(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	inst, err := s.engine.RetryProvisioning(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, "retry provisioning", err)
		return
	}

	s.writeJSON(w, http.StatusAccepted, inst)
}

// writeEngineError maps engine and collaborator errors onto HTTP statuses:
// missing records are 404, state conflicts are 409, everything else is a 500.
func (s *Server) writeEngineError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "instance not found")
	case errors.Is(err, catalog.ErrUnknownEnvironment):
		s.writeError(w, http.StatusNotFound, "unknown environment")
	case errors.Is(err, engine.ErrUnknownTask):
		s.writeError(w, http.StatusNotFound, "unknown task")
	case errors.Is(err, store.ErrInvalidTransition):
		s.writeError(w, http.StatusConflict, "invalid state transition")
	case errors.Is(err, store.ErrAlreadyCompleted):
		s.writeError(w, http.StatusConflict, "task already completed")
	case errors.Is(err, engine.ErrInstanceNotRunning):
		s.writeError(w, http.StatusConflict, "instance is not running")
	default:
		s.logger.Error(op, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}
