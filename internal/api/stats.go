package api

import "net/http"

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	Total              int            `json:"total"`
	ByState            map[string]int `json:"by_state"`
	ByEnvironment      map[string]int `json:"by_environment"`
	CatalogEnvironment int            `json:"catalog_environments"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.InstanceStats(r.Context())
	if err != nil {
		s.logger.Error("get instance stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		Total:              stats.Total,
		ByState:            stats.CountByState,
		ByEnvironment:      stats.CountByEnvironment,
		CatalogEnvironment: len(s.catalog.Environments()),
	})
}
