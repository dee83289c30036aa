package api

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/rankly-scanner/internal/models"
	"github.com/rankly-scanner/internal/storage"
)

// jobResponse combines the persisted job record with the cached live
// progress snapshot, when one exists.
type jobResponse struct {
	Job      *models.AnalysisJob  `json:"job"`
	Progress *storage.JobProgress `json:"progress,omitempty"`
}

// handleGetJob handles GET /api/jobs/:id
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	jobID := vars["id"]
	if jobID == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Job ID required", nil)
		return
	}

	record, err := s.jobs.GetByID(r.Context(), jobID)
	if err != nil {
		log.Printf("GetJob error: %v", err)
		respondCategorizedError(w, err)
		return
	}
	if record == nil {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "Job not found: "+jobID, nil)
		return
	}

	resp := jobResponse{Job: record}
	if s.progress != nil {
		// Live snapshot is best-effort: a cache miss or error falls back to
		// the persisted record
		if snapshot, err := s.progress.GetJobProgress(r.Context(), jobID); err == nil {
			resp.Progress = snapshot
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

// handleListRankings handles GET /api/businesses/:id/rankings
func (s *Server) handleListRankings(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	businessID := vars["id"]
	if businessID == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Business ID required", nil)
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 || parsed > 1000 {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "limit must be between 1 and 1000", nil)
			return
		}
		limit = parsed
	}

	records, err := s.rankings.ListByBusiness(r.Context(), businessID, limit)
	if err != nil {
		log.Printf("ListRankings error: %v", err)
		respondCategorizedError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"businessId": businessID,
		"count":      len(records),
		"rankings":   records,
	})
}
