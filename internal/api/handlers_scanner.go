package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/rankly-scanner/internal/job"
	"github.com/rankly-scanner/internal/scheduler"
)

// validActions enumerates the accepted control actions, in documentation order
var validActions = []string{
	"start", "stop", "run-once", "force-scan", "force-cleanup", "emergency-reset",
}

// controlResponse is the response shape for every control action
type controlResponse struct {
	Success bool                     `json:"success"`
	Running bool                     `json:"running"`
	Status  *job.SystemStatus        `json:"status,omitempty"`
	Message string                   `json:"message,omitempty"`
	Sweep   *scheduler.SweepSummary  `json:"sweep,omitempty"`
	Cleanup *job.CleanupReport       `json:"cleanup,omitempty"`
}

// statusResponse is the response shape for GET /api/scanner/status
type statusResponse struct {
	Status      *job.SystemStatus       `json:"status"`
	Message     string                  `json:"message"`
	Performance *job.PerformanceMetrics `json:"performance"`
	Health      *job.HealthReport       `json:"health"`
	LastSweep   *scheduler.SweepSummary `json:"lastSweep,omitempty"`
}

// scannerStatusTTL caps how stale a cached status response can be. Control
// actions refresh the cache immediately, so the TTL only covers counter drift.
const scannerStatusTTL = 5 * time.Second

// buildStatusResponse assembles the full status payload from the pool and
// scheduler
func (s *Server) buildStatusResponse(ctx context.Context) (*statusResponse, error) {
	status, err := s.pool.SystemStatus(ctx)
	if err != nil {
		return nil, err
	}

	message := "Scanner is stopped"
	if status.Active {
		message = "Scanner is running"
	}

	return &statusResponse{
		Status:      status,
		Message:     message,
		Performance: s.pool.PerformanceMetrics(),
		Health:      s.pool.HealthReport(ctx),
		LastSweep:   s.scheduler.LastSweep(),
	}, nil
}

// refreshStatusCache rebuilds the cached status snapshot. Best-effort, cache
// failures never fail the request.
func (s *Server) refreshStatusCache(ctx context.Context) {
	resp, err := s.buildStatusResponse(ctx)
	if err != nil {
		return
	}
	if err := s.progress.SetScannerStatus(ctx, resp, scannerStatusTTL); err != nil {
		log.Printf("Scanner status cache write failed: %v", err)
	}
}

// handleScannerStatus handles GET /api/scanner/status. Status polling is
// served from the Redis cache when a fresh snapshot exists.
func (s *Server) handleScannerStatus(w http.ResponseWriter, r *http.Request) {
	var cached statusResponse
	if found, err := s.progress.GetScannerStatus(r.Context(), &cached); err == nil && found {
		respondJSON(w, http.StatusOK, cached)
		return
	}

	resp, err := s.buildStatusResponse(r.Context())
	if err != nil {
		log.Printf("SystemStatus error: %v", err)
		respondError(w, http.StatusInternalServerError, ErrCodeOperationError, "Failed to read scanner status", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	if err := s.progress.SetScannerStatus(r.Context(), resp, scannerStatusTTL); err != nil {
		log.Printf("Scanner status cache write failed: %v", err)
	}

	respondJSON(w, http.StatusOK, *resp)
}

// handleScannerControl handles POST /api/scanner/control
func (s *Server) handleScannerControl(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string `json:"action"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	resp := controlResponse{Success: true}

	switch req.Action {
	case "start":
		if err := s.pool.Start(r.Context()); err != nil {
			s.respondControlError(w, "start", err)
			return
		}
		resp.Message = "Scanner started"

	case "stop":
		if err := s.pool.Stop(); err != nil {
			s.respondControlError(w, "stop", err)
			return
		}
		resp.Message = "Scanner stopped, in-flight jobs will finish"

	case "run-once":
		if err := s.pool.RunOnce(r.Context()); err != nil {
			s.respondControlError(w, "run-once", err)
			return
		}
		resp.Message = "Dispatch cycle executed"

	case "force-scan":
		summary, err := s.scheduler.RunDueScans(r.Context(), time.Now())
		if err != nil {
			s.respondControlError(w, "force-scan", err)
			return
		}
		resp.Sweep = summary
		resp.Message = "Due-scan sweep executed"

	case "force-cleanup":
		report, err := s.pool.ForceCleanup(r.Context())
		if err != nil {
			s.respondControlError(w, "force-cleanup", err)
			return
		}
		resp.Cleanup = report
		resp.Message = "Maintenance sweep executed"

	case "emergency-reset":
		s.pool.EmergencyReset()
		resp.Message = "In-memory pool state cleared"

	default:
		respondError(w, http.StatusBadRequest, ErrCodeUnknownAction,
			"Unknown action: "+req.Action, map[string]interface{}{
				"validActions": validActions,
			})
		return
	}

	resp.Running = s.pool.IsActive()
	if status, err := s.pool.SystemStatus(r.Context()); err == nil {
		resp.Status = status
	}

	// The action changed scanner state, do not leave a stale snapshot behind
	s.refreshStatusCache(r.Context())

	respondJSON(w, http.StatusOK, resp)
}

// respondControlError reports a failed control action as a structured error
func (s *Server) respondControlError(w http.ResponseWriter, action string, err error) {
	log.Printf("Control action %q failed: %v", action, err)
	respondError(w, http.StatusInternalServerError, ErrCodeOperationError,
		"Action failed: "+action, map[string]interface{}{
			"error": err.Error(),
		})
}
