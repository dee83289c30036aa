// Package api provides the administrative HTTP surface for the scan system.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/rankly-scanner/internal/job"
	"github.com/rankly-scanner/internal/models"
	"github.com/rankly-scanner/internal/scheduler"
	"github.com/rankly-scanner/internal/storage"
)

// Service interfaces for dependency injection and testing

// PoolControllerInterface defines the pool operations exposed over HTTP
type PoolControllerInterface interface {
	Start(ctx context.Context) error
	Stop() error
	IsActive() bool
	RunOnce(ctx context.Context) error
	ForceCleanup(ctx context.Context) (*job.CleanupReport, error)
	EmergencyReset()
	SystemStatus(ctx context.Context) (*job.SystemStatus, error)
	PerformanceMetrics() *job.PerformanceMetrics
	HealthReport(ctx context.Context) *job.HealthReport
}

// SchedulerInterface defines the scheduler operations exposed over HTTP
type SchedulerInterface interface {
	RunDueScans(ctx context.Context, now time.Time) (*scheduler.SweepSummary, error)
	IsRunning() bool
	LastSweep() *scheduler.SweepSummary
}

// JobReaderInterface reads job records for the progress endpoint
type JobReaderInterface interface {
	GetByID(ctx context.Context, jobID string) (*models.AnalysisJob, error)
}

// ProgressCacheInterface reads cached live progress snapshots and holds the
// short-lived scanner status cache
type ProgressCacheInterface interface {
	GetJobProgress(ctx context.Context, jobID string) (*storage.JobProgress, error)
	SetScannerStatus(ctx context.Context, status interface{}, ttl time.Duration) error
	GetScannerStatus(ctx context.Context, dest interface{}) (bool, error)
}

// RankingReaderInterface lists persisted ranking history
type RankingReaderInterface interface {
	ListByBusiness(ctx context.Context, businessID string, limit int) ([]*models.RankingRecord, error)
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	pool       PoolControllerInterface
	scheduler  SchedulerInterface
	jobs       JobReaderInterface
	progress   ProgressCacheInterface
	rankings   RankingReaderInterface
	config     *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultServerConfig returns sensible server timeouts
func DefaultServerConfig(host, port string) *ServerConfig {
	return &ServerConfig{
		Host:            host,
		Port:            port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	pool PoolControllerInterface,
	sched SchedulerInterface,
	jobs JobReaderInterface,
	progress ProgressCacheInterface,
	rankings RankingReaderInterface,
) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		pool:      pool,
		scheduler: sched,
		jobs:      jobs,
		progress:  progress,
		rankings:  rankings,
		config:    config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Scanner control surface
	api.HandleFunc("/scanner/status", s.handleScannerStatus).Methods("GET")
	api.HandleFunc("/scanner/control", s.handleScannerControl).Methods("POST")

	// Job progress endpoints
	api.HandleFunc("/jobs/{id}", s.handleGetJob).Methods("GET")

	// Ranking history
	api.HandleFunc("/businesses/{id}/rankings", s.handleListRankings).Methods("GET")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "rankly-scanner",
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	log.Printf("Starting API server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the underlying router for tests
func (s *Server) Router() http.Handler {
	return s.router
}
