package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Verification submission
	mux.HandleFunc("/api/verifications", s.app.VerificationHandler.SubmitHandler)            // POST - enqueue one verification
	mux.HandleFunc("/api/verifications/batch", s.app.VerificationHandler.SubmitBatchHandler) // POST - enqueue a batch

	// API routes - Assets (verification outcomes)
	mux.HandleFunc("/api/assets", s.app.AssetHandler.ListAssetsHandler) // GET - list by status, paginated
	mux.HandleFunc("/api/assets/", s.app.AssetHandler.GetAssetHandler)  // GET /{requestId}

	// API routes - Queue
	mux.HandleFunc("/api/queue/stats", s.app.QueueHandler.GetStatsHandler) // GET - queue counters
	mux.HandleFunc("/api/queue/jobs", s.app.QueueHandler.ListJobsHandler)  // GET - list lifecycle rows by state
	mux.HandleFunc("/api/queue/clean", s.app.QueueHandler.CleanHandler)    // POST - prune terminal rows

	// API routes - System
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler) // GET - application status
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// Prometheus metrics
	mux.Handle("/metrics", s.app.Metrics.Handler())

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}
