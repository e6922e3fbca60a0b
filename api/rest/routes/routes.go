package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sagemaker-orchestrator/api/rest/handlers"
	"sagemaker-orchestrator/core/orchestrator"
	"sagemaker-orchestrator/storage"
)

// SetupRoutes configures all API routes
func SetupRoutes(r *mux.Router, orch *orchestrator.Orchestrator, artifacts *storage.ArtifactStore) {
	runHandler := handlers.NewRunHandler(orch, artifacts)
	dashboardHandler := handlers.NewDashboardHandler(orch)

	api := r.PathPrefix("/v1").Subrouter()

	// Pipeline endpoints
	api.HandleFunc("/training", runHandler.StartTraining).Methods("POST")
	api.HandleFunc("/training/estimate", runHandler.EstimateTraining).Methods("POST")
	api.HandleFunc("/inference", runHandler.StartInference).Methods("POST")
	api.HandleFunc("/pipelines", runHandler.StartPipeline).Methods("POST")

	// Run endpoints
	api.HandleFunc("/runs", runHandler.ListRuns).Methods("GET")
	api.HandleFunc("/runs/{id}", runHandler.GetRun).Methods("GET")
	api.HandleFunc("/runs/{id}/advance", runHandler.AdvanceRun).Methods("POST")
	api.HandleFunc("/runs/{id}/events", runHandler.GetRunEvents).Methods("GET")
	api.HandleFunc("/runs/{id}/artifacts", runHandler.GetRunArtifacts).Methods("GET")
	api.HandleFunc("/runs/{id}/artifacts/{type}/latest", runHandler.GetLatestArtifact).Methods("GET")
	api.HandleFunc("/transform-jobs/{name}", runHandler.GetTransformJob).Methods("GET")

	api.HandleFunc("/dashboard/summary", dashboardHandler.GetRunSummary).Methods("GET")

	// Health check endpoint
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods("GET")

	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
}
