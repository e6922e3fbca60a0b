package handlers

import (
	"net/http"
	"time"

	"sagemaker-orchestrator/core/models"
	"sagemaker-orchestrator/core/orchestrator"
	"sagemaker-orchestrator/core/repository"
)

// DashboardHandler handles dashboard API requests
type DashboardHandler struct {
	orch *orchestrator.Orchestrator
	now  func() time.Time
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(orch *orchestrator.Orchestrator) *DashboardHandler {
	return &DashboardHandler{
		orch: orch,
		now:  time.Now,
	}
}

// GetRunSummary handles GET /v1/dashboard/summary: run counts per pipeline
// and state for runs created in [start_date, end_date]
func (h *DashboardHandler) GetRunSummary(w http.ResponseWriter, r *http.Request) {
	startDate := r.URL.Query().Get("start_date")
	endDate := r.URL.Query().Get("end_date")

	// Parse dates (default to last 30 days)
	var start, end time.Time
	if startDate != "" {
		var err error
		start, err = time.Parse(time.RFC3339, startDate)
		if err != nil {
			writeError(w, models.NewConfigError("invalid start_date format", err))
			return
		}
	} else {
		start = h.now().AddDate(0, 0, -30)
	}

	if endDate != "" {
		var err error
		end, err = time.Parse(time.RFC3339, endDate)
		if err != nil {
			writeError(w, models.NewConfigError("invalid end_date format", err))
			return
		}
	} else {
		end = h.now()
	}

	if end.Before(start) {
		writeError(w, models.NewConfigError("end_date is before start_date", nil))
		return
	}

	runs, err := h.orch.ListRuns(r.Context(), repository.RunFilter{CreatedFrom: start, CreatedTo: end})
	if err != nil {
		writeError(w, err)
		return
	}

	counts := map[models.PipelineKind]map[models.PipelineState]int{
		models.PipelineTraining:  {},
		models.PipelineInference: {},
	}
	var succeeded, failed int
	for _, run := range runs {
		if counts[run.Kind] == nil {
			counts[run.Kind] = map[models.PipelineState]int{}
		}
		counts[run.Kind][run.State]++
		switch run.State {
		case models.StateSucceeded:
			succeeded++
		case models.StateFailed:
			failed++
		}
	}

	var successRate float64
	if succeeded+failed > 0 {
		successRate = float64(succeeded) / float64(succeeded+failed)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"period": map[string]interface{}{
			"start": start.Format(time.RFC3339),
			"end":   end.Format(time.RFC3339),
		},
		"runs":         counts,
		"success_rate": successRate,
	})
}
