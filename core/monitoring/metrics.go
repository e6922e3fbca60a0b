package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	orchestrator = "ml_orchestrator"

	jobSubmissionsTotal        = "job_submissions_total"
	pipelineRunsTotal          = "pipeline_runs_total"
	registrationFallbacksTotal = "registration_fallbacks_total"
	jobPollsTotal              = "job_polls_total"

	// Labels
	jobTypeLabel  = "job_type"
	outcomeLabel  = "outcome"
	pipelineLabel = "pipeline"
	stateLabel    = "state"
	statusLabel   = "status"
)

var jobSubmissionsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: orchestrator,
		Name:      jobSubmissionsTotal,
		Help:      "number of jobs submitted to the compute service",
	},
	[]string{jobTypeLabel, outcomeLabel},
)

var pipelineRunsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: orchestrator,
		Name:      pipelineRunsTotal,
		Help:      "number of pipeline runs that reached a final state",
	},
	[]string{pipelineLabel, stateLabel},
)

var registrationFallbacksTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: orchestrator,
		Name:      registrationFallbacksTotal,
		Help:      "number of failed model registrations that reused an existing model",
	},
)

var jobPollsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: orchestrator,
		Name:      jobPollsTotal,
		Help:      "number of job status polls by observed status",
	},
	[]string{statusLabel},
)

func IncreaseJobSubmissionsMetric(jobType string, err error) {
	outcome := "accepted"
	if err != nil {
		outcome = "rejected"
	}
	jobSubmissionsTotalMetric.With(prometheus.Labels{
		jobTypeLabel: jobType,
		outcomeLabel: outcome,
	}).Inc()
}

func IncreasePipelineRunsMetric(pipeline, state string) {
	pipelineRunsTotalMetric.With(prometheus.Labels{
		pipelineLabel: pipeline,
		stateLabel:    state,
	}).Inc()
}

func IncreaseRegistrationFallbacksMetric() {
	registrationFallbacksTotalMetric.Inc()
}

func IncreaseJobPollsMetric(status string) {
	jobPollsTotalMetric.With(prometheus.Labels{statusLabel: status}).Inc()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(jobSubmissionsTotalMetric)
	prometheus.MustRegister(pipelineRunsTotalMetric)
	prometheus.MustRegister(registrationFallbacksTotalMetric)
	prometheus.MustRegister(jobPollsTotalMetric)
}
