package models

import "time"

// PipelineKind names one of the two independent pipelines
type PipelineKind string

const (
	PipelineTraining  PipelineKind = "training"
	PipelineInference PipelineKind = "inference"
)

// PipelineState is a state of the linear pipeline state machine
type PipelineState string

const (
	StateSubmitted   PipelineState = "Submitted"
	StatePolling     PipelineState = "Polling"
	StateResolving   PipelineState = "Resolving"
	StateRegistering PipelineState = "Registering"
	StateSucceeded   PipelineState = "Succeeded"
	StateFailed      PipelineState = "Failed"
)

// IsFinal reports whether the run has finished, successfully or not
func (s PipelineState) IsFinal() bool {
	return s == StateSucceeded || s == StateFailed
}

// PipelineRun is one invocation of a pipeline together with its accumulated context
type PipelineRun struct {
	ID        string         `json:"id"`
	Kind      PipelineKind   `json:"kind"`
	State     PipelineState  `json:"state"`
	Context   JobContext     `json:"context"`
	Failure   *PipelineError `json:"failure,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	// Deadline bounds how long the run may stay in Polling
	Deadline *time.Time `json:"deadline,omitempty"`
}
