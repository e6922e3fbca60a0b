package models

import "time"

// RunEvent represents a state transition event for a pipeline run
type RunEvent struct {
	ID       int64
	RunID    string
	At       time.Time
	From     *PipelineState
	To       PipelineState
	Reason   string
	MetaJSON map[string]interface{} // Additional metadata
}

// ArtifactType represents the type of run artifact
type ArtifactType string

const (
	ArtifactTypeModel           ArtifactType = "model"
	ArtifactTypeRegisteredModel ArtifactType = "registered_model"
	ArtifactTypeTransformOutput ArtifactType = "transform_output"
)

// RunArtifact represents something a run produced on the compute service
type RunArtifact struct {
	ID        int64
	RunID     string
	Type      ArtifactType
	URI       string
	CreatedAt time.Time
	MetaJSON  map[string]interface{}
}
