package repository

import (
	"context"
	"errors"
	"time"

	"sagemaker-orchestrator/core/models"
)

// ErrStateConflict is returned when a run changed state under an update
var ErrStateConflict = errors.New("run state changed concurrently")

// RunFilter narrows ListRuns. Zero values match everything.
type RunFilter struct {
	Kind  models.PipelineKind
	State models.PipelineState
	Limit int

	// CreatedFrom and CreatedTo bound CreatedAt, both inclusive
	CreatedFrom time.Time
	CreatedTo   time.Time
}

// RunStore persists pipeline runs with their transition events and artifacts
type RunStore interface {
	// CreateRun stores a new run and its initial event. An empty ID is assigned.
	CreateRun(ctx context.Context, run *models.PipelineRun) error

	// GetRun returns a run or a NotFoundError
	GetRun(ctx context.Context, id string) (*models.PipelineRun, error)

	// UpdateRun writes run and records the transition from "from". It fails with
	// ErrStateConflict when the stored run is no longer in state from.
	UpdateRun(ctx context.Context, run *models.PipelineRun, from models.PipelineState, reason string, meta map[string]interface{}) error

	// ListRuns returns runs matching filter, newest first
	ListRuns(ctx context.Context, filter RunFilter) ([]*models.PipelineRun, error)

	// GetRunEvents returns the transitions of a run in order
	GetRunEvents(ctx context.Context, runID string, limit int) ([]models.RunEvent, error)

	// CreateArtifact records something a run produced
	CreateArtifact(ctx context.Context, runID string, artifactType models.ArtifactType, uri string, meta map[string]interface{}) error

	// GetRunArtifacts returns a run's artifacts, optionally of a single type
	GetRunArtifacts(ctx context.Context, runID string, artifactType *models.ArtifactType) ([]models.RunArtifact, error)
}
