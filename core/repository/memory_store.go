package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"sagemaker-orchestrator/core/models"
)

// MemoryStore is a RunStore kept in process memory
type MemoryStore struct {
	mu        sync.RWMutex
	now       func() time.Time
	runs      map[string]*models.PipelineRun
	events    map[string][]models.RunEvent
	artifacts map[string][]models.RunArtifact
	nextID    int64
}

var _ RunStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:       func() time.Time { return time.Now().UTC() },
		runs:      make(map[string]*models.PipelineRun),
		events:    make(map[string][]models.RunEvent),
		artifacts: make(map[string][]models.RunArtifact),
	}
}

func (s *MemoryStore) CreateRun(_ context.Context, run *models.PipelineRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if _, ok := s.runs[run.ID]; ok {
		return fmt.Errorf("run %s already exists", run.ID)
	}

	now := s.now()
	run.CreatedAt = now
	run.UpdatedAt = now

	stored, err := cloneRun(run)
	if err != nil {
		return err
	}
	s.runs[run.ID] = stored
	s.appendEvent(run.ID, nil, run.State, "run_created", nil)
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (*models.PipelineRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, models.NewNotFoundError("run "+id, nil)
	}
	return cloneRun(run)
}

func (s *MemoryStore) UpdateRun(_ context.Context, run *models.PipelineRun, from models.PipelineState, reason string, meta map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.runs[run.ID]
	if !ok {
		return models.NewNotFoundError("run "+run.ID, nil)
	}
	if current.State != from {
		return fmt.Errorf("%w: run %s is no longer %s", ErrStateConflict, run.ID, from)
	}

	run.UpdatedAt = s.now()
	stored, err := cloneRun(run)
	if err != nil {
		return err
	}
	stored.CreatedAt = current.CreatedAt
	s.runs[run.ID] = stored

	if run.State != from {
		s.appendEvent(run.ID, &from, run.State, reason, meta)
	}
	return nil
}

func (s *MemoryStore) ListRuns(_ context.Context, filter RunFilter) ([]*models.PipelineRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := []*models.PipelineRun{}
	for _, run := range s.runs {
		if filter.Kind != "" && run.Kind != filter.Kind {
			continue
		}
		if filter.State != "" && run.State != filter.State {
			continue
		}
		if !filter.CreatedFrom.IsZero() && run.CreatedAt.Before(filter.CreatedFrom) {
			continue
		}
		if !filter.CreatedTo.IsZero() && run.CreatedAt.After(filter.CreatedTo) {
			continue
		}
		c, err := cloneRun(run)
		if err != nil {
			return nil, err
		}
		runs = append(runs, c)
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID > runs[j].ID
		}
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	if filter.Limit > 0 && len(runs) > filter.Limit {
		runs = runs[:filter.Limit]
	}
	return runs, nil
}

func (s *MemoryStore) GetRunEvents(_ context.Context, runID string, limit int) ([]models.RunEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := append([]models.RunEvent{}, s.events[runID]...)
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (s *MemoryStore) CreateArtifact(_ context.Context, runID string, artifactType models.ArtifactType, uri string, meta map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[runID]; !ok {
		return models.NewNotFoundError("run "+runID, nil)
	}
	s.nextID++
	s.artifacts[runID] = append(s.artifacts[runID], models.RunArtifact{
		ID:        s.nextID,
		RunID:     runID,
		Type:      artifactType,
		URI:       uri,
		CreatedAt: s.now(),
		MetaJSON:  meta,
	})
	return nil
}

func (s *MemoryStore) GetRunArtifacts(_ context.Context, runID string, artifactType *models.ArtifactType) ([]models.RunArtifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	artifacts := []models.RunArtifact{}
	for _, a := range s.artifacts[runID] {
		if artifactType != nil && a.Type != *artifactType {
			continue
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, nil
}

func (s *MemoryStore) appendEvent(runID string, from *models.PipelineState, to models.PipelineState, reason string, meta map[string]interface{}) {
	s.nextID++
	s.events[runID] = append(s.events[runID], models.RunEvent{
		ID:       s.nextID,
		RunID:    runID,
		At:       s.now(),
		From:     from,
		To:       to,
		Reason:   reason,
		MetaJSON: meta,
	})
}

// cloneRun deep-copies a run through its JSON form so callers never share
// context maps with the store
func cloneRun(run *models.PipelineRun) (*models.PipelineRun, error) {
	b, err := json.Marshal(run)
	if err != nil {
		return nil, err
	}
	var c models.PipelineRun
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
