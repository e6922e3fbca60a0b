package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sagemaker-orchestrator/core/models"
)

// RunRepository handles database operations for pipeline runs
type RunRepository struct {
	db *DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

// CreateRun inserts a run together with its initial event
func (r *RunRepository) CreateRun(ctx context.Context, run *models.PipelineRun) error {
	runID := uuid.New()
	if run.ID != "" {
		var err error
		runID, err = uuid.Parse(run.ID)
		if err != nil {
			return err
		}
	}

	contextJSON, err := json.Marshal(run.Context)
	if err != nil {
		return err
	}
	failureJSON, err := marshalFailure(run.Failure)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	query := `
		INSERT INTO pipeline_runs (id, kind, state, context_json, failure_json, deadline_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`
	if _, err := tx.ExecContext(ctx, query, runID, run.Kind, run.State, string(contextJSON), failureJSON, run.Deadline, now); err != nil {
		return err
	}
	if err := createRunEventTx(ctx, tx, runID.String(), nil, run.State, "run_created", nil); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	run.ID = runID.String()
	run.CreatedAt = now
	run.UpdatedAt = now
	return nil
}

// GetRun retrieves a run by ID
func (r *RunRepository) GetRun(ctx context.Context, id string) (*models.PipelineRun, error) {
	query := `
		SELECT id, kind, state, context_json, failure_json, deadline_at, created_at, updated_at
		FROM pipeline_runs
		WHERE id = $1
	`
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.NewNotFoundError("run "+id, err)
	}

	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewNotFoundError("run "+id, nil)
	}
	return run, err
}

// UpdateRun writes the run's state, context and failure, and logs the transition atomically
func (r *RunRepository) UpdateRun(ctx context.Context, run *models.PipelineRun, from models.PipelineState, reason string, meta map[string]interface{}) error {
	contextJSON, err := json.Marshal(run.Context)
	if err != nil {
		return err
	}
	failureJSON, err := marshalFailure(run.Failure)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	updateQuery := `
		UPDATE pipeline_runs
		SET state = $1, context_json = $2, failure_json = $3, deadline_at = $4, updated_at = $5
		WHERE id = $6 AND state = $7
	`
	res, err := tx.ExecContext(ctx, updateQuery, run.State, string(contextJSON), failureJSON, run.Deadline, now, run.ID, from)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: run %s is no longer %s", ErrStateConflict, run.ID, from)
	}

	if run.State != from {
		if err := createRunEventTx(ctx, tx, run.ID, &from, run.State, reason, meta); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	run.UpdatedAt = now
	return nil
}

// ListRuns lists runs with optional filters
func (r *RunRepository) ListRuns(ctx context.Context, filter RunFilter) ([]*models.PipelineRun, error) {
	query := `
		SELECT id, kind, state, context_json, failure_json, deadline_at, created_at, updated_at
		FROM pipeline_runs
		WHERE 1 = 1
	`
	args := []interface{}{}
	argIndex := 1

	if filter.Kind != "" {
		query += fmt.Sprintf(" AND kind = $%d", argIndex)
		args = append(args, filter.Kind)
		argIndex++
	}
	if filter.State != "" {
		query += fmt.Sprintf(" AND state = $%d", argIndex)
		args = append(args, filter.State)
		argIndex++
	}
	if !filter.CreatedFrom.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIndex)
		args = append(args, filter.CreatedFrom)
		argIndex++
	}
	if !filter.CreatedTo.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIndex)
		args = append(args, filter.CreatedTo)
		argIndex++
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []*models.PipelineRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*models.PipelineRun, error) {
	var run models.PipelineRun
	var contextJSON []byte
	var failureJSON []byte
	var deadlineAt sql.NullTime

	err := row.Scan(
		&run.ID,
		&run.Kind,
		&run.State,
		&contextJSON,
		&failureJSON,
		&deadlineAt,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(contextJSON, &run.Context); err != nil {
		return nil, fmt.Errorf("failed to decode context of run %s: %w", run.ID, err)
	}
	if len(failureJSON) > 0 {
		var failure models.PipelineError
		if err := json.Unmarshal(failureJSON, &failure); err != nil {
			return nil, fmt.Errorf("failed to decode failure of run %s: %w", run.ID, err)
		}
		run.Failure = &failure
	}
	if deadlineAt.Valid {
		run.Deadline = &deadlineAt.Time
	}
	return &run, nil
}

// jsonb parameters go over the wire as strings; lib/pq would send []byte as bytea
func marshalFailure(failure *models.PipelineError) (interface{}, error) {
	if failure == nil {
		return nil, nil
	}
	b, err := json.Marshal(failure)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
