package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"sagemaker-orchestrator/core/models"
)

// EventRepository handles database operations for run events
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// GetRunEvents retrieves the events of a run, oldest first
func (r *EventRepository) GetRunEvents(ctx context.Context, runID string, limit int) ([]models.RunEvent, error) {
	query := `
		SELECT id, run_id, at, from_state, to_state, reason, meta_json
		FROM run_events
		WHERE run_id = $1
		ORDER BY at ASC, id ASC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []models.RunEvent{}
	for rows.Next() {
		var event models.RunEvent
		var fromState sql.NullString
		var metaJSON []byte

		err := rows.Scan(
			&event.ID,
			&event.RunID,
			&event.At,
			&fromState,
			&event.To,
			&event.Reason,
			&metaJSON,
		)
		if err != nil {
			return nil, err
		}

		if fromState.Valid {
			state := models.PipelineState(fromState.String)
			event.From = &state
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &event.MetaJSON); err != nil {
				return nil, err
			}
		}

		events = append(events, event)
	}

	return events, rows.Err()
}

func createRunEventTx(ctx context.Context, tx *sql.Tx, runID string, from *models.PipelineState, to models.PipelineState, reason string, meta map[string]interface{}) error {
	query := `
		INSERT INTO run_events (run_id, from_state, to_state, reason, meta_json)
		VALUES ($1, $2, $3, $4, $5)
	`

	var fromState *string
	if from != nil {
		s := string(*from)
		fromState = &s
	}

	metaJSON, err := marshalMeta(meta)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, query, runID, fromState, to, reason, metaJSON)
	return err
}

func marshalMeta(meta map[string]interface{}) (string, error) {
	if meta == nil {
		return "{}", nil
	}
	b, err := json.Marshal(meta)
	return string(b), err
}
