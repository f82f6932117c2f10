package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/japanesestudent/listening-service/internal/models"
)

// pipelineRunRepository implements pipeline run repository operations
type pipelineRunRepository struct {
	db *sql.DB
}

// NewPipelineRunRepository creates a new pipeline run repository
func NewPipelineRunRepository(db *sql.DB) *pipelineRunRepository {
	return &pipelineRunRepository{
		db: db,
	}
}

// Create inserts a run in the running state
func (r *pipelineRunRepository) Create(ctx context.Context, run *models.PipelineRun) error {
	query := `
		INSERT INTO pipeline_runs (id, audio_id, kind, status, started_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query, run.ID, run.AudioID, run.Kind, run.Status, run.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create pipeline run: %w", err)
	}

	return nil
}

// Finish records the final status and counters of a run
func (r *pipelineRunRepository) Finish(ctx context.Context, run *models.PipelineRun) error {
	query := `
		UPDATE pipeline_runs
		SET status = ?, error = ?, transcript_saved = ?, quizzes_generated = ?, finished_at = ?
		WHERE id = ?
	`

	_, err := r.db.ExecContext(ctx, query,
		run.Status,
		nullString(run.Error),
		run.TranscriptSaved,
		run.QuizzesGenerated,
		run.FinishedAt,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish pipeline run: %w", err)
	}

	return nil
}

// ListByAudio retrieves the most recent runs of an audio record, newest first
func (r *pipelineRunRepository) ListByAudio(ctx context.Context, audioID string, limit int) ([]models.PipelineRun, error) {
	query := `
		SELECT id, audio_id, kind, status, error, transcript_saved, quizzes_generated, started_at, finished_at
		FROM pipeline_runs
		WHERE audio_id = ?
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, audioID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pipeline runs: %w", err)
	}
	defer rows.Close()

	runs := make([]models.PipelineRun, 0)
	for rows.Next() {
		var run models.PipelineRun
		var errMsg sql.NullString
		var finishedAt sql.NullTime
		if err := rows.Scan(
			&run.ID,
			&run.AudioID,
			&run.Kind,
			&run.Status,
			&errMsg,
			&run.TranscriptSaved,
			&run.QuizzesGenerated,
			&run.StartedAt,
			&finishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan pipeline run: %w", err)
		}
		run.Error = errMsg.String
		if finishedAt.Valid {
			run.FinishedAt = &finishedAt.Time
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pipeline runs: %w", err)
	}

	return runs, nil
}

// DeleteFinishedBefore removes finished runs older than before and returns how many were removed
func (r *pipelineRunRepository) DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM pipeline_runs WHERE finished_at IS NOT NULL AND finished_at < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune pipeline runs: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}
