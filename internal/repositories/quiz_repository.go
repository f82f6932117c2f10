package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/japanesestudent/listening-service/internal/apperrors"
	"github.com/japanesestudent/listening-service/internal/models"
)

// quizRepository implements quiz repository operations
type quizRepository struct {
	db *sql.DB
}

// NewQuizRepository creates a new quiz repository
func NewQuizRepository(db *sql.DB) *quizRepository {
	return &quizRepository{
		db: db,
	}
}

// execer is satisfied by both *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const insertQuizQuery = `
		INSERT INTO quizzes (id, audio_id, type, question, data_json, ` + "`order`" + `)
		VALUES (?, ?, ?, ?, ?, ?)
	`

func insertQuiz(ctx context.Context, exec execer, quiz *models.Quiz) error {
	data, err := json.Marshal(quiz.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode quiz payload: %w", err)
	}

	_, err = exec.ExecContext(ctx, insertQuizQuery,
		quiz.ID,
		quiz.AudioID,
		quiz.Type,
		nullString(quiz.Question),
		data,
		quiz.Order,
	)
	return err
}

// scanQuiz scans one quiz row and decodes its payload against its type.
// A payload that does not match its type is reported as an integrity error.
func scanQuiz(row rowScanner) (*models.Quiz, error) {
	quiz := &models.Quiz{}
	var question sql.NullString
	var data []byte

	if err := row.Scan(
		&quiz.ID,
		&quiz.AudioID,
		&quiz.Type,
		&question,
		&data,
		&quiz.Order,
		&quiz.CreatedAt,
	); err != nil {
		return nil, err
	}

	payload, err := models.DecodePayload(quiz.Type, data)
	if err != nil {
		return nil, fmt.Errorf("stored payload of quiz %s does not match type %s: %w", quiz.ID, quiz.Type, err)
	}
	quiz.Payload = payload
	quiz.Question = question.String
	return quiz, nil
}

// Create inserts a new quiz
func (r *quizRepository) Create(ctx context.Context, quiz *models.Quiz) error {
	if err := insertQuiz(ctx, r.db, quiz); err != nil {
		return fmt.Errorf("failed to create quiz: %w", err)
	}
	return nil
}

// GetByID retrieves a quiz by ID
func (r *quizRepository) GetByID(ctx context.Context, id string) (*models.Quiz, error) {
	query := "SELECT id, audio_id, type, question, data_json, `order`, created_at FROM quizzes WHERE id = ? LIMIT 1"

	quiz, err := scanQuiz(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("quiz")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quiz by id: %w", err)
	}

	return quiz, nil
}

// ListByAudio retrieves the quizzes of an audio record in display order.
// An empty quizType returns quizzes of every type.
func (r *quizRepository) ListByAudio(ctx context.Context, audioID string, quizType models.QuizType) ([]models.Quiz, error) {
	query := "SELECT id, audio_id, type, question, data_json, `order`, created_at FROM quizzes WHERE audio_id = ?"
	args := []any{audioID}
	if quizType != "" {
		query += " AND type = ?"
		args = append(args, quizType)
	}
	query += " ORDER BY `order` ASC, created_at ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query quizzes: %w", err)
	}
	defer rows.Close()

	quizzes := make([]models.Quiz, 0)
	for rows.Next() {
		quiz, err := scanQuiz(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quiz: %w", err)
		}
		quizzes = append(quizzes, *quiz)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quizzes: %w", err)
	}

	return quizzes, nil
}

// CountByAudio returns the number of quizzes attached to an audio record
func (r *quizRepository) CountByAudio(ctx context.Context, audioID string) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM quizzes WHERE audio_id = ?`, audioID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count quizzes: %w", err)
	}
	return count, nil
}

// Update writes the question, payload and order of a quiz
func (r *quizRepository) Update(ctx context.Context, quiz *models.Quiz) error {
	data, err := json.Marshal(quiz.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode quiz payload: %w", err)
	}

	query := "UPDATE quizzes SET question = ?, data_json = ?, `order` = ? WHERE id = ?"
	result, err := r.db.ExecContext(ctx, query, nullString(quiz.Question), data, quiz.Order, quiz.ID)
	if err != nil {
		return fmt.Errorf("failed to update quiz: %w", err)
	}

	return checkAffected(result, "quiz")
}

// Delete removes a quiz
func (r *quizRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM quizzes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete quiz: %w", err)
	}

	return checkAffected(result, "quiz")
}

// DeleteByAudio removes every quiz of an audio record and returns how many were removed
func (r *quizRepository) DeleteByAudio(ctx context.Context, audioID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM quizzes WHERE audio_id = ?`, audioID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete quizzes: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// ReplaceForAudio deletes every quiz of an audio record and inserts the given ones in a single transaction
func (r *quizRepository) ReplaceForAudio(ctx context.Context, audioID string, quizzes []models.Quiz) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM quizzes WHERE audio_id = ?`, audioID); err != nil {
		return fmt.Errorf("failed to delete quizzes: %w", err)
	}

	for i := range quizzes {
		if err := insertQuiz(ctx, tx, &quizzes[i]); err != nil {
			return fmt.Errorf("failed to insert quiz: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
