package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/japanesestudent/listening-service/internal/apperrors"
	"github.com/japanesestudent/listening-service/internal/models"
)

const audioColumns = `id, title, description, topic, jlpt_level, audio_url, storage_key, duration,
		thumbnail_color, transcript, transcript_json, is_published, created_at, updated_at`

// audioRepository implements audio repository operations
type audioRepository struct {
	db *sql.DB
}

// NewAudioRepository creates a new audio repository
func NewAudioRepository(db *sql.DB) *audioRepository {
	return &audioRepository{
		db: db,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanAudio scans one row selected with audioColumns
func scanAudio(row rowScanner, extra ...any) (*models.Audio, error) {
	audio := &models.Audio{}
	var description, storageKey, transcript sql.NullString
	var transcriptJSON []byte

	dest := []any{
		&audio.ID,
		&audio.Title,
		&description,
		&audio.Topic,
		&audio.JLPTLevel,
		&audio.AudioURL,
		&storageKey,
		&audio.Duration,
		&audio.ThumbnailColor,
		&transcript,
		&transcriptJSON,
		&audio.IsPublished,
		&audio.CreatedAt,
		&audio.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	audio.Description = description.String
	audio.StorageKey = storageKey.String
	if transcript.Valid {
		text := transcript.String
		audio.Transcript = &text
	}
	if len(transcriptJSON) > 0 {
		audio.TranscriptJSON = json.RawMessage(transcriptJSON)
	}
	return audio, nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func nullStringPtr(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

func nullJSON(value json.RawMessage) any {
	if len(value) == 0 {
		return nil
	}
	return []byte(value)
}

// Create inserts a new audio record
func (r *audioRepository) Create(ctx context.Context, audio *models.Audio) error {
	query := `
		INSERT INTO audios (id, title, description, topic, jlpt_level, audio_url, storage_key, duration,
			thumbnail_color, transcript, transcript_json, is_published)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		audio.ID,
		audio.Title,
		nullString(audio.Description),
		audio.Topic,
		audio.JLPTLevel,
		audio.AudioURL,
		nullString(audio.StorageKey),
		audio.Duration,
		audio.ThumbnailColor,
		nullStringPtr(audio.Transcript),
		nullJSON(audio.TranscriptJSON),
		audio.IsPublished,
	)
	if err != nil {
		return fmt.Errorf("failed to create audio: %w", err)
	}

	return nil
}

// GetByID retrieves an audio record by ID
func (r *audioRepository) GetByID(ctx context.Context, id string) (*models.Audio, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM audios
		WHERE id = ?
		LIMIT 1
	`, audioColumns)

	audio, err := scanAudio(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("audio")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audio by id: %w", err)
	}

	return audio, nil
}

// List retrieves a page of audio records with their quiz counts, newest first.
// Returns the page items and the total number of matching records.
func (r *audioRepository) List(ctx context.Context, filter models.AudioFilter) ([]models.AudioListItem, int, error) {
	var conditions []string
	var args []any

	if !filter.IncludeUnpublished {
		conditions = append(conditions, "a.is_published = TRUE")
	}
	if filter.Topic != "" {
		conditions = append(conditions, "a.topic = ?")
		args = append(args, filter.Topic)
	}
	if filter.JLPTLevel != "" {
		conditions = append(conditions, "a.jlpt_level = ?")
		args = append(args, filter.JLPTLevel)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM audios a %s`, whereClause)
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audios: %w", err)
	}

	offset := (filter.Page - 1) * filter.Limit
	query := fmt.Sprintf(`
		SELECT %s,
			(SELECT COUNT(*) FROM quizzes q WHERE q.audio_id = a.id) AS quiz_count
		FROM audios a
		%s
		ORDER BY a.created_at DESC
		LIMIT ? OFFSET ?
	`, prefixColumns("a.", audioColumns), whereClause)

	rows, err := r.db.QueryContext(ctx, query, append(args, filter.Limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query audios: %w", err)
	}
	defer rows.Close()

	items := make([]models.AudioListItem, 0)
	for rows.Next() {
		var quizCount int
		audio, err := scanAudio(rows, &quizCount)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan audio: %w", err)
		}
		items = append(items, models.AudioListItem{Audio: *audio, QuizCount: quizCount})
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating audios: %w", err)
	}

	return items, total, nil
}

// prefixColumns qualifies a comma separated column list with a table alias
func prefixColumns(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = prefix + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}

// CountPublishedByTopic returns the number of published records per topic
func (r *audioRepository) CountPublishedByTopic(ctx context.Context) (map[models.Topic]int, error) {
	query := `
		SELECT topic, COUNT(*)
		FROM audios
		WHERE is_published = TRUE
		GROUP BY topic
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count audios by topic: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Topic]int)
	for rows.Next() {
		var topic models.Topic
		var count int
		if err := rows.Scan(&topic, &count); err != nil {
			return nil, fmt.Errorf("failed to scan topic count: %w", err)
		}
		counts[topic] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating topic counts: %w", err)
	}

	return counts, nil
}

// Update writes the editable fields of an audio record
func (r *audioRepository) Update(ctx context.Context, audio *models.Audio) error {
	query := `
		UPDATE audios
		SET title = ?, description = ?, topic = ?, jlpt_level = ?, thumbnail_color = ?,
			transcript = ?, is_published = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		audio.Title,
		nullString(audio.Description),
		audio.Topic,
		audio.JLPTLevel,
		audio.ThumbnailColor,
		nullStringPtr(audio.Transcript),
		audio.IsPublished,
		audio.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update audio: %w", err)
	}

	return checkAffected(result, "audio")
}

// UpdateTranscript stores the transcript and its segments
func (r *audioRepository) UpdateTranscript(ctx context.Context, id, transcript string, segments json.RawMessage) error {
	query := `UPDATE audios SET transcript = ?, transcript_json = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, transcript, nullJSON(segments), id)
	if err != nil {
		return fmt.Errorf("failed to update transcript: %w", err)
	}

	return checkAffected(result, "audio")
}

// SetPublished changes the visibility of an audio record
func (r *audioRepository) SetPublished(ctx context.Context, id string, published bool) error {
	query := `UPDATE audios SET is_published = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, published, id)
	if err != nil {
		return fmt.Errorf("failed to update audio visibility: %w", err)
	}

	return checkAffected(result, "audio")
}

// Delete removes an audio record, its quizzes are removed by the foreign key cascade
func (r *audioRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM audios WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete audio: %w", err)
	}

	return checkAffected(result, "audio")
}

// checkAffected turns a zero-row write into a not found error
func checkAffected(result sql.Result, resource string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperrors.NotFound(resource)
	}
	return nil
}
