package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mathquest/internal/database"
	"mathquest/internal/models"
)

// ActivityRepository handles the activity catalogue
type ActivityRepository struct {
	db database.DBTX
}

// NewActivityRepository creates a new activity repository
func NewActivityRepository(db database.DBTX) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *ActivityRepository) WithTx(tx database.DBTX) *ActivityRepository {
	return &ActivityRepository{db: tx}
}

const activityColumns = `id, title, description, content_type, difficulty, duration_label,
	xp_value, unlock_level, icon, url, body, quiz_json, created_at, updated_at`

func scanActivity(row rowScanner) (*models.Activity, error) {
	a := &models.Activity{}
	var unlock sql.NullInt64
	var quizJSON string
	err := row.Scan(
		&a.ID,
		&a.Title,
		&a.Description,
		&a.ContentType,
		&a.Difficulty,
		&a.DurationLabel,
		&a.XPValue,
		&unlock,
		&a.Icon,
		&a.URL,
		&a.Body,
		&quizJSON,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if unlock.Valid {
		level := int(unlock.Int64)
		a.UnlockLevel = &level
	}
	if quizJSON != "" {
		if err := json.Unmarshal([]byte(quizJSON), &a.Questions); err != nil {
			return nil, fmt.Errorf("invalid quiz_json for activity %d: %w", a.ID, err)
		}
	}
	return a, nil
}

func encodeQuiz(questions []models.QuizQuestion) (string, error) {
	if len(questions) == 0 {
		return "", nil
	}
	data, err := json.Marshal(questions)
	if err != nil {
		return "", fmt.Errorf("failed to encode quiz: %w", err)
	}
	return string(data), nil
}

func nullableInt(n *int) interface{} {
	if n == nil {
		return nil
	}
	return *n
}

// CreateActivity inserts a new activity
func (r *ActivityRepository) CreateActivity(ctx context.Context, a *models.Activity) (*models.Activity, error) {
	quizJSON, err := encodeQuiz(a.Questions)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	query := `
		INSERT INTO activities (title, description, content_type, difficulty, duration_label,
			xp_value, unlock_level, icon, url, body, quiz_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query,
		a.Title,
		a.Description,
		string(a.ContentType),
		a.Difficulty,
		a.DurationLabel,
		a.XPValue,
		nullableInt(a.UnlockLevel),
		a.Icon,
		a.URL,
		a.Body,
		quizJSON,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create activity: %w", err)
	}

	created := *a
	created.ID = id
	created.CreatedAt = now
	created.UpdatedAt = now
	return &created, nil
}

// GetActivityByID retrieves an activity, nil when absent
func (r *ActivityRepository) GetActivityByID(ctx context.Context, id int64) (*models.Activity, error) {
	query := "SELECT " + activityColumns + " FROM activities WHERE id = ?"
	a, err := scanActivity(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get activity: %w", err)
	}
	return a, nil
}

// ListActivities returns the catalogue, optionally filtered by content type
func (r *ActivityRepository) ListActivities(ctx context.Context, contentType models.ContentType) ([]models.Activity, error) {
	query := "SELECT " + activityColumns + " FROM activities"
	var args []interface{}
	if contentType != "" {
		query += " WHERE content_type = ?"
		args = append(args, string(contentType))
	}
	query += " ORDER BY id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	var activities []models.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		activities = append(activities, *a)
	}
	return activities, rows.Err()
}

// UpdateActivity overwrites an activity's editable fields. Returns false
// when the activity does not exist.
func (r *ActivityRepository) UpdateActivity(ctx context.Context, a *models.Activity) (bool, error) {
	quizJSON, err := encodeQuiz(a.Questions)
	if err != nil {
		return false, err
	}

	query := `
		UPDATE activities
		SET title = ?, description = ?, content_type = ?, difficulty = ?, duration_label = ?,
			xp_value = ?, unlock_level = ?, icon = ?, url = ?, body = ?, quiz_json = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		a.Title,
		a.Description,
		string(a.ContentType),
		a.Difficulty,
		a.DurationLabel,
		a.XPValue,
		nullableInt(a.UnlockLevel),
		a.Icon,
		a.URL,
		a.Body,
		quizJSON,
		time.Now(),
		a.ID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update activity: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteActivity removes an activity. Existing completions are kept so
// awarded XP stays explained.
func (r *ActivityRepository) DeleteActivity(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM activities WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete activity: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteAllActivities clears the catalogue, used by backup restore
func (r *ActivityRepository) DeleteAllActivities(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM activities"); err != nil {
		return fmt.Errorf("failed to clear activities: %w", err)
	}
	return nil
}
