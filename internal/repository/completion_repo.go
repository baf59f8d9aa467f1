package repository

import (
	"context"
	"fmt"
	"time"

	"mathquest/internal/database"
	"mathquest/internal/models"
)

// CompletionRepository manages each user's completed-activity set
type CompletionRepository struct {
	db database.DBTX
}

// NewCompletionRepository creates a new completion repository
func NewCompletionRepository(db database.DBTX) *CompletionRepository {
	return &CompletionRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *CompletionRepository) WithTx(tx database.DBTX) *CompletionRepository {
	return &CompletionRepository{db: tx}
}

// HasCompleted reports whether activityID is in the user's completed set
func (r *CompletionRepository) HasCompleted(ctx context.Context, userID, activityID int64) (bool, error) {
	var count int
	query := "SELECT COUNT(*) FROM user_completions WHERE user_id = ? AND activity_id = ?"
	if err := r.db.QueryRowContext(ctx, query, userID, activityID).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check completion: %w", err)
	}
	return count > 0, nil
}

// InsertCompletion adds a member to the completed set
func (r *CompletionRepository) InsertCompletion(ctx context.Context, c *models.Completion) error {
	if c.CompletedAt.IsZero() {
		c.CompletedAt = time.Now()
	}
	query := `
		INSERT INTO user_completions (user_id, activity_id, xp_awarded, minutes_credited, completed_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query, c.UserID, c.ActivityID, c.XPAwarded, c.MinutesCredited, c.CompletedAt)
	if err != nil {
		if r.db.GetDialect().IsUniqueViolation(err) {
			return database.ErrConflict
		}
		return fmt.Errorf("failed to insert completion: %w", err)
	}
	return nil
}

// CompletedActivityIDs returns the user's completed set
func (r *CompletionRepository) CompletedActivityIDs(ctx context.Context, userID int64) (map[int64]bool, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT activity_id FROM user_completions WHERE user_id = ?", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query completions: %w", err)
	}
	defer rows.Close()

	ids := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan completion: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// CountCompletions returns the size of the user's completed set
func (r *CompletionRepository) CountCompletions(ctx context.Context, userID int64) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM user_completions WHERE user_id = ?", userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count completions: %w", err)
	}
	return count, nil
}

// ListRecentCompletions returns the user's latest completions with activity
// titles. Completions of deleted activities keep an empty title.
func (r *CompletionRepository) ListRecentCompletions(ctx context.Context, userID int64, limit int) ([]models.Completion, error) {
	query := `
		SELECT c.user_id, c.activity_id, COALESCE(a.title, ''), c.xp_awarded, c.minutes_credited, c.completed_at
		FROM user_completions c
		LEFT JOIN activities a ON a.id = c.activity_id
		WHERE c.user_id = ?
		ORDER BY c.completed_at DESC, c.activity_id DESC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent completions: %w", err)
	}
	defer rows.Close()

	var completions []models.Completion
	for rows.Next() {
		var c models.Completion
		if err := rows.Scan(&c.UserID, &c.ActivityID, &c.ActivityTitle, &c.XPAwarded, &c.MinutesCredited, &c.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan completion: %w", err)
		}
		completions = append(completions, c)
	}
	return completions, rows.Err()
}

// ListAllCompletions returns every completion, used by backups
func (r *CompletionRepository) ListAllCompletions(ctx context.Context) ([]models.Completion, error) {
	query := `
		SELECT user_id, activity_id, xp_awarded, minutes_credited, completed_at
		FROM user_completions
		ORDER BY user_id, completed_at
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query completions: %w", err)
	}
	defer rows.Close()

	var completions []models.Completion
	for rows.Next() {
		var c models.Completion
		if err := rows.Scan(&c.UserID, &c.ActivityID, &c.XPAwarded, &c.MinutesCredited, &c.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan completion: %w", err)
		}
		completions = append(completions, c)
	}
	return completions, rows.Err()
}
