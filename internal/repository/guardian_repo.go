package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mathquest/internal/database"
	"mathquest/internal/models"
)

// GuardianRepository handles guardian to learner links and controls
type GuardianRepository struct {
	db database.DBTX
}

// NewGuardianRepository creates a new guardian repository
func NewGuardianRepository(db database.DBTX) *GuardianRepository {
	return &GuardianRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *GuardianRepository) WithTx(tx database.DBTX) *GuardianRepository {
	return &GuardianRepository{db: tx}
}

// LinkLearner records that guardianID looks after learnerID. Linking twice
// is a no-op.
func (r *GuardianRepository) LinkLearner(ctx context.Context, guardianID, learnerID int64) error {
	linked, err := r.IsLinked(ctx, guardianID, learnerID)
	if err != nil {
		return err
	}
	if linked {
		return nil
	}

	query := "INSERT INTO guardian_links (guardian_id, learner_id, created_at) VALUES (?, ?, ?)"
	if _, err := r.db.ExecContext(ctx, query, guardianID, learnerID, time.Now()); err != nil {
		if r.db.GetDialect().IsUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("failed to link learner: %w", err)
	}
	return nil
}

// IsLinked reports whether guardianID looks after learnerID
func (r *GuardianRepository) IsLinked(ctx context.Context, guardianID, learnerID int64) (bool, error) {
	var count int
	query := "SELECT COUNT(*) FROM guardian_links WHERE guardian_id = ? AND learner_id = ?"
	if err := r.db.QueryRowContext(ctx, query, guardianID, learnerID).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check guardian link: %w", err)
	}
	return count > 0, nil
}

// ListLearners returns the learners linked to a guardian
func (r *GuardianRepository) ListLearners(ctx context.Context, guardianID int64) ([]models.User, error) {
	query := `
		SELECT u.id, u.email, u.password_hash, u.first_name, u.last_name, u.account_type,
			COALESCE(u.oauth_provider, ''), COALESCE(u.oauth_subject, ''),
			u.avatar_character, u.avatar_color, u.xp, u.current_streak, u.total_time_minutes,
			u.last_activity_date, u.version, u.created_at, u.updated_at
		FROM users u
		JOIN guardian_links g ON g.learner_id = u.id
		WHERE g.guardian_id = ?
		ORDER BY u.first_name, u.id
	`
	rows, err := r.db.QueryContext(ctx, query, guardianID)
	if err != nil {
		return nil, fmt.Errorf("failed to query learners: %w", err)
	}
	defer rows.Close()

	var learners []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan learner: %w", err)
		}
		learners = append(learners, *user)
	}
	return learners, rows.Err()
}

// GetControls returns the controls for a link, defaults when never saved
func (r *GuardianRepository) GetControls(ctx context.Context, guardianID, learnerID int64) (*models.GuardianControls, error) {
	query := `
		SELECT guardian_id, learner_id, daily_time_limit_enabled, daily_time_limit_minutes,
			notify_achievements, weekly_report, updated_at
		FROM guardian_controls
		WHERE guardian_id = ? AND learner_id = ?
	`
	c := &models.GuardianControls{}
	err := r.db.QueryRowContext(ctx, query, guardianID, learnerID).Scan(
		&c.GuardianID,
		&c.LearnerID,
		&c.DailyTimeLimitEnabled,
		&c.DailyTimeLimitMinutes,
		&c.NotifyAchievements,
		&c.WeeklyReport,
		&c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		defaults := models.DefaultGuardianControls(guardianID, learnerID)
		return &defaults, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get controls: %w", err)
	}
	return c, nil
}

// SaveControls inserts or replaces the controls for a link
func (r *GuardianRepository) SaveControls(ctx context.Context, c *models.GuardianControls) error {
	c.UpdatedAt = time.Now()
	_, err := r.db.ExecContext(ctx, r.db.GetDialect().UpsertGuardianControls(),
		c.GuardianID,
		c.LearnerID,
		c.DailyTimeLimitEnabled,
		c.DailyTimeLimitMinutes,
		c.NotifyAchievements,
		c.WeeklyReport,
		c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save controls: %w", err)
	}
	return nil
}

// GuardianContact is a guardian to notify about a learner
type GuardianContact struct {
	GuardianID int64
	Email      string
	Name       string
}

// ListAchievementSubscribers returns guardians of learnerID that want
// achievement notifications. A link without saved controls counts as opted in.
func (r *GuardianRepository) ListAchievementSubscribers(ctx context.Context, learnerID int64) ([]GuardianContact, error) {
	query := `
		SELECT u.id, u.email, u.first_name
		FROM guardian_links g
		JOIN users u ON u.id = g.guardian_id
		LEFT JOIN guardian_controls c ON c.guardian_id = g.guardian_id AND c.learner_id = g.learner_id
		WHERE g.learner_id = ? AND (c.notify_achievements IS NULL OR c.notify_achievements = ?)
		ORDER BY u.id
	`
	rows, err := r.db.QueryContext(ctx, query, learnerID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to query guardians: %w", err)
	}
	defer rows.Close()

	var contacts []GuardianContact
	for rows.Next() {
		var c GuardianContact
		if err := rows.Scan(&c.GuardianID, &c.Email, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan guardian: %w", err)
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// GuardianLink is one guardian to learner relationship
type GuardianLink struct {
	GuardianID int64 `json:"guardianId"`
	LearnerID  int64 `json:"learnerId"`
}

// ListAllLinks returns every guardian link, used by backups
func (r *GuardianRepository) ListAllLinks(ctx context.Context) ([]GuardianLink, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT guardian_id, learner_id FROM guardian_links ORDER BY guardian_id, learner_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query guardian links: %w", err)
	}
	defer rows.Close()

	var links []GuardianLink
	for rows.Next() {
		var l GuardianLink
		if err := rows.Scan(&l.GuardianID, &l.LearnerID); err != nil {
			return nil, fmt.Errorf("failed to scan guardian link: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// ListAllControls returns every saved controls row, used by backups
func (r *GuardianRepository) ListAllControls(ctx context.Context) ([]models.GuardianControls, error) {
	query := `
		SELECT guardian_id, learner_id, daily_time_limit_enabled, daily_time_limit_minutes,
			notify_achievements, weekly_report, updated_at
		FROM guardian_controls
		ORDER BY guardian_id, learner_id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query controls: %w", err)
	}
	defer rows.Close()

	var all []models.GuardianControls
	for rows.Next() {
		var c models.GuardianControls
		if err := rows.Scan(&c.GuardianID, &c.LearnerID, &c.DailyTimeLimitEnabled, &c.DailyTimeLimitMinutes,
			&c.NotifyAchievements, &c.WeeklyReport, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan controls: %w", err)
		}
		all = append(all, c)
	}
	return all, rows.Err()
}
