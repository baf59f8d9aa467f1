package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mathquest/internal/database"
	"mathquest/internal/models"
	"mathquest/internal/progress"
)

// UserRepository handles database operations for users and login sessions
type UserRepository struct {
	db database.DBTX
}

// NewUserRepository creates a new user repository
func NewUserRepository(db database.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *UserRepository) WithTx(tx database.DBTX) *UserRepository {
	return &UserRepository{db: tx}
}

const userColumns = `id, email, password_hash, first_name, last_name, account_type,
	COALESCE(oauth_provider, ''), COALESCE(oauth_subject, ''),
	avatar_character, avatar_color, xp, current_streak, total_time_minutes,
	last_activity_date, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	var lastActivity sql.NullString
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.AccountType,
		&user.OAuthProvider,
		&user.OAuthSubject,
		&user.AvatarCharacter,
		&user.AvatarColor,
		&user.XP,
		&user.CurrentStreak,
		&user.TotalTimeMinutes,
		&lastActivity,
		&user.Version,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastActivity.Valid && lastActivity.String != "" {
		d, err := progress.ParseDate(lastActivity.String)
		if err != nil {
			return nil, fmt.Errorf("invalid last_activity_date %q: %w", lastActivity.String, err)
		}
		user.LastActivityDate = &d
	}
	return user, nil
}

func nullableDate(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return progress.FormatDate(*t)
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// CreateUser inserts a new account with zeroed progress. Avatar fields fall
// back to the defaults when empty.
func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	if user.AvatarCharacter == "" {
		user.AvatarCharacter = progress.DefaultCharacter
	}
	if user.AvatarColor == "" {
		user.AvatarColor = progress.DefaultColor
	}

	query := `
		INSERT INTO users (email, password_hash, first_name, last_name, account_type,
			oauth_provider, oauth_subject, avatar_character, avatar_color)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		string(user.AccountType),
		nullableString(user.OAuthProvider),
		nullableString(user.OAuthSubject),
		user.AvatarCharacter,
		user.AvatarColor,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	now := time.Now()
	created := *user
	created.ID = id
	created.XP = 0
	created.CurrentStreak = 0
	created.TotalTimeMinutes = 0
	created.LastActivityDate = nil
	created.Version = 0
	created.CreatedAt = now
	created.UpdatedAt = now
	return &created, nil
}

// GetUserByID retrieves a user by ID, nil when absent
func (r *UserRepository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE id = ?"
	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email address, nil when absent
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE email = ?"
	user, err := scanUser(r.db.QueryRowContext(ctx, query, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUserByOAuth retrieves a user by federated identity, nil when absent
func (r *UserRepository) GetUserByOAuth(ctx context.Context, provider, subject string) (*models.User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE oauth_provider = ? AND oauth_subject = ?"
	user, err := scanUser(r.db.QueryRowContext(ctx, query, provider, subject))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by oauth: %w", err)
	}
	return user, nil
}

// LinkOAuth attaches a federated identity to an existing account
func (r *UserRepository) LinkOAuth(ctx context.Context, userID int64, provider, subject string) error {
	query := "UPDATE users SET oauth_provider = ?, oauth_subject = ?, updated_at = ? WHERE id = ?"
	if _, err := r.db.ExecContext(ctx, query, provider, subject, time.Now(), userID); err != nil {
		return fmt.Errorf("failed to link oauth identity: %w", err)
	}
	return nil
}

// UpdatePassword replaces a user's password hash
func (r *UserRepository) UpdatePassword(ctx context.Context, userID int64, passwordHash string) error {
	query := "UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?"
	if _, err := r.db.ExecContext(ctx, query, passwordHash, time.Now(), userID); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

// UpdateProgress writes the learner-earned fields of user if its version is
// still current. Returns database.ErrConflict when another writer got there
// first. On success user.Version is advanced.
func (r *UserRepository) UpdateProgress(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users
		SET xp = ?, current_streak = ?, total_time_minutes = ?, last_activity_date = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		user.XP,
		user.CurrentStreak,
		user.TotalTimeMinutes,
		nullableDate(user.LastActivityDate),
		time.Now(),
		user.ID,
		user.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	if err := requireOneRow(result); err != nil {
		return err
	}
	user.Version++
	return nil
}

// UpdateAvatar changes the cosmetic avatar fields under the same version
// check as progress updates
func (r *UserRepository) UpdateAvatar(ctx context.Context, userID int64, version int64, character, color string) error {
	query := `
		UPDATE users
		SET avatar_character = ?, avatar_color = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`
	result, err := r.db.ExecContext(ctx, query, character, color, time.Now(), userID, version)
	if err != nil {
		return fmt.Errorf("failed to update avatar: %w", err)
	}
	return requireOneRow(result)
}

// GetAllUsers retrieves all users, newest first
func (r *UserRepository) GetAllUsers(ctx context.Context) ([]models.User, error) {
	query := "SELECT " + userColumns + " FROM users ORDER BY created_at DESC, id DESC"
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// CreateLoginSession stores a new login session for a user
func (r *UserRepository) CreateLoginSession(ctx context.Context, sessionID string, userID int64, expiresAt time.Time) (*models.LoginSession, error) {
	query := "INSERT INTO login_sessions (id, user_id, expires_at) VALUES (?, ?, ?)"
	if _, err := r.db.ExecContext(ctx, query, sessionID, userID, expiresAt); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &models.LoginSession{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}, nil
}

// GetLoginSession retrieves a login session by ID, nil when absent
func (r *UserRepository) GetLoginSession(ctx context.Context, sessionID string) (*models.LoginSession, error) {
	query := "SELECT id, user_id, expires_at, created_at FROM login_sessions WHERE id = ?"
	session := &models.LoginSession{}
	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&session.ID,
		&session.UserID,
		&session.ExpiresAt,
		&session.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// DeleteLoginSession removes a login session
func (r *UserRepository) DeleteLoginSession(ctx context.Context, sessionID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM login_sessions WHERE id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteUserLoginSessions signs a user out everywhere
func (r *UserRepository) DeleteUserLoginSessions(ctx context.Context, userID int64) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM login_sessions WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return nil
}

// DeleteUserPasswordResetTokens drops any outstanding reset tokens for a user
func (r *UserRepository) DeleteUserPasswordResetTokens(ctx context.Context, userID int64) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM password_reset_tokens WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("failed to delete reset tokens: %w", err)
	}
	return nil
}

// DeleteExpiredLoginSessions removes all expired login sessions
func (r *UserRepository) DeleteExpiredLoginSessions(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM login_sessions WHERE expires_at < ?", time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return result.RowsAffected()
}

// CreatePasswordResetToken stores a single-use reset token
func (r *UserRepository) CreatePasswordResetToken(ctx context.Context, token string, userID int64, expiresAt time.Time) error {
	query := "INSERT INTO password_reset_tokens (token, user_id, expires_at, used) VALUES (?, ?, ?, ?)"
	if _, err := r.db.ExecContext(ctx, query, token, userID, expiresAt, false); err != nil {
		return fmt.Errorf("failed to create reset token: %w", err)
	}
	return nil
}

// GetPasswordResetToken retrieves a reset token, nil when absent
func (r *UserRepository) GetPasswordResetToken(ctx context.Context, token string) (*models.PasswordResetToken, error) {
	query := "SELECT token, user_id, expires_at, created_at, used FROM password_reset_tokens WHERE token = ?"
	t := &models.PasswordResetToken{}
	err := r.db.QueryRowContext(ctx, query, token).Scan(&t.Token, &t.UserID, &t.ExpiresAt, &t.CreatedAt, &t.Used)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reset token: %w", err)
	}
	return t, nil
}

// MarkPasswordResetTokenUsed consumes a reset token. Returns
// database.ErrConflict if it was already used.
func (r *UserRepository) MarkPasswordResetTokenUsed(ctx context.Context, token string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE password_reset_tokens SET used = ? WHERE token = ? AND used = ?", true, token, false)
	if err != nil {
		return fmt.Errorf("failed to mark reset token used: %w", err)
	}
	return requireOneRow(result)
}

// DeleteExpiredPasswordResetTokens removes expired or used reset tokens
func (r *UserRepository) DeleteExpiredPasswordResetTokens(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM password_reset_tokens WHERE expires_at < ? OR used = ?", time.Now(), true)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired reset tokens: %w", err)
	}
	return result.RowsAffected()
}

func requireOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return database.ErrConflict
	}
	return nil
}
