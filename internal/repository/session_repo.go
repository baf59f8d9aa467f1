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

// SessionRepository handles scheduled sessions and their rosters
type SessionRepository struct {
	db database.DBTX
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db database.DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *SessionRepository) WithTx(tx database.DBTX) *SessionRepository {
	return &SessionRepository{db: tx}
}

const sessionColumns = `id, name, day, start_time, end_time, session_type, teacher,
	capacity, is_full, version, created_at, updated_at`

func scanSession(row rowScanner) (*models.Session, error) {
	s := &models.Session{}
	var capacity sql.NullInt64
	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.Day,
		&s.StartTime,
		&s.EndTime,
		&s.Type,
		&s.Teacher,
		&capacity,
		&s.IsFull,
		&s.Version,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if capacity.Valid {
		c := int(capacity.Int64)
		s.Capacity = &c
	}
	s.Participants = []int64{}
	return s, nil
}

// CreateSession inserts a session with an empty roster
func (r *SessionRepository) CreateSession(ctx context.Context, s *models.Session) (*models.Session, error) {
	now := time.Now()
	isFull := s.FullWith(0)
	query := `
		INSERT INTO sessions (name, day, start_time, end_time, session_type, teacher,
			capacity, is_full, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query,
		s.Name,
		s.Day,
		s.StartTime,
		s.EndTime,
		string(s.Type),
		s.Teacher,
		nullableInt(s.Capacity),
		isFull,
		0,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	created := *s
	created.ID = id
	created.Participants = []int64{}
	created.IsFull = isFull
	created.Version = 0
	created.CreatedAt = now
	created.UpdatedAt = now
	return &created, nil
}

// GetSessionByID retrieves a session with its roster, nil when absent
func (r *SessionRepository) GetSessionByID(ctx context.Context, id int64) (*models.Session, error) {
	query := "SELECT " + sessionColumns + " FROM sessions WHERE id = ?"
	s, err := scanSession(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	participants, err := r.listParticipants(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Participants = participants
	return s, nil
}

func (r *SessionRepository) listParticipants(ctx context.Context, sessionID int64) ([]int64, error) {
	query := "SELECT participant_id FROM session_participants WHERE session_id = ? ORDER BY position"
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer rows.Close()

	participants := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, id)
	}
	return participants, rows.Err()
}

// ListSessions returns all sessions with their rosters
func (r *SessionRepository) ListSessions(ctx context.Context) ([]models.Session, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+sessionColumns+" FROM sessions ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	index := make(map[int64]int)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		index[s.ID] = len(sessions)
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	roster, err := r.db.QueryContext(ctx,
		"SELECT session_id, participant_id FROM session_participants ORDER BY session_id, position")
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer roster.Close()

	for roster.Next() {
		var sessionID, participantID int64
		if err := roster.Scan(&sessionID, &participantID); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		if i, ok := index[sessionID]; ok {
			sessions[i].Participants = append(sessions[i].Participants, participantID)
		}
	}
	return sessions, roster.Err()
}

// ListSessionIDsForParticipant returns the sessions a user is enrolled in
func (r *SessionRepository) ListSessionIDsForParticipant(ctx context.Context, participantID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT session_id FROM session_participants WHERE participant_id = ? ORDER BY session_id", participantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query enrollments: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan enrollment: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AddParticipant appends participantID to the end of the roster
func (r *SessionRepository) AddParticipant(ctx context.Context, sessionID, participantID int64) error {
	var position int
	err := r.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(position), 0) + 1 FROM session_participants WHERE session_id = ?", sessionID).Scan(&position)
	if err != nil {
		return fmt.Errorf("failed to read roster position: %w", err)
	}

	query := "INSERT INTO session_participants (session_id, participant_id, position, joined_at) VALUES (?, ?, ?, ?)"
	if _, err := r.db.ExecContext(ctx, query, sessionID, participantID, position, time.Now()); err != nil {
		if r.db.GetDialect().IsUniqueViolation(err) {
			return database.ErrConflict
		}
		return fmt.Errorf("failed to add participant: %w", err)
	}
	return nil
}

// RemoveParticipant deletes every roster entry for participantID
func (r *SessionRepository) RemoveParticipant(ctx context.Context, sessionID, participantID int64) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM session_participants WHERE session_id = ? AND participant_id = ?", sessionID, participantID)
	if err != nil {
		return 0, fmt.Errorf("failed to remove participant: %w", err)
	}
	return result.RowsAffected()
}

// UpdateRosterState writes the derived full flag if version is still
// current. Returns database.ErrConflict otherwise.
func (r *SessionRepository) UpdateRosterState(ctx context.Context, sessionID int64, version int64, isFull bool) error {
	query := `
		UPDATE sessions SET is_full = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`
	result, err := r.db.ExecContext(ctx, query, isFull, time.Now(), sessionID, version)
	if err != nil {
		return fmt.Errorf("failed to update session roster state: %w", err)
	}
	return requireOneRow(result)
}

// UpdateSessionDetails overwrites the editable fields and the derived full
// flag under a version check
func (r *SessionRepository) UpdateSessionDetails(ctx context.Context, s *models.Session) error {
	query := `
		UPDATE sessions
		SET name = ?, day = ?, start_time = ?, end_time = ?, session_type = ?, teacher = ?,
			capacity = ?, is_full = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		s.Name,
		s.Day,
		s.StartTime,
		s.EndTime,
		string(s.Type),
		s.Teacher,
		nullableInt(s.Capacity),
		s.IsFull,
		time.Now(),
		s.ID,
		s.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if err := requireOneRow(result); err != nil {
		return err
	}
	s.Version++
	return nil
}

// DeleteSession removes a session and its roster
func (r *SessionRepository) DeleteSession(ctx context.Context, id int64) (bool, error) {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM session_participants WHERE session_id = ?", id); err != nil {
		return false, fmt.Errorf("failed to delete roster: %w", err)
	}
	result, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteAllSessions clears the schedule, used by backup restore
func (r *SessionRepository) DeleteAllSessions(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM session_participants"); err != nil {
		return fmt.Errorf("failed to clear rosters: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, "DELETE FROM sessions"); err != nil {
		return fmt.Errorf("failed to clear sessions: %w", err)
	}
	return nil
}
