package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"mathquest/internal/database"
	"mathquest/internal/logger"
	"mathquest/internal/models"
	"mathquest/internal/progress"
	"mathquest/internal/repository"
)

// BackupVersion is written into every export
const BackupVersion = "1.0"

// BackupData represents the complete database backup structure
type BackupData struct {
	Version     string                    `json:"version"`
	ExportedAt  time.Time                 `json:"exported_at"`
	Users       []UserBackup              `json:"users"`
	Activities  []models.Activity         `json:"activities"`
	Completions []models.Completion       `json:"completions"`
	Sessions    []models.Session          `json:"sessions"`
	Links       []repository.GuardianLink `json:"guardian_links"`
	Controls    []models.GuardianControls `json:"guardian_controls"`
}

// UserBackup represents a user record for backup, credentials included
type UserBackup struct {
	ID               int64     `json:"id"`
	Email            string    `json:"email"`
	PasswordHash     string    `json:"password_hash"`
	FirstName        string    `json:"first_name"`
	LastName         string    `json:"last_name"`
	AccountType      string    `json:"account_type"`
	OAuthProvider    string    `json:"oauth_provider"`
	OAuthSubject     string    `json:"oauth_subject"`
	AvatarCharacter  string    `json:"avatar_character"`
	AvatarColor      string    `json:"avatar_color"`
	XP               int       `json:"xp"`
	CurrentStreak    int       `json:"current_streak"`
	TotalTimeMinutes int       `json:"total_time_minutes"`
	LastActivityDate string    `json:"last_activity_date"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// BackupService handles database backup and restore operations
type BackupService struct {
	db          *database.DB
	users       *repository.UserRepository
	activities  *repository.ActivityRepository
	completions *repository.CompletionRepository
	sessions    *repository.SessionRepository
	guardians   *repository.GuardianRepository
	log         *logger.Logger
}

// NewBackupService creates a new backup service
func NewBackupService(db *database.DB, log *logger.Logger) *BackupService {
	return &BackupService{
		db:          db,
		users:       repository.NewUserRepository(db),
		activities:  repository.NewActivityRepository(db),
		completions: repository.NewCompletionRepository(db),
		sessions:    repository.NewSessionRepository(db),
		guardians:   repository.NewGuardianRepository(db),
		log:         log.With("service", "BackupService"),
	}
}

// Snapshot reads the whole database into a BackupData
func (s *BackupService) Snapshot(ctx context.Context) (*BackupData, error) {
	backup := &BackupData{
		Version:    BackupVersion,
		ExportedAt: time.Now().UTC(),
	}

	users, err := s.users.GetAllUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to export users: %w", err)
	}
	for _, u := range users {
		backup.Users = append(backup.Users, userBackupOf(u))
	}

	if backup.Activities, err = s.activities.ListActivities(ctx, ""); err != nil {
		return nil, fmt.Errorf("failed to export activities: %w", err)
	}
	if backup.Completions, err = s.completions.ListAllCompletions(ctx); err != nil {
		return nil, fmt.Errorf("failed to export completions: %w", err)
	}
	if backup.Sessions, err = s.sessions.ListSessions(ctx); err != nil {
		return nil, fmt.Errorf("failed to export sessions: %w", err)
	}
	if backup.Links, err = s.guardians.ListAllLinks(ctx); err != nil {
		return nil, fmt.Errorf("failed to export guardian links: %w", err)
	}
	if backup.Controls, err = s.guardians.ListAllControls(ctx); err != nil {
		return nil, fmt.Errorf("failed to export guardian controls: %w", err)
	}
	return backup, nil
}

func userBackupOf(u models.User) UserBackup {
	b := UserBackup{
		ID:               u.ID,
		Email:            u.Email,
		PasswordHash:     u.PasswordHash,
		FirstName:        u.FirstName,
		LastName:         u.LastName,
		AccountType:      string(u.AccountType),
		OAuthProvider:    u.OAuthProvider,
		OAuthSubject:     u.OAuthSubject,
		AvatarCharacter:  u.AvatarCharacter,
		AvatarColor:      u.AvatarColor,
		XP:               u.XP,
		CurrentStreak:    u.CurrentStreak,
		TotalTimeMinutes: u.TotalTimeMinutes,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
	if u.LastActivityDate != nil {
		b.LastActivityDate = progress.FormatDate(*u.LastActivityDate)
	}
	return b
}

// Export writes a JSON backup to w
func (s *BackupService) Export(ctx context.Context, w io.Writer) (*BackupData, error) {
	backup, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(backup); err != nil {
		return nil, fmt.Errorf("failed to encode backup: %w", err)
	}

	s.log.Info("Database exported",
		"users", len(backup.Users),
		"activities", len(backup.Activities),
		"completions", len(backup.Completions),
		"sessions", len(backup.Sessions),
	)
	return backup, nil
}

// ExportToFile writes a JSON backup to outputPath
func (s *BackupService) ExportToFile(ctx context.Context, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	_, err = s.Export(ctx, file)
	return err
}

// ImportFromFile restores a backup file. See Import.
func (s *BackupService) ImportFromFile(ctx context.Context, inputPath string, clear bool) error {
	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()
	return s.Import(ctx, file, clear)
}

// Import restores a backup in one transaction, keeping the original ids.
// With clear set every table is emptied first; otherwise rows that already
// exist make the whole import fail and nothing is written.
func (s *BackupService) Import(ctx context.Context, r io.Reader, clear bool) error {
	var backup BackupData
	if err := json.NewDecoder(r).Decode(&backup); err != nil {
		return fmt.Errorf("failed to decode backup: %w", err)
	}
	if backup.Version != BackupVersion {
		return fmt.Errorf("unsupported backup version %q", backup.Version)
	}
	s.log.Info("Importing backup", "exportedAt", backup.ExportedAt, "clear", clear)

	err := s.db.RunInTx(ctx, func(tx *database.Tx) error {
		if clear {
			if err := clearTables(ctx, tx); err != nil {
				return err
			}
		}
		steps := []struct {
			name string
			fn   func(context.Context, *database.Tx, *BackupData) error
		}{
			{"users", importUsers},
			{"activities", importActivities},
			{"completions", importCompletions},
			{"sessions", importSessions},
			{"guardian links", importGuardians},
		}
		for _, step := range steps {
			if err := step.fn(ctx, tx, &backup); err != nil {
				return fmt.Errorf("failed to import %s: %w", step.name, err)
			}
		}
		for _, table := range []string{"users", "activities", "sessions"} {
			if q := tx.GetDialect().ResetSequence(table); q != "" {
				if _, err := tx.ExecContext(ctx, q); err != nil {
					return fmt.Errorf("failed to reset %s ids: %w", table, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info("Database import completed",
		"users", len(backup.Users),
		"activities", len(backup.Activities),
		"sessions", len(backup.Sessions),
	)
	return nil
}

// ClearAll empties every application table
func (s *BackupService) ClearAll(ctx context.Context) error {
	return s.db.RunInTx(ctx, func(tx *database.Tx) error {
		return clearTables(ctx, tx)
	})
}

func clearTables(ctx context.Context, tx *database.Tx) error {
	tables := []string{
		"session_participants", "sessions", "user_completions",
		"guardian_controls", "guardian_links", "password_reset_tokens",
		"login_sessions", "activities", "users",
	}
	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

func importUsers(ctx context.Context, tx *database.Tx, backup *BackupData) error {
	query := `
		INSERT INTO users (id, email, password_hash, first_name, last_name, account_type,
			oauth_provider, oauth_subject, avatar_character, avatar_color, xp, current_streak,
			total_time_minutes, last_activity_date, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, u := range backup.Users {
		_, err := tx.ExecContext(ctx, query,
			u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.AccountType,
			nullIfEmpty(u.OAuthProvider), nullIfEmpty(u.OAuthSubject),
			u.AvatarCharacter, u.AvatarColor, u.XP, u.CurrentStreak, u.TotalTimeMinutes,
			nullIfEmpty(u.LastActivityDate), 0, u.CreatedAt, u.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("user %d: %w", u.ID, err)
		}
	}
	return nil
}

func importActivities(ctx context.Context, tx *database.Tx, backup *BackupData) error {
	query := `
		INSERT INTO activities (id, title, description, content_type, difficulty, duration_label,
			xp_value, unlock_level, icon, url, body, quiz_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, a := range backup.Activities {
		quiz := ""
		if len(a.Questions) > 0 {
			data, err := json.Marshal(a.Questions)
			if err != nil {
				return err
			}
			quiz = string(data)
		}
		var unlock interface{}
		if a.UnlockLevel != nil {
			unlock = *a.UnlockLevel
		}
		_, err := tx.ExecContext(ctx, query,
			a.ID, a.Title, a.Description, string(a.ContentType), a.Difficulty, a.DurationLabel,
			a.XPValue, unlock, a.Icon, a.URL, a.Body, quiz, a.CreatedAt, a.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("activity %d: %w", a.ID, err)
		}
	}
	return nil
}

func importCompletions(ctx context.Context, tx *database.Tx, backup *BackupData) error {
	query := `
		INSERT INTO user_completions (user_id, activity_id, xp_awarded, minutes_credited, completed_at)
		VALUES (?, ?, ?, ?, ?)
	`
	for _, c := range backup.Completions {
		if _, err := tx.ExecContext(ctx, query, c.UserID, c.ActivityID, c.XPAwarded, c.MinutesCredited, c.CompletedAt); err != nil {
			return fmt.Errorf("completion %d/%d: %w", c.UserID, c.ActivityID, err)
		}
	}
	return nil
}

func importSessions(ctx context.Context, tx *database.Tx, backup *BackupData) error {
	query := `
		INSERT INTO sessions (id, name, day, start_time, end_time, session_type, teacher,
			capacity, is_full, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	rosterQuery := "INSERT INTO session_participants (session_id, participant_id, position) VALUES (?, ?, ?)"

	for _, session := range backup.Sessions {
		var capacity interface{}
		if session.Capacity != nil {
			capacity = *session.Capacity
		}
		isFull := session.FullWith(len(session.Participants))
		_, err := tx.ExecContext(ctx, query,
			session.ID, session.Name, session.Day, session.StartTime, session.EndTime,
			string(session.Type), session.Teacher, capacity, isFull, 0,
			session.CreatedAt, session.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("session %d: %w", session.ID, err)
		}
		for i, participant := range session.Participants {
			if _, err := tx.ExecContext(ctx, rosterQuery, session.ID, participant, i+1); err != nil {
				return fmt.Errorf("session %d participant %d: %w", session.ID, participant, err)
			}
		}
	}
	return nil
}

func importGuardians(ctx context.Context, tx *database.Tx, backup *BackupData) error {
	guardians := repository.NewGuardianRepository(tx)
	for _, l := range backup.Links {
		if err := guardians.LinkLearner(ctx, l.GuardianID, l.LearnerID); err != nil {
			return err
		}
	}
	for i := range backup.Controls {
		if err := guardians.SaveControls(ctx, &backup.Controls[i]); err != nil {
			return err
		}
	}
	return nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
