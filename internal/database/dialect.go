package database

import (
	"database/sql"
	"regexp"
	"strconv"
)

// Dialect defines the interface for database-specific operations
type Dialect interface {
	// DriverName returns the driver name for sql.Open
	DriverName() string

	// DSN returns the data source name for the connection
	DSN(config DialectConfig) string

	// RewriteQuery converts placeholder syntax if needed (e.g., ? to $1 for postgres)
	RewriteQuery(query string) string

	// SupportsLastInsertId returns true if the driver supports LastInsertId()
	SupportsLastInsertId() bool

	// ConfigureConnection applies any database-specific connection settings
	ConfigureConnection(db *sql.DB) error

	// MigrationsSubdir returns the subdirectory name for migrations (e.g., "sqlite", "postgres")
	MigrationsSubdir() string

	// CreateMigrationsTableQuery returns the SQL to create the migrations tracking table
	CreateMigrationsTableQuery() string

	// IsConflict reports whether err means a concurrent writer invalidated
	// the transaction (serialization failure, deadlock, busy database).
	IsConflict(err error) bool

	// IsUniqueViolation reports whether err is a unique/primary key violation
	IsUniqueViolation(err error) bool

	// UpsertGuardianControls returns the insert-or-update for guardian_controls
	UpsertGuardianControls() string

	// ResetSequence returns the statement that moves table's id generator past
	// explicitly inserted ids, or "" when the engine does that itself
	ResetSequence(table string) string
}

// DialectConfig holds configuration for database connection
type DialectConfig struct {
	// For SQLite
	Path string

	// For PostgreSQL/MySQL
	URL string
}

var placeholderRegexp = regexp.MustCompile(`\?`)

// rewritePlaceholdersToNumbered converts ? placeholders to $1, $2, etc.
func rewritePlaceholdersToNumbered(query string) string {
	counter := 0
	return placeholderRegexp.ReplaceAllStringFunc(query, func(match string) string {
		counter++
		return "$" + strconv.Itoa(counter)
	})
}

const upsertGuardianControlsOnConflict = `
	INSERT INTO guardian_controls (guardian_id, learner_id, daily_time_limit_enabled,
		daily_time_limit_minutes, notify_achievements, weekly_report, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (guardian_id, learner_id) DO UPDATE SET
		daily_time_limit_enabled = excluded.daily_time_limit_enabled,
		daily_time_limit_minutes = excluded.daily_time_limit_minutes,
		notify_achievements = excluded.notify_achievements,
		weekly_report = excluded.weekly_report,
		updated_at = excluded.updated_at
`
