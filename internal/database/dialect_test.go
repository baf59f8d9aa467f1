package database

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

func TestDialectSQLite(t *testing.T) {
	dialect := NewSQLiteDialect()

	t.Run("DriverName", func(t *testing.T) {
		result := dialect.DriverName()
		expected := "sqlite3"
		if result != expected {
			t.Errorf("DriverName() = %v, want %v", result, expected)
		}
	})

	t.Run("SupportsLastInsertId", func(t *testing.T) {
		result := dialect.SupportsLastInsertId()
		if !result {
			t.Error("SupportsLastInsertId() should return true for SQLite")
		}
	})

	t.Run("MigrationsSubdir", func(t *testing.T) {
		result := dialect.MigrationsSubdir()
		expected := "sqlite"
		if result != expected {
			t.Errorf("MigrationsSubdir() = %v, want %v", result, expected)
		}
	})
}

func TestDialectPostgreSQL(t *testing.T) {
	dialect := NewPostgresDialect()

	t.Run("DriverName", func(t *testing.T) {
		result := dialect.DriverName()
		expected := "postgres"
		if result != expected {
			t.Errorf("DriverName() = %v, want %v", result, expected)
		}
	})

	t.Run("SupportsLastInsertId", func(t *testing.T) {
		result := dialect.SupportsLastInsertId()
		if result {
			t.Error("SupportsLastInsertId() should return false for PostgreSQL")
		}
	})

	t.Run("MigrationsSubdir", func(t *testing.T) {
		result := dialect.MigrationsSubdir()
		expected := "postgres"
		if result != expected {
			t.Errorf("MigrationsSubdir() = %v, want %v", result, expected)
		}
	})
}

func TestDialectMySQL(t *testing.T) {
	dialect := NewMySQLDialect()

	t.Run("DriverName", func(t *testing.T) {
		result := dialect.DriverName()
		expected := "mysql"
		if result != expected {
			t.Errorf("DriverName() = %v, want %v", result, expected)
		}
	})

	t.Run("SupportsLastInsertId", func(t *testing.T) {
		result := dialect.SupportsLastInsertId()
		if !result {
			t.Error("SupportsLastInsertId() should return true for MySQL")
		}
	})

	t.Run("MigrationsSubdir", func(t *testing.T) {
		result := dialect.MigrationsSubdir()
		expected := "mysql"
		if result != expected {
			t.Errorf("MigrationsSubdir() = %v, want %v", result, expected)
		}
	})
}

func TestRewriteQuery(t *testing.T) {
	tests := []struct {
		name     string
		dialect  Dialect
		query    string
		expected string
	}{
		{
			name:     "SQLite no change",
			dialect:  NewSQLiteDialect(),
			query:    "SELECT * FROM users WHERE id = ?",
			expected: "SELECT * FROM users WHERE id = ?",
		},
		{
			name:     "PostgreSQL single placeholder",
			dialect:  NewPostgresDialect(),
			query:    "SELECT * FROM users WHERE id = ?",
			expected: "SELECT * FROM users WHERE id = $1",
		},
		{
			name:     "PostgreSQL multiple placeholders",
			dialect:  NewPostgresDialect(),
			query:    "INSERT INTO users (name, email) VALUES (?, ?)",
			expected: "INSERT INTO users (name, email) VALUES ($1, $2)",
		},
		{
			name:     "MySQL no change",
			dialect:  NewMySQLDialect(),
			query:    "UPDATE users SET name = ?, email = ? WHERE id = ?",
			expected: "UPDATE users SET name = ?, email = ? WHERE id = ?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.dialect.RewriteQuery(tt.query)
			if result != tt.expected {
				t.Errorf("RewriteQuery() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestSQLiteDSNOptions(t *testing.T) {
	dsn := NewSQLiteDialect().DSN(DialectConfig{Path: "/tmp/mathquest.db"})
	for _, opt := range []string{"_txlock=immediate", "_busy_timeout=5000", "_foreign_keys=on"} {
		if !strings.Contains(dsn, opt) {
			t.Errorf("DSN %q missing %s", dsn, opt)
		}
	}
	if !strings.HasPrefix(dsn, "/tmp/mathquest.db?") {
		t.Errorf("DSN %q should start with the path", dsn)
	}

	withQuery := NewSQLiteDialect().DSN(DialectConfig{Path: "file:test.db?cache=private"})
	if strings.Count(withQuery, "?") != 1 {
		t.Errorf("DSN %q should keep a single query separator", withQuery)
	}
}

func TestIsConflict(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		err     error
		want    bool
	}{
		{"sqlite busy", NewSQLiteDialect(), sqlite3.Error{Code: sqlite3.ErrBusy}, true},
		{"sqlite locked wrapped", NewSQLiteDialect(), fmt.Errorf("update: %w", sqlite3.Error{Code: sqlite3.ErrLocked}), true},
		{"sqlite constraint", NewSQLiteDialect(), sqlite3.Error{Code: sqlite3.ErrConstraint}, false},
		{"postgres serialization", NewPostgresDialect(), &pq.Error{Code: "40001"}, true},
		{"postgres deadlock", NewPostgresDialect(), &pq.Error{Code: "40P01"}, true},
		{"postgres unique", NewPostgresDialect(), &pq.Error{Code: "23505"}, false},
		{"mysql deadlock", NewMySQLDialect(), &mysql.MySQLError{Number: 1213}, true},
		{"mysql lock wait", NewMySQLDialect(), &mysql.MySQLError{Number: 1205}, true},
		{"mysql duplicate", NewMySQLDialect(), &mysql.MySQLError{Number: 1062}, false},
		{"plain error", NewPostgresDialect(), errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.dialect.IsConflict(tt.err); got != tt.want {
				t.Errorf("IsConflict(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		err     error
		want    bool
	}{
		{"sqlite unique", NewSQLiteDialect(), sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, true},
		{"sqlite primary key", NewSQLiteDialect(), sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintPrimaryKey}, true},
		{"sqlite busy", NewSQLiteDialect(), sqlite3.Error{Code: sqlite3.ErrBusy}, false},
		{"postgres unique", NewPostgresDialect(), &pq.Error{Code: "23505"}, true},
		{"mysql duplicate", NewMySQLDialect(), &mysql.MySQLError{Number: 1062}, true},
		{"mysql deadlock", NewMySQLDialect(), &mysql.MySQLError{Number: 1213}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.dialect.IsUniqueViolation(tt.err); got != tt.want {
				t.Errorf("IsUniqueViolation(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestDialectStatements(t *testing.T) {
	for _, d := range []Dialect{NewSQLiteDialect(), NewPostgresDialect()} {
		if !strings.Contains(d.UpsertGuardianControls(), "ON CONFLICT (guardian_id, learner_id)") {
			t.Errorf("%s upsert = %q", d.DriverName(), d.UpsertGuardianControls())
		}
	}
	if !strings.Contains(NewMySQLDialect().UpsertGuardianControls(), "ON DUPLICATE KEY UPDATE") {
		t.Errorf("mysql upsert = %q", NewMySQLDialect().UpsertGuardianControls())
	}

	if got := NewSQLiteDialect().ResetSequence("users"); got != "" {
		t.Errorf("sqlite ResetSequence = %q, want empty", got)
	}
	if got := NewPostgresDialect().ResetSequence("users"); !strings.Contains(got, "pg_get_serial_sequence('users', 'id')") {
		t.Errorf("postgres ResetSequence = %q", got)
	}
}

func TestSplitStatements(t *testing.T) {
	content := `
-- comment line
CREATE TABLE a (id INTEGER);

CREATE TABLE b (
    id INTEGER -- trailing comment kept
);
`
	stmts := splitStatements(content)
	if len(stmts) != 2 {
		t.Fatalf("got %d statements, want 2: %q", len(stmts), stmts)
	}
	if !strings.HasPrefix(stmts[0], "CREATE TABLE a") {
		t.Errorf("first statement = %q", stmts[0])
	}
}
