package database

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMigrationsPath = "../../migrations"

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Initialize(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.RunMigrations(context.Background(), testMigrationsPath)
	require.NoError(t, err)
	return db
}

// TestDatabaseIntegration tests the complete database lifecycle
func TestDatabaseIntegration(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	tables := []string{
		"users", "login_sessions", "password_reset_tokens", "activities",
		"user_completions", "sessions", "session_participants",
		"guardian_links", "guardian_controls",
	}
	for _, table := range tables {
		var name string
		err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %s not found", table)
	}

	applied, err := db.RunMigrations(ctx, testMigrationsPath)
	require.NoError(t, err)
	assert.Empty(t, applied, "migrations must not run twice")
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.RunInTx(ctx, func(tx *Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO users (email, first_name, account_type) VALUES (?, ?, ?)",
			"rollback@example.com", "Rollback", "learner"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE email = ?", "rollback@example.com").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestRetryTxRetriesConflicts(t *testing.T) {
	db := openTestDB(t)
	db.SetMaxTxAttempts(4)
	ctx := context.Background()

	calls := 0
	err := db.RetryTx(ctx, func(tx *Tx) error {
		calls++
		if calls < 3 {
			return ErrConflict
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryTxExhaustsAttempts(t *testing.T) {
	db := openTestDB(t)
	db.SetMaxTxAttempts(3)
	ctx := context.Background()

	calls := 0
	err := db.RetryTx(ctx, func(tx *Tx) error {
		calls++
		return ErrConflict
	})
	require.ErrorIs(t, err, ErrRetryExhausted)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 3, calls)
}

func TestRetryTxDoesNotRetryOtherErrors(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	notFound := errors.New("not found")

	calls := 0
	err := db.RetryTx(ctx, func(tx *Tx) error {
		calls++
		return notFound
	})
	require.ErrorIs(t, err, notFound)
	assert.NotErrorIs(t, err, ErrRetryExhausted)
	assert.Equal(t, 1, calls)
}

// TestConcurrentCompareAndSwap increments a versioned counter from many
// goroutines; every increment must land exactly once.
func TestConcurrentCompareAndSwap(t *testing.T) {
	db := openTestDB(t)
	db.SetMaxTxAttempts(50)
	ctx := context.Background()

	id, err := db.ExecReturningID(ctx, "INSERT INTO users (email, first_name, account_type) VALUES (?, ?, ?)",
		"counter@example.com", "Counter", "learner")
	require.NoError(t, err)

	const workers = 10
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- db.RetryTx(ctx, func(tx *Tx) error {
				var xp, version int
				if err := tx.QueryRowContext(ctx, "SELECT xp, version FROM users WHERE id = ?", id).Scan(&xp, &version); err != nil {
					return err
				}
				res, err := tx.ExecContext(ctx, "UPDATE users SET xp = ?, version = version + 1 WHERE id = ? AND version = ?", xp+10, id, version)
				if err != nil {
					return err
				}
				if n, _ := res.RowsAffected(); n == 0 {
					return ErrConflict
				}
				return nil
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var xp, version int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT xp, version FROM users WHERE id = ?", id).Scan(&xp, &version))
	assert.Equal(t, workers*10, xp)
	assert.Equal(t, workers, version)
}
