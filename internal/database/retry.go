package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// DefaultMaxTxAttempts is used when no attempt bound was configured
const DefaultMaxTxAttempts = 5

var (
	// ErrConflict is returned by a transaction body when its optimistic read
	// was invalidated, typically a version compare-and-swap that matched no row.
	ErrConflict = errors.New("concurrent modification")

	// ErrRetryExhausted means a transaction kept conflicting until the attempt bound
	ErrRetryExhausted = errors.New("transaction retries exhausted")
)

// RunInTx runs fn inside a single transaction. fn's error rolls back.
func (db *DB) RunInTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RetryTx runs fn in a transaction and re-runs the whole read-modify-write
// when it conflicts with a concurrent writer. A conflict is ErrConflict from
// fn or a driver error the dialect classifies as one. Any other error aborts
// immediately. After the attempt bound the last conflict is wrapped in
// ErrRetryExhausted.
func (db *DB) RetryTx(ctx context.Context, fn func(tx *Tx) error) error {
	attempts := db.maxTxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxTxAttempts
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond

	var lastConflict error
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := db.RunInTx(ctx, fn)
		if err == nil {
			return struct{}{}, nil
		}
		if errors.Is(err, ErrConflict) || db.Dialect.IsConflict(err) {
			lastConflict = err
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(attempts)),
	)
	if err == nil {
		return nil
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Err
	}
	if lastConflict != nil && (errors.Is(err, ErrConflict) || db.Dialect.IsConflict(err)) {
		return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempts, lastConflict)
	}
	return err
}
