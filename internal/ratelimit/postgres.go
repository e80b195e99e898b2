package ratelimit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/assessment-platform/assessment-api/internal/db"
)

// PostgresLimiter keeps one rate_limit_hits row per attempt. A transaction-scoped advisory
// lock on the key serializes concurrent attempts so two requests at the boundary cannot
// both be admitted.
type PostgresLimiter struct {
	db     *sqlx.DB
	window time.Duration
}

// NewPostgresLimiter creates a limiter over the rate_limit_hits table.
func NewPostgresLimiter(database *sqlx.DB, window time.Duration) *PostgresLimiter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &PostgresLimiter{db: database, window: window}
}

type windowState struct {
	Count  int          `db:"count"`
	Oldest sql.NullTime `db:"oldest"`
	Now    time.Time    `db:"now"`
}

// Admit records the attempt and reports whether it fits in the window.
func (l *PostgresLimiter) Admit(ctx context.Context, keyID string, limit int) (*Decision, error) {
	var decision *Decision
	err := db.WithTx(ctx, l.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, keyID); err != nil {
			return fmt.Errorf("failed to lock rate limit key: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM rate_limit_hits
			WHERE api_key_id = $1 AND created_at <= clock_timestamp() - make_interval(secs => $2)
		`, keyID, l.window.Seconds()); err != nil {
			return fmt.Errorf("failed to prune rate limit window: %w", err)
		}

		var state windowState
		if err := tx.GetContext(ctx, &state, `
			SELECT COUNT(*) AS count, MIN(created_at) AS oldest, clock_timestamp() AS now
			FROM rate_limit_hits
			WHERE api_key_id = $1
		`, keyID); err != nil {
			return fmt.Errorf("failed to count rate limit window: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `INSERT INTO rate_limit_hits (api_key_id) VALUES ($1)`, keyID); err != nil {
			return fmt.Errorf("failed to record rate limit hit: %w", err)
		}

		var oldest time.Time
		if state.Oldest.Valid {
			oldest = state.Oldest.Time
		}
		decision = decide(state.Count, limit, oldest, state.Now, l.window)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return decision, nil
}
