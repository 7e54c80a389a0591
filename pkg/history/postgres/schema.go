package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlSessionLog = `
CREATE TABLE IF NOT EXISTS session_log (
    id           BIGSERIAL    PRIMARY KEY,
    session_id   TEXT         NOT NULL,
    source       TEXT         NOT NULL,
    outcome      TEXT         NOT NULL,
    stop_reason  TEXT         NOT NULL DEFAULT '',
    transcript   TEXT         NOT NULL DEFAULT '',
    frames       INTEGER      NOT NULL DEFAULT 0,
    duration_ns  BIGINT       NOT NULL DEFAULT 0,
    timestamp    TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_session_log_timestamp
    ON session_log (timestamp DESC);

CREATE INDEX IF NOT EXISTS idx_session_log_outcome
    ON session_log (outcome);

CREATE INDEX IF NOT EXISTS idx_session_log_fts
    ON session_log USING GIN (to_tsvector('english', transcript));
`

// Migrate creates the session_log table and its indexes. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlSessionLog); err != nil {
		return fmt.Errorf("postgres history: migrate: %w", err)
	}
	return nil
}
