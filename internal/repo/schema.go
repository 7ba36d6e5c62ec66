package repo

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schema — таблицы scheduler'а. Идемпотентна.
const schema = `
CREATE TABLE IF NOT EXISTS scheduler_leases (
    key         TEXT PRIMARY KEY,
    owner_token TEXT        NOT NULL,
    epoch       BIGINT      NOT NULL DEFAULT 1,
    expires_at  TIMESTAMPTZ NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS job_states (
    job_name         TEXT PRIMARY KEY,
    next_due_at      TIMESTAMPTZ NOT NULL,
    last_run_at      TIMESTAMPTZ,
    last_dispatch_id UUID,
    last_outcome     TEXT        NOT NULL DEFAULT '',
    last_error       TEXT        NOT NULL DEFAULT '',
    last_attempt_at  TIMESTAMPTZ,
    disabled_reason  TEXT        NOT NULL DEFAULT '',
    cadence          TEXT        NOT NULL DEFAULT '',
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

ALTER TABLE job_states ADD COLUMN IF NOT EXISTS cadence TEXT NOT NULL DEFAULT '';
`

// EnsureSchema создаёт таблицы, если их нет.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return errors.Wrap(err, "ensure schema")
	}
	return nil
}
