package database

import "context"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS clients (
    id              TEXT PRIMARY KEY,
    name            TEXT NOT NULL,
    phone           TEXT NOT NULL,
    company         TEXT NOT NULL DEFAULT '',
    debt_amount     NUMERIC(12,2) NOT NULL DEFAULT 0,
    contract_number TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS calls (
    id               TEXT PRIMARY KEY,
    client_id        TEXT NOT NULL REFERENCES clients(id),
    call_sid         TEXT NOT NULL DEFAULT '',
    status           TEXT NOT NULL DEFAULT 'initiated',
    started_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    answered_at      TIMESTAMPTZ,
    ended_at         TIMESTAMPTZ,
    duration_sec     INT NOT NULL DEFAULT 0,
    end_reason       TEXT NOT NULL DEFAULT '',
    history          JSONB NOT NULL DEFAULT '[]',
    result           JSONB NOT NULL DEFAULT '{}',
    recordings       JSONB NOT NULL DEFAULT '[]',
    recording_events JSONB NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_calls_client ON calls (client_id);
CREATE INDEX IF NOT EXISTS idx_calls_status ON calls (status);
CREATE INDEX IF NOT EXISTS idx_calls_started ON calls (started_at DESC);
`

// InitSchema creates the tables on a fresh database. Statements are
// idempotent so it is safe to run on every startup.
func (db *DB) InitSchema(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, schemaSQL); err != nil {
		return err
	}
	db.log.Debug().Msg("schema ensured")
	return nil
}
