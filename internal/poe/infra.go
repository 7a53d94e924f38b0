package poe

import (
	"context"
	"database/sql"
)

const exchangesSchema = `
	CREATE TABLE IF NOT EXISTS exchanges (
		id              BIGSERIAL PRIMARY KEY,
		request_id      TEXT NOT NULL,
		conversation_id TEXT NOT NULL,
		backend         TEXT NOT NULL,
		endpoint        TEXT NOT NULL,
		probe           BOOLEAN NOT NULL,
		status          INTEGER NOT NULL,
		outcome         TEXT NOT NULL,
		latency_ms      BIGINT NOT NULL,
		error           TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

type repo struct {
	db *sql.DB
}

func NewRepo(db *sql.DB) Repo {
	return &repo{db: db}
}

// Migrate creates the exchanges table when it does not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, exchangesSchema)
	return err
}

func (r *repo) SaveExchange(ctx context.Context, ex *Exchange) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO exchanges (request_id, conversation_id, backend, endpoint, probe, status, outcome, latency_ms, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		ex.RequestID,
		ex.ConversationID,
		ex.Backend,
		ex.Endpoint,
		ex.Probe,
		ex.Status,
		ex.Outcome,
		ex.LatencyMS,
		ex.Error,
	)
	return err
}

// NopRepo discards exchanges; used when no database is configured.
type NopRepo struct{}

func (NopRepo) SaveExchange(context.Context, *Exchange) error { return nil }
