package postgres

import (
	"context"
	"fmt"
)

// InitSchema создает таблицы, если их еще нет. Для прототипа этого
// достаточно; в продакшене место этому в отдельных миграциях.
func (r *Repo) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			id          UUID PRIMARY KEY,
			role_name   TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			scopes      TEXT[] NOT NULL,
			ttl_seconds BIGINT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL,
			revoked     BOOLEAN NOT NULL DEFAULT FALSE,
			revoked_at  TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS approvals (
			action_id   UUID PRIMARY KEY,
			agent_id    UUID NOT NULL,
			action_type TEXT NOT NULL,
			target      TEXT NOT NULL,
			status      TEXT NOT NULL DEFAULT 'PENDING',
			reviewer_id TEXT,
			created_at  TIMESTAMPTZ NOT NULL,
			resolved_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			seq       BIGINT PRIMARY KEY,
			id        UUID NOT NULL,
			trace_id  TEXT NOT NULL DEFAULT '',
			agent_id  TEXT NOT NULL,
			action    TEXT NOT NULL,
			verdict   TEXT NOT NULL,
			reason    TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			prev_hash TEXT NOT NULL,
			hash      TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS operators (
			id            UUID PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			role          TEXT NOT NULL DEFAULT 'operator',
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_approvals_status ON approvals (status)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_agent ON audit_log (agent_id)`,
	}

	for _, stmt := range statements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: schema init failed: %w", err)
		}
	}
	return nil
}
