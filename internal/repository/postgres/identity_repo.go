package postgres

/*
Файл identity_repo.go — durable-слой Identity Store. RAM-кэш в пакете
identity остается источником истины для решений; сюда пишем write-through,
читаем только при прогреве после рестарта.
*/

import (
	"context"
	"fmt"
	"time"

	"github.com/Atharva-Mendhulkar/AVARA/internal/domain"
)

// SaveIdentity сохраняет новую identity. Scopes идут как text[] —
// pgx маппит []string нативно.
func (r *Repo) SaveIdentity(ctx context.Context, a *domain.AgentIdentity) error {
	query := `INSERT INTO agents (id, role_name, description, scopes, ttl_seconds, created_at, revoked)
	          VALUES ($1, $2, $3, $4, $5, $6, FALSE)`

	_, err := r.pool.Exec(ctx, query,
		a.ID, a.RoleName, a.Description, a.Scopes, a.TTLSeconds, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to save identity: %w", err)
	}
	return nil
}

// MarkRevoked помечает identity отозванной. Идемпотентность обеспечивает
// вызывающий (RAM-кэш уже отфильтровал повторный отзыв).
func (r *Repo) MarkRevoked(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE agents SET revoked = TRUE, revoked_at = $2 WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("postgres: failed to mark identity revoked: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: identity %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListIdentities возвращает все identity для прогрева RAM-кэша при старте.
func (r *Repo) ListIdentities(ctx context.Context) ([]*domain.AgentIdentity, error) {
	query := `SELECT id, role_name, description, scopes, ttl_seconds, created_at, revoked, revoked_at
	          FROM agents ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query identities: %w", err)
	}
	defer rows.Close()

	// Пустой слайс вместо nil, чтобы в JSON был [] а не null
	results := make([]*domain.AgentIdentity, 0)

	for rows.Next() {
		var a domain.AgentIdentity
		err := rows.Scan(
			&a.ID, &a.RoleName, &a.Description, &a.Scopes,
			&a.TTLSeconds, &a.CreatedAt, &a.Revoked, &a.RevokedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan identity: %w", err)
		}
		results = append(results, &a)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}

	return results, nil
}
