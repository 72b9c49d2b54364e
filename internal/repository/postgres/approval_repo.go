package postgres

/*
Файл approval_repo.go — durable-слой Human-in-the-loop тикетов.
Ключевой инвариант — Double Decision невозможен: условие
WHERE status = 'PENDING' гарантирует, что из двух конкурирующих
ревьюеров выиграет ровно один.
*/

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Atharva-Mendhulkar/AVARA/internal/domain"
)

// SaveTicket создает PENDING-запись. Через нее операторы видят действие,
// выполнение которого было приостановлено движком.
func (r *Repo) SaveTicket(ctx context.Context, t *domain.ApprovalTicket) error {
	query := `INSERT INTO approvals (action_id, agent_id, action_type, target, status, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query,
		t.ActionID, t.AgentID, t.ActionType, t.Target, t.Status, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to create approval ticket: %w", err)
	}
	return nil
}

// ResolveTicket атомарно переводит тикет из PENDING в конечный статус.
func (r *Repo) ResolveTicket(ctx context.Context, actionID string, status domain.ApprovalStatus, reviewerID string, at time.Time) error {
	query := `UPDATE approvals
	          SET status = $1, reviewer_id = $2, resolved_at = $3
	          WHERE action_id = $4 AND status = 'PENDING'`

	tag, err := r.pool.Exec(ctx, query, status, reviewerID, at, actionID)
	if err != nil {
		return fmt.Errorf("postgres: failed to resolve approval ticket: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Строк нет — либо ID неверный, либо решение уже принято ранее.
		// Различаем, чтобы вернуть корректный HTTP-код (404 vs 409).
		var existing string
		err := r.pool.QueryRow(ctx, `SELECT status FROM approvals WHERE action_id = $1`, actionID).Scan(&existing)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("postgres: approval %s: %w", actionID, domain.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("postgres: failed to check approval status: %w", err)
		}
		return fmt.Errorf("postgres: approval %s already %s: %w", actionID, existing, domain.ErrConflict)
	}

	return nil
}

// ListTickets возвращает все тикеты для прогрева RAM-кэша при старте.
func (r *Repo) ListTickets(ctx context.Context) ([]*domain.ApprovalTicket, error) {
	query := `SELECT action_id, agent_id, action_type, target, status, reviewer_id, created_at, resolved_at
	          FROM approvals ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query approvals: %w", err)
	}
	defer rows.Close()

	results := make([]*domain.ApprovalTicket, 0)

	for rows.Next() {
		var t domain.ApprovalTicket
		err := rows.Scan(
			&t.ActionID, &t.AgentID, &t.ActionType, &t.Target,
			&t.Status, &t.ReviewerID, &t.CreatedAt, &t.ResolvedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan approval: %w", err)
		}
		results = append(results, &t)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}

	return results, nil
}
