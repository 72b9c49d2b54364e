package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Atharva-Mendhulkar/AVARA/internal/domain"
)

// GetOperatorByUsername ищет оператора для выдачи токена.
func (r *Repo) GetOperatorByUsername(ctx context.Context, username string) (*domain.Operator, error) {
	query := `SELECT id, username, password_hash, role, created_at FROM operators WHERE username = $1`

	var op domain.Operator
	err := r.pool.QueryRow(ctx, query, username).Scan(
		&op.ID, &op.Username, &op.PasswordHash, &op.Role, &op.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("operator %s: %w", username, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to get operator: %w", err)
	}
	return &op, nil
}

// EnsureOperator создает оператора, если его еще нет (bootstrap при старте).
func (r *Repo) EnsureOperator(ctx context.Context, op *domain.Operator) error {
	query := `INSERT INTO operators (id, username, password_hash, role)
	          VALUES ($1, $2, $3, $4)
	          ON CONFLICT (username) DO NOTHING`

	_, err := r.pool.Exec(ctx, query, op.ID, op.Username, op.PasswordHash, op.Role)
	if err != nil {
		return fmt.Errorf("postgres: failed to ensure operator: %w", err)
	}
	return nil
}
