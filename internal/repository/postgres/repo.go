package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Atharva-Mendhulkar/AVARA/internal/infra"
)

// Repo — единая точка доступа к PostgreSQL. Все методы работают через
// общий пул соединений pgxpool; разбивка по файлам — по доменным зонам
// (identity, approvals, audit, operators).
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(ctx context.Context, cfg infra.DatabaseConfig) (*Repo, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: invalid connection string: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to create pool: %w", err)
	}

	// Fail-fast: лучше упасть на старте, чем отдавать вердикты без журнала
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping failed: %w", err)
	}

	return &Repo{pool: pool}, nil
}

func (r *Repo) Close() {
	r.pool.Close()
}
