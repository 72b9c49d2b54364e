package postgres

/*
Файл audit_repo.go — durable-слой аудит-реестра. Записи приходят пачками
из фонового writer'а; seq и хэш-цепочка уже присвоены на момент записи,
поэтому порядок вставки на целостность не влияет.
*/

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/Atharva-Mendhulkar/AVARA/internal/domain"
)

// WriteBatch сохраняет пачку записей реестра одним INSERT.
func (r *Repo) WriteBatch(ctx context.Context, entries []domain.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}

	// Количество колонок в таблице audit_log
	numFields := 10
	var sb strings.Builder
	vals := make([]interface{}, 0, len(entries)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, e := range entries {
		p := i * numFields
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9, p+10))

		vals = append(vals,
			e.Seq, e.ID, e.TraceID, e.AgentID, e.Action,
			e.Verdict, e.Reason, e.Timestamp, e.PrevHash, e.Hash,
		)
	}

	query := fmt.Sprintf(
		"INSERT INTO audit_log (seq, id, trace_id, agent_id, action, verdict, reason, timestamp, prev_hash, hash) VALUES %s",
		sb.String(),
	)

	if _, err := r.pool.Exec(ctx, query, vals...); err != nil {
		return fmt.Errorf("postgres: failed to write audit batch: %w", err)
	}
	return nil
}

// LastChainState возвращает хвост хэш-цепочки (seq и hash последней
// записи), чтобы после рестарта реестр продолжил цепочку, а не начал новую.
func (r *Repo) LastChainState(ctx context.Context) (uint64, string, error) {
	var seq uint64
	var hash string

	query := `SELECT seq, hash FROM audit_log ORDER BY seq DESC LIMIT 1`
	err := r.pool.QueryRow(ctx, query).Scan(&seq, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, "", nil // пустой журнал — genesis
	}
	if err != nil {
		return 0, "", fmt.Errorf("postgres: failed to read chain state: %w", err)
	}
	return seq, hash, nil
}

// TailEntries возвращает последние n записей журнала в порядке возрастания
// seq. Используется операторской инспекцией, когда нужной глубины
// нет в RAM-кольце реестра.
func (r *Repo) TailEntries(ctx context.Context, n int) ([]domain.AuditEntry, error) {
	if n <= 0 {
		n = 20
	}

	query := `SELECT seq, id, trace_id, agent_id, action, verdict, reason, timestamp, prev_hash, hash
	          FROM audit_log ORDER BY seq DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query audit tail: %w", err)
	}
	defer rows.Close()

	results := make([]domain.AuditEntry, 0, n)
	for rows.Next() {
		var e domain.AuditEntry
		err := rows.Scan(
			&e.Seq, &e.ID, &e.TraceID, &e.AgentID, &e.Action,
			&e.Verdict, &e.Reason, &e.Timestamp, &e.PrevHash, &e.Hash,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan audit entry: %w", err)
		}
		results = append(results, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}

	// DESC в запросе ради LIMIT, наружу отдаем по возрастанию seq
	for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
		results[i], results[j] = results[j], results[i]
	}
	return results, nil
}
