package domain

import "time"

// AuditEntry — запись в append-only реестре решений. Write-once,
// после Append не мутируется и не удаляется.
type AuditEntry struct {
	Seq       uint64    `json:"seq"` // глобальная монотонная позиция
	ID        string    `json:"id"`  // UUID события
	TraceID   string    `json:"trace_id"`
	AgentID   string    `json:"agent_id"`
	Action    string    `json:"action"` // сводка: action -> target
	Verdict   Verdict   `json:"verdict"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`

	// Цепочка tamper-evidence: blake3 от (PrevHash, Seq, полей записи).
	PrevHash string `json:"prev_hash"`
	Hash     string `json:"hash"`
}
