package handler

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/Atharva-Mendhulkar/AVARA/internal/domain"
)

// LedgerReader — read-only доступ к хвосту реестра в RAM.
type LedgerReader interface {
	Tail(n int) []domain.AuditEntry
}

// DeepReader — чтение хвоста из durable-хранилища, когда запрошенной
// глубины в RAM-кольце реестра уже нет.
type DeepReader interface {
	TailEntries(ctx context.Context, n int) ([]domain.AuditEntry, error)
}

type AuditHandler struct {
	ledger LedgerReader
	deep   DeepReader // nil допустим: отдаем только RAM-кольцо
	logger *zap.Logger
}

func NewAuditHandler(l LedgerReader, deep DeepReader, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{ledger: l, deep: deep, logger: logger.Named("audit-handler")}
}

// Tail — GET /v1/audit?n=20. Чтение не мутирует реестр.
func (h *AuditHandler) Tail(w http.ResponseWriter, r *http.Request) {
	n := 20
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeDetail(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = parsed
	}

	entries := h.ledger.Tail(n)
	if len(entries) < n && h.deep != nil {
		fromDB, err := h.deep.TailEntries(r.Context(), n)
		if err != nil {
			// Деградация чтения не валит эндпоинт: отдаем, что есть в RAM
			h.logger.Warn("durable audit tail unavailable, serving RAM ring", zap.Error(err))
		} else {
			entries = fromDB
		}
	}

	writeJSON(w, http.StatusOK, entries)
}
