package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/Atharva-Mendhulkar/AVARA/internal/domain"
)

// Guard — что хендлеру нужно от оркестратора.
type Guard interface {
	ValidateAction(ctx context.Context, req domain.ActionRequest) (*domain.Decision, error)
	PrepareContext(ctx context.Context, agentID, rawContext string, availableTokens int) (string, int, error)
}

type GuardHandler struct {
	guard  Guard
	logger *zap.Logger
}

func NewGuardHandler(g Guard, logger *zap.Logger) *GuardHandler {
	return &GuardHandler{guard: g, logger: logger.Named("guard-handler")}
}

// ValidateAction — POST /guard/validate_action.
// 200 ALLOW; 403 {"detail": {...PENDING_APPROVAL...}} при эскалации;
// 403 {"detail": "<reason>"} для любого отказа. Формат envelope — часть
// контракта, его читают внешние клиенты.
func (h *GuardHandler) ValidateAction(w http.ResponseWriter, r *http.Request) {
	var req domain.ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AgentID == "" || req.ProposedAction == "" {
		writeDetail(w, http.StatusBadRequest, "agent_id and proposed_action are required")
		return
	}

	decision, err := h.guard.ValidateAction(r.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrStorage) {
			// Fail-closed: вердикта нет, это сбой сервиса, а не политика
			writeDetail(w, http.StatusServiceUnavailable, "audit storage degraded, request refused")
			return
		}
		h.logger.Error("validation failed", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "internal validation error")
		return
	}

	switch decision.Verdict {
	case domain.VerdictAllow:
		writeJSON(w, http.StatusOK, decision)
	case domain.VerdictPendingApproval:
		writeDetail(w, http.StatusForbidden, map[string]interface{}{
			"status":    string(domain.VerdictPendingApproval),
			"action_id": decision.ActionID,
			"reason":    decision.Reason,
			"audit_seq": decision.AuditSeq,
		})
	default:
		writeDetail(w, http.StatusForbidden, decision.Reason)
	}
}

type prepareContextRequest struct {
	AgentID         string `json:"agent_id"`
	RawContext      string `json:"raw_context"`
	AvailableTokens int    `json:"available_tokens"`
}

// PrepareContext — POST /guard/prepare_context.
func (h *GuardHandler) PrepareContext(w http.ResponseWriter, r *http.Request) {
	var req prepareContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}

	block, used, err := h.guard.PrepareContext(r.Context(), req.AgentID, req.RawContext, req.AvailableTokens)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSaturated):
			writeDetail(w, http.StatusForbidden, "CONTEXT_SATURATED: "+err.Error())
		case errors.Is(err, domain.ErrRevoked):
			writeDetail(w, http.StatusForbidden, "identity revoked")
		case errors.Is(err, domain.ErrExpired):
			writeDetail(w, http.StatusForbidden, "identity expired")
		case errors.Is(err, domain.ErrNotFound):
			writeDetail(w, http.StatusForbidden, "unknown identity")
		case errors.Is(err, domain.ErrStorage):
			writeDetail(w, http.StatusServiceUnavailable, "audit storage degraded")
		default:
			writeDetail(w, http.StatusInternalServerError, "context preparation failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"final_context_block": block,
		"budget_used":         used,
	})
}
