package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Atharva-Mendhulkar/AVARA/internal/domain"
)

// IdentityService — что хендлеру нужно от Identity Store.
type IdentityService interface {
	Provision(ctx context.Context, role, description string, scopes []string, ttlSeconds int64) (*domain.AgentIdentity, error)
	Revoke(ctx context.Context, id string) error
	List() []*domain.AgentIdentity
}

type IAMHandler struct {
	service    IdentityService
	defaultTTL int64
	logger     *zap.Logger
}

func NewIAMHandler(s IdentityService, defaultTTL int64, logger *zap.Logger) *IAMHandler {
	return &IAMHandler{service: s, defaultTTL: defaultTTL, logger: logger.Named("iam-handler")}
}

type provisionRequest struct {
	RoleName    string   `json:"role_name"`
	Description string   `json:"description"`
	Scopes      []string `json:"scopes"`
	TTLSeconds  int64    `json:"ttl_seconds"`
}

// Provision — POST /iam/provision.
// Дефолт TTL — политика вызывающей стороны, применяется здесь, не в store.
func (h *IAMHandler) Provision(w http.ResponseWriter, r *http.Request) {
	var req provisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.TTLSeconds <= 0 {
		req.TTLSeconds = h.defaultTTL
	}

	agent, err := h.service.Provision(r.Context(), req.RoleName, req.Description, req.Scopes, req.TTLSeconds)
	if err != nil {
		if errors.Is(err, domain.ErrStorage) {
			writeDetail(w, http.StatusServiceUnavailable, "identity storage unavailable")
			return
		}
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agent_id": agent.ID,
		"scopes":   agent.Scopes,
		"ttl":      agent.TTLSeconds,
	})
}

// Revoke — DELETE /iam/revoke/{agent_id}. Повторный отзыв — 404, не сбой.
func (h *IAMHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	if err := h.service.Revoke(r.Context(), agentID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeDetail(w, http.StatusNotFound, "identity not found or already revoked")
			return
		}
		h.logger.Error("revocation failed", zap.String("agent_id", agentID), zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "revocation failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked", "agent_id": agentID})
}

// List — GET /iam/agents, операторская инспекция в порядке создания.
func (h *IAMHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.List())
}
