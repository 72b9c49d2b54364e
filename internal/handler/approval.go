package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Atharva-Mendhulkar/AVARA/internal/domain"
	"github.com/Atharva-Mendhulkar/AVARA/internal/infra/auth"
)

// ApprovalService — что хендлеру нужно от Circuit Breaker.
type ApprovalService interface {
	Resolve(ctx context.Context, actionID string, approve bool, reviewerID string) error
	Status(actionID string) (domain.ApprovalStatus, error)
	Get(actionID string) (*domain.ApprovalTicket, error)
	List(status domain.ApprovalStatus) []*domain.ApprovalTicket
}

type ApprovalHandler struct {
	service ApprovalService
	logger  *zap.Logger
}

func NewApprovalHandler(s ApprovalService, logger *zap.Logger) *ApprovalHandler {
	return &ApprovalHandler{service: s, logger: logger.Named("approval-handler")}
}

// Approve — POST /guard/approvals/{action_id}/approve.
func (h *ApprovalHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, true)
}

// Deny — POST /guard/approvals/{action_id}/deny.
func (h *ApprovalHandler) Deny(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, false)
}

func (h *ApprovalHandler) resolve(w http.ResponseWriter, r *http.Request, approve bool) {
	actionID := chi.URLParam(r, "actionID")

	reviewerID := auth.ReviewerFromContext(r.Context())
	if reviewerID == "" {
		// Аутентификация не сконфигурирована (dev/demo-режим)
		reviewerID = "human-operator"
	}

	err := h.service.Resolve(r.Context(), actionID, approve, reviewerID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeDetail(w, http.StatusNotFound, "approval ticket not found")
		return
	case errors.Is(err, domain.ErrConflict):
		// Повторная резолюция отклоняется, терминальный статус не меняется
		writeDetail(w, http.StatusConflict, "approval already resolved")
		return
	case err != nil:
		h.logger.Error("approval resolution failed", zap.String("action_id", actionID), zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "approval resolution failed")
		return
	}

	status := domain.StatusDenied
	if approve {
		status = domain.StatusApproved
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(status), "action_id": actionID})
}

// Status — GET /guard/approvals/{action_id}/status. Поллить можно сколько
// угодно, side effects отсутствуют.
func (h *ApprovalHandler) Status(w http.ResponseWriter, r *http.Request) {
	actionID := chi.URLParam(r, "actionID")

	status, err := h.service.Status(actionID)
	if err != nil {
		writeDetail(w, http.StatusNotFound, "approval ticket not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

// GetDetails — GET /guard/approvals/{action_id} (операторская очередь).
func (h *ApprovalHandler) GetDetails(w http.ResponseWriter, r *http.Request) {
	actionID := chi.URLParam(r, "actionID")

	ticket, err := h.service.Get(actionID)
	if err != nil {
		writeDetail(w, http.StatusNotFound, "approval ticket not found")
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

// List — GET /guard/approvals?status=PENDING (дефолт — очередь решений).
func (h *ApprovalHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = string(domain.StatusPending)
	}
	if status == "ALL" {
		status = ""
	}
	writeJSON(w, http.StatusOK, h.service.List(domain.ApprovalStatus(status)))
}
