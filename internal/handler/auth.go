package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Atharva-Mendhulkar/AVARA/internal/domain"
)

type TokenIssuer interface {
	GenerateToken(ctx context.Context, username, password string) (*domain.TokenResponse, error)
}

type AuthHandler struct {
	issuer TokenIssuer
}

func NewAuthHandler(issuer TokenIssuer) *AuthHandler {
	return &AuthHandler{issuer: issuer}
}

// Login — POST /auth/token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "bad request")
		return
	}

	resp, err := h.issuer.GenerateToken(r.Context(), req.Username, req.Password)
	if err != nil {
		// Не уточняем, что именно неверно (защита от перебора)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
