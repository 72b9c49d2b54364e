package auth

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

type ctxKey string

const reviewerIDKey ctxKey = "reviewer_id"

// NewMiddleware закрывает группу роутов операторским токеном и прокидывает
// reviewer_id в контекст (подотчетность решений по тикетам).
func NewMiddleware(v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), reviewerIDKey, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ReviewerFromContext достает ID оператора, положенный middleware.
// Пустая строка — аутентификация не настроена (dev/demo-режим).
func ReviewerFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(reviewerIDKey).(string); ok {
		return id
	}
	return ""
}
