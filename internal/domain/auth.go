package domain

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// OperatorClaims — полезная нагрузка операторского RS256-токена.
type OperatorClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"` // всегда "Bearer"
	ExpiresIn   int64  `json:"expires_in"`
}

// Operator — человек, уполномоченный резолвить approval-тикеты.
type Operator struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // наружу не отдается никогда
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}
