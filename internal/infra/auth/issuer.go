package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/Atharva-Mendhulkar/AVARA/internal/domain"
)

// OperatorProvider — источник правды об операторах (Postgres).
type OperatorProvider interface {
	GetOperatorByUsername(ctx context.Context, username string) (*domain.Operator, error)
}

// Issuer выдает операторские RS256-токены по логину и паролю.
type Issuer struct {
	repo       OperatorProvider
	privateKey *rsa.PrivateKey
	tokenTTL   time.Duration
}

func NewIssuer(repo OperatorProvider, privateKey *rsa.PrivateKey, tokenTTL time.Duration) *Issuer {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Issuer{repo: repo, privateKey: privateKey, tokenTTL: tokenTTL}
}

func (s *Issuer) GenerateToken(ctx context.Context, username, password string) (*domain.TokenResponse, error) {
	user, err := s.repo.GetOperatorByUsername(ctx, username)
	if err != nil || user == nil {
		return nil, errors.New("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, errors.New("invalid credentials")
	}

	expiresAt := time.Now().Add(s.tokenTTL)
	claims := &domain.OperatorClaims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "avara-authority",
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signedToken, err := token.SignedString(s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &domain.TokenResponse{
		AccessToken: signedToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(expiresAt).Seconds()),
	}, nil
}
