package service

import (
	"context"
	"time"

	"uniauth/internal/domain"
	"uniauth/internal/dto"

	"github.com/golang-jwt/jwt/v5"
)

type AccessClaims struct {
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	UserID      string   `json:"userId"`
	Authorities []string `json:"authorities"`
	TokenUse    string   `json:"token_use"`
	jwt.RegisteredClaims
}

type RefreshClaims struct {
	Username string `json:"username"`
	UserID   string `json:"userId"`
	TokenUse string `json:"token_use"`
	jwt.RegisteredClaims
}

type TokenService interface {
	Issue(ctx context.Context, user *domain.User) (*dto.TokenResponse, error)
	AccessToken(user *domain.User) (string, error)
	RefreshToken(user *domain.User) (string, error)
	ParseAccess(token string) (*AccessClaims, error)
	ParseRefresh(token string) (*RefreshClaims, error)
	AccessTTL() time.Duration
	RefreshTTL() time.Duration
}
