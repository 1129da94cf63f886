package impl

import (
	"context"
	"fmt"
	"time"

	"uniauth/internal/domain"
	"uniauth/internal/dto"
	"uniauth/internal/jwtsigner"
	"uniauth/internal/observability/metrics"
	"uniauth/internal/observability/middleware"
	"uniauth/internal/service"

	"github.com/google/uuid"
)

const (
	tokenUseAccess  = "access"
	tokenUseRefresh = "refresh"
)

// ====== Config ======

type TokenConfig struct {
	Issuer     string        // e.g. "uniauth"
	Audience   string        // e.g. "uniauth-clients"
	AccessTTL  time.Duration // default 1h
	RefreshTTL time.Duration // default 7 * 24h
	SigningKey []byte        // HS256 secret
}

// ====== Service ======

type TokenServiceImpl struct {
	cfg    TokenConfig
	signer *jwtsigner.Signer
	rt     runtime
}

func NewTokenServiceHS256(cfg TokenConfig, opts ...Option) (*TokenServiceImpl, error) {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	signer, err := jwtsigner.New(cfg.SigningKey, cfg.Issuer, cfg.Audience)
	if err != nil {
		return nil, err
	}
	rt := newRuntime(opts)
	signer.WithClock(rt.now)
	return &TokenServiceImpl{cfg: cfg, signer: signer, rt: rt}, nil
}

func (t *TokenServiceImpl) AccessTTL() time.Duration  { return t.cfg.AccessTTL }
func (t *TokenServiceImpl) RefreshTTL() time.Duration { return t.cfg.RefreshTTL }

// Issue mints an access and refresh token pair for user.
func (t *TokenServiceImpl) Issue(ctx context.Context, user *domain.User) (*dto.TokenResponse, error) {
	result := "success"
	defer func() {
		metrics.TokensIssuedTotal.WithLabelValues("issue", result).Inc()
	}()

	access, err := t.AccessToken(user)
	if err != nil {
		result = "failure"
		return nil, err
	}
	refresh, err := t.RefreshToken(user)
	if err != nil {
		result = "failure"
		return nil, err
	}

	reqID := middleware.RequestIDFromContext(ctx)
	traceID := middleware.TraceIDFromContext(ctx)
	t.rt.logger.Info("issued tokens", "user_id", user.ID, "request_id", reqID, "trace_id", traceID)

	return &dto.TokenResponse{
		AccessToken:           access,
		RefreshToken:          refresh,
		TokenType:             dto.TokenTypeBearer,
		AccessTokenExpiresIn:  int64(t.cfg.AccessTTL.Seconds()),
		RefreshTokenExpiresIn: int64(t.cfg.RefreshTTL.Seconds()),
	}, nil
}

func (t *TokenServiceImpl) AccessToken(user *domain.User) (string, error) {
	claims := service.AccessClaims{
		Username:         user.Username,
		Email:            user.Email,
		UserID:           user.ID.String(),
		Authorities:      user.Authorities,
		TokenUse:         tokenUseAccess,
		RegisteredClaims: t.signer.Registered(user.ID.String(), uuid.NewString(), t.rt.now(), t.cfg.AccessTTL),
	}
	return t.signer.Sign(claims)
}

func (t *TokenServiceImpl) RefreshToken(user *domain.User) (string, error) {
	claims := service.RefreshClaims{
		Username:         user.Username,
		UserID:           user.ID.String(),
		TokenUse:         tokenUseRefresh,
		RegisteredClaims: t.signer.Registered(user.ID.String(), uuid.NewString(), t.rt.now(), t.cfg.RefreshTTL),
	}
	return t.signer.Sign(claims)
}

func (t *TokenServiceImpl) ParseAccess(token string) (*service.AccessClaims, error) {
	claims := &service.AccessClaims{}
	if err := t.signer.Parse(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	if claims.TokenUse != tokenUseAccess {
		return nil, fmt.Errorf("%w: not an access token", domain.ErrInvalidToken)
	}
	return claims, nil
}

func (t *TokenServiceImpl) ParseRefresh(token string) (*service.RefreshClaims, error) {
	claims := &service.RefreshClaims{}
	if err := t.signer.Parse(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	if claims.TokenUse != tokenUseRefresh {
		return nil, fmt.Errorf("%w: not a refresh token", domain.ErrInvalidToken)
	}
	return claims, nil
}
