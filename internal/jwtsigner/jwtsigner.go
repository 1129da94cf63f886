// Package jwtsigner signs and validates HS256 JWTs bound to one issuer and
// audience.
package jwtsigner

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrShortKey = errors.New("jwt signing key must be at least 32 bytes")

type Signer struct {
	key      []byte
	Issuer   string
	Audience string
	leeway   time.Duration
	now      func() time.Time
}

func New(key []byte, issuer, audience string) (*Signer, error) {
	if len(key) < 32 {
		return nil, ErrShortKey
	}
	return &Signer{key: key, Issuer: issuer, Audience: audience, leeway: 30 * time.Second, now: time.Now}, nil
}

// WithClock sets the time used to validate exp, nbf and iat.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	s.now = now
	return s
}

// Registered fills the standard claims for a token valid from now for ttl.
func (s *Signer) Registered(sub, jti string, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    s.Issuer,
		Subject:   sub,
		Audience:  jwt.ClaimStrings{s.Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        jti,
	}
}

func (s *Signer) Sign(claims jwt.Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// Parse validates signature, algorithm, expiry, issuer and audience, and
// decodes into claims.
func (s *Signer) Parse(token string, claims jwt.Claims) error {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.Issuer),
		jwt.WithAudience(s.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(s.leeway),
		jwt.WithTimeFunc(s.now),
	)
	_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.key, nil
	})
	return err
}
