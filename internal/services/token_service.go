package services

import (
	"fmt"
	"time"

	"wallet-backend/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaim identifies the authenticated wallet owner; it is what a
// successful challenge verification produces and what a session token
// encodes.
type SessionClaim struct {
	UserID  uint
	Address string
}

// SessionClaims is the JWT claims payload of a session token.
type SessionClaims struct {
	UserID  uint   `json:"user_id"`
	Address string `json:"address"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 session tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

// NewTokenService builds a token service from the auth configuration.
func NewTokenService(cfg *config.AuthConfig) *TokenService {
	return &TokenService{
		secret: []byte(cfg.Secret),
		ttl:    cfg.TokenTTLDuration(),
		issuer: cfg.Issuer(),
	}
}

// Issue signs a session token for the claim.
func (s *TokenService) Issue(claim *SessionClaim) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		UserID:  claim.UserID,
		Address: claim.Address,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Subject:   claim.Address,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a session token.
func (s *TokenService) Verify(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid session token: %w", err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid session token claims")
	}
	return claims, nil
}
