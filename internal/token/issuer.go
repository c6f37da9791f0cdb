// Package token mints the credential a verified phone walks away with: a
// signed JWT whose token ID is also recorded in the session cache for
// revocation and audit.
package token

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"phone-auth-service/internal/config"
	redisrepo "phone-auth-service/internal/repository/redis"
	"phone-auth-service/internal/util"
)

type Claims struct {
	Phone string `json:"phone"`
	jwt.RegisteredClaims
}

type Issuer struct {
	secret   []byte
	ttl      time.Duration
	sessions *redisrepo.SessionCache
}

// NewIssuer creates an issuer. The session cache is optional; without it
// tokens are still valid but cannot be revoked server-side.
func NewIssuer(cfg config.AuthConfig, sessions *redisrepo.SessionCache) *Issuer {
	return &Issuer{
		secret:   []byte(cfg.TokenSecret),
		ttl:      cfg.TokenTTL,
		sessions: sessions,
	}
}

// Issue mints a token for the given phone after successful verification.
func (i *Issuer) Issue(ctx context.Context, phone string) (string, error) {
	now := time.Now().UTC()
	tokenID := uuid.New().String()

	claims := Claims{
		Phone: phone,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Issuer:    "phone-auth-service",
			Subject:   phone,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	if i.sessions != nil {
		session := &redisrepo.Session{
			TokenID:  tokenID,
			Phone:    phone,
			IssuedAt: now,
		}
		if err := i.sessions.SetSession(ctx, session, i.ttl); err != nil {
			// The token is already signed; a cache miss only costs
			// revocability, so log and keep going.
			util.Warn("Failed to cache session for issued token",
				zap.String("token_id", tokenID),
				zap.Error(err))
		}
	}

	util.Info("Credential issued",
		zap.String("phone", phone),
		zap.String("token_id", tokenID))

	return signed, nil
}

// Parse validates a token and returns its claims.
func (i *Issuer) Parse(tokenStr string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	parsed, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}
