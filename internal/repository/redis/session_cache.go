package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"phone-auth-service/internal/client"
	"phone-auth-service/internal/util"
)

const sessionPrefix = "session:"

// Session is what the cache records per issued credential, enough to revoke
// or audit a token without decoding it.
type Session struct {
	TokenID  string    `json:"token_id"`
	Phone    string    `json:"phone"`
	IssuedAt time.Time `json:"issued_at"`
}

// ErrSessionNotFound is returned when no session exists for a token ID.
var ErrSessionNotFound = errors.New("session not found")

type SessionCache struct {
	client *client.RedisClient
}

func NewSessionCache(redisClient *client.RedisClient) *SessionCache {
	return &SessionCache{client: redisClient}
}

func (c *SessionCache) SetSession(ctx context.Context, session *Session, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	key := sessionPrefix + session.TokenID
	if err := c.client.Set(ctx, key, data, ttl); err != nil {
		util.Error("Failed to set session",
			zap.String("token_id", session.TokenID),
			zap.Error(err))
		return fmt.Errorf("failed to set session: %w", err)
	}

	util.Debug("Session cached",
		zap.String("token_id", session.TokenID),
		zap.Duration("ttl", ttl))
	return nil
}

func (c *SessionCache) GetSession(ctx context.Context, tokenID string) (*Session, error) {
	key := sessionPrefix + tokenID

	data, err := c.client.Get(ctx, key)
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return nil, ErrSessionNotFound
		}
		util.Error("Failed to get session",
			zap.String("token_id", tokenID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	session := &Session{}
	if err := json.Unmarshal([]byte(data), session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return session, nil
}

func (c *SessionCache) DeleteSession(ctx context.Context, tokenID string) error {
	key := sessionPrefix + tokenID

	if err := c.client.Del(ctx, key); err != nil {
		util.Error("Failed to delete session",
			zap.String("token_id", tokenID),
			zap.Error(err))
		return fmt.Errorf("failed to delete session: %w", err)
	}

	util.Debug("Session deleted", zap.String("token_id", tokenID))
	return nil
}
