package token

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phone-auth-service/internal/client"
	"phone-auth-service/internal/config"
	redisrepo "phone-auth-service/internal/repository/redis"
)

func testConfig(ttl time.Duration) config.AuthConfig {
	return config.AuthConfig{
		TokenSecret: "test-secret",
		TokenTTL:    ttl,
	}
}

func TestIssueAndParse(t *testing.T) {
	issuer := NewIssuer(testConfig(time.Hour), nil)

	tokenStr, err := issuer.Issue(context.Background(), "+15551234567")
	require.NoError(t, err)
	require.NotEmpty(t, tokenStr)

	claims, err := issuer.Parse(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, "+15551234567", claims.Phone)
	assert.Equal(t, "+15551234567", claims.Subject)
	assert.Equal(t, "phone-auth-service", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	issuer := NewIssuer(testConfig(time.Hour), nil)
	other := NewIssuer(config.AuthConfig{TokenSecret: "other-secret", TokenTTL: time.Hour}, nil)

	tokenStr, err := issuer.Issue(context.Background(), "+15551234567")
	require.NoError(t, err)

	_, err = other.Parse(tokenStr)
	assert.Error(t, err)
}

func TestParseRejectsExpiredToken(t *testing.T) {
	issuer := NewIssuer(testConfig(-time.Minute), nil)

	tokenStr, err := issuer.Issue(context.Background(), "+15551234567")
	require.NoError(t, err)

	_, err = issuer.Parse(tokenStr)
	assert.Error(t, err)
}

func TestIssueRecordsSession(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	redisClient := client.NewRedisClientFromAddr(mr.Addr())
	defer redisClient.Close()
	sessions := redisrepo.NewSessionCache(redisClient)

	issuer := NewIssuer(testConfig(time.Hour), sessions)

	ctx := context.Background()
	tokenStr, err := issuer.Issue(ctx, "+15551234567")
	require.NoError(t, err)

	claims, err := issuer.Parse(tokenStr)
	require.NoError(t, err)

	session, err := sessions.GetSession(ctx, claims.ID)
	require.NoError(t, err)
	assert.Equal(t, "+15551234567", session.Phone)
	assert.Equal(t, claims.ID, session.TokenID)

	require.NoError(t, sessions.DeleteSession(ctx, claims.ID))
	_, err = sessions.GetSession(ctx, claims.ID)
	assert.ErrorIs(t, err, redisrepo.ErrSessionNotFound)
}
