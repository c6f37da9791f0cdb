package scylla

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"phone-auth-service/internal/models"
	"phone-auth-service/internal/util"
)

type challengeRepository struct {
	client *ScyllaClient
}

func NewChallengeRepository(client *ScyllaClient, logger *zap.Logger) ChallengeRepository {
	return &challengeRepository{client: client}
}

func (r *challengeRepository) GetByPhone(ctx context.Context, phone string) (*models.PhoneChallenge, error) {
	challenge := &models.PhoneChallenge{}

	query := r.client.Prepared.GetChallenge.WithContext(ctx).Bind(phone)

	err := r.client.ScanWithRetry(query,
		&challenge.Phone, &challenge.CodeHash, &challenge.CodeSalt,
		&challenge.Algorithm, &challenge.IssuedAt, &challenge.Used)

	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrNotFound
		}
		util.Error("Failed to get challenge",
			zap.String("phone", phone),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}

	return challenge, nil
}

// Upsert writes the challenge row; Cassandra INSERT semantics make this the
// reissue path too, replacing code, issued_at and used in one write.
func (r *challengeRepository) Upsert(ctx context.Context, challenge *models.PhoneChallenge) error {
	query := r.client.Prepared.UpsertChallenge.WithContext(ctx).Bind(
		challenge.Phone, challenge.CodeHash, challenge.CodeSalt,
		challenge.Algorithm, challenge.IssuedAt, challenge.Used)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to upsert challenge",
			zap.String("phone", challenge.Phone),
			zap.Error(err))
		return fmt.Errorf("failed to upsert challenge: %w", err)
	}

	util.Debug("Challenge upserted", zap.String("phone", challenge.Phone))
	return nil
}

func (r *challengeRepository) MarkUsed(ctx context.Context, phone string) error {
	query := r.client.Prepared.MarkChallengeUsed.WithContext(ctx).Bind(phone)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to mark challenge used",
			zap.String("phone", phone),
			zap.Error(err))
		return fmt.Errorf("failed to mark challenge used: %w", err)
	}

	util.Info("Challenge marked used", zap.String("phone", phone))
	return nil
}
