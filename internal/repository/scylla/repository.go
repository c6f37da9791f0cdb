package scylla

import (
	"context"
	"errors"

	"phone-auth-service/internal/models"
)

// ErrNotFound is returned by lookups when no row exists for the key.
var ErrNotFound = errors.New("not found")

// UserRepository is the phone-keyed user directory.
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByPhone(ctx context.Context, phone string) (*models.User, error)
	UpdateProfile(ctx context.Context, phone, firstName, lastName, email string) error
	MarkPhoneVerified(ctx context.Context, phone string) error
	HealthCheck(ctx context.Context) error
}

// ChallengeRepository is the phone -> live-challenge mapping. One challenge
// per phone; Upsert overwrites in place.
type ChallengeRepository interface {
	GetByPhone(ctx context.Context, phone string) (*models.PhoneChallenge, error)
	Upsert(ctx context.Context, challenge *models.PhoneChallenge) error
	MarkUsed(ctx context.Context, phone string) error
}
