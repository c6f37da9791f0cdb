package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"phone-auth-service/internal/bucketing"
	"phone-auth-service/internal/models"
	"phone-auth-service/internal/util"
)

type userRepository struct {
	client       *ScyllaClient
	bucketingMgr *bucketing.BucketingManager
}

func NewUserRepository(client *ScyllaClient, bucketingMgr *bucketing.BucketingManager, logger *zap.Logger) UserRepository {
	return &userRepository{
		client:       client,
		bucketingMgr: bucketingMgr,
	}
}

func (r *userRepository) CreateUser(ctx context.Context, user *models.User) error {
	if user.UserID == "" {
		user.UserID = uuid.New().String()
	}

	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = &now
	user.UserBucket = r.bucketingMgr.UserBucket(user.Phone)

	query := r.client.Prepared.CreateUser.WithContext(ctx).Bind(
		user.UserBucket, user.Phone, user.UserID, user.PhoneVerified,
		user.FirstName, user.LastName, user.Email, user.EmailVerified,
		user.CreatedAt, user.UpdatedAt)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to create user",
			zap.String("phone", user.Phone),
			zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}

	util.Info("User created",
		zap.String("phone", user.Phone),
		zap.String("user_id", user.UserID),
		zap.Int("user_bucket", user.UserBucket))

	return nil
}

func (r *userRepository) GetUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	user := &models.User{}
	bucket := r.bucketingMgr.UserBucket(phone)

	query := r.client.Prepared.GetUserByPhone.WithContext(ctx).Bind(bucket, phone)

	err := r.client.ScanWithRetry(query,
		&user.UserBucket, &user.Phone, &user.UserID, &user.PhoneVerified,
		&user.FirstName, &user.LastName, &user.Email, &user.EmailVerified,
		&user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrNotFound
		}
		util.Error("Failed to get user by phone",
			zap.String("phone", phone),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get user by phone: %w", err)
	}

	return user, nil
}

func (r *userRepository) UpdateProfile(ctx context.Context, phone, firstName, lastName, email string) error {
	bucket := r.bucketingMgr.UserBucket(phone)
	now := time.Now().UTC()

	query := r.client.Prepared.UpdateProfile.WithContext(ctx).Bind(
		firstName, lastName, email, now, bucket, phone)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to update user profile",
			zap.String("phone", phone),
			zap.Error(err))
		return fmt.Errorf("failed to update user profile: %w", err)
	}

	util.Info("User profile updated", zap.String("phone", phone))
	return nil
}

func (r *userRepository) MarkPhoneVerified(ctx context.Context, phone string) error {
	bucket := r.bucketingMgr.UserBucket(phone)
	now := time.Now().UTC()

	query := r.client.Prepared.MarkPhoneVerified.WithContext(ctx).Bind(true, now, bucket, phone)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to mark phone verified",
			zap.String("phone", phone),
			zap.Error(err))
		return fmt.Errorf("failed to mark phone verified: %w", err)
	}

	util.Info("Phone marked verified", zap.String("phone", phone))
	return nil
}

func (r *userRepository) HealthCheck(ctx context.Context) error {
	return r.client.HealthCheck()
}
