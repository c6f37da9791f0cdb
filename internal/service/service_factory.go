package service

import (
	"go.uber.org/zap"

	"phone-auth-service/internal/config"
	"phone-auth-service/internal/events"
	"phone-auth-service/internal/hashing"
	"phone-auth-service/internal/repository/scylla"
	"phone-auth-service/internal/sms"
	"phone-auth-service/internal/token"
)

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	userRepo      scylla.UserRepository
	challengeRepo scylla.ChallengeRepository
	hasher        *hashing.Hasher
	smsSender     sms.Sender
	issuer        *token.Issuer
	publisher     events.Publisher
	config        *config.Config
	logger        *zap.Logger
	authService   *AuthService
}

// NewServiceFactory creates a new service factory
func NewServiceFactory(
	userRepo scylla.UserRepository,
	challengeRepo scylla.ChallengeRepository,
	hasher *hashing.Hasher,
	smsSender sms.Sender,
	issuer *token.Issuer,
	publisher events.Publisher,
	cfg *config.Config,
	logger *zap.Logger,
) *ServiceFactory {
	return &ServiceFactory{
		userRepo:      userRepo,
		challengeRepo: challengeRepo,
		hasher:        hasher,
		smsSender:     smsSender,
		issuer:        issuer,
		publisher:     publisher,
		config:        cfg,
		logger:        logger,
	}
}

// AuthService returns the auth service instance (singleton)
func (f *ServiceFactory) AuthService() *AuthService {
	if f.authService == nil {
		f.authService = NewAuthService(
			f.userRepo,
			f.challengeRepo,
			f.hasher,
			f.smsSender,
			f.issuer,
			f.publisher,
			f.config.OTP.ExpiryWindow,
			f.logger,
		)
	}
	return f.authService
}
