package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"phone-auth-service/internal/events"
	"phone-auth-service/internal/hashing"
	"phone-auth-service/internal/models"
	"phone-auth-service/internal/repository/scylla"
	"phone-auth-service/internal/sms"
	"phone-auth-service/internal/token"
	"phone-auth-service/internal/util"
)

// Domain outcomes of the OTP flow. These are expected results, distinguishable
// so the client knows whether to re-enter the code or request a new one.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUserNotFound      = errors.New("user not found")
	ErrChallengeNotFound = errors.New("no challenge found for phone")
	ErrInvalidCode       = errors.New("invalid OTP code")
	ErrMalformedCode     = errors.New("malformed OTP code")
	ErrCodeExpired       = errors.New("OTP code has expired")
	ErrCodeAlreadyUsed   = errors.New("OTP code already used")
)

// otpMin/otpMax bound the 6-digit code space; codes are drawn uniformly from
// [100000, 999999] so there is never a leading zero to coerce away.
const (
	otpMin = 100000
	otpMax = 999999
)

// AuthService drives the OTP challenge state machine: one live challenge per
// phone, overwritten in place on reissue, consumed exactly once.
type AuthService struct {
	userRepo      scylla.UserRepository
	challengeRepo scylla.ChallengeRepository
	hasher        *hashing.Hasher
	smsSender     sms.Sender
	issuer        *token.Issuer
	publisher     events.Publisher
	expiryWindow  time.Duration
	logger        *zap.Logger
	now           func() time.Time
}

// AuthenticateResult tells the caller which flow comes next: password entry
// for an already-verified user, or code entry for a fresh challenge.
type AuthenticateResult struct {
	UserExists bool
	FirstTime  bool
}

func NewAuthService(
	userRepo scylla.UserRepository,
	challengeRepo scylla.ChallengeRepository,
	hasher *hashing.Hasher,
	smsSender sms.Sender,
	issuer *token.Issuer,
	publisher events.Publisher,
	expiryWindow time.Duration,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		userRepo:      userRepo,
		challengeRepo: challengeRepo,
		hasher:        hasher,
		smsSender:     smsSender,
		issuer:        issuer,
		publisher:     publisher,
		expiryWindow:  expiryWindow,
		logger:        logger,
		now:           time.Now,
	}
}

// Authenticate is the entry point of the flow. A phone belonging to a
// verified user short-circuits with UserExists (the caller moves on to
// credential entry); anything else gets a user created-or-fetched and a fresh
// OTP challenge issued.
func (s *AuthService) Authenticate(ctx context.Context, phone string) (*AuthenticateResult, error) {
	phone = util.NormalizePhone(phone)
	if !util.IsValidPhone(phone) {
		return nil, fmt.Errorf("%w: phone number", ErrInvalidInput)
	}

	user, err := s.userRepo.GetUserByPhone(ctx, phone)
	if err != nil && !errors.Is(err, scylla.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if user != nil && user.PhoneVerified {
		return &AuthenticateResult{UserExists: true}, nil
	}

	if user == nil {
		user = &models.User{Phone: phone}
		if err := s.userRepo.CreateUser(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
	}

	firstTime, err := s.issueChallenge(ctx, phone)
	if err != nil {
		return nil, err
	}

	return &AuthenticateResult{UserExists: false, FirstTime: firstTime}, nil
}

// issueChallenge creates or reissues the single live challenge for a phone
// and fires the SMS. Reissue overwrites in place so an older, still-unexpired
// code can never be used after a newer one was requested.
func (s *AuthService) issueChallenge(ctx context.Context, phone string) (bool, error) {
	firstTime := false
	if _, err := s.challengeRepo.GetByPhone(ctx, phone); err != nil {
		if !errors.Is(err, scylla.ErrNotFound) {
			return false, fmt.Errorf("failed to look up challenge: %w", err)
		}
		firstTime = true
	}

	code, err := generateOTP()
	if err != nil {
		return false, fmt.Errorf("failed to generate OTP: %w", err)
	}

	hashed, err := s.hasher.HashOTP(code)
	if err != nil {
		return false, fmt.Errorf("failed to hash OTP: %w", err)
	}

	challenge := &models.PhoneChallenge{
		Phone:     phone,
		CodeHash:  hashed.Hash,
		CodeSalt:  hashed.Salt,
		Algorithm: hashed.Algorithm,
		IssuedAt:  s.now().UTC(),
		Used:      false,
	}

	if err := s.challengeRepo.Upsert(ctx, challenge); err != nil {
		return false, fmt.Errorf("failed to store challenge: %w", err)
	}

	// Fire-and-forget: a failed send is the user's cue to retry, never a
	// reason to fail the request.
	if err := s.smsSender.Send(ctx, phone, sms.CodeMessage(code)); err != nil {
		s.logger.Error("Failed to send OTP SMS",
			util.String("phone", phone),
			util.ErrorField(err))
	}

	s.publisher.Publish(ctx, &models.SecurityEvent{
		EventType: events.EventOTPIssued,
		Phone:     phone,
	})

	s.logger.Info("OTP challenge issued",
		util.String("phone", phone),
		util.Bool("first_time", firstTime))

	return firstTime, nil
}

// VerifyOTP runs the verify transition. Check order is fixed:
// code-match, then expiry, then already-used. On success the challenge is
// consumed, the directory entry is marked phone-verified, and a credential
// token is issued. Store failures surface as errors; verification never
// fails open.
func (s *AuthService) VerifyOTP(ctx context.Context, phone, submittedCode string) (string, error) {
	phone = util.NormalizePhone(phone)

	code, err := coerceCode(submittedCode)
	if err != nil {
		return "", err
	}

	var (
		user      *models.User
		challenge *models.PhoneChallenge
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := s.userRepo.GetUserByPhone(gctx, phone)
		if err != nil {
			if errors.Is(err, scylla.ErrNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("failed to look up user: %w", err)
		}
		user = u
		return nil
	})
	g.Go(func() error {
		c, err := s.challengeRepo.GetByPhone(gctx, phone)
		if err != nil {
			if errors.Is(err, scylla.ErrNotFound) {
				return ErrChallengeNotFound
			}
			return fmt.Errorf("failed to look up challenge: %w", err)
		}
		challenge = c
		return nil
	})
	if err := g.Wait(); err != nil {
		return "", err
	}

	match, err := s.hasher.VerifyOTP(code, &hashing.HashResult{
		Hash:      challenge.CodeHash,
		Salt:      challenge.CodeSalt,
		Algorithm: challenge.Algorithm,
	})
	if err != nil {
		return "", fmt.Errorf("failed to verify OTP hash: %w", err)
	}
	if !match {
		s.logger.Warn("OTP verification failed: invalid code",
			util.String("phone", phone))
		return "", ErrInvalidCode
	}

	if challenge.Expired(s.now(), s.expiryWindow) {
		return "", ErrCodeExpired
	}

	if challenge.Used {
		return "", ErrCodeAlreadyUsed
	}

	if err := s.challengeRepo.MarkUsed(ctx, phone); err != nil {
		return "", fmt.Errorf("failed to consume challenge: %w", err)
	}

	if err := s.userRepo.MarkPhoneVerified(ctx, phone); err != nil {
		return "", fmt.Errorf("failed to mark phone verified: %w", err)
	}

	tokenStr, err := s.issuer.Issue(ctx, phone)
	if err != nil {
		return "", fmt.Errorf("failed to issue credential: %w", err)
	}

	s.publisher.Publish(ctx, &models.SecurityEvent{
		EventType: events.EventPhoneVerified,
		Phone:     phone,
	})

	s.logger.Info("Phone verified",
		util.String("phone", phone),
		util.String("user_id", user.UserID))

	return tokenStr, nil
}

// UpdateProfile fills in the user's details after verification.
func (s *AuthService) UpdateProfile(ctx context.Context, phone, firstName, lastName, email string) (*models.User, error) {
	phone = util.NormalizePhone(phone)

	user, err := s.userRepo.GetUserByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, scylla.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := s.userRepo.UpdateProfile(ctx, phone, firstName, lastName, email); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	user.FirstName = firstName
	user.LastName = lastName
	user.Email = email

	return user, nil
}

// coerceCode applies numeric coercion to user input before comparison. Only a
// coercion failure is a MalformedCode; any input that parses as an integer,
// sign included, goes on to the ordinary code comparison.
func coerceCode(submitted string) (string, error) {
	trimmed := strings.TrimSpace(submitted)
	if trimmed == "" {
		return "", ErrMalformedCode
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return "", ErrMalformedCode
	}
	return strconv.Itoa(n), nil
}

// generateOTP draws a 6-digit code uniformly from [100000, 999999].
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpMax-otpMin+1))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+otpMin, 10), nil
}
