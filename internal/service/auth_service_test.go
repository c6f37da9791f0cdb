package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phone-auth-service/internal/config"
	"phone-auth-service/internal/events"
	"phone-auth-service/internal/hashing"
	"phone-auth-service/internal/models"
	"phone-auth-service/internal/repository/scylla"
	"phone-auth-service/internal/token"
	"phone-auth-service/internal/util"
)

const testPhone = "+15551234567"

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*models.User
	err   error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*models.User)}
}

func (r *fakeUserRepo) CreateUser(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	user.UserID = uuid.New().String()
	user.CreatedAt = time.Now().UTC()
	copied := *user
	r.users[user.Phone] = &copied
	return nil
}

func (r *fakeUserRepo) GetUserByPhone(_ context.Context, phone string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	user, ok := r.users[phone]
	if !ok {
		return nil, scylla.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (r *fakeUserRepo) UpdateProfile(_ context.Context, phone, firstName, lastName, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	user, ok := r.users[phone]
	if !ok {
		return scylla.ErrNotFound
	}
	user.FirstName = firstName
	user.LastName = lastName
	user.Email = email
	return nil
}

func (r *fakeUserRepo) MarkPhoneVerified(_ context.Context, phone string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	user, ok := r.users[phone]
	if !ok {
		return scylla.ErrNotFound
	}
	user.PhoneVerified = true
	return nil
}

func (r *fakeUserRepo) HealthCheck(context.Context) error { return nil }

type fakeChallengeRepo struct {
	mu         sync.Mutex
	challenges map[string]*models.PhoneChallenge
	err        error
}

func newFakeChallengeRepo() *fakeChallengeRepo {
	return &fakeChallengeRepo{challenges: make(map[string]*models.PhoneChallenge)}
}

func (r *fakeChallengeRepo) GetByPhone(_ context.Context, phone string) (*models.PhoneChallenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	challenge, ok := r.challenges[phone]
	if !ok {
		return nil, scylla.ErrNotFound
	}
	copied := *challenge
	return &copied, nil
}

func (r *fakeChallengeRepo) Upsert(_ context.Context, challenge *models.PhoneChallenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	copied := *challenge
	r.challenges[challenge.Phone] = &copied
	return nil
}

func (r *fakeChallengeRepo) MarkUsed(_ context.Context, phone string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	challenge, ok := r.challenges[phone]
	if !ok {
		return scylla.ErrNotFound
	}
	challenge.Used = true
	return nil
}

// recordingSender keeps every message it was asked to deliver.
type recordingSender struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (s *recordingSender) Send(_ context.Context, _, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.messages = append(s.messages, message)
	return nil
}

// lastCode extracts the OTP from the most recent message.
func (s *recordingSender) lastCode(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.messages)
	msg := s.messages[len(s.messages)-1]
	code := strings.TrimPrefix(msg, "Your code: ")
	require.NotEqual(t, msg, code, "unexpected message format: %q", msg)
	return code
}

type testEnv struct {
	svc        *AuthService
	users      *fakeUserRepo
	challenges *fakeChallengeRepo
	sender     *recordingSender
	issuer     *token.Issuer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	users := newFakeUserRepo()
	challenges := newFakeChallengeRepo()
	sender := &recordingSender{}
	issuer := token.NewIssuer(config.AuthConfig{
		TokenSecret: "test-secret",
		TokenTTL:    time.Hour,
	}, nil)

	svc := NewAuthService(
		users,
		challenges,
		hashing.NewHasher(),
		sender,
		issuer,
		events.NopPublisher{},
		4*time.Minute,
		util.Get(),
	)

	return &testEnv{
		svc:        svc,
		users:      users,
		challenges: challenges,
		sender:     sender,
		issuer:     issuer,
	}
}

func TestAuthenticateNewPhoneIssuesChallenge(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.svc.Authenticate(ctx, testPhone)
	require.NoError(t, err)
	assert.False(t, result.UserExists)
	assert.True(t, result.FirstTime)

	user, err := env.users.GetUserByPhone(ctx, testPhone)
	require.NoError(t, err)
	assert.NotEmpty(t, user.UserID)
	assert.False(t, user.PhoneVerified)

	code := env.sender.lastCode(t)
	assert.Len(t, code, 6)
	assert.GreaterOrEqual(t, code[0], byte('1'))

	challenge, err := env.challenges.GetByPhone(ctx, testPhone)
	require.NoError(t, err)
	assert.False(t, challenge.Used)
	assert.NotEmpty(t, challenge.CodeHash)
	assert.NotEqual(t, code, challenge.CodeHash)
}

func TestAuthenticateVerifiedUserShortCircuits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.users.CreateUser(ctx, &models.User{Phone: testPhone}))
	require.NoError(t, env.users.MarkPhoneVerified(ctx, testPhone))

	result, err := env.svc.Authenticate(ctx, testPhone)
	require.NoError(t, err)
	assert.True(t, result.UserExists)
	assert.Empty(t, env.sender.messages, "no OTP should be sent for a verified user")
}

func TestAuthenticateReissueOverwritesChallenge(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.svc.Authenticate(ctx, testPhone)
	require.NoError(t, err)
	assert.True(t, result.FirstTime)
	firstCode := env.sender.lastCode(t)

	result, err = env.svc.Authenticate(ctx, testPhone)
	require.NoError(t, err)
	assert.False(t, result.FirstTime)
	secondCode := env.sender.lastCode(t)

	// The first code is dead the moment a new one is issued.
	if firstCode != secondCode {
		_, err = env.svc.VerifyOTP(ctx, testPhone, firstCode)
		assert.ErrorIs(t, err, ErrInvalidCode)
	}

	tokenStr, err := env.svc.VerifyOTP(ctx, testPhone, secondCode)
	require.NoError(t, err)
	assert.NotEmpty(t, tokenStr)
}

func TestAuthenticateRejectsInvalidPhone(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, phone := range []string{"", "abc", "123", "+12345678901234567890"} {
		_, err := env.svc.Authenticate(ctx, phone)
		assert.ErrorIs(t, err, ErrInvalidInput, "phone %q", phone)
	}
}

func TestVerifyOTPHappyPath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Authenticate(ctx, testPhone)
	require.NoError(t, err)
	code := env.sender.lastCode(t)

	tokenStr, err := env.svc.VerifyOTP(ctx, testPhone, code)
	require.NoError(t, err)

	claims, err := env.issuer.Parse(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, testPhone, claims.Phone)

	user, err := env.users.GetUserByPhone(ctx, testPhone)
	require.NoError(t, err)
	assert.True(t, user.PhoneVerified)

	challenge, err := env.challenges.GetByPhone(ctx, testPhone)
	require.NoError(t, err)
	assert.True(t, challenge.Used)
}

func TestVerifyOTPSecondUseRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Authenticate(ctx, testPhone)
	require.NoError(t, err)
	code := env.sender.lastCode(t)

	_, err = env.svc.VerifyOTP(ctx, testPhone, code)
	require.NoError(t, err)

	_, err = env.svc.VerifyOTP(ctx, testPhone, code)
	assert.ErrorIs(t, err, ErrCodeAlreadyUsed)
}

func TestVerifyOTPWrongCodeDoesNotConsume(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Authenticate(ctx, testPhone)
	require.NoError(t, err)
	code := env.sender.lastCode(t)

	wrong := "999999"
	if wrong == code {
		wrong = "888888"
	}
	_, err = env.svc.VerifyOTP(ctx, testPhone, wrong)
	assert.ErrorIs(t, err, ErrInvalidCode)

	// A failed guess leaves the challenge live.
	tokenStr, err := env.svc.VerifyOTP(ctx, testPhone, code)
	require.NoError(t, err)
	assert.NotEmpty(t, tokenStr)
}

func TestVerifyOTPMalformedCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Authenticate(ctx, testPhone)
	require.NoError(t, err)

	for _, input := range []string{"", "   ", "12a456", "12 34 56", "1.5e5"} {
		_, err = env.svc.VerifyOTP(ctx, testPhone, input)
		assert.ErrorIs(t, err, ErrMalformedCode, "input %q", input)
	}

	// Signed input coerces to a number, so it is a wrong code, not a
	// malformed one.
	_, err = env.svc.VerifyOTP(ctx, testPhone, "-123456")
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestVerifyOTPAcceptsWhitespaceAroundCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Authenticate(ctx, testPhone)
	require.NoError(t, err)
	code := env.sender.lastCode(t)

	tokenStr, err := env.svc.VerifyOTP(ctx, testPhone, "  "+code+" ")
	require.NoError(t, err)
	assert.NotEmpty(t, tokenStr)
}

func TestVerifyOTPExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Authenticate(ctx, testPhone)
	require.NoError(t, err)
	code := env.sender.lastCode(t)

	env.svc.now = func() time.Time {
		return time.Now().Add(4*time.Minute + time.Second)
	}

	_, err = env.svc.VerifyOTP(ctx, testPhone, code)
	assert.ErrorIs(t, err, ErrCodeExpired)
}

func TestVerifyOTPExpiryCheckedAfterMatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Authenticate(ctx, testPhone)
	require.NoError(t, err)
	code := env.sender.lastCode(t)

	env.svc.now = func() time.Time {
		return time.Now().Add(10 * time.Minute)
	}

	// A wrong code on an expired challenge still reports the code mismatch.
	wrong := "999999"
	if wrong == code {
		wrong = "888888"
	}
	_, err = env.svc.VerifyOTP(ctx, testPhone, wrong)
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestVerifyOTPNoChallenge(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.users.CreateUser(ctx, &models.User{Phone: testPhone}))

	_, err := env.svc.VerifyOTP(ctx, testPhone, "123456")
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestVerifyOTPNoUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.challenges.Upsert(ctx, &models.PhoneChallenge{
		Phone:    testPhone,
		IssuedAt: time.Now().UTC(),
	}))

	_, err := env.svc.VerifyOTP(ctx, testPhone, "123456")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestVerifyOTPStoreErrorFailsClosed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Authenticate(ctx, testPhone)
	require.NoError(t, err)
	code := env.sender.lastCode(t)

	storeErr := errors.New("session timeout")
	env.challenges.err = storeErr

	_, err = env.svc.VerifyOTP(ctx, testPhone, code)
	require.Error(t, err)
	assert.ErrorIs(t, err, storeErr)
	assert.NotErrorIs(t, err, ErrInvalidCode)
}

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.users.CreateUser(ctx, &models.User{Phone: testPhone}))

	user, err := env.svc.UpdateProfile(ctx, testPhone, "Ada", "Lovelace", "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Ada", user.FirstName)
	assert.Equal(t, "Lovelace", user.LastName)
	assert.Equal(t, "ada@example.com", user.Email)

	stored, err := env.users.GetUserByPhone(ctx, testPhone)
	require.NoError(t, err)
	assert.Equal(t, "Ada", stored.FirstName)
}

func TestUpdateProfileUnknownPhone(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.UpdateProfile(context.Background(), testPhone, "Ada", "Lovelace", "")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestGenerateOTPStaysInRange(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := generateOTP()
		require.NoError(t, err)
		require.Len(t, code, 6)
		require.GreaterOrEqual(t, code, "100000")
		require.LessOrEqual(t, code, "999999")
	}
}
