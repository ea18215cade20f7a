package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/signup-api/internal/domain/entity"
	apperrors "github.com/yourusername/signup-api/internal/pkg/errors"
)

// ============================================================================
// Mocks
// ============================================================================

// MockRateLimitRepository реализует repository.RateLimitRepository
type MockRateLimitRepository struct {
	mock.Mock
}

func (m *MockRateLimitRepository) Find(ctx context.Context, identifier string, action entity.RateLimitAction) (*entity.RateLimitRecord, error) {
	args := m.Called(ctx, identifier, action)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.RateLimitRecord), args.Error(1)
}

func (m *MockRateLimitRepository) Increment(ctx context.Context, identifier string, action entity.RateLimitAction,
	windowCutoff time.Time, limit int, blockUntil time.Time) (*entity.RateLimitRecord, error) {
	args := m.Called(ctx, identifier, action, windowCutoff, limit, blockUntil)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.RateLimitRecord), args.Error(1)
}

func (m *MockRateLimitRepository) SetBlockedUntil(ctx context.Context, id string, until time.Time) error {
	args := m.Called(ctx, id, until)
	return args.Error(0)
}

func (m *MockRateLimitRepository) DeleteExpired(ctx context.Context, now time.Time, maxWindow time.Duration) (int64, error) {
	args := m.Called(ctx, now, maxWindow)
	return args.Get(0).(int64), args.Error(1)
}

func newTestLimiter(t *testing.T, repo *MockRateLimitRepository) *PersistentRateLimiter {
	t.Helper()
	limiter, err := NewPersistentRateLimiter(repo, DefaultRateLimitPolicies())
	require.NoError(t, err)
	return limiter
}

// ============================================================================
// Check
// ============================================================================

func TestRateLimiter_Check_NoRecordAllows(t *testing.T) {
	repo := new(MockRateLimitRepository)
	repo.On("Find", mock.Anything, "user@test.com", entity.ActionSignup).Return(nil, apperrors.ErrNotFound)

	limiter := newTestLimiter(t, repo)
	result := limiter.Check(context.Background(), "user@test.com", entity.ActionSignup)

	assert.True(t, result.Allowed)
	assert.Equal(t, 5, result.AttemptsRemaining)
	repo.AssertExpectations(t)
}

func TestRateLimiter_Check_UnderLimitAllows(t *testing.T) {
	repo := new(MockRateLimitRepository)
	repo.On("Find", mock.Anything, "user@test.com", entity.ActionSignup).Return(&entity.RateLimitRecord{
		ID:          "rl-1",
		Attempts:    3,
		WindowStart: time.Now().Add(-time.Minute),
	}, nil)

	limiter := newTestLimiter(t, repo)
	result := limiter.Check(context.Background(), "user@test.com", entity.ActionSignup)

	assert.True(t, result.Allowed)
	assert.Equal(t, 2, result.AttemptsRemaining)
}

func TestRateLimiter_Check_AtCeilingBlocksDurably(t *testing.T) {
	repo := new(MockRateLimitRepository)
	repo.On("Find", mock.Anything, "user@test.com", entity.ActionSignup).Return(&entity.RateLimitRecord{
		ID:          "rl-1",
		Attempts:    5,
		WindowStart: time.Now().Add(-time.Minute),
	}, nil)
	repo.On("SetBlockedUntil", mock.Anything, "rl-1", mock.MatchedBy(func(until time.Time) bool {
		return until.After(time.Now())
	})).Return(nil)

	limiter := newTestLimiter(t, repo)
	result := limiter.Check(context.Background(), "user@test.com", entity.ActionSignup)

	assert.False(t, result.Allowed)
	require.NotNil(t, result.BlockedUntil)
	assert.True(t, result.BlockedUntil.After(time.Now()), "rejection must set a blockedUntil strictly in the future")
	repo.AssertExpectations(t)
}

func TestRateLimiter_Check_ActiveBlockRejects(t *testing.T) {
	blockedUntil := time.Now().Add(10 * time.Minute)
	repo := new(MockRateLimitRepository)
	repo.On("Find", mock.Anything, "user@test.com", entity.ActionOTPVerify).Return(&entity.RateLimitRecord{
		ID:           "rl-1",
		Attempts:     5,
		WindowStart:  time.Now().Add(-time.Minute),
		BlockedUntil: &blockedUntil,
	}, nil)

	limiter := newTestLimiter(t, repo)
	result := limiter.Check(context.Background(), "user@test.com", entity.ActionOTPVerify)

	assert.False(t, result.Allowed)
	require.NotNil(t, result.BlockedUntil)
	assert.Equal(t, blockedUntil.Unix(), result.BlockedUntil.Unix())
	repo.AssertNotCalled(t, "SetBlockedUntil", mock.Anything, mock.Anything, mock.Anything)
}

func TestRateLimiter_Check_ElapsedBlockBoundaryAllows(t *testing.T) {
	// Блокировка до прошедшего момента больше не действует
	blockedUntil := time.Now().Add(-time.Second)
	repo := new(MockRateLimitRepository)
	repo.On("Find", mock.Anything, "user@test.com", entity.ActionOTPVerify).Return(&entity.RateLimitRecord{
		ID:           "rl-1",
		Attempts:     2,
		WindowStart:  time.Now().Add(-time.Minute),
		BlockedUntil: &blockedUntil,
	}, nil)

	limiter := newTestLimiter(t, repo)
	result := limiter.Check(context.Background(), "user@test.com", entity.ActionOTPVerify)

	assert.True(t, result.Allowed)
	assert.Equal(t, 3, result.AttemptsRemaining)
}

func TestRateLimiter_Check_ExpiredWindowResets(t *testing.T) {
	repo := new(MockRateLimitRepository)
	repo.On("Find", mock.Anything, "user@test.com", entity.ActionSignup).Return(&entity.RateLimitRecord{
		ID:          "rl-1",
		Attempts:    5,
		WindowStart: time.Now().Add(-2 * time.Hour),
	}, nil)

	limiter := newTestLimiter(t, repo)
	result := limiter.Check(context.Background(), "user@test.com", entity.ActionSignup)

	assert.True(t, result.Allowed)
	assert.Equal(t, 5, result.AttemptsRemaining)
}

func TestRateLimiter_Check_StorageErrorFailsOpen(t *testing.T) {
	repo := new(MockRateLimitRepository)
	repo.On("Find", mock.Anything, "user@test.com", entity.ActionSignup).
		Return(nil, errors.New("connection refused"))

	limiter := newTestLimiter(t, repo)
	result := limiter.Check(context.Background(), "user@test.com", entity.ActionSignup)

	assert.True(t, result.Allowed, "limiter outages must not block legitimate users")
}

// ============================================================================
// Increment
// ============================================================================

func TestRateLimiter_Increment_PassesPolicyToRepo(t *testing.T) {
	repo := new(MockRateLimitRepository)
	repo.On("Increment", mock.Anything, "user@test.com", entity.ActionOTPResend,
		mock.Anything, 3, mock.Anything).
		Return(&entity.RateLimitRecord{ID: "rl-1", Attempts: 1}, nil)

	limiter := newTestLimiter(t, repo)
	limiter.Increment(context.Background(), "user@test.com", entity.ActionOTPResend)

	repo.AssertExpectations(t)
}

func TestRateLimiter_Increment_StorageErrorIsSwallowed(t *testing.T) {
	repo := new(MockRateLimitRepository)
	repo.On("Increment", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("connection refused"))

	limiter := newTestLimiter(t, repo)
	assert.NotPanics(t, func() {
		limiter.Increment(context.Background(), "user@test.com", entity.ActionSignup)
	})
}

func TestNewPersistentRateLimiter_Validation(t *testing.T) {
	_, err := NewPersistentRateLimiter(nil, nil)
	assert.Error(t, err)

	repo := new(MockRateLimitRepository)
	_, err = NewPersistentRateLimiter(repo, map[entity.RateLimitAction]RateLimitPolicy{
		entity.ActionSignup: {MaxAttempts: 0, Window: time.Hour, BlockDuration: time.Minute},
	})
	assert.Error(t, err)
}

func TestRateLimiter_MaxWindow(t *testing.T) {
	repo := new(MockRateLimitRepository)
	limiter := newTestLimiter(t, repo)
	assert.Equal(t, time.Hour, limiter.MaxWindow())
}
