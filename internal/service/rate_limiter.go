package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/yourusername/signup-api/internal/domain/entity"
	"github.com/yourusername/signup-api/internal/domain/repository"
	apperrors "github.com/yourusername/signup-api/internal/pkg/errors"
)

// RateLimitPolicy configures one action: how many attempts fit into a
// window and how long the block lasts once the ceiling is reached.
type RateLimitPolicy struct {
	MaxAttempts   int
	Window        time.Duration
	BlockDuration time.Duration
}

// DefaultRateLimitPolicies returns the per-action limits used by the
// signup flow.
func DefaultRateLimitPolicies() map[entity.RateLimitAction]RateLimitPolicy {
	return map[entity.RateLimitAction]RateLimitPolicy{
		entity.ActionSignup:    {MaxAttempts: 5, Window: time.Hour, BlockDuration: 15 * time.Minute},
		entity.ActionSignin:    {MaxAttempts: 10, Window: time.Hour, BlockDuration: 15 * time.Minute},
		entity.ActionOTPVerify: {MaxAttempts: 5, Window: 10 * time.Minute, BlockDuration: 15 * time.Minute},
		entity.ActionOTPResend: {MaxAttempts: 3, Window: 10 * time.Minute, BlockDuration: 15 * time.Minute},
	}
}

// RateLimitResult is the outcome of a Check call.
type RateLimitResult struct {
	Allowed           bool
	AttemptsRemaining int
	BlockedUntil      *time.Time
}

// RateLimiter gates signup-flow operations. Check must be called before
// the gated operation; Increment after it was actually attempted, whether
// it succeeded or failed on domain rules, so every real attempt consumes
// quota.
type RateLimiter interface {
	Check(ctx context.Context, identifier string, action entity.RateLimitAction) RateLimitResult
	Increment(ctx context.Context, identifier string, action entity.RateLimitAction)
}

// PersistentRateLimiter implements RateLimiter on top of the shared
// rate-limit table, so counters hold across instances. Limiter storage
// errors fail open: an outage of the limiter must not lock out legitimate
// users, unlike the OTP store which always fails closed.
type PersistentRateLimiter struct {
	repo     repository.RateLimitRepository
	policies map[entity.RateLimitAction]RateLimitPolicy
}

func NewPersistentRateLimiter(repo repository.RateLimitRepository, policies map[entity.RateLimitAction]RateLimitPolicy) (*PersistentRateLimiter, error) {
	if repo == nil {
		return nil, fmt.Errorf("rate limit repository is required")
	}
	if len(policies) == 0 {
		policies = DefaultRateLimitPolicies()
	}
	// private copy, the table is immutable after construction
	own := make(map[entity.RateLimitAction]RateLimitPolicy, len(policies))
	for action, policy := range policies {
		if policy.MaxAttempts <= 0 || policy.Window <= 0 || policy.BlockDuration <= 0 {
			return nil, fmt.Errorf("invalid rate limit policy for action %q", action)
		}
		own[action] = policy
	}
	return &PersistentRateLimiter{repo: repo, policies: own}, nil
}

// MaxWindow returns the widest configured window, used by the cleanup
// sweep to decide when a record is certainly dead.
func (l *PersistentRateLimiter) MaxWindow() time.Duration {
	var max time.Duration
	for _, policy := range l.policies {
		if policy.Window > max {
			max = policy.Window
		}
		if policy.BlockDuration > max {
			max = policy.BlockDuration
		}
	}
	return max
}

func (l *PersistentRateLimiter) Check(ctx context.Context, identifier string, action entity.RateLimitAction) RateLimitResult {
	policy, ok := l.policies[action]
	if !ok {
		log.Printf("[RateLimiter] no policy configured for action=%s, allowing", action)
		return RateLimitResult{Allowed: true}
	}

	now := time.Now()
	record, err := l.repo.Find(ctx, identifier, action)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return RateLimitResult{Allowed: true, AttemptsRemaining: policy.MaxAttempts}
		}
		log.Printf("[RateLimiter] storage error for identifier=%s action=%s: %v. Allowing (fail-open).", identifier, action, err)
		return RateLimitResult{Allowed: true, AttemptsRemaining: policy.MaxAttempts}
	}

	if record.IsBlocked(now) {
		return RateLimitResult{Allowed: false, BlockedUntil: record.BlockedUntil}
	}

	if record.WindowExpired(now, policy.Window) {
		return RateLimitResult{Allowed: true, AttemptsRemaining: policy.MaxAttempts}
	}

	if record.Attempts >= policy.MaxAttempts {
		// Make the block durable from the check itself, so it holds even
		// if the caller never reaches its Increment.
		until := now.Add(policy.BlockDuration)
		if err := l.repo.SetBlockedUntil(ctx, record.ID, until); err != nil {
			log.Printf("[RateLimiter] failed to persist block for identifier=%s action=%s: %v", identifier, action, err)
		}
		return RateLimitResult{Allowed: false, BlockedUntil: &until}
	}

	return RateLimitResult{Allowed: true, AttemptsRemaining: policy.MaxAttempts - record.Attempts}
}

func (l *PersistentRateLimiter) Increment(ctx context.Context, identifier string, action entity.RateLimitAction) {
	policy, ok := l.policies[action]
	if !ok {
		return
	}

	now := time.Now()
	_, err := l.repo.Increment(ctx, identifier, action,
		now.Add(-policy.Window), policy.MaxAttempts, now.Add(policy.BlockDuration))
	if err != nil {
		// Fail open here as well: a lost increment weakens the limit,
		// it must not fail the user's request.
		log.Printf("[RateLimiter] failed to increment identifier=%s action=%s: %v", identifier, action, err)
	}
}
