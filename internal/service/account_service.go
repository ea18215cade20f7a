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

// AccountCreator is what the OTP flow needs from account management:
// a uniqueness probe before issuing a code and account creation once the
// code is verified.
type AccountCreator interface {
	Exists(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, email, password, signupIP string) (*entity.User, error)
}

// AccountService manages user accounts behind the signup flow.
type AccountService struct {
	userRepo repository.UserRepository
	limiter  RateLimiter
}

func NewAccountService(userRepo repository.UserRepository, limiter RateLimiter) (*AccountService, error) {
	if userRepo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	return &AccountService{userRepo: userRepo, limiter: limiter}, nil
}

func (s *AccountService) Exists(ctx context.Context, email string) (bool, error) {
	return s.userRepo.ExistsByEmail(ctx, email)
}

// Create stores the account with the email already marked verified: it is
// only called after a successful OTP verification.
func (s *AccountService) Create(ctx context.Context, email, password, signupIP string) (*entity.User, error) {
	now := time.Now()
	user := &entity.User{
		Email:           email,
		Password:        password,
		EmailVerifiedAt: &now,
		SignupIP:        signupIP,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	log.Printf("[AccountService] created user id=%d email=%s", user.ID, user.Email)
	return user, nil
}

// Authenticate checks email/password credentials behind the signin rate
// gate. Unknown email and wrong password are indistinguishable to the
// caller.
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (*entity.User, error) {
	gate := s.limiter.Check(ctx, email, entity.ActionSignin)
	if !gate.Allowed {
		return nil, &RateLimitedError{BlockedUntil: gate.BlockedUntil}
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.limiter.Increment(ctx, email, entity.ActionSignin)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.CheckPassword(password) {
		s.limiter.Increment(ctx, email, entity.ActionSignin)
		return nil, ErrInvalidCredentials
	}

	s.limiter.Increment(ctx, email, entity.ActionSignin)
	return user, nil
}
