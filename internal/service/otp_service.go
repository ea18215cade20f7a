package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/yourusername/signup-api/internal/domain/entity"
	"github.com/yourusername/signup-api/internal/domain/repository"
	apperrors "github.com/yourusername/signup-api/internal/pkg/errors"
)

// RequestMeta carries audit metadata of the originating HTTP request,
// stored write-once on each OTP record.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// GenerateResult is returned by Generate and Resend.
type GenerateResult struct {
	AttemptsRemaining int
}

// VerifyResult is returned by a successful Verify.
type VerifyResult struct {
	User *entity.User
}

// OTPService drives the signup OTP state machine per email:
// NoActiveCode -> CodeIssued -> (Verified | Expired | Blocked).
//
// All coordination state lives in the OTP and rate-limit tables, so the
// service itself is stateless and safe to run on many instances at once.
type OTPService struct {
	otpRepo        repository.OTPRepository
	limiter        RateLimiter
	accounts       AccountCreator
	emailService   EmailService
	codeTTL        time.Duration
	maxAttempts    int
	blockDuration  time.Duration
	resendCooldown time.Duration
	sendTimeout    time.Duration
}

func NewOTPService(
	otpRepo repository.OTPRepository,
	limiter RateLimiter,
	accounts AccountCreator,
	emailService EmailService,
	codeTTL time.Duration,
	maxAttempts int,
	blockDuration time.Duration,
	resendCooldown time.Duration,
	sendTimeout time.Duration,
) (*OTPService, error) {
	if otpRepo == nil {
		return nil, fmt.Errorf("otp repository is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if accounts == nil {
		return nil, fmt.Errorf("account creator is required")
	}
	if emailService == nil {
		return nil, fmt.Errorf("email service is required")
	}
	if codeTTL <= 0 {
		codeTTL = 10 * time.Minute
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if blockDuration <= 0 {
		blockDuration = 15 * time.Minute
	}
	if resendCooldown <= 0 {
		resendCooldown = 60 * time.Second
	}
	if sendTimeout <= 0 {
		sendTimeout = 10 * time.Second
	}

	return &OTPService{
		otpRepo:        otpRepo,
		limiter:        limiter,
		accounts:       accounts,
		emailService:   emailService,
		codeTTL:        codeTTL,
		maxAttempts:    maxAttempts,
		blockDuration:  blockDuration,
		resendCooldown: resendCooldown,
		sendTimeout:    sendTimeout,
	}, nil
}

// Generate issues a fresh OTP for a new signup and emails it.
func (s *OTPService) Generate(ctx context.Context, email string, meta RequestMeta) (*GenerateResult, error) {
	gate := s.limiter.Check(ctx, email, entity.ActionSignup)
	if !gate.Allowed {
		return nil, &RateLimitedError{BlockedUntil: gate.BlockedUntil}
	}

	exists, err := s.accounts.Exists(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		// An existing-email probe still consumes quota, so the endpoint
		// cannot be used for cheap enumeration by retry.
		s.limiter.Increment(ctx, email, entity.ActionSignup)
		return nil, ErrEmailTaken
	}

	return s.issueCode(ctx, email, meta, entity.ActionSignup, gate.AttemptsRemaining)
}

// Resend issues another OTP for an email whose signup cycle is already in
// progress. Outstanding codes stay valid; Verify always picks the newest
// eligible one.
func (s *OTPService) Resend(ctx context.Context, email string, meta RequestMeta) (*GenerateResult, error) {
	gate := s.limiter.Check(ctx, email, entity.ActionOTPResend)
	if !gate.Allowed {
		return nil, &RateLimitedError{BlockedUntil: gate.BlockedUntil}
	}

	recent, err := s.otpRepo.HasRecentRequest(ctx, email, s.resendCooldown)
	if err != nil {
		return nil, err
	}
	if recent {
		return nil, ErrTooSoon
	}

	return s.issueCode(ctx, email, meta, entity.ActionOTPResend, gate.AttemptsRemaining)
}

// issueCode inserts the OTP record first and only then attempts delivery;
// no lock is held across the email call. A failed send rolls the record
// back so no code the user never received stays verifiable.
func (s *OTPService) issueCode(ctx context.Context, email string, meta RequestMeta,
	action entity.RateLimitAction, attemptsRemaining int) (*GenerateResult, error) {

	code, err := generateOTPCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate otp code: %w", err)
	}

	now := time.Now()
	record := &entity.OTPCode{
		Email:       email,
		Code:        code,
		MaxAttempts: s.maxAttempts,
		ExpiresAt:   now.Add(s.codeTTL),
		IPAddress:   meta.IPAddress,
		UserAgent:   meta.UserAgent,
	}
	if err := s.otpRepo.Insert(ctx, record); err != nil {
		return nil, err
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	idempotencyKey := fmt.Sprintf("signup-otp:%s:%s", email, record.ID)
	if err := s.emailService.SendOTPCode(sendCtx, email, code, idempotencyKey); err != nil {
		log.Printf("[OTPService] delivery failed for email=%s: %v. Rolling back otp record.", email, err)
		if delErr := s.otpRepo.Delete(ctx, email, code); delErr != nil {
			log.Printf("[OTPService] failed to roll back otp record for email=%s: %v", email, delErr)
		}
		// The attempt was made, it still counts.
		s.limiter.Increment(ctx, email, action)
		return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	s.limiter.Increment(ctx, email, action)

	if attemptsRemaining > 0 {
		attemptsRemaining--
	}
	return &GenerateResult{AttemptsRemaining: attemptsRemaining}, nil
}

// Verify consumes the OTP and creates the account. Wrong code, expired
// code and already-consumed code are indistinguishable to the caller.
func (s *OTPService) Verify(ctx context.Context, email, code, password string, meta RequestMeta) (*VerifyResult, error) {
	gate := s.limiter.Check(ctx, email, entity.ActionOTPVerify)
	if !gate.Allowed {
		return nil, &RateLimitedError{BlockedUntil: gate.BlockedUntil}
	}

	blocked, err := s.otpRepo.HasRecentBlock(ctx, email)
	if err != nil {
		return nil, err
	}
	if blocked {
		s.limiter.Increment(ctx, email, entity.ActionOTPVerify)
		return nil, &AccountBlockedError{}
	}

	record, err := s.otpRepo.FindByCode(ctx, email, code)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.recordFailedGuess(ctx, email)
			s.limiter.Increment(ctx, email, entity.ActionOTPVerify)
			return nil, ErrInvalidOrExpiredCode
		}
		return nil, err
	}

	if err := s.otpRepo.MarkVerified(ctx, record.ID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// Lost the race against a concurrent verify of the same code.
			s.limiter.Increment(ctx, email, entity.ActionOTPVerify)
			return nil, ErrInvalidOrExpiredCode
		}
		return nil, err
	}

	user, err := s.accounts.Create(ctx, email, password, meta.IPAddress)
	if err != nil {
		// The code stays consumed: a fresh OTP is required to retry, so a
		// single code can never back two creation attempts.
		log.Printf("[OTPService] account creation failed for email=%s: %v", email, err)
		s.limiter.Increment(ctx, email, entity.ActionOTPVerify)
		return nil, fmt.Errorf("%w: %v", ErrAccountCreationFailed, err)
	}

	s.limiter.Increment(ctx, email, entity.ActionOTPVerify)
	log.Printf("[OTPService] signup verified for email=%s, user id=%d", email, user.ID)
	return &VerifyResult{User: user}, nil
}

// recordFailedGuess counts a wrong code against the newest outstanding
// OTP record, so guessing against an existing code moves it toward its
// attempt ceiling even though the presented code did not match it.
func (s *OTPService) recordFailedGuess(ctx context.Context, email string) {
	latest, err := s.otpRepo.FindVerifiable(ctx, email)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			log.Printf("[OTPService] failed to look up outstanding otp for email=%s: %v", email, err)
		}
		return
	}
	attempts, blocked, err := s.otpRepo.IncrementAttempts(ctx, latest.ID, time.Now().Add(s.blockDuration))
	if err != nil {
		log.Printf("[OTPService] failed to count otp attempt for email=%s: %v", email, err)
		return
	}
	if blocked {
		log.Printf("[OTPService] otp record %s blocked after %d failed attempts", latest.ID, attempts)
	}
}

// generateOTPCode returns a cryptographically unpredictable 6-digit code,
// zero-padded ("000451" is a valid code).
func generateOTPCode() (string, error) {
	max := big.NewInt(1000000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
