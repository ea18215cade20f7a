package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/yourusername/signup-api/internal/domain/repository"
)

// CleanupService periodically removes dead OTP codes and rate-limit
// records. Both tables only ever grow during normal operation; rows
// expire logically and are swept here.
type CleanupService struct {
	otpRepo       repository.OTPRepository
	rateLimitRepo repository.RateLimitRepository
	otpRetention  time.Duration
	maxWindow     time.Duration
}

func NewCleanupService(otpRepo repository.OTPRepository, rateLimitRepo repository.RateLimitRepository,
	otpRetention, maxWindow time.Duration) (*CleanupService, error) {
	if otpRepo == nil {
		return nil, fmt.Errorf("otp repository is required")
	}
	if rateLimitRepo == nil {
		return nil, fmt.Errorf("rate limit repository is required")
	}
	if otpRetention <= 0 {
		otpRetention = 24 * time.Hour
	}
	if maxWindow <= 0 {
		maxWindow = time.Hour
	}
	return &CleanupService{
		otpRepo:       otpRepo,
		rateLimitRepo: rateLimitRepo,
		otpRetention:  otpRetention,
		maxWindow:     maxWindow,
	}, nil
}

// Run sweeps on the given interval until ctx is cancelled.
func (s *CleanupService) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("[CleanupService] periodic sweep started (every %s)", interval)
	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case <-ctx.Done():
			log.Println("[CleanupService] periodic sweep stopped")
			return
		}
	}
}

// Sweep removes expired OTP codes past the retention horizon and
// rate-limit records whose window and block have both passed.
func (s *CleanupService) Sweep(ctx context.Context) {
	now := time.Now()

	otpRemoved, err := s.otpRepo.DeleteExpiredBefore(ctx, now.Add(-s.otpRetention))
	if err != nil {
		log.Printf("[CleanupService] otp sweep failed: %v", err)
	}

	rlRemoved, err := s.rateLimitRepo.DeleteExpired(ctx, now, s.maxWindow)
	if err != nil {
		log.Printf("[CleanupService] rate limit sweep failed: %v", err)
	}

	if otpRemoved > 0 || rlRemoved > 0 {
		log.Printf("[CleanupService] sweep removed %d otp codes, %d rate limit records", otpRemoved, rlRemoved)
	}
}
