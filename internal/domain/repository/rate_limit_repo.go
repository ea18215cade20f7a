package repository

import (
	"context"
	"time"

	"github.com/yourusername/signup-api/internal/domain/entity"
)

// RateLimitRepository persists sliding-window attempt counters.
//
// One row exists per (identifier, action) pair; a window is recycled in
// place once it has fully elapsed and any block on it has passed.
type RateLimitRepository interface {
	// Find returns the record for the pair, or apperrors.ErrNotFound.
	Find(ctx context.Context, identifier string, action entity.RateLimitAction) (*entity.RateLimitRecord, error)

	// Increment atomically consumes one attempt. A record whose window
	// started at or before windowCutoff (and whose block has passed) is
	// reset to a fresh window with attempts=1; otherwise attempts is
	// incremented and, when the new count reaches limit, blocked_until is
	// set to blockUntil in the same statement. Returns the resulting record.
	Increment(ctx context.Context, identifier string, action entity.RateLimitAction,
		windowCutoff time.Time, limit int, blockUntil time.Time) (*entity.RateLimitRecord, error)

	// SetBlockedUntil durably blocks the record unless it already carries
	// a later active block.
	SetBlockedUntil(ctx context.Context, id string, until time.Time) error

	// DeleteExpired removes records whose window (for the widest configured
	// window duration) and block have both passed.
	DeleteExpired(ctx context.Context, now time.Time, maxWindow time.Duration) (int64, error)
}
