package repository

import (
	"context"
	"time"

	"github.com/yourusername/signup-api/internal/domain/entity"
)

// OTPRepository persists one-time signup passcodes.
//
// Every method reports backend failures wrapped in
// apperrors.ErrStorageUnavailable so callers can fail closed.
type OTPRepository interface {
	Insert(ctx context.Context, code *entity.OTPCode) error

	// FindVerifiable returns the most recently created code for the email
	// that is still eligible for verification (not verified, not expired,
	// not blocked), or apperrors.ErrNotFound.
	FindVerifiable(ctx context.Context, email string) (*entity.OTPCode, error)

	// FindByCode returns the most recent eligible record matching both
	// email and code, or apperrors.ErrNotFound.
	FindByCode(ctx context.Context, email, code string) (*entity.OTPCode, error)

	// MarkVerified sets verified_at exactly once. A record that is already
	// verified is left untouched and apperrors.ErrNotFound is returned.
	MarkVerified(ctx context.Context, id string) error

	// IncrementAttempts atomically bumps the failed-attempt counter and,
	// when the counter reaches the record's max_attempts, sets
	// blocked_until to blockUntil in the same statement.
	IncrementAttempts(ctx context.Context, id string, blockUntil time.Time) (attempts int, blocked bool, err error)

	// Delete removes a specific (email, code) record. Used as the
	// compensating step when email delivery fails.
	Delete(ctx context.Context, email, code string) error

	// HasRecentBlock reports whether any record for the email carries an
	// active attempt block.
	HasRecentBlock(ctx context.Context, email string) (bool, error)

	// HasRecentRequest reports whether a code was issued for the email
	// within the given duration (resend cooldown check).
	HasRecentRequest(ctx context.Context, email string, within time.Duration) (bool, error)

	// DeleteExpiredBefore removes verified or expired records older than
	// cutoff. Returns the number of rows removed.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
