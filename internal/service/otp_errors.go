package service

import (
	"errors"
	"time"
)

// Signup flow specific errors used by handlers for stable error mapping.
var (
	ErrEmailTaken            = errors.New("email_taken")
	ErrDeliveryFailed        = errors.New("delivery_failed")
	ErrInvalidOrExpiredCode  = errors.New("invalid_or_expired_code")
	ErrTooSoon               = errors.New("too_soon")
	ErrAccountCreationFailed = errors.New("account_creation_failed")
	ErrInvalidCredentials    = errors.New("invalid_credentials")
)

// RateLimitedError is returned when the per-action limiter rejects an
// attempt. BlockedUntil is nil when the window is simply exhausted without
// an explicit block on record.
type RateLimitedError struct {
	BlockedUntil *time.Time
}

func (e *RateLimitedError) Error() string {
	return "rate_limited"
}

// AccountBlockedError is returned when verification is refused because an
// outstanding OTP record for the email is under an attempt block. It is
// deliberately silent about whether the presented code was correct.
type AccountBlockedError struct {
	BlockedUntil *time.Time
}

func (e *AccountBlockedError) Error() string {
	return "account_temporarily_blocked"
}
