package entity

import "time"

// RateLimitAction identifies which signup-flow operation a rate-limit
// record counts attempts for.
type RateLimitAction string

const (
	ActionSignup    RateLimitAction = "signup"
	ActionSignin    RateLimitAction = "signin"
	ActionOTPVerify RateLimitAction = "otp_verify"
	ActionOTPResend RateLimitAction = "otp_resend"
)

// RateLimitRecord is a sliding-window attempt counter for one
// (identifier, action) pair. At most one record is active per pair at a
// time; a fresh record (and window) is created once the previous window
// and any block on it have elapsed.
type RateLimitRecord struct {
	ID           string          `gorm:"primaryKey;size:36" json:"id"`
	Identifier   string          `gorm:"size:255;not null;uniqueIndex:idx_rate_limits_target" json:"identifier"`
	Action       RateLimitAction `gorm:"size:20;not null;uniqueIndex:idx_rate_limits_target" json:"action"`
	Attempts     int             `gorm:"not null;default:0" json:"attempts"`
	WindowStart  time.Time       `gorm:"not null" json:"window_start"`
	BlockedUntil *time.Time      `gorm:"index" json:"blocked_until,omitempty"`
	CreatedAt    time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"not null" json:"updated_at"`
}

func (RateLimitRecord) TableName() string {
	return "rate_limit_records"
}

// IsBlocked reports whether the record carries an active block. The block
// boundary is exclusive: at exactly blocked_until the block is over.
func (r *RateLimitRecord) IsBlocked(now time.Time) bool {
	return r.BlockedUntil != nil && r.BlockedUntil.After(now)
}

// WindowExpired reports whether the counting window of the record has
// fully elapsed for the given window duration.
func (r *RateLimitRecord) WindowExpired(now time.Time, window time.Duration) bool {
	return !r.WindowStart.Add(window).After(now)
}
