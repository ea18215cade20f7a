package entity

import "time"

// OTPCode stores one-time signup passcodes together with their
// verification-attempt state and audit metadata.
type OTPCode struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	Email        string     `gorm:"size:100;not null;index:idx_otp_codes_email" json:"email"`
	Code         string     `gorm:"size:6;not null" json:"-"`
	Attempts     int        `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts  int        `gorm:"not null;default:5" json:"max_attempts"`
	ExpiresAt    time.Time  `gorm:"not null;index" json:"expires_at"`
	VerifiedAt   *time.Time `gorm:"index" json:"verified_at,omitempty"`
	BlockedUntil *time.Time `json:"blocked_until,omitempty"`
	IPAddress    string     `gorm:"size:45;not null;default:''" json:"-"`
	UserAgent    string     `gorm:"size:255;not null;default:''" json:"-"`
	CreatedAt    time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (OTPCode) TableName() string {
	return "otp_codes"
}

func (o *OTPCode) IsVerified() bool {
	return o.VerifiedAt != nil
}

// IsExpired reports whether the code can no longer be verified because its
// lifetime has passed. The boundary instant itself counts as expired: a code
// is only live while expires_at is strictly in the future.
func (o *OTPCode) IsExpired(now time.Time) bool {
	return !o.ExpiresAt.After(now)
}

// IsBlocked reports whether failed attempts have locked this code. The block
// ends exactly at blocked_until: verification at that instant is allowed.
func (o *OTPCode) IsBlocked(now time.Time) bool {
	return o.BlockedUntil != nil && o.BlockedUntil.After(now)
}

// IsVerifiable reports whether the code is still eligible for verification:
// never verified, not expired and not under an attempt block.
func (o *OTPCode) IsVerifiable(now time.Time) bool {
	return !o.IsVerified() && !o.IsExpired(now) && !o.IsBlocked(now)
}
