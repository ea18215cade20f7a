package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOTPCode_ExpiryBoundaryIsExclusive(t *testing.T) {
	now := time.Now()
	code := OTPCode{ExpiresAt: now}

	// Ровно в момент expires_at код уже истёк
	assert.True(t, code.IsExpired(now))
	assert.False(t, code.IsVerifiable(now))

	code.ExpiresAt = now.Add(time.Nanosecond)
	assert.False(t, code.IsExpired(now))
	assert.True(t, code.IsVerifiable(now))
}

func TestOTPCode_BlockBoundaryIsExclusive(t *testing.T) {
	now := time.Now()
	blockedUntil := now
	code := OTPCode{
		ExpiresAt:    now.Add(5 * time.Minute),
		BlockedUntil: &blockedUntil,
	}

	// Ровно в момент blocked_until блокировка уже снята
	assert.False(t, code.IsBlocked(now))
	assert.True(t, code.IsVerifiable(now))

	future := now.Add(time.Second)
	code.BlockedUntil = &future
	assert.True(t, code.IsBlocked(now))
	assert.False(t, code.IsVerifiable(now))
}

func TestOTPCode_VerifiedIsTerminal(t *testing.T) {
	now := time.Now()
	verifiedAt := now.Add(-time.Minute)
	code := OTPCode{
		ExpiresAt:  now.Add(5 * time.Minute),
		VerifiedAt: &verifiedAt,
	}

	assert.True(t, code.IsVerified())
	assert.False(t, code.IsVerifiable(now))
}

func TestRateLimitRecord_Boundaries(t *testing.T) {
	now := time.Now()

	record := RateLimitRecord{WindowStart: now.Add(-time.Hour)}
	assert.True(t, record.WindowExpired(now, time.Hour))
	assert.False(t, record.WindowExpired(now, time.Hour+time.Second))

	blockedUntil := now
	record.BlockedUntil = &blockedUntil
	assert.False(t, record.IsBlocked(now))

	future := now.Add(time.Second)
	record.BlockedUntil = &future
	assert.True(t, record.IsBlocked(now))
}
