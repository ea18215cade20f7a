package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/yourusername/signup-api/internal/domain/entity"
	apperrors "github.com/yourusername/signup-api/internal/pkg/errors"
	"gorm.io/gorm"
)

// RateLimitRepo stores sliding-window attempt counters in PostgreSQL.
// One row per (identifier, action) pair, recycled in place once both the
// window and any block on it have fully elapsed.
type RateLimitRepo struct {
	db *gorm.DB
}

func NewRateLimitRepo(db *gorm.DB) *RateLimitRepo {
	return &RateLimitRepo{db: db}
}

func (r *RateLimitRepo) Find(ctx context.Context, identifier string, action entity.RateLimitAction) (*entity.RateLimitRecord, error) {
	var record entity.RateLimitRecord
	err := r.db.WithContext(ctx).
		Where("identifier = ? AND action = ?", identifier, action).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("%w: failed to find rate limit record: %v", apperrors.ErrStorageUnavailable, err)
	}
	return &record, nil
}

// Increment consumes one attempt in a single upsert keyed by the unique
// (identifier, action) index, so concurrent requests serialize on the row
// and the counter cannot be bypassed. A window whose start is at or before
// windowCutoff (with no active block) is reset to attempts=1; otherwise the
// counter is bumped and the block is applied the moment it reaches limit.
func (r *RateLimitRepo) Increment(ctx context.Context, identifier string, action entity.RateLimitAction,
	windowCutoff time.Time, limit int, blockUntil time.Time) (*entity.RateLimitRecord, error) {

	now := time.Now()
	var record entity.RateLimitRecord
	err := r.db.WithContext(ctx).Raw(`
		INSERT INTO rate_limit_records (id, identifier, action, attempts, window_start, blocked_until, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, NULL, ?, ?)
		ON CONFLICT (identifier, action) DO UPDATE SET
		    attempts = CASE
		        WHEN rate_limit_records.window_start <= ? AND (rate_limit_records.blocked_until IS NULL OR rate_limit_records.blocked_until <= ?)
		            THEN 1
		        ELSE rate_limit_records.attempts + 1
		    END,
		    window_start = CASE
		        WHEN rate_limit_records.window_start <= ? AND (rate_limit_records.blocked_until IS NULL OR rate_limit_records.blocked_until <= ?)
		            THEN ?
		        ELSE rate_limit_records.window_start
		    END,
		    blocked_until = CASE
		        WHEN rate_limit_records.window_start <= ? AND (rate_limit_records.blocked_until IS NULL OR rate_limit_records.blocked_until <= ?)
		            THEN NULL
		        WHEN rate_limit_records.blocked_until IS NOT NULL AND rate_limit_records.blocked_until > ?
		            THEN rate_limit_records.blocked_until
		        WHEN rate_limit_records.attempts + 1 >= ?
		            THEN ?
		        ELSE rate_limit_records.blocked_until
		    END,
		    updated_at = ?
		RETURNING id, identifier, action, attempts, window_start, blocked_until, created_at, updated_at`,
		uuid.NewString(), identifier, action, now, now, now,
		windowCutoff, now,
		windowCutoff, now, now,
		windowCutoff, now, now, limit, blockUntil,
		now).
		Scan(&record).Error
	if err != nil {
		return nil, fmt.Errorf("%w: failed to increment rate limit: %v", apperrors.ErrStorageUnavailable, err)
	}
	return &record, nil
}

// SetBlockedUntil durably blocks the record. An existing block that already
// extends past until is kept as is.
func (r *RateLimitRepo) SetBlockedUntil(ctx context.Context, id string, until time.Time) error {
	err := r.db.WithContext(ctx).Model(&entity.RateLimitRecord{}).
		Where("id = ? AND (blocked_until IS NULL OR blocked_until < ?)", id, until).
		Update("blocked_until", until).Error
	if err != nil {
		return fmt.Errorf("%w: failed to set rate limit block: %v", apperrors.ErrStorageUnavailable, err)
	}
	return nil
}

func (r *RateLimitRepo) DeleteExpired(ctx context.Context, now time.Time, maxWindow time.Duration) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("window_start <= ? AND (blocked_until IS NULL OR blocked_until <= ?)", now.Add(-maxWindow), now).
		Delete(&entity.RateLimitRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("%w: failed to sweep rate limit records: %v", apperrors.ErrStorageUnavailable, res.Error)
	}
	return res.RowsAffected, nil
}
