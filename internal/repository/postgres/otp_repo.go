package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/yourusername/signup-api/internal/domain/entity"
	apperrors "github.com/yourusername/signup-api/internal/pkg/errors"
	"gorm.io/gorm"
)

// OTPRepo stores one-time passcodes in PostgreSQL.
type OTPRepo struct {
	db *gorm.DB
}

func NewOTPRepo(db *gorm.DB) *OTPRepo {
	return &OTPRepo{db: db}
}

// verifiableClause is the eligibility condition shared by the lookup
// queries: not consumed, not expired (boundary exclusive) and not under
// an active attempt block.
const verifiableClause = "verified_at IS NULL AND expires_at > ? AND (blocked_until IS NULL OR blocked_until <= ?)"

func (r *OTPRepo) Insert(ctx context.Context, code *entity.OTPCode) error {
	if code.ID == "" {
		code.ID = uuid.NewString()
	}
	if err := r.db.WithContext(ctx).Create(code).Error; err != nil {
		return fmt.Errorf("%w: failed to insert otp code: %v", apperrors.ErrStorageUnavailable, err)
	}
	return nil
}

func (r *OTPRepo) FindVerifiable(ctx context.Context, email string) (*entity.OTPCode, error) {
	now := time.Now()
	var code entity.OTPCode
	err := r.db.WithContext(ctx).
		Where("email = ?", email).
		Where(verifiableClause, now, now).
		Order("created_at DESC").
		First(&code).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("%w: failed to find verifiable otp code: %v", apperrors.ErrStorageUnavailable, err)
	}
	return &code, nil
}

func (r *OTPRepo) FindByCode(ctx context.Context, email, code string) (*entity.OTPCode, error) {
	now := time.Now()
	var record entity.OTPCode
	err := r.db.WithContext(ctx).
		Where("email = ? AND code = ?", email, code).
		Where(verifiableClause, now, now).
		Order("created_at DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("%w: failed to find otp code: %v", apperrors.ErrStorageUnavailable, err)
	}
	return &record, nil
}

// MarkVerified is conditional on verified_at still being NULL, so a code
// can never be consumed twice even under concurrent verify calls.
func (r *OTPRepo) MarkVerified(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&entity.OTPCode{}).
		Where("id = ? AND verified_at IS NULL", id).
		Update("verified_at", time.Now())
	if res.Error != nil {
		return fmt.Errorf("%w: failed to mark otp code verified: %v", apperrors.ErrStorageUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// IncrementAttempts bumps the failed-attempt counter in a single UPDATE.
// The block is applied in the same statement the moment the counter
// reaches max_attempts, so two concurrent wrong guesses can never both
// slip under the ceiling.
func (r *OTPRepo) IncrementAttempts(ctx context.Context, id string, blockUntil time.Time) (int, bool, error) {
	now := time.Now()
	row := r.db.WithContext(ctx).Raw(`
		UPDATE otp_codes
		SET attempts = attempts + 1,
		    blocked_until = CASE
		        WHEN attempts + 1 >= max_attempts AND (blocked_until IS NULL OR blocked_until <= ?) THEN ?
		        ELSE blocked_until
		    END
		WHERE id = ?
		RETURNING attempts, blocked_until`,
		now, blockUntil, id).Row()

	var attempts int
	var blockedUntil *time.Time
	if err := row.Scan(&attempts, &blockedUntil); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, apperrors.ErrNotFound
		}
		return 0, false, fmt.Errorf("%w: failed to increment otp attempts: %v", apperrors.ErrStorageUnavailable, err)
	}
	blocked := blockedUntil != nil && blockedUntil.After(now)
	return attempts, blocked, nil
}

func (r *OTPRepo) Delete(ctx context.Context, email, code string) error {
	err := r.db.WithContext(ctx).
		Where("email = ? AND code = ?", email, code).
		Delete(&entity.OTPCode{}).Error
	if err != nil {
		return fmt.Errorf("%w: failed to delete otp code: %v", apperrors.ErrStorageUnavailable, err)
	}
	return nil
}

func (r *OTPRepo) HasRecentBlock(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.OTPCode{}).
		Where("email = ? AND blocked_until > ?", email, time.Now()).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("%w: failed to check otp block: %v", apperrors.ErrStorageUnavailable, err)
	}
	return count > 0, nil
}

func (r *OTPRepo) HasRecentRequest(ctx context.Context, email string, within time.Duration) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.OTPCode{}).
		Where("email = ? AND created_at > ?", email, time.Now().Add(-within)).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("%w: failed to check recent otp request: %v", apperrors.ErrStorageUnavailable, err)
	}
	return count > 0, nil
}

func (r *OTPRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at <= ? AND (blocked_until IS NULL OR blocked_until <= ?)", cutoff, cutoff).
		Delete(&entity.OTPCode{})
	if res.Error != nil {
		return 0, fmt.Errorf("%w: failed to sweep otp codes: %v", apperrors.ErrStorageUnavailable, res.Error)
	}
	return res.RowsAffected, nil
}
