// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the idempotency
// ledger: the persisted mapping from (key, operation) to the resource id the
// operation produced the first time it succeeded.
//
// Error semantics:
//   - GetIdempotency returns ErrNotFound when no record matches.
//   - CreateIdempotency returns ErrDuplicate when the (key, operation) pair
//     already exists; callers re-read to discover the winning record.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/autoshophq/go-autoshop-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for consistency across the service layer.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates that an idempotency record already exists for the
// given (key, operation) pair.
var ErrDuplicate = errors.New("duplicate")

// GetIdempotency returns the ledger record for (key, operation), or
// ErrNotFound. Reads deliberately do not filter by age: retention is owned by
// the background sweeper, and an overdue sweep must not change lookup results.
func GetIdempotency(ctx context.Context, db *gorm.DB, key, operation string) (*domain.IdempotencyRecord, error) {
	var rec domain.IdempotencyRecord
	err := db.WithContext(ctx).
		Where("key = ? AND operation = ?", key, operation).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateIdempotency inserts a ledger record and returns ErrDuplicate on a
// unique violation of (key, operation). The unique index is what makes the
// service layer's check-then-act sequence safe under concurrent retries.
func CreateIdempotency(ctx context.Context, db *gorm.DB, key, operation string, resourceID int) (*domain.IdempotencyRecord, error) {
	rec := &domain.IdempotencyRecord{
		Key:        key,
		Operation:  operation,
		ResourceID: resourceID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// DeleteExpiredIdempotency removes every ledger record created before cutoff
// and reports how many rows were deleted.
func DeleteExpiredIdempotency(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&domain.IdempotencyRecord{})
	return res.RowsAffected, res.Error
}

// isUniqueViolation matches unique-constraint failures across the drivers in
// use. glebarez/sqlite often returns plain-text errors for UNIQUE violations,
// and postgres reports SQLSTATE 23505.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "sqlstate 23505") ||
		strings.Contains(low, "duplicate key value")
}
