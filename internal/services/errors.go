// Package services implements the business logic above the repositories: the
// idempotent create path, the aggregate reports, and the ledger retention
// sweeper. This file centralizes common service-level error values so that
// they can be consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or exit codes is performed at the CLI boundary.
package services

import "errors"

var (
	// ErrMissingIdempotencyKey is returned when an idempotent-sensitive
	// operation is attempted without a key. This is a client error.
	ErrMissingIdempotencyKey = errors.New("missing or empty idempotency key")

	// ErrInvalidIdempotencyKey is returned when a key is present but too long
	// or contains characters outside the accepted token alphabet.
	ErrInvalidIdempotencyKey = errors.New("invalid idempotency key")

	// ErrConsistencyViolation indicates an idempotency key was reused for a
	// different recorded outcome. The ledger keeps the first record; the
	// conflicting attempt is rejected, never silently resolved.
	ErrConsistencyViolation = errors.New("idempotency key reused for a different outcome")

	// ErrReplayTargetMissing indicates the ledger maps a key to a resource
	// that no longer exists (deleted out of band after the original create).
	ErrReplayTargetMissing = errors.New("previously created resource no longer exists")

	// ErrEmptyDataset is returned by reports whose semantics are undefined on
	// an empty entity set (no maximum timestamp exists).
	ErrEmptyDataset = errors.New("no entities to report on")

	// ErrMissingColumn is returned when a tabular snapshot lacks a column a
	// report needs (e.g. "Name"). This is a malformed-input client error.
	ErrMissingColumn = errors.New("required column missing from dataset")
)
