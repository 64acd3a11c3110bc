// Package services – UserService
//
// This file implements the idempotent create path for users. A create call
// carries an opaque idempotency key; the service consults the ledger before
// performing the write and records the mapping afterwards, so a retried
// create never produces two resources.
//
// The lookup/perform/record sequence is not atomic on its own. Atomicity
// comes from the storage layer: the ledger's unique (key, operation) index
// turns the losing insert of a concurrent duplicate into repo.ErrDuplicate,
// after which the loser re-reads the winning record and replays it.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/autoshophq/go-autoshop-backend/internal/domain"
	"github.com/autoshophq/go-autoshop-backend/internal/repo"
)

// OpCreateUser is the ledger operation label for user creation.
const OpCreateUser = "CreateUser"

// maxIdempotencyKeyLen matches the ledger's key column width.
const maxIdempotencyKeyLen = 200

// idempotencyKeyPattern restricts keys to a conservative token alphabet so
// that keys survive logging, headers, and file names unescaped.
var idempotencyKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// ValidateIdempotencyKey trims and validates a client-supplied key. It
// returns the normalized key, ErrMissingIdempotencyKey for an empty one, or
// ErrInvalidIdempotencyKey when the key is too long or contains characters
// outside the token alphabet.
func ValidateIdempotencyKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrMissingIdempotencyKey
	}
	if len(key) > maxIdempotencyKeyLen || !idempotencyKeyPattern.MatchString(key) {
		return "", ErrInvalidIdempotencyKey
	}
	return key, nil
}

// UserRepo defines the repository contract required by UserService. It covers
// the full user surface plus car creation, which lives with users because cars
// only exist to be referenced by them.
type UserRepo interface {
	CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) (*domain.User, error)
	GetUser(ctx context.Context, db *gorm.DB, id int) (*domain.User, error)
	ListUsers(ctx context.Context, db *gorm.DB) ([]domain.User, error)
	UpdateUser(ctx context.Context, db *gorm.DB, id int, u *domain.User) error
	DeleteUser(ctx context.Context, db *gorm.DB, id int) error
	CreateCar(ctx context.Context, db *gorm.DB, c *domain.Car) (*domain.Car, error)
}

// Ledger defines the idempotency-ledger contract required by UserService.
type Ledger interface {
	Get(ctx context.Context, db *gorm.DB, key, operation string) (*domain.IdempotencyRecord, error)
	Create(ctx context.Context, db *gorm.DB, key, operation string, resourceID int) (*domain.IdempotencyRecord, error)
}

// UserService provides user-level operations with at-most-once create
// semantics.
type UserService struct {
	// DB is the GORM handle for the store users live in.
	DB *gorm.DB
	// Users is the user repository.
	Users UserRepo
	// Ledger is the idempotency ledger.
	Ledger Ledger
}

// NewUserService constructs a UserService over the given store.
func NewUserService(db *gorm.DB, users UserRepo, ledger Ledger) *UserService {
	return &UserService{DB: db, Users: users, Ledger: ledger}
}

// CreateResult reports whether a create call performed the write or replayed
// a prior outcome.
type CreateResult struct {
	User     *domain.User
	Replayed bool
}

// CreateUser performs an at-most-once user creation for the given idempotency
// key.
//
// Behavior:
//   - empty key: ErrMissingIdempotencyKey; malformed key:
//     ErrInvalidIdempotencyKey (both client errors);
//   - ledger hit: the prior user is loaded and returned with Replayed=true
//     (ErrReplayTargetMissing if it was deleted out of band);
//   - ledger miss: the user is created and the mapping recorded; losing a
//     concurrent race for the same key returns the winner's resource, and a
//     winner with a different outcome for the same key is a consistency
//     violation.
func (s *UserService) CreateUser(ctx context.Context, key string, u *domain.User) (*CreateResult, error) {
	key, err := ValidateIdempotencyKey(key)
	if err != nil {
		return nil, err
	}

	rec, err := s.Ledger.Get(ctx, s.DB, key, OpCreateUser)
	switch {
	case err == nil:
		return s.replay(ctx, key, rec.ResourceID)
	case !errors.Is(err, repo.ErrNotFound):
		return nil, err
	}

	created, err := s.Users.CreateUser(ctx, s.DB, u)
	if err != nil {
		return nil, err
	}

	if _, err := s.Ledger.Create(ctx, s.DB, key, OpCreateUser, created.ID); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return s.resolveRace(ctx, key, created.ID)
		}
		return nil, err
	}

	log.Debug().Str("key", key).Int("user_id", created.ID).Msg("recorded idempotent create")
	return &CreateResult{User: created}, nil
}

// replay serves a prior outcome from the ledger.
func (s *UserService) replay(ctx context.Context, key string, resourceID int) (*CreateResult, error) {
	u, err := s.Users.GetUser(ctx, s.DB, resourceID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrReplayTargetMissing
	}
	if err != nil {
		return nil, err
	}
	idempotentReplays.Inc()
	log.Info().Str("key", key).Int("user_id", resourceID).Msg("replayed idempotent create")
	return &CreateResult{User: u, Replayed: true}, nil
}

// resolveRace handles losing the ledger insert to a concurrent request with
// the same key. The winning record decides the outcome: if it maps to the
// same resource the call succeeds; a different resource id means the key was
// reused for a different outcome, which is logged and rejected.
func (s *UserService) resolveRace(ctx context.Context, key string, ourID int) (*CreateResult, error) {
	winner, err := s.Ledger.Get(ctx, s.DB, key, OpCreateUser)
	if err != nil {
		return nil, err
	}
	if winner.ResourceID != ourID {
		consistencyViolations.Inc()
		log.Error().
			Str("key", key).
			Int("recorded_id", winner.ResourceID).
			Int("attempted_id", ourID).
			Msg("idempotency consistency violation")
		return nil, ErrConsistencyViolation
	}
	return s.replay(ctx, key, winner.ResourceID)
}

// GetUser returns a user by id, repo.ErrNotFound when missing.
func (s *UserService) GetUser(ctx context.Context, id int) (*domain.User, error) {
	return s.Users.GetUser(ctx, s.DB, id)
}

// ListUsers returns all users ordered by id.
func (s *UserService) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.Users.ListUsers(ctx, s.DB)
}

// UpdateUser replaces the mutable fields of an existing user. Updates are
// plain writes: they carry no idempotency key because replaying one converges
// on the same state.
func (s *UserService) UpdateUser(ctx context.Context, id int, u *domain.User) error {
	return s.Users.UpdateUser(ctx, s.DB, id, u)
}

// DeleteUser removes a user by id. A ledger entry pointing at the deleted
// user is left in place; a later replay of its key surfaces
// ErrReplayTargetMissing rather than silently re-creating the resource.
func (s *UserService) DeleteUser(ctx context.Context, id int) error {
	return s.Users.DeleteUser(ctx, s.DB, id)
}

// CreateCar inserts a car for users to reference.
func (s *UserService) CreateCar(ctx context.Context, c *domain.Car) (*domain.Car, error) {
	return s.Users.CreateCar(ctx, s.DB, c)
}

// RecordCreation writes a ledger entry for an already-performed operation.
// It backs callers that manage the side effect themselves. A second record
// for the same (key, operation) succeeds only when it names the same
// resource; a different resource id is a consistency violation.
func (s *UserService) RecordCreation(ctx context.Context, key string, resourceID int) error {
	key, err := ValidateIdempotencyKey(key)
	if err != nil {
		return err
	}
	_, err = s.Ledger.Create(ctx, s.DB, key, OpCreateUser, resourceID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repo.ErrDuplicate) {
		return err
	}
	winner, gerr := s.Ledger.Get(ctx, s.DB, key, OpCreateUser)
	if gerr != nil {
		return gerr
	}
	if winner.ResourceID != resourceID {
		consistencyViolations.Inc()
		log.Error().
			Str("key", key).
			Int("recorded_id", winner.ResourceID).
			Int("attempted_id", resourceID).
			Msg("idempotency consistency violation")
		return ErrConsistencyViolation
	}
	return nil
}
