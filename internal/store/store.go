// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/arisectf/arise-server/internal/domain"
)

// Repository defines the interface for persisting users, challenges and
// per-(user, challenge) progress.
//
// Lookup methods return (nil, nil) when the entity does not exist. The two
// mutation methods, UnlockHint and AwardSolve, are atomic: the read-check-
// mutate sequence for one (user, challenge) pair is exclusive with respect
// to concurrent calls for the same pair, so a hint is deducted at most once
// and points are awarded at most once.
type Repository interface {
	// CreateUser inserts a new user and returns its assigned ID.
	// Returns errs.ErrAlreadyExists if the username or email is taken.
	CreateUser(ctx context.Context, user *domain.User) (int64, error)

	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, userID int64) (*domain.User, error)

	// GetUserByIdentifier retrieves a user by username, email or contact number.
	GetUserByIdentifier(ctx context.Context, identifier string) (*domain.User, error)

	// ListUsersByScore returns users ordered by score descending with a
	// deterministic username-ascending tie-break. limit <= 0 means all users.
	ListUsersByScore(ctx context.Context, limit int) ([]*domain.User, error)

	// GetChallenge retrieves a challenge by ID, including its secrets.
	GetChallenge(ctx context.Context, challengeID int64) (*domain.Challenge, error)

	// ListChallenges returns all challenges ordered by ID.
	ListChallenges(ctx context.Context) ([]*domain.Challenge, error)

	// SeedChallenges inserts challenges that are not present yet.
	// Existing rows are left untouched so seeding is idempotent.
	SeedChallenges(ctx context.Context, challenges []domain.Challenge) error

	// GetSolveRecord retrieves progress for one (user, challenge) pair.
	GetSolveRecord(ctx context.Context, userID, challengeID int64) (*domain.SolveRecord, error)

	// ListSolveRecords returns all progress rows for a user keyed by challenge ID.
	ListSolveRecords(ctx context.Context, userID int64) (map[int64]*domain.SolveRecord, error)

	// UnlockHint atomically unlocks the hint for (user, challenge),
	// deducting the challenge's hint cost from the user's score exactly once.
	// A second call returns the hint with zero deduction. The deduction is
	// unconditional and may drive the score negative.
	// Returns errs.ErrNotFound for unknown user or challenge IDs.
	UnlockHint(ctx context.Context, userID, challengeID int64) (*domain.HintReceipt, error)

	// AwardSolve atomically marks (user, challenge) solved and adds the
	// challenge's points to the user's score exactly once. A second call
	// reports AlreadySolved with no score change.
	// Returns errs.ErrNotFound for unknown user or challenge IDs.
	AwardSolve(ctx context.Context, userID, challengeID int64) (*domain.SolveReceipt, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
