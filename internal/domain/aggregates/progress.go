package aggregates

import (
	"context"
	"time"

	"github.com/yungbote/recycleright-backend/internal/domain/gamification"
)

var ProgressAggregateContract = Contract{
	Name:             "Gamification.ProgressAggregate",
	WriteTxOwnership: WriteTxOwnedByAggregate,
	ReadPolicy:       ReadPolicyProjection,
	Notes:            "Owns the per-user progress record and its append-only event log.",
}

// MutateFunc edits a private copy of the current record and returns the events
// to append. Returning an error aborts the write with nothing committed.
type MutateFunc func(p *gamification.UserProgress) ([]gamification.DisposalEvent, error)

// Standing is the slice of a progress record the leaderboard ranks on.
type Standing struct {
	UserID    string
	Points    int
	Level     int
	CreatedAt time.Time
}

// ProgressAggregate persists user progress.
//
// Failures are *aggregates.Error with codes CodeValidation, CodeNotFound,
// CodeConflict, CodeRetryable or CodeInternal.
type ProgressAggregate interface {
	Aggregate

	// Register inserts a fresh record. A duplicate user id is CodeConflict.
	Register(ctx context.Context, p *gamification.UserProgress) error

	Load(ctx context.Context, userID string) (*gamification.UserProgress, error)

	// Mutate locks the record, applies fn and commits the updated record
	// together with the returned events. The write is guarded by the record
	// version; a concurrent writer surfaces as CodeConflict.
	Mutate(ctx context.Context, userID string, fn MutateFunc) (*gamification.UserProgress, []gamification.DisposalEvent, error)

	// Events lists a user's events newest first. limit <= 0 returns all of them.
	Events(ctx context.Context, userID string, limit int) ([]gamification.DisposalEvent, error)

	Standings(ctx context.Context) ([]Standing, error)
}
