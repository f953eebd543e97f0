// Package store persists match records. Every mutation of a match happens
// inside InTx after LockMatch (or ClaimWaiting) has taken the row's
// exclusive lock, so callers reload and re-check preconditions under the
// lock before writing. Player ratings are written only under LockPlayer.
//
// Lock order: a transaction may take player locks after match locks, but
// never waits on a match lock while holding a player lock (ClaimWaiting
// skips instead of waiting).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/olymp/arena/internal/models"
)

var ErrNotFound = errors.New("store: not found")

// Tx is a unit of work. Writes become visible to other transactions only
// when the function passed to InTx returns nil.
type Tx interface {
	// LockMatch blocks until the match row's exclusive lock is held and
	// returns the freshly read row.
	LockMatch(ctx context.Context, id int64) (*models.Match, error)

	// ClaimWaiting locks the waiting match (no player2, player1 != playerID)
	// whose player1 rating is closest to rating, oldest first on ties.
	// Rows locked by another transaction are skipped, never waited on.
	// Returns nil, nil when nothing is claimable.
	ClaimWaiting(ctx context.Context, playerID int64, rating int) (*models.Match, error)

	CreateMatch(ctx context.Context, m *models.Match) error
	SaveMatch(ctx context.Context, m *models.Match) error

	// WaitingMatchFor is Store.WaitingMatchFor seen from inside the
	// transaction. Hold the player's lock first so a concurrent join by the
	// same player has either committed or not started.
	WaitingMatchFor(ctx context.Context, playerID int64) (*models.Match, error)

	// LockPlayer blocks until the player row's exclusive lock is held and
	// returns the freshly read row. Take several in ascending id order.
	LockPlayer(ctx context.Context, id int64) (*models.Player, error)

	GetPlayer(ctx context.Context, id int64) (*models.Player, error)
	// SetPlayerRating requires the player's lock from LockPlayer
	SetPlayerRating(ctx context.Context, id int64, rating int) error
	GetProblem(ctx context.Context, id int64) (*models.Problem, error)

	// RecentProblemIDs returns problem ids of the newest matches (with a
	// problem) involving any of playerIDs.
	RecentProblemIDs(ctx context.Context, playerIDs []int64, limit int) ([]int64, error)
}

type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error

	GetMatch(ctx context.Context, id int64) (*models.Match, error)
	GetMatchView(ctx context.Context, id int64) (*models.MatchView, error)
	GetPlayer(ctx context.Context, id int64) (*models.Player, error)

	// WaitingMatchFor returns the waiting match owned by playerID, or nil.
	WaitingMatchFor(ctx context.Context, playerID int64) (*models.Match, error)

	// RecentMatches returns playerID's newest matches, newest first.
	RecentMatches(ctx context.Context, playerID int64, limit int) ([]models.MatchView, error)

	// RatingSeries returns playerID's rating after each finished match,
	// oldest first, keeping only the newest limit points.
	RatingSeries(ctx context.Context, playerID int64, limit int) ([]int, error)

	ExpiredActiveIDs(ctx context.Context, now time.Time) ([]int64, error)
	StaleWaitingIDs(ctx context.Context, createdBefore time.Time) ([]int64, error)
}

// Seeder creates reference rows (players, problems) for dev tooling and tests
type Seeder interface {
	CreatePlayer(ctx context.Context, p *models.Player) error
	CreateProblem(ctx context.Context, p *models.Problem) error
}
