package ports

import (
	"context"

	"domino/internal/domain"
)

// HandStore owns the tiles of every round: who holds what and where it sits.
type HandStore interface {
	// Deal shuffles the catalog, gives each player domain.HandSize tiles and
	// leaves the remainder in the draw pile.
	Deal(ctx context.Context, roundID string, players []domain.Player, catalog []domain.Tile) (domain.Deal, error)

	// Hand returns every tile the player has owned this round with its location.
	Hand(ctx context.Context, roundID, playerID string) ([]domain.HandTile, error)

	// Holder reports which player owns a tile and where it is. The player id is
	// empty for tiles still in the draw pile.
	Holder(ctx context.Context, roundID string, tile domain.Tile) (string, domain.Location, error)

	// Draw moves one tile from the pile into the player's hand.
	Draw(ctx context.Context, roundID, playerID string) (domain.Tile, error)

	DrawPileSize(ctx context.Context, roundID string) (int, error)
}

// MoveExecutor validates and applies moves. A rejected move wraps
// domain.ErrIllegalMove and leaves the round untouched.
type MoveExecutor interface {
	AttemptMove(ctx context.Context, roundID, playerID string, tile domain.Tile) error
	Layout(ctx context.Context, roundID string) (domain.Layout, error)
}

// LockDetector reports whether a round can no longer progress.
type LockDetector interface {
	IsBlocked(ctx context.Context, roundID string) (bool, error)
}

// RoundLedger exposes the authoritative round status and scoring.
type RoundLedger interface {
	RoundStatus(ctx context.Context, roundID string) (domain.RoundStatus, error)

	// ForceBlock closes an active round as blocked and scores it. Calling it on
	// an already terminal round returns the existing status.
	ForceBlock(ctx context.Context, roundID string) (domain.RoundStatus, error)
}

// Table bundles the per-round collaborators the engine drives.
type Table interface {
	HandStore
	MoveExecutor
	LockDetector
	RoundLedger
}

// StandingsStore mirrors accumulated team scores outside the process.
type StandingsStore interface {
	// AddScore adds delta to the team score and returns the new total.
	AddScore(ctx context.Context, matchID, team string, delta int) (int, error)
	Standings(ctx context.Context, matchID string) (map[string]int, error)
}

// Archive persists finished rounds and matches.
type Archive interface {
	SaveRound(ctx context.Context, record *domain.RoundRecord) error
	SaveMatch(ctx context.Context, match *domain.Match) error
	FindMatch(ctx context.Context, matchID string) (*domain.MatchResult, error)
}
