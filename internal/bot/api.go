package bot

import (
	"domino/internal/domain"
)

// Brain is the interface that all bot strategies must implement.
type Brain interface {
	// Candidates returns the tiles worth attempting, best first. Tiles that
	// cannot fit the layout are left out; an empty result means no move.
	Candidates(hand []domain.Tile, layout domain.Layout) []domain.Tile
}

// BotLevel selects a strategy.
type BotLevel int

const (
	// BotLevelFirst plays the first legal tile in ascending order.
	BotLevelFirst BotLevel = iota
	// BotLevelHeavy sheds the highest pip tiles first.
	BotLevelHeavy
)

func (l BotLevel) String() string {
	switch l {
	case BotLevelFirst:
		return "first"
	case BotLevelHeavy:
		return "heavy"
	}
	return "unknown"
}
