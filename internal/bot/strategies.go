package bot

import (
	"sort"

	"domino/internal/domain"
)

// FirstLegal tries playable tiles in ascending (a, b) order.
type FirstLegal struct{}

func (FirstLegal) Candidates(hand []domain.Tile, layout domain.Layout) []domain.Tile {
	out := domain.PlayableTiles(hand, layout)
	domain.SortTiles(out)
	return out
}

// HeavyFirst tries the playable tile with the most pips first, so that a
// blocked round leaves less in hand. Doubles win ties, then ascending order.
type HeavyFirst struct{}

func (HeavyFirst) Candidates(hand []domain.Tile, layout domain.Layout) []domain.Tile {
	out := domain.PlayableTiles(hand, layout)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Pips() != b.Pips() {
			return a.Pips() > b.Pips()
		}
		if a.IsDouble() != b.IsDouble() {
			return a.IsDouble()
		}
		return a.Less(b)
	})
	return out
}
