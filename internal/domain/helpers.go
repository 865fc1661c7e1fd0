package domain

// SeatOf returns the index of the player in the slice, or -1.
func SeatOf(players []Player, playerID string) int {
	for i, p := range players {
		if p.ID == playerID {
			return i
		}
	}
	return -1
}

// ContainsTile reports whether the tile is in the slice.
func ContainsTile(tiles []Tile, t Tile) bool {
	for _, x := range tiles {
		if x == t {
			return true
		}
	}
	return false
}

// RemoveTile returns the tiles without the first occurrence of t.
func RemoveTile(tiles []Tile, t Tile) []Tile {
	out := make([]Tile, 0, len(tiles))
	removed := false
	for _, x := range tiles {
		if !removed && x == t {
			removed = true
			continue
		}
		out = append(out, x)
	}
	return out
}

// UnplacedTiles extracts the tiles still in hand, keeping their order.
func UnplacedTiles(hand []HandTile) []Tile {
	out := make([]Tile, 0, len(hand))
	for _, ht := range hand {
		if ht.Location == InHand {
			out = append(out, ht.Tile)
		}
	}
	return out
}
