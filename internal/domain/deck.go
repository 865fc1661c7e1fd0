package domain

import (
	"fmt"
	"math/rand"
	"sort"
)

// StandardMaxPip is the highest pip value of the double-six set.
const StandardMaxPip = 6

// Tile is a domino. A and B are normalized so that A <= B.
type Tile struct {
	A int `json:"a" bson:"a"`
	B int `json:"b" bson:"b"`
}

// NewTile builds a normalized tile from two pip values in any order.
func NewTile(a, b int) Tile {
	if a > b {
		a, b = b, a
	}
	return Tile{A: a, B: b}
}

// IsDouble reports whether both halves carry the same pip value.
func (t Tile) IsDouble() bool {
	return t.A == t.B
}

// Pips is the total pip count of the tile.
func (t Tile) Pips() int {
	return t.A + t.B
}

// Has reports whether either half shows the given value.
func (t Tile) Has(pip int) bool {
	return t.A == pip || t.B == pip
}

// Other returns the value on the half opposite to pip. The second result is
// false when the tile does not show pip at all.
func (t Tile) Other(pip int) (int, bool) {
	switch pip {
	case t.A:
		return t.B, true
	case t.B:
		return t.A, true
	}
	return 0, false
}

func (t Tile) String() string {
	return fmt.Sprintf("[%d|%d]", t.A, t.B)
}

// Less orders tiles ascending by their pip pair.
func (t Tile) Less(o Tile) bool {
	if t.A != o.A {
		return t.A < o.A
	}
	return t.B < o.B
}

// ParseTile reads "a-b" or "a|b" notation, e.g. "6-6".
func ParseTile(s string, maxPip int) (Tile, error) {
	var a, b int
	if _, err := fmt.Sscanf(s, "%d-%d", &a, &b); err != nil {
		if _, err := fmt.Sscanf(s, "%d|%d", &a, &b); err != nil {
			return Tile{}, fmt.Errorf("invalid tile %q", s)
		}
	}
	if a < 0 || a > maxPip || b < 0 || b > maxPip {
		return Tile{}, fmt.Errorf("tile %q out of range 0..%d", s, maxPip)
	}
	return NewTile(a, b), nil
}

// NewCatalog enumerates every distinct tile for pips 0..maxPip in ascending
// order. The catalog holds (maxPip+1)(maxPip+2)/2 tiles.
func NewCatalog(maxPip int) []Tile {
	catalog := make([]Tile, 0, CatalogSize(maxPip))
	for a := 0; a <= maxPip; a++ {
		for b := a; b <= maxPip; b++ {
			catalog = append(catalog, Tile{A: a, B: b})
		}
	}
	return catalog
}

// CatalogSize returns C(maxPip+2, 2).
func CatalogSize(maxPip int) int {
	return (maxPip + 1) * (maxPip + 2) / 2
}

// DoublesDescending lists the doubles from maxPip-maxPip down to 0-0.
func DoublesDescending(maxPip int) []Tile {
	out := make([]Tile, 0, maxPip+1)
	for p := maxPip; p >= 0; p-- {
		out = append(out, Tile{A: p, B: p})
	}
	return out
}

// ShuffleTiles returns a shuffled copy of the given tiles.
func ShuffleTiles(tiles []Tile, rng *rand.Rand) []Tile {
	out := make([]Tile, len(tiles))
	copy(out, tiles)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// SortTiles orders tiles ascending by pip pair, in place.
func SortTiles(tiles []Tile) {
	sort.Slice(tiles, func(i, j int) bool {
		return tiles[i].Less(tiles[j])
	})
}
