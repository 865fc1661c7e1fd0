package domain

import "fmt"

// Playable reports whether the tile can be attached to the layout. Any tile
// is playable on an empty layout.
func Playable(t Tile, layout Layout) bool {
	if !layout.Set {
		return true
	}
	return t.Has(layout.Left) || t.Has(layout.Right)
}

// PlayableTiles filters the tiles that fit the layout, keeping their order.
func PlayableTiles(tiles []Tile, layout Layout) []Tile {
	var out []Tile
	for _, t := range tiles {
		if Playable(t, layout) {
			out = append(out, t)
		}
	}
	return out
}

// Attach places a tile on the layout and returns the new ends. The left end
// is tried before the right one. Attaching to an empty layout opens it with
// the tile's own values.
func Attach(layout Layout, t Tile) (Layout, error) {
	if !layout.Set {
		return Layout{Set: true, Left: t.A, Right: t.B}, nil
	}
	if other, ok := t.Other(layout.Left); ok {
		layout.Left = other
		return layout, nil
	}
	if other, ok := t.Other(layout.Right); ok {
		layout.Right = other
		return layout, nil
	}
	return layout, fmt.Errorf("%w: %s does not fit %d|%d", ErrIllegalMove, t, layout.Left, layout.Right)
}

// AssignTeams gives each player a team by seat. Four players are split into
// two partnerships (A, B, A, B); smaller tables play every player for themselves.
func AssignTeams(players []Player) []Player {
	out := make([]Player, len(players))
	for i, p := range players {
		p.Seat = i
		if len(players) == 4 {
			p.Team = string(rune('A' + i%2))
		} else {
			p.Team = string(rune('A' + i))
		}
		out[i] = p
	}
	return out
}

// TeamsInSeatOrder lists distinct team names in the order they first appear.
func TeamsInSeatOrder(players []Player) []string {
	seen := make(map[string]bool, len(players))
	var teams []string
	for _, p := range players {
		if !seen[p.Team] {
			seen[p.Team] = true
			teams = append(teams, p.Team)
		}
	}
	return teams
}

// TeamPips sums the pips of the given hands per team. Teams without tiles
// left still appear with zero.
func TeamPips(players []Player, hands map[string][]Tile) map[string]int {
	out := make(map[string]int)
	for _, p := range players {
		out[p.Team] += SumPips(hands[p.ID])
	}
	return out
}

// SumPips totals the pips of a set of tiles.
func SumPips(tiles []Tile) int {
	total := 0
	for _, t := range tiles {
		total += t.Pips()
	}
	return total
}

// RotateFrom returns the players rotated so that the player with the given id
// comes first. The original order is returned when the id is unknown.
func RotateFrom(players []Player, playerID string) []Player {
	idx := SeatOf(players, playerID)
	if idx < 0 {
		idx = 0
	}
	out := make([]Player, 0, len(players))
	out = append(out, players[idx:]...)
	out = append(out, players[:idx]...)
	return out
}
