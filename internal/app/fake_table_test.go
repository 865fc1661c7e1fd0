package app

import (
	"context"
	"fmt"

	"domino/internal/domain"
)

// fakeTable is a scriptable single-round table. Every Deal resets it to the
// preset hands and pile.
type fakeTable struct {
	preset map[string][]domain.Tile
	pile   []domain.Tile

	// accept overrides the layout rules when set.
	accept func(playerID string, tile domain.Tile) bool
	// alwaysBlocked makes IsBlocked report true after the first decided turn.
	alwaysBlocked bool
	// deltas[i] is the ledger outcome of the i-th dealt round.
	deltas []map[string]int

	rounds     int
	players    []domain.Player
	hands      map[string][]domain.Tile
	placed     map[domain.Tile]string
	layout     domain.Layout
	status     domain.RoundStatus
	forceCalls int
}

func (f *fakeTable) Deal(ctx context.Context, roundID string, players []domain.Player, catalog []domain.Tile) (domain.Deal, error) {
	f.rounds++
	f.players = players
	f.hands = make(map[string][]domain.Tile, len(f.preset))
	for id, tiles := range f.preset {
		f.hands[id] = append([]domain.Tile(nil), tiles...)
	}
	f.placed = map[domain.Tile]string{}
	f.layout = domain.Layout{}
	f.status = domain.RoundStatus{RoundID: roundID, Phase: domain.RoundOpen}
	return domain.Deal{Hands: f.hands, DrawPile: len(f.pile)}, nil
}

func (f *fakeTable) Hand(ctx context.Context, roundID, playerID string) ([]domain.HandTile, error) {
	var out []domain.HandTile
	for _, t := range f.hands[playerID] {
		out = append(out, domain.HandTile{Tile: t, Location: domain.InHand})
	}
	for t, owner := range f.placed {
		if owner == playerID {
			out = append(out, domain.HandTile{Tile: t, Location: domain.Placed})
		}
	}
	return out, nil
}

func (f *fakeTable) Holder(ctx context.Context, roundID string, tile domain.Tile) (string, domain.Location, error) {
	for id, tiles := range f.hands {
		if domain.ContainsTile(tiles, tile) {
			return id, domain.InHand, nil
		}
	}
	if owner, ok := f.placed[tile]; ok {
		return owner, domain.Placed, nil
	}
	return "", domain.InDrawPile, nil
}

func (f *fakeTable) Draw(ctx context.Context, roundID, playerID string) (domain.Tile, error) {
	if len(f.pile) == 0 {
		return domain.Tile{}, fmt.Errorf("%w: empty pile", domain.ErrProtocolViolation)
	}
	tile := f.pile[0]
	f.pile = f.pile[1:]
	f.hands[playerID] = append(f.hands[playerID], tile)
	return tile, nil
}

func (f *fakeTable) DrawPileSize(ctx context.Context, roundID string) (int, error) {
	return len(f.pile), nil
}

func (f *fakeTable) AttemptMove(ctx context.Context, roundID, playerID string, tile domain.Tile) error {
	if f.status.Phase.Terminal() {
		return fmt.Errorf("%w: round over", domain.ErrProtocolViolation)
	}
	if !domain.ContainsTile(f.hands[playerID], tile) {
		return fmt.Errorf("%w: not held", domain.ErrIllegalMove)
	}
	if f.accept != nil && !f.accept(playerID, tile) {
		return fmt.Errorf("%w: rejected", domain.ErrIllegalMove)
	}
	layout, err := domain.Attach(f.layout, tile)
	if err != nil {
		return err
	}
	f.layout = layout
	f.hands[playerID] = domain.RemoveTile(f.hands[playerID], tile)
	f.placed[tile] = playerID
	f.status.Phase = domain.RoundActive
	if len(f.hands[playerID]) == 0 {
		team := f.players[domain.SeatOf(f.players, playerID)].Team
		f.status = domain.RoundStatus{
			RoundID:      roundID,
			Phase:        domain.RoundCompleted,
			WinnerPlayer: playerID,
			WinnerTeam:   team,
			Deltas:       f.outcome(),
		}
	}
	return nil
}

func (f *fakeTable) Layout(ctx context.Context, roundID string) (domain.Layout, error) {
	return f.layout, nil
}

func (f *fakeTable) IsBlocked(ctx context.Context, roundID string) (bool, error) {
	return f.alwaysBlocked || f.status.Phase == domain.RoundBlocked, nil
}

func (f *fakeTable) RoundStatus(ctx context.Context, roundID string) (domain.RoundStatus, error) {
	return f.status, nil
}

func (f *fakeTable) ForceBlock(ctx context.Context, roundID string) (domain.RoundStatus, error) {
	f.forceCalls++
	if !f.status.Phase.Terminal() {
		f.status = domain.RoundStatus{RoundID: roundID, Phase: domain.RoundBlocked, Deltas: f.outcome()}
	}
	return f.status, nil
}

func (f *fakeTable) outcome() map[string]int {
	if f.rounds-1 < len(f.deltas) {
		return f.deltas[f.rounds-1]
	}
	return map[string]int{}
}

func (f *fakeTable) emptyHands() int {
	n := 0
	for _, tiles := range f.hands {
		if len(tiles) == 0 {
			n++
		}
	}
	return n
}

type fakeStandings struct {
	scores map[string]int
	err    error
}

func (s *fakeStandings) AddScore(ctx context.Context, matchID, team string, delta int) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	if s.scores == nil {
		s.scores = map[string]int{}
	}
	s.scores[team] += delta
	return s.scores[team], nil
}

func (s *fakeStandings) Standings(ctx context.Context, matchID string) (map[string]int, error) {
	return s.scores, s.err
}

type fakeArchive struct {
	rounds  []*domain.RoundRecord
	matches []*domain.Match
}

func (a *fakeArchive) SaveRound(ctx context.Context, record *domain.RoundRecord) error {
	a.rounds = append(a.rounds, record)
	return nil
}

func (a *fakeArchive) SaveMatch(ctx context.Context, match *domain.Match) error {
	a.matches = append(a.matches, match)
	return nil
}

func (a *fakeArchive) FindMatch(ctx context.Context, matchID string) (*domain.MatchResult, error) {
	for _, m := range a.matches {
		if m.ID == matchID {
			res := m.Result()
			return &res, nil
		}
	}
	return nil, nil
}

func seatPlayers(n int) []domain.Player {
	players := make([]domain.Player, n)
	for i := range players {
		players[i] = domain.Player{ID: fmt.Sprintf("p%d", i), Name: fmt.Sprintf("Player %d", i+1)}
	}
	return domain.AssignTeams(players)
}

func tileList(pairs ...[2]int) []domain.Tile {
	out := make([]domain.Tile, len(pairs))
	for i, p := range pairs {
		out[i] = domain.NewTile(p[0], p[1])
	}
	return out
}

func eventKinds(events []Event) []EventKind {
	out := make([]EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}
