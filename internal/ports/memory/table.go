// Package memory keeps rounds in process memory. It is the reference
// implementation of the hand store, move executor, lock detector and ledger.
package memory

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"domino/internal/domain"
	"domino/internal/scoring"
)

// Table holds every round dealt through it. Each round carries its own lock;
// the table lock only guards the round map.
type Table struct {
	mu     sync.RWMutex
	rounds map[string]*round

	rule scoring.Rule

	rngMu sync.Mutex
	rng   *rand.Rand

	// Shuffle replaces the random shuffle when set. Tests use it to stack the deal.
	Shuffle func([]domain.Tile) []domain.Tile
}

type round struct {
	mu sync.Mutex

	id      string
	players []domain.Player
	teams   []string

	owner map[domain.Tile]string // "" while in the pile
	loc   map[domain.Tile]domain.Location
	pile  []domain.Tile

	layout domain.Layout
	status domain.RoundStatus
}

// NewTable builds an empty table. A nil rule means Standard scoring and a nil
// rng is seeded from the clock.
func NewTable(rule scoring.Rule, rng *rand.Rand) *Table {
	if rule == nil {
		rule = scoring.Standard{}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Table{
		rounds: make(map[string]*round),
		rule:   rule,
		rng:    rng,
	}
}

func (t *Table) Deal(ctx context.Context, roundID string, players []domain.Player, catalog []domain.Tile) (domain.Deal, error) {
	if err := ctx.Err(); err != nil {
		return domain.Deal{}, err
	}
	if len(players) < domain.MinPlayers || len(players) > domain.MaxPlayers {
		return domain.Deal{}, fmt.Errorf("%w: %d players", domain.ErrProtocolViolation, len(players))
	}
	if len(catalog) < len(players)*domain.HandSize {
		return domain.Deal{}, fmt.Errorf("%w: catalog of %d tiles cannot deal %d hands", domain.ErrProtocolViolation, len(catalog), len(players))
	}

	r := &round{
		id:      roundID,
		players: append([]domain.Player(nil), players...),
		teams:   domain.TeamsInSeatOrder(players),
		owner:   make(map[domain.Tile]string, len(catalog)),
		loc:     make(map[domain.Tile]domain.Location, len(catalog)),
		status:  domain.RoundStatus{RoundID: roundID, Phase: domain.RoundOpen},
	}
	for _, tile := range catalog {
		if _, dup := r.loc[tile]; dup {
			return domain.Deal{}, fmt.Errorf("%w: duplicate tile %s in catalog", domain.ErrProtocolViolation, tile)
		}
		r.loc[tile] = domain.InDrawPile
	}

	shuffled := t.shuffle(catalog)
	deal := domain.Deal{Hands: make(map[string][]domain.Tile, len(players))}
	for i, p := range players {
		if _, dup := deal.Hands[p.ID]; dup {
			return domain.Deal{}, fmt.Errorf("%w: player %s seated twice", domain.ErrProtocolViolation, p.ID)
		}
		hand := append([]domain.Tile(nil), shuffled[i*domain.HandSize:(i+1)*domain.HandSize]...)
		domain.SortTiles(hand)
		for _, tile := range hand {
			r.owner[tile] = p.ID
			r.loc[tile] = domain.InHand
		}
		deal.Hands[p.ID] = hand
	}
	r.pile = append([]domain.Tile(nil), shuffled[len(players)*domain.HandSize:]...)
	deal.DrawPile = len(r.pile)

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.rounds[roundID]; exists {
		return domain.Deal{}, fmt.Errorf("%w: round %s already dealt", domain.ErrProtocolViolation, roundID)
	}
	t.rounds[roundID] = r
	return deal, nil
}

func (t *Table) shuffle(catalog []domain.Tile) []domain.Tile {
	if t.Shuffle != nil {
		return t.Shuffle(append([]domain.Tile(nil), catalog...))
	}
	t.rngMu.Lock()
	defer t.rngMu.Unlock()
	return domain.ShuffleTiles(catalog, t.rng)
}

func (t *Table) lookup(roundID string) (*round, error) {
	t.mu.RLock()
	r, ok := t.rounds[roundID]
	t.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown round %s", domain.ErrProtocolViolation, roundID)
	}
	return r, nil
}

func (t *Table) Hand(ctx context.Context, roundID, playerID string) ([]domain.HandTile, error) {
	r, err := t.lookup(roundID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if domain.SeatOf(r.players, playerID) < 0 {
		return nil, fmt.Errorf("%w: player %s not in round %s", domain.ErrProtocolViolation, playerID, roundID)
	}
	var hand []domain.HandTile
	for tile, owner := range r.owner {
		if owner == playerID {
			hand = append(hand, domain.HandTile{Tile: tile, Location: r.loc[tile]})
		}
	}
	sort.Slice(hand, func(i, j int) bool { return hand[i].Tile.Less(hand[j].Tile) })
	return hand, nil
}

func (t *Table) Holder(ctx context.Context, roundID string, tile domain.Tile) (string, domain.Location, error) {
	r, err := t.lookup(roundID)
	if err != nil {
		return "", "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	loc, ok := r.loc[tile]
	if !ok {
		return "", "", fmt.Errorf("%w: tile %s not in round %s", domain.ErrProtocolViolation, tile, roundID)
	}
	return r.owner[tile], loc, nil
}

func (t *Table) Draw(ctx context.Context, roundID, playerID string) (domain.Tile, error) {
	r, err := t.lookup(roundID)
	if err != nil {
		return domain.Tile{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status.Phase.Terminal() {
		return domain.Tile{}, fmt.Errorf("%w: round %s is %s", domain.ErrProtocolViolation, roundID, r.status.Phase)
	}
	if domain.SeatOf(r.players, playerID) < 0 {
		return domain.Tile{}, fmt.Errorf("%w: player %s not in round %s", domain.ErrProtocolViolation, playerID, roundID)
	}
	if len(r.pile) == 0 {
		return domain.Tile{}, fmt.Errorf("%w: draw pile of round %s is empty", domain.ErrProtocolViolation, roundID)
	}
	tile := r.pile[0]
	r.pile = r.pile[1:]
	r.owner[tile] = playerID
	r.loc[tile] = domain.InHand
	return tile, nil
}

func (t *Table) DrawPileSize(ctx context.Context, roundID string) (int, error) {
	r, err := t.lookup(roundID)
	if err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pile), nil
}

func (t *Table) AttemptMove(ctx context.Context, roundID, playerID string, tile domain.Tile) error {
	r, err := t.lookup(roundID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status.Phase.Terminal() {
		return fmt.Errorf("%w: round %s is %s", domain.ErrProtocolViolation, roundID, r.status.Phase)
	}
	seat := domain.SeatOf(r.players, playerID)
	if seat < 0 {
		return fmt.Errorf("%w: player %s not in round %s", domain.ErrProtocolViolation, playerID, roundID)
	}
	if r.owner[tile] != playerID || r.loc[tile] != domain.InHand {
		return fmt.Errorf("%w: %s is not in the hand of %s", domain.ErrIllegalMove, tile, playerID)
	}
	layout, err := domain.Attach(r.layout, tile)
	if err != nil {
		return err
	}

	// The tile leaves the hand before scoring so the pips exclude it. A
	// failed score puts it back and leaves the layout untouched.
	r.loc[tile] = domain.Placed
	if len(r.inHand(playerID)) == 0 {
		winner := r.players[seat]
		if err := r.close(t.rule, domain.RoundCompleted, winner.ID, winner.Team); err != nil {
			r.loc[tile] = domain.InHand
			return err
		}
	} else {
		r.status.Phase = domain.RoundActive
	}
	r.layout = layout
	return nil
}

func (t *Table) Layout(ctx context.Context, roundID string) (domain.Layout, error) {
	r, err := t.lookup(roundID)
	if err != nil {
		return domain.Layout{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.layout, nil
}

// IsBlocked is true once nothing is left to draw and no hand holds a tile
// that fits either end.
func (t *Table) IsBlocked(ctx context.Context, roundID string) (bool, error) {
	r, err := t.lookup(roundID)
	if err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.status.Phase {
	case domain.RoundBlocked:
		return true, nil
	case domain.RoundCompleted:
		return false, nil
	}
	if len(r.pile) > 0 {
		return false, nil
	}
	for tile, loc := range r.loc {
		if loc == domain.InHand && domain.Playable(tile, r.layout) {
			return false, nil
		}
	}
	return true, nil
}

func (t *Table) RoundStatus(ctx context.Context, roundID string) (domain.RoundStatus, error) {
	r, err := t.lookup(roundID)
	if err != nil {
		return domain.RoundStatus{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	status := r.status.Clone()
	if status.TeamPips == nil {
		status.TeamPips = r.teamPips()
	}
	return status, nil
}

func (t *Table) ForceBlock(ctx context.Context, roundID string) (domain.RoundStatus, error) {
	r, err := t.lookup(roundID)
	if err != nil {
		return domain.RoundStatus{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.status.Phase.Terminal() {
		if err := r.close(t.rule, domain.RoundBlocked, "", ""); err != nil {
			return domain.RoundStatus{}, err
		}
	}
	return r.status.Clone(), nil
}

// Census counts tiles per location. Every catalog tile is counted exactly once.
func (t *Table) Census(roundID string) (map[domain.Location]int, error) {
	r, err := t.lookup(roundID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[domain.Location]int, 3)
	for _, loc := range r.loc {
		out[loc]++
	}
	return out, nil
}

// Forget drops a finished round.
func (t *Table) Forget(roundID string) {
	t.mu.Lock()
	delete(t.rounds, roundID)
	t.mu.Unlock()
}

// close scores the round and moves it to a terminal phase. Callers hold r.mu.
func (r *round) close(rule scoring.Rule, phase domain.RoundPhase, winnerPlayer, winnerTeam string) error {
	pips := r.teamPips()
	deltas, err := rule.Score(scoring.Input{
		Outcome:    phase,
		WinnerTeam: winnerTeam,
		TeamPips:   pips,
		Teams:      r.teams,
	})
	if err != nil {
		return fmt.Errorf("score round %s: %w", r.id, err)
	}
	r.status = domain.RoundStatus{
		RoundID:      r.id,
		Phase:        phase,
		WinnerPlayer: winnerPlayer,
		WinnerTeam:   winnerTeam,
		Deltas:       deltas,
		TeamPips:     pips,
	}
	return nil
}

func (r *round) inHand(playerID string) []domain.Tile {
	var out []domain.Tile
	for tile, owner := range r.owner {
		if owner == playerID && r.loc[tile] == domain.InHand {
			out = append(out, tile)
		}
	}
	return out
}

func (r *round) teamPips() map[string]int {
	hands := make(map[string][]domain.Tile, len(r.players))
	for _, p := range r.players {
		hands[p.ID] = r.inHand(p.ID)
	}
	return domain.TeamPips(r.players, hands)
}
