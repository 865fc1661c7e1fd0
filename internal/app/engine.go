package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"domino/internal/bot"
	"domino/internal/domain"
	"domino/internal/ports"
)

// Engine drives rounds turn by turn. It owns no tiles: dealing, legality and
// scoring belong to the table it is given.
type Engine struct {
	table  ports.Table
	brain  bot.Brain
	logger *log.Logger
}

// NewEngine builds an engine. A nil brain plays the first legal tile.
func NewEngine(table ports.Table, brain bot.Brain, logger *log.Logger) *Engine {
	if brain == nil {
		brain = bot.FirstLegal{}
	}
	return &Engine{table: table, brain: brain, logger: logger}
}

// RoundSetup describes a round to deal.
type RoundSetup struct {
	MatchID string
	RoundID string
	Number  int
	Players []domain.Player // seat order
	Catalog []domain.Tile
	// Opening makes the starting double a mandatory first move. Only the
	// first round of a match sets it.
	Opening bool
}

// RoundState is the engine's view of one round.
type RoundState struct {
	MatchID string
	RoundID string
	Number  int

	Players   []domain.Player // seat order
	TurnOrder []domain.Player // rotated so the starting player is first
	TurnIndex int

	ConsecutivePasses int
	Phase             domain.RoundPhase
	Mandatory         *domain.Tile
	DrawPile          bool // the deal left tiles to draw
	Forced            bool // blocked by the consecutive-pass limit
	StartPlayer       string
	Turns             int // decided turns so far

	Status  domain.RoundStatus // ledger status once terminal
	History []Event

	turnCap int
}

// Current is the player whose turn it is.
func (rs *RoundState) Current() domain.Player {
	return rs.TurnOrder[rs.TurnIndex%len(rs.TurnOrder)]
}

func (rs *RoundState) record(events []Event) []Event {
	rs.History = append(rs.History, events...)
	return events
}

// StartRound deals the round and picks who opens: the holder of the highest
// double, or the first seat when nobody holds one.
func (e *Engine) StartRound(ctx context.Context, setup RoundSetup) (*RoundState, []Event, error) {
	if len(setup.Players) < domain.MinPlayers || len(setup.Players) > domain.MaxPlayers {
		return nil, nil, fmt.Errorf("%w: %d", ErrPlayerCount, len(setup.Players))
	}
	deal, err := e.table.Deal(ctx, setup.RoundID, setup.Players, setup.Catalog)
	if err != nil {
		return nil, nil, fmt.Errorf("deal round %s: %w", setup.RoundID, err)
	}

	rs := &RoundState{
		MatchID:  setup.MatchID,
		RoundID:  setup.RoundID,
		Number:   setup.Number,
		Players:  setup.Players,
		Phase:    domain.RoundOpen,
		DrawPile: deal.DrawPile > 0,
		turnCap:  (len(setup.Catalog) + 1) * len(setup.Players),
	}

	start, double, err := e.findStart(ctx, setup)
	if err != nil {
		return nil, nil, err
	}
	rs.StartPlayer = start
	if double != nil && setup.Opening {
		rs.Mandatory = double
	}
	rs.TurnOrder = domain.RotateFrom(setup.Players, start)

	order := make([]string, len(rs.TurnOrder))
	for i, p := range rs.TurnOrder {
		order[i] = p.ID
	}
	events := make([]Event, 0, len(setup.Players)+1)
	events = append(events, Event{
		Kind: EventRoundStarted,
		Payload: RoundStartedPayload{
			MatchID:       setup.MatchID,
			RoundID:       setup.RoundID,
			Number:        setup.Number,
			StartPlayerID: start,
			Mandatory:     rs.Mandatory,
			DrawPile:      deal.DrawPile,
			TurnOrder:     order,
		},
	})
	for _, p := range setup.Players {
		events = append(events, Event{
			Kind:       EventHandDealt,
			Payload:    HandDealtPayload{PlayerID: p.ID, Hand: deal.Hands[p.ID]},
			Recipients: []string{p.ID},
		})
	}

	e.logger.Debug("round dealt", "round", setup.RoundID, "number", setup.Number, "start", start, "pile", deal.DrawPile)
	return rs, rs.record(events), nil
}

func (e *Engine) findStart(ctx context.Context, setup RoundSetup) (string, *domain.Tile, error) {
	maxPip := 0
	for _, t := range setup.Catalog {
		if t.B > maxPip {
			maxPip = t.B
		}
	}
	for _, double := range domain.DoublesDescending(maxPip) {
		if !domain.ContainsTile(setup.Catalog, double) {
			continue
		}
		owner, loc, err := e.table.Holder(ctx, setup.RoundID, double)
		if err != nil {
			return "", nil, fmt.Errorf("locate %s: %w", double, err)
		}
		if loc != domain.InHand {
			continue
		}
		if domain.SeatOf(setup.Players, owner) < 0 {
			return "", nil, fmt.Errorf("%w: %s held by unseated %q", domain.ErrProtocolViolation, double, owner)
		}
		tile := double
		return owner, &tile, nil
	}
	return setup.Players[0].ID, nil, nil
}

// AutoTurn plays the current player's turn: the mandatory double when due,
// else the first candidate the table accepts, drawing while that is possible
// and passing when nothing else is.
func (e *Engine) AutoTurn(ctx context.Context, rs *RoundState) ([]Event, error) {
	if rs.Phase.Terminal() {
		return nil, ErrRoundOver
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	player := rs.Current()
	var events []Event

	for {
		hand, layout, err := e.view(ctx, rs, player.ID)
		if err != nil {
			return rs.record(events), err
		}

		if rs.Mandatory != nil && domain.ContainsTile(hand, *rs.Mandatory) {
			tile := *rs.Mandatory
			if err := e.table.AttemptMove(ctx, rs.RoundID, player.ID, tile); err != nil {
				return rs.record(events), fmt.Errorf("%w: mandatory opening %s rejected: %v", domain.ErrProtocolViolation, tile, err)
			}
			played, err := e.played(ctx, rs, player.ID, tile)
			return rs.record(append(events, played...)), err
		}

		for _, tile := range e.brain.Candidates(hand, layout) {
			err := e.table.AttemptMove(ctx, rs.RoundID, player.ID, tile)
			if errors.Is(err, domain.ErrIllegalMove) {
				e.logger.Debug("candidate rejected", "round", rs.RoundID, "player", player.ID, "tile", tile, "err", err)
				continue
			}
			if err != nil {
				return rs.record(events), fmt.Errorf("play %s: %w", tile, err)
			}
			played, err := e.played(ctx, rs, player.ID, tile)
			return rs.record(append(events, played...)), err
		}

		if rs.DrawPile {
			left, err := e.table.DrawPileSize(ctx, rs.RoundID)
			if err != nil {
				return rs.record(events), err
			}
			if left > 0 {
				drawn, err := e.draw(ctx, rs, player.ID)
				if err != nil {
					return rs.record(events), err
				}
				events = append(events, drawn)
				continue
			}
		}

		passed, err := e.passed(ctx, rs, player.ID)
		return rs.record(append(events, passed...)), err
	}
}

// Play attempts a tile chosen by a human. A rejected tile leaves the round
// untouched and the same player to move.
func (e *Engine) Play(ctx context.Context, rs *RoundState, playerID string, tile domain.Tile) ([]Event, error) {
	if err := e.checkTurn(rs, playerID); err != nil {
		return nil, err
	}
	mandatory := false
	if rs.Mandatory != nil {
		owner, loc, err := e.table.Holder(ctx, rs.RoundID, *rs.Mandatory)
		if err != nil {
			return nil, err
		}
		if owner == playerID && loc == domain.InHand {
			if tile != *rs.Mandatory {
				return nil, fmt.Errorf("%w: play %s", ErrMandatoryOpening, *rs.Mandatory)
			}
			mandatory = true
		}
	}

	if err := e.table.AttemptMove(ctx, rs.RoundID, playerID, tile); err != nil {
		if mandatory {
			return nil, fmt.Errorf("%w: mandatory opening %s rejected: %v", domain.ErrProtocolViolation, tile, err)
		}
		return nil, fmt.Errorf("play %s: %w", tile, err)
	}
	played, err := e.played(ctx, rs, playerID, tile)
	return rs.record(played), err
}

// Draw takes one tile from the pile for a player with nothing to play.
// Drawing does not end the turn.
func (e *Engine) Draw(ctx context.Context, rs *RoundState, playerID string) (domain.Tile, []Event, error) {
	if err := e.checkTurn(rs, playerID); err != nil {
		return domain.Tile{}, nil, err
	}
	if !rs.DrawPile {
		return domain.Tile{}, nil, ErrNoDrawPile
	}
	left, err := e.table.DrawPileSize(ctx, rs.RoundID)
	if err != nil {
		return domain.Tile{}, nil, err
	}
	if left == 0 {
		return domain.Tile{}, nil, ErrDrawPileEmpty
	}
	hand, layout, err := e.view(ctx, rs, playerID)
	if err != nil {
		return domain.Tile{}, nil, err
	}
	if len(domain.PlayableTiles(hand, layout)) > 0 {
		return domain.Tile{}, nil, ErrDrawNotAllowed
	}

	drawn, err := e.draw(ctx, rs, playerID)
	if err != nil {
		return domain.Tile{}, nil, err
	}
	return drawn.Payload.(TileDrawnPayload).Tile, rs.record([]Event{drawn}), nil
}

// Pass ends the turn of a player who can neither play nor draw.
func (e *Engine) Pass(ctx context.Context, rs *RoundState, playerID string) ([]Event, error) {
	if err := e.checkTurn(rs, playerID); err != nil {
		return nil, err
	}
	hand, layout, err := e.view(ctx, rs, playerID)
	if err != nil {
		return nil, err
	}
	if rs.Mandatory != nil && domain.ContainsTile(hand, *rs.Mandatory) {
		return nil, fmt.Errorf("%w: play %s", ErrMandatoryOpening, *rs.Mandatory)
	}
	if len(domain.PlayableTiles(hand, layout)) > 0 {
		return nil, ErrPassNotAllowed
	}
	if rs.DrawPile {
		left, err := e.table.DrawPileSize(ctx, rs.RoundID)
		if err != nil {
			return nil, err
		}
		if left > 0 {
			return nil, ErrPassNotAllowed
		}
	}
	passed, err := e.passed(ctx, rs, playerID)
	return rs.record(passed), err
}

// Run auto-plays the round to a terminal phase.
func (e *Engine) Run(ctx context.Context, rs *RoundState) ([]Event, error) {
	var events []Event
	for !rs.Phase.Terminal() {
		if rs.turnCap > 0 && rs.Turns >= rs.turnCap {
			return events, fmt.Errorf("%w: round %s still open after %d turns", domain.ErrProtocolViolation, rs.RoundID, rs.Turns)
		}
		evs, err := e.AutoTurn(ctx, rs)
		events = append(events, evs...)
		if err != nil {
			return events, err
		}
	}
	return events, nil
}

// Hand returns the player's unplaced tiles, ascending.
func (e *Engine) Hand(ctx context.Context, rs *RoundState, playerID string) ([]domain.Tile, error) {
	held, err := e.table.Hand(ctx, rs.RoundID, playerID)
	if err != nil {
		return nil, err
	}
	hand := domain.UnplacedTiles(held)
	domain.SortTiles(hand)
	return hand, nil
}

// Layout returns the open ends of the round.
func (e *Engine) Layout(ctx context.Context, rs *RoundState) (domain.Layout, error) {
	return e.table.Layout(ctx, rs.RoundID)
}

// DrawPileSize reports how many tiles are left to draw.
func (e *Engine) DrawPileSize(ctx context.Context, rs *RoundState) (int, error) {
	return e.table.DrawPileSize(ctx, rs.RoundID)
}

func (e *Engine) checkTurn(rs *RoundState, playerID string) error {
	if rs.Phase.Terminal() {
		return ErrRoundOver
	}
	if rs.Current().ID != playerID {
		return ErrNotYourTurn
	}
	return nil
}

func (e *Engine) view(ctx context.Context, rs *RoundState, playerID string) ([]domain.Tile, domain.Layout, error) {
	layout, err := e.table.Layout(ctx, rs.RoundID)
	if err != nil {
		return nil, domain.Layout{}, err
	}
	hand, err := e.Hand(ctx, rs, playerID)
	if err != nil {
		return nil, domain.Layout{}, err
	}
	return hand, layout, nil
}

func (e *Engine) draw(ctx context.Context, rs *RoundState, playerID string) (Event, error) {
	tile, err := e.table.Draw(ctx, rs.RoundID, playerID)
	if err != nil {
		return Event{}, fmt.Errorf("draw: %w", err)
	}
	left, err := e.table.DrawPileSize(ctx, rs.RoundID)
	if err != nil {
		return Event{}, err
	}
	e.logger.Debug("tile drawn", "round", rs.RoundID, "player", playerID, "left", left)
	return Event{
		Kind:       EventTileDrawn,
		Payload:    TileDrawnPayload{PlayerID: playerID, Tile: tile, PileLeft: left},
		Recipients: []string{playerID},
	}, nil
}

func (e *Engine) played(ctx context.Context, rs *RoundState, playerID string, tile domain.Tile) ([]Event, error) {
	rs.ConsecutivePasses = 0
	rs.Mandatory = nil

	layout, err := e.table.Layout(ctx, rs.RoundID)
	if err != nil {
		return nil, err
	}
	ended, err := e.finishTurn(ctx, rs)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("tile played", "round", rs.RoundID, "player", playerID, "tile", tile)

	payload := TilePlayedPayload{PlayerID: playerID, Tile: tile, Layout: layout}
	if !rs.Phase.Terminal() {
		payload.NextPlayerID = rs.Current().ID
	}
	return append([]Event{{Kind: EventTilePlayed, Payload: payload}}, ended...), nil
}

func (e *Engine) passed(ctx context.Context, rs *RoundState, playerID string) ([]Event, error) {
	rs.ConsecutivePasses++
	passes := rs.ConsecutivePasses

	ended, err := e.finishTurn(ctx, rs)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("turn passed", "round", rs.RoundID, "player", playerID, "passes", passes)

	payload := TurnPassedPayload{PlayerID: playerID, ConsecutivePasses: passes}
	if !rs.Phase.Terminal() {
		payload.NextPlayerID = rs.Current().ID
	}
	return append([]Event{{Kind: EventTurnPassed, Payload: payload}}, ended...), nil
}

// finishTurn runs the termination checks after a decided turn and advances
// the rotation when the round goes on.
func (e *Engine) finishTurn(ctx context.Context, rs *RoundState) ([]Event, error) {
	rs.Turns++
	if rs.Phase == domain.RoundOpen {
		rs.Phase = domain.RoundActive
	}

	if rs.ConsecutivePasses >= len(rs.TurnOrder) {
		status, err := e.table.ForceBlock(ctx, rs.RoundID)
		if err != nil {
			return nil, fmt.Errorf("force block: %w", err)
		}
		rs.Forced = true
		return e.end(rs, status)
	}

	status, err := e.table.RoundStatus(ctx, rs.RoundID)
	if err != nil {
		return nil, err
	}
	if status.Phase == domain.RoundCompleted {
		return e.end(rs, status)
	}

	blocked, err := e.table.IsBlocked(ctx, rs.RoundID)
	if err != nil {
		return nil, err
	}
	if blocked {
		status, err := e.table.ForceBlock(ctx, rs.RoundID)
		if err != nil {
			return nil, fmt.Errorf("close blocked round: %w", err)
		}
		return e.end(rs, status)
	}

	rs.TurnIndex = (rs.TurnIndex + 1) % len(rs.TurnOrder)
	return nil, nil
}

func (e *Engine) end(rs *RoundState, status domain.RoundStatus) ([]Event, error) {
	if !status.Phase.Terminal() {
		return nil, fmt.Errorf("%w: ledger left round %s %s", domain.ErrProtocolViolation, rs.RoundID, status.Phase)
	}
	rs.Phase = status.Phase
	rs.Status = status

	e.logger.Info("round over", "round", rs.RoundID, "phase", status.Phase, "forced", rs.Forced, "winner", status.WinnerTeam, "deltas", status.Deltas)
	return []Event{{
		Kind: EventRoundEnded,
		Payload: RoundEndedPayload{
			RoundID:      rs.RoundID,
			Phase:        status.Phase,
			Forced:       rs.Forced,
			WinnerPlayer: status.WinnerPlayer,
			WinnerTeam:   status.WinnerTeam,
			Deltas:       status.Deltas,
			TeamPips:     status.TeamPips,
		},
	}}, nil
}
