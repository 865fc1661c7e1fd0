package app

import "domino/internal/domain"

// EventKind identifies emitted domain events for CLI rendering, Nakama
// dispatch and the round archive.
type EventKind string

const (
	EventRoundStarted EventKind = "round_started"
	EventHandDealt    EventKind = "hand_dealt"
	EventTilePlayed   EventKind = "tile_played"
	EventTileDrawn    EventKind = "tile_drawn"
	EventTurnPassed   EventKind = "turn_passed"
	EventRoundEnded   EventKind = "round_ended"
	EventMatchEnded   EventKind = "match_ended"
)

// Event is a domain/app event with optional targeted recipients.
type Event struct {
	Kind       EventKind
	Payload    any
	Recipients []string // player IDs; empty means broadcast
}

type RoundStartedPayload struct {
	MatchID       string       `json:"match_id"`
	RoundID       string       `json:"round_id"`
	Number        int          `json:"number"`
	StartPlayerID string       `json:"start_player_id"`
	Mandatory     *domain.Tile `json:"mandatory,omitempty"`
	DrawPile      int          `json:"draw_pile"`
	TurnOrder     []string     `json:"turn_order"`
}

type HandDealtPayload struct {
	PlayerID string        `json:"player_id"`
	Hand     []domain.Tile `json:"hand"`
}

type TilePlayedPayload struct {
	PlayerID     string        `json:"player_id"`
	Tile         domain.Tile   `json:"tile"`
	Layout       domain.Layout `json:"layout"`
	NextPlayerID string        `json:"next_player_id,omitempty"` // empty once the round is over
}

type TileDrawnPayload struct {
	PlayerID string      `json:"player_id"`
	Tile     domain.Tile `json:"tile"`
	PileLeft int         `json:"pile_left"`
}

type TurnPassedPayload struct {
	PlayerID          string `json:"player_id"`
	ConsecutivePasses int    `json:"consecutive_passes"`
	NextPlayerID      string `json:"next_player_id,omitempty"`
}

type RoundEndedPayload struct {
	RoundID      string            `json:"round_id"`
	Phase        domain.RoundPhase `json:"phase"`
	Forced       bool              `json:"forced"`
	WinnerPlayer string            `json:"winner_player,omitempty"`
	WinnerTeam   string            `json:"winner_team,omitempty"`
	Deltas       map[string]int    `json:"deltas"`
	TeamPips     map[string]int    `json:"team_pips"`
}

type MatchEndedPayload struct {
	MatchID string         `json:"match_id"`
	Winner  string         `json:"winner"`
	Scores  map[string]int `json:"scores"`
	Rounds  int            `json:"rounds"`
}

// EventData flattens a payload for the round archive.
func EventData(ev Event) map[string]any {
	switch p := ev.Payload.(type) {
	case RoundStartedPayload:
		data := map[string]any{"start_player_id": p.StartPlayerID, "draw_pile": p.DrawPile, "turn_order": p.TurnOrder}
		if p.Mandatory != nil {
			data["mandatory"] = p.Mandatory.String()
		}
		return data
	case HandDealtPayload:
		return map[string]any{"player_id": p.PlayerID, "hand": tileStrings(p.Hand)}
	case TilePlayedPayload:
		return map[string]any{"player_id": p.PlayerID, "tile": p.Tile.String(), "left": p.Layout.Left, "right": p.Layout.Right}
	case TileDrawnPayload:
		return map[string]any{"player_id": p.PlayerID, "tile": p.Tile.String(), "pile_left": p.PileLeft}
	case TurnPassedPayload:
		return map[string]any{"player_id": p.PlayerID, "consecutive_passes": p.ConsecutivePasses}
	case RoundEndedPayload:
		return map[string]any{"phase": string(p.Phase), "forced": p.Forced, "winner_team": p.WinnerTeam, "deltas": p.Deltas}
	case MatchEndedPayload:
		return map[string]any{"winner": p.Winner, "scores": p.Scores}
	}
	return nil
}

// EventPlayer returns the acting player of an event, if any.
func EventPlayer(ev Event) string {
	switch p := ev.Payload.(type) {
	case HandDealtPayload:
		return p.PlayerID
	case TilePlayedPayload:
		return p.PlayerID
	case TileDrawnPayload:
		return p.PlayerID
	case TurnPassedPayload:
		return p.PlayerID
	}
	return ""
}

func tileStrings(tiles []domain.Tile) []string {
	out := make([]string, len(tiles))
	for i, t := range tiles {
		out[i] = t.String()
	}
	return out
}
