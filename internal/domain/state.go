package domain

// RoundPhase represents the lifecycle stage of a round.
type RoundPhase string

const (
	// RoundOpen is a freshly dealt round with no decided turn yet.
	RoundOpen RoundPhase = "open"
	// RoundActive is a round in progress.
	RoundActive RoundPhase = "active"
	// RoundBlocked is terminal: nobody can move and nothing is left to draw.
	RoundBlocked RoundPhase = "blocked"
	// RoundCompleted is terminal: a player emptied their hand.
	RoundCompleted RoundPhase = "completed"
)

// Terminal reports whether no further turns can be taken.
func (p RoundPhase) Terminal() bool {
	return p == RoundBlocked || p == RoundCompleted
}

// MatchPhase represents the lifecycle stage of a match.
type MatchPhase string

const (
	// MatchOpen means players are registered and rounds keep being dealt.
	MatchOpen MatchPhase = "open"
	// MatchFinished means a team reached the target score.
	MatchFinished MatchPhase = "finished"
)

// Location tags where a tile sits within a round.
type Location string

const (
	InHand     Location = "hand"
	InDrawPile Location = "draw_pile"
	Placed     Location = "placed"
)

// Player is a participant with a fixed team for the whole match.
type Player struct {
	ID   string `json:"id" bson:"id"`
	Name string `json:"name" bson:"name"`
	Team string `json:"team" bson:"team"`
	Seat int    `json:"seat" bson:"seat"` // 0-based registration order
}

// HandTile is a tile owned by a player together with its current location.
type HandTile struct {
	Tile     Tile
	Location Location
}

// Layout holds the two open ends of the placed chain. Set is false until the
// first tile of the round is placed.
type Layout struct {
	Set   bool `json:"set"`
	Left  int  `json:"left"`
	Right int  `json:"right"`
}

// Deal describes the result of dealing a round.
type Deal struct {
	Hands    map[string][]Tile // player id -> tiles, ascending
	DrawPile int               // tiles left undealt
}

// RoundStatus is the authoritative status of a round as reported by the
// collaborator that executes moves.
type RoundStatus struct {
	RoundID      string         `json:"round_id"`
	Phase        RoundPhase     `json:"phase"`
	WinnerPlayer string         `json:"winner_player,omitempty"`
	WinnerTeam   string         `json:"winner_team,omitempty"`
	Deltas       map[string]int `json:"deltas,omitempty"`    // team -> points earned this round
	TeamPips     map[string]int `json:"team_pips,omitempty"` // team -> unplaced pips at the end
}

// Clone returns a copy that shares no maps with the receiver.
func (s RoundStatus) Clone() RoundStatus {
	out := s
	out.Deltas = copyCounts(s.Deltas)
	out.TeamPips = copyCounts(s.TeamPips)
	return out
}

func copyCounts(m map[string]int) map[string]int {
	if m == nil {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
