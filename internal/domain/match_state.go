package domain

import "time"

// DefaultTargetScore is the accumulated score that ends a match.
const DefaultTargetScore = 50

// RoundSummary records how a finished round rolled up into the match.
type RoundSummary struct {
	Number       int            `json:"number" bson:"number"`
	RoundID      string         `json:"round_id" bson:"round_id"`
	StartPlayer  string         `json:"start_player" bson:"start_player"`
	Mandatory    *Tile          `json:"mandatory,omitempty" bson:"mandatory,omitempty"`
	Phase        RoundPhase     `json:"phase" bson:"phase"`
	Forced       bool           `json:"forced" bson:"forced"` // blocked by the consecutive-pass limit
	WinnerPlayer string         `json:"winner_player,omitempty" bson:"winner_player,omitempty"`
	WinnerTeam   string         `json:"winner_team,omitempty" bson:"winner_team,omitempty"`
	Deltas       map[string]int `json:"deltas" bson:"deltas"`
	TeamPips     map[string]int `json:"team_pips" bson:"team_pips"`
	Turns        int            `json:"turns" bson:"turns"`
}

// Match is a sequence of rounds played by a fixed set of players and teams.
type Match struct {
	ID          string
	Players     []Player
	Teams       []string       // team names in first-seat order
	Scores      map[string]int // team -> accumulated score
	TargetScore int
	Phase       MatchPhase
	Winner      string
	Rounds      []RoundSummary
	CreatedAt   time.Time
	FinishedAt  time.Time
}

// MatchResult is the read model of a match exposed to status queries.
type MatchResult struct {
	MatchID string         `json:"match_id" bson:"_id"`
	Phase   MatchPhase     `json:"phase" bson:"phase"`
	Winner  string         `json:"winner,omitempty" bson:"winner,omitempty"`
	Scores  map[string]int `json:"scores" bson:"scores"`
	Rounds  int            `json:"rounds" bson:"rounds"`
}

// Result projects the match onto its read model.
func (m *Match) Result() MatchResult {
	return MatchResult{
		MatchID: m.ID,
		Phase:   m.Phase,
		Winner:  m.Winner,
		Scores:  copyCounts(m.Scores),
		Rounds:  len(m.Rounds),
	}
}

// TeamMembers returns the players of a team in seat order.
func (m *Match) TeamMembers(team string) []Player {
	var out []Player
	for _, p := range m.Players {
		if p.Team == team {
			out = append(out, p)
		}
	}
	return out
}

// RoundRecord is the archived event stream of one round.
type RoundRecord struct {
	ID          string        `bson:"_id"`
	MatchID     string        `bson:"match_id"`
	RoundNumber int           `bson:"round_number"`
	Events      []RoundEvent  `bson:"events"`
	Summary     *RoundSummary `bson:"summary"`
	StartTime   time.Time     `bson:"start_time"`
	EndTime     time.Time     `bson:"end_time"`
}

// RoundEvent is a single archived event. Seat is -1 for system events.
type RoundEvent struct {
	Sequence  int            `bson:"sequence"`
	Kind      string         `bson:"kind"`
	Seat      int            `bson:"seat"`
	Timestamp time.Time      `bson:"timestamp"`
	Data      map[string]any `bson:"data"`
}

// NewRoundRecord starts an empty record for a round.
func NewRoundRecord(matchID, roundID string, number int) *RoundRecord {
	return &RoundRecord{
		ID:          roundID,
		MatchID:     matchID,
		RoundNumber: number,
		Events:      make([]RoundEvent, 0, 64),
		StartTime:   time.Now(),
	}
}

// AddEvent appends an event with the next sequence number.
func (rr *RoundRecord) AddEvent(kind string, seat int, data map[string]any) {
	rr.Events = append(rr.Events, RoundEvent{
		Sequence:  len(rr.Events),
		Kind:      kind,
		Seat:      seat,
		Timestamp: time.Now(),
		Data:      data,
	})
}

// Complete stamps the end time and attaches the summary.
func (rr *RoundRecord) Complete(summary RoundSummary) {
	rr.EndTime = time.Now()
	rr.Summary = &summary
}
