package app

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"domino/internal/domain"
	"domino/internal/ports"
)

// Controller rolls rounds up into a match: it deals rounds through the
// engine, adds the ledger's deltas to the team scores and decides victory.
type Controller struct {
	engine    *Engine
	logger    *log.Logger
	standings ports.StandingsStore
	archive   ports.Archive
	maxPip    int
	maxRounds int
	newID     func() string
}

type ControllerOption func(*Controller)

// WithStandings mirrors every committed delta to the store.
func WithStandings(s ports.StandingsStore) ControllerOption {
	return func(c *Controller) { c.standings = s }
}

// WithArchive saves every finished round and match.
func WithArchive(a ports.Archive) ControllerOption {
	return func(c *Controller) { c.archive = a }
}

// WithMaxRounds stops a match that has not finished after n rounds. Zero
// means no limit.
func WithMaxRounds(n int) ControllerOption {
	return func(c *Controller) { c.maxRounds = n }
}

// WithMaxPip selects the tile set, 6 for double-six.
func WithMaxPip(n int) ControllerOption {
	return func(c *Controller) { c.maxPip = n }
}

// WithIDs replaces the uuid generator for match and round ids.
func WithIDs(next func() string) ControllerOption {
	return func(c *Controller) { c.newID = next }
}

func NewController(engine *Engine, logger *log.Logger, opts ...ControllerOption) *Controller {
	c := &Controller{
		engine: engine,
		logger: logger,
		maxPip: domain.StandardMaxPip,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewMatch seats the players and assigns teams. A non-positive target uses
// domain.DefaultTargetScore.
func (c *Controller) NewMatch(ctx context.Context, players []domain.Player, target int) (*domain.Match, error) {
	if len(players) < domain.MinPlayers || len(players) > domain.MaxPlayers {
		return nil, fmt.Errorf("%w: %d", ErrPlayerCount, len(players))
	}
	seen := make(map[string]bool, len(players))
	for _, p := range players {
		if p.ID == "" || seen[p.ID] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicatePlayer, p.ID)
		}
		seen[p.ID] = true
	}
	if target <= 0 {
		target = domain.DefaultTargetScore
	}

	seated := domain.AssignTeams(players)
	teams := domain.TeamsInSeatOrder(seated)
	scores := make(map[string]int, len(teams))
	for _, team := range teams {
		scores[team] = 0
	}

	m := &domain.Match{
		ID:          c.newID(),
		Players:     seated,
		Teams:       teams,
		Scores:      scores,
		TargetScore: target,
		Phase:       domain.MatchOpen,
		CreatedAt:   time.Now(),
	}
	c.logger.Info("match created", "match", m.ID, "players", len(seated), "teams", teams, "target", target)
	return m, nil
}

// NextRound deals the next round of an open match.
func (c *Controller) NextRound(ctx context.Context, m *domain.Match) (*RoundState, []Event, error) {
	if m.Phase == domain.MatchFinished {
		return nil, nil, ErrMatchFinished
	}
	if c.maxRounds > 0 && len(m.Rounds) >= c.maxRounds {
		return nil, nil, fmt.Errorf("%w: %d rounds without a winner", ErrRoundLimit, len(m.Rounds))
	}
	number := len(m.Rounds) + 1
	return c.engine.StartRound(ctx, RoundSetup{
		MatchID: m.ID,
		RoundID: c.newID(),
		Number:  number,
		Players: m.Players,
		Catalog: domain.NewCatalog(c.maxPip),
		Opening: number == 1,
	})
}

// CompleteRound commits a terminal round into the match score and decides
// whether the match is over.
func (c *Controller) CompleteRound(ctx context.Context, m *domain.Match, rs *RoundState) ([]Event, error) {
	if m.Phase == domain.MatchFinished {
		return nil, ErrMatchFinished
	}
	if !rs.Phase.Terminal() {
		return nil, ErrRoundNotOver
	}
	for _, r := range m.Rounds {
		if r.RoundID == rs.RoundID {
			return nil, fmt.Errorf("%w: %s", ErrRoundCommitted, rs.RoundID)
		}
	}

	status, err := c.engine.table.RoundStatus(ctx, rs.RoundID)
	if err != nil {
		return nil, fmt.Errorf("read round %s: %w", rs.RoundID, err)
	}
	if !status.Phase.Terminal() {
		return nil, fmt.Errorf("%w: ledger reports round %s %s", domain.ErrProtocolViolation, rs.RoundID, status.Phase)
	}
	for team, delta := range status.Deltas {
		if _, ok := m.Scores[team]; !ok {
			return nil, fmt.Errorf("%w: delta for unknown team %q", domain.ErrProtocolViolation, team)
		}
		if delta < 0 {
			return nil, fmt.Errorf("%w: negative delta %d for team %s", domain.ErrProtocolViolation, delta, team)
		}
	}

	for _, team := range m.Teams {
		m.Scores[team] += status.Deltas[team]
	}
	summary := domain.RoundSummary{
		Number:       rs.Number,
		RoundID:      rs.RoundID,
		StartPlayer:  rs.StartPlayer,
		Phase:        status.Phase,
		Forced:       rs.Forced,
		WinnerPlayer: status.WinnerPlayer,
		WinnerTeam:   status.WinnerTeam,
		Deltas:       status.Deltas,
		TeamPips:     status.TeamPips,
		Turns:        rs.Turns,
	}
	if opening := openingTile(rs); opening != nil {
		summary.Mandatory = opening
	}
	m.Rounds = append(m.Rounds, summary)
	c.logger.Info("round committed", "match", m.ID, "round", rs.Number, "phase", status.Phase, "scores", m.Scores)

	if c.standings != nil {
		for _, team := range m.Teams {
			if status.Deltas[team] == 0 {
				continue
			}
			if _, err := c.standings.AddScore(ctx, m.ID, team, status.Deltas[team]); err != nil {
				return nil, fmt.Errorf("mirror standings: %w", err)
			}
		}
	}

	var events []Event
	if winner, ok := c.winner(m); ok {
		m.Phase = domain.MatchFinished
		m.Winner = winner
		m.FinishedAt = time.Now()
		events = append(events, Event{
			Kind: EventMatchEnded,
			Payload: MatchEndedPayload{
				MatchID: m.ID,
				Winner:  winner,
				Scores:  m.Result().Scores,
				Rounds:  len(m.Rounds),
			},
		})
		c.logger.Info("match finished", "match", m.ID, "winner", winner, "scores", m.Scores, "rounds", len(m.Rounds))
	}

	if c.archive != nil {
		record := domain.NewRoundRecord(m.ID, rs.RoundID, rs.Number)
		for _, ev := range append(rs.History, events...) {
			record.AddEvent(string(ev.Kind), domain.SeatOf(m.Players, EventPlayer(ev)), EventData(ev))
		}
		record.Complete(summary)
		if err := c.archive.SaveRound(ctx, record); err != nil {
			return events, fmt.Errorf("archive round: %w", err)
		}
		if m.Phase == domain.MatchFinished {
			if err := c.archive.SaveMatch(ctx, m); err != nil {
				return events, fmt.Errorf("archive match: %w", err)
			}
		}
	}
	return events, nil
}

// winner picks the team that crossed the target. When several cross in the
// same round the strictly highest score wins; an exact tie at the top plays on.
func (c *Controller) winner(m *domain.Match) (string, bool) {
	best, bestScore, tied := "", -1, false
	for _, team := range m.Teams {
		score := m.Scores[team]
		if score < m.TargetScore {
			continue
		}
		switch {
		case score > bestScore:
			best, bestScore, tied = team, score, false
		case score == bestScore:
			tied = true
		}
	}
	if best == "" {
		return "", false
	}
	if tied {
		c.logger.Warn("tie at the top, playing a tiebreak round", "match", m.ID, "score", bestScore)
		return "", false
	}
	return best, true
}

// Run plays rounds automatically until the match finishes. Every batch of
// events is handed to sink, which may be nil.
func (c *Controller) Run(ctx context.Context, m *domain.Match, sink func([]Event)) error {
	emit := func(events []Event) {
		if sink != nil && len(events) > 0 {
			sink(events)
		}
	}
	for m.Phase != domain.MatchFinished {
		if err := ctx.Err(); err != nil {
			return err
		}
		rs, events, err := c.NextRound(ctx, m)
		if err != nil {
			return err
		}
		emit(events)

		events, err = c.engine.Run(ctx, rs)
		emit(events)
		if err != nil {
			return fmt.Errorf("round %d: %w", rs.Number, err)
		}

		events, err = c.CompleteRound(ctx, m, rs)
		emit(events)
		if err != nil {
			return fmt.Errorf("round %d: %w", rs.Number, err)
		}
	}
	return nil
}

// MatchStatus reports the phase and winner of a match.
func (c *Controller) MatchStatus(m *domain.Match) domain.MatchResult {
	return m.Result()
}

func openingTile(rs *RoundState) *domain.Tile {
	for _, ev := range rs.History {
		if p, ok := ev.Payload.(RoundStartedPayload); ok {
			return p.Mandatory
		}
	}
	return nil
}
