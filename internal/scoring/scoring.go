package scoring

import (
	"errors"
	"fmt"
	"strings"

	"domino/internal/domain"
)

// BlockedTie decides who scores a blocked round when several teams share the
// lowest pip count.
type BlockedTie string

const (
	TieNone       BlockedTie = "none"
	TieSplit      BlockedTie = "split"
	TieLowestSeat BlockedTie = "lowest-seat"
)

var ErrUnknownTiePolicy = errors.New("unknown blocked tie policy")

// ParseBlockedTie validates a policy name. An empty name means TieNone.
func ParseBlockedTie(s string) (BlockedTie, error) {
	switch BlockedTie(strings.ToLower(strings.TrimSpace(s))) {
	case "", TieNone:
		return TieNone, nil
	case TieSplit:
		return TieSplit, nil
	case TieLowestSeat:
		return TieLowestSeat, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTiePolicy, s)
}

// Input is everything a rule needs to score a terminal round.
type Input struct {
	Outcome    domain.RoundPhase
	WinnerTeam string         // set for completed rounds
	TeamPips   map[string]int // unplaced pips per team
	Teams      []string       // seat order
}

// Rule turns a terminal round into per-team score deltas. Every team in
// Input.Teams appears in the result.
type Rule interface {
	Score(in Input) (map[string]int, error)
}

// Standard is the pip-sum rule: the team that goes out collects the pips left
// in the other hands; a blocked round pays the lowest team the difference to
// each other team.
type Standard struct {
	BlockedTie BlockedTie
}

func (s Standard) Score(in Input) (map[string]int, error) {
	deltas := make(map[string]int, len(in.Teams))
	for _, team := range in.Teams {
		deltas[team] = 0
	}

	switch in.Outcome {
	case domain.RoundCompleted:
		if _, ok := deltas[in.WinnerTeam]; !ok {
			return nil, fmt.Errorf("%w: winner team %q not seated", domain.ErrProtocolViolation, in.WinnerTeam)
		}
		for _, team := range in.Teams {
			if team != in.WinnerTeam {
				deltas[in.WinnerTeam] += in.TeamPips[team]
			}
		}
	case domain.RoundBlocked:
		s.scoreBlocked(in, deltas)
	default:
		return nil, fmt.Errorf("%w: cannot score a %s round", domain.ErrProtocolViolation, in.Outcome)
	}
	return deltas, nil
}

func (s Standard) scoreBlocked(in Input, deltas map[string]int) {
	if len(in.Teams) == 0 {
		return
	}
	lowest := in.TeamPips[in.Teams[0]]
	for _, team := range in.Teams[1:] {
		if p := in.TeamPips[team]; p < lowest {
			lowest = p
		}
	}

	var tied []string
	pot := 0
	for _, team := range in.Teams {
		if p := in.TeamPips[team]; p == lowest {
			tied = append(tied, team)
		} else {
			pot += p - lowest
		}
	}

	if len(tied) == 1 {
		deltas[tied[0]] = pot
		return
	}
	switch s.BlockedTie {
	case TieSplit:
		// Each tied team gets an equal whole share; the remainder is not awarded.
		share := pot / len(tied)
		for _, team := range tied {
			deltas[team] = share
		}
	case TieLowestSeat:
		deltas[tied[0]] = pot
	}
}

// New picks the rule for a table: a Lua script when scriptPath is set,
// otherwise Standard with the named tie policy.
func New(blockedTie, scriptPath string) (Rule, error) {
	if scriptPath != "" {
		script, err := LoadScript(scriptPath)
		if err != nil {
			return nil, err
		}
		return script, nil
	}
	tie, err := ParseBlockedTie(blockedTie)
	if err != nil {
		return nil, err
	}
	return Standard{BlockedTie: tie}, nil
}
