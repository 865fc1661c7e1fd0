package bot

import (
	"fmt"
	"strings"

	"domino/internal/domain"
)

// idPrefix marks user ids that belong to server-side bots.
const idPrefix = "bot-"

// SeatID returns the bot user id for a seat.
func SeatID(seat int) string {
	return fmt.Sprintf("%s%d", idPrefix, seat+1)
}

// IsBot reports whether the user id belongs to a bot.
func IsBot(userID string) bool {
	return strings.HasPrefix(userID, idPrefix)
}

// Agent represents an autonomous bot player.
type Agent struct {
	ID       string
	Name     string
	Strategy Brain
}

// NewAgent builds a bot seat with a display name derived from its position.
func NewAgent(id string, seat int, level BotLevel) (*Agent, error) {
	brain, err := NewBrain(level)
	if err != nil {
		return nil, err
	}
	return &Agent{ID: id, Name: fmt.Sprintf("Bot %d", seat+1), Strategy: brain}, nil
}

// Player returns the agent as a table participant.
func (a *Agent) Player() domain.Player {
	return domain.Player{ID: a.ID, Name: a.Name}
}

// Choose returns the tile the agent would play first, if any.
func (a *Agent) Choose(hand []domain.Tile, layout domain.Layout) (domain.Tile, bool) {
	candidates := a.Strategy.Candidates(hand, layout)
	if len(candidates) == 0 {
		return domain.Tile{}, false
	}
	return candidates[0], true
}
