package app

import (
	"errors"

	"domino/internal/domain"
)

// MinPlayersToStartGame defines the minimum number of occupied seats required to start a game.
const MinPlayersToStartGame = domain.MinPlayers

var (
	ErrNotYourTurn      = errors.New("not your turn")
	ErrMandatoryOpening = errors.New("opening must be the mandatory double")
	ErrNoDrawPile       = errors.New("this table has no draw pile")
	ErrDrawPileEmpty    = errors.New("draw pile is empty")
	ErrDrawNotAllowed   = errors.New("cannot draw while holding a playable tile")
	ErrPassNotAllowed   = errors.New("cannot pass while a move or draw is available")
	ErrRoundOver        = errors.New("round already over")
	ErrRoundNotOver     = errors.New("round not over")
	ErrRoundCommitted   = errors.New("round already committed")
	ErrMatchFinished    = errors.New("match already finished")
	ErrRoundLimit       = errors.New("round limit reached")
	ErrPlayerCount      = errors.New("unsupported number of players")
	ErrDuplicatePlayer  = errors.New("player seated twice")
	ErrNotOwner         = errors.New("actor is not match owner")
)
