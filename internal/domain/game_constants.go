package domain

import "errors"

const (
	// HandSize is the number of tiles dealt to each player.
	HandSize = 7
	// MinPlayers and MaxPlayers bound the table size.
	MinPlayers = 2
	MaxPlayers = 4
)

// Error classes shared by the engine and every collaborator adapter.
var (
	// ErrIllegalMove: the tile does not fit an open end or is not in the hand.
	ErrIllegalMove = errors.New("illegal move")
	// ErrProtocolViolation: a collaborator broke an invariant the engine relies on.
	ErrProtocolViolation = errors.New("protocol violation")
	// ErrResourceUnavailable: a backing store could not be reached.
	ErrResourceUnavailable = errors.New("resource unavailable")
)
