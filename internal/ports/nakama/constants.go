package nakama

const (
	// RpcFindMatch is the Nakama RPC id clients call to find or create a lobby-capable match.
	RpcFindMatch = "domino_find_match"

	// RpcMatchStatus returns the phase, scores and winner of a match by its domain id.
	RpcMatchStatus = "domino_match_status"

	// MatchNameDomino is the authoritative match handler name registered with Nakama.
	MatchNameDomino = "domino_match"

	// envPrefix selects the runtime env keys read into the config.
	envPrefix = "domino_"
)

// Op codes for client messages and server events.
const (
	// Client -> Server
	OpStartMatch int64 = 1
	OpPlayTile   int64 = 2
	OpDrawTile   int64 = 3
	OpPassTurn   int64 = 4

	// Server -> Client events
	OpMatchState   int64 = 101
	OpRoundStarted int64 = 102
	OpHandDealt    int64 = 103 // send privately
	OpTilePlayed   int64 = 104
	OpTileDrawn    int64 = 105 // send privately
	OpTurnPassed   int64 = 106
	OpRoundEnded   int64 = 107
	OpMatchEnded   int64 = 108
	OpError        int64 = 109
)

// Label phases.
const (
	phaseLobby    = "lobby"
	phasePlaying  = "playing"
	phaseFinished = "finished"
)
