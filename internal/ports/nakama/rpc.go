package nakama

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/heroiclabs/nakama-common/runtime"

	"domino/internal/domain"
)

// FindMatchResponse is the payload returned to clients when requesting a lobby-capable match.
type FindMatchResponse struct {
	MatchID string `json:"match_id"`
	IsNew   bool   `json:"is_new"`
}

type matchStatusRequest struct {
	MatchID string `json:"match_id"`
}

var errMatchNotFound = errors.New("match not found")

// RegisterRPCs registers Nakama RPC endpoints.
func RegisterRPCs(initializer runtime.Initializer, svc *services) error {
	if err := initializer.RegisterRpc(RpcFindMatch, rpcFindMatch); err != nil {
		return err
	}
	return initializer.RegisterRpc(RpcMatchStatus, svc.rpcMatchStatus)
}

// rpcFindMatch returns an open domino lobby, creating one when none exists.
func rpcFindMatch(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	userID, _ := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)

	query := fmt.Sprintf("+label.game:domino +label.phase:%s +label.open:>=1", phaseLobby)
	limit := 10
	authoritative := true
	minSize := 1
	maxSize := domain.MaxPlayers - 1

	matches, err := nk.MatchList(ctx, limit, authoritative, "", &minSize, &maxSize, query)
	if err != nil {
		logger.Error("RpcFindMatch [User:%s]: Failed to list matches: %v", userID, err)
		return "", err
	}

	if len(matches) > 0 {
		logger.Info("RpcFindMatch [User:%s]: Found existing match %s", userID, matches[0].MatchId)
		return marshalResponse(FindMatchResponse{MatchID: matches[0].MatchId, IsNew: false})
	}

	// Seat and owner assignment happen in MatchJoin.
	matchID, err := nk.MatchCreate(ctx, MatchNameDomino, map[string]interface{}{})
	if err != nil {
		logger.Error("RpcFindMatch [User:%s]: Failed to create match: %v", userID, err)
		return "", err
	}

	logger.Info("RpcFindMatch [User:%s]: Created new match %s", userID, matchID)
	return marshalResponse(FindMatchResponse{MatchID: matchID, IsNew: true})
}

// rpcMatchStatus reports phase, scores and winner of a match. Live and
// recent matches come from the local cache, older ones from the archive,
// and live matches elsewhere from the standings mirror.
func (svc *services) rpcMatchStatus(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	var req matchStatusRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil || req.MatchID == "" {
		return "", runtime.NewError("match_id is required", 3) // INVALID_ARGUMENT
	}

	res, err := svc.matchStatus(ctx, req.MatchID)
	if errors.Is(err, errMatchNotFound) {
		return "", runtime.NewError(err.Error(), 5) // NOT_FOUND
	}
	if err != nil {
		logger.Error("RpcMatchStatus: Failed to load match %s: %v", req.MatchID, err)
		return "", runtime.NewError("match status unavailable", 14) // UNAVAILABLE
	}
	return marshalResponse(res)
}

func (svc *services) matchStatus(ctx context.Context, matchID string) (domain.MatchResult, error) {
	if svc.results != nil {
		if res, ok := svc.results.Result(matchID); ok {
			return res, nil
		}
	}
	if svc.archive != nil {
		res, err := svc.archive.FindMatch(ctx, matchID)
		if err != nil {
			return domain.MatchResult{}, err
		}
		if res != nil {
			if svc.results != nil {
				svc.results.PutResult(*res)
			}
			return *res, nil
		}
	}
	// Matches running on another node are only known by their mirrored scores.
	if svc.standings != nil {
		scores, err := svc.standings.Standings(ctx, matchID)
		if err != nil {
			return domain.MatchResult{}, err
		}
		if len(scores) > 0 {
			return domain.MatchResult{MatchID: matchID, Phase: domain.MatchOpen, Scores: scores}, nil
		}
	}
	return domain.MatchResult{}, errMatchNotFound
}

func marshalResponse(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
