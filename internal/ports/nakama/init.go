package nakama

import (
	"context"
	"database/sql"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"

	"domino/internal/cache"
	"domino/internal/config"
	"domino/internal/ports"
	"domino/internal/ports/mongo"
	"domino/internal/ports/redis"
	"domino/internal/scoring"
)

// services are shared by every match and RPC of the module.
type services struct {
	conf      *config.Config
	rule      scoring.Rule
	results   *cache.GeneralCache
	archive   ports.Archive
	standings ports.StandingsStore
}

// InitModule wires RPCs and match handlers for Nakama runtime.
func InitModule(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, initializer runtime.Initializer) error {
	env, _ := ctx.Value(runtime.RUNTIME_CTX_ENV).(map[string]string)
	svc, err := newServices(ctx, logger, env)
	if err != nil {
		return err
	}

	if err := RegisterRPCs(initializer, svc); err != nil {
		return err
	}

	if err := initializer.RegisterMatch(MatchNameDomino, func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule) (runtime.Match, error) {
		return newMatchHandler(svc), nil
	}); err != nil {
		return err
	}

	logger.Info("Domino Go module loaded.")
	return nil
}

func newServices(ctx context.Context, logger runtime.Logger, env map[string]string) (*services, error) {
	conf, err := config.FromEnv(env, envPrefix)
	if err != nil {
		return nil, err
	}
	rule, err := scoring.New(conf.Scoring.BlockedTie, conf.Scoring.Script)
	if err != nil {
		return nil, err
	}
	results, err := cache.NewGeneralCache(conf.Cache.MaxCost, time.Duration(conf.Cache.TTLSeconds)*time.Second)
	if err != nil {
		return nil, err
	}
	svc := &services{conf: conf, rule: rule, results: results}

	// Both stores are optional; an unreachable one is logged and skipped.
	if conf.Mongo.Url != "" {
		archive, err := mongo.Connect(ctx, conf.Mongo)
		if err != nil {
			logger.Warn("InitModule: Match archive disabled: %v", err)
		} else {
			svc.archive = archive
		}
	}
	if conf.Redis.Addr != "" {
		standings, _, err := redis.Connect(ctx, conf.Redis)
		if err != nil {
			logger.Warn("InitModule: Standings mirror disabled: %v", err)
		} else {
			svc.standings = standings
		}
	}
	return svc, nil
}
