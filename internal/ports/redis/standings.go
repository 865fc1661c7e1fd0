// Package redis mirrors match standings into Redis hashes, one hash per
// match keyed by team.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"domino/internal/config"
	"domino/internal/domain"
)

const keyPrefix = "domino:match:"

func standingsKey(matchID string) string {
	return keyPrefix + matchID + ":standings"
}

// Standings implements ports.StandingsStore.
type Standings struct {
	cli redis.Cmdable
	ttl time.Duration
}

// Connect dials Redis and checks the connection.
func Connect(ctx context.Context, conf config.RedisConf) (*Standings, *redis.Client, error) {
	cli := redis.NewClient(&redis.Options{
		Addr:         conf.Addr,
		Password:     conf.Password,
		DB:           conf.DB,
		PoolSize:     conf.PoolSize,
		MinIdleConns: conf.MinIdleConns,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := cli.Ping(pingCtx).Err(); err != nil {
		_ = cli.Close()
		return nil, nil, fmt.Errorf("%w: redis ping %s: %v", domain.ErrResourceUnavailable, conf.Addr, err)
	}
	return NewStandings(cli, time.Duration(conf.TTLHours)*time.Hour), cli, nil
}

// NewStandings wraps an existing client. A zero ttl keeps keys forever.
func NewStandings(cli redis.Cmdable, ttl time.Duration) *Standings {
	return &Standings{cli: cli, ttl: ttl}
}

func (s *Standings) AddScore(ctx context.Context, matchID, team string, delta int) (int, error) {
	key := standingsKey(matchID)
	var incr *redis.IntCmd
	_, err := s.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.HIncrBy(ctx, key, team, int64(delta))
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: add score %s/%s: %v", domain.ErrResourceUnavailable, matchID, team, err)
	}
	return int(incr.Val()), nil
}

func (s *Standings) Standings(ctx context.Context, matchID string) (map[string]int, error) {
	raw, err := s.cli.HGetAll(ctx, standingsKey(matchID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: read standings %s: %v", domain.ErrResourceUnavailable, matchID, err)
	}
	out := make(map[string]int, len(raw))
	for team, v := range raw {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%w: standings %s team %s = %q", domain.ErrProtocolViolation, matchID, team, v)
		}
		out[team] = n
	}
	return out, nil
}
