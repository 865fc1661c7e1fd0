package main

import (
	"context"
	"math/rand"

	"github.com/charmbracelet/log"

	"domino/internal/app"
	"domino/internal/bot"
	"domino/internal/config"
	"domino/internal/ports/memory"
	"domino/internal/ports/mongo"
	"domino/internal/ports/redis"
	"domino/internal/scoring"
)

// stack is everything a match needs besides its table: the scoring rule
// and the optional stores.
type stack struct {
	conf   *config.Config
	logger *log.Logger
	rule   scoring.Rule
	brain  bot.Brain

	standings *redis.Standings
	archive   *mongo.Archive
	closers   []func()
}

func openStack(ctx context.Context, conf *config.Config, logger *log.Logger) (*stack, error) {
	rule, err := scoring.New(conf.Scoring.BlockedTie, conf.Scoring.Script)
	if err != nil {
		return nil, err
	}
	level, err := bot.ParseLevel(conf.Match.BotLevel)
	if err != nil {
		return nil, err
	}
	brain, err := bot.NewBrain(level)
	if err != nil {
		return nil, err
	}
	s := &stack{conf: conf, logger: logger, rule: rule, brain: brain}
	if script, ok := rule.(*scoring.Script); ok {
		s.closers = append(s.closers, script.Close)
	}

	if conf.Redis.Addr != "" {
		standings, cli, err := redis.Connect(ctx, conf.Redis)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.standings = standings
		s.closers = append(s.closers, func() { _ = cli.Close() })
		logger.Info("standings mirror enabled", "addr", conf.Redis.Addr)
	}
	if conf.Mongo.Url != "" {
		archive, err := mongo.Connect(ctx, conf.Mongo)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.archive = archive
		s.closers = append(s.closers, func() { _ = archive.Close(context.Background()) })
		logger.Info("match archive enabled", "db", conf.Mongo.Db)
	}
	return s, nil
}

// newController builds a fresh table and controller. A zero seed shuffles
// from the clock.
func (s *stack) newController(seed int64) (*app.Controller, *app.Engine, *memory.Table) {
	var rng *rand.Rand
	if seed != 0 {
		rng = rand.New(rand.NewSource(seed))
	}
	table := memory.NewTable(s.rule, rng)
	engine := app.NewEngine(table, s.brain, s.logger)

	opts := []app.ControllerOption{
		app.WithMaxRounds(s.conf.Match.MaxRounds),
		app.WithMaxPip(s.conf.Match.MaxPip),
	}
	if s.standings != nil {
		opts = append(opts, app.WithStandings(s.standings))
	}
	if s.archive != nil {
		opts = append(opts, app.WithArchive(s.archive))
	}
	return app.NewController(engine, s.logger, opts...), engine, table
}

func (s *stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
