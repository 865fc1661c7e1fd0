package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"domino/internal/app"
	"domino/internal/domain"
)

func simulateCmd() *cobra.Command {
	var opts simOptions
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Play bot-only matches and report the results",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Players == 0 {
				opts.Players = conf.Match.Players
			}
			if opts.Seed == 0 {
				opts.Seed = conf.Match.Seed
			}
			if opts.Seed == 0 {
				opts.Seed = time.Now().UnixNano()
			}
			opts.Target = conf.Match.TargetScore
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			s, err := openStack(ctx, conf, logger)
			if err != nil {
				return err
			}
			defer s.Close()

			stats, err := simulate(ctx, s, opts)
			if err != nil {
				return err
			}
			stats.Print(os.Stdout)
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.Players, "players", 0, "seats at the table (default from config)")
	cmd.Flags().IntVar(&opts.Matches, "matches", 10, "matches to play")
	cmd.Flags().IntVar(&opts.Parallel, "parallel", 4, "matches played at once")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "base shuffle seed; match i uses seed+i")
	return cmd
}

type simOptions struct {
	Players  int
	Matches  int
	Parallel int
	Seed     int64
	Target   int
}

// simStats aggregates finished matches.
type simStats struct {
	mu sync.Mutex

	Matches   int
	Rounds    int
	Completed int
	Blocked   int
	Forced    int
	Wins      map[string]int
	Longest   int
}

func (st *simStats) add(m *domain.Match) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.Matches++
	st.Rounds += len(m.Rounds)
	st.Wins[m.Winner]++
	if len(m.Rounds) > st.Longest {
		st.Longest = len(m.Rounds)
	}
	for _, r := range m.Rounds {
		switch {
		case r.Phase == domain.RoundCompleted:
			st.Completed++
		case r.Forced:
			st.Forced++
		default:
			st.Blocked++
		}
	}
}

func (st *simStats) Print(w io.Writer) {
	fmt.Fprintf(w, "Matches: %d  Rounds: %d", st.Matches, st.Rounds)
	if st.Matches > 0 {
		fmt.Fprintf(w, " (avg %.1f, longest %d)", float64(st.Rounds)/float64(st.Matches), st.Longest)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Rounds won by domino: %d  blocked: %d  blocked by passes: %d\n", st.Completed, st.Blocked, st.Forced)

	teams := make([]string, 0, len(st.Wins))
	for team := range st.Wins {
		teams = append(teams, team)
	}
	sort.Strings(teams)
	for _, team := range teams {
		fmt.Fprintf(w, "  Team %s: %d wins\n", team, st.Wins[team])
	}
}

// simulate plays opts.Matches bot matches, at most opts.Parallel at a time.
// The first failing match cancels the rest.
func simulate(ctx context.Context, s *stack, opts simOptions) (*simStats, error) {
	if opts.Parallel < 1 {
		opts.Parallel = 1
	}
	seats, err := seatPlayers(opts.Players, 0, s.conf.Match.BotLevel)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stats := &simStats{Wins: make(map[string]int)}
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	sem := make(chan struct{}, opts.Parallel)

	for i := 0; i < opts.Matches; i++ {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			m, err := playBotMatch(ctx, s, seats, opts.Seed+int64(i), opts.Target)
			if err != nil {
				errOnce.Do(func() {
					firstErr = fmt.Errorf("match %d: %w", i+1, err)
					cancel()
				})
				return
			}
			stats.add(m)
			s.logger.Debug("match simulated", "n", i+1, "winner", m.Winner, "rounds", len(m.Rounds))
		}(i)
	}
	wg.Wait()

	if firstErr != nil {
		return stats, firstErr
	}
	return stats, ctx.Err()
}

func playBotMatch(ctx context.Context, s *stack, seats []domain.Player, seed int64, target int) (*domain.Match, error) {
	ctrl, _, table := s.newController(seed)
	m, err := ctrl.NewMatch(ctx, seats, target)
	if err != nil {
		return nil, err
	}
	// A round is settled once the next one is dealt, so its tiles can go.
	var last string
	err = ctrl.Run(ctx, m, func(events []app.Event) {
		for _, ev := range events {
			if p, ok := ev.Payload.(app.RoundStartedPayload); ok {
				if last != "" {
					table.Forget(last)
				}
				last = p.RoundID
			}
		}
	})
	if last != "" {
		table.Forget(last)
	}
	return m, err
}
