package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"domino/internal/app"
	"domino/internal/bot"
	"domino/internal/domain"
)

var errQuit = errors.New("player quit")

func playCmd() *cobra.Command {
	var humans, players int
	var seed int64
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play a match at this terminal, bots fill the other seats",
		RunE: func(cmd *cobra.Command, args []string) error {
			if players == 0 {
				players = conf.Match.Players
			}
			if seed == 0 {
				seed = conf.Match.Seed
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			s, err := openStack(ctx, conf, logger)
			if err != nil {
				return err
			}
			defer s.Close()

			seats, err := seatPlayers(players, humans, conf.Match.BotLevel)
			if err != nil {
				return err
			}
			ctrl, engine, _ := s.newController(seed)
			m, err := ctrl.NewMatch(ctx, seats, conf.Match.TargetScore)
			if err != nil {
				return err
			}

			h := newHotSeat(os.Stdin, os.Stdout, engine, ctrl, m, humans)
			err = h.run(ctx)
			if errors.Is(err, errQuit) {
				fmt.Fprintln(os.Stdout, "Match abandoned.")
				return nil
			}
			return err
		},
	}
	cmd.Flags().IntVar(&humans, "humans", 1, "human seats, taken first")
	cmd.Flags().IntVar(&players, "players", 0, "seats at the table (default from config)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "shuffle seed (default from config)")
	return cmd
}

// seatPlayers seats the humans first and bots after them.
func seatPlayers(players, humans int, botLevel string) ([]domain.Player, error) {
	if humans < 0 || humans > players {
		return nil, fmt.Errorf("%d humans do not fit %d seats", humans, players)
	}
	level, err := bot.ParseLevel(botLevel)
	if err != nil {
		return nil, err
	}
	seats := make([]domain.Player, 0, players)
	for i := 0; i < players; i++ {
		if i < humans {
			seats = append(seats, domain.Player{ID: fmt.Sprintf("p%d", i+1), Name: fmt.Sprintf("Player %d", i+1)})
			continue
		}
		agent, err := bot.NewAgent(bot.SeatID(i), i, level)
		if err != nil {
			return nil, err
		}
		seats = append(seats, agent.Player())
	}
	return seats, nil
}

// hotSeat runs a match where humans share one terminal.
type hotSeat struct {
	in     *bufio.Reader
	out    io.Writer
	engine *app.Engine
	ctrl   *app.Controller
	match  *domain.Match
	names  map[string]string
	humans map[string]bool
}

func newHotSeat(in io.Reader, out io.Writer, engine *app.Engine, ctrl *app.Controller, m *domain.Match, humans int) *hotSeat {
	h := &hotSeat{
		in:     bufio.NewReader(in),
		out:    out,
		engine: engine,
		ctrl:   ctrl,
		match:  m,
		names:  make(map[string]string, len(m.Players)),
		humans: make(map[string]bool, humans),
	}
	for i, p := range m.Players {
		h.names[p.ID] = p.Name
		if i < humans {
			h.humans[p.ID] = true
		}
	}
	return h
}

func (h *hotSeat) run(ctx context.Context) error {
	m := h.match
	fmt.Fprintf(h.out, "Match %s: first team to %d points wins.\n", m.ID, m.TargetScore)
	for _, team := range m.Teams {
		var names []string
		for _, p := range m.TeamMembers(team) {
			names = append(names, p.Name)
		}
		fmt.Fprintf(h.out, "  Team %s: %s\n", team, strings.Join(names, ", "))
	}

	for m.Phase != domain.MatchFinished {
		rs, events, err := h.ctrl.NextRound(ctx, m)
		if err != nil {
			return err
		}
		h.show(events)

		for !rs.Phase.Terminal() {
			current := rs.Current()
			if h.humans[current.ID] {
				events, err = h.humanTurn(ctx, rs, current)
			} else {
				events, err = h.engine.AutoTurn(ctx, rs)
			}
			h.show(events)
			if err != nil {
				return err
			}
		}

		events, err = h.ctrl.CompleteRound(ctx, m, rs)
		h.show(events)
		if err != nil {
			return err
		}
		h.showScores()
	}
	return nil
}

// humanTurn prompts until the player plays or passes. Draws keep the turn.
func (h *hotSeat) humanTurn(ctx context.Context, rs *app.RoundState, player domain.Player) ([]app.Event, error) {
	var events []app.Event
	for {
		hand, err := h.engine.Hand(ctx, rs, player.ID)
		if err != nil {
			return events, err
		}
		layout, err := h.engine.Layout(ctx, rs)
		if err != nil {
			return events, err
		}
		pile, err := h.engine.DrawPileSize(ctx, rs)
		if err != nil {
			return events, err
		}

		fmt.Fprintf(h.out, "\n%s to move. Table: %s  Pile: %d\n", player.Name, FormatLayout(layout), pile)
		if rs.Mandatory != nil {
			fmt.Fprintf(h.out, "You must open with %s.\n", *rs.Mandatory)
		}
		fmt.Fprintf(h.out, "Hand: %s\n", FormatHand(hand))

		choice, err := h.prompt("[1] play [2] draw [3] pass [0] quit: ")
		if err != nil {
			return events, err
		}
		switch choice {
		case 0:
			return events, errQuit
		case 1:
			idx, err := h.prompt(fmt.Sprintf("Choose a tile (1-%d): ", len(hand)))
			if err != nil {
				return events, err
			}
			if idx < 1 || idx > len(hand) {
				fmt.Fprintln(h.out, "Invalid input. Please enter a number corresponding to a tile.")
				continue
			}
			played, err := h.engine.Play(ctx, rs, player.ID, hand[idx-1])
			if err != nil {
				if isRejection(err) {
					fmt.Fprintf(h.out, "Cannot play %s: %v\n", hand[idx-1], err)
					continue
				}
				return events, err
			}
			return append(events, played...), nil
		case 2:
			tile, drawn, err := h.engine.Draw(ctx, rs, player.ID)
			if err != nil {
				if isRejection(err) {
					fmt.Fprintf(h.out, "Cannot draw: %v\n", err)
					continue
				}
				return events, err
			}
			fmt.Fprintf(h.out, "You drew %s.\n", tile)
			events = append(events, drawn...)
		case 3:
			passed, err := h.engine.Pass(ctx, rs, player.ID)
			if err != nil {
				if isRejection(err) {
					fmt.Fprintf(h.out, "Cannot pass: %v\n", err)
					continue
				}
				return events, err
			}
			return append(events, passed...), nil
		default:
			fmt.Fprintln(h.out, "Invalid input.")
		}
	}
}

// isRejection reports errors that leave the turn with the same player.
func isRejection(err error) bool {
	for _, target := range []error{
		domain.ErrIllegalMove, app.ErrMandatoryOpening, app.ErrNoDrawPile,
		app.ErrDrawPileEmpty, app.ErrDrawNotAllowed, app.ErrPassNotAllowed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// prompt reads a number. End of input counts as quitting.
func (h *hotSeat) prompt(text string) (int, error) {
	for {
		fmt.Fprint(h.out, text)
		line, err := h.in.ReadString('\n')
		if err != nil && strings.TrimSpace(line) == "" {
			if errors.Is(err, io.EOF) {
				return 0, errQuit
			}
			return 0, err
		}
		n, convErr := strconv.Atoi(strings.TrimSpace(line))
		if convErr == nil {
			return n, nil
		}
		fmt.Fprintln(h.out, "Please enter a number.")
	}
}

func (h *hotSeat) show(events []app.Event) {
	for _, ev := range events {
		switch p := ev.Payload.(type) {
		case app.RoundStartedPayload:
			fmt.Fprintf(h.out, "\n=== Round %d === %s starts", p.Number, h.names[p.StartPlayerID])
			if p.Mandatory != nil {
				fmt.Fprintf(h.out, " with %s", *p.Mandatory)
			}
			fmt.Fprintf(h.out, ", %d tiles in the pile.\n", p.DrawPile)
		case app.TilePlayedPayload:
			fmt.Fprintf(h.out, "%s plays %s -> %s\n", h.names[p.PlayerID], p.Tile, FormatLayout(p.Layout))
		case app.TileDrawnPayload:
			if !h.humans[p.PlayerID] {
				fmt.Fprintf(h.out, "%s draws (%d left)\n", h.names[p.PlayerID], p.PileLeft)
			}
		case app.TurnPassedPayload:
			fmt.Fprintf(h.out, "%s passes\n", h.names[p.PlayerID])
		case app.RoundEndedPayload:
			h.showRoundEnd(p)
		case app.MatchEndedPayload:
			fmt.Fprintf(h.out, "\nTeam %s wins the match after %d rounds!\n", p.Winner, p.Rounds)
		}
	}
}

func (h *hotSeat) showRoundEnd(p app.RoundEndedPayload) {
	switch {
	case p.Phase == domain.RoundCompleted:
		fmt.Fprintf(h.out, "%s dominoes! ", h.names[p.WinnerPlayer])
	case p.Forced:
		fmt.Fprint(h.out, "Everybody passed, the round is blocked. ")
	default:
		fmt.Fprint(h.out, "The round is blocked. ")
	}
	teams := make([]string, 0, len(p.Deltas))
	for team := range p.Deltas {
		teams = append(teams, team)
	}
	sort.Strings(teams)
	var parts []string
	for _, team := range teams {
		parts = append(parts, fmt.Sprintf("%s +%d", team, p.Deltas[team]))
	}
	fmt.Fprintf(h.out, "Points: %s\n", strings.Join(parts, ", "))
}

func (h *hotSeat) showScores() {
	var parts []string
	for _, team := range h.match.Teams {
		parts = append(parts, fmt.Sprintf("%s %d", team, h.match.Scores[team]))
	}
	fmt.Fprintf(h.out, "Scores: %s (target %d)\n", strings.Join(parts, ", "), h.match.TargetScore)
}

// FormatHand numbers the tiles for selection.
func FormatHand(hand []domain.Tile) string {
	parts := make([]string, len(hand))
	for i, t := range hand {
		parts[i] = fmt.Sprintf("[%d] %s", i+1, t)
	}
	return strings.Join(parts, "  ")
}

// FormatLayout shows the open ends of the chain.
func FormatLayout(layout domain.Layout) string {
	if !layout.Set {
		return "empty"
	}
	return fmt.Sprintf("%d ... %d", layout.Left, layout.Right)
}
