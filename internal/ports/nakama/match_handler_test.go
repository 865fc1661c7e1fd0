package nakama

import (
	"context"
	"testing"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"domino/internal/app"
	"domino/internal/bot"
	"domino/internal/cache"
	"domino/internal/config"
	"domino/internal/domain"
	"domino/internal/scoring"
)

// noopLogger implements runtime.Logger for tests that only need to satisfy the interface.
type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}
func (noopLogger) WithField(string, interface{}) runtime.Logger {
	return noopLogger{}
}
func (noopLogger) WithFields(map[string]interface{}) runtime.Logger {
	return noopLogger{}
}
func (noopLogger) Fields() map[string]interface{} {
	return nil
}

// mockDispatcher records match dispatcher calls for assertions.
type mockDispatcher struct {
	broadcastCount int
	labelUpdates   int
	lastLabel      string
	opCodes        []int64
	lastData       map[int64][]byte
}

func (md *mockDispatcher) BroadcastMessage(opCode int64, data []byte, presences []runtime.Presence, sender runtime.Presence, reliable bool) error {
	md.broadcastCount++
	md.opCodes = append(md.opCodes, opCode)
	if md.lastData == nil {
		md.lastData = make(map[int64][]byte)
	}
	md.lastData[opCode] = append([]byte(nil), data...)
	return nil
}

func (md *mockDispatcher) BroadcastMessageDeferred(opCode int64, data []byte, presences []runtime.Presence, sender runtime.Presence, reliable bool) error {
	return nil
}

func (md *mockDispatcher) MatchKick(presences []runtime.Presence) error {
	return nil
}

func (md *mockDispatcher) MatchLabelUpdate(label string) error {
	md.labelUpdates++
	md.lastLabel = label
	return nil
}

func (md *mockDispatcher) count(opCode int64) int {
	n := 0
	for _, op := range md.opCodes {
		if op == opCode {
			n++
		}
	}
	return n
}

func testServices(t *testing.T, env map[string]string) *services {
	t.Helper()
	conf, err := config.FromEnv(env, envPrefix)
	require.NoError(t, err)
	results, err := cache.NewGeneralCache(1<<10, time.Minute)
	require.NoError(t, err)
	t.Cleanup(results.Close)
	return &services{conf: conf, rule: scoring.Standard{BlockedTie: scoring.TieSplit}, results: results}
}

func TestFindFirstHumanSeat(t *testing.T) {
	tests := []struct {
		name  string
		seats []string
		want  int
	}{
		{name: "empty", seats: []string{"", "", "", ""}, want: -1},
		{name: "bots only", seats: []string{bot.SeatID(0), "", bot.SeatID(2), ""}, want: -1},
		{name: "human after bot", seats: []string{bot.SeatID(0), "user-2", "", ""}, want: 1},
		{name: "first seat", seats: []string{"user-1", "user-2", "", ""}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := findFirstHumanSeat(tt.seats); got != tt.want {
				t.Fatalf("findFirstHumanSeat(%v) = %d, want %d", tt.seats, got, tt.want)
			}
		})
	}
}

func TestMatchLabel_Marshal(t *testing.T) {
	label, err := matchLabel(3, phaseLobby)
	require.NoError(t, err)

	st := &structpb.Struct{}
	require.NoError(t, protojson.Unmarshal([]byte(label), st))
	assert.Equal(t, "domino", st.GetFields()["game"].GetStringValue())
	assert.Equal(t, float64(3), st.GetFields()["open"].GetNumberValue())
	assert.Equal(t, phaseLobby, st.GetFields()["phase"].GetStringValue())
}

func TestDecodeRequest(t *testing.T) {
	st, err := decodeRequest([]byte(`{"tile":"3-5"}`))
	require.NoError(t, err)
	assert.Equal(t, "3-5", st.GetFields()["tile"].GetStringValue())

	bin, err := encodeMessage(map[string]any{"tile": "6-6"})
	require.NoError(t, err)
	st, err = decodeRequest(bin)
	require.NoError(t, err)
	assert.Equal(t, "6-6", st.GetFields()["tile"].GetStringValue())

	st, err = decodeRequest(nil)
	require.NoError(t, err)
	assert.Empty(t, st.GetFields())

	_, err = decodeRequest([]byte{0xff, 0xff})
	assert.Error(t, err)
}

func TestProcessBots_FillsLobbyForSoloHuman(t *testing.T) {
	handler := newMatchHandler(testServices(t, nil))
	state := handler.newState(nil)
	state.BotsEnabled = true
	state.Seats[0] = "user-1"
	state.OwnerSeat = 0
	state.LastSinglePlayerTick = 8
	state.Tick = 8 + int64(state.BotAutoFillDelay)
	dispatcher := &mockDispatcher{}

	handler.processBots(context.Background(), state, dispatcher, noopLogger{})

	bots := 0
	for _, seat := range state.Seats {
		if bot.IsBot(seat) {
			bots++
		}
	}
	assert.Equal(t, 3, bots)
	assert.Zero(t, state.GetOpenSeatsCount())
	assert.Zero(t, state.LastSinglePlayerTick)
	assert.Equal(t, "Bot 2", state.Names[bot.SeatID(1)])
	assert.Equal(t, 1, dispatcher.count(OpMatchState))
	assert.Equal(t, 1, dispatcher.labelUpdates)
}

func TestStartMatchRequiresOwner(t *testing.T) {
	handler := newMatchHandler(testServices(t, nil))
	state := handler.newState(nil)
	state.Seats = [domain.MaxPlayers]string{"user-1", "user-2", "", ""}
	state.OwnerSeat = 0
	dispatcher := &mockDispatcher{}

	handler.handleStartMatch(context.Background(), state, dispatcher, noopLogger{}, "user-2")
	assert.Nil(t, state.Match)

	state.Seats = [domain.MaxPlayers]string{"user-1", "", "", ""}
	handler.handleStartMatch(context.Background(), state, dispatcher, noopLogger{}, "user-1")
	assert.Nil(t, state.Match, "a lone human without bots cannot start")
}

func TestHumanTurnsOverMatchData(t *testing.T) {
	handler := newMatchHandler(testServices(t, map[string]string{"domino_match_players": "2"}))
	state := handler.newState(nil)
	// user-1 holds 0-0..0-6 and user-2 holds 1-1..1-6 and 2-2.
	state.Table.Shuffle = func(tiles []domain.Tile) []domain.Tile { return tiles }
	state.Seats = [domain.MaxPlayers]string{"user-1", "user-2", "", ""}
	state.OwnerSeat = 0
	dispatcher := &mockDispatcher{}
	ctx := context.Background()

	handler.handleStartMatch(ctx, state, dispatcher, noopLogger{}, "user-1")
	require.NotNil(t, state.Match)
	require.NotNil(t, state.Round)
	assert.Equal(t, "user-2", state.Round.Current().ID)
	assert.Equal(t, 1, dispatcher.count(OpRoundStarted))
	assert.Zero(t, dispatcher.count(OpHandDealt), "hands of absent players are not broadcast")
	assert.Contains(t, dispatcher.lastLabel, phasePlaying)

	handler.handlePlayTile(ctx, state, dispatcher, noopLogger{}, "user-1", []byte(`{"tile":"0-0"}`))
	assert.Equal(t, 0, state.Round.Turns, "out of turn")

	handler.handlePlayTile(ctx, state, dispatcher, noopLogger{}, "user-2", []byte(`{"tile":"1-1"}`))
	assert.Equal(t, 0, state.Round.Turns, "the opening double is mandatory")

	handler.handlePlayTile(ctx, state, dispatcher, noopLogger{}, "user-2", []byte(`{"tile":"2-2"}`))
	require.Equal(t, 1, state.Round.Turns)
	assert.Equal(t, "user-1", state.Round.Current().ID)

	played := &structpb.Struct{}
	require.NoError(t, proto.Unmarshal(dispatcher.lastData[OpTilePlayed], played))
	assert.Equal(t, "user-2", played.GetFields()["player_id"].GetStringValue())
	assert.Equal(t, "user-1", played.GetFields()["next_player_id"].GetStringValue())

	// user-1 is not connected, so the server plays 0-2 for them.
	state.Tick = 1
	handler.processTimeouts(ctx, state, dispatcher, noopLogger{})
	assert.Equal(t, 2, state.Round.Turns)
	assert.Equal(t, "user-2", state.Round.Current().ID)
	layout, err := state.Engine.Layout(ctx, state.Round)
	require.NoError(t, err)
	assert.Equal(t, domain.Layout{Set: true, Left: 0, Right: 2}, layout)
}

func TestBotMatchPlaysToTheEnd(t *testing.T) {
	svc := testServices(t, map[string]string{"domino_match_seed": "7", "domino_match_targetscore": "30"})
	handler := newMatchHandler(svc)
	state := handler.newState(map[string]string{"domino_bots_enabled": "true"})
	state.BotMinDelay, state.BotMaxDelay = 0, 0
	state.Seats[0] = "user-1"
	state.OwnerSeat = 0
	dispatcher := &mockDispatcher{}
	ctx := context.Background()

	require.Equal(t, 30, state.TargetScore)
	handler.fillWithBots(state, noopLogger{})
	handler.handleStartMatch(ctx, state, dispatcher, noopLogger{}, "user-1")
	require.NotNil(t, state.Match)
	matchID := state.Match.ID

	for i := 0; i < 10000 && state.playing(); i++ {
		state.Tick++
		handler.processBots(ctx, state, dispatcher, noopLogger{})
		handler.processTimeouts(ctx, state, dispatcher, noopLogger{})
	}

	require.Equal(t, domain.MatchFinished, state.Match.Phase)
	assert.Nil(t, state.Round)
	assert.GreaterOrEqual(t, state.Match.Scores[state.Match.Winner], 30)
	assert.Equal(t, 1, dispatcher.count(OpMatchEnded))
	assert.Equal(t, len(state.Match.Rounds), dispatcher.count(OpRoundEnded))
	assert.Contains(t, dispatcher.lastLabel, phaseFinished)

	svc.results.Wait()
	res, err := svc.matchStatus(ctx, matchID)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchFinished, res.Phase)
	assert.Equal(t, state.Match.Winner, res.Winner)
}

func TestMatchStatusNotFound(t *testing.T) {
	svc := testServices(t, nil)
	_, err := svc.matchStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, errMatchNotFound)

	_, err = svc.rpcMatchStatus(context.Background(), noopLogger{}, nil, nil, `{}`)
	assert.Error(t, err)
}

type stubStandings map[string]map[string]int

func (s stubStandings) AddScore(ctx context.Context, matchID, team string, delta int) (int, error) {
	if s[matchID] == nil {
		s[matchID] = map[string]int{}
	}
	s[matchID][team] += delta
	return s[matchID][team], nil
}

func (s stubStandings) Standings(ctx context.Context, matchID string) (map[string]int, error) {
	return s[matchID], nil
}

func TestMatchStatusFallsBackToStandings(t *testing.T) {
	svc := testServices(t, nil)
	standings := stubStandings{}
	svc.standings = standings
	ctx := context.Background()

	_, err := standings.AddScore(ctx, "elsewhere", "B", 17)
	require.NoError(t, err)

	res, err := svc.matchStatus(ctx, "elsewhere")
	require.NoError(t, err)
	assert.Equal(t, domain.MatchOpen, res.Phase)
	assert.Equal(t, map[string]int{"B": 17}, res.Scores)

	_, err = svc.matchStatus(ctx, "missing")
	assert.ErrorIs(t, err, errMatchNotFound)
}

func TestAbandonForgetsCachedStatus(t *testing.T) {
	svc := testServices(t, map[string]string{"domino_match_players": "2"})
	handler := newMatchHandler(svc)
	state := handler.newState(nil)
	state.Seats = [domain.MaxPlayers]string{"user-1", "user-2", "", ""}
	state.OwnerSeat = 0
	dispatcher := &mockDispatcher{}

	handler.handleStartMatch(context.Background(), state, dispatcher, noopLogger{}, "user-1")
	require.NotNil(t, state.Match)
	matchID := state.Match.ID
	svc.results.Wait()
	_, ok := svc.results.Result(matchID)
	require.True(t, ok)

	handler.abandon(state, dispatcher, noopLogger{})
	svc.results.Wait()
	_, ok = svc.results.Result(matchID)
	assert.False(t, ok)
	assert.Nil(t, state.Match)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, 403, errorCode(app.ErrNotYourTurn))
	assert.Equal(t, 409, errorCode(app.ErrRoundOver))
	assert.Equal(t, 400, errorCode(domain.ErrIllegalMove))
	assert.Equal(t, 500, errorCode(domain.ErrResourceUnavailable))
}
