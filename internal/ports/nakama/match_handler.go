package nakama

import (
	"context"
	"database/sql"
	"errors"
	"math/rand"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/heroiclabs/nakama-common/runtime"

	"domino/internal/app"
	"domino/internal/bot"
	"domino/internal/domain"
	dlog "domino/internal/log"
	"domino/internal/ports/memory"
)

// MatchState holds the authoritative runtime state for the Nakama match handler.
type MatchState struct {
	Seats     [domain.MaxPlayers]string   `json:"seats"`      // user ids, empty string means seat is empty
	OwnerSeat int                         `json:"owner_seat"` // seat index of the match owner
	Tick      int64                       `json:"tick"`
	Presences map[string]runtime.Presence `json:"-"` // UserId -> Presence for targeted messaging
	Names     map[string]string           `json:"-"` // UserId -> display name

	BotsEnabled          bool                  `json:"bots_enabled"`
	BotMinDelay          int                   `json:"bot_min_delay"`       // min seconds a bot waits
	BotMaxDelay          int                   `json:"bot_max_delay"`       // max seconds a bot waits
	BotAutoFillDelay     int                   `json:"bot_auto_fill_delay"` // seconds before a lone human gets bots
	BotWaitUntil         int64                 `json:"bot_wait_until"`
	LastSinglePlayerTick int64                 `json:"last_single_player_tick"`
	BotLevel             bot.BotLevel          `json:"bot_level"`
	Bots                 map[string]*bot.Agent `json:"-"`

	TableSize    int   `json:"table_size"`    // seats filled before a bot match starts
	TargetScore  int   `json:"target_score"`  // points a team needs to win
	TurnTimeout  int64 `json:"turn_timeout"`  // seconds a human may idle, 0 disables
	TurnDeadline int64 `json:"turn_deadline"` // tick at which the server plays for the human

	Table      *memory.Table   `json:"-"`
	Engine     *app.Engine     `json:"-"`
	Controller *app.Controller `json:"-"`
	Match      *domain.Match   `json:"-"` // nil while in lobby
	Round      *app.RoundState `json:"-"` // nil between rounds

	svc    *services
	logger *log.Logger
}

func (ms *MatchState) GetOpenSeatsCount() int {
	count := 0
	for _, seat := range ms.Seats[:ms.TableSize] {
		if seat == "" {
			count++
		}
	}
	return count
}

func (ms *MatchState) GetOccupiedSeatCount() int {
	count := 0
	for _, seat := range ms.Seats {
		if seat != "" {
			count++
		}
	}
	return count
}

func (ms *MatchState) GetHumanPlayerCount() int {
	count := 0
	for _, seat := range ms.Seats {
		if seat != "" && !bot.IsBot(seat) {
			count++
		}
	}
	return count
}

// playing reports whether a match is in progress.
func (ms *MatchState) playing() bool {
	return ms.Match != nil && ms.Match.Phase != domain.MatchFinished
}

func (ms *MatchState) seatOf(userID string) int {
	for i, id := range ms.Seats {
		if id != "" && id == userID {
			return i
		}
	}
	return -1
}

// isHumanSeat reports whether the seat index belongs to a human player.
func isHumanSeat(seats []string, seatIndex int) bool {
	if seatIndex < 0 || seatIndex >= len(seats) {
		return false
	}
	userID := seats[seatIndex]
	return userID != "" && !bot.IsBot(userID)
}

// findFirstHumanSeat returns the first seat index with a human occupant or -1 if none exist.
func findFirstHumanSeat(seats []string) int {
	for i, userID := range seats {
		if userID != "" && !bot.IsBot(userID) {
			return i
		}
	}
	return -1
}

// shouldTerminateNoHumans returns true when no human is connected.
func shouldTerminateNoHumans(state *MatchState) bool {
	for userID := range state.Presences {
		if state.seatOf(userID) >= 0 {
			return false
		}
	}
	return true
}

type matchHandler struct {
	svc *services
}

func newMatchHandler(svc *services) *matchHandler {
	return &matchHandler{svc: svc}
}

// MatchInit is called when the match is created.
func (mh *matchHandler) MatchInit(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, params map[string]interface{}) (interface{}, int, string) {
	logger.Debug("MatchInit: Initializing match handler.")

	env, _ := ctx.Value(runtime.RUNTIME_CTX_ENV).(map[string]string)
	state := mh.newState(env)

	label, err := matchLabel(state.GetOpenSeatsCount(), phaseLobby)
	if err != nil {
		logger.Error("MatchInit: Failed to marshal label: %v", err)
		return nil, 0, ""
	}

	tickRate := 1 // one tick per second; delays and timeouts are counted in ticks
	return state, tickRate, label
}

// newState builds a lobby with its own table, engine and controller.
func (mh *matchHandler) newState(env map[string]string) *MatchState {
	conf := mh.svc.conf
	state := &MatchState{
		OwnerSeat:   -1,
		Presences:   make(map[string]runtime.Presence),
		Names:       make(map[string]string),
		Bots:        make(map[string]*bot.Agent),
		TableSize:   conf.Match.Players,
		TargetScore: conf.Match.TargetScore,
		TurnTimeout: int64(conf.Match.TurnTimeoutSeconds),
		svc:         mh.svc,
		logger:      dlog.New("match", conf.Log.Level),
	}
	if level, err := bot.ParseLevel(conf.Match.BotLevel); err == nil {
		state.BotLevel = level
	}

	if val, ok := env["domino_bots_enabled"]; ok {
		state.BotsEnabled = val == "true"
	}
	if val, ok := env["domino_bot_min_delay_sec"]; ok {
		if i, err := strconv.Atoi(val); err == nil {
			state.BotMinDelay = i
		}
	}
	if val, ok := env["domino_bot_max_delay_sec"]; ok {
		if i, err := strconv.Atoi(val); err == nil {
			state.BotMaxDelay = i
		}
	}
	if val, ok := env["domino_bot_auto_fill_delay_sec"]; ok {
		if i, err := strconv.Atoi(val); err == nil {
			state.BotAutoFillDelay = i
		}
	}

	// Defaults if not set
	if state.BotMinDelay == 0 {
		state.BotMinDelay = 1
	}
	if state.BotMaxDelay < state.BotMinDelay {
		state.BotMaxDelay = state.BotMinDelay + 2
	}
	if state.BotAutoFillDelay == 0 {
		state.BotAutoFillDelay = 5
	}

	var rng *rand.Rand
	if conf.Match.Seed != 0 {
		rng = rand.New(rand.NewSource(conf.Match.Seed))
	}
	state.Table = memory.NewTable(mh.svc.rule, rng)
	brain, err := bot.NewBrain(state.BotLevel)
	if err != nil {
		brain = bot.FirstLegal{}
	}
	state.Engine = app.NewEngine(state.Table, brain, state.logger)

	opts := []app.ControllerOption{
		app.WithMaxRounds(conf.Match.MaxRounds),
		app.WithMaxPip(conf.Match.MaxPip),
	}
	if mh.svc.archive != nil {
		opts = append(opts, app.WithArchive(mh.svc.archive))
	}
	if mh.svc.standings != nil {
		opts = append(opts, app.WithStandings(mh.svc.standings))
	}
	state.Controller = app.NewController(state.Engine, state.logger, opts...)
	return state
}

func (mh *matchHandler) MatchJoinAttempt(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presence runtime.Presence, metadata map[string]string) (interface{}, bool, string) {
	matchState, ok := state.(*MatchState)
	if !ok {
		return state, false, "state not found"
	}

	// A seated player may always reconnect.
	if matchState.seatOf(presence.GetUserId()) >= 0 {
		return state, true, ""
	}
	if matchState.playing() {
		return state, false, "Match in progress"
	}

	// Allow join if there is an empty seat or a bot to replace.
	if matchState.GetOpenSeatsCount() <= 0 {
		hasBot := false
		for _, seat := range matchState.Seats {
			if bot.IsBot(seat) {
				hasBot = true
				break
			}
		}
		if !hasBot {
			return state, false, "Match full"
		}
	}

	return state, true, ""
}

func (mh *matchHandler) MatchJoin(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		logger.Error("MatchJoin: state not found")
		return state
	}

	for _, p := range presences {
		matchState.Presences[p.GetUserId()] = p
		matchState.Names[p.GetUserId()] = p.GetUsername()
		if !mh.seatUser(matchState, logger, p.GetUserId()) {
			logger.Warn("MatchJoin: User %s joined but no seat (empty or bot) was available.", p.GetUserId())
		}
	}

	// Ensure owner seat is assigned to a human player only.
	if !isHumanSeat(matchState.Seats[:], matchState.OwnerSeat) {
		matchState.OwnerSeat = findFirstHumanSeat(matchState.Seats[:])
		if matchState.OwnerSeat >= 0 {
			logger.Debug("MatchJoin: Owner set to human seat %d.", matchState.OwnerSeat)
		}
	}

	mh.updateLabel(matchState, dispatcher, logger)
	mh.broadcastMatchState(ctx, matchState, dispatcher, logger)

	return matchState
}

// seatUser places a user: their own seat on reconnect, else an empty seat,
// else a bot seat while still in the lobby.
func (mh *matchHandler) seatUser(state *MatchState, logger runtime.Logger, userID string) bool {
	if state.seatOf(userID) >= 0 {
		return true
	}
	if state.playing() {
		return false
	}
	for i := 0; i < state.TableSize; i++ {
		if state.Seats[i] == "" {
			state.Seats[i] = userID
			return true
		}
	}
	for i := 0; i < state.TableSize; i++ {
		if bot.IsBot(state.Seats[i]) {
			logger.Info("MatchJoin: Replacing bot %s with human %s in seat %d", state.Seats[i], userID, i)
			delete(state.Bots, state.Seats[i])
			state.Seats[i] = userID
			return true
		}
	}
	return false
}

// MatchLeave is called when one or more players leave the match. Seats of a
// running match stay taken; the server plays for absent players.
func (mh *matchHandler) MatchLeave(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		logger.Error("MatchLeave: state not found")
		return state
	}

	for _, p := range presences {
		userID := p.GetUserId()
		delete(matchState.Presences, userID)
		if matchState.playing() {
			logger.Debug("MatchLeave: User %s left a running match, seat kept.", userID)
			continue
		}
		if i := matchState.seatOf(userID); i >= 0 {
			matchState.Seats[i] = ""
			logger.Debug("MatchLeave: User %s left, seat %d freed.", userID, i)
		}
	}

	if !isHumanSeat(matchState.Seats[:], matchState.OwnerSeat) {
		matchState.OwnerSeat = findFirstHumanSeat(matchState.Seats[:])
	}

	if shouldTerminateNoHumans(matchState) {
		logger.Info("MatchLeave: Terminating match with no humans.")
		return nil
	}

	mh.updateLabel(matchState, dispatcher, logger)
	mh.broadcastMatchState(ctx, matchState, dispatcher, logger)
	return matchState
}

func (mh *matchHandler) MatchLoop(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, messages []runtime.MatchData) interface{} {
	matchState, ok := state.(*MatchState)
	if !ok {
		return state
	}

	matchState.Tick = tick

	for _, msg := range messages {
		sender, data := msg.GetUserId(), msg.GetData()
		switch msg.GetOpCode() {
		case OpStartMatch:
			mh.handleStartMatch(ctx, matchState, dispatcher, logger, sender)
		case OpPlayTile:
			mh.handlePlayTile(ctx, matchState, dispatcher, logger, sender, data)
		case OpDrawTile:
			mh.handleDrawTile(ctx, matchState, dispatcher, logger, sender)
		case OpPassTurn:
			mh.handlePassTurn(ctx, matchState, dispatcher, logger, sender)
		default:
			logger.Warn("MatchLoop: Unknown opcode received: %d", msg.GetOpCode())
		}
	}

	if matchState.BotsEnabled {
		mh.processBots(ctx, matchState, dispatcher, logger)
	}
	mh.processTimeouts(ctx, matchState, dispatcher, logger)

	return matchState
}

// processBots fills the lobby of a lone human after a delay and plays the
// turns of bot seats.
func (mh *matchHandler) processBots(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	if !state.playing() {
		if state.GetHumanPlayerCount() != 1 {
			state.LastSinglePlayerTick = 0
			return
		}
		if state.LastSinglePlayerTick == 0 {
			state.LastSinglePlayerTick = state.Tick
			logger.Debug("processBots: Single player detected, starting auto-fill timer.")
		}
		if state.Tick-state.LastSinglePlayerTick >= int64(state.BotAutoFillDelay) {
			if mh.fillWithBots(state, logger) > 0 {
				mh.updateLabel(state, dispatcher, logger)
				mh.broadcastMatchState(ctx, state, dispatcher, logger)
			}
			state.LastSinglePlayerTick = 0
		}
		return
	}

	rs := state.Round
	if rs == nil || rs.Phase.Terminal() {
		return
	}
	current := rs.Current().ID
	if !bot.IsBot(current) {
		state.BotWaitUntil = 0
		return
	}
	if state.BotWaitUntil == 0 {
		delay := state.BotMinDelay
		if span := state.BotMaxDelay - state.BotMinDelay; span > 0 {
			delay += rand.Intn(span + 1)
		}
		state.BotWaitUntil = state.Tick + int64(delay)
		logger.Debug("processBots: Bot %s will act at tick %d (current %d)", current, state.BotWaitUntil, state.Tick)
	}
	if state.Tick < state.BotWaitUntil {
		return
	}
	state.BotWaitUntil = 0

	events, err := mh.botTurn(ctx, state, current)
	mh.afterTurn(ctx, state, dispatcher, logger, events, err)
}

// fillWithBots seats bots in every empty seat of the table.
func (mh *matchHandler) fillWithBots(state *MatchState, logger runtime.Logger) int {
	added := 0
	for i := 0; i < state.TableSize; i++ {
		if state.Seats[i] != "" {
			continue
		}
		agent, err := bot.NewAgent(bot.SeatID(i), i, state.BotLevel)
		if err != nil {
			logger.Error("Failed to create bot agent for seat %d: %v", i, err)
			continue
		}
		state.Seats[i] = agent.ID
		state.Bots[agent.ID] = agent
		state.Names[agent.ID] = agent.Name
		logger.Info("processBots: Added bot %s to seat %d", agent.ID, i)
		added++
	}
	return added
}

// botTurn lets the agent's own strategy pick a tile and falls back to the
// engine's automatic turn for openings, draws and passes.
func (mh *matchHandler) botTurn(ctx context.Context, state *MatchState, botID string) ([]app.Event, error) {
	rs := state.Round
	agent, ok := state.Bots[botID]
	if ok && rs.Mandatory == nil {
		hand, err := state.Engine.Hand(ctx, rs, botID)
		if err != nil {
			return nil, err
		}
		layout, err := state.Engine.Layout(ctx, rs)
		if err != nil {
			return nil, err
		}
		if tile, found := agent.Choose(hand, layout); found {
			events, err := state.Engine.Play(ctx, rs, botID, tile)
			if err == nil {
				return events, nil
			}
			if !errors.Is(err, domain.ErrIllegalMove) {
				return nil, err
			}
		}
	}
	return state.Engine.AutoTurn(ctx, rs)
}

// processTimeouts plays for humans who idle past the turn timeout or have
// left the match.
func (mh *matchHandler) processTimeouts(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	rs := state.Round
	if !state.playing() || rs == nil || rs.Phase.Terminal() {
		return
	}
	current := rs.Current().ID
	if bot.IsBot(current) {
		return
	}
	_, present := state.Presences[current]
	if present && (state.TurnTimeout <= 0 || state.Tick < state.TurnDeadline) {
		return
	}
	logger.Info("processTimeouts: Playing for %s (present=%v)", current, present)
	events, err := state.Engine.AutoTurn(ctx, rs)
	mh.afterTurn(ctx, state, dispatcher, logger, events, err)
}

func (mh *matchHandler) handleStartMatch(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, senderID string) {
	senderSeat := state.seatOf(senderID)
	logger.Info("StartMatch: Request received from %s (seat=%d, owner_seat=%d, occupied=%d)", senderID, senderSeat, state.OwnerSeat, state.GetOccupiedSeatCount())

	if senderSeat != state.OwnerSeat {
		mh.sendError(state, dispatcher, logger, senderID, errorCode(app.ErrNotOwner), app.ErrNotOwner.Error())
		return
	}
	if state.playing() {
		mh.sendError(state, dispatcher, logger, senderID, 409, "match already running")
		return
	}
	if state.BotsEnabled && state.GetOccupiedSeatCount() < app.MinPlayersToStartGame {
		mh.fillWithBots(state, logger)
	}
	if state.GetOccupiedSeatCount() < app.MinPlayersToStartGame {
		logger.Warn("StartMatch: Cannot start with %d players. Need at least %d.", state.GetOccupiedSeatCount(), app.MinPlayersToStartGame)
		mh.sendError(state, dispatcher, logger, senderID, errorCode(app.ErrPlayerCount), app.ErrPlayerCount.Error())
		return
	}

	var players []domain.Player
	for _, userID := range state.Seats {
		if userID == "" {
			continue
		}
		players = append(players, domain.Player{ID: userID, Name: state.displayName(userID)})
	}
	m, err := state.Controller.NewMatch(ctx, players, state.TargetScore)
	if err != nil {
		logger.Error("StartMatch: Failed to create match: %v", err)
		mh.sendError(state, dispatcher, logger, senderID, errorCode(err), err.Error())
		return
	}
	state.Match = m
	mh.cacheResult(state)
	mh.updateLabel(state, dispatcher, logger)
	mh.broadcastMatchState(ctx, state, dispatcher, logger)
	mh.startRound(ctx, state, dispatcher, logger)

	logger.Info("StartMatch: Match %s started with %d players.", m.ID, len(players))
}

// startRound deals the next round and broadcasts the deal.
func (mh *matchHandler) startRound(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	rs, events, err := state.Controller.NextRound(ctx, state.Match)
	if err != nil {
		logger.Error("startRound: Failed to deal round: %v", err)
		mh.abandon(state, dispatcher, logger)
		return
	}
	state.Round = rs
	state.BotWaitUntil = 0
	mh.resetTurnClock(state)
	mh.broadcastEvents(ctx, state, dispatcher, logger, events)
}

func (mh *matchHandler) handlePlayTile(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, senderID string, data []byte) {
	if !mh.canAct(state, dispatcher, logger, senderID) {
		return
	}
	request, err := decodeRequest(data)
	if err != nil {
		logger.Warn("handlePlayTile: Invalid request from %s: %v", senderID, err)
		mh.sendError(state, dispatcher, logger, senderID, 400, err.Error())
		return
	}
	tile, err := domain.ParseTile(request.GetFields()["tile"].GetStringValue(), state.svc.conf.Match.MaxPip)
	if err != nil {
		mh.sendError(state, dispatcher, logger, senderID, 400, err.Error())
		return
	}

	events, err := state.Engine.Play(ctx, state.Round, senderID, tile)
	if err != nil {
		logger.Warn("handlePlayTile: User %s failed to play %s: %v", senderID, tile, err)
		mh.sendError(state, dispatcher, logger, senderID, errorCode(err), err.Error())
		return
	}
	mh.afterTurn(ctx, state, dispatcher, logger, events, nil)
}

func (mh *matchHandler) handleDrawTile(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, senderID string) {
	if !mh.canAct(state, dispatcher, logger, senderID) {
		return
	}
	_, events, err := state.Engine.Draw(ctx, state.Round, senderID)
	if err != nil {
		logger.Warn("handleDrawTile: User %s failed to draw: %v", senderID, err)
		mh.sendError(state, dispatcher, logger, senderID, errorCode(err), err.Error())
		return
	}
	// A draw keeps the turn, so the clock keeps running.
	mh.broadcastEvents(ctx, state, dispatcher, logger, events)
}

func (mh *matchHandler) handlePassTurn(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, senderID string) {
	if !mh.canAct(state, dispatcher, logger, senderID) {
		return
	}
	events, err := state.Engine.Pass(ctx, state.Round, senderID)
	if err != nil {
		logger.Warn("handlePassTurn: User %s failed to pass: %v", senderID, err)
		mh.sendError(state, dispatcher, logger, senderID, errorCode(err), err.Error())
		return
	}
	mh.afterTurn(ctx, state, dispatcher, logger, events, nil)
}

func (mh *matchHandler) canAct(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, senderID string) bool {
	if state.Round == nil || !state.playing() {
		mh.sendError(state, dispatcher, logger, senderID, errorCode(app.ErrRoundOver), "no round in progress")
		return false
	}
	return true
}

// afterTurn broadcasts the events of a decided turn, then either restarts
// the turn clock or settles the finished round.
func (mh *matchHandler) afterTurn(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, events []app.Event, err error) {
	mh.broadcastEvents(ctx, state, dispatcher, logger, events)
	if err != nil {
		logger.Error("afterTurn: Round %s failed: %v", state.Round.RoundID, err)
		mh.abandon(state, dispatcher, logger)
		return
	}
	if !state.Round.Phase.Terminal() {
		mh.resetTurnClock(state)
		return
	}

	rs := state.Round
	ended, err := state.Controller.CompleteRound(ctx, state.Match, rs)
	mh.broadcastEvents(ctx, state, dispatcher, logger, ended)
	state.Table.Forget(rs.RoundID)
	state.Round = nil
	mh.cacheResult(state)
	if err != nil {
		logger.Error("afterTurn: Failed to settle round %s: %v", rs.RoundID, err)
		if !errors.Is(err, domain.ErrResourceUnavailable) {
			mh.abandon(state, dispatcher, logger)
			return
		}
	}

	if state.Match.Phase == domain.MatchFinished {
		mh.updateLabel(state, dispatcher, logger)
		return
	}
	mh.startRound(ctx, state, dispatcher, logger)
}

// abandon drops the running match after an unrecoverable error and returns
// the table to the lobby.
func (mh *matchHandler) abandon(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	if state.Round != nil {
		state.Table.Forget(state.Round.RoundID)
	}
	if state.Match != nil && state.svc.results != nil {
		state.svc.results.ForgetResult(state.Match.ID)
	}
	state.Round = nil
	state.Match = nil
	for i, userID := range state.Seats {
		if _, present := state.Presences[userID]; !present {
			state.Seats[i] = ""
		}
	}
	mh.updateLabel(state, dispatcher, logger)
}

func (mh *matchHandler) resetTurnClock(state *MatchState) {
	if state.TurnTimeout > 0 {
		state.TurnDeadline = state.Tick + state.TurnTimeout
	}
}

func (mh *matchHandler) cacheResult(state *MatchState) {
	if state.Match == nil || state.svc.results == nil {
		return
	}
	state.svc.results.PutResult(state.Controller.MatchStatus(state.Match))
}

func (ms *MatchState) displayName(userID string) string {
	if name := ms.Names[userID]; name != "" {
		return name
	}
	return userID
}

// broadcastMatchState sends the seat snapshot to everyone in the match.
func (mh *matchHandler) broadcastMatchState(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	type playerState struct {
		UserID      string `json:"user_id"`
		Seat        int    `json:"seat"`
		DisplayName string `json:"display_name"`
		IsOwner     bool   `json:"is_owner"`
		IsBot       bool   `json:"is_bot"`
		Team        string `json:"team,omitempty"`
		TilesLeft   int    `json:"tiles_left"`
	}
	snapshot := struct {
		Seats     []string       `json:"seats"`
		OwnerSeat int            `json:"owner_seat"`
		Tick      int64          `json:"tick"`
		Players   []playerState  `json:"players"`
		Scores    map[string]int `json:"scores,omitempty"`
		Target    int            `json:"target_score"`
	}{
		Seats:     state.Seats[:state.TableSize],
		OwnerSeat: state.OwnerSeat,
		Tick:      state.Tick,
		Target:    state.TargetScore,
		Players:   []playerState{},
	}

	for i, userID := range state.Seats {
		if userID == "" {
			continue
		}
		ps := playerState{
			UserID:      userID,
			Seat:        i,
			DisplayName: state.displayName(userID),
			IsOwner:     i == state.OwnerSeat,
			IsBot:       bot.IsBot(userID),
		}
		if state.Match != nil {
			if seat := domain.SeatOf(state.Match.Players, userID); seat >= 0 {
				ps.Team = state.Match.Players[seat].Team
			}
		}
		if state.Round != nil {
			if hand, err := state.Engine.Hand(ctx, state.Round, userID); err == nil {
				ps.TilesLeft = len(hand)
			}
		}
		snapshot.Players = append(snapshot.Players, ps)
	}
	if state.Match != nil {
		snapshot.Scores = state.Match.Scores
	}

	bytes, err := encodeMessage(snapshot)
	if err != nil {
		logger.Error("broadcastMatchState: Failed to marshal: %v", err)
		return
	}
	dispatcher.BroadcastMessage(OpMatchState, bytes, nil, nil, true)
}

func (mh *matchHandler) broadcastEvents(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, events []app.Event) {
	for _, ev := range events {
		mh.broadcastEvent(ctx, state, dispatcher, logger, ev)
	}
}

// eventOpCodes maps app events to their server op codes.
var eventOpCodes = map[app.EventKind]int64{
	app.EventRoundStarted: OpRoundStarted,
	app.EventHandDealt:    OpHandDealt,
	app.EventTilePlayed:   OpTilePlayed,
	app.EventTileDrawn:    OpTileDrawn,
	app.EventTurnPassed:   OpTurnPassed,
	app.EventRoundEnded:   OpRoundEnded,
	app.EventMatchEnded:   OpMatchEnded,
}

// broadcastEvent handles the conversion and dispatching of app events to Nakama.
func (mh *matchHandler) broadcastEvent(ctx context.Context, state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, ev app.Event) {
	opCode, ok := eventOpCodes[ev.Kind]
	if !ok {
		logger.Warn("Unknown event kind: %v", ev.Kind)
		return
	}

	bytes, err := encodeMessage(ev.Payload)
	if err != nil {
		logger.Error("Failed to marshal event %v: %v", ev.Kind, err)
		return
	}

	// Determine recipients (default to broadcast)
	var recipients []runtime.Presence
	if len(ev.Recipients) > 0 {
		for _, uid := range ev.Recipients {
			if p, ok := state.Presences[uid]; ok {
				recipients = append(recipients, p)
			}
		}

		// Private events for absent players or bots go nowhere.
		if len(recipients) == 0 {
			return
		}
	}

	dispatcher.BroadcastMessage(opCode, bytes, recipients, nil, true)
}

// sendError sends an error event to a specific user.
func (mh *matchHandler) sendError(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, userID string, code int, message string) {
	bytes, err := encodeMessage(map[string]any{"code": code, "message": message})
	if err != nil {
		logger.Error("Failed to marshal error event: %v", err)
		return
	}

	presence, ok := state.Presences[userID]
	if !ok {
		logger.Warn("Cannot send error to %s: Presence not found", userID)
		return
	}

	dispatcher.BroadcastMessage(OpError, bytes, []runtime.Presence{presence}, nil, true)
}

// errorCode maps engine errors onto HTTP-like status codes for clients.
func errorCode(err error) int {
	switch {
	case errors.Is(err, app.ErrNotOwner), errors.Is(err, app.ErrNotYourTurn):
		return 403
	case errors.Is(err, app.ErrRoundOver), errors.Is(err, app.ErrMatchFinished):
		return 409
	case errors.Is(err, domain.ErrProtocolViolation), errors.Is(err, domain.ErrResourceUnavailable):
		return 500
	}
	return 400
}

func (mh *matchHandler) updateLabel(state *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	phase := phaseLobby
	switch {
	case state.playing():
		phase = phasePlaying
	case state.Match != nil:
		phase = phaseFinished
	}

	label, err := matchLabel(state.GetOpenSeatsCount(), phase)
	if err != nil {
		logger.Error("UpdateLabel: Failed to marshal: %v", err)
		return
	}
	if err := dispatcher.MatchLabelUpdate(label); err != nil {
		logger.Error("UpdateLabel: Failed to update: %v", err)
	}
}

func (mh *matchHandler) MatchTerminate(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, graceSeconds int) interface{} {
	logger.Debug("MatchTerminate: Match terminated with %d grace seconds", graceSeconds)
	if matchState, ok := state.(*MatchState); ok && matchState.Round != nil {
		matchState.Table.Forget(matchState.Round.RoundID)
	}
	return state
}

func (mh *matchHandler) MatchSignal(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, data string) (interface{}, string) {
	return state, ""
}

var _ runtime.Match = (*matchHandler)(nil)
