package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tacticsrpg/pkg/connection"
	"tacticsrpg/pkg/game"
	"tacticsrpg/pkg/integration"
	"tacticsrpg/pkg/protocol"
	"tacticsrpg/pkg/ratelimit"
	"tacticsrpg/pkg/store"

	"github.com/sirupsen/logrus"
)

// Actor is the single-writer owner of one session's participants, game
// state, turn machine, and chat ring. Every field below except those
// documented otherwise is touched only by the goroutine running run();
// everyone else communicates by posting a Message to inbox.
type Actor struct {
	id         string
	inviteCode string
	hostUserID string
	maxPlayers int
	wireConfig store.SessionConfig
	createdAt  time.Time

	store     store.Store
	simulator game.Simulator
	limiter   *ratelimit.Limiter
	cfg       Config
	registry  *Registry

	inbox chan Message
	done  chan struct{}

	log *logrus.Entry

	phase        store.Phase
	stateVersion int64
	state        game.GameState
	turn         TurnState
	participants map[string]*Participant
	chat         []ChatEntry
	events       []versionedEvent

	mutationsSinceSnapshot      int
	consecutiveSnapshotFailures int

	turnTimer        *time.Timer
	pausedRemaining  time.Duration
	lastEmptyAt      time.Time
	disconnectGraces map[string]*time.Timer
	ownTurnGraces    map[string]*time.Timer
	pendingKicks     map[string]struct{}

	// pendingInitiativeRecompute defers the roster-change initiative
	// recompute a spawn_monster triggered to the next turn boundary;
	// applyPendingKicks clears it once the recompute runs.
	pendingInitiativeRecompute bool
}

func newActor(id, inviteCode, hostUserID string, wireCfg store.SessionConfig, st store.Store, sim game.Simulator, limiter *ratelimit.Limiter, cfg Config, reg *Registry) *Actor {
	deadline := cfg.TurnDeadline
	if wireCfg.TurnDeadlineSecond > 0 {
		deadline = time.Duration(wireCfg.TurnDeadlineSecond) * time.Second
	}
	cfgCopy := cfg
	cfgCopy.TurnDeadline = deadline

	inboxSize := cfg.ActorInboxSize
	if inboxSize <= 0 {
		inboxSize = 256
	}

	return &Actor{
		id:               id,
		inviteCode:       inviteCode,
		hostUserID:       hostUserID,
		maxPlayers:       wireCfg.MaxPlayers,
		wireConfig:       wireCfg,
		createdAt:        time.Now(),
		store:            st,
		simulator:        sim,
		limiter:          limiter,
		cfg:              cfgCopy,
		registry:         reg,
		inbox:            make(chan Message, inboxSize),
		done:             make(chan struct{}),
		log:              logrus.WithField("session_id", id),
		phase:            store.PhaseLobby,
		participants:     make(map[string]*Participant),
		disconnectGraces: make(map[string]*time.Timer),
		ownTurnGraces:    make(map[string]*time.Timer),
		pendingKicks:     make(map[string]struct{}),
		lastEmptyAt:      time.Now(),
	}
}

// restoreSnapshot rebuilds a just-constructed Actor's game state from the
// session's latest persisted snapshot and participant rows, as part of
// the server-restart recovery path: the session always comes back
// paused, its state accurate only up to the last snapshot, with nothing
// in flight at crash time replayed.
func (a *Actor) restoreSnapshot(snap store.Snapshot, state game.GameState, participants []store.Participant) {
	a.phase = store.PhasePaused
	a.stateVersion = snap.StateVersion
	a.state = state
	for _, p := range participants {
		charID := ""
		if p.CharacterID != nil {
			charID = *p.CharacterID
		}
		a.participants[p.UserID] = &Participant{
			UserID:      p.UserID,
			Role:        p.Role,
			CharacterID: charID,
			Ready:       p.Ready,
			Connected:   false,
			JoinedAt:    p.JoinedAt,
		}
	}
	if cu := a.state.Combat.CurrentUnitID(); cu != "" {
		a.turn.CurrentUnitID = cu
	}
}

// ID returns the session id.
func (a *Actor) ID() string { return a.id }

// InviteCode returns the session's join code.
func (a *Actor) InviteCode() string { return a.inviteCode }

// Post enqueues msg for processing, without blocking. Returns false if the
// inbox is full, in which case the caller should report SERVER_BUSY.
func (a *Actor) Post(msg Message) bool {
	select {
	case a.inbox <- msg:
		return true
	default:
		a.log.Warn("actor inbox full, rejecting message")
		return false
	}
}

// run is the actor's single goroutine: it processes inbox messages
// strictly sequentially until told to end, then disposes itself from the
// registry.
func (a *Actor) run() {
	for {
		select {
		case <-a.done:
			a.shutdown()
			return
		case msg := <-a.inbox:
			a.process(msg)
		}
	}
}

func (a *Actor) process(msg Message) {
	defer func() {
		if msg.reply != nil {
			close(msg.reply)
		}
	}()

	switch msg.Kind {
	case MsgAttach:
		a.handleAttach(msg)
	case MsgDetach:
		a.handleDetach(msg)
	case MsgReady:
		a.handleReady(msg)
	case MsgIntent:
		a.handleIntent(msg)
	case MsgDMCommand:
		a.handleDMCommand(msg)
	case MsgChat:
		a.handleChat(msg)
	case MsgTimerTick:
		a.handleTimerTick(msg)
	case MsgSnapshotRequest:
		a.handleSnapshotRequest(msg)
	default:
		a.log.WithField("kind", msg.Kind).Warn("actor: unhandled message kind")
	}
}

// checkIdle ends the session if it has had zero connected participants for
// longer than idleTimeout. Called from the registry's reaper goroutine, so
// it posts rather than touching actor state directly.
func (a *Actor) checkIdle(idleTimeout time.Duration) {
	if idleTimeout <= 0 {
		return
	}
	select {
	case a.inbox <- Message{Kind: MsgTimerTick, Command: "idle_check"}:
	default:
	}
}

func (a *Actor) anyoneConnected() bool {
	for _, p := range a.participants {
		if p.Connected {
			return true
		}
	}
	return false
}

// handleAttach covers both a fresh join (character_id set, user not yet a
// participant) and a reconnect (user already a participant, possibly after
// a connection drop) through the same single attach message variant.
func (a *Actor) handleAttach(msg Message) {
	if a.phase == store.PhaseEnded {
		msg.Conn.SendError(protocol.CodeAlreadyEnded, "session has ended", 0, msg.Seq)
		return
	}

	existing, isReconnect := a.participants[msg.UserID]

	if !isReconnect {
		if len(a.participants) >= a.maxPlayers && a.maxPlayers > 0 {
			msg.Conn.SendError(protocol.CodeSessionFull, "session is full", 0, msg.Seq)
			return
		}
		role := store.RolePlayer
		if msg.UserID == a.hostUserID {
			role = store.RoleDM
		}
		p := &Participant{
			UserID:      msg.UserID,
			Role:        role,
			CharacterID: msg.CharacterID,
			Connected:   true,
			Conn:        msg.Conn,
			JoinedAt:    time.Now(),
		}
		a.participants[msg.UserID] = p
		a.persistParticipant(p)

		a.registry.noteAttachment(msg.UserID, a.id)

		msg.Conn.Enqueue(mustEncode(protocol.TypeSessionJoined, protocol.SessionJoinedPayload{
			SessionID:    a.id,
			Phase:        string(a.phase),
			Participants: a.participantsWire(),
		}))
		a.broadcastExcept(msg.UserID, protocol.TypeParticipantUpd, protocol.ParticipantUpdatePayload{Participants: a.participantsWire()})
		a.log.WithField("user_id", msg.UserID).Info("participant joined")
		return
	}

	existing.Connected = true
	existing.Conn = msg.Conn
	a.registry.noteAttachment(msg.UserID, a.id)
	a.cancelDisconnectGrace(msg.UserID)
	a.cancelOwnTurnGrace(msg.UserID)

	msg.Conn.Enqueue(mustEncode(protocol.TypeFullStateSync, protocol.FullStateSyncPayload{
		State:        a.state,
		StateVersion: a.stateVersion,
	}))
	if msg.LastSeenVersion > 0 {
		a.replayEvents(msg.Conn, msg.LastSeenVersion)
	}
	a.broadcastExcept(msg.UserID, protocol.TypeParticipantUpd, protocol.ParticipantUpdatePayload{Participants: a.participantsWire()})
	a.log.WithField("user_id", msg.UserID).Info("participant reconnected")
}

// handleDetach marks a participant disconnected (dropped connection) or
// vacates their seat (voluntary leave), starting the reconnect grace timer
// in the former case. A voluntary leave mid-game is deferred to the next
// turn boundary through the same pendingKicks path a DM kick uses; outside
// playing the seat empties immediately.
func (a *Actor) handleDetach(msg Message) {
	p, ok := a.participants[msg.UserID]
	if !ok {
		return
	}

	if msg.Voluntary {
		a.cancelDisconnectGrace(msg.UserID)
		a.cancelOwnTurnGrace(msg.UserID)
		p.Connected = false
		p.Conn = nil
		if a.phase == store.PhasePlaying {
			// Leaving mid-game takes effect at the next turn boundary, the
			// same deferral a DM kick gets, so the participant set and
			// initiative order stay fixed for the turn in progress.
			a.pendingKicks[msg.UserID] = struct{}{}
		} else {
			delete(a.participants, msg.UserID)
		}
		a.broadcastExcept("", protocol.TypeParticipantUpd, protocol.ParticipantUpdatePayload{Participants: a.participantsWire()})
		a.maybeGoIdle()
		return
	}

	p.Connected = false
	p.Conn = nil
	a.broadcastExcept("", protocol.TypeParticipantUpd, protocol.ParticipantUpdatePayload{Participants: a.participantsWire()})

	if _, kicked := a.pendingKicks[msg.UserID]; kicked {
		a.maybeGoIdle()
		return
	}

	if p.Role == store.RoleDM {
		a.pauseForDisconnectedHost()
	} else if a.phase == store.PhasePlaying && a.turn.CurrentUnitID != "" {
		if unit := a.state.UnitByID(a.turn.CurrentUnitID); unit != nil && unit.OwnerUserID == msg.UserID {
			a.scheduleOwnTurnGrace(msg.UserID)
		}
	}

	a.scheduleDisconnectGrace(msg.UserID)
	a.maybeGoIdle()
}

// handleReady toggles a player's lobby ready flag. Only meaningful in the
// lobby phase; the DM has no ready flag of their own to toggle since
// start_game itself is their signal that the table is set.
func (a *Actor) handleReady(msg Message) {
	p, ok := a.participants[msg.UserID]
	if !ok {
		return
	}
	if a.phase != store.PhaseLobby {
		if msg.Conn != nil {
			msg.Conn.SendError(protocol.CodeInvalidAction, "session is not in lobby", 0, msg.Seq)
		}
		return
	}
	if p.Role == store.RoleDM {
		return
	}
	p.Ready = msg.Ready
	a.persistParticipant(p)
	a.broadcastAll(protocol.TypeParticipantUpd, protocol.ParticipantUpdatePayload{Participants: a.participantsWire()})
}

func (a *Actor) maybeGoIdle() {
	if !a.anyoneConnected() {
		a.lastEmptyAt = time.Now()
	}
}

func (a *Actor) scheduleDisconnectGrace(userID string) {
	a.cancelDisconnectGrace(userID)
	window := a.cfg.ReconnectWindow
	if window <= 0 {
		return
	}
	t := time.AfterFunc(window, func() {
		select {
		case a.inbox <- Message{Kind: MsgTimerTick, Command: "reconnect_grace_expired", UserID: userID}:
		case <-a.done:
		}
	})
	a.disconnectGraces[userID] = t
}

// scheduleOwnTurnGrace arms the short (default 10s) grace window for a
// disconnect landing during the disconnected user's own turn: on expiry it
// posts an early timer_tick so the turn auto-ends well before the much
// longer ReconnectWindow would otherwise hold the seat open. Distinct from
// scheduleDisconnectGrace, which governs when a dropped seat is treated as
// abandoned, not when the turn clock fires.
func (a *Actor) scheduleOwnTurnGrace(userID string) {
	a.cancelOwnTurnGrace(userID)
	window := a.cfg.OwnTurnDisconnectGrace
	if window <= 0 {
		return
	}
	t := time.AfterFunc(window, func() {
		select {
		case a.inbox <- Message{Kind: MsgTimerTick, Command: "own_turn_grace_expired", UserID: userID}:
		case <-a.done:
		}
	})
	a.ownTurnGraces[userID] = t
}

func (a *Actor) cancelOwnTurnGrace(userID string) {
	if t, ok := a.ownTurnGraces[userID]; ok {
		t.Stop()
		delete(a.ownTurnGraces, userID)
	}
}

func (a *Actor) cancelDisconnectGrace(userID string) {
	if t, ok := a.disconnectGraces[userID]; ok {
		t.Stop()
		delete(a.disconnectGraces, userID)
	}
}

// handleIntent validates and executes one gameplay action through the
// Simulation Adapter, re-checking invariants before committing.
func (a *Actor) handleIntent(msg Message) {
	p, ok := a.participants[msg.UserID]
	if !ok {
		return
	}
	if msg.Conn != nil {
		if d := a.limiter.Allow(msg.UserID, ratelimit.BucketAction); !d.Allowed {
			msg.Conn.SendError(protocol.CodeRateLimited, "action rate limit exceeded", d.RetryAfterMS, msg.Seq)
			return
		}
	}

	if a.phase != store.PhasePlaying {
		if msg.Conn != nil {
			msg.Conn.SendError(protocol.CodeInvalidAction, "session is not in progress", 0, msg.Seq)
		}
		return
	}

	if !a.ownsUnit(p, msg.Action.UnitID) {
		if msg.Conn != nil {
			msg.Conn.SendError(protocol.CodeForbidden, "not your unit", 0, msg.Seq)
		}
		return
	}
	if msg.Action.UnitID != a.turn.CurrentUnitID {
		if msg.Conn != nil {
			msg.Conn.SendError(protocol.CodeNotYourTurn, "it is not this unit's turn", 0, msg.Seq)
		}
		return
	}

	moveDistance := 0
	switch msg.Action.Kind {
	case game.ActionMove:
		unit := a.state.UnitByID(msg.Action.UnitID)
		if unit == nil || msg.Action.Target == nil {
			if msg.Conn != nil {
				msg.Conn.SendError(protocol.CodeInvalidAction, "move requires a target", 0, msg.Seq)
			}
			return
		}
		moveDistance = game.ChebyshevDistance(unit.Position, *msg.Action.Target)
		if moveDistance > a.turn.MovementRemaining {
			if msg.Conn != nil {
				msg.Conn.SendError(protocol.CodeInvalidAction, "not enough movement remaining", 0, msg.Seq)
			}
			return
		}
	case game.ActionAttack:
		if a.turn.HasActed {
			if msg.Conn != nil {
				msg.Conn.SendError(protocol.CodeInvalidAction, "unit has already acted this turn", 0, msg.Seq)
			}
			return
		}
	}

	next, events, err := a.simulator.ApplyAction(a.state, msg.Action)
	if err != nil {
		if msg.Conn != nil {
			msg.Conn.SendError(protocol.CodeInvalidAction, err.Error(), 0, msg.Seq)
		}
		return
	}
	if err := next.CheckInvariants(); err != nil {
		a.log.WithError(err).Error("simulation step violated invariants, pausing session")
		a.phase = store.PhasePaused
		a.persistPhase()
		a.broadcastAll(protocol.TypeError, protocol.NewError(protocol.CodeInternalSimViol, "simulation invariant violated", 0, 0))
		return
	}

	a.state = next
	a.commitMutation(events)

	switch msg.Action.Kind {
	case game.ActionMove:
		a.turn.MovementRemaining -= moveDistance
	case game.ActionAttack:
		a.turn.HasActed = true
	}

	switch {
	case msg.Action.Kind == game.ActionEndTurn:
		// applyAction above already advanced the initiative pointer itself.
		a.advanceTurn()
	case a.turn.MovementRemaining <= 0 && a.turn.HasActed:
		// Budget exhausted without an explicit end_turn: synthesize the
		// implicit one so the initiative pointer actually moves rather than
		// just re-reading itself.
		a.autoEndTurn(msg.Action.UnitID)
	}
}

// autoEndTurn executes an implicit end_turn for unitID through the
// Simulation Adapter when a turn's resource budget runs out without the
// client sending an explicit end_turn intent.
func (a *Actor) autoEndTurn(unitID string) {
	next, events, err := a.simulator.ApplyAction(a.state, game.Action{Kind: game.ActionEndTurn, UnitID: unitID})
	if err != nil {
		a.log.WithError(err).Warn("implicit end_turn failed")
		return
	}
	a.state = next
	a.commitMutation(events)
	a.advanceTurn()
}

// applyPendingKicks removes any participant marked for kick by dmKickPlayer
// while the session was mid-turn, along with their unit, and recomputes
// initiative if a unit actually left the field or a spawn_monster call is
// still waiting on one (pendingInitiativeRecompute). Called only at turn
// boundaries (advanceTurn) so the participant set and initiative order stay
// fixed for the duration of any single turn.
func (a *Actor) applyPendingKicks() {
	needRecompute := a.pendingInitiativeRecompute
	a.pendingInitiativeRecompute = false

	if len(a.pendingKicks) > 0 {
		for userID := range a.pendingKicks {
			p, ok := a.participants[userID]
			delete(a.pendingKicks, userID)
			if !ok {
				continue
			}
			delete(a.participants, userID)
			if p.CharacterID != "" {
				for i, u := range a.state.Units {
					if u.ID == p.CharacterID {
						a.state.Units = append(a.state.Units[:i], a.state.Units[i+1:]...)
						needRecompute = true
						break
					}
				}
			}
		}
		a.broadcastExcept("", protocol.TypeParticipantUpd, protocol.ParticipantUpdatePayload{Participants: a.participantsWire()})
	}
	if needRecompute {
		game.ComputeInitiative(&a.state)
	}
}

func (a *Actor) ownsUnit(p *Participant, unitID string) bool {
	if p.Role == store.RoleDM {
		return true
	}
	return p.CharacterID == unitID
}

// commitMutation bumps the state version, appends to the bounded event
// log, broadcasts the resulting state_update, and persists a snapshot
// every SnapshotMutationInterval mutations.
func (a *Actor) commitMutation(events []game.Event) {
	a.stateVersion++
	for _, ev := range events {
		a.events = append(a.events, versionedEvent{Version: a.stateVersion, Event: ev})
	}
	if len(a.events) > eventLogSize {
		a.events = a.events[len(a.events)-eventLogSize:]
	}

	wire := make([]protocol.EventWire, len(events))
	for i, ev := range events {
		wire[i] = protocol.EventWire{Type: string(ev.Type), UnitID: ev.UnitID, TargetID: ev.TargetID, Data: ev.Data}
	}
	a.broadcastAll(protocol.TypeStateUpdate, protocol.StateUpdatePayload{Version: a.stateVersion, Events: wire})

	a.mutationsSinceSnapshot++
	if a.mutationsSinceSnapshot >= a.snapshotInterval() {
		a.persistSnapshot()
	}
}

func (a *Actor) snapshotInterval() int {
	if a.cfg.SnapshotMutationInterval > 0 {
		return a.cfg.SnapshotMutationInterval
	}
	return 25
}

func (a *Actor) handleChat(msg Message) {
	if msg.Conn != nil {
		if d := a.limiter.Allow(msg.UserID, ratelimit.BucketChat); !d.Allowed {
			msg.Conn.SendError(protocol.CodeRateLimited, "chat rate limit exceeded", d.RetryAfterMS, msg.Seq)
			return
		}
	}

	entry := msg.Chat
	entry.Author = msg.UserID
	entry.Timestamp = time.Now()
	a.chat = append(a.chat, entry)
	if len(a.chat) > chatRingSize {
		a.chat = a.chat[len(a.chat)-chatRingSize:]
	}

	payload := protocol.ChatEntryPayload{
		Author:    entry.Author,
		Kind:      string(entry.Kind),
		Recipient: entry.Recipient,
		Text:      entry.Text,
		TSUnixMS:  entry.Timestamp.UnixMilli(),
	}

	switch entry.Kind {
	case ChatWhisper:
		a.whisperTo(entry.Recipient, payload)
	case ChatDMAnnounce:
		a.broadcastDMOnly(payload)
	default:
		a.broadcastAll(protocol.TypeChatEntry, payload)
	}
}

func (a *Actor) handleTimerTick(msg Message) {
	switch msg.Command {
	case "turn_deadline":
		a.onTurnTimeout()
	case "reconnect_grace_expired":
		a.onReconnectGraceExpired(msg.UserID)
	case "own_turn_grace_expired":
		a.onOwnTurnGraceExpired(msg.UserID)
	case "idle_check":
		if a.cfg.SessionIdleTimeout > 0 && !a.anyoneConnected() && time.Since(a.lastEmptyAt) >= a.cfg.SessionIdleTimeout {
			a.endSession("idle")
		}
	}
}

func (a *Actor) onReconnectGraceExpired(userID string) {
	p, ok := a.participants[userID]
	if !ok || p.Connected {
		return
	}
	delete(a.disconnectGraces, userID)
	a.log.WithField("user_id", userID).Info("reconnect window expired, seat remains disconnected")
	a.maybeGoIdle()
}

// onOwnTurnGraceExpired fires the disconnect-during-own-turn path: if
// userID is still disconnected and the turn hasn't already moved on (by an
// intent racing this timer, or the unit dying), force the same early
// timer_tick auto-end onTurnTimeout would perform for an ordinary deadline
// expiry.
func (a *Actor) onOwnTurnGraceExpired(userID string) {
	delete(a.ownTurnGraces, userID)
	p, ok := a.participants[userID]
	if !ok || p.Connected {
		return
	}
	if a.phase != store.PhasePlaying || a.turn.CurrentUnitID == "" {
		return
	}
	unit := a.state.UnitByID(a.turn.CurrentUnitID)
	if unit == nil || unit.OwnerUserID != userID {
		return
	}
	a.log.WithField("user_id", userID).Info("own-turn disconnect grace expired, forcing turn end")
	a.onTurnTimeout()
}

func (a *Actor) handleSnapshotRequest(msg Message) {
	a.persistSnapshot()
}

func (a *Actor) persistSnapshot() {
	data, err := marshalState(a.state)
	if err != nil {
		a.log.WithError(err).Error("failed to marshal snapshot")
		return
	}
	snap := store.Snapshot{SessionID: a.id, StateVersion: a.stateVersion, State: data, Timestamp: time.Now()}

	err = integration.ExecuteStoreOperation(context.Background(), func(ctx context.Context) error {
		return a.store.PutSnapshot(ctx, snap)
	})
	if err != nil {
		a.consecutiveSnapshotFailures++
		a.log.WithError(err).WithField("consecutive_failures", a.consecutiveSnapshotFailures).Error("snapshot persistence failed")
		if a.consecutiveSnapshotFailures >= a.snapshotFailureThreshold() && a.phase == store.PhasePlaying {
			a.log.Error("forcing session into paused phase after repeated snapshot failures")
			a.phase = store.PhasePaused
			a.persistPhase()
			a.broadcastAll(protocol.TypeError, protocol.NewError(protocol.CodeServerBusy, "persistence degraded, session paused", 0, 0))
		}
		return
	}

	a.mutationsSinceSnapshot = 0
	a.consecutiveSnapshotFailures = 0
}

func (a *Actor) snapshotFailureThreshold() int {
	if a.cfg.SnapshotFailureThreshold > 0 {
		return a.cfg.SnapshotFailureThreshold
	}
	return 3
}

func (a *Actor) persistParticipant(p *Participant) {
	var charID *string
	if p.CharacterID != "" {
		charID = &p.CharacterID
	}
	err := a.store.UpsertParticipant(context.Background(), store.Participant{
		SessionID:   a.id,
		UserID:      p.UserID,
		Role:        p.Role,
		CharacterID: charID,
		Ready:       p.Ready,
		Connected:   p.Connected,
		JoinedAt:    p.JoinedAt,
	})
	if err != nil {
		a.log.WithError(err).Warn("failed to persist participant")
	}
}

func (a *Actor) replayEvents(conn *connection.Connection, since int64) {
	wire := make([]protocol.EventWire, 0)
	version := since
	for _, ve := range a.events {
		if ve.Version <= since {
			continue
		}
		wire = append(wire, protocol.EventWire{Type: string(ve.Event.Type), UnitID: ve.Event.UnitID, TargetID: ve.Event.TargetID, Data: ve.Event.Data})
		version = ve.Version
	}
	if len(wire) > 0 {
		conn.Enqueue(mustEncode(protocol.TypeStateUpdate, protocol.StateUpdatePayload{Version: version, Events: wire}))
	}
}

func (a *Actor) participantsWire() []protocol.ParticipantWire {
	out := make([]protocol.ParticipantWire, 0, len(a.participants))
	for _, p := range a.participants {
		out = append(out, protocol.ParticipantWire{
			UserID:      p.UserID,
			Role:        string(p.Role),
			CharacterID: p.CharacterID,
			Ready:       p.Ready,
			Connected:   p.Connected,
		})
	}
	return out
}

// endSession finalizes the session: broadcasts session_ended, persists the
// terminal phase, and stops the run loop.
func (a *Actor) endSession(reason string) {
	a.phase = store.PhaseEnded
	a.stateVersion++
	now := time.Now()
	a.broadcastAll(protocol.TypeSessionEnded, protocol.SessionEndedPayload{Reason: reason})
	if err := a.store.UpdateSession(context.Background(), store.Session{
		ID: a.id, InviteCode: a.inviteCode, HostUserID: a.hostUserID, Config: a.wireConfig,
		Phase: store.PhaseEnded, StateVersion: a.stateVersion, CreatedAt: a.createdAt, EndedAt: &now,
	}); err != nil {
		a.log.WithError(err).Warn("failed to persist session end")
	}
	close(a.done)
}

// persistPhase writes the session's current phase and state version, used
// whenever the phase transitions so a server restart re-materializes
// sessions into the right lifecycle state.
func (a *Actor) persistPhase() {
	if err := a.store.UpdateSession(context.Background(), store.Session{
		ID: a.id, InviteCode: a.inviteCode, HostUserID: a.hostUserID, Config: a.wireConfig,
		Phase: a.phase, StateVersion: a.stateVersion, CreatedAt: a.createdAt,
	}); err != nil {
		a.log.WithError(err).Warn("failed to persist phase transition")
	}
}

func (a *Actor) shutdown() {
	a.cancelTurnTimer()
	for _, t := range a.disconnectGraces {
		t.Stop()
	}
	for _, t := range a.ownTurnGraces {
		t.Stop()
	}
	a.registry.dispose(a.id, a.inviteCode)
}

func mustEncode(typ protocol.Type, payload interface{}) protocol.Envelope {
	env, err := protocol.Encode(typ, payload, 0, time.Now().UnixMilli())
	if err != nil {
		logrus.WithError(err).Error("session: failed to encode broadcast envelope")
	}
	return env
}

func marshalState(state game.GameState) ([]byte, error) {
	b, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("session: marshal state: %w", err)
	}
	return b, nil
}

func unmarshalState(data []byte) (game.GameState, error) {
	var state game.GameState
	if err := json.Unmarshal(data, &state); err != nil {
		return game.GameState{}, fmt.Errorf("session: unmarshal state: %w", err)
	}
	return state, nil
}
