package session

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"tacticsrpg/pkg/connection"
	"tacticsrpg/pkg/game"
	"tacticsrpg/pkg/protocol"
	"tacticsrpg/pkg/ratelimit"
	"tacticsrpg/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is a minimal in-memory store.Store for actor tests.
type fakeStore struct {
	mu           sync.Mutex
	sessions     map[string]store.Session
	characters   map[string]store.Character
	participants map[string]store.Participant
	snapshots    map[string]store.Snapshot
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions:     make(map[string]store.Session),
		characters:   make(map[string]store.Character),
		participants: make(map[string]store.Participant),
		snapshots:    make(map[string]store.Snapshot),
	}
}

func (f *fakeStore) CreateUser(ctx context.Context, u store.User) error { return nil }
func (f *fakeStore) GetUser(ctx context.Context, id string) (store.User, error) {
	return store.User{}, store.ErrNotFound
}
func (f *fakeStore) CreateCharacter(ctx context.Context, c store.Character) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.characters[c.ID] = c
	return nil
}
func (f *fakeStore) GetCharacter(ctx context.Context, id string) (store.Character, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.characters[id]
	if !ok {
		return store.Character{}, store.ErrNotFound
	}
	return c, nil
}
func (f *fakeStore) UpdateCharacter(ctx context.Context, c store.Character) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.characters[c.ID] = c
	return nil
}
func (f *fakeStore) CreateSession(ctx context.Context, s store.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.ID] = s
	return nil
}
func (f *fakeStore) GetSession(ctx context.Context, id string) (store.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return store.Session{}, store.ErrNotFound
	}
	return s, nil
}
func (f *fakeStore) GetSessionByInviteCode(ctx context.Context, code string) (store.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.InviteCode == code {
			return s, nil
		}
	}
	return store.Session{}, store.ErrNotFound
}
func (f *fakeStore) UpdateSession(ctx context.Context, s store.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.ID] = s
	return nil
}
func (f *fakeStore) ListActiveSessions(ctx context.Context) ([]store.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Session, 0, len(f.sessions))
	for _, s := range f.sessions {
		if s.Phase != store.PhaseEnded {
			out = append(out, s)
		}
	}
	return out, nil
}
func (f *fakeStore) UpsertParticipant(ctx context.Context, p store.Participant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.participants[p.SessionID+"/"+p.UserID] = p
	return nil
}
func (f *fakeStore) RemoveParticipant(ctx context.Context, sessionID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.participants, sessionID+"/"+userID)
	return nil
}
func (f *fakeStore) ListParticipants(ctx context.Context, sessionID string) ([]store.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Participant, 0)
	for _, p := range f.participants {
		if p.SessionID == sessionID {
			out = append(out, p)
		}
	}
	return out, nil
}
func (f *fakeStore) PutSnapshot(ctx context.Context, snap store.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[snap.SessionID] = snap
	return nil
}
func (f *fakeStore) GetLatestSnapshot(ctx context.Context, sessionID string) (store.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.snapshots[sessionID]
	if !ok {
		return store.Snapshot{}, store.ErrNotFound
	}
	return s, nil
}
func (f *fakeStore) Close() error { return nil }

func testCfg() Config {
	return Config{
		TurnDeadline:             50 * time.Millisecond,
		ReconnectWindow:          50 * time.Millisecond,
		OwnTurnDisconnectGrace:   20 * time.Millisecond,
		SessionIdleTimeout:       time.Hour,
		ActorInboxSize:           32,
		SnapshotMutationInterval: 1000,
		SnapshotFailureThreshold: 3,
	}
}

func newTestRegistry() (*Registry, *fakeStore) {
	st := newFakeStore()
	reg := NewRegistry(st, game.NewDefaultSimulator(), ratelimit.Limits{
		ActionPerMinute: 1000, ChatPerMinute: 1000, DMPerMinute: 1000,
	}, testCfg())
	return reg, st
}

// newTestConnection builds a Connection whose transport discards every
// write, just so Enqueue/SendError calls made while processing an inbox
// message have somewhere to go.
func newTestConnection(id string) *connection.Connection {
	return connection.New(id, discardTransport{}, noopRouter{}, connection.Config{
		AuthHandshakeTimeout: time.Second, PingInterval: time.Hour, PongTimeout: time.Second, OutboxSize: 64,
	})
}

type noopRouter struct{}

func (noopRouter) Authenticate(token string) (string, error) { return "", nil }
func (noopRouter) Dispatch(conn *connection.Connection, env protocol.Envelope) error { return nil }
func (noopRouter) Disconnect(conn *connection.Connection)                           {}

type discardTransport struct{}

func (discardTransport) ReadMessage() (int, []byte, error) { return 0, nil, nil }
func (discardTransport) WriteMessage(int, []byte) error    { return nil }
func (discardTransport) SetReadDeadline(time.Time) error   { return nil }
func (discardTransport) SetPongHandler(func(string) error) {}
func (discardTransport) Close() error                      { return nil }
func (discardTransport) RemoteAddr() net.Addr               { return &net.TCPAddr{} }

func TestRegistry_CreateAndJoinByInviteCode(t *testing.T) {
	reg, _ := newTestRegistry()
	actor, err := reg.Create(context.Background(), "host-1", store.SessionConfig{MaxPlayers: 4, TurnDeadlineSecond: 30})
	require.NoError(t, err)

	found, ok := reg.ByInviteCode(actor.InviteCode())
	require.True(t, ok)
	assert.Equal(t, actor.ID(), found.ID())
}

func TestActor_NonHostDMCommandForbidden(t *testing.T) {
	reg, _ := newTestRegistry()
	actor, err := reg.Create(context.Background(), "host-1", store.SessionConfig{MaxPlayers: 4, TurnDeadlineSecond: 30})
	require.NoError(t, err)

	conn := newTestConnection("c1")
	actor.Post(Message{Kind: MsgAttach, UserID: "player-1", Conn: conn, CharacterID: "char-1"})
	time.Sleep(20 * time.Millisecond)

	ok := actor.Post(Message{Kind: MsgDMCommand, UserID: "player-1", Conn: conn, Command: "end_game"})
	assert.True(t, ok)

	done := make(chan struct{})
	actor.Post(Message{Kind: MsgSnapshotRequest, reply: done})
	select {
	case <-done:
	case <-time.After(time.Second):
	}
	_, stillLive := reg.Lookup(actor.ID())
	assert.True(t, stillLive, "a non-host end_game must be rejected, leaving the session live")
}

func TestRatelimit_DMBucketIndependentFromAction(t *testing.T) {
	l := ratelimit.New(ratelimit.Limits{ActionPerMinute: 1, ChatPerMinute: 1, DMPerMinute: 1})
	d1 := l.Allow("u1", ratelimit.BucketAction)
	d2 := l.Allow("u1", ratelimit.BucketDM)
	assert.True(t, d1.Allowed)
	assert.True(t, d2.Allowed)
}

// TestActor_MovementAndActionResourceLimits exercises the per-turn
// resource check and turn-advance rule directly against a hand-built
// playing-phase actor: movement_remaining caps cumulative move distance
// within one turn, has_acted blocks a second attack, and the turn pointer
// only advances once both are exhausted.
func TestActor_MovementAndActionResourceLimits(t *testing.T) {
	reg, st := newTestRegistry()
	cfg := testCfg()
	cfg.TurnDeadline = time.Hour // keep the deadline timer from firing mid-test
	sim := game.NewDefaultSimulator()
	limiter := ratelimit.New(ratelimit.Limits{ActionPerMinute: 1000, ChatPerMinute: 1000, DMPerMinute: 1000})

	a := newActor("sess-1", "CODEAB", "dm-1", store.SessionConfig{MaxPlayers: 4}, st, sim, limiter, cfg, reg)
	a.phase = store.PhasePlaying
	a.participants["p1"] = &Participant{UserID: "p1", Role: store.RolePlayer, CharacterID: "u1"}
	a.participants["p2"] = &Participant{UserID: "p2", Role: store.RolePlayer, CharacterID: "u2"}
	a.state = game.GameState{
		Map: game.NewGameMap(10, 10),
		Units: []game.Unit{
			{ID: "u1", OwnerKind: game.OwnerPlayer, OwnerUserID: "p1", Position: game.Position{X: 0, Y: 0},
				Stats: game.Stats{HP: 20, MaxHP: 20, Attack: 10, Defense: 2, Initiative: 20, MoveRange: 4, AttackRange: 1}},
			{ID: "u2", OwnerKind: game.OwnerPlayer, OwnerUserID: "p2", Position: game.Position{X: 1, Y: 0},
				Stats: game.Stats{HP: 10, MaxHP: 10, Attack: 5, Defense: 1, Initiative: 10, MoveRange: 3, AttackRange: 1}},
		},
		Combat: game.CombatBlock{InitiativeOrder: []string{"u1", "u2"}, CurrentIndex: 0, Round: 1},
	}
	a.advanceTurn()
	require.Equal(t, "u1", a.turn.CurrentUnitID)
	require.Equal(t, 4, a.turn.MovementRemaining)
	require.False(t, a.turn.HasActed)

	// Move 3 tiles (0,0)->(3,0): within the 4-tile budget, 1 remains.
	a.process(Message{Kind: MsgIntent, UserID: "p1", Action: game.Action{Kind: game.ActionMove, UnitID: "u1", Target: &game.Position{X: 3, Y: 0}}})
	assert.Equal(t, 1, a.turn.MovementRemaining)
	assert.Equal(t, "u1", a.turn.CurrentUnitID, "turn must not advance on movement alone")

	// A further 2-tile move exceeds the 1 remaining and must be rejected outright.
	versionBefore := a.stateVersion
	a.process(Message{Kind: MsgIntent, UserID: "p1", Action: game.Action{Kind: game.ActionMove, UnitID: "u1", Target: &game.Position{X: 5, Y: 0}}})
	assert.Equal(t, versionBefore, a.stateVersion, "an over-budget move must not commit")
	assert.Equal(t, 1, a.turn.MovementRemaining)
	assert.Equal(t, game.Position{X: 3, Y: 0}, a.state.UnitByID("u1").Position)

	// Spend the last tile of movement moving adjacent to u2, then attack it.
	a.process(Message{Kind: MsgIntent, UserID: "p1", Action: game.Action{Kind: game.ActionMove, UnitID: "u1", Target: &game.Position{X: 2, Y: 0}}})
	require.Equal(t, 0, a.turn.MovementRemaining)

	a.process(Message{Kind: MsgIntent, UserID: "p1", Action: game.Action{Kind: game.ActionAttack, UnitID: "u1", TargetUnitID: "u2"}})
	assert.Equal(t, 1, a.state.UnitByID("u2").Stats.HP) // 10 hp - (10 attack - 1 defense) = 1

	// Both budgets exhausted: the turn must auto-advance to u2 without an
	// explicit end_turn intent.
	assert.Equal(t, "u2", a.turn.CurrentUnitID)
	assert.Equal(t, 3, a.turn.MovementRemaining)
	assert.False(t, a.turn.HasActed)

	// u2 attacks back: has_acted becomes true but movement is untouched, so
	// the turn must NOT advance yet.
	a.process(Message{Kind: MsgIntent, UserID: "p2", Action: game.Action{Kind: game.ActionAttack, UnitID: "u2", TargetUnitID: "u1"}})
	require.True(t, a.turn.HasActed)
	assert.Equal(t, "u2", a.turn.CurrentUnitID, "movement budget remains, so the turn must stay with u2")

	// A second attack this same turn must be rejected: has_acted is already true.
	versionAfterFirstAttack := a.stateVersion
	hpBefore := a.state.UnitByID("u1").Stats.HP
	a.process(Message{Kind: MsgIntent, UserID: "p2", Action: game.Action{Kind: game.ActionAttack, UnitID: "u2", TargetUnitID: "u1"}})
	assert.Equal(t, versionAfterFirstAttack, a.stateVersion, "a second attack in one turn must not commit")
	assert.Equal(t, hpBefore, a.state.UnitByID("u1").Stats.HP)
}
