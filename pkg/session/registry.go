package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"tacticsrpg/pkg/game"
	"tacticsrpg/pkg/ratelimit"
	"tacticsrpg/pkg/store"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Registry is the process-wide index of live Actors, keyed by session id,
// invite code, and (most recently attached) user. It owns no game state
// itself; every mutation still flows through the owning Actor's inbox.
type Registry struct {
	mu           sync.RWMutex
	sessions     map[string]*Actor
	byInviteCode map[string]string // invite code -> session id, non-ended sessions only
	byUser       map[string]string // user id -> most recently attached session id

	store     store.Store
	simulator game.Simulator
	limits    ratelimit.Limits
	cfg       Config

	stop     chan struct{}
	stopOnce sync.Once
}

// NewRegistry constructs a Registry. simulator is the Simulation Adapter
// collaborator every Actor invokes; store is the persistence gateway.
func NewRegistry(st store.Store, simulator game.Simulator, limits ratelimit.Limits, cfg Config) *Registry {
	r := &Registry{
		sessions:     make(map[string]*Actor),
		byInviteCode: make(map[string]string),
		byUser:       make(map[string]string),
		store:        st,
		simulator:    simulator,
		limits:       limits,
		cfg:          cfg,
		stop:         make(chan struct{}),
	}
	go r.idleReaper()
	return r
}

// Create starts a new Actor for host, persists its Session row, and
// registers it under a fresh invite code. The caller is responsible for
// posting the host's own attach message afterward.
func (r *Registry) Create(ctx context.Context, hostUserID string, wireCfg store.SessionConfig) (*Actor, error) {
	id := uuid.NewString()
	code, err := r.reserveInviteCode()
	if err != nil {
		return nil, err
	}

	sess := store.Session{
		ID:         id,
		InviteCode: code,
		HostUserID: hostUserID,
		Config:     wireCfg,
		Phase:      store.PhaseLobby,
		CreatedAt:  time.Now(),
	}
	if err := r.store.CreateSession(ctx, sess); err != nil {
		r.mu.Lock()
		delete(r.byInviteCode, code)
		r.mu.Unlock()
		return nil, fmt.Errorf("session: persist new session: %w", err)
	}

	actor := newActor(id, code, hostUserID, wireCfg, r.store, r.simulator, ratelimit.New(r.limits), r.cfg, r)
	go actor.run()

	r.mu.Lock()
	r.sessions[id] = actor
	r.byInviteCode[code] = id
	r.mu.Unlock()

	logrus.WithFields(logrus.Fields{"session_id": id, "host_user_id": hostUserID}).Info("session created")
	return actor, nil
}

// maxInviteCodeAttempts bounds the collision-retry loop in reserveInviteCode;
// with a 36-symbol alphabet and 6 characters the space is over two billion
// codes, so exhausting this many attempts means the non-ended session set is
// pathologically large rather than unlucky sampling.
const maxInviteCodeAttempts = 20

// reserveInviteCode samples a fresh 6-character code and reserves it in
// byInviteCode under the registry lock, resampling on collision against any
// non-ended session's code. The caller must fill in the real session id (or
// delete the reservation on failure) once it knows it.
func (r *Registry) reserveInviteCode() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 0; i < maxInviteCodeAttempts; i++ {
		code, err := newInviteCode()
		if err != nil {
			return "", fmt.Errorf("session: generate invite code: %w", err)
		}
		if _, collide := r.byInviteCode[code]; collide {
			continue
		}
		r.byInviteCode[code] = ""
		return code, nil
	}
	return "", fmt.Errorf("session: exhausted %d attempts allocating a unique invite code", maxInviteCodeAttempts)
}

// RestoreAll re-materializes every non-ended session from its latest
// snapshot: each comes back in the paused phase regardless of the phase
// it was persisted in, and a DM must explicitly resume it. Anything in flight at crash/shutdown time beyond the last
// snapshot is documented as lost, not replayed. Sessions with no snapshot
// yet (still in the lobby) are skipped entirely -- there is nothing to
// restore and the host simply recreates/rejoins.
func (r *Registry) RestoreAll(ctx context.Context) error {
	sessions, err := r.store.ListActiveSessions(ctx)
	if err != nil {
		return fmt.Errorf("session: list active sessions: %w", err)
	}
	for _, sess := range sessions {
		if sess.Phase == store.PhaseEnded {
			continue
		}
		snap, err := r.store.GetLatestSnapshot(ctx, sess.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				logrus.WithField("session_id", sess.ID).Info("session restore: no snapshot yet, skipping")
				continue
			}
			logrus.WithError(err).WithField("session_id", sess.ID).Error("session restore: failed to load snapshot")
			continue
		}
		state, err := unmarshalState(snap.State)
		if err != nil {
			logrus.WithError(err).WithField("session_id", sess.ID).Error("session restore: failed to decode snapshot")
			continue
		}
		participants, err := r.store.ListParticipants(ctx, sess.ID)
		if err != nil {
			logrus.WithError(err).WithField("session_id", sess.ID).Error("session restore: failed to load participants")
			continue
		}

		actor := newActor(sess.ID, sess.InviteCode, sess.HostUserID, sess.Config, r.store, r.simulator, ratelimit.New(r.limits), r.cfg, r)
		actor.createdAt = sess.CreatedAt
		actor.restoreSnapshot(snap, state, participants)
		actor.persistPhase()
		go actor.run()

		r.mu.Lock()
		r.sessions[sess.ID] = actor
		r.byInviteCode[sess.InviteCode] = sess.ID
		for _, p := range participants {
			r.byUser[p.UserID] = sess.ID
		}
		r.mu.Unlock()

		logrus.WithFields(logrus.Fields{"session_id": sess.ID, "state_version": snap.StateVersion}).Info("session restored from snapshot, paused")
	}
	return nil
}

// Lookup returns the live Actor for id, if any.
func (r *Registry) Lookup(id string) (*Actor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.sessions[id]
	return a, ok
}

// ByInviteCode resolves a join_session invite code to its live Actor.
func (r *Registry) ByInviteCode(code string) (*Actor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byInviteCode[code]
	if !ok {
		return nil, false
	}
	a, ok := r.sessions[id]
	return a, ok
}

// ByUser resolves a resume_sync frame (no invite code) to the session the
// user was most recently attached to.
func (r *Registry) ByUser(userID string) (*Actor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byUser[userID]
	if !ok {
		return nil, false
	}
	a, ok := r.sessions[id]
	return a, ok
}

// noteAttachment records that userID most recently attached to sessionID,
// called by an Actor after it accepts an attach message.
func (r *Registry) noteAttachment(userID, sessionID string) {
	r.mu.Lock()
	r.byUser[userID] = sessionID
	r.mu.Unlock()
}

// dispose removes id from every index once its Actor has fully shut down,
// called by the Actor itself as the last step of its run loop.
func (r *Registry) dispose(id, inviteCode string) {
	r.mu.Lock()
	delete(r.sessions, id)
	delete(r.byInviteCode, inviteCode)
	for user, sid := range r.byUser {
		if sid == id {
			delete(r.byUser, user)
		}
	}
	r.mu.Unlock()
	logrus.WithField("session_id", id).Info("session disposed")
}

// idleReaper periodically asks every live Actor whether it has sat empty
// past SessionIdleTimeout and, if so, tells it to end itself.
func (r *Registry) idleReaper() {
	interval := r.cfg.SessionIdleTimeout / 4
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.mu.RLock()
			actors := make([]*Actor, 0, len(r.sessions))
			for _, a := range r.sessions {
				actors = append(actors, a)
			}
			r.mu.RUnlock()
			for _, a := range actors {
				a.checkIdle(r.cfg.SessionIdleTimeout)
			}
		}
	}
}

// Close stops the idle reaper. Live Actors are left running; callers that
// want a full shutdown should end each session explicitly first.
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.stop) })
}

const inviteCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func newInviteCode() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, len(buf))
	for i, b := range buf {
		out[i] = inviteCodeAlphabet[int(b)%len(inviteCodeAlphabet)]
	}
	return string(out), nil
}
