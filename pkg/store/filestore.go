package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"tacticsrpg/pkg/integration"
)

// FileStore is the zero-configuration Store backend: one YAML file per
// row, grouped by entity under dataDir, with atomic writes and flock-based
// locking so multiple processes never interleave a write. This is the
// default backend for dev, tests, and small deployments that don't want to
// run Postgres.
type FileStore struct {
	dataDir string
	mu      sync.RWMutex

	// inviteIndex maps invite code -> session id, rebuilt from disk when the
	// store is opened and kept current on every CreateSession/UpdateSession call.
	inviteIndex map[string]string
}

// NewFileStore creates a FileStore rooted at dataDir, creating the
// directory tree if needed.
func NewFileStore(dataDir string) (*FileStore, error) {
	logrus.WithFields(logrus.Fields{
		"function": "NewFileStore",
		"dataDir":  dataDir,
	}).Info("creating file store")

	for _, sub := range []string{"users", "characters", "sessions", "participants", "snapshots"} {
		if err := os.MkdirAll(filepath.Join(dataDir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	fs := &FileStore{dataDir: dataDir, inviteIndex: make(map[string]string)}
	if err := fs.rebuildInviteIndex(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileStore) rebuildInviteIndex() error {
	matches, err := filepath.Glob(filepath.Join(fs.dataDir, "sessions", "*.yaml"))
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	for _, match := range matches {
		var s Session
		if err := fs.readYAML(match, &s); err != nil {
			continue
		}
		if s.Phase != PhaseEnded {
			fs.inviteIndex[s.InviteCode] = s.ID
		}
	}
	return nil
}

func (fs *FileStore) path(entity, id string) string {
	return filepath.Join(fs.dataDir, entity, id+".yaml")
}

func (fs *FileStore) writeYAML(path string, v interface{}) error {
	lock, err := NewFileLock(path)
	if err != nil {
		return fmt.Errorf("create file lock: %w", err)
	}
	defer lock.Close()
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("acquire file lock: %w", err)
	}

	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	return AtomicWriteFile(path, data, 0o644)
}

func (fs *FileStore) readYAML(path string, v interface{}) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return ErrNotFound
	}

	lock, err := NewFileLock(path)
	if err != nil {
		return fmt.Errorf("create file lock: %w", err)
	}
	defer lock.Close()
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("acquire file lock: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	return yaml.Unmarshal(data, v)
}

func (fs *FileStore) CreateUser(ctx context.Context, u User) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.writeYAML(fs.path("users", u.ID), u)
}

func (fs *FileStore) GetUser(ctx context.Context, id string) (User, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	var u User
	err := fs.readYAML(fs.path("users", id), &u)
	return u, err
}

func (fs *FileStore) CreateCharacter(ctx context.Context, c Character) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.writeYAML(fs.path("characters", c.ID), c)
}

func (fs *FileStore) GetCharacter(ctx context.Context, id string) (Character, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	var c Character
	err := fs.readYAML(fs.path("characters", id), &c)
	return c, err
}

func (fs *FileStore) UpdateCharacter(ctx context.Context, c Character) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.writeYAML(fs.path("characters", c.ID), c)
}

func (fs *FileStore) CreateSession(ctx context.Context, s Session) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.writeYAML(fs.path("sessions", s.ID), s); err != nil {
		return err
	}
	fs.inviteIndex[s.InviteCode] = s.ID
	return nil
}

func (fs *FileStore) GetSession(ctx context.Context, id string) (Session, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	var s Session
	err := fs.readYAML(fs.path("sessions", id), &s)
	return s, err
}

func (fs *FileStore) GetSessionByInviteCode(ctx context.Context, code string) (Session, error) {
	fs.mu.RLock()
	id, ok := fs.inviteIndex[code]
	fs.mu.RUnlock()
	if !ok {
		return Session{}, ErrNotFound
	}
	return fs.GetSession(ctx, id)
}

func (fs *FileStore) UpdateSession(ctx context.Context, s Session) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.writeYAML(fs.path("sessions", s.ID), s); err != nil {
		return err
	}
	if s.Phase == PhaseEnded {
		delete(fs.inviteIndex, s.InviteCode)
	} else {
		fs.inviteIndex[s.InviteCode] = s.ID
	}
	return nil
}

func (fs *FileStore) ListActiveSessions(ctx context.Context) ([]Session, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	matches, err := filepath.Glob(filepath.Join(fs.dataDir, "sessions", "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	sessions := make([]Session, 0, len(matches))
	for _, match := range matches {
		var s Session
		if err := fs.readYAML(match, &s); err != nil {
			continue
		}
		if s.Phase != PhaseEnded {
			sessions = append(sessions, s)
		}
	}
	return sessions, nil
}

func (fs *FileStore) participantPath(sessionID, userID string) string {
	return filepath.Join(fs.dataDir, "participants", sessionID+"__"+userID+".yaml")
}

func (fs *FileStore) UpsertParticipant(ctx context.Context, p Participant) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.writeYAML(fs.participantPath(p.SessionID, p.UserID), p)
}

func (fs *FileStore) RemoveParticipant(ctx context.Context, sessionID, userID string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	path := fs.participantPath(sessionID, userID)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove participant: %w", err)
	}
	os.Remove(path + ".lock")
	return nil
}

func (fs *FileStore) ListParticipants(ctx context.Context, sessionID string) ([]Participant, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	matches, err := filepath.Glob(filepath.Join(fs.dataDir, "participants", sessionID+"__*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}

	participants := make([]Participant, 0, len(matches))
	for _, match := range matches {
		var p Participant
		if err := fs.readYAML(match, &p); err != nil {
			continue
		}
		participants = append(participants, p)
	}
	return participants, nil
}

// snapshotPath intentionally ignores state_version in the filename: only
// the latest snapshot per session is kept on disk, matching "latest
// snapshot is the recovery source."
func (fs *FileStore) snapshotPath(sessionID string) string {
	return filepath.Join(fs.dataDir, "snapshots", sessionID+".yaml")
}

// PutSnapshot writes the snapshot with resilience: retried with backoff and
// guarded by a circuit breaker, since this is the path the "three
// consecutive snapshot failures" force-pause rule watches.
func (fs *FileStore) PutSnapshot(ctx context.Context, snap Snapshot) error {
	return integration.ExecuteStoreOperation(ctx, func(ctx context.Context) error {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		return fs.writeYAML(fs.snapshotPath(snap.SessionID), snap)
	})
}

func (fs *FileStore) GetLatestSnapshot(ctx context.Context, sessionID string) (Snapshot, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	var snap Snapshot
	err := fs.readYAML(fs.snapshotPath(sessionID), &snap)
	return snap, err
}

func (fs *FileStore) Close() error {
	return nil
}
