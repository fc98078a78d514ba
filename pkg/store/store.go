package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by any lookup operation that finds nothing.
var ErrNotFound = errors.New("store: not found")

// Role is a participant's role within a session.
type Role string

const (
	RoleDM     Role = "dm"
	RolePlayer Role = "player"
)

// Phase is a session's lifecycle phase.
type Phase string

const (
	PhaseLobby   Phase = "lobby"
	PhasePlaying Phase = "playing"
	PhasePaused  Phase = "paused"
	PhaseEnded   Phase = "ended"
)

// User is a stable identity established at first successful auth handshake.
type User struct {
	ID          string
	DisplayName string
	CreatedAt   time.Time
}

// Character belongs to exactly one user and is mutable only by its owner
// outside a session, or by DM commands inside one.
type Character struct {
	ID          string
	OwnerUserID string
	ClassTag    string
	Appearance  string
	BaseStats   CharacterStats
	XP          int
	Level       int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CharacterStats mirrors game.Stats without importing pkg/game, keeping the
// store's type surface independent of the simulation package.
type CharacterStats struct {
	HP          int
	MaxHP       int
	Attack      int
	Defense     int
	Initiative  int
	MoveRange   int
	AttackRange int
}

// SessionConfig is the host-chosen configuration fixed at creation and
// immutable once playing, except where DM commands explicitly allow change.
type SessionConfig struct {
	MaxPlayers         int
	TurnDeadlineSecond int
	Difficulty         string
}

// Session is the persisted row backing a live or historical game instance.
// GameState itself is not modeled here; it lives only in Snapshot blobs,
// since the store treats it as opaque.
type Session struct {
	ID           string
	InviteCode   string
	HostUserID   string
	Config       SessionConfig
	Phase        Phase
	StateVersion int64
	CreatedAt    time.Time
	EndedAt      *time.Time
}

// Participant is a (session, user) membership row.
type Participant struct {
	SessionID   string
	UserID      string
	Role        Role
	CharacterID *string
	Ready       bool
	Connected   bool
	JoinedAt    time.Time
}

// Snapshot is an opaque, versioned serialized GameState blob used for
// recovery and cold start.
type Snapshot struct {
	SessionID    string
	StateVersion int64
	State        []byte
	Timestamp    time.Time
}

// Store is the typed transactional gateway the session runtime depends on.
// It carries no business logic; every method either persists or retrieves
// exactly the row(s) named. Storage engine choice (file, postgres, ...) is
// opaque to callers.
type Store interface {
	CreateUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, id string) (User, error)

	CreateCharacter(ctx context.Context, c Character) error
	GetCharacter(ctx context.Context, id string) (Character, error)
	UpdateCharacter(ctx context.Context, c Character) error

	CreateSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, id string) (Session, error)
	GetSessionByInviteCode(ctx context.Context, code string) (Session, error)
	UpdateSession(ctx context.Context, s Session) error
	ListActiveSessions(ctx context.Context) ([]Session, error)

	UpsertParticipant(ctx context.Context, p Participant) error
	RemoveParticipant(ctx context.Context, sessionID, userID string) error
	ListParticipants(ctx context.Context, sessionID string) ([]Participant, error)

	PutSnapshot(ctx context.Context, snap Snapshot) error
	GetLatestSnapshot(ctx context.Context, sessionID string) (Snapshot, error)

	Close() error
}
