package session

import (
	"time"

	"tacticsrpg/pkg/connection"
	"tacticsrpg/pkg/game"
	"tacticsrpg/pkg/store"
)

// Participant is one session member: role, attached character, and
// connection state. Added on join, removed on leave; a DM kick mid-game is
// applied at the next turn boundary (Actor.pendingKicks) so the participant
// set stays fixed for the duration of any single turn.
type Participant struct {
	UserID      string
	Role        store.Role
	CharacterID string
	Ready       bool
	Connected   bool
	Conn        *connection.Connection
	JoinedAt    time.Time
}

// TurnState is the live per-turn bookkeeping reset at every transition.
type TurnState struct {
	CurrentUnitID     string
	MovementRemaining int
	HasActed          bool
	Deadline          time.Time
}

// ChatKind enumerates the chat entry kinds.
type ChatKind string

const (
	ChatBroadcast  ChatKind = "broadcast"
	ChatWhisper    ChatKind = "whisper"
	ChatDMAnnounce ChatKind = "dm_announce"
	ChatSystem     ChatKind = "system"
)

// ChatEntry is one ring-buffered chat line, author "" for system entries.
type ChatEntry struct {
	Author    string
	Kind      ChatKind
	Recipient string
	Text      string
	Timestamp time.Time
}

const chatRingSize = 100

// versionedEvent pairs one simulator event with the state_version it
// belongs to, so a reconnecting client can ask for "everything after
// last_seen_version".
type versionedEvent struct {
	Version int64
	Event   game.Event
}

const eventLogSize = 200

// MessageKind tags the inbox message variants.
type MessageKind string

const (
	MsgAttach          MessageKind = "attach"
	MsgDetach          MessageKind = "detach"
	MsgReady           MessageKind = "ready"
	MsgIntent          MessageKind = "intent"
	MsgDMCommand       MessageKind = "dm_command"
	MsgChat            MessageKind = "chat"
	MsgTimerTick       MessageKind = "timer_tick"
	MsgSnapshotRequest MessageKind = "snapshot_request"
)

// Message is the single tagged-union inbox entry every mutation to a
// session's state flows through. Only the fields relevant to Kind are
// populated; the actor documents which per switch case.
type Message struct {
	Kind MessageKind

	UserID string
	Conn   *connection.Connection

	// Seq carries the triggering frame's seq so error replies can quote it
	// as their correlation id; zero for timer ticks and other internal
	// messages with no originating frame.
	Seq int64

	// attach
	CharacterID     string
	LastSeenVersion int64
	Voluntary       bool // detach: true for an explicit leave_session, false for a dropped connection

	// ready
	Ready bool

	// intent
	Action game.Action

	// dm_command
	Command string
	Args    map[string]interface{}

	// chat
	Chat ChatEntry

	// reply is closed by the actor once the message has been fully
	// processed; Post's caller may use it to know an attach/detach was
	// applied before proceeding. Optional; nil for fire-and-forget kinds.
	reply chan struct{}
}
