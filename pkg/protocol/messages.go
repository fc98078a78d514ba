package protocol

import "tacticsrpg/pkg/game"

// AuthPayload is the required first client frame.
type AuthPayload struct {
	Token string `json:"token"`
}

// SessionConfigWire is the client-supplied session configuration for create_session.
type SessionConfigWire struct {
	MaxPlayers         int    `json:"max_players"`
	TurnDeadlineSecond int    `json:"turn_deadline_seconds"`
	Difficulty         string `json:"difficulty"`
}

// CreateSessionPayload is the create_session request.
type CreateSessionPayload struct {
	Config SessionConfigWire `json:"config"`
}

// JoinSessionPayload is the join_session request.
type JoinSessionPayload struct {
	InviteCode  string `json:"invite_code"`
	CharacterID string `json:"character_id"`
}

// ReadyPayload is the ready request.
type ReadyPayload struct {
	Ready bool `json:"ready"`
}

// ActionWire is the wire form of a game action; Kind is restricted to the three
// client-issuable kinds (end_turn included; start_game/ready arrive as
// their own frame types, not as an intent action).
type ActionWire struct {
	Kind     string        `json:"kind"`
	UnitID   string        `json:"unit_id"`
	Target   *game.Position `json:"target,omitempty"`
	TargetID string        `json:"target_id,omitempty"`
}

// IntentPayload is the intent request.
type IntentPayload struct {
	Action ActionWire `json:"action"`
}

// DMCommandPayload is the dm_command request; Args holds command-specific
// fields, decoded again by the DM command layer per command name.
type DMCommandPayload struct {
	Command string                 `json:"command"`
	Args    map[string]interface{} `json:"args"`
}

// ChatPayload is the chat request.
type ChatPayload struct {
	Kind      string `json:"kind"`
	Recipient string `json:"recipient,omitempty"`
	Text      string `json:"text"`
}

// ResumeSyncPayload is the resume_sync request sent by a reconnecting client.
type ResumeSyncPayload struct {
	LastSeenVersion int64 `json:"last_seen_version"`
}

// HelloPayload is sent once, right after a successful auth handshake.
type HelloPayload struct {
	UserID       string   `json:"user_id"`
	Capabilities []string `json:"capabilities"`
}

// SessionCreatedPayload acknowledges create_session.
type SessionCreatedPayload struct {
	SessionID  string            `json:"session_id"`
	InviteCode string            `json:"invite_code"`
	Config     SessionConfigWire `json:"config"`
}

// ParticipantWire describes one session participant for client consumption.
type ParticipantWire struct {
	UserID      string `json:"user_id"`
	Role        string `json:"role"`
	CharacterID string `json:"character_id,omitempty"`
	Ready       bool   `json:"ready"`
	Connected   bool   `json:"connected"`
}

// SessionJoinedPayload acknowledges join_session.
type SessionJoinedPayload struct {
	SessionID    string            `json:"session_id"`
	Phase        string            `json:"phase"`
	Participants []ParticipantWire `json:"participants"`
}

// ParticipantUpdatePayload is broadcast whenever the participant set or a
// participant's flags change.
type ParticipantUpdatePayload struct {
	Participants []ParticipantWire `json:"participants"`
}

// FullStateSyncPayload replays the entire authoritative state to a client
// that just joined or reconnected.
type FullStateSyncPayload struct {
	State        game.GameState `json:"state"`
	StateVersion int64          `json:"state_version"`
}

// EventWire mirrors game.Event for the wire.
type EventWire struct {
	Type     string         `json:"type"`
	UnitID   string         `json:"unit_id,omitempty"`
	TargetID string         `json:"target_id,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// StateUpdatePayload is broadcast after every accepted mutation.
type StateUpdatePayload struct {
	Version int64       `json:"version"`
	Events  []EventWire `json:"events"`
}

// TurnChangePayload announces a new current turn.
type TurnChangePayload struct {
	CurrentUnitID string `json:"current_unit"`
	UserID        string `json:"user_id,omitempty"`
	DeadlineUnix  int64  `json:"deadline"`
}

// TurnTimeoutPayload reports an auto-ended turn.
type TurnTimeoutPayload struct {
	UserID string `json:"user_id"`
	UnitID string `json:"unit_id"`
}

// ChatEntryPayload is one delivered chat message.
type ChatEntryPayload struct {
	Author    string `json:"author"`
	Kind      string `json:"kind"`
	Recipient string `json:"recipient,omitempty"`
	Text      string `json:"text"`
	TSUnixMS  int64  `json:"ts"`
}

// DMEventPayload reports the effect of an executed DM command.
type DMEventPayload struct {
	Kind    string                 `json:"kind"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Version int64                  `json:"version,omitempty"`
}

// SessionEndedPayload is the terminal broadcast when a session transitions to ended.
type SessionEndedPayload struct {
	Reason string `json:"reason"`
}
