package protocol

import (
	"encoding/json"
	"fmt"
)

// Type names every recognized frame type, both directions. The Connection
// rejects any inbound frame whose Type is not in ClientTypes.
type Type string

// Client -> Server frame types.
const (
	TypeAuth       Type = "auth"
	TypePing       Type = "ping"
	TypeCreateSess Type = "create_session"
	TypeJoinSess   Type = "join_session"
	TypeLeaveSess  Type = "leave_session"
	TypeReady      Type = "ready"
	TypeIntent     Type = "intent"
	TypeDMCommand  Type = "dm_command"
	TypeChat       Type = "chat"
	TypeResumeSync Type = "resume_sync"
)

// Server -> Client frame types.
const (
	TypePong           Type = "pong"
	TypeHello          Type = "hello"
	TypeError          Type = "error"
	TypeSessionCreated Type = "session_created"
	TypeSessionJoined  Type = "session_joined"
	TypeParticipantUpd Type = "participant_update"
	TypeFullStateSync  Type = "full_state_sync"
	TypeStateUpdate    Type = "state_update"
	TypeTurnChange     Type = "turn_change"
	TypeTurnTimeout    Type = "turn_timeout"
	TypeChatEntry      Type = "chat"
	TypeDMEvent        Type = "dm_event"
	TypeSessionEnded   Type = "session_ended"
)

// ClientTypes is the set of frame types a Connection accepts from a client
// after authentication. auth is handled specially during the handshake but
// is also listed here since a client may legally resend it only as the
// first frame.
var ClientTypes = map[Type]bool{
	TypeAuth:       true,
	TypePing:       true,
	TypeCreateSess: true,
	TypeJoinSess:   true,
	TypeLeaveSess:  true,
	TypeReady:      true,
	TypeIntent:     true,
	TypeDMCommand:  true,
	TypeChat:       true,
	TypeResumeSync: true,
}

// Envelope is the frame wrapper for every message in either direction:
// {type, payload, seq, ts}. Seq is the client-chosen monotonically
// increasing de-duplication counter (meaningless on server->client frames,
// where it is left at 0).
type Envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Seq     int64           `json:"seq"`
	TS      int64           `json:"ts"`
}

// Encode marshals a payload value into an Envelope of the given type. ts is
// passed in rather than taken from time.Now so callers (and tests) control
// it explicitly.
func Encode(typ Type, payload interface{}, seq int64, tsUnixMS int64) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("protocol: encode %s payload: %w", typ, err)
	}
	return Envelope{Type: typ, Payload: raw, Seq: seq, TS: tsUnixMS}, nil
}

// DecodePayload unmarshals an Envelope's payload into dst.
func DecodePayload(env Envelope, dst interface{}) error {
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return fmt.Errorf("protocol: decode %s payload: %w", env.Type, err)
	}
	return nil
}
