package session

import "time"

// Config bounds the timing and persistence behavior of every Actor the
// Registry creates, sourced from pkg/config.
type Config struct {
	TurnDeadline             time.Duration
	ReconnectWindow          time.Duration
	OwnTurnDisconnectGrace   time.Duration
	SessionIdleTimeout       time.Duration
	ActorInboxSize           int
	SnapshotMutationInterval int
	SnapshotFailureThreshold int
}
