package session

import "tacticsrpg/pkg/protocol"

// broadcastAll fans env out to every connected participant, preserving
// strict per-connection emission ordering (each Connection's own outbound
// queue is FIFO); the order in which participants are visited is not
// defined.
func (a *Actor) broadcastAll(typ protocol.Type, payload interface{}) {
	env := mustEncode(typ, payload)
	for _, p := range a.participants {
		if p.Connected && p.Conn != nil {
			p.Conn.Enqueue(env)
		}
	}
}

// broadcastExcept is broadcastAll but skips the named user, used after
// acking a join/attach to that user directly via a different payload.
func (a *Actor) broadcastExcept(userID string, typ protocol.Type, payload interface{}) {
	env := mustEncode(typ, payload)
	for uid, p := range a.participants {
		if uid == userID {
			continue
		}
		if p.Connected && p.Conn != nil {
			p.Conn.Enqueue(env)
		}
	}
}

// whisperTo delivers a chat entry to exactly one recipient.
func (a *Actor) whisperTo(recipient string, payload protocol.ChatEntryPayload) {
	p, ok := a.participants[recipient]
	if !ok || !p.Connected || p.Conn == nil {
		return
	}
	p.Conn.Enqueue(mustEncode(protocol.TypeChatEntry, payload))
}

// broadcastDMOnly delivers a payload to the host only.
func (a *Actor) broadcastDMOnly(payload interface{}) {
	p, ok := a.participants[a.hostUserID]
	if !ok || !p.Connected || p.Conn == nil {
		return
	}
	p.Conn.Enqueue(mustEncode(protocol.TypeChatEntry, payload))
}
