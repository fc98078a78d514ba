// Package validation checks client-supplied envelope payloads before they
// are turned into session actor messages.
//
// Two kinds of checking happen in this codebase, deliberately kept apart.
// This package owns shape and policy checks that hold regardless of game
// state: well-formed invite codes, known action/DM command names, chat text
// within bounds. The session actor (pkg/session) owns state-dependent game
// rules: turn ownership, movement budget, attack range. A payload that
// passes this package's checks can still be rejected by the actor as
// NOT_YOUR_TURN or INVALID_ACTION.
//
// # Validating an envelope
//
//	v := validation.New(validation.DefaultLimits())
//	if err := v.ValidateIntent(payload); err != nil {
//	    conn.SendError(protocol.CodeInvalidAction, err.Error(), 0, seq)
//	    return
//	}
//
// # Chat sanitization
//
// SanitizeChatText strips control characters and caps length at 500 runes,
// per the wire chat contract. Callers should sanitize before constructing a
// session.ChatEntry, not after.
package validation
