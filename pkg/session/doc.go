// Package session implements the session runtime: the Session Registry
// (process-wide index of live sessions by id and invite code) and the
// Session Actor (the single-writer owner of one session's participants,
// game state, turn machine, and chat ring).
//
// Every mutation to a session flows through its Actor's inbox, processed
// one message at a time by a dedicated goroutine, a single-writer design
// in place of a shared mutex guarding combat/session state. Connections
// and the registry never touch an actor's fields directly; they only ever
// post a Message.
package session
