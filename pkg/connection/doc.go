// Package connection implements one logical client attachment: framed
// message I/O over a WebSocket-class transport, the authentication
// handshake, keepalive ping/pong, outbound backpressure, and close-reason
// bookkeeping.
//
// A Connection never mutates session state directly; authenticated frames
// are handed to a Router, which is how the Session Registry and Session
// Actor inboxes are reached without this package importing pkg/session,
// keeping the dependency direction server -> session -> connection ->
// protocol.
package connection
