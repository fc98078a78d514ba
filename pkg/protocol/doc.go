// Package protocol defines the wire format between a client and the
// session runtime: the message envelope, the full set of client→server and
// server→client payload types, and the stable error codes the server
// replies with.
//
// Framing is JSON text, one Envelope per frame: a tagged union of
// strictly-decoded message variants rather than a free-form params map, so
// an unrecognized Type is rejected rather than silently ignored.
package protocol
