// Package ratelimit implements the per-(user, bucket) sliding-window
// admission control the session actor consults before accepting any
// gameplay intent, chat message, or DM command.
//
// Each (user, bucket) pair gets a ring of second-granularity counters; an
// admission check sums the counters inside the trailing window and compares
// against the bucket's configured ceiling. This is deliberately not the
// token-bucket algorithm the HTTP-layer IP limiter uses (golang.org/x/time/rate,
// see pkg/server): admission needs an exact "(N+1)-th request in this
// window" boundary, which a token bucket does not give you for free.
package ratelimit
