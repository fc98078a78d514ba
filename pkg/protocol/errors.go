package protocol

// Code is a stable, client-visible error code.
type Code string

const (
	CodeAuthTimeout     Code = "AUTH_TIMEOUT"
	CodeAuthFailed      Code = "AUTH_FAILED"
	CodeForbidden       Code = "FORBIDDEN"
	CodeRateLimited     Code = "RATE_LIMITED"
	CodeNotYourTurn     Code = "NOT_YOUR_TURN"
	CodeInvalidAction   Code = "INVALID_ACTION"
	CodeSessionNotFound Code = "SESSION_NOT_FOUND"
	CodeSessionFull     Code = "SESSION_FULL"
	CodeAlreadyEnded    Code = "ALREADY_ENDED"
	CodeSlowConsumer    Code = "SLOW_CONSUMER"
	CodeIdleTimeout     Code = "IDLE_TIMEOUT"
	CodeServerBusy      Code = "SERVER_BUSY"
	CodeInternalSimViol Code = "INTERNAL_SIM_VIOLATION"
	CodeKicked          Code = "KICKED"
	CodeProtocol        Code = "PROTOCOL"
)

// Error is the server->client error{code, message, retry_after_ms?}
// payload. CorrelationID carries the triggering frame's Seq, when available.
type Error struct {
	Code          Code   `json:"code"`
	Message       string `json:"message"`
	RetryAfterMS  int64  `json:"retry_after_ms,omitempty"`
	CorrelationID int64  `json:"correlation_id,omitempty"`
}

func (e Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// NewError builds an Error payload. retryAfterMS may be 0 when not applicable.
func NewError(code Code, message string, retryAfterMS int64, correlationID int64) Error {
	return Error{Code: code, Message: message, RetryAfterMS: retryAfterMS, CorrelationID: correlationID}
}
