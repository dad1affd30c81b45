package websocket

import (
	"errors"
	"fmt"
	"time"

	"github.com/mailwire/mailwire/protocol"
)

var (
	// Errors - Connection.
	ErrClosed         = errors.New("mailwire/websocket: client is closed")
	ErrNotConnected   = errors.New("mailwire/websocket: client is not connected")
	ErrDisconnecting  = errors.New("mailwire/websocket: disconnect in progress")
	ErrConnectionLost = errors.New("mailwire/websocket: connection lost before response arrived")
	ErrDisconnected   = errors.New("mailwire/websocket: request cancelled by disconnect")

	// ErrTokenExpired is surfaced when the server closes the session with a
	// token_expired reason. The client will not retry with the stale token;
	// callers must re-authenticate and call Connect again.
	ErrTokenExpired = errors.New("mailwire/websocket: access token expired")

	// ErrAuthFailed is surfaced when the server closes the socket with the
	// auth-failed code. Retrying with the same credentials cannot succeed,
	// so no reconnect is scheduled.
	ErrAuthFailed = errors.New("mailwire/websocket: server rejected credentials")

	// Errors - Requests.
	ErrUnknownChannel = errors.New("mailwire/websocket: unknown channel")
	ErrRequestPending = errors.New("mailwire/websocket: a request is already in flight for this channel")
	ErrNotSubscribed  = errors.New("mailwire/websocket: channel has no active subscription")
)

// RequestTimeoutError reports that a subscribe, unsubscribe, fetch or
// connect attempt exceeded its deadline. Only the specific pending
// request is rejected.
type RequestTimeoutError struct {
	Channel protocol.Channel
	Op      protocol.ClientMessageType
	Timeout time.Duration
}

func (e *RequestTimeoutError) Error() string {
	return fmt.Sprintf("mailwire/websocket: %s %q timed out after %v", e.Op, e.Channel, e.Timeout)
}

// ReconnectExhaustedError is terminal: the reconnect attempt cap was
// reached and the client settled to disconnected. An explicit Connect is
// required to try again.
type ReconnectExhaustedError struct {
	Attempts uint
}

func (e *ReconnectExhaustedError) Error() string {
	return fmt.Sprintf("mailwire/websocket: reconnect attempts exhausted after %d tries", e.Attempts)
}
