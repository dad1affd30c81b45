package mailwire

// Auth identifies the authenticated user a connection is scoped to.
// It is passed as transport-level connection parameters (query string),
// never as a protocol message.
type Auth struct {
	UserID      string
	AccessToken string
}

// Close codes used on top of the standard WebSocket range (1000-1015).
const (
	CloseUserDisconnect      = 4000 // Caller asked for the connection to be closed.
	CloseTokenExpired        = 4001 // Access token no longer valid; re-authenticate.
	CloseAuthFailed          = 4002 // Server rejected the credentials at handshake.
	CloseReconnectsExhausted = 4003 // Reconnect attempt cap reached.
	CloseServerDisconnect    = 4004 // Server requested the disconnect.
)
