package protocol

import "fmt"

// --------------------------------------------------------------------------------
// Errors

// ProtocolError reports a frame that failed to decode or did not match the
// expected envelope shape. The connection logs and drops such frames; this
// error never crosses into unrelated call stacks.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mailwire/protocol: %s: %v", e.Reason, e.Err)
	}

	return fmt.Sprintf("mailwire/protocol: %s", e.Reason)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// ServerError carries a server-reported failure: success false or an
// HTTP-like code of 400 and above. It rejects the matching pending
// request, or surfaces via the connection's error event when unmatched.
type ServerError struct {
	Channel string
	Name    string
	Message string
	Code    int
}

func (e *ServerError) Error() string {
	name := e.Name
	if name == "" {
		name = "ServerError"
	}

	if e.Message != "" {
		return fmt.Sprintf("mailwire/protocol: %s on %q (code %d): %s", name, e.Channel, e.Code, e.Message)
	}

	return fmt.Sprintf("mailwire/protocol: %s on %q (code %d)", name, e.Channel, e.Code)
}
