// Package protocol implements the wire codec for the mail-server
// real-time protocol: JSON text frames carrying subscribe/unsubscribe/fetch
// requests from the client and data/update/disconnect envelopes from the
// server.
//
// Everything here is stateless; the websocket package owns all connection
// state and calls into this package at its read/write boundaries.
package protocol

import (
	"fmt"

	json "github.com/bytedance/sonic"
)

// --------------------------------------------------------------------------------
// Channels

// Channel names a real-time topic a caller can subscribe to.
type Channel string

// The closed set of channels the server serves.
const (
	ChannelMailboxes Channel = "mailboxes"
	ChannelMessages  Channel = "messages"
	ChannelSettings  Channel = "settings"
	ChannelFilters   Channel = "filters"
	ChannelAutoreply Channel = "autoreply"
)

// Channels lists every valid channel in a stable order.
func Channels() []Channel {
	return []Channel{ChannelMailboxes, ChannelMessages, ChannelSettings, ChannelFilters, ChannelAutoreply}
}

// Valid reports whether c is one of the known channels.
func (c Channel) Valid() bool {
	switch c {
	case ChannelMailboxes, ChannelMessages, ChannelSettings, ChannelFilters, ChannelAutoreply:
		return true
	default:
		return false
	}
}

// --------------------------------------------------------------------------------
// Message Types

// ClientMessageType is the intent of a client-to-server message.
type ClientMessageType string

const (
	TypeSubscribe   ClientMessageType = "subscribe"
	TypeUnsubscribe ClientMessageType = "unsubscribe"
	TypeFetch       ClientMessageType = "fetch"
)

// ServerMessageType is the intent of a server-to-client message.
type ServerMessageType string

const (
	TypeData       ServerMessageType = "data"
	TypeUpdate     ServerMessageType = "update"
	TypeDisconnect ServerMessageType = "disconnect"
)

// Disconnect reasons the server may supply on a disconnect frame.
const (
	ReasonServerShutdown = "server_shutdown"
	ReasonTimeout        = "timeout"
	ReasonTokenExpired   = "token_expired"
)

// Update events carried by update frames for incremental sync.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// --------------------------------------------------------------------------------
// Types

// Params is the free-form data object attached to a client message.
// Every subscribe carries at least {userId, token}; the messages channel
// additionally requires {mailboxId}.
type Params map[string]any

// SubscribeParams is the canonical typed parameter set for a subscribe
// request. MailboxID is only meaningful for the messages channel.
type SubscribeParams struct {
	UserID    string
	Token     string
	MailboxID string
}

// Params converts the typed set to the free-form map carried on the wire.
func (p SubscribeParams) Params() Params {
	out := Params{"userId": p.UserID, "token": p.Token}

	if p.MailboxID != "" {
		out["mailboxId"] = p.MailboxID
	}

	return out
}

// ClientMessage is a client-to-server frame. Immutable once constructed.
type ClientMessage struct {
	Type    ClientMessageType `json:"type"`
	Channel Channel           `json:"channel"`
	Data    Params            `json:"data,omitempty"`
}

// ServerData is the payload envelope of a server frame.
type ServerData struct {
	Code     int            `json:"code"`
	Response map[string]any `json:"response"`
}

// ServerMessage is a validated server-to-client frame.
type ServerMessage struct {
	Type    ServerMessageType `json:"type"`
	Channel string            `json:"channel"`
	Data    ServerData        `json:"data"`
}

// --------------------------------------------------------------------------------
// Builders

// NewSubscribeMessage builds a subscribe request for a channel.
func NewSubscribeMessage(ch Channel, params Params) *ClientMessage {
	return &ClientMessage{Type: TypeSubscribe, Channel: ch, Data: params}
}

// NewUnsubscribeMessage builds an unsubscribe request for a channel.
func NewUnsubscribeMessage(ch Channel) *ClientMessage {
	return &ClientMessage{Type: TypeUnsubscribe, Channel: ch}
}

// NewFetchMessage builds a pagination continuation request for a channel.
func NewFetchMessage(ch Channel, params Params) *ClientMessage {
	return &ClientMessage{Type: TypeFetch, Channel: ch, Data: params}
}

// Encode serializes the message to a JSON text frame.
func (m *ClientMessage) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s %s: %w", m.Type, m.Channel, err)
	}

	return data, nil
}

// --------------------------------------------------------------------------------
// Parsing

// serverMessageWire is the loosely-typed decode target used to validate
// frame shape before handing out a ServerMessage.
type serverMessageWire struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	Data    struct {
		Code     any            `json:"code"`
		Response map[string]any `json:"response"`
	} `json:"data"`
}

// ParseServerMessage decodes and structurally validates a server frame.
//
// The frame must be a JSON object with type one of data/update/disconnect,
// a numeric data.code, and a non-null data.response object carrying a
// boolean success. Any decode or shape failure returns a *ProtocolError;
// the function never panics into the caller.
func ParseServerMessage(raw []byte) (*ServerMessage, error) {
	var wire serverMessageWire

	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, &ProtocolError{Reason: "malformed frame", Err: err}
	}

	typ := ServerMessageType(wire.Type)

	switch typ {
	case TypeData, TypeUpdate, TypeDisconnect:
	default:
		return nil, &ProtocolError{Reason: fmt.Sprintf("unknown message type %q", wire.Type)}
	}

	code, ok := wire.Data.Code.(float64)
	if !ok {
		return nil, &ProtocolError{Reason: "response code is not a number"}
	}

	if wire.Data.Response == nil {
		return nil, &ProtocolError{Reason: "missing response object"}
	}

	if _, ok := wire.Data.Response["success"].(bool); !ok {
		return nil, &ProtocolError{Reason: "response success is not a boolean"}
	}

	return &ServerMessage{
		Type:    typ,
		Channel: wire.Channel,
		Data: ServerData{
			Code:     int(code),
			Response: wire.Data.Response,
		},
	}, nil
}

// --------------------------------------------------------------------------------
// Accessors

// Success reports the response's success flag.
func (m *ServerMessage) Success() bool {
	ok, _ := m.Data.Response["success"].(bool)

	return ok
}

// IsError reports whether the message carries a failure: success false or
// an HTTP-like code of 400 and above.
func (m *ServerMessage) IsError() bool {
	return !m.Success() || m.Data.Code >= 400
}

// Err synthesizes a *ServerError from an error-carrying message, or nil
// when the message is not an error.
func (m *ServerMessage) Err() error {
	if !m.IsError() {
		return nil
	}

	name, _ := m.Data.Response["error"].(string)
	text, _ := m.Data.Response["message"].(string)

	return &ServerError{
		Channel: m.Channel,
		Name:    name,
		Message: text,
		Code:    m.Data.Code,
	}
}

// DisconnectReason extracts the server-supplied reason from a disconnect
// frame ("server_shutdown", "timeout", "token_expired"). Empty when absent.
func (m *ServerMessage) DisconnectReason() string {
	reason, _ := m.Data.Response["reason"].(string)

	return reason
}

// UpdateEvent extracts the incremental-sync event from an update frame
// ("created", "updated", "deleted"). Empty when absent.
func (m *ServerMessage) UpdateEvent() string {
	event, _ := m.Data.Response["event"].(string)

	return event
}
