// Package protocol_test contains tests for the wire codec.
//
// Verifies frame building, structural validation, and error classification.
package protocol_test

import (
	"testing"

	json "github.com/bytedance/sonic"
	"github.com/mailwire/mailwire/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------------
// Tests

// TestChannelValid verifies the closed channel set.
func TestChannelValid(t *testing.T) {
	t.Parallel()

	for _, ch := range protocol.Channels() {
		assert.True(t, ch.Valid(), "channel %q should be valid", ch)
	}

	assert.False(t, protocol.Channel("presence").Valid())
	assert.False(t, protocol.Channel("").Valid())
}

// TestSubscribeParams verifies the typed-to-map conversion, including
// the optional mailbox id.
func TestSubscribeParams(t *testing.T) {
	t.Parallel()

	p := protocol.SubscribeParams{UserID: "u1", Token: "t1"}
	assert.Equal(t, protocol.Params{"userId": "u1", "token": "t1"}, p.Params())

	p.MailboxID = "mb1"
	assert.Equal(t, protocol.Params{"userId": "u1", "token": "t1", "mailboxId": "mb1"}, p.Params())
}

// TestBuilders verifies the shape of outgoing frames.
func TestBuilders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		msg  *protocol.ClientMessage
		want string
	}{
		{
			name: "Subscribe",
			msg: protocol.NewSubscribeMessage(protocol.ChannelMailboxes, protocol.Params{
				"userId": "u1",
				"token":  "t1",
			}),
			want: `{"type":"subscribe","channel":"mailboxes","data":{"userId":"u1","token":"t1"}}`,
		},
		{
			name: "SubscribeMessagesNeedsMailbox",
			msg: protocol.NewSubscribeMessage(protocol.ChannelMessages, protocol.Params{
				"userId":    "u1",
				"token":     "t1",
				"mailboxId": "mb1",
			}),
			want: `{"type":"subscribe","channel":"messages","data":{"userId":"u1","token":"t1","mailboxId":"mb1"}}`,
		},
		{
			name: "Unsubscribe",
			msg:  protocol.NewUnsubscribeMessage(protocol.ChannelFilters),
			want: `{"type":"unsubscribe","channel":"filters"}`,
		},
		{
			name: "Fetch",
			msg:  protocol.NewFetchMessage(protocol.ChannelMessages, protocol.Params{"page": 2}),
			want: `{"type":"fetch","channel":"messages","data":{"page":2}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			data, err := tt.msg.Encode()
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}

// TestParseServerMessage verifies structural validation of incoming frames.
func TestParseServerMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{
			name: "Data",
			raw:  `{"type":"data","channel":"mailboxes","data":{"code":200,"response":{"success":true,"mailboxes":[]}}}`,
		},
		{
			name: "Update",
			raw:  `{"type":"update","channel":"messages","data":{"code":200,"response":{"success":true,"event":"created"}}}`,
		},
		{
			name: "Disconnect",
			raw:  `{"type":"disconnect","channel":"system","data":{"code":200,"response":{"success":true,"reason":"timeout"}}}`,
		},
		{
			name:    "NotJSON",
			raw:     `not json at all`,
			wantErr: true,
		},
		{
			name:    "UnknownType",
			raw:     `{"type":"publish","channel":"mailboxes","data":{"code":200,"response":{"success":true}}}`,
			wantErr: true,
		},
		{
			name:    "MissingResponse",
			raw:     `{"type":"data","channel":"mailboxes","data":{"code":200}}`,
			wantErr: true,
		},
		{
			name:    "NullResponse",
			raw:     `{"type":"data","channel":"mailboxes","data":{"code":200,"response":null}}`,
			wantErr: true,
		},
		{
			name:    "MissingSuccess",
			raw:     `{"type":"data","channel":"mailboxes","data":{"code":200,"response":{"mailboxes":[]}}}`,
			wantErr: true,
		},
		{
			name:    "SuccessNotBoolean",
			raw:     `{"type":"data","channel":"mailboxes","data":{"code":200,"response":{"success":"yes"}}}`,
			wantErr: true,
		},
		{
			name:    "CodeNotNumber",
			raw:     `{"type":"data","channel":"mailboxes","data":{"code":"200","response":{"success":true}}}`,
			wantErr: true,
		},
		{
			name:    "CodeMissing",
			raw:     `{"type":"data","channel":"mailboxes","data":{"response":{"success":true}}}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			msg, err := protocol.ParseServerMessage([]byte(tt.raw))

			if tt.wantErr {
				require.Error(t, err)

				var perr *protocol.ProtocolError
				require.ErrorAs(t, err, &perr)
				assert.Nil(t, msg)

				return
			}

			require.NoError(t, err)
			require.NotNil(t, msg)
		})
	}
}

// TestParsedFields verifies accessors on a parsed frame.
func TestParsedFields(t *testing.T) {
	t.Parallel()

	raw := `{"type":"data","channel":"mailboxes","data":{"code":200,"response":{"success":true,"mailboxes":[]}}}`

	msg, err := protocol.ParseServerMessage([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, protocol.TypeData, msg.Type)
	assert.Equal(t, "mailboxes", msg.Channel)
	assert.Equal(t, 200, msg.Data.Code)
	assert.True(t, msg.Success())
	assert.False(t, msg.IsError())
	assert.NoError(t, msg.Err())
}

// TestIsError verifies error classification by success flag and code.
func TestIsError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		isError bool
	}{
		{
			name:    "SuccessOK",
			raw:     `{"type":"data","channel":"settings","data":{"code":200,"response":{"success":true}}}`,
			isError: false,
		},
		{
			name:    "SuccessFalse",
			raw:     `{"type":"data","channel":"settings","data":{"code":200,"response":{"success":false}}}`,
			isError: true,
		},
		{
			name:    "CodeAtThreshold",
			raw:     `{"type":"data","channel":"settings","data":{"code":400,"response":{"success":true}}}`,
			isError: true,
		},
		{
			name:    "ServerFailure",
			raw:     `{"type":"data","channel":"settings","data":{"code":503,"response":{"success":false,"error":"ServiceUnavailable","message":"try later"}}}`,
			isError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			msg, err := protocol.ParseServerMessage([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.isError, msg.IsError())

			if !tt.isError {
				assert.NoError(t, msg.Err())

				return
			}

			var serr *protocol.ServerError
			require.ErrorAs(t, msg.Err(), &serr)
			assert.Equal(t, msg.Data.Code, serr.Code)
			assert.Equal(t, msg.Channel, serr.Channel)
		})
	}
}

// TestServerErrorFields verifies the synthesized error carries the
// server-supplied name, message, and code.
func TestServerErrorFields(t *testing.T) {
	t.Parallel()

	raw := `{"type":"data","channel":"messages","data":{"code":403,"response":{"success":false,"error":"Forbidden","message":"no access to mailbox"}}}`

	msg, err := protocol.ParseServerMessage([]byte(raw))
	require.NoError(t, err)

	var serr *protocol.ServerError
	require.ErrorAs(t, msg.Err(), &serr)
	assert.Equal(t, "Forbidden", serr.Name)
	assert.Equal(t, "no access to mailbox", serr.Message)
	assert.Equal(t, 403, serr.Code)
	assert.Contains(t, serr.Error(), "Forbidden")
	assert.Contains(t, serr.Error(), "403")
}

// TestDisconnectReason verifies reason extraction.
func TestDisconnectReason(t *testing.T) {
	t.Parallel()

	for _, reason := range []string{protocol.ReasonServerShutdown, protocol.ReasonTimeout, protocol.ReasonTokenExpired} {
		raw, err := json.Marshal(map[string]any{
			"type":    "disconnect",
			"channel": "system",
			"data": map[string]any{
				"code":     200,
				"response": map[string]any{"success": true, "reason": reason},
			},
		})
		require.NoError(t, err)

		msg, err := protocol.ParseServerMessage(raw)
		require.NoError(t, err)
		assert.Equal(t, reason, msg.DisconnectReason())
	}
}

// TestUpdateEvent verifies the incremental-sync event accessor.
func TestUpdateEvent(t *testing.T) {
	t.Parallel()

	raw := `{"type":"update","channel":"messages","data":{"code":200,"response":{"success":true,"event":"deleted","message":{"id":"m1"}}}}`

	msg, err := protocol.ParseServerMessage([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, protocol.EventDeleted, msg.UpdateEvent())
}
