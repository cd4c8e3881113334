package transport_test

import (
	"encoding/json"
	"testing"

	"github.com/effective-security/freetable/mcp/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestId(t *testing.T) {
	assert.True(t, transport.RequestId{}.IsZero())
	assert.Equal(t, "null", transport.RequestId{}.String())
	assert.Equal(t, "42", transport.NewRequestID(42).String())
	assert.Equal(t, `"abc"`, transport.NewStringRequestID("abc").String())
	assert.NotEqual(t, transport.NewRequestID(42), transport.NewStringRequestID("42"))

	for _, tc := range []struct {
		in  string
		exp transport.RequestId
	}{
		{`1`, transport.NewRequestID(1)},
		{`-3`, transport.NewRequestID(-3)},
		{`"abc-1"`, transport.NewStringRequestID("abc-1")},
		{`""`, transport.NewStringRequestID("")},
		{`null`, transport.RequestId{}},
	} {
		t.Run(tc.in, func(t *testing.T) {
			var id transport.RequestId
			require.NoError(t, json.Unmarshal([]byte(tc.in), &id))
			assert.Equal(t, tc.exp, id)

			js, err := json.Marshal(id)
			require.NoError(t, err)
			assert.JSONEq(t, tc.in, string(js))
		})
	}

	for _, in := range []string{`true`, `{}`, `[1]`} {
		var id transport.RequestId
		assert.Error(t, json.Unmarshal([]byte(in), &id), in)
	}
}

func TestParse_RequestIds(t *testing.T) {
	msg, err := transport.Parse([]byte(`{"jsonrpc":"2.0","id":"abc-1","method":"tools/list"}`))
	require.NoError(t, err)
	require.Equal(t, transport.BaseMessageTypeJSONRPCRequestType, msg.Type)
	assert.Equal(t, transport.NewStringRequestID("abc-1"), msg.MessageID())

	msg.SetMessageID(transport.NewRequestID(9))
	js, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":9,"method":"tools/list"}`, string(js))

	for _, id := range []string{`null`, `true`, `{}`} {
		_, err = transport.Parse([]byte(`{"jsonrpc":"2.0","id":` + id + `,"method":"tools/list"}`))
		assert.Error(t, err, id)
	}

	notif, err := transport.Parse([]byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	require.NoError(t, err)
	assert.True(t, notif.MessageID().IsZero())
}
