package protocol_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/freetable/mcp/internal/protocol"
	"github.com/effective-security/freetable/mcp/internal/testingutils"
	"github.com/effective-security/freetable/mcp/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func request(id int64, method string, params string) *transport.BaseJsonRpcMessage {
	return transport.NewBaseMessageRequest(&transport.BaseJSONRPCRequest{
		Jsonrpc: "2.0",
		Method:  method,
		Params:  json.RawMessage(params),
		Id:      transport.NewRequestID(id),
	})
}

func TestProtocol_Request(t *testing.T) {
	tr := testingutils.NewMockTransport()
	p := protocol.NewProtocol()
	require.NoError(t, p.Connect(context.Background(), tr))
	assert.True(t, tr.IsStarted())

	p.SetRequestHandler("echo", func(_ context.Context, req *transport.BaseJSONRPCRequest, _ protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
		var params map[string]string
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, protocol.NewError(protocol.CodeInvalidParams, "invalid params: %s", err.Error())
		}
		return params, nil
	})
	p.SetRequestHandler("fail", func(context.Context, *transport.BaseJSONRPCRequest, protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
		return nil, errors.New("boom")
	})

	ctx := context.Background()
	tr.SimulateMessage(ctx, request(1, "echo", `{"a":"b"}`))
	msgs := tr.WaitForMessages(1, time.Second)
	require.Len(t, msgs, 1)
	require.Equal(t, transport.BaseMessageTypeJSONRPCResponseType, msgs[0].Type)
	assert.Equal(t, transport.NewRequestID(1), msgs[0].JsonRpcResponse.Id)
	assert.JSONEq(t, `{"a":"b"}`, string(msgs[0].JsonRpcResponse.Result))

	tr.SimulateMessage(ctx, request(2, "echo", `[1]`))
	msgs = tr.WaitForMessages(2, time.Second)
	require.Len(t, msgs, 2)
	require.Equal(t, transport.BaseMessageTypeJSONRPCErrorType, msgs[1].Type)
	assert.Equal(t, protocol.CodeInvalidParams, msgs[1].JsonRpcError.Error.Code)

	tr.SimulateMessage(ctx, request(3, "fail", ``))
	msgs = tr.WaitForMessages(3, time.Second)
	require.Len(t, msgs, 3)
	require.Equal(t, transport.BaseMessageTypeJSONRPCErrorType, msgs[2].Type)
	assert.Equal(t, protocol.CodeServerError, msgs[2].JsonRpcError.Error.Code)
	assert.Equal(t, "boom", msgs[2].JsonRpcError.Error.Message)

	tr.SimulateMessage(ctx, request(4, "unknown", ``))
	msgs = tr.WaitForMessages(4, time.Second)
	require.Len(t, msgs, 4)
	require.Equal(t, transport.BaseMessageTypeJSONRPCErrorType, msgs[3].Type)
	assert.Equal(t, protocol.CodeMethodNotFound, msgs[3].JsonRpcError.Error.Code)
	assert.Equal(t, "method not found: unknown", msgs[3].JsonRpcError.Error.Message)
}

func TestProtocol_Cancel(t *testing.T) {
	tr := testingutils.NewMockTransport()
	p := protocol.NewProtocol()
	require.NoError(t, p.Connect(context.Background(), tr))

	started := make(chan struct{})
	p.SetRequestHandler("slow", func(ctx context.Context, _ *transport.BaseJSONRPCRequest, _ protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	ctx := context.Background()
	tr.SimulateMessage(ctx, request(7, "slow", ``))
	<-started

	tr.SimulateMessage(ctx, transport.NewBaseMessageNotification(&transport.BaseJSONRPCNotification{
		Jsonrpc: "2.0",
		Method:  "notifications/cancelled",
		Params:  json.RawMessage(`{"requestId":7,"reason":"user"}`),
	}))

	msgs := tr.WaitForMessages(1, time.Second)
	require.Len(t, msgs, 1)
	require.Equal(t, transport.BaseMessageTypeJSONRPCErrorType, msgs[0].Type)
	assert.Equal(t, transport.NewRequestID(7), msgs[0].JsonRpcError.Id)
	assert.Contains(t, msgs[0].JsonRpcError.Error.Message, "context canceled")
}

func TestProtocol_StringID(t *testing.T) {
	tr := testingutils.NewMockTransport()
	p := protocol.NewProtocol()
	require.NoError(t, p.Connect(context.Background(), tr))

	started := make(chan struct{})
	p.SetRequestHandler("slow", func(ctx context.Context, _ *transport.BaseJSONRPCRequest, _ protocol.RequestHandlerExtra) (transport.JsonRpcBody, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	msg, err := transport.Parse([]byte(`{"jsonrpc":"2.0","id":"req-7","method":"slow"}`))
	require.NoError(t, err)
	ctx := context.Background()
	tr.SimulateMessage(ctx, msg)
	<-started

	tr.SimulateMessage(ctx, transport.NewBaseMessageNotification(&transport.BaseJSONRPCNotification{
		Jsonrpc: "2.0",
		Method:  "notifications/cancelled",
		Params:  json.RawMessage(`{"requestId":"req-7"}`),
	}))

	msgs := tr.WaitForMessages(1, time.Second)
	require.Len(t, msgs, 1)
	assert.Equal(t, transport.NewStringRequestID("req-7"), msgs[0].JsonRpcError.Id)

	js, err := json.Marshal(msgs[0])
	require.NoError(t, err)
	assert.Contains(t, string(js), `"id":"req-7"`)
}

func TestProtocol_CloseAndNotify(t *testing.T) {
	tr := testingutils.NewMockTransport()
	p := protocol.NewProtocol()

	closed := false
	p.OnClose = func() { closed = true }
	var reported error
	p.OnError = func(err error) { reported = err }

	assert.EqualError(t, p.Notification(context.Background(), "x", nil), "not connected")

	require.NoError(t, p.Connect(context.Background(), tr))
	require.NoError(t, p.Notification(context.Background(), "notifications/tools/list_changed", map[string]any{}))

	msgs := tr.GetMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "notifications/tools/list_changed", msgs[0].JsonRpcNotification.Method)

	tr.SimulateError(errors.New("broken pipe"))
	require.Error(t, reported)
	assert.Equal(t, "broken pipe", reported.Error())

	require.NoError(t, p.Close())
	assert.True(t, tr.IsClosed())
	assert.True(t, closed)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, protocol.CodeServerError, protocol.ErrorCode(errors.New("plain")))
	err := errors.Wrap(protocol.NewError(protocol.CodeInvalidParams, "bad %s", "input"), "wrapped")
	assert.Equal(t, protocol.CodeInvalidParams, protocol.ErrorCode(err))
	assert.Equal(t, "wrapped: bad input", err.Error())
}
