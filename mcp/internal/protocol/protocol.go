// Package protocol implements the server side of JSON-RPC messaging for MCP.
//
// A Protocol is attached to exactly one transport. Incoming requests are
// dispatched by method name to registered handlers, each on its own goroutine,
// and the handler result (or error) is sent back over the same transport.
// Notifications are dispatched to notification handlers and never answered.
//
// Handler errors that implement CodedError are sent with their own JSON-RPC
// error code; any other error is reported as CodeServerError.
//
// All public methods are safe for concurrent use.
package protocol

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/freetable/mcp/transport"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/freetable/mcp/internal", "protocol")

// JSON-RPC error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeServerError    = -32000
)

// CodedError is an error with a JSON-RPC error code
type CodedError interface {
	error
	Code() int
}

// Error is a CodedError
type Error struct {
	code    int
	message string
}

// NewError returns a new Error with the given code
func NewError(code int, format string, args ...any) *Error {
	return &Error{
		code:    code,
		message: errors.Errorf(format, args...).Error(),
	}
}

func (e *Error) Error() string {
	return e.message
}

// Code returns JSON-RPC error code
func (e *Error) Code() int {
	return e.code
}

// ErrorCode returns the JSON-RPC code of err,
// or CodeServerError if err does not carry one.
func ErrorCode(err error) int {
	var coded CodedError
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return CodeServerError
}

// RequestHandlerExtra contains extra data given to request handlers
type RequestHandlerExtra struct {
	// Context used to communicate if the request was cancelled from the sender's side
	Context context.Context
}

// RequestHandler handles a request and returns the result to be sent back
type RequestHandler func(context.Context, *transport.BaseJSONRPCRequest, RequestHandlerExtra) (transport.JsonRpcBody, error)

// NotificationHandler handles a notification
type NotificationHandler func(notification *transport.BaseJSONRPCNotification) error

// Protocol implements MCP protocol framing on top of a pluggable transport
type Protocol struct {
	transport transport.Transport

	mu sync.RWMutex
	// Maps method name to request handler
	requestHandlers map[string]RequestHandler
	// Maps request ID to cancellation function
	requestCancellers map[transport.RequestId]context.CancelFunc
	// Maps method name to notification handler
	notificationHandlers map[string]NotificationHandler

	// OnClose is called when the connection is closed for any reason
	OnClose func()
	// OnError is called when an error occurs
	OnError func(error)
}

// NewProtocol creates a new Protocol instance
func NewProtocol() *Protocol {
	p := &Protocol{
		requestHandlers:      make(map[string]RequestHandler),
		requestCancellers:    make(map[transport.RequestId]context.CancelFunc),
		notificationHandlers: make(map[string]NotificationHandler),
	}

	p.SetNotificationHandler("notifications/cancelled", p.handleCancelledNotification)
	p.SetNotificationHandler("notifications/initialized", p.handleInitializedNotification)

	return p
}

// Connect attaches to the given transport, starts it, and starts listening for messages
func (p *Protocol) Connect(ctx context.Context, tr transport.Transport) error {
	p.mu.Lock()
	p.transport = tr
	p.mu.Unlock()

	tr.SetCloseHandler(p.handleClose)
	tr.SetErrorHandler(p.handleError)
	tr.SetMessageHandler(func(ctx context.Context, message *transport.BaseJsonRpcMessage) {
		switch message.Type {
		case transport.BaseMessageTypeJSONRPCRequestType:
			p.handleRequest(ctx, message.JsonRpcRequest)
		case transport.BaseMessageTypeJSONRPCNotificationType:
			p.handleNotification(message.JsonRpcNotification)
		case transport.BaseMessageTypeJSONRPCResponseType:
			// the server does not issue requests
			logger.ContextKV(ctx, xlog.DEBUG, "reason", "unexpected_response", "id", message.JsonRpcResponse.Id)
		case transport.BaseMessageTypeJSONRPCErrorType:
			logger.ContextKV(ctx, xlog.DEBUG,
				"reason", "unexpected_error",
				"id", message.JsonRpcError.Id,
				"err", message.JsonRpcError.Error.Message)
		}
	})

	return tr.Start(ctx)
}

func (p *Protocol) handleClose() {
	p.mu.Lock()
	for id, cancel := range p.requestCancellers {
		cancel()
		delete(p.requestCancellers, id)
	}
	onClose := p.OnClose
	p.mu.Unlock()

	if onClose != nil {
		onClose()
	}
}

func (p *Protocol) handleError(err error) {
	logger.KV(xlog.DEBUG, "err", err.Error())
	if p.OnError != nil {
		p.OnError(err)
	}
}

func (p *Protocol) handleNotification(notification *transport.BaseJSONRPCNotification) {
	logger.KV(xlog.DEBUG, "method", notification.Method)

	p.mu.RLock()
	handler := p.notificationHandlers[notification.Method]
	p.mu.RUnlock()

	if handler == nil {
		return
	}

	go func() {
		if err := handler(notification); err != nil {
			p.handleError(errors.Wrap(err, "notification handler error"))
		}
	}()
}

func (p *Protocol) handleRequest(ctx context.Context, request *transport.BaseJSONRPCRequest) {
	logger.ContextKV(ctx, xlog.DEBUG,
		"method", request.Method,
		"id", request.Id,
	)

	p.mu.RLock()
	handler := p.requestHandlers[request.Method]
	p.mu.RUnlock()
	if handler == nil {
		handler = func(_ context.Context, req *transport.BaseJSONRPCRequest, _ RequestHandlerExtra) (transport.JsonRpcBody, error) {
			return nil, NewError(CodeMethodNotFound, "method not found: %s", req.Method)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.requestCancellers[request.Id] = cancel
	p.mu.Unlock()

	go func() {
		defer func() {
			p.mu.Lock()
			delete(p.requestCancellers, request.Id)
			p.mu.Unlock()
			cancel()
		}()

		result, err := handler(ctx, request, RequestHandlerExtra{Context: ctx})
		if err != nil {
			logger.ContextKV(ctx, xlog.DEBUG, "method", request.Method, "id", request.Id, "err", err.Error())
			p.sendErrorResponse(ctx, request.Id, err)
			return
		}

		jsonResult, err := json.Marshal(result)
		if err != nil {
			p.sendErrorResponse(ctx, request.Id, NewError(CodeInternalError, "failed to marshal result: %s", err.Error()))
			return
		}
		response := &transport.BaseJSONRPCResponse{
			Jsonrpc: transport.JSONRPCVersion,
			Id:      request.Id,
			Result:  jsonResult,
		}

		if err := p.send(ctx, transport.NewBaseMessageResponse(response)); err != nil {
			p.handleError(errors.Wrap(err, "failed to send response"))
		}
	}()
}

func (p *Protocol) handleInitializedNotification(notification *transport.BaseJSONRPCNotification) error {
	logger.KV(xlog.DEBUG, "method", notification.Method)
	return nil
}

func (p *Protocol) handleCancelledNotification(notification *transport.BaseJSONRPCNotification) error {
	var params struct {
		RequestId transport.RequestId `json:"requestId"`
		Reason    string              `json:"reason"`
	}

	if err := json.Unmarshal(notification.Params, &params); err != nil {
		return errors.Wrap(err, "failed to unmarshal cancelled params")
	}

	p.mu.RLock()
	cancel := p.requestCancellers[params.RequestId]
	p.mu.RUnlock()

	if cancel != nil {
		logger.KV(xlog.DEBUG, "cancelled", params.RequestId, "reason", params.Reason)
		cancel()
	}

	return nil
}

func (p *Protocol) sendErrorResponse(ctx context.Context, requestID transport.RequestId, err error) {
	response := &transport.BaseJSONRPCError{
		Jsonrpc: transport.JSONRPCVersion,
		Id:      requestID,
		Error: transport.BaseJSONRPCErrorInner{
			Code:    ErrorCode(err),
			Message: err.Error(),
		},
	}

	if err := p.send(ctx, transport.NewBaseMessageError(response)); err != nil {
		p.handleError(errors.Wrap(err, "failed to send error response"))
	}
}

func (p *Protocol) send(ctx context.Context, message *transport.BaseJsonRpcMessage) error {
	p.mu.RLock()
	tr := p.transport
	p.mu.RUnlock()
	if tr == nil {
		return errors.New("not connected")
	}
	// the response must reach the transport even if the request was cancelled
	return tr.Send(context.WithoutCancel(ctx), message)
}

// Close closes the connection
func (p *Protocol) Close() error {
	p.mu.RLock()
	tr := p.transport
	p.mu.RUnlock()
	if tr != nil {
		return tr.Close()
	}
	return nil
}

// Notification emits a notification, which is a one-way message that does not expect a response
func (p *Protocol) Notification(ctx context.Context, method string, params any) error {
	marshalled, err := json.Marshal(params)
	if err != nil {
		return errors.Wrap(err, "failed to marshal notification params")
	}

	notification := &transport.BaseJSONRPCNotification{
		Jsonrpc: transport.JSONRPCVersion,
		Method:  method,
		Params:  marshalled,
	}

	return p.send(ctx, transport.NewBaseMessageNotification(notification))
}

// SetRequestHandler registers a handler to invoke when this protocol object receives a request with the given method
func (p *Protocol) SetRequestHandler(method string, handler RequestHandler) {
	p.mu.Lock()
	p.requestHandlers[method] = handler
	p.mu.Unlock()
}

// SetNotificationHandler registers a handler to invoke when this protocol object receives a notification with the given method
func (p *Protocol) SetNotificationHandler(method string, handler NotificationHandler) {
	p.mu.Lock()
	p.notificationHandlers[method] = handler
	p.mu.Unlock()
}
