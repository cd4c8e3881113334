package httptransport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/freetable/mcp/transport"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/freetable/mcp/transport", "httptransport")

// MaxBodySize is the largest accepted request body
const MaxBodySize = 4 * 1024 * 1024

// HTTPTransport implements a stateless HTTP transport for MCP:
// each POST carries one JSON-RPC message, and the response to a request
// is written back in the body of the same HTTP response.
type HTTPTransport struct {
	messageHandler func(ctx context.Context, message *transport.BaseJsonRpcMessage)
	errorHandler   func(error)
	closeHandler   func()
	mu             sync.RWMutex
	responseMap    map[transport.RequestId]chan *transport.BaseJsonRpcMessage
	atomicCounter  int64
}

// NewHTTPTransport creates a new HTTP transport
func NewHTTPTransport() *HTTPTransport {
	return &HTTPTransport{
		responseMap: make(map[transport.RequestId]chan *transport.BaseJsonRpcMessage),
	}
}

// Start implements Transport.Start
func (t *HTTPTransport) Start(_ context.Context) error {
	// Does nothing, the hosting HTTP server owns the listener
	return nil
}

// Send implements Transport.Send
func (t *HTTPTransport) Send(ctx context.Context, message *transport.BaseJsonRpcMessage) error {
	if message.Type == transport.BaseMessageTypeJSONRPCNotificationType {
		// no open stream to deliver notifications to
		return nil
	}
	key := message.MessageID()
	logger.ContextKV(ctx, xlog.DEBUG,
		"type", message.Type,
		"key", key,
	)

	t.mu.RLock()
	responseChannel := t.responseMap[key]
	t.mu.RUnlock()

	if responseChannel == nil {
		logger.ContextKV(ctx, xlog.ERROR,
			"type", message.Type,
			"key", key,
			"err", "no response channel found",
		)
		return errors.Errorf("no response channel found for key: %s", key)
	}
	// buffered, never blocks
	responseChannel <- message
	return nil
}

// Close implements Transport.Close
func (t *HTTPTransport) Close() error {
	t.mu.RLock()
	handler := t.closeHandler
	t.mu.RUnlock()
	if handler != nil {
		handler()
	}
	return nil
}

// SetCloseHandler implements Transport.SetCloseHandler
func (t *HTTPTransport) SetCloseHandler(handler func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeHandler = handler
}

// SetErrorHandler implements Transport.SetErrorHandler
func (t *HTTPTransport) SetErrorHandler(handler func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errorHandler = handler
}

// SetMessageHandler implements Transport.SetMessageHandler
func (t *HTTPTransport) SetMessageHandler(handler func(ctx context.Context, message *transport.BaseJsonRpcMessage)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messageHandler = handler
}

// ServeHTTP implements http.Handler
func (t *HTTPTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Only POST method is supported", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	body, err := t.readBody(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	message, err := transport.Parse(body)
	if err != nil {
		t.reportError(errors.Wrap(err, "failed to parse message"))
		// the id of an unreadable request is null
		writeJSON(w, http.StatusBadRequest, transport.NewBaseMessageError(&transport.BaseJSONRPCError{
			Jsonrpc: transport.JSONRPCVersion,
			Id:      transport.RequestId{},
			Error: transport.BaseJSONRPCErrorInner{
				Code:    -32700,
				Message: "Parse error",
			},
		}))
		return
	}

	if message.Type != transport.BaseMessageTypeJSONRPCRequestType {
		t.dispatch(ctx, message)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	response, err := t.handleRequest(ctx, message)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, response)
}

// handleRequest dispatches the request and blocks until its response is sent
func (t *HTTPTransport) handleRequest(ctx context.Context, message *transport.BaseJsonRpcMessage) (*transport.BaseJsonRpcMessage, error) {
	key := transport.NewRequestID(atomic.AddInt64(&t.atomicCounter, 1))
	ch := make(chan *transport.BaseJsonRpcMessage, 1)

	t.mu.Lock()
	t.responseMap[key] = ch
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.responseMap, key)
		t.mu.Unlock()
	}()

	// request ids are only unique per client, the key is unique per transport
	prevID := message.MessageID()
	message.SetMessageID(key)

	t.dispatch(ctx, message)

	select {
	case response := <-ch:
		response.SetMessageID(prevID)
		return response, nil
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "request aborted")
	}
}

func (t *HTTPTransport) dispatch(ctx context.Context, message *transport.BaseJsonRpcMessage) {
	t.mu.RLock()
	handler := t.messageHandler
	t.mu.RUnlock()

	if handler != nil {
		handler(ctx, message)
	}
}

func (t *HTTPTransport) reportError(err error) {
	t.mu.RLock()
	handler := t.errorHandler
	t.mu.RUnlock()
	if handler != nil {
		handler(err)
	}
}

// readBody reads and returns the body from an io.Reader
func (t *HTTPTransport) readBody(reader io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(reader, MaxBodySize+1))
	if err != nil {
		t.reportError(errors.Wrap(err, "failed to read request body"))
		return nil, errors.Wrap(err, "failed to read request body")
	}
	if len(body) > MaxBodySize {
		return nil, errors.Errorf("request body exceeds %d bytes", MaxBodySize)
	}
	return body, nil
}

func writeJSON(w http.ResponseWriter, status int, message *transport.BaseJsonRpcMessage) {
	jsonData, err := json.Marshal(message)
	if err != nil {
		http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(jsonData)
}
