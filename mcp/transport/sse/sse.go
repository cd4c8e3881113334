package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/freetable/mcp/transport"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/freetable/mcp/transport", "sse")

// MaxMessageSize is the largest accepted POST body
const MaxMessageSize = 4 * 1024 * 1024

// SSEServerTransport is the server side of the MCP SSE transport:
// server-to-client messages are streamed as `message` events on a long-lived
// GET response, client-to-server messages arrive as POSTs to the endpoint
// announced in the initial `endpoint` event.
type SSEServerTransport struct {
	mu        sync.Mutex
	w         http.ResponseWriter
	flusher   http.Flusher
	endpoint  string
	sessionID string
	ctx       context.Context
	started   bool
	closed    bool
	done      chan struct{}

	messageHandler func(ctx context.Context, message *transport.BaseJsonRpcMessage)
	errorHandler   func(error)
	closeHandler   func()
}

// NewSSEServerTransport creates a transport that streams events to w.
// The endpoint is the path clients POST their messages to.
func NewSSEServerTransport(endpoint string, w http.ResponseWriter) (*SSEServerTransport, error) {
	if w == nil {
		return nil, errors.New("response writer is required")
	}
	flusher, _ := w.(http.Flusher)
	return &SSEServerTransport{
		w:         w,
		flusher:   flusher,
		endpoint:  endpoint,
		sessionID: uuid.NewString(),
		ctx:       context.Background(),
		done:      make(chan struct{}),
	}, nil
}

// SessionID returns the unique session identifier of the stream
func (t *SSEServerTransport) SessionID() string {
	return t.sessionID
}

// Done is closed when the transport is closed
func (t *SSEServerTransport) Done() <-chan struct{} {
	return t.done
}

// Start writes the SSE headers and the endpoint event.
// The stream is closed when ctx is done.
func (t *SSEServerTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return errors.New("SSE transport already started")
	}
	if t.closed {
		return errors.New("SSE transport closed")
	}
	t.started = true
	t.ctx = ctx

	h := t.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")
	t.w.WriteHeader(http.StatusOK)

	endpoint := fmt.Sprintf("%s?sessionId=%s", t.endpoint, t.sessionID)
	if err := t.writeEvent("endpoint", endpoint); err != nil {
		return err
	}

	go func() {
		select {
		case <-ctx.Done():
			_ = t.Close()
		case <-t.done:
		}
	}()

	return nil
}

// Send implements Transport.Send
func (t *SSEServerTransport) Send(ctx context.Context, message *transport.BaseJsonRpcMessage) error {
	if message == nil {
		return errors.New("message is nil")
	}
	data, err := json.Marshal(message)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started || t.closed {
		return errors.New("not connected")
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"session", t.sessionID,
		"type", message.Type,
		"id", message.MessageID(),
	)
	return t.writeEvent("message", string(data))
}

// Ping writes an SSE comment to keep intermediaries from closing an idle stream
func (t *SSEServerTransport) Ping() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started || t.closed {
		return errors.New("not connected")
	}
	if _, err := io.WriteString(t.w, ": ping\n\n"); err != nil {
		return errors.Wrap(err, "failed to write ping")
	}
	t.flush()
	return nil
}

// writeEvent must be called with the lock held
func (t *SSEServerTransport) writeEvent(event, data string) error {
	if _, err := fmt.Fprintf(t.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return errors.Wrapf(err, "failed to write %s event", event)
	}
	t.flush()
	return nil
}

func (t *SSEServerTransport) flush() {
	if t.flusher != nil {
		t.flusher.Flush()
	}
}

// HandlePostMessage reads one JSON-RPC message from r and dispatches it to the message handler.
// The handler runs with the stream context, not the POST request context.
func (t *SSEServerTransport) HandlePostMessage(r *http.Request) error {
	if r.Method != http.MethodPost {
		return errors.Errorf("method not allowed: %s", r.Method)
	}

	contentType := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "application/json" {
		return errors.Errorf("unsupported Content type: %q", contentType)
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxMessageSize+1))
	if err != nil {
		err = errors.Wrap(err, "failed to read request body")
		t.reportError(err)
		return err
	}
	if len(body) > MaxMessageSize {
		err = errors.Errorf("message exceeds %d bytes", MaxMessageSize)
		t.reportError(err)
		return err
	}

	return t.HandleMessage(body)
}

// HandleMessage dispatches a raw JSON-RPC message to the message handler
func (t *SSEServerTransport) HandleMessage(body []byte) error {
	message, err := transport.Parse(body)
	if err != nil {
		err = errors.Wrap(err, "failed to parse message")
		t.reportError(err)
		return err
	}

	t.mu.Lock()
	handler := t.messageHandler
	ctx := t.ctx
	t.mu.Unlock()

	if handler != nil {
		handler(ctx, message)
	}
	return nil
}

func (t *SSEServerTransport) reportError(err error) {
	t.mu.Lock()
	handler := t.errorHandler
	t.mu.Unlock()
	if handler != nil {
		handler(err)
	}
}

// Close implements Transport.Close, it is safe to call more than once
func (t *SSEServerTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.done)
	handler := t.closeHandler
	t.mu.Unlock()

	if handler != nil {
		handler()
	}
	return nil
}

// SetCloseHandler implements Transport.SetCloseHandler
func (t *SSEServerTransport) SetCloseHandler(handler func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeHandler = handler
}

// SetErrorHandler implements Transport.SetErrorHandler
func (t *SSEServerTransport) SetErrorHandler(handler func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errorHandler = handler
}

// SetMessageHandler implements Transport.SetMessageHandler
func (t *SSEServerTransport) SetMessageHandler(handler func(ctx context.Context, message *transport.BaseJsonRpcMessage)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messageHandler = handler
}
