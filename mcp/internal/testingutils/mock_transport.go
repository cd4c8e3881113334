package testingutils

import (
	"context"
	"sync"
	"time"

	"github.com/effective-security/freetable/mcp/transport"
)

// MockTransport records sent messages and lets tests inject incoming ones
type MockTransport struct {
	mu sync.RWMutex

	messageHandler func(ctx context.Context, message *transport.BaseJsonRpcMessage)
	errorHandler   func(error)
	closeHandler   func()

	messages []*transport.BaseJsonRpcMessage
	sent     chan struct{}
	started  bool
	closed   bool
}

// NewMockTransport returns a new MockTransport
func NewMockTransport() *MockTransport {
	return &MockTransport{
		sent: make(chan struct{}, 1024),
	}
}

func (t *MockTransport) Start(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.started = true
	return nil
}

func (t *MockTransport) Send(_ context.Context, message *transport.BaseJsonRpcMessage) error {
	t.mu.Lock()
	t.messages = append(t.messages, message)
	t.mu.Unlock()

	select {
	case t.sent <- struct{}{}:
	default:
	}
	return nil
}

func (t *MockTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	handler := t.closeHandler
	t.mu.Unlock()

	if handler != nil {
		handler()
	}
	return nil
}

func (t *MockTransport) SetCloseHandler(handler func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeHandler = handler
}

func (t *MockTransport) SetErrorHandler(handler func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errorHandler = handler
}

func (t *MockTransport) SetMessageHandler(handler func(ctx context.Context, message *transport.BaseJsonRpcMessage)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messageHandler = handler
}

// SimulateMessage delivers message as if it was received from the client
func (t *MockTransport) SimulateMessage(ctx context.Context, message *transport.BaseJsonRpcMessage) {
	t.mu.RLock()
	handler := t.messageHandler
	t.mu.RUnlock()
	if handler != nil {
		handler(ctx, message)
	}
}

// SimulateError reports err as if it was raised by the transport
func (t *MockTransport) SimulateError(err error) {
	t.mu.RLock()
	handler := t.errorHandler
	t.mu.RUnlock()
	if handler != nil {
		handler(err)
	}
}

// GetMessages returns a copy of sent messages
func (t *MockTransport) GetMessages() []*transport.BaseJsonRpcMessage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]*transport.BaseJsonRpcMessage(nil), t.messages...)
}

// WaitForMessages waits until at least count messages were sent,
// and returns the sent messages; fewer are returned on timeout.
func (t *MockTransport) WaitForMessages(count int, timeout time.Duration) []*transport.BaseJsonRpcMessage {
	deadline := time.After(timeout)
	for {
		msgs := t.GetMessages()
		if len(msgs) >= count {
			return msgs
		}
		select {
		case <-t.sent:
		case <-deadline:
			return t.GetMessages()
		}
	}
}

// IsStarted returns true if Start was called
func (t *MockTransport) IsStarted() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.started
}

// IsClosed returns true if Close was called
func (t *MockTransport) IsClosed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}
